// Package evaluator implements the policy barrier's decision makers.
package evaluator

import (
	"context"
	"fmt"
	"slices"
	"strings"

	strandmodels "strand/internal/strand/models"
	dErrors "strand/pkg/domain-errors"
)

// Rule prefixes understood by Static.
const (
	RuleChannel    = "channel:"
	RuleDenyAction = "deny-action:"
	RuleStepUp     = "step-up:"
)

// Static evaluates a fixed rule list:
//   - channel:<name>      allow only listed channels (any channel when none listed)
//   - deny-action:<name>  deny the action outright
//   - step-up:<action>    require StepUp for the action
type Static struct {
	channels    []string
	denyActions []string
	stepUp      []string
}

// NewStatic parses rules. Unknown rule kinds are a configuration error.
func NewStatic(rules []string) (*Static, error) {
	s := &Static{}
	for _, rule := range rules {
		switch {
		case strings.HasPrefix(rule, RuleChannel):
			s.channels = append(s.channels, strings.TrimPrefix(rule, RuleChannel))
		case strings.HasPrefix(rule, RuleDenyAction):
			s.denyActions = append(s.denyActions, strings.TrimPrefix(rule, RuleDenyAction))
		case strings.HasPrefix(rule, RuleStepUp):
			s.stepUp = append(s.stepUp, strings.TrimPrefix(rule, RuleStepUp))
		default:
			return nil, dErrors.New(dErrors.CodeConfiguration, fmt.Sprintf("unknown policy rule %q", rule))
		}
	}
	return s, nil
}

// NewStaticFromDocument builds an evaluator from a policy document's rules.
func NewStaticFromDocument(doc *strandmodels.PolicyDocument) (*Static, error) {
	if doc == nil {
		return nil, dErrors.New(dErrors.CodeConfiguration, "policy document is required")
	}
	return NewStatic(doc.Rules)
}

func (s *Static) Evaluate(_ context.Context, _ string, authCtx strandmodels.AuthContext) (bool, error) {
	if len(s.channels) > 0 && !slices.Contains(s.channels, authCtx.Channel) {
		return false, nil
	}
	if slices.Contains(s.denyActions, authCtx.Action) {
		return false, nil
	}
	if slices.Contains(s.stepUp, authCtx.Action) && !authCtx.StepUp {
		return false, nil
	}
	return true, nil
}
