package evaluator

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/open-policy-agent/opa/rego"

	strandmodels "strand/internal/strand/models"
)

// DefaultQuery is the rule every bundle must define.
const DefaultQuery = "data.strand.authz.allow"

//go:embed default.rego
var DefaultModule string

// Rego evaluates an OPA policy. The input document is
// {"credential_id": ..., "context": AuthContext}.
type Rego struct {
	query rego.PreparedEvalQuery
}

// NewRego compiles a single module.
func NewRego(ctx context.Context, name, module string) (*Rego, error) {
	return prepare(ctx, rego.Module(name, module))
}

// NewRegoFromPath compiles every policy under path.
func NewRegoFromPath(ctx context.Context, path string) (*Rego, error) {
	return prepare(ctx, rego.Load([]string{path}, nil))
}

func prepare(ctx context.Context, source func(*rego.Rego)) (*Rego, error) {
	prepared, err := rego.New(
		rego.Query(DefaultQuery),
		rego.StrictBuiltinErrors(true),
		source,
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare policy: %w", err)
	}
	return &Rego{query: prepared}, nil
}

type regoInput struct {
	CredentialID string                   `json:"credential_id"`
	Context      strandmodels.AuthContext `json:"context"`
}

// Evaluate returns true only for an explicit boolean true. An undefined
// result is a deny.
func (r *Rego) Evaluate(ctx context.Context, credentialID string, authCtx strandmodels.AuthContext) (bool, error) {
	results, err := r.query.Eval(ctx, rego.EvalInput(regoInput{CredentialID: credentialID, Context: authCtx}))
	if err != nil {
		return false, fmt.Errorf("evaluate policy: %w", err)
	}
	return results.Allowed(), nil
}
