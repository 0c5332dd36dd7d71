package evaluator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	strandmodels "strand/internal/strand/models"
	"strand/internal/verification/mocks"
	dErrors "strand/pkg/domain-errors"
	"strand/pkg/platform/circuit"
)

func TestStatic_Evaluate(t *testing.T) {
	eval, err := NewStatic([]string{"channel:web", "channel:mobile", "deny-action:delete_account", "step-up:transfer"})
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name    string
		authCtx strandmodels.AuthContext
		want    bool
	}{
		{"allowed channel", strandmodels.AuthContext{Channel: "web", Action: "login"}, true},
		{"unlisted channel", strandmodels.AuthContext{Channel: "kiosk", Action: "login"}, false},
		{"denied action", strandmodels.AuthContext{Channel: "web", Action: "delete_account"}, false},
		{"step-up missing", strandmodels.AuthContext{Channel: "mobile", Action: "transfer"}, false},
		{"step-up present", strandmodels.AuthContext{Channel: "mobile", Action: "transfer", StepUp: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eval.Evaluate(ctx, "strand_1", tt.authCtx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatic_NoChannelRulesAllowsAnyChannel(t *testing.T) {
	eval, err := NewStatic(nil)
	require.NoError(t, err)
	ok, err := eval.Evaluate(context.Background(), "strand_1", strandmodels.AuthContext{Channel: "kiosk"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStatic_UnknownRuleIsConfigurationError(t *testing.T) {
	_, err := NewStatic([]string{"geo:eu"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConfiguration))

	_, err = NewStaticFromDocument(nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConfiguration))
}

func TestRego_DefaultModule(t *testing.T) {
	ctx := context.Background()
	eval, err := NewRego(ctx, "default.rego", DefaultModule)
	require.NoError(t, err)

	ok, err := eval.Evaluate(ctx, "strand_1", strandmodels.AuthContext{Channel: "web", Action: "login"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = eval.Evaluate(ctx, "strand_1", strandmodels.AuthContext{Channel: "fax"})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = eval.Evaluate(ctx, "strand_1", strandmodels.AuthContext{Channel: "api", Action: "transfer"})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = eval.Evaluate(ctx, "strand_1", strandmodels.AuthContext{Channel: "api", Action: "transfer", StepUp: true})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRego_UndefinedResultDenies(t *testing.T) {
	ctx := context.Background()
	eval, err := NewRego(ctx, "partial.rego", `package strand.authz

import rego.v1

allow if input.credential_id == "strand_vip"
`)
	require.NoError(t, err)

	ok, err := eval.Evaluate(ctx, "strand_other", strandmodels.AuthContext{})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = eval.Evaluate(ctx, "strand_vip", strandmodels.AuthContext{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRego_CompileErrorIsReported(t *testing.T) {
	_, err := NewRego(context.Background(), "broken.rego", "package strand.authz\nallow if {")
	assert.Error(t, err)
}

func TestGuarded_OpensAfterFailuresAndFailsFast(t *testing.T) {
	ctrl := gomock.NewController(t)
	next := mocks.NewMockPolicyEvaluator(ctrl)
	now := time.Unix(0, 0)
	breaker := circuit.New("policy", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Minute),
		circuit.WithNow(func() time.Time { return now }))
	g := NewGuarded(next, breaker, nil)
	ctx := context.Background()

	next.EXPECT().Evaluate(gomock.Any(), "strand_1", gomock.Any()).Return(false, errors.New("timeout")).Times(2)
	for range 2 {
		_, err := g.Evaluate(ctx, "strand_1", strandmodels.AuthContext{})
		assert.Error(t, err)
	}

	_, err := g.Evaluate(ctx, "strand_1", strandmodels.AuthContext{})
	assert.ErrorIs(t, err, ErrCircuitOpen)

	now = now.Add(time.Minute)
	next.EXPECT().Evaluate(gomock.Any(), "strand_1", gomock.Any()).Return(false, nil)
	ok, err := g.Evaluate(ctx, "strand_1", strandmodels.AuthContext{})
	require.NoError(t, err)
	assert.False(t, ok, "a deny is passed through and counts as healthy")
	assert.Equal(t, circuit.StateClosed, breaker.State())
}
