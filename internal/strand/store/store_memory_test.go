package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strand/internal/strand/models"
	"strand/pkg/platform/sentinel"
	"strand/pkg/testutil"
)

func TestInMemoryStore_PutGet(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()

	cred := &models.Credential{ID: "strand_1"}
	require.NoError(t, s.Put(ctx, cred))

	got, err := s.Get(ctx, "strand_1")
	require.NoError(t, err)
	assert.Same(t, cred, got)

	_, err = s.Get(ctx, "strand_missing")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryStore_PutIsWriteOnce(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()

	res := testutil.RunConcurrent(20, func(int) error {
		return s.Put(ctx, &models.Credential{ID: "strand_same"})
	})
	assert.Equal(t, int32(1), res.Successes)
	assert.Equal(t, int32(19), res.Conflicts)
}

func TestInMemoryStore_RejectsMissingID(t *testing.T) {
	err := NewInMemory().Put(context.Background(), &models.Credential{})
	assert.ErrorIs(t, err, sentinel.ErrInvalidInput)
}
