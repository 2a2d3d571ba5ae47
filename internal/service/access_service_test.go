package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neighborsos/internal/models"
	"neighborsos/internal/repository/postgres"
)

func newAccessService(t *testing.T) *AccessService {
	t.Helper()
	db := newTestDB(t)
	return NewAccessService(
		postgres.NewAccessGrantRepository(db),
		postgres.NewAdminRepository(db),
		postgres.NewEmailSignupRepository(db),
	)
}

func TestGrantNormalizesEmail(t *testing.T) {
	svc := newAccessService(t)
	ctx := context.Background()

	grant, err := svc.Grant(ctx, "  Beta.Tester@Example.COM ", "friend of the founder")
	require.NoError(t, err)
	assert.Equal(t, "beta.tester@example.com", grant.Email)

	grants, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, "beta.tester@example.com", grants[0].Email)
}

func TestGrantRejectsDuplicates(t *testing.T) {
	svc := newAccessService(t)
	ctx := context.Background()

	_, err := svc.Grant(ctx, "tester@example.com", "")
	require.NoError(t, err)

	// Same address in different case is the same grant.
	_, err = svc.Grant(ctx, "Tester@Example.com", "")
	assert.ErrorIs(t, err, ErrAlreadyGranted)
}

func TestGrantRejectsInvalidEmail(t *testing.T) {
	svc := newAccessService(t)

	for _, bad := range []string{"", "not-an-email", "a@b", "white space@example.com"} {
		_, err := svc.Grant(context.Background(), bad, "")
		assert.ErrorIs(t, err, ErrInvalidInput, "input %q", bad)
	}
}

func TestRevoke(t *testing.T) {
	svc := newAccessService(t)
	ctx := context.Background()

	grant, err := svc.Grant(ctx, "tester@example.com", "")
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, grant.ID))

	grants, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, grants)

	assert.ErrorIs(t, svc.Revoke(ctx, grant.ID), ErrGrantNotFound)
	assert.ErrorIs(t, svc.Revoke(ctx, uuid.New()), ErrGrantNotFound)
}

func TestIsAdmin(t *testing.T) {
	db := newTestDB(t)
	svc := NewAccessService(
		postgres.NewAccessGrantRepository(db),
		postgres.NewAdminRepository(db),
		postgres.NewEmailSignupRepository(db),
	)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.Admin{
		ID:    uuid.New(),
		Email: "ops@neighborsos.org",
	}).Error)

	ok, err := svc.IsAdmin(ctx, "Ops@NeighborSOS.org")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsAdmin(ctx, "visitor@example.com")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.IsAdmin(ctx, "garbage")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSignup(t *testing.T) {
	svc := newAccessService(t)
	ctx := context.Background()

	require.NoError(t, svc.Signup(ctx, "Waiting@Example.com"))
	assert.ErrorIs(t, svc.Signup(ctx, "waiting@example.com"), ErrAlreadySignedUp)
	assert.ErrorIs(t, svc.Signup(ctx, "nope"), ErrInvalidInput)
}
