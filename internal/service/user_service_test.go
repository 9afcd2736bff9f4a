package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vedran77/textswap/internal/domain"
)

func TestUpsertProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.users.UpsertProfile(ctx, "u1", UpdateProfileInput{DisplayName: "  Alex Johnson ", Email: "alex@uni.edu"})
	require.NoError(t, err)
	assert.Equal(t, "Alex Johnson", user.DisplayName)

	_, err = f.users.UpsertProfile(ctx, "u1", UpdateProfileInput{DisplayName: "A"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.Equal(t, "Alex Johnson", f.users.DisplayName(ctx, "u1"))
	assert.Equal(t, domain.UnknownUserName, f.users.DisplayName(ctx, "nobody"))

	summary, err := f.ratings.Summary(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, summary.ReviewCount)
	assert.Zero(t, summary.AverageRating)
}
