package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserRatingSummaryAddRating(t *testing.T) {
	var s UserRatingSummary
	s.AddRating(5)
	s.AddRating(3)

	assert.Equal(t, 2, s.ReviewCount)
	assert.InDelta(t, 4.0, s.AverageRating, 1e-9)
}

func TestUserRatingSummaryReplaceRating(t *testing.T) {
	s := UserRatingSummary{AverageRating: 4.0, ReviewCount: 2}
	s.ReplaceRating(3, 5)

	assert.Equal(t, 2, s.ReviewCount)
	assert.InDelta(t, 5.0, s.AverageRating, 1e-9)
}

func TestUserRatingSummaryReplaceRatingNoCount(t *testing.T) {
	var s UserRatingSummary
	s.ReplaceRating(3, 5)
	assert.Zero(t, s.AverageRating)
}
