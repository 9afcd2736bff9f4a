package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateMessage(t *testing.T) {
	assert.False(t, ValidateMessage("a_b", "a", "b", "Hi").HasErrors())

	errs := ValidateMessage("a_b", "a", "b", "   \t")
	assert.Contains(t, errs, "text")

	errs = ValidateMessage("", "a", "a", strings.Repeat("x", MaxMessageLength+1))
	assert.Contains(t, errs, "conversation_id")
	assert.Contains(t, errs, "receiver_id")
	assert.Contains(t, errs, "text")
}

func TestValidateReviewRatingBounds(t *testing.T) {
	for _, rating := range []int{1, 2, 3, 4, 5} {
		assert.False(t, ValidateReview("r", "u", rating, "").HasErrors(), "rating %d", rating)
	}
	for _, rating := range []int{-1, 0, 6, 100} {
		assert.Contains(t, ValidateReview("r", "u", rating, ""), "rating", "rating %d", rating)
	}
}

func TestValidateReviewSelf(t *testing.T) {
	errs := ValidateReview("u", "u", 4, "")
	assert.Equal(t, "Cannot review yourself", errs["reviewed_user_id"])
}

func TestValidateReport(t *testing.T) {
	assert.Contains(t, ValidateReport("r1", " "), "reason")
	assert.False(t, ValidateReport("r1", "spam").HasErrors())
}

func TestValidateProfileCountsCharacters(t *testing.T) {
	assert.False(t, ValidateProfile("u", "Zoë").HasErrors())
	assert.False(t, ValidateProfile("u", strings.Repeat("é", MaxDisplayNameLength)).HasErrors())
	assert.Contains(t, ValidateProfile("u", strings.Repeat("é", MaxDisplayNameLength+1)), "display_name")
	assert.Contains(t, ValidateProfile("u", "é"), "display_name")
	assert.Contains(t, ValidateProfile("", "  "), "user_id")
}
