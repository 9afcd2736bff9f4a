package domain

import "time"

const (
	MinRating = 1
	MaxRating = 5
)

type Review struct {
	ID             string     `json:"id"`
	ReviewerID     string     `json:"reviewer_id"`
	ReviewedUserID string     `json:"reviewed_user_id"`
	BookID         *string    `json:"book_id,omitempty"`
	ExchangeID     *string    `json:"exchange_id,omitempty"`
	Rating         int        `json:"rating"`
	Comment        string     `json:"comment"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	Helpful        int        `json:"helpful"`
	Reported       bool       `json:"reported"`
	ReportReason   *string    `json:"report_reason,omitempty"`
	ReportedAt     *time.Time `json:"reported_at,omitempty"`
	// Joined fields
	ReviewerName string `json:"reviewer_name,omitempty"`
}

// UserRatingSummary is the running aggregate kept on the reviewed user.
// Version increments on every write and is used for conflict detection.
type UserRatingSummary struct {
	UserID        string  `json:"user_id"`
	AverageRating float64 `json:"average_rating"`
	ReviewCount   int     `json:"review_count"`
	Version       int64   `json:"-"`
}

// AddRating folds a new rating into the running average.
func (s *UserRatingSummary) AddRating(rating int) {
	count := float64(s.ReviewCount)
	s.AverageRating = (s.AverageRating*count + float64(rating)) / (count + 1)
	s.ReviewCount++
}

// ReplaceRating swaps oldRating for newRating without changing the count.
func (s *UserRatingSummary) ReplaceRating(oldRating, newRating int) {
	if s.ReviewCount == 0 || oldRating == newRating {
		return
	}
	count := float64(s.ReviewCount)
	s.AverageRating = (s.AverageRating*count - float64(oldRating) + float64(newRating)) / count
}

// ReviewEligibility is the answer to "may this reviewer review that user".
type ReviewEligibility struct {
	CanReview bool   `json:"can_review"`
	Reason    string `json:"reason,omitempty"`
}
