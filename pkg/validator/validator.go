package validator

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxMessageLength      = 4000
	MaxCommentLength      = 2000
	MaxReportReasonLength = 500
	MaxDisplayNameLength  = 100
)

type ValidationErrors map[string]string

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Add(field, message string) {
	v[field] = message
}

func ValidateMessage(conversationID, senderID, receiverID, text string) ValidationErrors {
	errs := make(ValidationErrors)

	requireID(errs, "conversation_id", conversationID)
	requireID(errs, "sender_id", senderID)
	requireID(errs, "receiver_id", receiverID)
	if senderID != "" && senderID == receiverID {
		errs.Add("receiver_id", "Cannot send a message to yourself")
	}

	text = strings.TrimSpace(text)
	if text == "" {
		errs.Add("text", "Message text is required")
	} else if utf8.RuneCountInString(text) > MaxMessageLength {
		errs.Add("text", fmt.Sprintf("Message is too long (max %d characters)", MaxMessageLength))
	}

	return errs
}

func ValidateReview(reviewerID, reviewedUserID string, rating int, comment string) ValidationErrors {
	errs := make(ValidationErrors)

	requireID(errs, "reviewer_id", reviewerID)
	requireID(errs, "reviewed_user_id", reviewedUserID)
	if reviewerID != "" && reviewerID == reviewedUserID {
		errs.Add("reviewed_user_id", "Cannot review yourself")
	}
	validateRating(rating, errs)
	validateComment(comment, errs)

	return errs
}

func ValidateReviewUpdate(reviewID string, rating int, comment *string) ValidationErrors {
	errs := make(ValidationErrors)

	requireID(errs, "review_id", reviewID)
	validateRating(rating, errs)
	if comment != nil {
		validateComment(*comment, errs)
	}

	return errs
}

func ValidateReport(reviewID, reason string) ValidationErrors {
	errs := make(ValidationErrors)

	requireID(errs, "review_id", reviewID)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		errs.Add("reason", "Report reason is required")
	} else if utf8.RuneCountInString(reason) > MaxReportReasonLength {
		errs.Add("reason", "Report reason is too long")
	}

	return errs
}

func ValidateProfile(userID, displayName string) ValidationErrors {
	errs := make(ValidationErrors)

	requireID(errs, "user_id", userID)
	displayName = strings.TrimSpace(displayName)
	n := utf8.RuneCountInString(displayName)
	if displayName == "" {
		errs.Add("display_name", "Display name is required")
	} else if n < 2 {
		errs.Add("display_name", "Display name must be at least 2 characters")
	} else if n > MaxDisplayNameLength {
		errs.Add("display_name", "Display name is too long")
	}

	return errs
}

func requireID(errs ValidationErrors, field, id string) {
	if strings.TrimSpace(id) == "" {
		errs.Add(field, "This field is required")
	}
}

func validateRating(rating int, errs ValidationErrors) {
	if rating < 1 || rating > 5 {
		errs.Add("rating", "Rating must be between 1 and 5")
	}
}

func validateComment(comment string, errs ValidationErrors) {
	if utf8.RuneCountInString(comment) > MaxCommentLength {
		errs.Add("comment", "Comment is too long")
	}
}
