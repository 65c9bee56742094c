package models

import "time"

// ScheduledPost is one row in the content schedule. MediaRef addresses the
// staged object and is empty for text-only posts.
type ScheduledPost struct {
	ID            int64      `db:"id" json:"id"`
	Platform      string     `db:"platform" json:"platform"`
	AccountRef    string     `db:"account_ref" json:"account_ref"`
	MediaRef      string     `db:"media_ref" json:"media_ref,omitempty"`
	Caption       string     `db:"caption" json:"caption"`
	ScheduledTime time.Time  `db:"scheduled_time" json:"scheduled_time"`
	Status        string     `db:"status" json:"status"`
	PostedAt      *time.Time `db:"posted_at" json:"posted_at,omitempty"`
	ErrorDetail   string     `db:"error_detail" json:"error_detail,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

const (
	PlatformInstagram     = "instagram"
	PlatformTextOnly      = "text_only"
	PlatformVideoAttached = "video_attached"
)

const (
	PostStatusPending    = "pending"
	PostStatusProcessing = "processing"
	PostStatusPosted     = "posted"
	PostStatusFailed     = "failed"
)

// RequiresMedia reports whether the platform publishes a staged binary.
func RequiresMedia(platform string) bool {
	return platform == PlatformInstagram || platform == PlatformVideoAttached
}

func ValidPlatform(platform string) bool {
	switch platform {
	case PlatformInstagram, PlatformTextOnly, PlatformVideoAttached:
		return true
	}
	return false
}

func ValidStatus(status string) bool {
	switch status {
	case PostStatusPending, PostStatusProcessing, PostStatusPosted, PostStatusFailed:
		return true
	}
	return false
}

// Validate checks the insert-time invariants.
func (p *ScheduledPost) Validate() error {
	if !ValidPlatform(p.Platform) {
		return &ValidationError{Field: "platform", Reason: "unknown platform " + p.Platform}
	}
	if p.AccountRef == "" {
		return &ValidationError{Field: "account_ref", Reason: "account ref is required"}
	}
	if RequiresMedia(p.Platform) && p.MediaRef == "" {
		return &ValidationError{Field: "media_ref", Reason: "media ref is required for " + p.Platform}
	}
	if !RequiresMedia(p.Platform) && p.MediaRef != "" {
		return &ValidationError{Field: "media_ref", Reason: "media ref is not allowed for " + p.Platform}
	}
	if p.Platform == PlatformTextOnly && p.Caption == "" {
		return &ValidationError{Field: "caption", Reason: "caption is required for text_only"}
	}
	if p.ScheduledTime.IsZero() {
		return &ValidationError{Field: "scheduled_time", Reason: "scheduled time is required"}
	}
	return nil
}
