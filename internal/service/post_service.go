package service

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/matchers"

	"postpilot/internal/models"
	"postpilot/internal/repository"
	"postpilot/internal/schedule"
	"postpilot/internal/transfer"
)

// PostService owns the producer-facing schedule operations: new posts get
// the next free slot in their account's chain, pending posts can be moved
// or cancelled, failed posts can be explicitly retried.
type PostService interface {
	Schedule(ctx context.Context, req *transfer.ScheduleRequest, media []byte) (*models.ScheduledPost, error)
	Info(ctx context.Context, id int64) (*models.ScheduledPost, error)
	List(ctx context.Context, status string) ([]*models.ScheduledPost, error)
	Reschedule(ctx context.Context, id int64, newTime time.Time) error
	Cancel(ctx context.Context, id int64) error
	Retry(ctx context.Context, id int64, newTime *time.Time) error
}

type postService struct {
	repo    repository.ScheduleRepository
	staging StagingService
	slots   *schedule.SlotTable
	now     func() time.Time
}

func NewPostService(repo repository.ScheduleRepository, staging StagingService, slots *schedule.SlotTable) PostService {
	return &postService{
		repo:    repo,
		staging: staging,
		slots:   slots,
		now:     time.Now,
	}
}

func (s *postService) Schedule(ctx context.Context, req *transfer.ScheduleRequest, media []byte) (*models.ScheduledPost, error) {
	if req == nil {
		return nil, &models.ValidationError{Field: "request", Reason: "schedule request is nil"}
	}
	if !models.ValidPlatform(req.Platform) {
		return nil, &models.ValidationError{Field: "platform", Reason: "unknown platform " + req.Platform}
	}

	var mediaRef string
	if models.RequiresMedia(req.Platform) {
		if len(media) == 0 {
			return nil, &models.ValidationError{Field: "media", Reason: "media file is required for " + req.Platform}
		}
		contentType, err := sniffVideoType(media)
		if err != nil {
			return nil, err
		}
		mediaRef, err = s.staging.Put(ctx, media, contentType)
		if err != nil {
			return nil, fmt.Errorf("staging media: %w", err)
		}
	} else if len(media) > 0 {
		return nil, &models.ValidationError{Field: "media", Reason: "media is not allowed for " + req.Platform}
	}

	tail, err := s.repo.LastScheduledTime(ctx, req.AccountRef)
	if err != nil {
		s.discard(ctx, mediaRef)
		return nil, fmt.Errorf("reading chain tail: %w", err)
	}
	slot := s.slots.Next(tail, s.now())

	post := &models.ScheduledPost{
		Platform:      req.Platform,
		AccountRef:    req.AccountRef,
		MediaRef:      mediaRef,
		Caption:       req.Caption,
		ScheduledTime: slot,
	}

	id, err := s.repo.Insert(ctx, post)
	if err != nil {
		s.discard(ctx, mediaRef)
		return nil, err
	}
	post.ID = id
	post.Status = models.PostStatusPending

	log.Printf("Scheduled #%d (%s/%s) at %s", id, post.Platform, post.AccountRef, slot.Format("2006-01-02 15:04"))
	return post, nil
}

func (s *postService) Info(ctx context.Context, id int64) (*models.ScheduledPost, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *postService) List(ctx context.Context, status string) ([]*models.ScheduledPost, error) {
	if status != "" && !models.ValidStatus(status) {
		return nil, &models.ValidationError{Field: "status", Reason: "unknown status " + status}
	}
	return s.repo.ListByStatus(ctx, status)
}

func (s *postService) Reschedule(ctx context.Context, id int64, newTime time.Time) error {
	if !newTime.After(s.now()) {
		return &models.ValidationError{Field: "new_time", Reason: "new time must be in the future"}
	}
	return s.repo.Reschedule(ctx, id, newTime)
}

// Cancel removes a pending post and its staged blob. Claimed or terminal
// posts cannot be cancelled.
func (s *postService) Cancel(ctx context.Context, id int64) error {
	post, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if post.Status != models.PostStatusPending {
		return models.ErrInvalidState
	}
	if err := s.repo.Cancel(ctx, id); err != nil {
		return err
	}
	s.discard(ctx, post.MediaRef)
	return nil
}

// Retry resets a failed post to pending. With no explicit time the post
// becomes due two minutes from now.
func (s *postService) Retry(ctx context.Context, id int64, newTime *time.Time) error {
	when := s.now().Add(2 * time.Minute)
	if newTime != nil {
		when = *newTime
	}
	return s.repo.Retry(ctx, id, when)
}

func (s *postService) discard(ctx context.Context, mediaRef string) {
	if mediaRef == "" {
		return
	}
	if err := s.staging.Delete(ctx, mediaRef); err != nil {
		slog.Warn("staging cleanup failed", "media_ref", mediaRef, "error", err)
	}
}

func sniffVideoType(media []byte) (string, error) {
	kind, err := filetype.Match(media)
	if err != nil {
		return "", &models.ValidationError{Field: "media", Reason: "unreadable media file"}
	}
	switch kind {
	case matchers.TypeMp4, matchers.TypeMov:
		return kind.MIME.Value, nil
	}
	return "", &models.ValidationError{Field: "media", Reason: "unsupported media type " + kind.Extension}
}
