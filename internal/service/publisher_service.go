package service

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"sync"
	"time"

	cfg "postpilot/configs"
	"postpilot/internal/models"
	"postpilot/internal/repository"
)

// PublisherService executes one publish run: query due posts, claim each,
// drive the platform protocol, record the terminal status and clean up the
// staged blob. Runs are triggered externally; overlapping runs are safe
// because Claim admits exactly one owner per post.
type PublisherService interface {
	PublishDuePosts(ctx context.Context) (published, failed int, err error)
}

type publisherService struct {
	repo          repository.ScheduleRepository
	staging       StagingService
	ig            InstagramService
	tw            TwitterService
	maxConcurrent int
}

func NewPublisherService(
	c cfg.Config,
	repo repository.ScheduleRepository,
	staging StagingService,
	ig InstagramService,
	tw TwitterService) PublisherService {
	maxConcurrent := c.Publish.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &publisherService{
		repo:          repo,
		staging:       staging,
		ig:            ig,
		tw:            tw,
		maxConcurrent: maxConcurrent,
	}
}

// PublishDuePosts processes all currently due posts. Posts for distinct
// accounts run concurrently up to the global cap; posts for the same
// account run strictly in order because slot chains and platform rate
// limits are per-account state. Only a failed due query aborts the run.
func (s *publisherService) PublishDuePosts(ctx context.Context) (int, int, error) {
	due, err := s.repo.GetDue(ctx, time.Now())
	if err != nil {
		return 0, 0, fmt.Errorf("querying due posts: %w", err)
	}
	if len(due) == 0 {
		return 0, 0, nil
	}
	log.Printf("Found %d due post(s)", len(due))

	byAccount := make(map[string][]*models.ScheduledPost)
	var order []string
	for _, post := range due {
		if _, seen := byAccount[post.AccountRef]; !seen {
			order = append(order, post.AccountRef)
		}
		byAccount[post.AccountRef] = append(byAccount[post.AccountRef], post)
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, s.maxConcurrent)
	var mu sync.Mutex
	var published, failed int

	for _, accountRef := range order {
		posts := byAccount[accountRef]

		wg.Add(1)
		semaphore <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-semaphore }()

			for _, post := range posts {
				switch s.publishOne(ctx, post) {
				case publishOutcomePosted:
					mu.Lock()
					published++
					mu.Unlock()
				case publishOutcomeFailed:
					mu.Lock()
					failed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	log.Printf("Run complete: %d published, %d failed", published, failed)
	return published, failed, nil
}

type publishOutcome int

const (
	publishOutcomeSkipped publishOutcome = iota
	publishOutcomePosted
	publishOutcomeFailed
)

func (s *publisherService) publishOne(ctx context.Context, post *models.ScheduledPost) publishOutcome {
	claimed, err := s.repo.Claim(ctx, post.ID)
	if err != nil {
		slog.Error("claim failed", "post_id", post.ID, "error", err)
		return publishOutcomeSkipped
	}
	if !claimed {
		// Another run already owns this post.
		return publishOutcomeSkipped
	}

	if err := s.dispatch(ctx, post); err != nil {
		slog.Error("publish failed", "post_id", post.ID, "platform", post.Platform, "error", err)
		if mErr := s.repo.MarkFailed(ctx, post.ID, err.Error()); mErr != nil {
			slog.Error("marking post failed", "post_id", post.ID, "error", mErr)
		}
		s.cleanup(ctx, post)
		return publishOutcomeFailed
	}

	if err := s.repo.MarkPosted(ctx, post.ID, time.Now()); err != nil {
		slog.Error("marking post posted", "post_id", post.ID, "error", err)
	}
	s.cleanup(ctx, post)
	log.Printf("Published #%d (%s)", post.ID, post.Platform)
	return publishOutcomePosted
}

func (s *publisherService) dispatch(ctx context.Context, post *models.ScheduledPost) error {
	switch post.Platform {
	case models.PlatformTextOnly:
		_, err := s.tw.PostText(ctx, post.AccountRef, post.Caption)
		return err

	case models.PlatformInstagram:
		video, err := s.staging.Get(ctx, post.MediaRef)
		if err != nil {
			return fmt.Errorf("fetching staged media: %w", err)
		}
		_, err = s.ig.PublishReel(ctx, post.AccountRef, post.Caption, video)
		return err

	case models.PlatformVideoAttached:
		video, err := s.staging.Get(ctx, post.MediaRef)
		if err != nil {
			return fmt.Errorf("fetching staged media: %w", err)
		}
		mediaID, err := s.tw.UploadVideo(ctx, post.AccountRef, video)
		if err != nil {
			return err
		}
		_, err = s.tw.PostText(ctx, post.AccountRef, post.Caption, mediaID)
		return err

	default:
		return fmt.Errorf("unknown platform: %s", post.Platform)
	}
}

// cleanup deletes the staged blob once the post is terminal. Deletes are
// idempotent, a failed delete only logs.
func (s *publisherService) cleanup(ctx context.Context, post *models.ScheduledPost) {
	if post.MediaRef == "" {
		return
	}
	if err := s.staging.Delete(ctx, post.MediaRef); err != nil {
		slog.Warn("staging cleanup failed", "post_id", post.ID, "media_ref", post.MediaRef, "error", err)
	}
}
