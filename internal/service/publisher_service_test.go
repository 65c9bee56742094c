package service

import (
	"context"
	"sync"
	"testing"
	"time"

	cfg "postpilot/configs"
	"postpilot/internal/models"
)

func publishConfig() cfg.Config {
	return cfg.Config{Publish: cfg.Publish{MaxConcurrent: 4}}
}

func insertPending(t *testing.T, repo *fakeScheduleRepo, post models.ScheduledPost) int64 {
	t.Helper()
	if post.ScheduledTime.IsZero() {
		post.ScheduledTime = time.Now().Add(-time.Minute)
	}
	id, err := repo.Insert(context.Background(), &post)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	return id
}

func TestPublishTextOnlyPost(t *testing.T) {
	repo := newFakeScheduleRepo()
	staging := newFakeStaging()
	tw := &fakeTwitter{}
	p := NewPublisherService(publishConfig(), repo, staging, &fakeInstagram{}, tw)

	id := insertPending(t, repo, models.ScheduledPost{
		Platform:   models.PlatformTextOnly,
		AccountRef: "account_1",
		Caption:    "hello",
	})

	published, failed, err := p.PublishDuePosts(context.Background())
	if err != nil {
		t.Fatalf("PublishDuePosts: %v", err)
	}
	if published != 1 || failed != 0 {
		t.Fatalf("published=%d failed=%d, want 1/0", published, failed)
	}

	post, err := repo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if post.Status != models.PostStatusPosted {
		t.Errorf("status = %q, want posted", post.Status)
	}
	if post.PostedAt == nil {
		t.Error("PostedAt not set")
	}
	if len(tw.textCalls) != 1 || tw.textCalls[0] != "account_1" {
		t.Errorf("text calls = %v", tw.textCalls)
	}
}

func TestPublishVideoAttachedPassesMediaID(t *testing.T) {
	repo := newFakeScheduleRepo()
	staging := newFakeStaging()
	ref, _ := staging.Put(context.Background(), []byte("video-bytes"), "video/mp4")
	tw := &fakeTwitter{}
	p := NewPublisherService(publishConfig(), repo, staging, &fakeInstagram{}, tw)

	insertPending(t, repo, models.ScheduledPost{
		Platform:   models.PlatformVideoAttached,
		AccountRef: "account_1",
		Caption:    "with video",
		MediaRef:   ref,
	})

	published, failed, err := p.PublishDuePosts(context.Background())
	if err != nil {
		t.Fatalf("PublishDuePosts: %v", err)
	}
	if published != 1 || failed != 0 {
		t.Fatalf("published=%d failed=%d, want 1/0", published, failed)
	}
	if tw.uploads != 1 {
		t.Errorf("uploads = %d, want 1", tw.uploads)
	}
	if len(tw.mediaIDs) != 1 || len(tw.mediaIDs[0]) != 1 || tw.mediaIDs[0][0] != "media-99" {
		t.Errorf("media ids = %v, want [[media-99]]", tw.mediaIDs)
	}
	if staging.has(ref) {
		t.Error("staged blob not deleted after publish")
	}
}

func TestPublishFailureMarksFailedAndCleansBlob(t *testing.T) {
	repo := newFakeScheduleRepo()
	staging := newFakeStaging()
	ref, _ := staging.Put(context.Background(), []byte("video-bytes"), "video/mp4")
	ig := &fakeInstagram{err: &models.TimeoutError{Step: "container processing", Waited: 10 * time.Minute}}
	p := NewPublisherService(publishConfig(), repo, staging, ig, &fakeTwitter{})

	id := insertPending(t, repo, models.ScheduledPost{
		Platform:   models.PlatformInstagram,
		AccountRef: "khushal_page",
		Caption:    "reel",
		MediaRef:   ref,
	})

	published, failed, err := p.PublishDuePosts(context.Background())
	if err != nil {
		t.Fatalf("PublishDuePosts: %v", err)
	}
	if published != 0 || failed != 1 {
		t.Fatalf("published=%d failed=%d, want 0/1", published, failed)
	}

	post, _ := repo.GetByID(context.Background(), id)
	if post.Status != models.PostStatusFailed {
		t.Errorf("status = %q, want failed", post.Status)
	}
	if post.ErrorDetail == "" {
		t.Error("ErrorDetail not recorded")
	}
	if staging.has(ref) {
		t.Error("staged blob not deleted after failure")
	}
}

func TestPublishFailureDoesNotAbortRun(t *testing.T) {
	repo := newFakeScheduleRepo()
	staging := newFakeStaging()
	ref, _ := staging.Put(context.Background(), []byte("video-bytes"), "video/mp4")
	ig := &fakeInstagram{err: &models.ProtocolError{Step: "media publish", Message: "content rejected"}}
	tw := &fakeTwitter{}
	p := NewPublisherService(publishConfig(), repo, staging, ig, tw)

	// Same account so both run in one sequential chain; the earlier
	// failure must not stop the later post.
	insertPending(t, repo, models.ScheduledPost{
		Platform:      models.PlatformInstagram,
		AccountRef:    "account_1",
		Caption:       "first",
		MediaRef:      ref,
		ScheduledTime: time.Now().Add(-2 * time.Hour),
	})
	okID := insertPending(t, repo, models.ScheduledPost{
		Platform:      models.PlatformTextOnly,
		AccountRef:    "account_1",
		Caption:       "second",
		ScheduledTime: time.Now().Add(-time.Hour),
	})

	published, failed, err := p.PublishDuePosts(context.Background())
	if err != nil {
		t.Fatalf("PublishDuePosts: %v", err)
	}
	if published != 1 || failed != 1 {
		t.Fatalf("published=%d failed=%d, want 1/1", published, failed)
	}

	post, _ := repo.GetByID(context.Background(), okID)
	if post.Status != models.PostStatusPosted {
		t.Errorf("second post status = %q, want posted", post.Status)
	}
}

func TestOverlappingRunsClaimEachPostOnce(t *testing.T) {
	repo := newFakeScheduleRepo()
	staging := newFakeStaging()
	tw := &fakeTwitter{}
	p := NewPublisherService(publishConfig(), repo, staging, &fakeInstagram{}, tw)

	for i := 0; i < 5; i++ {
		insertPending(t, repo, models.ScheduledPost{
			Platform:   models.PlatformTextOnly,
			AccountRef: "account_1",
			Caption:    "hello",
		})
	}

	const runs = 8
	var wg sync.WaitGroup
	totals := make(chan int, runs)
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			published, _, err := p.PublishDuePosts(context.Background())
			if err != nil {
				t.Errorf("PublishDuePosts: %v", err)
			}
			totals <- published
		}()
	}
	wg.Wait()
	close(totals)

	sum := 0
	for n := range totals {
		sum += n
	}
	if sum != 5 {
		t.Errorf("total published across overlapping runs = %d, want 5", sum)
	}
	if len(tw.textCalls) != 5 {
		t.Errorf("remote post calls = %d, want 5 (no double publish)", len(tw.textCalls))
	}
}

func TestConcurrentClaimExactlyOneWinner(t *testing.T) {
	repo := newFakeScheduleRepo()
	id := insertPending(t, repo, models.ScheduledPost{
		Platform:   models.PlatformTextOnly,
		AccountRef: "account_1",
		Caption:    "hello",
	})

	const attempts = 32
	var wg sync.WaitGroup
	wins := make(chan bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.Claim(context.Background(), id)
			if err != nil {
				t.Errorf("Claim: %v", err)
			}
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for ok := range wins {
		if ok {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("claim winners = %d, want exactly 1", winners)
	}
}

func TestTerminalStatusesAreFinal(t *testing.T) {
	repo := newFakeScheduleRepo()
	ctx := context.Background()

	id := insertPending(t, repo, models.ScheduledPost{
		Platform:   models.PlatformTextOnly,
		AccountRef: "account_1",
		Caption:    "hello",
	})
	if ok, _ := repo.Claim(ctx, id); !ok {
		t.Fatal("claim failed")
	}
	if err := repo.MarkPosted(ctx, id, time.Now()); err != nil {
		t.Fatalf("MarkPosted: %v", err)
	}

	if ok, _ := repo.Claim(ctx, id); ok {
		t.Error("claimed a posted post")
	}
	if err := repo.MarkFailed(ctx, id, "late"); err != models.ErrInvalidState {
		t.Errorf("MarkFailed after posted = %v, want ErrInvalidState", err)
	}
	if err := repo.Reschedule(ctx, id, time.Now().Add(time.Hour)); err != models.ErrInvalidState {
		t.Errorf("Reschedule after posted = %v, want ErrInvalidState", err)
	}
}

func TestBlobDeleteIsIdempotent(t *testing.T) {
	staging := newFakeStaging()
	ref, _ := staging.Put(context.Background(), []byte("data"), "video/mp4")

	if err := staging.Delete(context.Background(), ref); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := staging.Delete(context.Background(), ref); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if staging.has(ref) {
		t.Error("blob still resolvable after delete")
	}
}
