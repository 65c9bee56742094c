package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"postpilot/internal/models"
)

// fakeScheduleRepo is an in-memory stand-in for the Postgres store with
// the same transition semantics, including the atomic claim.
type fakeScheduleRepo struct {
	mu     sync.Mutex
	nextID int64
	posts  map[int64]*models.ScheduledPost
}

func newFakeScheduleRepo() *fakeScheduleRepo {
	return &fakeScheduleRepo{posts: make(map[int64]*models.ScheduledPost)}
}

func (r *fakeScheduleRepo) Insert(ctx context.Context, post *models.ScheduledPost) (int64, error) {
	if err := post.Validate(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	stored := *post
	stored.ID = r.nextID
	stored.Status = models.PostStatusPending
	stored.CreatedAt = time.Now()
	r.posts[stored.ID] = &stored
	return stored.ID, nil
}

func (r *fakeScheduleRepo) GetByID(ctx context.Context, id int64) (*models.ScheduledPost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.posts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *post
	return &copied, nil
}

func (r *fakeScheduleRepo) GetDue(ctx context.Context, now time.Time) ([]*models.ScheduledPost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*models.ScheduledPost
	for _, post := range r.posts {
		if post.Status == models.PostStatusPending && !post.ScheduledTime.After(now) {
			copied := *post
			due = append(due, &copied)
		}
	}
	for i := 0; i < len(due); i++ {
		for j := i + 1; j < len(due); j++ {
			if due[j].ScheduledTime.Before(due[i].ScheduledTime) {
				due[i], due[j] = due[j], due[i]
			}
		}
	}
	return due, nil
}

func (r *fakeScheduleRepo) Claim(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.posts[id]
	if !ok || post.Status != models.PostStatusPending {
		return false, nil
	}
	post.Status = models.PostStatusProcessing
	return true, nil
}

func (r *fakeScheduleRepo) MarkPosted(ctx context.Context, id int64, postedAt time.Time) error {
	return r.transition(id, models.PostStatusProcessing, func(p *models.ScheduledPost) {
		p.Status = models.PostStatusPosted
		p.PostedAt = &postedAt
	})
}

func (r *fakeScheduleRepo) MarkFailed(ctx context.Context, id int64, errorDetail string) error {
	if len(errorDetail) > 500 {
		errorDetail = errorDetail[:500]
	}
	return r.transition(id, models.PostStatusProcessing, func(p *models.ScheduledPost) {
		p.Status = models.PostStatusFailed
		p.ErrorDetail = errorDetail
	})
}

func (r *fakeScheduleRepo) Reschedule(ctx context.Context, id int64, newTime time.Time) error {
	return r.transition(id, models.PostStatusPending, func(p *models.ScheduledPost) {
		p.ScheduledTime = newTime
	})
}

func (r *fakeScheduleRepo) Retry(ctx context.Context, id int64, newTime time.Time) error {
	return r.transition(id, models.PostStatusFailed, func(p *models.ScheduledPost) {
		p.Status = models.PostStatusPending
		p.ErrorDetail = ""
		p.ScheduledTime = newTime
	})
}

func (r *fakeScheduleRepo) Cancel(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.posts[id]
	if !ok || post.Status != models.PostStatusPending {
		return models.ErrInvalidState
	}
	delete(r.posts, id)
	return nil
}

func (r *fakeScheduleRepo) ListByStatus(ctx context.Context, status string) ([]*models.ScheduledPost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var posts []*models.ScheduledPost
	for _, post := range r.posts {
		if status == "" || post.Status == status {
			copied := *post
			posts = append(posts, &copied)
		}
	}
	return posts, nil
}

func (r *fakeScheduleRepo) LastScheduledTime(ctx context.Context, accountRef string) (*time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var tail *time.Time
	for _, post := range r.posts {
		if post.AccountRef != accountRef {
			continue
		}
		if post.Status != models.PostStatusPending && post.Status != models.PostStatusProcessing {
			continue
		}
		if tail == nil || post.ScheduledTime.After(*tail) {
			t := post.ScheduledTime
			tail = &t
		}
	}
	return tail, nil
}

func (r *fakeScheduleRepo) transition(id int64, requiredStatus string, apply func(*models.ScheduledPost)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.posts[id]
	if !ok || post.Status != requiredStatus {
		return models.ErrInvalidState
	}
	apply(post)
	return nil
}

// fakeStaging stores blobs in memory and counts deletes per ref.
type fakeStaging struct {
	mu      sync.Mutex
	nextKey int
	blobs   map[string][]byte
	deletes map[string]int
}

func newFakeStaging() *fakeStaging {
	return &fakeStaging{blobs: make(map[string][]byte), deletes: make(map[string]int)}
}

func (s *fakeStaging) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextKey++
	ref := fmt.Sprintf("blob-%d", s.nextKey)
	s.blobs[ref] = data
	return ref, nil
}

func (s *fakeStaging) Get(ctx context.Context, ref string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[ref]
	if !ok {
		return nil, fmt.Errorf("no such blob %q", ref)
	}
	return data, nil
}

func (s *fakeStaging) Delete(ctx context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, ref)
	s.deletes[ref]++
	return nil
}

func (s *fakeStaging) PublicURL(ref string) string { return "https://staging.test/" + ref }

func (s *fakeStaging) has(ref string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[ref]
	return ok
}

// fakeInstagram and fakeTwitter record calls and return canned results.
type fakeInstagram struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeInstagram) PublishReel(ctx context.Context, accountRef, caption string, video []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, accountRef)
	if f.err != nil {
		return "", f.err
	}
	return "https://instagram.test/p/1", nil
}

type fakeTwitter struct {
	mu        sync.Mutex
	textCalls []string
	mediaIDs  [][]string
	uploads   int
	uploadErr error
	postErr   error
}

func (f *fakeTwitter) PostText(ctx context.Context, accountRef, text string, mediaIDs ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return "", f.postErr
	}
	f.textCalls = append(f.textCalls, accountRef)
	f.mediaIDs = append(f.mediaIDs, mediaIDs)
	return "tweet-1", nil
}

func (f *fakeTwitter) UploadVideo(ctx context.Context, accountRef string, video []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploads++
	return "media-99", nil
}
