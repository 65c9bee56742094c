package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	cfg "postpilot/configs"
	"postpilot/internal/models"
)

// fakeGraph simulates the container upload API: create, binary upload,
// status polling, publish and permalink lookup.
type fakeGraph struct {
	mu            sync.Mutex
	statusCodes   []string // returned by successive status polls, last repeats
	polls         int
	uploadedBytes int
	published     bool
	createStatus  int
}

func (g *fakeGraph) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("POST /graph/biz-1/media", func(w http.ResponseWriter, r *http.Request) {
		if g.createStatus != 0 {
			w.WriteHeader(g.createStatus)
			json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "bad request"}})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "container-1"})
	})

	mux.HandleFunc("POST /rupload/container-1", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		g.mu.Lock()
		g.uploadedBytes = len(body)
		g.mu.Unlock()
		if r.Header.Get("file_size") != fmt.Sprint(len(body)) {
			t.Errorf("file_size header = %q, body length %d", r.Header.Get("file_size"), len(body))
		}
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("GET /graph/container-1", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		idx := g.polls
		if idx >= len(g.statusCodes) {
			idx = len(g.statusCodes) - 1
		}
		status := g.statusCodes[idx]
		g.polls++
		g.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"status_code": status})
	})

	mux.HandleFunc("POST /graph/biz-1/media_publish", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.published = true
		g.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"id": "media-1"})
	})

	mux.HandleFunc("GET /graph/media-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"permalink": "https://instagram.test/reel/abc"})
	})

	return mux
}

func newInstagramUnderTest(t *testing.T, g *fakeGraph, maxPolls uint64) InstagramService {
	t.Helper()
	srv := httptest.NewServer(g.handler(t))
	t.Cleanup(srv.Close)

	c := cfg.Config{
		Instagram: cfg.Instagram{
			GraphBaseURL:  srv.URL + "/graph",
			UploadBaseURL: srv.URL + "/rupload",
			AccessToken:   "token-1",
			Accounts:      map[string]string{"khushal_page": "biz-1"},
		},
		Publish: cfg.Publish{
			TransientRetries: 2,
			PollInterval:     time.Millisecond,
			MaxPolls:         maxPolls,
		},
	}
	return NewInstagramService(c, NewStaticCredentials(c))
}

func TestPublishReelFullPipeline(t *testing.T) {
	g := &fakeGraph{statusCodes: []string{"IN_PROGRESS", "IN_PROGRESS", "FINISHED"}}
	s := newInstagramUnderTest(t, g, 10)

	video := []byte("reel-bytes")
	permalink, err := s.PublishReel(context.Background(), "khushal_page", "caption", video)
	if err != nil {
		t.Fatalf("PublishReel: %v", err)
	}
	if permalink != "https://instagram.test/reel/abc" {
		t.Errorf("permalink = %q", permalink)
	}
	if g.uploadedBytes != len(video) {
		t.Errorf("uploaded %d bytes, want %d", g.uploadedBytes, len(video))
	}
	if !g.published {
		t.Error("publish step never called")
	}
	if g.polls != 3 {
		t.Errorf("polls = %d, want 3", g.polls)
	}
}

func TestPublishReelProcessingErrorIsTerminal(t *testing.T) {
	g := &fakeGraph{statusCodes: []string{"IN_PROGRESS", "ERROR"}}
	s := newInstagramUnderTest(t, g, 10)

	_, err := s.PublishReel(context.Background(), "khushal_page", "caption", []byte("v"))

	var pe *models.ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("PublishReel = %v, want ProtocolError", err)
	}
	if g.published {
		t.Error("published after processing error")
	}
}

func TestPublishReelNeverFinishingTimesOut(t *testing.T) {
	g := &fakeGraph{statusCodes: []string{"IN_PROGRESS"}}
	s := newInstagramUnderTest(t, g, 5)

	start := time.Now()
	_, err := s.PublishReel(context.Background(), "khushal_page", "caption", []byte("v"))
	if time.Since(start) > 5*time.Second {
		t.Fatal("poll loop did not respect its budget")
	}

	var te *models.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("PublishReel = %v, want TimeoutError", err)
	}
	if g.polls != 5 {
		t.Errorf("polls = %d, want 5", g.polls)
	}
	if g.published {
		t.Error("published after timeout")
	}
}

func TestPublishReelContainerRejectionIsTerminal(t *testing.T) {
	g := &fakeGraph{createStatus: http.StatusBadRequest}
	s := newInstagramUnderTest(t, g, 10)

	_, err := s.PublishReel(context.Background(), "khushal_page", "caption", []byte("v"))

	var pe *models.ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("PublishReel = %v, want ProtocolError", err)
	}
}

func TestPublishReelUnknownAccount(t *testing.T) {
	g := &fakeGraph{statusCodes: []string{"FINISHED"}}
	s := newInstagramUnderTest(t, g, 10)

	if _, err := s.PublishReel(context.Background(), "nobody", "caption", []byte("v")); err == nil {
		t.Fatal("expected error for unknown account ref")
	}
}
