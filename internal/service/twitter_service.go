package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dghubble/oauth1"

	cfg "postpilot/configs"
	"postpilot/internal/models"
	"postpilot/internal/transfer"
	"postpilot/pkg/retry"
)

// TwitterService posts text tweets and drives the chunked media upload:
// INIT with the declared size, APPEND 4 MiB segments in order, FINALIZE,
// then poll processing until it succeeds or the budget runs out.
type TwitterService interface {
	PostText(ctx context.Context, accountRef, text string, mediaIDs ...string) (string, error)
	UploadVideo(ctx context.Context, accountRef string, video []byte) (string, error)
}

type twitterService struct {
	apiBaseURL     string
	mediaUploadURL string
	creds          CredentialProvider
	chunkSize      int
	retries        uint64
	pollInterval   time.Duration
	maxPolls       uint64
}

func NewTwitterService(c cfg.Config, creds CredentialProvider) TwitterService {
	return &twitterService{
		apiBaseURL:     c.Twitter.APIBaseURL,
		mediaUploadURL: c.Twitter.MediaUploadURL,
		creds:          creds,
		chunkSize:      c.Publish.ChunkSize,
		retries:        c.Publish.TransientRetries,
		pollInterval:   c.Publish.PollInterval,
		maxPolls:       c.Publish.MaxPolls,
	}
}

// signedClient builds an OAuth 1.0a signing HTTP client for one account.
func (s *twitterService) signedClient(accountRef string) (*http.Client, error) {
	acc, err := s.creds.Twitter(accountRef)
	if err != nil {
		return nil, err
	}
	oauthCfg := oauth1.NewConfig(acc.ConsumerKey, acc.ConsumerSecret)
	client := oauthCfg.Client(oauth1.NoContext, oauth1.NewToken(acc.AccessToken, acc.AccessSecret))
	client.Timeout = 2 * time.Minute
	return client, nil
}

func (s *twitterService) PostText(ctx context.Context, accountRef, text string, mediaIDs ...string) (string, error) {
	client, err := s.signedClient(accountRef)
	if err != nil {
		return "", err
	}

	payload := transfer.TweetRequest{Text: text}
	if len(mediaIDs) > 0 {
		payload.Media = &transfer.TweetMedia{MediaIDs: mediaIDs}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	var tweetID string
	err = retry.Do(ctx, s.retries, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiBaseURL+"/tweets", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return &models.TransientError{Step: "tweet create", Err: err}
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return &models.TransientError{Step: "tweet create", Err: err}
		}
		if resp.StatusCode != http.StatusCreated {
			return tweetReject(resp.StatusCode, respBody)
		}

		var result transfer.TweetResponse
		if err := json.Unmarshal(respBody, &result); err != nil {
			return fmt.Errorf("tweet create: decoding response: %w", err)
		}
		tweetID = result.Data.ID
		return nil
	})
	if err != nil {
		return "", err
	}

	log.Printf("Posted tweet %s for %s", tweetID, accountRef)
	return tweetID, nil
}

func (s *twitterService) UploadVideo(ctx context.Context, accountRef string, video []byte) (string, error) {
	client, err := s.signedClient(accountRef)
	if err != nil {
		return "", err
	}

	mediaID, err := s.initUpload(ctx, client, len(video))
	if err != nil {
		return "", err
	}

	if err := s.appendChunks(ctx, client, mediaID, video); err != nil {
		return "", err
	}

	finalized, err := s.finalize(ctx, client, mediaID)
	if err != nil {
		return "", err
	}

	// FINALIZE may complete synchronously; only poll when the remote side
	// reports asynchronous processing.
	if finalized.ProcessingInfo != nil {
		if err := s.awaitProcessing(ctx, client, mediaID); err != nil {
			return "", err
		}
	}

	return mediaID, nil
}

func (s *twitterService) initUpload(ctx context.Context, client *http.Client, totalBytes int) (string, error) {
	form := url.Values{}
	form.Set("command", "INIT")
	form.Set("media_type", "video/mp4")
	form.Set("total_bytes", strconv.Itoa(totalBytes))
	form.Set("media_category", "tweet_video")

	var mediaID string
	err := retry.Do(ctx, s.retries, func() error {
		result, err := s.postForm(ctx, client, "media INIT", form)
		if err != nil {
			return err
		}
		if result.MediaIDString == "" {
			return &models.ProtocolError{Step: "media INIT", Message: "no media id in response"}
		}
		mediaID = result.MediaIDString
		return nil
	})
	return mediaID, err
}

// appendChunks uploads fixed-size segments in increasing index order. The
// remote applies them by index, so segments are never parallelized within
// one media id. Each segment has its own bounded retry before the whole
// upload aborts.
func (s *twitterService) appendChunks(ctx context.Context, client *http.Client, mediaID string, video []byte) error {
	for segment := 0; segment*s.chunkSize < len(video); segment++ {
		start := segment * s.chunkSize
		end := start + s.chunkSize
		if end > len(video) {
			end = len(video)
		}
		chunk := video[start:end]

		err := retry.Do(ctx, s.retries, func() error {
			return s.appendChunk(ctx, client, mediaID, segment, chunk)
		})
		if err != nil {
			return fmt.Errorf("media APPEND segment %d: %w", segment, err)
		}
	}
	return nil
}

func (s *twitterService) appendChunk(ctx context.Context, client *http.Client, mediaID string, segment int, chunk []byte) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("command", "APPEND"); err != nil {
		return err
	}
	if err := w.WriteField("media_id", mediaID); err != nil {
		return err
	}
	if err := w.WriteField("segment_index", strconv.Itoa(segment)); err != nil {
		return err
	}
	part, err := w.CreateFormFile("media", "media")
	if err != nil {
		return err
	}
	if _, err := part.Write(chunk); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.mediaUploadURL, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return &models.TransientError{Step: "media APPEND", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= http.StatusInternalServerError {
			return &models.TransientError{Step: "media APPEND", Err: fmt.Errorf("status %d: %s", resp.StatusCode, body)}
		}
		return &models.ProtocolError{Step: "media APPEND", Message: fmt.Sprintf("status %d: %s", resp.StatusCode, body)}
	}
	return nil
}

func (s *twitterService) finalize(ctx context.Context, client *http.Client, mediaID string) (*transfer.MediaUploadResponse, error) {
	form := url.Values{}
	form.Set("command", "FINALIZE")
	form.Set("media_id", mediaID)

	var result *transfer.MediaUploadResponse
	err := retry.Do(ctx, s.retries, func() error {
		r, err := s.postForm(ctx, client, "media FINALIZE", form)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

func (s *twitterService) awaitProcessing(ctx context.Context, client *http.Client, mediaID string) error {
	params := url.Values{}
	params.Set("command", "STATUS")
	params.Set("media_id", mediaID)
	reqURL := s.mediaUploadURL + "?" + params.Encode()

	return retry.Poll(ctx, "media processing", s.pollInterval, s.maxPolls, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return &models.TransientError{Step: "media STATUS", Err: err}
		}
		defer resp.Body.Close()

		var result transfer.MediaUploadResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return &models.TransientError{Step: "media STATUS", Err: err}
		}

		if result.ProcessingInfo == nil {
			return nil
		}
		switch result.ProcessingInfo.State {
		case transfer.MediaStateSucceeded:
			return nil
		case transfer.MediaStateFailed:
			msg := "processing failed"
			if result.ProcessingInfo.Error != nil {
				msg = result.ProcessingInfo.Error.Message
			}
			return &models.ProtocolError{Step: "media processing", Message: msg}
		default:
			return retry.ErrNotReady
		}
	})
}

func (s *twitterService) postForm(ctx context.Context, client *http.Client, step string, form url.Values) (*transfer.MediaUploadResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.mediaUploadURL, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &models.TransientError{Step: step, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.TransientError{Step: step, Err: err}
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, &models.TransientError{Step: step, Err: fmt.Errorf("status %d: %s", resp.StatusCode, body)}
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, &models.ProtocolError{Step: step, Message: fmt.Sprintf("status %d: %s", resp.StatusCode, body)}
	}

	var result transfer.MediaUploadResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%s: decoding response: %w", step, err)
	}
	return &result, nil
}

func tweetReject(status int, body []byte) error {
	if status >= http.StatusInternalServerError {
		return &models.TransientError{Step: "tweet create", Err: fmt.Errorf("status %d: %s", status, body)}
	}
	var apiErr transfer.TwitterErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Detail != "" {
		return &models.ProtocolError{Step: "tweet create", Message: apiErr.Detail}
	}
	return &models.ProtocolError{Step: "tweet create", Message: fmt.Sprintf("status %d: %s", status, body)}
}
