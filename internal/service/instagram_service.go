package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	cfg "postpilot/configs"
	"postpilot/internal/models"
	"postpilot/internal/transfer"
	"postpilot/pkg/retry"
)

// InstagramService drives the resumable single-shot reel upload: create a
// container, stream the full binary, poll processing, publish, fetch the
// permalink. Any step past its retry budget fails the post terminally.
type InstagramService interface {
	PublishReel(ctx context.Context, accountRef, caption string, video []byte) (string, error)
}

type instagramService struct {
	graphBaseURL  string
	uploadBaseURL string
	creds         CredentialProvider
	client        *http.Client
	retries       uint64
	pollInterval  time.Duration
	maxPolls      uint64
}

func NewInstagramService(c cfg.Config, creds CredentialProvider) InstagramService {
	return &instagramService{
		graphBaseURL:  c.Instagram.GraphBaseURL,
		uploadBaseURL: c.Instagram.UploadBaseURL,
		creds:         creds,
		client:        &http.Client{Timeout: 10 * time.Minute},
		retries:       c.Publish.TransientRetries,
		pollInterval:  c.Publish.PollInterval,
		maxPolls:      c.Publish.MaxPolls,
	}
}

func (s *instagramService) PublishReel(ctx context.Context, accountRef, caption string, video []byte) (string, error) {
	acc, err := s.creds.Instagram(accountRef)
	if err != nil {
		return "", err
	}
	token, err := acc.Token.Token()
	if err != nil {
		return "", fmt.Errorf("resolving instagram token: %w", err)
	}
	accessToken := token.AccessToken

	containerID, err := s.createContainer(ctx, acc.BusinessAccountID, caption, accessToken)
	if err != nil {
		return "", err
	}

	if err := s.uploadBinary(ctx, containerID, accessToken, video); err != nil {
		return "", err
	}

	if err := s.awaitProcessing(ctx, containerID, accessToken); err != nil {
		return "", err
	}

	mediaID, err := s.publish(ctx, acc.BusinessAccountID, containerID, accessToken)
	if err != nil {
		return "", err
	}

	permalink, err := s.fetchPermalink(ctx, mediaID, accessToken)
	if err != nil {
		return "", err
	}

	log.Printf("Published reel %s for %s: %s", mediaID, accountRef, permalink)
	return permalink, nil
}

func (s *instagramService) createContainer(ctx context.Context, businessID, caption, accessToken string) (string, error) {
	params := url.Values{}
	params.Set("media_type", "REELS")
	params.Set("upload_type", "resumable")
	params.Set("caption", caption)
	params.Set("access_token", accessToken)
	reqURL := fmt.Sprintf("%s/%s/media?%s", s.graphBaseURL, businessID, params.Encode())

	var containerID string
	err := retry.Do(ctx, s.retries, func() error {
		var result transfer.ContainerCreateResponse
		if err := s.postJSON(ctx, "container create", reqURL, nil, &result); err != nil {
			return err
		}
		if result.ID == "" {
			return graphReject("container create", result.Error)
		}
		containerID = result.ID
		return nil
	})
	return containerID, err
}

func (s *instagramService) uploadBinary(ctx context.Context, containerID, accessToken string, video []byte) error {
	reqURL := fmt.Sprintf("%s/%s", s.uploadBaseURL, containerID)

	return retry.Do(ctx, s.retries, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(video))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "OAuth "+accessToken)
		req.Header.Set("offset", "0")
		req.Header.Set("file_size", strconv.Itoa(len(video)))
		req.Header.Set("Content-Type", "application/octet-stream")

		resp, err := s.client.Do(req)
		if err != nil {
			return &models.TransientError{Step: "binary upload", Err: err}
		}
		defer resp.Body.Close()

		return checkStatus("binary upload", resp)
	})
}

// awaitProcessing polls the container until FINISHED. ERROR and EXPIRED are
// terminal; exceeding the poll budget fails the post rather than hanging.
func (s *instagramService) awaitProcessing(ctx context.Context, containerID, accessToken string) error {
	params := url.Values{}
	params.Set("fields", "status_code,status")
	params.Set("access_token", accessToken)
	reqURL := fmt.Sprintf("%s/%s?%s", s.graphBaseURL, containerID, params.Encode())

	return retry.Poll(ctx, "container processing", s.pollInterval, s.maxPolls, func() error {
		var result transfer.ContainerStatusResponse
		if err := s.getJSON(ctx, "container status", reqURL, &result); err != nil {
			return err
		}
		switch result.StatusCode {
		case transfer.ContainerStatusFinished:
			return nil
		case transfer.ContainerStatusError, transfer.ContainerStatusExpired:
			return &models.ProtocolError{Step: "container processing", Message: result.StatusCode + " " + result.Status}
		default:
			return retry.ErrNotReady
		}
	})
}

func (s *instagramService) publish(ctx context.Context, businessID, containerID, accessToken string) (string, error) {
	params := url.Values{}
	params.Set("creation_id", containerID)
	params.Set("access_token", accessToken)
	reqURL := fmt.Sprintf("%s/%s/media_publish?%s", s.graphBaseURL, businessID, params.Encode())

	var mediaID string
	err := retry.Do(ctx, s.retries, func() error {
		var result transfer.MediaPublishResponse
		if err := s.postJSON(ctx, "media publish", reqURL, nil, &result); err != nil {
			return err
		}
		if result.ID == "" {
			return graphReject("media publish", result.Error)
		}
		mediaID = result.ID
		return nil
	})
	return mediaID, err
}

func (s *instagramService) fetchPermalink(ctx context.Context, mediaID, accessToken string) (string, error) {
	params := url.Values{}
	params.Set("fields", "permalink")
	params.Set("access_token", accessToken)
	reqURL := fmt.Sprintf("%s/%s?%s", s.graphBaseURL, mediaID, params.Encode())

	var permalink string
	err := retry.Do(ctx, s.retries, func() error {
		var result transfer.PermalinkResponse
		if err := s.getJSON(ctx, "permalink fetch", reqURL, &result); err != nil {
			return err
		}
		if result.Permalink == "" {
			return graphReject("permalink fetch", result.Error)
		}
		permalink = result.Permalink
		return nil
	})
	return permalink, err
}

func (s *instagramService) postJSON(ctx context.Context, step, reqURL string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return s.doJSON(step, req, out)
}

func (s *instagramService) getJSON(ctx context.Context, step, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	return s.doJSON(step, req, out)
}

func (s *instagramService) doJSON(step string, req *http.Request, out any) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return &models.TransientError{Step: step, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return &models.TransientError{Step: step, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &models.TransientError{Step: step, Err: err}
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", step, err)
	}
	return nil
}

func checkStatus(step string, resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= http.StatusInternalServerError {
		return &models.TransientError{Step: step, Err: fmt.Errorf("status %d: %s", resp.StatusCode, body)}
	}
	return &models.ProtocolError{Step: step, Message: fmt.Sprintf("status %d: %s", resp.StatusCode, body)}
}

func graphReject(step string, graphErr *transfer.GraphError) error {
	if graphErr != nil {
		return &models.ProtocolError{Step: step, Message: graphErr.Message}
	}
	return &models.ProtocolError{Step: step, Message: "no id in response"}
}
