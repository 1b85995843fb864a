package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// sentinel errors of the remote boundary
var (
	// ErrUnreachable network failure, timeout or server fault. Transient,
	// retried on the next flush trigger
	ErrUnreachable = errors.New("remote progress service unreachable")
	// ErrUnauthorized the identity was rejected
	ErrUnauthorized = errors.New("remote progress service rejected credentials")
	// ErrConflict the completion fact already exists remotely, equivalent to
	// success for the caller
	ErrConflict = errors.New("completion already recorded")
)

// RejectionError structural rejection, the submission will never succeed and
// must not be retried
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("completion rejected: %s", e.Reason)
}

// ProgressService authoritative store of completion facts, reachable only
// when online and authenticated
type ProgressService interface {
	FetchCompletedLessonIDs(ctx context.Context, userID string) (map[string]struct{}, error)
	SubmitCompletion(ctx context.Context, userID string, lessonID string) error
}

// HTTPClient ProgressService implementation over the progress REST API
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

var _ ProgressService = &HTTPClient{}

// NewHTTPClient create a progress service client
func NewHTTPClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type completedLessonsResponse struct {
	LessonIDs []string `json:"lessonIds"`
}

type completionRequest struct {
	UserID   string `json:"userId"`
	LessonID string `json:"lessonId"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// FetchCompletedLessonIDs implement ProgressService
func (hc *HTTPClient) FetchCompletedLessonIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	endpoint := fmt.Sprintf("%s/api/users/%s/completions", hc.baseURL, url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	res, err := hc.client.Do(req)
	if err != nil {
		hc.logger.Debug("Fetch completions failed", zap.String("user.id", userID), zap.Error(err))
		return nil, ErrUnreachable
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusOK:
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	default:
		hc.logger.Debug("Fetch completions failed", zap.String("user.id", userID),
			zap.Int("http.response.status_code", res.StatusCode))
		return nil, ErrUnreachable
	}

	var body completedLessonsResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, ErrUnreachable
	}
	completed := make(map[string]struct{}, len(body.LessonIDs))
	for _, id := range body.LessonIDs {
		completed[id] = struct{}{}
	}
	return completed, nil
}

// SubmitCompletion implement ProgressService. A duplicate-key conflict from
// the service is reported as ErrConflict, the fact is durably recorded either
// way
func (hc *HTTPClient) SubmitCompletion(ctx context.Context, userID string, lessonID string) error {
	payload, err := json.Marshal(&completionRequest{UserID: userID, LessonID: lessonID})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hc.baseURL+"/api/complete-lesson", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := hc.client.Do(req)
	if err != nil {
		hc.logger.Debug("Submit completion failed", zap.String("lesson.id", lessonID), zap.Error(err))
		return ErrUnreachable
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	case http.StatusConflict:
		return ErrConflict
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return &RejectionError{Reason: readErrorReason(res)}
	default:
		hc.logger.Debug("Submit completion failed", zap.String("lesson.id", lessonID),
			zap.Int("http.response.status_code", res.StatusCode))
		return ErrUnreachable
	}
}

// Probe satisfy the connectivity prober, a cheap reachability check against
// the service health endpoint
func (hc *HTTPClient) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hc.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	res, err := hc.client.Do(req)
	if err != nil {
		return ErrUnreachable
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)

	if res.StatusCode >= http.StatusInternalServerError {
		return ErrUnreachable
	}
	return nil
}

func readErrorReason(res *http.Response) string {
	var body errorResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err == nil && body.Error != "" {
		return body.Error
	}
	return http.StatusText(res.StatusCode)
}
