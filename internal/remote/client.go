// Package remote talks to the GitHub contents API for the single shared document.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/MarcoPoloResearchLab/frostlog/internal/credentials"
	"github.com/MarcoPoloResearchLab/frostlog/internal/metrics"
)

const (
	DefaultBaseURL      = "https://api.github.com"
	DefaultDocumentPath = "public/data.json"

	defaultTimeout           = 15 * time.Second
	defaultRequestsPerMinute = 60
	defaultBreakerFailures   = 5
	defaultBreakerCooldown   = 30 * time.Second
	breakerName              = "github-contents"
	maxErrorBody             = 4 << 10
)

var (
	// ErrIncompleteConfig is returned before any request when token, owner or repo is missing.
	ErrIncompleteConfig = errors.New("remote: configuration incomplete")
	// ErrUnavailable is returned while the circuit breaker rejects calls.
	ErrUnavailable = errors.New("remote: temporarily unavailable")
	// ErrMalformedResponse is returned when GitHub answers 2xx with an unexpected body.
	ErrMalformedResponse = errors.New("remote: malformed response")
)

// StatusError is a non-2xx answer from GitHub.
type StatusError struct {
	Method     string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote: %s returned %d", e.Method, e.StatusCode)
	}
	return fmt.Sprintf("remote: %s returned %d: %s", e.Method, e.StatusCode, e.Message)
}

func statusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

// IsUnauthorized reports a 401 or 403 answer.
func IsUnauthorized(err error) bool {
	code := statusCode(err)
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

// IsNotFound reports a 404 answer.
func IsNotFound(err error) bool {
	return statusCode(err) == http.StatusNotFound
}

// IsConflict reports a stale-sha write. GitHub answers 409, or 422 when the sha does not match.
func IsConflict(err error) bool {
	code := statusCode(err)
	return code == http.StatusConflict || code == http.StatusUnprocessableEntity
}

// Document is the raw file as stored remotely.
type Document struct {
	Content string
	SHA     string
}

type Config struct {
	BaseURL           string
	DocumentPath      string
	Branch            string
	HTTPClient        *http.Client
	Timeout           time.Duration
	RequestsPerMinute int
	BreakerFailures   uint32
	BreakerCooldown   time.Duration
	Metrics           *metrics.Recorder
	Logger            *zap.Logger
}

// Client reads and writes one file through the contents API.
type Client struct {
	baseURL      string
	documentPath string
	branch       string
	httpClient   *http.Client
	limiter      *rate.Limiter
	breaker      *gobreaker.CircuitBreaker[response]
	metrics      *metrics.Recorder
	logger       *zap.Logger
}

type response struct {
	status int
	body   []byte
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	documentPath := strings.Trim(strings.TrimSpace(cfg.DocumentPath), "/")
	if documentPath == "" {
		documentPath = DefaultDocumentPath
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	perMinute := cfg.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = defaultRequestsPerMinute
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = defaultBreakerFailures
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = defaultBreakerCooldown
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	client := &Client{
		baseURL:      baseURL,
		documentPath: documentPath,
		branch:       strings.TrimSpace(cfg.Branch),
		httpClient:   httpClient,
		limiter:      rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 5),
		metrics:      cfg.Metrics,
		logger:       logger,
	}
	client.breaker = gobreaker.NewCircuitBreaker[response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// 4xx answers prove GitHub is reachable; only transport errors and 5xx/429 count.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			code := statusCode(err)
			return code >= 400 && code < 500 && code != http.StatusTooManyRequests
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("remote circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			client.metrics.SetBreakerState(name, breakerStateValue(to))
		},
	})
	client.metrics.SetBreakerState(breakerName, 0)
	return client
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// DocumentPath returns the repository path of the shared document.
func (c *Client) DocumentPath() string {
	return c.documentPath
}

type contentResponse struct {
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// GetDocument fetches the file and its blob SHA, bypassing HTTP caches.
func (c *Client) GetDocument(ctx context.Context, target credentials.RemoteConfig) (Document, error) {
	endpoint, err := c.contentsURL(target)
	if err != nil {
		return Document{}, err
	}
	query := endpoint.Query()
	if c.branch != "" {
		query.Set("ref", c.branch)
	}
	query.Set("nocache", uuid.NewString())
	endpoint.RawQuery = query.Encode()

	result, err := c.do(ctx, target, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return Document{}, err
	}

	var payload contentResponse
	if err := json.Unmarshal(result.body, &payload); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if payload.SHA == "" {
		return Document{}, fmt.Errorf("%w: missing sha", ErrMalformedResponse)
	}
	if payload.Encoding != "" && payload.Encoding != "base64" {
		return Document{}, fmt.Errorf("%w: unsupported encoding %q", ErrMalformedResponse, payload.Encoding)
	}
	return Document{Content: payload.Content, SHA: payload.SHA}, nil
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

type putResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
}

// PutDocument writes content. An empty sha creates the file; otherwise sha is the precondition.
func (c *Client) PutDocument(ctx context.Context, target credentials.RemoteConfig, content, message, sha string) (string, error) {
	endpoint, err := c.contentsURL(target)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(putRequest{Message: message, Content: content, SHA: sha, Branch: c.branch})
	if err != nil {
		return "", fmt.Errorf("remote: encode request: %w", err)
	}

	result, err := c.do(ctx, target, http.MethodPut, endpoint.String(), body)
	if err != nil {
		return "", err
	}
	var payload putResponse
	if err := json.Unmarshal(result.body, &payload); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if payload.Content.SHA == "" {
		return "", fmt.Errorf("%w: missing sha", ErrMalformedResponse)
	}
	return payload.Content.SHA, nil
}

func (c *Client) contentsURL(target credentials.RemoteConfig) (*url.URL, error) {
	if !target.Complete() {
		return nil, ErrIncompleteConfig
	}
	raw := fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		c.baseURL,
		url.PathEscape(strings.TrimSpace(target.Owner)),
		url.PathEscape(strings.TrimSpace(target.Repo)),
		escapePath(c.documentPath))
	return url.Parse(raw)
}

func escapePath(path string) string {
	segments := strings.Split(path, "/")
	for index, segment := range segments {
		segments[index] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

type errorResponse struct {
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, target credentials.RemoteConfig, method, endpoint string, body []byte) (response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return response{}, fmt.Errorf("remote: rate limit wait: %w", err)
	}

	result, err := c.breaker.Execute(func() (response, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		request, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return response{}, fmt.Errorf("remote: build request: %w", err)
		}
		request.Header.Set("Accept", "application/vnd.github+json")
		request.Header.Set("X-GitHub-Api-Version", "2022-11-28")
		request.Header.Set("Authorization", "Bearer "+strings.TrimSpace(target.Token))
		request.Header.Set("Cache-Control", "no-cache")
		request.Header.Set("Pragma", "no-cache")
		if body != nil {
			request.Header.Set("Content-Type", "application/json")
		}

		started := time.Now()
		httpResponse, err := c.httpClient.Do(request)
		if err != nil {
			c.metrics.ObserveRemote(method, 0, time.Since(started))
			return response{}, fmt.Errorf("remote: %s: %w", method, err)
		}
		defer httpResponse.Body.Close()
		c.metrics.ObserveRemote(method, httpResponse.StatusCode, time.Since(started))

		payload, err := io.ReadAll(httpResponse.Body)
		if err != nil {
			return response{}, fmt.Errorf("remote: read body: %w", err)
		}
		if httpResponse.StatusCode < 200 || httpResponse.StatusCode >= 300 {
			var decoded errorResponse
			if len(payload) > 0 && len(payload) <= maxErrorBody {
				_ = json.Unmarshal(payload, &decoded)
			}
			return response{}, &StatusError{Method: method, StatusCode: httpResponse.StatusCode, Message: decoded.Message}
		}
		return response{status: httpResponse.StatusCode, body: payload}, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.logger.Warn("remote request rejected by circuit breaker", zap.String("method", method))
		return response{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return result, err
}
