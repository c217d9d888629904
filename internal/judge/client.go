package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dailyjudge/apiserver/config"
	"github.com/dailyjudge/apiserver/internal/metrics"
	"github.com/dailyjudge/apiserver/types"
	"github.com/google/uuid"
)

const (
	defaultPollInterval   = 500 * time.Millisecond
	defaultMaxAttempts    = 20
	defaultRequestTimeout = 10 * time.Second
	maxErrorBodyBytes     = 4 << 10
)

var (
	// ErrUnsupportedLanguage is returned before any network call when the
	// language has no judge language id.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrConfiguration is returned when no judge endpoint or credentials are configured.
	ErrConfiguration = errors.New("judge service is not configured")

	// ErrExecutionTimeout is returned when polling exhausts without a terminal status.
	ErrExecutionTimeout = errors.New("timed out waiting for judge verdict")

	// ErrUnknownStatus is wrapped in an UpstreamError when the judge reports a
	// status id outside the status table.
	ErrUnknownStatus = errors.New("unknown judge status")
)

// UpstreamError wraps a failed exchange with the judge service.
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("judge %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("judge %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("judge %s: status %d: %s", e.Op, e.StatusCode, e.Body)
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Submission is the payload dispatched to the judge.
type Submission struct {
	Language       types.Language
	SourceCode     string
	Stdin          string
	ExpectedOutput string
}

// Status is the judge status object.
type Status struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

// Result is a single poll response from the judge.
type Result struct {
	Status         Status
	Stdout         string
	Stderr         string
	CompileOutput  string
	Message        string
	ExpectedOutput string
	TimeMs         int64
	MemoryKb       int64

	// Accepted is the judge-side correctness flag: status Accepted and the
	// program output matches the expected output echoed back by the judge.
	Accepted bool
}

// Terminal reports whether the result carries a final status.
func (r Result) Terminal() bool {
	return !InProgress(r.Status.ID)
}

// Client talks to the external code-execution service.
type Client struct {
	baseURL      string
	apiKey       string
	host         string
	httpClient   *http.Client
	pollInterval time.Duration
	maxAttempts  int
	sleep        func(ctx context.Context, d time.Duration) error
}

// NewClient constructs a judge client from config.
func NewClient(cfg config.JudgeConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	attempts := cfg.MaxPollAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}

	return &Client{
		baseURL:      strings.TrimRight(strings.TrimSpace(cfg.URL), "/"),
		apiKey:       strings.TrimSpace(cfg.APIKey),
		host:         strings.TrimSpace(cfg.Host),
		httpClient:   &http.Client{Timeout: timeout},
		pollInterval: interval,
		maxAttempts:  attempts,
		sleep:        sleepContext,
	}
}

// Submit dispatches code to the judge and returns the opaque token.
func (c *Client) Submit(ctx context.Context, sub Submission) (string, error) {
	languageID, ok := LanguageID(sub.Language)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, sub.Language)
	}
	if err := c.configured(); err != nil {
		return "", err
	}

	payload, err := json.Marshal(submitRequest{
		LanguageID:     languageID,
		SourceCode:     sub.SourceCode,
		Stdin:          sub.Stdin,
		ExpectedOutput: sub.ExpectedOutput,
	})
	if err != nil {
		return "", err
	}

	endpoint := c.baseURL + "/submissions?base64_encoded=false&wait=false"
	var resp submitResponse
	if err := c.do(ctx, "submit", http.MethodPost, endpoint, payload, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Token) == "" {
		return "", &UpstreamError{Op: "submit", Err: errors.New("response carried no token")}
	}
	return resp.Token, nil
}

// Poll fetches the current state of a submission.
func (c *Client) Poll(ctx context.Context, token string) (Result, error) {
	if err := c.configured(); err != nil {
		return Result{}, err
	}

	endpoint := fmt.Sprintf("%s/submissions/%s?base64_encoded=false", c.baseURL, url.PathEscape(token))
	var resp pollResponse
	if err := c.do(ctx, "poll", http.MethodGet, endpoint, nil, &resp); err != nil {
		return Result{}, err
	}

	result := Result{
		Status:         resp.Status,
		Stdout:         deref(resp.Stdout),
		Stderr:         deref(resp.Stderr),
		CompileOutput:  deref(resp.CompileOutput),
		Message:        deref(resp.Message),
		ExpectedOutput: deref(resp.ExpectedOutput),
		TimeMs:         int64(math.Round(float64(resp.Time) * 1000)),
		MemoryKb:       int64(resp.Memory),
	}
	if result.Status.Description == "" {
		result.Status.Description = Describe(result.Status.ID)
	}
	result.Accepted = result.Status.ID == StatusAccepted &&
		(resp.ExpectedOutput == nil || normalizeOutput(result.Stdout) == normalizeOutput(result.ExpectedOutput))
	return result, nil
}

// AwaitResult polls every interval until the judge reports a terminal status,
// up to maxAttempts polls. An unknown status id is surfaced as an UpstreamError.
func (c *Client) AwaitResult(ctx context.Context, token string, maxAttempts int, interval time.Duration) (Result, error) {
	if maxAttempts <= 0 {
		maxAttempts = c.maxAttempts
	}
	if interval <= 0 {
		interval = c.pollInterval
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := c.Poll(ctx, token)
		if err != nil {
			return Result{}, err
		}
		if !InProgress(result.Status.ID) {
			metrics.JudgePollAttempts.Observe(float64(attempt))
			if !Known(result.Status.ID) {
				return result, &UpstreamError{
					Op:  "poll",
					Err: fmt.Errorf("%w %d (%s)", ErrUnknownStatus, result.Status.ID, Describe(result.Status.ID)),
				}
			}
			return result, nil
		}
		if attempt == maxAttempts {
			break
		}
		if err := c.sleep(ctx, interval); err != nil {
			return Result{}, err
		}
	}
	return Result{}, fmt.Errorf("%w after %d attempts", ErrExecutionTimeout, maxAttempts)
}

// Await is AwaitResult with the configured attempt budget and interval.
func (c *Client) Await(ctx context.Context, token string) (Result, error) {
	return c.AwaitResult(ctx, token, c.maxAttempts, c.pollInterval)
}

// Execute submits code and waits for its terminal result. The token is
// returned alongside the result once dispatch succeeded, even if waiting failed.
func (c *Client) Execute(ctx context.Context, sub Submission) (string, Result, error) {
	token, err := c.Submit(ctx, sub)
	if err != nil {
		return "", Result{}, err
	}
	result, err := c.Await(ctx, token)
	return token, result, err
}

func (c *Client) configured() error {
	if c.baseURL == "" || c.apiKey == "" {
		return ErrConfiguration
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return &UpstreamError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.host != "" {
		req.Header.Set("X-RapidAPI-Key", c.apiKey)
		req.Header.Set("X-RapidAPI-Host", c.host)
	} else {
		req.Header.Set("X-Auth-Token", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.JudgeRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		return &UpstreamError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &UpstreamError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &UpstreamError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

type submitRequest struct {
	LanguageID     int    `json:"language_id"`
	SourceCode     string `json:"source_code"`
	Stdin          string `json:"stdin"`
	ExpectedOutput string `json:"expected_output"`
}

type submitResponse struct {
	Token string `json:"token"`
}

type pollResponse struct {
	Status         Status  `json:"status"`
	Stdout         *string `json:"stdout"`
	Stderr         *string `json:"stderr"`
	CompileOutput  *string `json:"compile_output"`
	Message        *string `json:"message"`
	ExpectedOutput *string `json:"expected_output"`
	Time           number  `json:"time"`
	Memory         number  `json:"memory"`
}

// number accepts a JSON number, a numeric string, or null.
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*n = 0
		return nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return err
	}
	*n = number(value)
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func normalizeOutput(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
