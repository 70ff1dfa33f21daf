package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/callshield/callshield/pkg/errorsx"
	"github.com/callshield/callshield/pkg/logging"
	"github.com/callshield/callshield/pkg/resilience"
)

// HTTPConfig configures the HTTP oracle client.
type HTTPConfig struct {
	BaseURL string
	UserID  string
	Timeout time.Duration

	// Retry policy for transient failures.
	MaxRetries int
	Backoff    time.Duration

	// Circuit breaker thresholds.
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// HTTPClient is the production oracle backed by the analysis service's REST
// API.
type HTTPClient struct {
	cfg     HTTPConfig
	client  *http.Client
	retry   resilience.RetryPolicy
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &HTTPClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		retry:   resilience.NewRetryPolicy(cfg.MaxRetries, cfg.Backoff),
		breaker: resilience.NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		logger:  logging.NewComponentLogger(slog.Default(), "oracle_http"),
	}
}

func (c *HTTPClient) Name() string { return "http_oracle" }

type startRequest struct {
	CallerNumber string `json:"caller_number"`
	UserID       string `json:"user_id,omitempty"`
}

type turnRequest struct {
	CallID    string         `json:"call_id"`
	AudioData string         `json:"audio_data"`
	UserRole  string         `json:"user_role"`
	History   []HistoryEntry `json:"conversation_history,omitempty"`
}

type turnResponse struct {
	CallID     string  `json:"call_id"`
	Transcript string  `json:"transcript"`
	AIResponse string  `json:"ai_response"`
	ScamScore  float64 `json:"scam_score"`
	Status     string  `json:"status"`
}

type endRequest struct {
	CallID  string         `json:"call_id"`
	History []HistoryEntry `json:"conversation_history,omitempty"`
}

type endResponse struct {
	CallID string `json:"call_id"`
	Status string `json:"status"`
	Report struct {
		ScamScore float64 `json:"scam_score"`
	} `json:"report"`
}

func (c *HTTPClient) StartCall(ctx context.Context, callerNumber, userID string) (StartResult, error) {
	if userID == "" {
		userID = c.cfg.UserID
	}
	var out StartResult
	err := c.post(ctx, "/api/call/start", startRequest{
		CallerNumber: callerNumber,
		UserID:       userID,
	}, &out)
	if err != nil {
		return StartResult{}, err
	}
	c.logger.Info("oracle_call_started", "call_id", out.CallID, "max_duration", out.MaxDuration)
	return out, nil
}

func (c *HTTPClient) ProcessUtterance(ctx context.Context, req TurnRequest) (TurnResult, error) {
	role := req.Role
	if role == "" {
		role = RoleScammer
	}
	var out turnResponse
	err := c.post(ctx, "/api/call/process-audio", turnRequest{
		CallID:    req.CallID,
		AudioData: req.Text,
		UserRole:  string(role),
		History:   req.History,
	}, &out)
	if err != nil {
		return TurnResult{}, err
	}
	return TurnResult{Reply: out.AIResponse, Score: out.ScamScore}, nil
}

func (c *HTTPClient) EndCall(ctx context.Context, callID string, history []HistoryEntry) (EndResult, error) {
	var out endResponse
	err := c.post(ctx, "/api/call/end", endRequest{CallID: callID, History: history}, &out)
	if err != nil {
		return EndResult{}, err
	}
	return EndResult{Score: out.Report.ScamScore}, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload, out any) error {
	if !c.breaker.Allow() {
		return errorsx.Wrap(fmt.Errorf("oracle circuit open"), errorsx.ReasonOracleUnavailable)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonOracleRequest)
	}
	err = c.retry.Do(func() error {
		return c.once(ctx, path, body, out)
	})
	if err != nil {
		c.breaker.OnError(err)
		c.logger.Warn("oracle_request_failed", "path", path, "error", err.Error())
		return err
	}
	c.breaker.OnSuccess()
	return nil
}

func (c *HTTPClient) once(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonOracleRequest)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonOracleRequest)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return resilience.RateLimitError{Provider: c.Name()}
	}
	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return errorsx.Wrap(fmt.Errorf("oracle status %d", resp.StatusCode), errorsx.ReasonOracleStatus)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonOracleDecode)
	}
	return nil
}

var _ Oracle = (*HTTPClient)(nil)
