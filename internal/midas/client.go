package midas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

var (
	// ErrPlayerNotFound is returned when the service does not know the player id
	ErrPlayerNotFound = errors.New("midas: player not found")
	// ErrUnavailable is returned when the service could not be reached or answered garbage
	ErrUnavailable = errors.New("midas: service unavailable")
	// ErrRejected is returned when the service answered with success=false
	ErrRejected = errors.New("midas: request rejected")
)

// BatchError is returned when a batch activation is rejected as a whole
type BatchError struct {
	Message string
}

func (e *BatchError) Error() string {
	if e.Message == "" {
		return "midas: batch activation failed"
	}
	return "midas: batch activation failed: " + e.Message
}

// Player is a verified PUBG account
type Player struct {
	ID   string
	Name string
}

// CodeStatus is the state of a UC code as reported by the service
type CodeStatus struct {
	Code        string
	RawStatus   string
	Amount      string
	ActivatedTo string
	ActivatedAt int64
}

// ActivationResult is the outcome of one code activation
type ActivationResult struct {
	Code      string
	RawStatus string
	Message   string
}

// Client talks to the Midasbuy reseller API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	timeout    time.Duration
	retries    uint64
	logger     *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetries sets how many times idempotent reads are retried
func WithRetries(n uint64) Option {
	return func(c *Client) { c.retries = n }
}

// NewClient creates a new Midasbuy API client
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{},
		timeout:    timeout,
		retries:    2,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type playerData struct {
	Status     string     `json:"status"`
	PlayerID   flexString `json:"player_id"`
	PlayerName string     `json:"player_name"`
}

type codeData struct {
	Status      string     `json:"status"`
	Code        string     `json:"uc_code"`
	Amount      flexString `json:"amount"`
	ActivatedTo flexString `json:"activated_to"`
	ActivatedAt flexString `json:"activated_at"`
}

type activationData struct {
	Code    string `json:"uc_code"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// LookupPlayer resolves a numeric player id to its account name
func (c *Client) LookupPlayer(ctx context.Context, playerID string) (Player, error) {
	id, err := playerNumber(playerID)
	if err != nil {
		return Player{}, err
	}
	env, err := c.call(ctx, "/getPlayer", map[string]any{"player_id": id}, true)
	if err != nil {
		return Player{}, err
	}
	if !env.Success || len(env.Data) == 0 {
		return Player{}, fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
	}

	var data playerData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return Player{}, fmt.Errorf("%w: decode player: %v", ErrUnavailable, err)
	}
	if data.Status != "success" {
		return Player{}, fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
	}

	player := Player{ID: string(data.PlayerID), Name: data.PlayerName}
	if player.ID == "" {
		player.ID = playerID
	}
	return player, nil
}

// CheckCode reports the current state of a UC code
func (c *Client) CheckCode(ctx context.Context, code string) (CodeStatus, error) {
	env, err := c.call(ctx, "/checkCode", map[string]any{"uc_code": code, "show_time": true}, true)
	if err != nil {
		return CodeStatus{}, err
	}
	if !env.Success || len(env.Data) == 0 {
		return CodeStatus{}, fmt.Errorf("%w: %s", ErrRejected, env.Message)
	}

	var data codeData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return CodeStatus{}, fmt.Errorf("%w: decode code status: %v", ErrUnavailable, err)
	}

	status := CodeStatus{
		Code:        data.Code,
		RawStatus:   data.Status,
		Amount:      string(data.Amount),
		ActivatedTo: string(data.ActivatedTo),
		ActivatedAt: data.ActivatedAt.Int64(),
	}
	if status.Code == "" {
		status.Code = code
	}
	return status, nil
}

// ActivateSingle redeems one code onto a player account. It is never retried.
func (c *Client) ActivateSingle(ctx context.Context, playerID, code string) (ActivationResult, error) {
	id, err := playerNumber(playerID)
	if err != nil {
		return ActivationResult{}, err
	}
	env, err := c.call(ctx, "/activate", map[string]any{"player_id": id, "uc_code": code}, false)
	if err != nil {
		return ActivationResult{}, err
	}

	var data activationData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return ActivationResult{}, fmt.Errorf("%w: decode activation: %v", ErrUnavailable, err)
		}
	}

	result := ActivationResult{Code: code, RawStatus: data.Status, Message: data.Message}
	if result.RawStatus == "" {
		result.RawStatus = "failed"
		if env.Success {
			result.RawStatus = "success"
		}
	}
	if result.Message == "" {
		result.Message = env.Message
	}
	return result, nil
}

// ActivateBatch redeems several codes onto one player in a single call.
// Results are returned in the order of codes.
func (c *Client) ActivateBatch(ctx context.Context, playerID string, codes []string) ([]ActivationResult, error) {
	id, err := playerNumber(playerID)
	if err != nil {
		return nil, err
	}
	env, err := c.call(ctx, "/activateBatch", map[string]any{"player_id": id, "uc_codes": codes}, false)
	if err != nil {
		return nil, err
	}

	items, err := decodeBatch(env.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode batch: %v", ErrUnavailable, err)
	}
	if !env.Success && len(items) == 0 {
		return nil, &BatchError{Message: env.Message}
	}

	return alignResults(codes, items), nil
}

// playerNumber converts a decimal player id to the number sent on the wire.
// Leading zeros are dropped.
func playerNumber(playerID string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(playerID), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: %q is not a player id", ErrPlayerNotFound, playerID)
	}
	return id, nil
}

func decodeBatch(raw json.RawMessage) ([]activationData, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var items []activationData
	if err := json.Unmarshal(raw, &items); err == nil {
		return items, nil
	}

	var wrapped struct {
		Results []activationData `json:"results"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Results, nil
}

// alignResults maps service results back onto the submitted codes. When
// every result echoes a submitted code they are matched by code, otherwise
// by position. Codes without a result are reported as failed.
func alignResults(codes []string, items []activationData) []ActivationResult {
	results := make([]ActivationResult, len(codes))

	byCode := make(map[string][]activationData, len(items))
	echoed := len(items) > 0
	submitted := make(map[string]bool, len(codes))
	for _, code := range codes {
		submitted[code] = true
	}
	for _, item := range items {
		if !submitted[item.Code] {
			echoed = false
			break
		}
		byCode[item.Code] = append(byCode[item.Code], item)
	}

	for i, code := range codes {
		var (
			item activationData
			ok   bool
		)
		if echoed {
			if queue := byCode[code]; len(queue) > 0 {
				item, ok = queue[0], true
				byCode[code] = queue[1:]
			}
		} else if i < len(items) {
			item, ok = items[i], true
		}

		if !ok {
			results[i] = ActivationResult{Code: code, RawStatus: "failed", Message: "no result returned"}
			continue
		}
		results[i] = ActivationResult{Code: code, RawStatus: item.Status, Message: item.Message}
	}
	return results
}

// call performs one API request bounded by the client timeout.
// Idempotent reads are retried on transient failures.
func (c *Client) call(ctx context.Context, endpoint string, body any, retry bool) (*envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if !retry {
		return c.post(ctx, endpoint, body)
	}

	var env *envelope
	operation := func() error {
		result, err := c.post(ctx, endpoint, body)
		if err != nil {
			var te *transientError
			if errors.As(err, &te) {
				return err
			}
			return backoff.Permanent(err)
		}
		env = result
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 300 * time.Millisecond
	policy.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("Retrying Midasbuy request",
			zap.String("endpoint", endpoint),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(policy, c.retries), ctx), notify); err != nil {
		if ctx.Err() != nil && !errors.Is(err, ErrUnavailable) {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, endpoint, err)
		}
		return nil, err
	}
	return env, nil
}

func (c *Client) post(ctx context.Context, endpoint string, body any) (*envelope, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("midas: encode %s request: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("midas: build %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &transientError{err: fmt.Errorf("%w: %s: %v", ErrUnavailable, endpoint, err)}
	}
	defer resp.Body.Close()

	c.logger.Debug("Midasbuy request",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(started)),
	)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &transientError{err: fmt.Errorf("%w: %s: read body: %v", ErrUnavailable, endpoint, err)}
	}

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return nil, &transientError{err: fmt.Errorf("%w: %s: http %d", ErrUnavailable, endpoint, resp.StatusCode)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env envelope
		_ = json.Unmarshal(raw, &env)
		c.logger.Warn("Midasbuy request refused",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
			zap.String("message", env.Message),
		)
		return nil, fmt.Errorf("%w: %s: http %d: %s", ErrUnavailable, endpoint, resp.StatusCode, env.Message)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %s: http %d: malformed response: %v", ErrUnavailable, endpoint, resp.StatusCode, err)
	}
	return &env, nil
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// flexString accepts JSON strings and numbers
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func (f flexString) Int64() int64 {
	if f == "" {
		return 0
	}
	if n, err := strconv.ParseInt(string(f), 10, 64); err == nil {
		return n
	}
	if v, err := strconv.ParseFloat(string(f), 64); err == nil {
		return int64(v)
	}
	return 0
}
