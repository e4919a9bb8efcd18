package practicum

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"homework-bot/internal/config"
	"homework-bot/internal/models"
	"homework-bot/pkg/logger"
)

var (
	ErrNotObject        = errors.New("response is not a JSON object")
	ErrMissingHomeworks = errors.New("response has no homeworks key")
	ErrHomeworksNotList = errors.New("homeworks is not a list")
)

// ConnectionError means the homework API could not be reached at all.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to reach homework API at %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// InvalidResponseCodeError means the homework API answered with a non-200 status.
type InvalidResponseCodeError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *InvalidResponseCodeError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("homework API returned %s: %s", e.Status, body)
}

// StatusResponse is the decoded homework API payload. CurrentDate is zero
// when the server omitted it or sent something that is not an integer.
type StatusResponse struct {
	Homeworks   []models.Homework
	CurrentDate int64
}

type Client struct {
	cfg    config.PracticumConfig
	client *http.Client
}

func New(cfg config.PracticumConfig, opts ...Option) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout: timeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// Fetch requests homework statuses changed since the given Unix timestamp.
func (c *Client) Fetch(ctx context.Context, from int64) (*StatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "OAuth "+c.cfg.Token)

	query := req.URL.Query()
	query.Set("from_date", strconv.FormatInt(from, 10))
	req.URL.RawQuery = query.Encode()

	// The token never reaches the logs.
	logger.Info("Requesting homework statuses",
		logger.String("endpoint", c.cfg.Endpoint),
		logger.Int64("from_date", from),
		logger.String("authorization", "OAuth ***"),
	)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &ConnectionError{Endpoint: c.cfg.Endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		// The client timeout can fire mid-body, which is still a
		// transport failure.
		return nil, &ConnectionError{Endpoint: c.cfg.Endpoint, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &InvalidResponseCodeError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	decoded, err := decodeStatusResponse(body)
	if err != nil {
		return nil, err
	}

	logger.Debug("Fetched homework statuses",
		logger.Int("count", len(decoded.Homeworks)),
		logger.Int64("current_date", decoded.CurrentDate),
	)

	return decoded, nil
}

func decodeStatusResponse(body []byte) (*StatusResponse, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotObject, err)
	}
	if raw == nil {
		return nil, ErrNotObject
	}

	rawHomeworks, ok := raw["homeworks"]
	if !ok {
		return nil, ErrMissingHomeworks
	}
	if bytes.Equal(bytes.TrimSpace(rawHomeworks), []byte("null")) {
		return nil, ErrHomeworksNotList
	}

	var homeworks []models.Homework
	if err := json.Unmarshal(rawHomeworks, &homeworks); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHomeworksNotList, err)
	}

	decoded := &StatusResponse{Homeworks: homeworks}

	if rawDate, ok := raw["current_date"]; ok {
		var currentDate int64
		if err := json.Unmarshal(rawDate, &currentDate); err == nil {
			decoded.CurrentDate = currentDate
		}
	}

	return decoded, nil
}
