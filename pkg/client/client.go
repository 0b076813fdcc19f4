package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kurihiro0119/order-import-sync/internal/domain"
	apperrors "github.com/kurihiro0119/order-import-sync/internal/errors"
)

// Client is the API client for the order-import-sync history server
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetRuns retrieves run summaries, newest first. An empty target lists every target.
func (c *Client) GetRuns(ctx context.Context, target string, start, end time.Time, limit int) ([]*domain.RunSummary, error) {
	params := c.buildTimeParams(start, end)
	if target != "" {
		params.Set("target", target)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var response struct {
		Data []*domain.RunSummary `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/runs", params, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetRun retrieves the full outcome of one run
func (c *Client) GetRun(ctx context.Context, id string) (*domain.RunOutcome, error) {
	path := fmt.Sprintf("/api/v1/runs/%s", url.PathEscape(id))

	var response struct {
		Data *domain.RunOutcome `json:"data"`
	}
	if err := c.get(ctx, path, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetStats retrieves aggregated statistics for one target
func (c *Client) GetStats(ctx context.Context, target string, start, end time.Time) (*domain.TargetStats, error) {
	path := fmt.Sprintf("/api/v1/targets/%s/stats", url.PathEscape(target))

	var response struct {
		Data *domain.TargetStats `json:"data"`
	}
	if err := c.get(ctx, path, c.buildTimeParams(start, end), &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetAllStats retrieves aggregated statistics for every target
func (c *Client) GetAllStats(ctx context.Context, start, end time.Time) ([]*domain.TargetStats, error) {
	var response struct {
		Data []*domain.TargetStats `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/targets/stats", c.buildTimeParams(start, end), &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// HealthCheck checks if the API is healthy
func (c *Client) HealthCheck(ctx context.Context) error {
	var response struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/health", nil, &response); err != nil {
		return err
	}
	if response.Status != "ok" {
		return fmt.Errorf("unhealthy status: %s", response.Status)
	}
	return nil
}

func (c *Client) buildTimeParams(start, end time.Time) url.Values {
	params := url.Values{}
	if !start.IsZero() {
		params.Set("start", start.Format("2006-01-02"))
	}
	if !end.IsZero() {
		params.Set("end", end.Format("2006-01-02"))
	}
	return params
}

func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return err
	}
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return decodeError(resp, body)
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// decodeError turns the server's error envelope back into an AppError
func decodeError(resp *http.Response, body []byte) error {
	var envelope struct {
		Error struct {
			Code    apperrors.ErrCode `json:"code"`
			Message string            `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Code != "" {
		return apperrors.New(envelope.Error.Code, envelope.Error.Message, nil)
	}
	return fmt.Errorf("API error: %s - %s", resp.Status, string(body))
}
