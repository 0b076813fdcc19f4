package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kurihiro0119/order-import-sync/internal/domain"
)

// SubmitImport uploads the artifact as one multipart request.
// The error is non-nil only for transport failures; any HTTP status is returned in the result.
func (c *Client) SubmitImport(ctx context.Context, artifact *domain.ImportArtifact, params map[string]string) (domain.SubmissionResult, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, params[k]); err != nil {
			return domain.SubmissionResult{}, fmt.Errorf("write field %s: %w", k, err)
		}
	}

	part, err := w.CreateFormFile("file", artifact.Name)
	if err != nil {
		return domain.SubmissionResult{}, fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(artifact.Content); err != nil {
		return domain.SubmissionResult{}, fmt.Errorf("write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return domain.SubmissionResult{}, fmt.Errorf("close multipart body: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.opts.ImportPath, nil, &buf, w.FormDataContentType())
	if err != nil {
		return domain.SubmissionResult{}, fmt.Errorf("import request: %w", err)
	}
	return domain.SubmissionResult{StatusCode: resp.StatusCode, RawBody: string(resp.Body)}, nil
}

// ListOrders fetches one page of the order listing
func (c *Client) ListOrders(ctx context.Context, q domain.ListQuery) (*domain.Page, error) {
	params := url.Values{}
	params.Set("pageNum", strconv.Itoa(q.Page))
	params.Set("pageSize", strconv.Itoa(q.Size))
	if len(q.Statuses) > 0 {
		parts := make([]string, len(q.Statuses))
		for i, st := range q.Statuses {
			parts[i] = strconv.Itoa(int(st))
		}
		params.Set("status", strings.Join(parts, ","))
	}
	if !q.Since.IsZero() {
		params.Set("startTime", q.Since.Format(time.RFC3339))
	}
	if !q.Until.IsZero() {
		params.Set("endTime", q.Until.Format(time.RFC3339))
	}

	resp, err := c.do(ctx, http.MethodGet, c.opts.ListPath, params, nil, "")
	if err != nil {
		return nil, fmt.Errorf("list request: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("API error: %d - %s", resp.StatusCode, string(resp.Body))
	}

	page, err := decodePage(resp.Body)
	if err != nil {
		return nil, err
	}
	if page.Number == 0 {
		page.Number = q.Page
	}
	if page.Size == 0 {
		page.Size = q.Size
	}
	return page, nil
}

// ConfirmOrders sends the identifiers as a JSON array in one request.
// The error is non-nil only for transport failures.
func (c *Client) ConfirmOrders(ctx context.Context, ids []domain.RecordID) (domain.SubmissionResult, error) {
	body, err := json.Marshal(ids)
	if err != nil {
		return domain.SubmissionResult{}, fmt.Errorf("encode ids: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.opts.ConfirmPath, nil, bytes.NewReader(body), "application/json")
	if err != nil {
		return domain.SubmissionResult{}, fmt.Errorf("confirm request: %w", err)
	}
	return domain.SubmissionResult{StatusCode: resp.StatusCode, RawBody: string(resp.Body)}, nil
}
