package backend

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/kurihiro0119/order-import-sync/internal/domain"
)

// envelope is the {code, msg, data} wrapper the backend puts around payloads
type envelope struct {
	Code    *int            `json:"code"`
	Msg     string          `json:"msg"`
	Message string          `json:"message"`
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func (e *envelope) failed() bool {
	if e.Success != nil && !*e.Success {
		return true
	}
	return e.Code != nil && *e.Code != 0 && *e.Code != 200
}

func (e *envelope) text() string {
	if e.Msg != "" {
		return e.Msg
	}
	return e.Message
}

// InspectEnvelope reports an application-level failure hidden in a 2xx body.
// Bodies that are not JSON objects are accepted.
func InspectEnvelope(body string) error {
	trimmed := bytes.TrimSpace([]byte(body))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil
	}
	if !env.failed() {
		return nil
	}
	code := 0
	if env.Code != nil {
		code = *env.Code
	}
	return fmt.Errorf("application error code %d: %s", code, env.text())
}

func decodePage(body []byte) (*domain.Page, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}
	if env.failed() {
		return nil, fmt.Errorf("API error: %s", InspectEnvelope(string(body)))
	}

	payload := []byte(env.Data)
	if len(bytes.TrimSpace(payload)) == 0 || bytes.Equal(bytes.TrimSpace(payload), []byte("null")) {
		payload = body
	}

	var page domain.Page
	if err := json.Unmarshal(payload, &page); err != nil {
		return nil, fmt.Errorf("decode list page: %w", err)
	}
	return &page, nil
}
