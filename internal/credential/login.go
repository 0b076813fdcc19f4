package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/kurihiro0119/order-import-sync/internal/domain"
	apperrors "github.com/kurihiro0119/order-import-sync/internal/errors"
)

// LoginOptions configures the username/password login flow
type LoginOptions struct {
	BaseURL   string
	LoginPath string
	Username  string
	Password  string

	// SessionFile persists the token between runs; empty disables persistence
	SessionFile string
	TTL         time.Duration

	Timeout   time.Duration
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// LoginProvider logs in against the backend and caches the session token
type LoginProvider struct {
	opts       LoginOptions
	httpClient *http.Client
	logger     *slog.Logger

	mu     sync.Mutex
	ctx    context.Context
	source oauth2.TokenSource
}

// NewLoginProvider creates a provider, seeding it with a persisted session when one is still valid
func NewLoginProvider(opts LoginOptions) *LoginProvider {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.TTL == 0 {
		opts.TTL = 12 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	p := &LoginProvider{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout, Transport: opts.Transport},
		logger:     opts.Logger,
		ctx:        context.Background(),
	}
	p.source = oauth2.ReuseTokenSource(p.loadSession(), &loginSource{p: p})
	return p
}

// Credential returns the cached session token or logs in
func (p *LoginProvider) Credential(ctx context.Context) (domain.Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ctx = ctx
	defer func() { p.ctx = context.Background() }()

	tok, err := p.source.Token()
	if err != nil {
		return domain.Credential{}, apperrors.NewAuthUnavailableError("login failed", err)
	}
	return domain.Credential{Token: tok.AccessToken, ExpiresAt: tok.Expiry}, nil
}

// Refresh drops the cached session and logs in again
func (p *LoginProvider) Refresh(ctx context.Context) (domain.Credential, error) {
	p.mu.Lock()
	if p.opts.SessionFile != "" {
		if err := os.Remove(p.opts.SessionFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("failed to remove session file", "file", p.opts.SessionFile, "error", err)
		}
	}
	p.source = oauth2.ReuseTokenSource(nil, &loginSource{p: p})
	p.mu.Unlock()

	return p.Credential(ctx)
}

// loginSource performs one login per Token call; ReuseTokenSource caches the result
type loginSource struct {
	p *LoginProvider
}

// Token is called with p.mu held
func (s *loginSource) Token() (*oauth2.Token, error) {
	p := s.p
	token, err := p.login(p.ctx)
	if err != nil {
		return nil, err
	}
	tok := &oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(p.opts.TTL),
	}
	p.saveSession(tok)
	p.logger.Info("logged in to backend", "user", p.opts.Username, "expires", tok.Expiry.Format(time.RFC3339))
	return tok, nil
}

type loginResponse struct {
	Code  *int            `json:"code"`
	Msg   string          `json:"msg"`
	Token string          `json:"token"`
	Data  json.RawMessage `json:"data"`
}

func (p *LoginProvider) login(ctx context.Context) (string, error) {
	if p.opts.Username == "" || p.opts.Password == "" {
		return "", fmt.Errorf("username and password are required")
	}

	payload, err := json.Marshal(map[string]string{
		"username": p.opts.Username,
		"password": p.opts.Password,
	})
	if err != nil {
		return "", err
	}

	target := strings.TrimSuffix(p.opts.BaseURL, "/") + "/" + strings.TrimPrefix(p.opts.LoginPath, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read login response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login rejected: %s - %s", resp.Status, string(body))
	}

	var lr loginResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if lr.Code != nil && *lr.Code != 0 && *lr.Code != 200 {
		return "", fmt.Errorf("login rejected: code %d: %s", *lr.Code, lr.Msg)
	}
	if token := extractToken(lr); token != "" {
		return token, nil
	}
	return "", fmt.Errorf("login response carried no token")
}

// extractToken accepts {"token":..}, {"data":"..."} and {"data":{"token"|"accessToken":..}}
func extractToken(lr loginResponse) string {
	if lr.Token != "" {
		return lr.Token
	}
	if len(lr.Data) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(lr.Data, &s); err == nil {
		return s
	}
	var obj struct {
		Token       string `json:"token"`
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(lr.Data, &obj); err == nil {
		if obj.Token != "" {
			return obj.Token
		}
		return obj.AccessToken
	}
	return ""
}

func (p *LoginProvider) loadSession() *oauth2.Token {
	if p.opts.SessionFile == "" {
		return nil
	}
	data, err := os.ReadFile(p.opts.SessionFile)
	if err != nil {
		return nil
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		p.logger.Warn("ignoring unreadable session file", "file", p.opts.SessionFile, "error", err)
		return nil
	}
	if !tok.Valid() {
		return nil
	}
	return &tok
}

func (p *LoginProvider) saveSession(tok *oauth2.Token) {
	if p.opts.SessionFile == "" {
		return
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return
	}
	if err := os.WriteFile(p.opts.SessionFile, data, 0600); err != nil {
		p.logger.Warn("failed to persist session", "file", p.opts.SessionFile, "error", err)
	}
}
