package credential

import (
	"context"
	"log/slog"

	"github.com/kurihiro0119/order-import-sync/internal/config"
	"github.com/kurihiro0119/order-import-sync/internal/domain"
	apperrors "github.com/kurihiro0119/order-import-sync/internal/errors"
)

// Provider supplies bearer credentials for the order backend
type Provider interface {
	// Credential returns a usable credential, reusing a cached one when possible
	Credential(ctx context.Context) (domain.Credential, error)

	// Refresh discards any cached credential and obtains a new one
	Refresh(ctx context.Context) (domain.Credential, error)
}

// New picks a static provider when a token is configured, a login provider otherwise
func New(cfg *config.Config, logger *slog.Logger) Provider {
	if cfg.BackendToken != "" {
		return NewStaticProvider(cfg.BackendToken)
	}
	return NewLoginProvider(LoginOptions{
		BaseURL:     cfg.BackendURL,
		LoginPath:   cfg.LoginPath,
		Username:    cfg.Username,
		Password:    cfg.Password,
		SessionFile: cfg.SessionFile,
		TTL:         cfg.SessionTTL,
		Timeout:     cfg.Timeout,
		Logger:      logger,
	})
}

// StaticProvider hands out a fixed token
type StaticProvider struct {
	token string
}

// NewStaticProvider creates a provider for a pre-issued token
func NewStaticProvider(token string) *StaticProvider {
	return &StaticProvider{token: token}
}

// Credential returns the configured token
func (p *StaticProvider) Credential(ctx context.Context) (domain.Credential, error) {
	if err := ctx.Err(); err != nil {
		return domain.Credential{}, apperrors.NewAuthUnavailableError("credential lookup canceled", err)
	}
	if p.token == "" {
		return domain.Credential{}, apperrors.NewAuthUnavailableError("no static token configured", nil)
	}
	return domain.Credential{Token: p.token}, nil
}

// Refresh returns the same token; a static token cannot be renewed
func (p *StaticProvider) Refresh(ctx context.Context) (domain.Credential, error) {
	return p.Credential(ctx)
}
