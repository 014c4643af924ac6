// Package auth provides bearer-token authentication and role-based
// authorization for the seclist HTTP services.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/seclist-labs/seclist-go/internal/platform/env"
)

type Mode string

const (
	ModeOIDC     Mode = "oidc"
	ModeDev      Mode = "dev"
	ModeDisabled Mode = "disabled"
)

var ErrUnauthenticated = errors.New("unauthenticated")

type Config struct {
	Mode Mode

	RolesClaim string
	EmailClaim string

	OIDCIssuerURL string
	OIDCClientID  string

	DevSubject string
	DevEmail   string
	DevRoles   []string
}

func ConfigFromEnv() (Config, error) {
	modeRaw := strings.ToLower(strings.TrimSpace(env.String("SECLIST_AUTH_MODE", string(ModeDev))))
	var mode Mode
	switch modeRaw {
	case string(ModeOIDC):
		mode = ModeOIDC
	case string(ModeDev):
		mode = ModeDev
	case string(ModeDisabled):
		mode = ModeDisabled
	default:
		return Config{}, fmt.Errorf("SECLIST_AUTH_MODE must be one of: oidc, dev, disabled (got %q)", modeRaw)
	}

	cfg := Config{
		Mode:          mode,
		RolesClaim:    env.String("SECLIST_AUTH_ROLES_CLAIM", "roles"),
		EmailClaim:    env.String("SECLIST_AUTH_EMAIL_CLAIM", "email"),
		OIDCIssuerURL: env.String("SECLIST_OIDC_ISSUER_URL", ""),
		OIDCClientID:  env.String("SECLIST_OIDC_CLIENT_ID", ""),
		DevSubject:    env.String("SECLIST_DEV_AUTH_SUBJECT", "dev-user"),
		DevEmail:      env.String("SECLIST_DEV_AUTH_EMAIL", "dev-user@example.local"),
		DevRoles:      parseCSV(env.String("SECLIST_DEV_AUTH_ROLES", "admin")),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(string(c.Mode)) == "" {
		return errors.New("SECLIST_AUTH_MODE is required")
	}
	if strings.TrimSpace(c.RolesClaim) == "" {
		return errors.New("SECLIST_AUTH_ROLES_CLAIM is required")
	}
	if strings.TrimSpace(c.EmailClaim) == "" {
		return errors.New("SECLIST_AUTH_EMAIL_CLAIM is required")
	}

	switch c.Mode {
	case ModeOIDC:
		if strings.TrimSpace(c.OIDCIssuerURL) == "" {
			return errors.New("SECLIST_OIDC_ISSUER_URL is required when SECLIST_AUTH_MODE=oidc")
		}
		if strings.TrimSpace(c.OIDCClientID) == "" {
			return errors.New("SECLIST_OIDC_CLIENT_ID is required when SECLIST_AUTH_MODE=oidc")
		}
	case ModeDev:
		if strings.TrimSpace(c.DevSubject) == "" {
			return errors.New("SECLIST_DEV_AUTH_SUBJECT is required when SECLIST_AUTH_MODE=dev")
		}
		if len(c.DevRoles) == 0 {
			return errors.New("SECLIST_DEV_AUTH_ROLES must be non-empty when SECLIST_AUTH_MODE=dev")
		}
	case ModeDisabled:
	default:
		return fmt.Errorf("unsupported auth mode: %q", c.Mode)
	}

	return nil
}

type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (Identity, error)
}

// NewAuthenticator builds the authenticator for the configured mode.
// Returns nil for ModeDisabled; callers then skip the auth middleware.
func NewAuthenticator(ctx context.Context, cfg Config) (Authenticator, error) {
	switch cfg.Mode {
	case ModeOIDC:
		return NewOIDCAuthenticator(ctx, cfg)
	case ModeDev:
		return NewDevAuthenticator(cfg), nil
	case ModeDisabled:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported auth mode: %q", cfg.Mode)
	}
}

func parseCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		item := strings.ToLower(strings.TrimSpace(part))
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
