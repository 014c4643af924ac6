package auth

import (
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "valid dev",
			cfg: Config{
				Mode:       ModeDev,
				RolesClaim: "roles",
				EmailClaim: "email",
				DevSubject: "dev-user",
				DevRoles:   []string{"admin"},
			},
		},
		{
			name: "valid disabled",
			cfg: Config{
				Mode:       ModeDisabled,
				RolesClaim: "roles",
				EmailClaim: "email",
			},
		},
		{
			name: "oidc missing issuer",
			cfg: Config{
				Mode:         ModeOIDC,
				RolesClaim:   "roles",
				EmailClaim:   "email",
				OIDCClientID: "seclist",
			},
			wantErr: "SECLIST_OIDC_ISSUER_URL",
		},
		{
			name: "oidc missing client id",
			cfg: Config{
				Mode:          ModeOIDC,
				RolesClaim:    "roles",
				EmailClaim:    "email",
				OIDCIssuerURL: "https://issuer.example.test",
			},
			wantErr: "SECLIST_OIDC_CLIENT_ID",
		},
		{
			name: "dev without roles",
			cfg: Config{
				Mode:       ModeDev,
				RolesClaim: "roles",
				EmailClaim: "email",
				DevSubject: "dev-user",
			},
			wantErr: "SECLIST_DEV_AUTH_ROLES",
		},
		{
			name:    "missing mode",
			cfg:     Config{RolesClaim: "roles", EmailClaim: "email"},
			wantErr: "SECLIST_AUTH_MODE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() err=%v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() err=nil, want containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() err=%q, want containing %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestParseCSV(t *testing.T) {
	got := parseCSV("Admin, editor,,admin , viewer")
	want := []string{"admin", "editor", "viewer"}
	if len(got) != len(want) {
		t.Fatalf("parseCSV()=%v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("parseCSV()[%d]=%q, want %q", i, got[i], want[i])
		}
	}
}
