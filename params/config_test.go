package params

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Exchange.APIEndpoint != DefaultAPIEndpoint {
		t.Errorf("api endpoint = %q", cfg.Exchange.APIEndpoint)
	}
	if cfg.Exchange.ClientID != ClientID {
		t.Errorf("client id = %q", cfg.Exchange.ClientID)
	}
	if cfg.Transport.HTTPTimeout != 10*time.Second {
		t.Errorf("timeout = %v", cfg.Transport.HTTPTimeout)
	}
}

func TestLoadFromEnvSuffixedByEnvironment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "staging")
	t.Setenv("HIBACHI_API_ENDPOINT_STAGING", "http://localhost:9000")
	t.Setenv("HIBACHI_API_KEY_STAGING", "key-1")
	t.Setenv("HIBACHI_ACCOUNT_ID_STAGING", "42")
	t.Setenv("HIBACHI_API_KEY_PRODUCTION", "wrong")
	t.Setenv("HIBACHI_RPS", "2.5")
	t.Setenv("HIBACHI_HTTP_TIMEOUT_MS", "1500")

	cfg := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env"))

	if cfg.Exchange.APIEndpoint != "http://localhost:9000" {
		t.Errorf("api endpoint = %q", cfg.Exchange.APIEndpoint)
	}
	if cfg.Exchange.DataAPIEndpoint != DefaultDataAPIEndpoint {
		t.Errorf("data endpoint = %q", cfg.Exchange.DataAPIEndpoint)
	}
	if cfg.Account.APIKey != "key-1" {
		t.Errorf("api key = %q", cfg.Account.APIKey)
	}
	if cfg.Account.AccountID != 42 {
		t.Errorf("account id = %d", cfg.Account.AccountID)
	}
	if cfg.Transport.RequestsPerSecond != 2.5 {
		t.Errorf("rps = %v", cfg.Transport.RequestsPerSecond)
	}
	if cfg.Transport.HTTPTimeout != 1500*time.Millisecond {
		t.Errorf("timeout = %v", cfg.Transport.HTTPTimeout)
	}
}

func TestLoadFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	body := "HIBACHI_PRIVATE_KEY_PRODUCTION=secret\nSANDBOX_ADDR=:9999\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	// godotenv does not override variables that are already set.
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("SANDBOX_ADDR", "")
	os.Unsetenv("SANDBOX_ADDR")
	os.Unsetenv("HIBACHI_PRIVATE_KEY_PRODUCTION")
	t.Cleanup(func() {
		os.Unsetenv("SANDBOX_ADDR")
		os.Unsetenv("HIBACHI_PRIVATE_KEY_PRODUCTION")
	})

	cfg := LoadFromEnv(path)
	if cfg.Account.PrivateKey != "secret" {
		t.Errorf("private key = %q", cfg.Account.PrivateKey)
	}
	if cfg.Sandbox.Addr != ":9999" {
		t.Errorf("sandbox addr = %q", cfg.Sandbox.Addr)
	}
}
