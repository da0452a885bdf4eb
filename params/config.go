package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ClientID identifies this SDK to the exchange. It is sent as the
// Hibachi-Client header and as the hibachiClient query parameter on the
// trade websocket.
const ClientID = "HibachiGoSDK/0.3.0"

const (
	DefaultAPIEndpoint     = "https://api.hibachi.xyz"
	DefaultDataAPIEndpoint = "https://data-api.hibachi.xyz"
	DefaultEnvironment     = "production"
)

type Exchange struct {
	Environment     string
	APIEndpoint     string
	DataAPIEndpoint string
	ClientID        string
}

// Account holds the credentials for a single trading account. PrivateKey is
// either a 0x-prefixed secp256k1 key or an HMAC secret; the signer picks the
// scheme from its shape.
type Account struct {
	APIKey               string
	AccountID            uint64
	PrivateKey           string
	PublicKey            string
	TransferDstPublicKey string
}

type Transport struct {
	HTTPTimeout       time.Duration
	RequestsPerSecond float64
	MaxRetries        int
}

type Sandbox struct {
	Addr          string
	DataDir       string
	ContractsFile string
}

type Log struct {
	Level string
	File  string
}

type Config struct {
	Exchange  Exchange
	Account   Account
	Transport Transport
	Sandbox   Sandbox
	Log       Log
}

func Default() Config {
	return Config{
		Exchange: Exchange{
			Environment:     DefaultEnvironment,
			APIEndpoint:     DefaultAPIEndpoint,
			DataAPIEndpoint: DefaultDataAPIEndpoint,
			ClientID:        ClientID,
		},
		Transport: Transport{
			HTTPTimeout:       10 * time.Second,
			RequestsPerSecond: 10,
			MaxRetries:        3,
		},
		Sandbox: Sandbox{
			Addr:    ":8080",
			DataDir: "./data/sandbox",
		},
		Log: Log{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
//
// Exchange and account variables carry the upper-cased environment as a
// suffix, e.g. HIBACHI_API_KEY_PRODUCTION, so several environments can share
// one .env file.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.Exchange.Environment = getEnv("ENVIRONMENT", cfg.Exchange.Environment)
	suffix := "_" + strings.ToUpper(cfg.Exchange.Environment)

	cfg.Exchange.APIEndpoint = getEnv("HIBACHI_API_ENDPOINT"+suffix, cfg.Exchange.APIEndpoint)
	cfg.Exchange.DataAPIEndpoint = getEnv("HIBACHI_DATA_API_ENDPOINT"+suffix, cfg.Exchange.DataAPIEndpoint)

	cfg.Account.APIKey = getEnv("HIBACHI_API_KEY"+suffix, "")
	cfg.Account.PrivateKey = getEnv("HIBACHI_PRIVATE_KEY"+suffix, "")
	cfg.Account.PublicKey = getEnv("HIBACHI_PUBLIC_KEY"+suffix, "")
	cfg.Account.TransferDstPublicKey = getEnv("HIBACHI_TRANSFER_DST_ACCOUNT_PUBLIC_KEY"+suffix, "")
	if id := os.Getenv("HIBACHI_ACCOUNT_ID" + suffix); id != "" {
		if v, err := strconv.ParseUint(id, 10, 64); err == nil {
			cfg.Account.AccountID = v
		}
	}

	if timeout := os.Getenv("HIBACHI_HTTP_TIMEOUT_MS"); timeout != "" {
		if ms, err := strconv.Atoi(timeout); err == nil {
			cfg.Transport.HTTPTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if rps := os.Getenv("HIBACHI_RPS"); rps != "" {
		if v, err := strconv.ParseFloat(rps, 64); err == nil && v > 0 {
			cfg.Transport.RequestsPerSecond = v
		}
	}
	if retries := os.Getenv("HIBACHI_MAX_RETRIES"); retries != "" {
		if v, err := strconv.Atoi(retries); err == nil && v >= 0 {
			cfg.Transport.MaxRetries = v
		}
	}

	cfg.Sandbox.Addr = getEnv("SANDBOX_ADDR", cfg.Sandbox.Addr)
	cfg.Sandbox.DataDir = getEnv("SANDBOX_DATA_DIR", cfg.Sandbox.DataDir)
	cfg.Sandbox.ContractsFile = getEnv("SANDBOX_CONTRACTS", cfg.Sandbox.ContractsFile)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
