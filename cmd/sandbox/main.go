// Command sandbox runs a local exchange that verifies signed requests the
// same way the production exchange does, for client development and
// integration tests.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/hibachi/params"
	"github.com/uhyunpark/hibachi/pkg/crypto"
	"github.com/uhyunpark/hibachi/pkg/sandbox"
	"github.com/uhyunpark/hibachi/pkg/storage"
	"github.com/uhyunpark/hibachi/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	seed := sandbox.DefaultSeed()
	if cfg.Sandbox.ContractsFile != "" {
		if seed, err = sandbox.LoadSeed(cfg.Sandbox.ContractsFile); err != nil {
			sugar.Fatalw("seed_load_failed", "path", cfg.Sandbox.ContractsFile, "err", err)
		}
	}
	if acct, ok := configuredAccount(cfg.Account); ok {
		seed.Accounts = append(seed.Accounts, acct)
	} else if cfg.Account.APIKey != "" {
		sugar.Warnw("configured_account_skipped", "account_id", cfg.Account.AccountID, "reason", "no usable private or public key")
	}

	store, err := storage.NewPebbleStore(filepath.Join(cfg.Sandbox.DataDir, "orders"))
	if err != nil {
		sugar.Fatalw("store_open_failed", "dir", cfg.Sandbox.DataDir, "err", err)
	}
	defer store.Close()

	journal, err := storage.NewFileJournal(filepath.Join(cfg.Sandbox.DataDir, "journal.log"))
	if err != nil {
		sugar.Fatalw("journal_open_failed", "err", err)
	}
	defer journal.Close()

	ex, err := sandbox.NewExchange(seed, store,
		sandbox.WithLogger(logger),
		sandbox.WithJournal(journal),
	)
	if err != nil {
		sugar.Fatalw("exchange_init_failed", "err", err)
	}

	srv := &http.Server{
		Addr:              cfg.Sandbox.Addr,
		Handler:           sandbox.NewServer(ex, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		sugar.Infow("sandbox_starting",
			"addr", cfg.Sandbox.Addr,
			"data_dir", cfg.Sandbox.DataDir,
			"contracts", len(seed.Contracts),
			"accounts", len(seed.Accounts))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalw("sandbox_server_failed", "err", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("sandbox_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("sandbox_shutdown_failed", "err", err)
	}
}

func newLogger(cfg params.Log) (*zap.Logger, error) {
	if cfg.File != "" {
		return util.NewLoggerWithFile(cfg.Level, cfg.File)
	}
	return util.NewLogger(cfg.Level)
}

// configuredAccount turns the account in the environment into a sandbox
// account, so a client pointed at the sandbox works with the same .env. An
// EC account may be given by its public key alone; when the private key is
// set too the seed checks that both name the same address.
func configuredAccount(a params.Account) (sandbox.AccountSeed, bool) {
	if a.APIKey == "" {
		return sandbox.AccountSeed{}, false
	}
	seed := sandbox.AccountSeed{AccountID: a.AccountID, APIKey: a.APIKey, PublicKey: a.PublicKey}
	if a.PrivateKey == "" {
		return seed, a.PublicKey != ""
	}
	cred, err := crypto.NewCredential(a.PrivateKey)
	if err != nil {
		return sandbox.AccountSeed{}, false
	}
	switch c := cred.(type) {
	case *crypto.ECSigner:
		seed.Address = c.Address().Hex()
	case *crypto.HMACSigner:
		seed.PublicKey = ""
		seed.HMACSecret = a.PrivateKey
	default:
		return sandbox.AccountSeed{}, false
	}
	return seed, true
}
