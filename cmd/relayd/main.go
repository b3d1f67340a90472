// Command relayd runs the passkey wallet relay: an HTTP facilitator
// that broadcasts user-signed meta-transactions from its own funded
// account and drives the guardian recovery protocol.
package main

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/strata-wallet/relay/pkg/deadman"
	"github.com/strata-wallet/relay/pkg/facilitator"
	"github.com/strata-wallet/relay/pkg/wallet"
)

// Config is the relay's environment configuration.
type Config struct {
	HTTPAddr      string        `env:"RELAY_HTTP_ADDR"       envDefault:":8080"`
	RPCURL        string        `env:"RELAY_RPC_URL"         envDefault:"http://localhost:8545"`
	ChainID       uint64        `env:"RELAY_CHAIN_ID"        envDefault:"8453"`
	FundingKey    string        `env:"RELAY_FUNDING_KEY,required"`
	MinFundingWei string        `env:"RELAY_MIN_FUNDING_WEI" envDefault:"10000000000000000"`
	RateLimit     int           `env:"RELAY_RATE_LIMIT"      envDefault:"30"`
	RateWindow    time.Duration `env:"RELAY_RATE_WINDOW"     envDefault:"1m"`
	ReadTimeout   time.Duration `env:"RELAY_READ_TIMEOUT"    envDefault:"15s"`
	WriteTimeout  time.Duration `env:"RELAY_WRITE_TIMEOUT"   envDefault:"4m"`
	LogJSON       bool          `env:"RELAY_LOG_JSON"        envDefault:"false"`
	LogDebug      bool          `env:"RELAY_LOG_DEBUG"       envDefault:"false"`
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Error("parse config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)

	minFunding, ok := new(big.Int).SetString(cfg.MinFundingWei, 10)
	if !ok {
		logger.Error("RELAY_MIN_FUNDING_WEI is not a decimal integer", "value", cfg.MinFundingWei)
		os.Exit(1)
	}

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		logger.Error("dial rpc", "url", cfg.RPCURL, "error", err)
		os.Exit(1)
	}
	defer client.Close()

	backend, err := wallet.NewBinding(client, cfg.ChainID, cfg.FundingKey, wallet.WithLogger(logger))
	if err != nil {
		logger.Error("build contract binding", "error", err)
		os.Exit(1)
	}

	recovery := deadman.New(backend, backend, deadman.WithLogger(logger))
	relay := facilitator.New(backend, recovery, cfg.ChainID,
		facilitator.WithLogger(logger),
		facilitator.WithMinFunding(minFunding),
		facilitator.WithRateLimit(cfg.RateLimit, cfg.RateWindow),
	)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      relay.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("relay listening", "addr", cfg.HTTPAddr, "chainId", cfg.ChainID, "account", backend.From())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}

func newLogger(cfg Config) *slog.Logger {
	lvl := new(slog.LevelVar)
	if cfg.LogDebug {
		lvl.Set(slog.LevelDebug)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if cfg.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
