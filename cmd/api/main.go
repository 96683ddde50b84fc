package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"

	"github.com/satspin/satspin/internal/api"
	"github.com/satspin/satspin/internal/infra/logging"
	"github.com/satspin/satspin/internal/infra/pgutils"
	"github.com/satspin/satspin/internal/lightning"
	"github.com/satspin/satspin/internal/ratelimit"
	pgspins "github.com/satspin/satspin/internal/repos/spins/postgres"
	"github.com/satspin/satspin/internal/services/auth"
	"github.com/satspin/satspin/internal/services/deposit"
	"github.com/satspin/satspin/internal/services/ledger"
	"github.com/satspin/satspin/pkg/shutdownqueue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running api: %v", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

func run(ctx context.Context) (retErr error) {
	cfg := new(apiConfig)

	err := envconfig.Process("", cfg)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	logging.Setup(cfg.LogLevel)

	sq := shutdownqueue.New()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		serr := sq.Shutdown(shutdownCtx)
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	// --- Infra ---
	dbConns, err := pgutils.OpenDB(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}

	sq.Add(func(context.Context) error { return dbConns.Close() })

	oracle, err := newOracle(cfg)
	if err != nil {
		return fmt.Errorf("init lightning oracle: %w", err)
	}

	limiter := newLimiter(cfg, sq)

	// --- Services ---
	ledgerSvc := ledger.New(dbConns, nil)
	authSvc := auth.New(dbConns, cfg.JWTSecret, cfg.TokenTTL)
	depositSvc := deposit.New(dbConns, ledgerSvc, oracle)

	hub := api.NewHub()
	depositSvc.OnSettled = func(userID, creditedSats, newBalance int64, paymentHash string) {
		hub.Push(userID, "balance", map[string]any{
			"balance":       newBalance,
			"credited_sats": creditedSats,
			"payment_hash":  paymentHash,
		})
	}

	if cfg.SweepEnabled {
		sweeper, serr := depositSvc.StartSweeper(ctx, cfg.SweepSpec)
		if serr != nil {
			return fmt.Errorf("start deposit sweeper: %w", serr)
		}

		sq.Add(func(c context.Context) error {
			stopCtx := sweeper.Stop()
			select {
			case <-stopCtx.Done():
				return nil
			case <-c.Done():
				return fmt.Errorf("stop sweeper: %w", c.Err())
			}
		})
	}

	// --- HTTP server ---
	router := api.NewRouter(authSvc, ledgerSvc, depositSvc, pgspins.New(dbConns), hub, limiter)
	srv := api.NewServer(cfg.Port, router)

	sq.Add(func(c context.Context) error {
		slog.Info("Shut down server")

		err := srv.Shutdown(c)
		if err != nil {
			return fmt.Errorf("shutdown srv: %w", err)
		}

		return nil
	})

	// Run server
	errCh := make(chan error, 1)

	go func() {
		serr := srv.ListenAndServe()
		// http.ErrServerClosed is the normal path during Shutdown
		if serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			errCh <- serr
			return
		}

		errCh <- nil
	}()

	slog.Info("API started", "port", cfg.Port, "provider", cfg.LNProvider)

	// --- Wait until either context cancels or server errors out ---
	select {
	case <-ctx.Done():
		// graceful path; the deferred queue drain runs
		return nil
	case serr := <-errCh:
		if serr != nil {
			return fmt.Errorf("server error: %w", serr)
		}

		return nil
	}
}

func newOracle(cfg *apiConfig) (lightning.Oracle, error) {
	switch cfg.LNProvider {
	case "lnbits":
		return lightning.NewLNbitsClient(cfg.LNbitsURL, cfg.LNbitsAPIKey, cfg.LNTimeout)
	case "lnd":
		return lightning.NewLNDClient(cfg.LNDURL, cfg.LNDMacaroon, cfg.LNTimeout, cfg.LNDSkipVerify)
	default:
		return nil, fmt.Errorf("unknown lightning provider %q", cfg.LNProvider)
	}
}

func newLimiter(cfg *apiConfig, sq *shutdownqueue.Queue) ratelimit.Limiter {
	if cfg.RedisAddr == "" {
		slog.Info("rate limiting disabled, no redis address configured")

		return ratelimit.Noop{}
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	sq.Add(func(context.Context) error { return rdb.Close() })

	return ratelimit.NewRedis(rdb, cfg.RateLimitCount, cfg.RateLimitWin)
}
