// Command botengine runs the persistent market-making engine: it loads
// configuration, bootstraps the operator signer, connects to the durable
// store and the blockchain RPC endpoint, resumes every running bot, and
// serves a read-only status endpoint until the process is asked to stop.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"mmengine/core"
	"mmengine/pkg/config"
	"mmengine/pkg/utils"
)

func main() {
	logger := log.New()

	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := configureLogging(logger, cfg.Logging.Level); err != nil {
		logger.Fatalf("configure logging: %v", err)
	}

	rpc := core.NewHTTPRPCClient(cfg.RPC.URL, cfg.RPC.WSURL, time.Duration(cfg.RPC.TimeoutSeconds)*time.Second, cfg.RPC.MaxRetries, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := core.OpenPostgresStore(ctx, cfg.Store.DSN, cfg.Store.MaxConnections)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer store.Close()

	operatorSecret := utils.EnvOrDefault(cfg.Operator.SecretEnv, "")
	operator, err := core.LoadOperatorSigner(operatorSecret, logger)
	if err != nil {
		logger.Fatalf("load operator signer: %v", err)
	}

	workerCfg := core.WorkerConfig{
		MinGasReserveLamports: solToLamports(cfg.Worker.MinGasReserveSOL),
		BotMinTradeLamports:   solToLamports(cfg.Worker.BotMinTradeSOL),
		BotMaxTradeLamports:   solToLamports(cfg.Worker.BotMaxTradeSOL),
		DefaultSlippageBps:    uint16(cfg.Worker.DefaultSlippageBps),
		RandPercentMin:        0.2,
		RandPercentMax:        0.8,
		FeeClaimInterval:      time.Duration(cfg.Worker.FeeClaimIntervalHrs) * time.Hour,
	}

	manager := core.NewManager(rpc, store, operator, workerCfg, logger)
	if err := manager.ResumeAll(ctx); err != nil {
		logger.Fatalf("resume all workers: %v", err)
	}

	srv := &http.Server{
		Addr:    cfg.HTTP.ListenAddr,
		Handler: statusRouter(manager),
	}
	go func() {
		logger.Infof("status server listening on %s", cfg.HTTP.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("status server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received, draining workers")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	manager.Shutdown()
	logger.Info("shutdown complete")
}

func solToLamports(sol float64) uint64 {
	return uint64(sol * 1e9)
}

func configureLogging(lg *log.Logger, level string) error {
	if level == "" {
		lg.SetLevel(log.InfoLevel)
		return nil
	}
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	lg.SetLevel(parsed)
	return nil
}

// statusRouter exposes a read-only observability surface: aggregate
// trading stats and the live worker count. This is explicitly NOT the
// wallet/trading HTTP API spec.md §1 excludes as an external collaborator.
func statusRouter(m *core.Manager) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
		stats, err := m.AggregateStats(req.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(stats)
	})

	r.Get("/workers/count", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int{"count": m.WorkerCount()})
	})

	return r
}
