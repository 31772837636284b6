package main

import (
	"context"
	"database/sql"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/emailcraft/drip"
	"github.com/emailcraft/drip/internal/server"
	"github.com/emailcraft/drip/pkg/api"
	"github.com/emailcraft/drip/pkg/config"
	"github.com/emailcraft/drip/pkg/logx"
	"github.com/emailcraft/drip/pkg/metrics"
)

var errTemp = errors.New("temporary send error")

// newTransport picks the delivery mode. "log" only logs the send; "sim"
// additionally fails a fraction of sends so retry and failure paths are
// exercised end to end. A real SMTP or API transport plugs in the same way.
func newTransport(mode string) api.Transport {
	switch mode {
	case "sim":
		return api.TransportFunc(func(ctx context.Context, to, subject, body string) error {
			if rand.Float64() < 0.85 {
				logx.L().Infow("send_success", "to", to, "subject", subject)
				return nil
			}
			return errTemp
		})
	default:
		return api.TransportFunc(func(ctx context.Context, to, subject, body string) error {
			logx.L().Infow("send_success", "to", to, "subject", subject)
			return nil
		})
	}
}

func main() {
	logx.Init()
	defer logx.Sync()

	config.MustLoadServer()
	cfg := config.Server

	driver := "sqlite"
	if cfg.DBDriver == "postgres" {
		driver = "pgx"
	}
	sqlDB, err := sql.Open(driver, cfg.DBDSN)
	if err != nil {
		logx.L().Fatalw("db_open_error", "driver", cfg.DBDriver, "error", err)
	}
	defer func() {
		if err := sqlDB.Close(); err != nil {
			logx.L().Warnw("db_close_error", "error", err)
		}
	}()

	opts := drip.Options{
		PollInterval:      cfg.PollInterval,
		MaxConcurrent:     cfg.MaxConcurrent,
		MaxSendConcurrent: cfg.MaxSend,
		LeaseTTL:          cfg.LeaseTTL,
		ShutdownGrace:     cfg.ShutdownGrace,
		Retry:             drip.Retry(3).WithExponentialBackoff(time.Second, 2.0, 30*time.Second).Policy(),
		Observer:          metrics.Observer{},
	}

	var (
		sched  *drip.Scheduler
		graphs drip.GraphStore
	)
	switch cfg.DBDriver {
	case "postgres":
		sched, graphs, err = drip.NewPostgresScheduler(sqlDB, newTransport(cfg.MailMode), opts)
	default:
		sched, graphs, err = drip.NewSQLiteScheduler(sqlDB, newTransport(cfg.MailMode), opts)
	}
	if err != nil {
		logx.L().Fatalw("scheduler_init_error", "error", err)
	}

	ctx := context.Background()
	if err := sched.Start(ctx); err != nil {
		logx.L().Fatalw("scheduler_start_error", "error", err)
	}

	h := server.NewHandlers(graphs, sched)
	srv := server.NewHTTPServer(":"+cfg.Port, h)

	go func() {
		logx.L().Infow("api_listen_start", "addr", ":"+cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.L().Fatalw("http_server_error", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	logx.L().Infow("signal_received", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logx.L().Errorw("server_shutdown_error", "error", err)
	}

	// Stop claiming new jobs and let in-flight sends finish within the
	// configured grace period.
	sched.Stop()

	logx.L().Infow("dripd stopped gracefully")
}
