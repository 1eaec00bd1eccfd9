package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/casevine/casevine/config"
	"github.com/casevine/casevine/db"
	"github.com/casevine/casevine/errors"
	"github.com/casevine/casevine/logger"
	"github.com/casevine/casevine/mail"
	"github.com/casevine/casevine/payments"
	"github.com/casevine/casevine/realtime"
	"github.com/casevine/casevine/sched"
	"github.com/casevine/casevine/server"
)

// ServeCmd represents the serve command
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scheduler engine and WebSocket server",
	Long: `Start the Casevine service: the deferred job engine polling for due
reminders, the WebSocket hub for live delivery, and the HTTP API.

The process runs until interrupted; SIGINT/SIGTERM trigger a graceful
shutdown that stops the engine, closes live connections, and drains the
HTTP listener.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.Logger

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	database, err := db.Open(cfg.GetDatabasePath(), log)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	if err := db.Migrate(database, log); err != nil {
		return errors.Wrap(err, "failed to migrate database")
	}

	// Live delivery
	registry := realtime.NewRegistry(log)
	hub := realtime.NewHub(registry, log)
	hub.Start()
	dispatcher := realtime.NewDispatcher(registry, hub, log)

	// Scheduler collaborators
	notifier := realtime.NewNotifyService(dispatcher, log)
	mailer := mail.NewMailer(cfg.Email, log)
	paymentSvc := payments.NewService(database, log)

	// Deferred job engine
	store := sched.NewStore(database)
	handlers := sched.NewHandlers(notifier, mailer, paymentSvc, log)
	engineCfg := sched.EngineConfig{Interval: cfg.Scheduler.TickerInterval()}
	engine := sched.NewEngine(store, handlers, engineCfg, log)
	engine.Start()
	engine.LogStatus()

	srv := server.New(cfg, hub, dispatcher, engine, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Infow("Shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		log.Warnw("HTTP shutdown did not complete cleanly", "error", err.Error())
	}
	engine.Stop()
	hub.Stop()

	log.Infow("Casevine stopped")
	return nil
}
