package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"

	httpapi "github.com/i474232898/weather-ai/internal/api/http"
	"github.com/i474232898/weather-ai/internal/artifact"
	"github.com/i474232898/weather-ai/internal/config"
	"github.com/i474232898/weather-ai/internal/llm"
	"github.com/i474232898/weather-ai/internal/logging"
	"github.com/i474232898/weather-ai/internal/scheduler"
	"github.com/i474232898/weather-ai/internal/store"
	"github.com/i474232898/weather-ai/internal/trigger"
)

var resultStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))

func main() {
	serve := flag.Bool("serve", false, "serve the run API instead of running once")
	city := flag.String("city", "", "pin the run to a named city")
	flag.Parse()

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *city != "" {
		cfg.Location.City = *city
	}

	appLogger, closer, err := logging.New(logging.Options{
		Level:   logging.ParseLevel(cfg.Log.Level),
		File:    cfg.Path(cfg.Log.File),
		Console: cfg.Log.Console,
	})
	if err != nil {
		log.Fatalf("failed to init logging: %v", err)
	}
	defer closer.Close()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *serve {
		err = runServer(ctx, cfg, appLogger)
	} else {
		err = runOnce(ctx, cfg, appLogger)
	}
	if err != nil {
		logging.Critical(appLogger, "WeatherAI stopped", "error", err)
		closer.Close()
		os.Exit(1)
	}
}

// runOnce performs a single run and prints its result, like pressing the
// button once.
func runOnce(ctx context.Context, cfg *config.Config, appLogger *slog.Logger) error {
	var observer llm.Observer
	if cfg.Model.Stream {
		observer = llm.NewConsoleObserver(os.Stdout)
	}

	c, err := build(ctx, cfg, observer, appLogger)
	if err != nil {
		return err
	}
	defer c.Close()

	out := c.pipeline.Run(ctx, time.Now().Format(artifact.StampLayout))
	fmt.Println(resultStyle.Render("Weather description:"))
	fmt.Println(out.Text)
	return nil
}

func runServer(ctx context.Context, cfg *config.Config, appLogger *slog.Logger) error {
	c, err := build(ctx, cfg, nil, appLogger)
	if err != nil {
		return err
	}
	defer c.Close()

	// In-memory run history with configured retention.
	runs := store.NewMemoryStore(cfg.Store.MaxHistory, cfg.Store.MaxAge)
	dispatcher := trigger.NewDispatcher(c.pipeline, runs, cfg.Server.RunTimeout, appLogger)

	// Scheduler that periodically starts runs.
	sched := scheduler.New(dispatcher, cfg.Server.ScheduleInterval, appLogger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "weather-ai",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-ai",
			"busy":    dispatcher.Active() != uuid.Nil,
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, dispatcher)

	go func() {
		appLogger.Info("HTTP server listening", "addr", cfg.ServerAddr())
		if err := app.Listen(cfg.ServerAddr()); err != nil {
			appLogger.Error("fiber server stopped", "error", err)
		}
	}()

	<-ctx.Done()

	// No new runs may be dispatched once we start waiting on the dispatcher.
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		appLogger.Error("error during shutdown", "error", err)
	}
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		appLogger.Warn("Run still active at shutdown", "run_id", dispatcher.Active())
	}
	return nil
}
