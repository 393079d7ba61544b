package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/njchilds90/derivtutor/internal/config"
	"github.com/njchilds90/derivtutor/internal/observability"
	"github.com/njchilds90/derivtutor/internal/server"
	"github.com/njchilds90/derivtutor/transcribe"
)

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file (default $"+config.EnvConfigPath+")")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, logOut io.Writer) error {
	logger := newLogger(cfg.Logging, logOut)
	slog.SetDefault(logger)

	shutdown, err := observability.InitTracer(cfg.Tracing.Stdout, os.Stdout)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("tracer shutdown", "error", err)
		}
	}()

	var tr transcribe.Transcriber
	if cfg.Vision.Enabled {
		slog.Info("Initializing OpenAI client", "model", cfg.Vision.Model)
		tr, err = transcribe.NewOpenAI(transcribe.OpenAIConfig{
			APIKey:  cfg.Vision.APIKey,
			Model:   cfg.Vision.Model,
			BaseURL: cfg.Vision.BaseURL,
			Timeout: cfg.Vision.Timeout,
		})
		if err != nil {
			return err
		}
	} else {
		slog.Warn("vision disabled, /api/check-images will answer 503")
	}

	gin.SetMode(gin.ReleaseMode)
	srv := server.New(server.Options{
		Config:      cfg,
		Verifier:    server.NewVerifier(cfg.Equivalence),
		Transcriber: tr,
		Logger:      logger,
	})

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}

func newLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
