package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/chestsvc/chest/internal/config"
	"github.com/chestsvc/chest/internal/httpapi"
	"github.com/chestsvc/chest/internal/reaper"
	"github.com/chestsvc/chest/internal/totp"
	"github.com/chestsvc/chest/internal/version"
	"github.com/chestsvc/chest/pkg/chest"
	"github.com/chestsvc/chest/pkg/metadata"
	"github.com/chestsvc/chest/pkg/stats"
	"github.com/chestsvc/chest/pkg/storage"
	"github.com/chestsvc/chest/pkg/tokens"
	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chest HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// https://github.com/spf13/cobra/issues/340#issuecomment-374617413
			cmd.SilenceUsage = true

			return runServe(cmd.Context())
		},
	}

	return cmd
}

func runServe(ctx context.Context) error {
	logger := slog.Default()
	logger.Info("starting chest", "version", version.FullVersion)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN, Release: version.FullVersion}); err != nil {
			return fmt.Errorf("serve: initializing sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	meta, err := metadata.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("serve: opening metadata store: %w", err)
	}
	defer meta.Close()

	blobs, err := newBlobGateway(ctx, cfg)
	if err != nil {
		return err
	}

	tok := tokens.NewService(cfg.JWTSecret)

	totpGate, err := totp.ParseSecrets(cfg.TOTPSecrets)
	if err != nil {
		return fmt.Errorf("serve: parsing TOTP secrets: %w", err)
	}

	engine := chest.New(meta, blobs, tok)

	r := reaper.New(meta, blobs)
	r.RunPeriodic(ctx, cfg.ReapInterval, logger)

	handler := httpapi.New(engine, tok, totpGate, cfg.RequireTOTP, logger)

	return runServer(ctx, cfg.Host, handler, logger)
}

func newBlobGateway(ctx context.Context, cfg *config.Config) (storage.Gateway, error) {
	switch cfg.StorageBackend {
	case config.BackendS3:
		client, err := storage.NewS3ClientFromEnv(ctx, cfg.S3Endpoint)
		if err != nil {
			return nil, fmt.Errorf("serve: building s3 client: %w", err)
		}
		if cfg.S3Prefix == "" {
			return storage.NewS3Gateway(client, cfg.S3Bucket), nil
		}
		return storage.NewS3Gateway(client, cfg.S3Bucket, cfg.S3Prefix), nil

	case config.BackendAzure:
		client, err := storage.NewAzureClientFromConnectionString(cfg.AzureConnectionString)
		if err != nil {
			return nil, fmt.Errorf("serve: building azure client: %w", err)
		}
		return storage.NewAzureGateway(client, cfg.AzureContainer), nil

	default:
		return nil, fmt.Errorf("serve: unknown storage backend %q", cfg.StorageBackend)
	}
}

func runServer(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("serve: listen on %s: %w", addr, err)
	}

	srv := &http.Server{Handler: handler}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(listener)
	}()

	logger.InfoContext(ctx, "chest started", "addr", listener.Addr().String())

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		stats.Default().LogSummary()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("serve: shutdown: %w", err)
		}
		logger.Info("chest stopped")
	}

	return nil
}
