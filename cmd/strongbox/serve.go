package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sagarc03/strongbox/config"
	strongboxhttp "github.com/sagarc03/strongbox/http"
	"github.com/sagarc03/strongbox/identity"
	"github.com/sagarc03/strongbox/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the strongbox HTTP server.

Owner routes require a bearer JWT signed with auth.jwt_secret. Presigned
download links are verified against the configured access keys.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 5708, "HTTP server port (env: STRONGBOX_SERVER_PORT)")
	serveCmd.Flags().String("public-url", "", "externally visible base URL (env: STRONGBOX_SERVER_PUBLIC_URL)")
	serveCmd.Flags().Bool("auto-migrate", true, "create missing tables instead of only validating them")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required to serve")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	autoMigrate, _ := cmd.Flags().GetBool("auto-migrate")

	a, err := openApp(ctx, cfg, autoMigrate)
	if err != nil {
		return err
	}
	defer a.Close()

	auth, err := identity.NewJWTAuthenticator(cfg.Auth.JWTSecret,
		identity.WithIssuer(cfg.Auth.Issuer),
		identity.WithLeeway(time.Duration(cfg.Auth.Leeway)*time.Second),
	)
	if err != nil {
		return fmt.Errorf("configure auth: %w", err)
	}

	handlerConfig := strongboxhttp.HandlerConfig{
		Authenticator:  auth,
		Health:         a.db,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		CORS:           cfg.Server.CORS,
	}
	if cfg.Metrics.Enabled {
		handlerConfig.Metrics = metrics.New()
		handlerConfig.MetricsPath = cfg.Metrics.Path
	}

	handler := strongboxhttp.NewHandler(&handlerConfig, a.service)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", "addr", addr, "public_url", cfg.Server.PublicURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		slog.Info("shutting down server...")
		grace := time.Duration(cfg.Server.ShutdownGrace) * time.Second
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "err", err)
		}
		return nil
	})

	return g.Wait()
}
