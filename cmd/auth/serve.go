package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Skotchmaster/shop_auth/internal/db"
	"github.com/Skotchmaster/shop_auth/internal/httpserver"
	"github.com/Skotchmaster/shop_auth/internal/logging"
	"github.com/Skotchmaster/shop_auth/internal/middleware"
	"github.com/Skotchmaster/shop_auth/internal/repo"
)

func serveCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx = logging.IntoContext(ctx, a.log)

			if migrate {
				if err := db.Migrate(ctx, a.db); err != nil {
					return err
				}
			}
			return serve(ctx, a)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "Apply the schema before serving")

	return cmd
}

func serve(ctx context.Context, a *app) error {
	cookies := httpserver.CookieConfig{
		Secure:   a.cfg.CookieSecure,
		SameSite: a.cfg.CookieSameSite,
		MaxAge:   a.cfg.RefreshTokenTTL,
	}

	d := &httpserver.Deps{
		Log:            a.log,
		AllowedOrigins: a.cfg.AllowedOrigins,
		Gate:           &middleware.Authenticator{Codec: a.auth.Codec, Users: repo.New(a.db), Metrics: a.metrics},
		Auth:           &httpserver.AuthHTTP{Svc: a.auth, Accts: a.accounts, Cookies: cookies, Metrics: a.metrics},
		People:         &httpserver.PeopleHTTP{Accts: a.accounts},
		Ready: map[string]httpserver.Check{
			"db":    func(ctx context.Context) error { return db.Ping(ctx, a.db) },
			"redis": a.store.Ping,
		},
		Metrics: promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
	}
	if a.cfg.DemoHelpersEnabled {
		a.log.Warn("demo helpers are enabled")
		d.Dev = &httpserver.DevHTTP{Accts: a.accounts, Cookies: cookies}
	}

	srv := &http.Server{
		Addr:         a.cfg.ListenAddr,
		Handler:      httpserver.NewServer(d),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.log.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server shutdown error", "error", err)
	}
	a.log.Info("shutdown complete")
	return nil
}
