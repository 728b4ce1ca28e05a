package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cipherpaste/cfg"
	"cipherpaste/svc/api"
	"cipherpaste/svc/db"
	"cipherpaste/svc/lim"
	"cipherpaste/svc/svc"
	"cipherpaste/svc/util"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	c := a.cfg
	if err := cfg.Validate(c); err != nil {
		util.Error().Err(err).Msg("invalid configuration")
		return err
	}
	defer c.Wipe()
	util.Info().Str("environment", c.Environment).Msg("starting cipherpaste API")

	cdc, err := a.codec()
	if err != nil {
		return err
	}
	kv, err := openBackend(c)
	if err != nil {
		util.Error().Err(err).Str("backend", c.StoreBackend).Msg("failed to open paste store")
		return err
	}
	defer kv.Close()
	util.Info().Str("backend", c.StoreBackend).Msg("paste store opened")

	st, err := newStore(c, kv, c.Host)
	if err != nil {
		return err
	}
	pasteSvc := svc.NewPaste(cdc, st, c)

	limiter, err := lim.New(c.RateLimit.RPM, c.RateLimit.Burst, c.TrustedProxies)
	if err != nil {
		return err
	}
	defer limiter.Stop()
	util.Info().
		Int("rpm", c.RateLimit.RPM).
		Int("burst", c.RateLimit.Burst).
		Strs("trusted_proxies", c.TrustedProxies).
		Msg("rate limiter initialized")

	server := api.NewServer(c, pasteSvc, limiter, kv)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	if sqlite, ok := kv.(*db.SQLite); ok {
		g.Go(func() error {
			sqlite.RunMaintenance(gctx, c.CleanupInterval)
			return nil
		})
		util.Info().Dur("interval", c.CleanupInterval).Msg("SQLite maintenance worker started")
	}
	g.Go(func() error {
		<-gctx.Done()
		util.Info().Msg("shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		util.Error().Err(err).Msg("server stopped with error")
		return err
	}
	util.Info().Msg("shutdown complete")
	return nil
}
