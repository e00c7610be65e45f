package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/offsync"
	"github.com/unkn0wn-root/offsync/internal/config"
	"github.com/unkn0wn-root/offsync/worker"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the worker proxy",
		Long: `Installs the configured cache generation, proxies the origin with
cache-first assets and network-first API calls, and drains the outbox when
connectivity returns. Editing generation in the config file installs a new
worker that waits until a page activates it.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd)
		},
	}
	cmd.Flags().String("listen", "", "Listen address")
	cmd.Flags().String("origin", "", "Application origin (scheme://host)")
	cmd.Flags().String("generation", "", "Cache generation to install")
	cmd.Flags().String("check-url", "", "Connectivity check URL")
	return cmd
}

func (a *app) runServe(cmd *cobra.Command) error {
	cfg, err := a.load(cmd, map[string]string{
		"listen":     "listen",
		"origin":     "origin",
		"generation": "generation",
		"check-url":  "sync.check_url",
	})
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logOut, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logOut.Close()
	log := logOut.Logger

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, buckets, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	closeCache := func() {
		_ = provider.Close(ctx)
		if buckets != nil {
			_ = buckets.Close(ctx)
		}
	}
	codec, err := snapshotCodec(cfg)
	if err != nil {
		closeCache()
		return err
	}
	ob, err := openOutbox(ctx, cfg, log)
	if err != nil {
		closeCache()
		return err
	}
	defer ob.Close()

	host, err := worker.New(worker.Options{
		Origin:        cfg.Origin,
		Precache:      cfg.Precache,
		APIPrefix:     cfg.APIPrefix,
		OfflinePath:   cfg.OfflinePath,
		Provider:      provider,
		Buckets:       buckets,
		Codec:         codec,
		Outbox:        ob,
		Endpoints:     endpoints(cfg),
		EntryIDHeader: cfg.Sync.EntryIDHeader,
		CheckURL:      cfg.Sync.CheckURL,
		CheckInterval: cfg.Sync.CheckInterval,
		MaxBodyBytes:  int64(cfg.Cache.MaxEntryBytes),
		Logger:        log,
		Hooks:         hooks(cfg, logOut),
	})
	if err != nil {
		closeCache()
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := host.Close(cctx); err != nil {
			log.Error("close worker", offsync.Fields{"err": err})
		}
	}()

	if err := host.Start(ctx, cfg.Generation); err != nil {
		return err
	}
	handler, err := host.Handler()
	if err != nil {
		return err
	}

	a.loader.Watch(func(next *config.Config, err error) {
		if err != nil {
			log.Warn("config reload failed", offsync.Fields{"err": err})
			return
		}
		if next.Generation == "" {
			return
		}
		if err := host.Update(ctx, next.Generation); err != nil {
			log.Error("install generation", offsync.Fields{"generation": next.Generation, "err": err})
		}
	})

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 2)
	go func() {
		log.Info("listening", offsync.Fields{"addr": cfg.Listen, "origin": cfg.Origin, "generation": cfg.Generation})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := host.Run(ctx); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		err = nil
	case err = <-errCh:
	}
	stop()

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(sctx); serr != nil {
		log.Warn("shutdown", offsync.Fields{"err": serr})
	}
	log.Info("stopped", nil)
	return err
}
