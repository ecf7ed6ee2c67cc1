package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/basket/internal/basket"
	"github.com/mesh-intelligence/basket/internal/httpapi"
	"github.com/mesh-intelligence/basket/internal/sheet"
)

// closeTimeout bounds the final flush after the server stops.
const closeTimeout = 15 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the shopping list page",
		Long: "Serve the list over HTTP until interrupted. Local file backends are\n" +
			"watched so edits made elsewhere show up on the next page load.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.viper.GetString(cfgKeyHTTPAddr)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: "+httpapi.DefaultAddr+")")
	return cmd
}

func (a *app) serve(ctx context.Context, addr string) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s, err := a.openSession(ctx, reg)
	if err != nil {
		return err
	}
	srv, err := httpapi.New(s.list, httpapi.Options{Logger: a.logger, Gatherer: reg})
	if err != nil {
		_ = s.close(context.Background())
		return sysError(err)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return srv.ListenAndServe(egCtx, addr)
	})
	if path := sheet.LocalPath(s.cfg); path != "" {
		eg.Go(func() error {
			return basket.Watch(egCtx, path, s.list, a.logger)
		})
	}
	err = eg.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if cerr := s.close(closeCtx); cerr != nil {
		a.logger.Error("closing list", zap.Error(cerr))
		if err == nil {
			return cerr
		}
	}
	if err != nil {
		return sysError(err)
	}
	a.logger.Info("server stopped")
	return nil
}
