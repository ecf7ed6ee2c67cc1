package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/basket/internal/basket"
	"github.com/mesh-intelligence/basket/internal/metrics"
	"github.com/mesh-intelligence/basket/internal/sheet"
	"github.com/mesh-intelligence/basket/internal/store"
	"github.com/mesh-intelligence/basket/pkg/types"
)

// session is an opened list and the sheet behind it.
type session struct {
	cfg   types.Config
	sheet sheet.Sheet
	list  *basket.List
}

// openSession opens the configured sheet and wraps it in a session cache.
// reg may be nil.
func (a *app) openSession(ctx context.Context, reg prometheus.Registerer) (*session, error) {
	cfg, err := a.listConfig()
	if err != nil {
		return nil, userError(err)
	}
	sh, err := sheet.Open(ctx, cfg)
	if err != nil {
		return nil, sysError(fmt.Errorf("open %s store: %w", cfg.Backend, err))
	}

	m := metrics.Nop()
	if reg != nil {
		m = metrics.New(reg)
	}
	opts := basket.OptionsFromConfig(cfg)
	opts.Logger = a.logger
	opts.Metrics = m
	list, err := basket.New(store.New(sh, a.logger, m), opts)
	if err != nil {
		_ = sh.Close()
		return nil, userError(err)
	}
	a.logger.Debug("list opened",
		zap.String("backend", cfg.Backend),
		zap.String("data_dir", cfg.DataDir),
		zap.String("sync_strategy", string(opts.SyncStrategy)))
	return &session{cfg: cfg, sheet: sh, list: list}, nil
}

// close flushes outstanding edits and releases the sheet.
func (s *session) close(ctx context.Context) error {
	err := s.list.Close(ctx)
	if cerr := s.sheet.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	if err != nil {
		return sysError(fmt.Errorf("close list: %w", err))
	}
	return nil
}
