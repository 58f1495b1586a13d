package commands

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"fundwizard/pkg/api"
	"fundwizard/pkg/cache"
	"fundwizard/pkg/cache/memory"
	"fundwizard/pkg/cache/redis"
	"fundwizard/pkg/cache/sqlstore"
	"fundwizard/pkg/chain"
	"fundwizard/pkg/config"
	"fundwizard/pkg/executor"
	"fundwizard/pkg/funds"
	"fundwizard/pkg/invalidate"
	"fundwizard/pkg/logging"
	promcollector "fundwizard/pkg/metrics/prometheus"
	"fundwizard/pkg/remote"
	"fundwizard/pkg/resilience"
	"fundwizard/pkg/wizard"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// app is the wired service.
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	backing cache.Layer
	sql     *sqlstore.Store
	views   *chain.Chain
	wizards *wizard.Manager
	server  *api.Server
}

// openBacking opens the layer holding drafts and receipts. The SQL store is
// also returned so it can be swept.
func openBacking(cfg *config.Config, collector *promcollector.Collector, logger *logging.Logger) (cache.Layer, *sqlstore.Store, error) {
	switch cfg.Drafts.Backing {
	case config.BackingMemory:
		mc := cfg.Drafts.Memory
		if mc.DefaultTTL <= 0 {
			mc.DefaultTTL = cfg.Drafts.Layer.DefaultTTL
		}
		return memory.New(mc), nil, nil

	case config.BackingRedis:
		r, err := redis.New(cfg.Drafts.Redis)
		if err != nil {
			return nil, nil, err
		}
		return resilience.NewLayer(r, cfg.Drafts.Guard, collector, logger), nil, nil

	case config.BackingSQLite, config.BackingPostgres:
		sc := cfg.Drafts.SQL
		sc.Dialect = sqlstore.Dialect(cfg.Drafts.Backing)
		s, err := sqlstore.Open(sc)
		if err != nil {
			return nil, nil, err
		}
		return resilience.NewLayer(s, cfg.Drafts.Guard, collector, logger), s, nil
	}
	return nil, nil, fmt.Errorf("unsupported draft backing %q", cfg.Drafts.Backing)
}

func openViews(cfg *config.Config, collector *promcollector.Collector, logger *logging.Logger) (*chain.Chain, error) {
	layers := []cache.Layer{memory.New(cfg.Views.Memory)}
	if cfg.Views.Redis.Enabled {
		r, err := redis.New(cfg.Views.Redis.Config)
		if err != nil {
			layers[0].Close()
			return nil, fmt.Errorf("views redis: %w", err)
		}
		layers = append(layers, r)
	}

	cc := cfg.Views.Chain
	cc.DefaultTTL = cfg.Views.Layer.EffectiveTTL(cc.DefaultTTL)
	return chain.New(cc, collector, logger, layers...)
}

// buildApp wires every component from cfg.
func buildApp(cfg *config.Config, logger *logging.Logger) (*app, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := promcollector.New("fundwizard")
	reg.MustRegister(collector)

	backing, sql, err := openBacking(cfg, collector, logger)
	if err != nil {
		return nil, fmt.Errorf("open draft backing: %w", err)
	}

	views, err := openViews(cfg, collector, logger)
	if err != nil {
		backing.Close()
		return nil, fmt.Errorf("open view cache: %w", err)
	}

	simulate, err := cfg.SimulatedKinds()
	if err != nil {
		backing.Close()
		views.Close()
		return nil, err
	}

	client := remote.NewClient(cfg.Remote, &http.Client{Transport: http.DefaultTransport}, collector, logger)
	inv := invalidate.New(views, collector, logger)

	ledgerCfg := cfg.Executor.Ledger
	if cfg.Drafts.Backing.Durable() && ledgerCfg.ExpectedItems > 0 {
		// The filter starts empty on restart and would hide persisted receipts.
		logger.Info("receipt pre-filter disabled for durable backing", zap.String("backing", string(cfg.Drafts.Backing)))
		ledgerCfg.ExpectedItems = 0
	}
	exec := executor.New(
		remote.NewStrategies(client, simulate, cfg.Simulate.Delay),
		executor.NewLedger(backing, ledgerCfg),
		inv,
		cfg.Executor,
		collector,
		logger,
	)

	wizards := wizard.NewManager(backing, cfg.Drafts.Layer.EffectiveTTL(0), collector, logger)

	srv, err := api.NewServer(api.Deps{
		Wizards:     wizards,
		Submitter:   exec,
		Catalog:     funds.NewCatalog(views, client, cfg.Views.Layer.EffectiveTTL(0), logger),
		Editor:      funds.NewEditor(client, inv, logger),
		Invalidator: inv,
		Registry:    reg,
		Gatherer:    reg,
	}, api.Config{
		Address:      cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		WaitTimeout:  cfg.Executor.Timeout + 5*time.Second,
		AccountID:    cfg.AccountID,
	}, logger)
	if err != nil {
		backing.Close()
		views.Close()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		backing: backing,
		sql:     sql,
		views:   views,
		wizards: wizards,
		server:  srv,
	}, nil
}

// Close flushes view warm-ups and releases every layer.
func (a *app) Close() error {
	var errs []error
	if err := a.views.Flush(2 * time.Second); err != nil {
		a.logger.Warn("view cache flush incomplete", zap.Error(err))
	}
	if err := a.views.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.backing.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
