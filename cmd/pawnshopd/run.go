package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	core "github.com/DomeLiquid/pawnshop"
	"github.com/DomeLiquid/pawnshop/config"
	"github.com/DomeLiquid/pawnshop/metrics"
	"github.com/DomeLiquid/pawnshop/p2p"
	"github.com/DomeLiquid/pawnshop/pawnshop"
	"github.com/DomeLiquid/pawnshop/runner"
	"github.com/DomeLiquid/pawnshop/store/memory"
	"github.com/DomeLiquid/pawnshop/store/sqlstore"
	"github.com/facebookgo/clock"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func runCommand() *cobra.Command {
	var cfgPath string
	c := &cobra.Command{
		Use:   "run",
		Short: "Produces blocks and sweeps every configured market",
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			return run(c.Context(), cfg)
		},
	}
	c.Flags().StringVarP(&cfgPath, "config", "c", "pawnshop.toml", "path to a toml or yaml config")
	return c
}

// stores hands out per-market stores, in memory unless a database is configured.
type stores struct {
	db  *gorm.DB
	log zerolog.Logger
}

func openStores(cfg config.Database, log zerolog.Logger) (*stores, error) {
	s := &stores{log: log}
	if cfg.Driver == "" {
		log.Warn().Msg("no database configured, market state is kept in memory")
		return s, nil
	}
	db, err := sqlstore.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := sqlstore.Migrate(db); err != nil {
		return nil, errors.Wrap(err, "migrate")
	}
	s.db = db
	return s, nil
}

func (s *stores) pawnshop(name string) (core.LoanStore, core.ShareStore) {
	if s.db == nil {
		return memory.NewLoanStore(), memory.NewShareStore()
	}
	return sqlstore.NewLoanStore(s.db, name), sqlstore.NewShareStore(s.db, name)
}

func (s *stores) borrows(name string) core.BorrowStore {
	if s.db == nil {
		return memory.NewBorrowStore()
	}
	return sqlstore.NewBorrowStore(s.db, name)
}

func (s *stores) eventSink(name string, m *metrics.Metrics) core.EventSink {
	if s.db == nil {
		return m.Sink(name)
	}
	log := s.log.With().Str("market", name).Logger()
	return core.MultiSink{sqlstore.NewEventLog(s.db, name, &log), m.Sink(name)}
}

func run(ctx context.Context, cfg *config.Config) error {
	log, closer, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.New()
	chain := core.NewChainClock(clk, cfg.Chain.StartHeight)
	ledger := memory.NewLedger()
	opts := []runner.Option{runner.WithLogger(&log)}

	var oracle core.PriceOracle
	if cfg.Oracle.Mixin {
		oracleLog := log.With().Str("component", "oracle").Logger()
		mixinOracle := core.NewMixinOracle(core.MixinQuoter{}, clk, cfg.Oracle.MaxAge, &oracleLog, cfg.Assets()...)
		if err := mixinOracle.Refresh(ctx); err != nil {
			log.Warn().Err(err).Msg("initial price refresh")
		}
		oracle = mixinOracle
		opts = append(opts, runner.WithOracle(mixinOracle))
	} else {
		static := memory.NewOracle()
		for symbol, quote := range cfg.Prices {
			price, err := config.PriceOf(quote)
			if err != nil {
				return err
			}
			static.SetPrice(symbol, price)
		}
		oracle = static
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(registry)
	if err != nil {
		return err
	}

	st, err := openStores(cfg.Database, log)
	if err != nil {
		return err
	}

	opts = append(opts, runner.WithMetrics(m))
	for _, p := range cfg.Pawnshops {
		params, err := p.Params()
		if err != nil {
			return err
		}
		marketLog := log.With().Str("market", p.Name).Logger()
		loans, shares := st.pawnshop(p.Name)
		market, err := pawnshop.New(params, ledger, oracle, chain, loans, shares,
			pawnshop.WithLogger(&marketLog),
			pawnshop.WithEventSink(st.eventSink(p.Name, m)))
		if err != nil {
			return errors.Wrapf(err, "pawnshop %s", p.Name)
		}
		opts = append(opts, runner.WithPawnshop(p.Name, market))
	}
	for _, mc := range cfg.Markets {
		params, err := mc.Params()
		if err != nil {
			return err
		}
		marketLog := log.With().Str("market", mc.Name).Logger()
		market, err := p2p.New(params, ledger, oracle, chain, st.borrows(mc.Name),
			p2p.WithLogger(&marketLog),
			p2p.WithEventSink(st.eventSink(mc.Name, m)))
		if err != nil {
			return errors.Wrapf(err, "market %s", mc.Name)
		}
		opts = append(opts, runner.WithMarket(mc.Name, market))
	}

	r, err := runner.New(clk, chain, cfg.Chain.BlockTime, opts...)
	if err != nil {
		return err
	}

	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(registry))
		server := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info().Msgf("metrics listening on %s", cfg.Metrics.Listen)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
