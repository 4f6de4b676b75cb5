// Package disagg is the SDK entry point for running seismic hazard
// disaggregation programmatically: it decomposes the exceedance probability
// at a site into the contributions of magnitude, distance, location, epsilon
// and tectonic-region-type bins.
package disagg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/disagg/internal/config"
	"github.com/kailas-cloud/disagg/internal/db"
	dbBadger "github.com/kailas-cloud/disagg/internal/db/badger"
	dbRedis "github.com/kailas-cloud/disagg/internal/db/redis"
	"github.com/kailas-cloud/disagg/internal/gsim"
	hazardrepo "github.com/kailas-cloud/disagg/internal/repository/hazard"
	resultsrepo "github.com/kailas-cloud/disagg/internal/repository/results"
	rupturerepo "github.com/kailas-cloud/disagg/internal/repository/rupture"
	"github.com/kailas-cloud/disagg/internal/usecase/calc"
	"github.com/kailas-cloud/disagg/internal/usecase/compute"
	"github.com/kailas-cloud/disagg/internal/usecase/extract"
	"github.com/kailas-cloud/disagg/internal/usecase/intensity"
	"github.com/kailas-cloud/disagg/internal/usecase/selection"
)

const defaultReadinessTimeout = 10 * time.Second

// GSIMParams are the attenuation coefficients of one ground-motion model for
// one IMT: ln(iml) = C0 + C1*(M-6) + C2*ln(rrup+C3), constant ln-stddev.
type GSIMParams struct {
	C0, C1, C2, C3 float64
	Sigma          float64
}

// Params configures a disaggregation run.
type Params struct {
	MagBinWidth     float64
	DistBinWidth    float64
	CoordBinWidth   float64
	NumEpsilonBins  int
	TruncationLevel float64
	MaximumDistance float64 // km

	InvestigationTime float64 // years

	// IMTLevels maps each IMT to its hazard curve levels; required with PoEs.
	IMTLevels map[string][]float64
	// PoEs are the target exceedance probabilities. Mutually exclusive with
	// IMLDisagg, which gives fixed target intensities per IMT.
	PoEs      []float64
	IMLDisagg map[string]float64

	// RlzIndex picks explicit realizations; when empty, the NumRlzs
	// realizations closest to the weighted mean hazard are selected per site.
	RlzIndex []int
	NumRlzs  int

	MaxSitesDisagg  int
	ConcurrentTasks int
	MaxDataTransfer int64 // bytes

	// Outputs names the PMFs to persist; empty means all of them.
	Outputs     []string
	DisaggBySrc bool

	// GSIMs maps ground-motion model names to per-IMT coefficients.
	GSIMs map[string]map[string]GSIMParams
}

// Client runs disaggregation calculations against one datastore.
type Client struct {
	store  db.Store
	logger *zap.Logger

	ruptureTable string
}

type clientConfig struct {
	driver       string
	path         string
	addrs        []string
	password     string
	ruptureTable string
	logger       *zap.Logger
}

// Option configures the Client.
type Option func(*clientConfig)

// WithBadger uses an embedded badger datastore at the given directory.
func WithBadger(path string) Option {
	return func(c *clientConfig) {
		c.driver = "badger"
		c.path = path
	}
}

// WithRedis uses a redis datastore.
func WithRedis(addrs ...string) Option {
	return func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = addrs
	}
}

// WithPassword sets the redis password.
func WithPassword(password string) Option {
	return func(c *clientConfig) { c.password = password }
}

// WithRuptureTable sets the parquet rupture table path.
func WithRuptureTable(path string) Option {
	return func(c *clientConfig) { c.ruptureTable = path }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *clientConfig) { c.logger = logger }
}

// New creates a Client and connects to the datastore.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{logger: zap.NewNop()}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.ruptureTable == "" {
		return nil, errors.New("disagg: rupture table required (use WithRuptureTable)")
	}

	store, err := createStore(cfg)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("disagg: datastore not ready: %w", err)
	}

	return &Client{store: store, logger: cfg.logger, ruptureTable: cfg.ruptureTable}, nil
}

func createStore(cfg *clientConfig) (db.Store, error) {
	switch cfg.driver {
	case "", "badger":
		path := cfg.path
		if path == "" {
			path = "disagg-store"
		}
		s, err := dbBadger.NewStore(dbBadger.Config{Path: path})
		if err != nil {
			return nil, fmt.Errorf("disagg: create badger store: %w", err)
		}
		return s, nil
	case "redis":
		if len(cfg.addrs) == 0 {
			return nil, errors.New("disagg: redis address required")
		}
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.addrs,
			Password: cfg.password,
		})
		if err != nil {
			return nil, fmt.Errorf("disagg: create redis store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("disagg: unknown driver %q", cfg.driver)
	}
}

// Run executes a full disaggregation with the given parameters, reading the
// hazard inputs and writing all outputs through the client's datastore.
func (c *Client) Run(ctx context.Context, p Params) error {
	cc := calculationConfig(p)

	evaluators := make(map[string]compute.Evaluator, len(p.GSIMs))
	for name, byIMT := range p.GSIMs {
		params := make(map[string]gsim.Params, len(byIMT))
		for imt, g := range byIMT {
			params[imt] = gsim.Params{C0: g.C0, C1: g.C1, C2: g.C2, C3: g.C3, Sigma: g.Sigma}
		}
		model, err := gsim.New(params)
		if err != nil {
			return fmt.Errorf("disagg: model %s: %w", name, err)
		}
		evaluators[name] = model
	}

	table, err := rupturerepo.Open(c.ruptureTable)
	if err != nil {
		return fmt.Errorf("disagg: open rupture table: %w", err)
	}
	open := func() (compute.RuptureReader, error) {
		return rupturerepo.Open(c.ruptureTable)
	}

	hazard := hazardrepo.New(c.store)
	results := resultsrepo.New(c.store)
	service := calc.New(
		cc,
		hazard,
		results,
		table,
		selection.New(hazard, c.logger),
		intensity.New(hazard, c.logger),
		compute.New(open, evaluators, c.logger),
		extract.New(results, c.logger),
		c.logger,
	)

	sites, err := hazard.Sites(ctx, cc.MaxSitesDisagg)
	if err != nil {
		return fmt.Errorf("disagg: load sites: %w", err)
	}
	return service.Run(ctx, sites)
}

// Close releases the datastore connection.
func (c *Client) Close() {
	c.store.Close()
}

func calculationConfig(p Params) config.CalculationConfig {
	cc := config.CalculationConfig{
		MagBinWidth:       p.MagBinWidth,
		DistBinWidth:      p.DistBinWidth,
		CoordBinWidth:     p.CoordBinWidth,
		NumEpsilonBins:    p.NumEpsilonBins,
		TruncationLevel:   p.TruncationLevel,
		MaximumDistance:   p.MaximumDistance,
		InvestigationTime: p.InvestigationTime,
		IMTLevels:         p.IMTLevels,
		PoEs:              p.PoEs,
		IMLDisagg:         p.IMLDisagg,
		RlzIndex:          p.RlzIndex,
		NumRlzsDisagg:     p.NumRlzs,
		MaxSitesDisagg:    p.MaxSitesDisagg,
		ConcurrentTasks:   p.ConcurrentTasks,
		MaxDataTransfer:   p.MaxDataTransfer,
		DisaggOutputs:     p.Outputs,
		DisaggBySrc:       p.DisaggBySrc,
	}
	full := config.Config{Calculation: cc}
	full.ApplyDefaults()
	return full.Calculation
}
