// Package pipeline runs the daily ingestion: optionally refresh the
// chain registry from the government catalog, then three bounded
// parallel phases — download every chain's files, parse every chain's
// stores file, and reconcile every store's prices (and optionally
// promotions). A failed task is logged, counted, and skipped; it never
// cancels its siblings, and the run as a whole still completes.
package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"golang.org/x/sync/errgroup"

	"github.com/elikochva/openprices/internal/database"
	"github.com/elikochva/openprices/internal/httpx"
	"github.com/elikochva/openprices/internal/ingest"
	"github.com/elikochva/openprices/internal/metrics"
	"github.com/elikochva/openprices/internal/scrape"
	"github.com/elikochva/openprices/internal/storage"
	"github.com/elikochva/openprices/internal/xmlfile"
)

// Config tunes one pipeline run.
type Config struct {
	// Workers bounds the parallel tasks per phase.
	Workers int
	// Download runs the download phase; off when data is already cached.
	Download bool
	// DiscoverChains refreshes the chain registry from the catalog page
	// before the run.
	DiscoverChains bool
	// CatalogURL overrides the government catalog page.
	CatalogURL string
	// Promos also parses each store's promotions file.
	Promos bool
	// Date selects the snapshot day (zero means today).
	Date time.Time
}

// Driver wires the scrapers, parsers and database together for one run.
type Driver struct {
	db     *bun.DB
	client *httpx.Client
	cache  *storage.Cache
	parser *ingest.Parser
	cfg    Config
	log    zerolog.Logger
}

func NewDriver(db *bun.DB, client *httpx.Client, cache *storage.Cache, cfg Config, log zerolog.Logger) *Driver {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Date.IsZero() {
		cfg.Date = time.Now()
	}
	return &Driver{
		db:     db,
		client: client,
		cache:  cache,
		parser: ingest.NewParser(db, log),
		cfg:    cfg,
		log:    log.With().Str("component", "pipeline").Logger(),
	}
}

// chainTask pairs a registered chain with its portal scraper.
type chainTask struct {
	chain   *database.Chain
	scraper scrape.Scraper
}

// Run executes the pipeline. Only setup failures (catalog, database)
// are returned; per-chain and per-store failures are logged and
// skipped.
func (d *Driver) Run(ctx context.Context) error {
	if d.cfg.DiscoverChains {
		catalog := scrape.NewCatalog(d.db, d.client, d.cache, d.cfg.CatalogURL, d.log)
		if err := catalog.DiscoverChains(ctx); err != nil {
			return err
		}
	}

	tasks, err := d.loadChains(ctx)
	if err != nil {
		return err
	}
	d.log.Info().Int("chains", len(tasks)).Msg("starting run")

	if d.cfg.Download {
		d.forEachChain(ctx, tasks, "download", func(ctx context.Context, t chainTask) error {
			_, err := t.scraper.DownloadAll(ctx, d.cfg.Date)
			return err
		})
	}

	d.forEachChain(ctx, tasks, "parse stores", d.parseChainStores)

	for _, t := range tasks {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.parseChainPrices(ctx, t)
	}

	d.log.Info().Msg("run finished")
	return ctx.Err()
}

// loadChains reads every registered chain with its portal access and
// builds the scrapers. Chains without access or without a scraper
// variant are skipped.
func (d *Driver) loadChains(ctx context.Context) ([]chainTask, error) {
	var chains []*database.Chain
	if err := d.db.NewSelect().
		Model(&chains).
		Relation("WebAccess").
		Scan(ctx); err != nil {
		return nil, err
	}

	var tasks []chainTask
	for _, chain := range chains {
		if chain.WebAccess == nil {
			d.log.Warn().Str("chain", chain.Name).Msg("chain has no portal access, skipping")
			continue
		}
		scraper, err := scrape.New(scrape.Info{
			Name:     chain.Name,
			FullID:   chain.FullID,
			URL:      chain.WebAccess.URL,
			Username: chain.WebAccess.Username,
			Password: chain.WebAccess.Password,
		}, d.client, d.cache, d.log)
		if err != nil {
			d.log.Warn().Err(err).Str("chain", chain.Name).Msg("skipping chain")
			continue
		}
		tasks = append(tasks, chainTask{chain: chain, scraper: scraper})
	}
	return tasks, nil
}

// forEachChain runs fn over every chain with bounded parallelism.
// Failures are counted and logged, never propagated.
func (d *Driver) forEachChain(ctx context.Context, tasks []chainTask, phase string, fn func(context.Context, chainTask) error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Workers)
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			if err := fn(ctx, t); err != nil {
				metrics.TaskFailures.Inc()
				d.log.Error().Err(err).Str("phase", phase).Str("chain", t.chain.Name).Msg("task failed")
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck // tasks never return errors
}

func (d *Driver) parseChainStores(ctx context.Context, t chainTask) error {
	path, err := t.scraper.StoresFile(ctx, nil)
	if err != nil {
		return err
	}
	root, err := xmlfile.Load(path)
	if err != nil {
		return err
	}
	return d.parser.ParseStores(ctx, t.chain, root)
}

// parseChainPrices reconciles every store of one chain, stores in
// parallel.
func (d *Driver) parseChainPrices(ctx context.Context, t chainTask) {
	var stores []*database.Store
	if err := d.db.NewSelect().
		Model(&stores).
		Where("chain_id = ?", t.chain.ID).
		Scan(ctx); err != nil {
		metrics.TaskFailures.Inc()
		d.log.Error().Err(err).Str("chain", t.chain.Name).Msg("loading stores failed")
		return
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Workers)
	for _, store := range stores {
		store := store
		g.Go(func() error {
			if err := d.parseStore(ctx, t, store); err != nil {
				metrics.TaskFailures.Inc()
				d.log.Error().Err(err).
					Str("chain", t.chain.Name).
					Int("store", store.StoreID).
					Msg("store parse failed")
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck // tasks never return errors
}

func (d *Driver) parseStore(ctx context.Context, t chainTask, store *database.Store) error {
	path, err := t.scraper.PricesFile(ctx, store.StoreID, d.cfg.Date)
	if err != nil {
		return err
	}
	root, err := xmlfile.Load(path)
	if err != nil {
		return err
	}
	if err := d.parser.ParseStorePrices(ctx, store, root, d.cfg.Date); err != nil {
		return err
	}

	if !d.cfg.Promos {
		return nil
	}
	path, err = t.scraper.PromosFile(ctx, store.StoreID, d.cfg.Date)
	if err != nil {
		return err
	}
	root, err = xmlfile.Load(path)
	if err != nil {
		return err
	}
	return d.parser.ParseStorePromos(ctx, store, root, d.cfg.Date)
}
