// Package pipeline runs one aggregation cycle: fetch offers, price every catalog item,
// rotate the snapshot into the history ring, recompute averages and publish.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/rewired-gh/fleaprice/internal/history"
	"github.com/rewired-gh/fleaprice/internal/logger"
	"github.com/rewired-gh/fleaprice/internal/market"
	"github.com/rewired-gh/fleaprice/internal/metrics"
	"github.com/rewired-gh/fleaprice/internal/models"
	"github.com/rewired-gh/fleaprice/internal/pricing"
	"github.com/rewired-gh/fleaprice/internal/storage"
)

// ErrNoItems is returned when the catalog is empty.
var ErrNoItems = errors.New("catalog has no items")

// Catalog lists the items to price.
type Catalog interface {
	Items(ctx context.Context) ([]models.Item, error)
}

// Market is the marketplace gateway.
type Market interface {
	OfferCounts(ctx context.Context, s market.Session, filter market.Filter) (map[string]int64, error)
	Search(ctx context.Context, s market.Session, limit int64, filter market.Filter) (*models.OfferBatch, error)
	BasePrices(ctx context.Context, s market.Session) (map[string]int64, error)
}

// Publisher receives the report of every committed run.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, report *models.RunReport) error
}

// Deps are the collaborators of a pipeline.
type Deps struct {
	Catalog    Catalog
	Market     Market
	Session    market.Session
	Store      storage.Store
	Publishers []Publisher
}

// Config holds run behavior.
type Config struct {
	Workers         int
	SkipFailedItems bool
	FetchBasePrices bool
	Pricing         pricing.Config
	Periods         int
	Mode            history.Mode
}

// Pipeline runs aggregation cycles. Runs must not overlap.
type Pipeline struct {
	deps     Deps
	cfg      Config
	planner  pricing.Planner
	calc     *pricing.Calculator
	ring     history.Ring
	averager history.Averager
	now      func() time.Time
}

type itemResult struct {
	price   int64
	priced  bool
	skipped bool
	err     error
}

func New(deps Deps, cfg Config) (*Pipeline, error) {
	if deps.Catalog == nil || deps.Market == nil || deps.Store == nil {
		return nil, errors.New("pipeline requires a catalog, a market and a store")
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	mode, err := history.ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		deps:     deps,
		cfg:      cfg,
		planner:  pricing.NewPlanner(cfg.Pricing),
		calc:     pricing.NewCalculator(cfg.Pricing),
		ring:     history.NewRing(cfg.Periods),
		averager: history.Averager{Mode: mode},
		now:      time.Now,
	}, nil
}

// Run executes one cycle. Nothing is written unless every item was either priced,
// skipped, or (with SkipFailedItems) recorded as failed.
func (p *Pipeline) Run(ctx context.Context) (*models.RunReport, error) {
	start := p.now()
	report, err := p.run(ctx)
	metrics.RecordRun(p.now().Sub(start), err)
	return report, err
}

func (p *Pipeline) run(ctx context.Context) (*models.RunReport, error) {
	report := &models.RunReport{
		RunID:     uuid.NewString(),
		StartedAt: p.now(),
		Periods:   p.ring.Periods,
	}
	logger.Info("Starting run %s", report.RunID)

	items, err := p.deps.Catalog.Items(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	report.Items = len(items)

	if p.cfg.FetchBasePrices {
		base, err := p.deps.Market.BasePrices(ctx, p.deps.Session)
		if err != nil {
			logger.Warn("Failed to fetch base prices, continuing without them: %v", err)
		} else {
			report.BasePrices = base
			logger.Debug("Fetched %d base prices", len(base))
		}
	}

	counts, err := p.deps.Market.OfferCounts(ctx, p.deps.Session, market.CountFilter())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch offer counts: %w", err)
	}
	logger.Info("Fetched offer counts for %d items, pricing %d catalog items", len(counts), len(items))

	results, err := p.priceItems(ctx, items, counts)
	if err != nil {
		return nil, err
	}

	prices := make(map[string]int64, len(items))
	for i, r := range results {
		id := items[i].ID
		switch {
		case r.err != nil:
			report.Failed = append(report.Failed, models.ItemError{ItemID: id, Err: r.err.Error()})
		case r.skipped:
			report.Skipped++
		case r.priced:
			prices[id] = r.price
			report.Priced++
		}
	}
	metrics.RecordItems(report.Priced, report.Skipped, len(report.Failed))
	if len(report.Failed) > 0 {
		logger.Warn("Run %s: %d of %d items failed and were skipped", report.RunID, len(report.Failed), len(items))
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run cancelled before commit: %w", err)
	}
	if err := p.commit(ctx, report, items, prices); err != nil {
		return nil, err
	}
	report.FinishedAt = p.now()

	logger.Info("Run %s committed to slot %d: %d priced, %d skipped, %d failed in %v",
		report.RunID, report.Slot, report.Priced, report.Skipped, len(report.Failed), report.Duration())

	p.publish(ctx, report)
	return report, nil
}

// priceItems prices every item on a bounded pool. Results are addressed by catalog
// position so no shared map is written concurrently.
func (p *Pipeline) priceItems(ctx context.Context, items []models.Item, counts map[string]int64) ([]itemResult, error) {
	results := make([]itemResult, len(items))

	wp := pool.New().WithMaxGoroutines(p.cfg.Workers).WithContext(ctx)
	if !p.cfg.SkipFailedItems {
		wp = wp.WithCancelOnError().WithFirstError()
	}

	for i, item := range items {
		i, item := i, item
		wp.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				results[i] = itemResult{err: err}
				return err
			}
			r := p.priceItem(ctx, item, counts[item.ID])
			results[i] = r
			if r.err != nil && !p.cfg.SkipFailedItems {
				return fmt.Errorf("item %s: %w", item.ID, r.err)
			}
			return nil
		})
	}

	if err := wp.Wait(); err != nil {
		if !p.cfg.SkipFailedItems {
			return nil, fmt.Errorf("run aborted: %w", err)
		}
		return nil, err
	}
	return results, nil
}

func (p *Pipeline) priceItem(ctx context.Context, item models.Item, available int64) itemResult {
	requested := p.planner.SampleSize(available)
	if requested == 0 {
		logger.Debug("Item %s: nothing to request", item.ID)
		return itemResult{skipped: true}
	}

	batch, err := p.deps.Market.Search(ctx, p.deps.Session, requested, market.SampleFilter(item.ID))
	if err != nil {
		logger.Debug("Item %s: search failed: %v", item.ID, err)
		return itemResult{err: err}
	}
	if batch.TotalFetched == 0 || len(batch.Offers) == 0 {
		logger.Debug("Item %s: no offers returned", item.ID)
		return itemResult{skipped: true}
	}
	if batch.ItemID == "" {
		batch.ItemID = item.ID
	}

	avg, ok := p.calc.WeightedAverage(batch, requested)
	if !ok {
		logger.Debug("Item %s: offers carry no weight", item.ID)
		return itemResult{skipped: true}
	}
	logger.Debug("Item %s: %d offers of %d requested, average %d", item.ID, len(batch.Offers), requested, avg)
	return itemResult{price: avg, priced: true}
}

// commit writes the snapshot into the current slot, advances the index and refreshes
// the averages. Once the index is advanced the slot is consumed even if the averages
// write fails.
func (p *Pipeline) commit(ctx context.Context, report *models.RunReport, items []models.Item, prices map[string]int64) error {
	store := p.deps.Store

	idx, err := store.ReadIndex(ctx)
	if err != nil {
		return fmt.Errorf("failed to read history index: %w", err)
	}
	snap := models.PeriodSnapshot{
		Slot:    idx,
		RunID:   report.RunID,
		TakenAt: p.now(),
		Prices:  prices,
	}
	if err := store.WriteSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	next := p.ring.Advance(idx)
	if err := store.WriteIndex(ctx, next); err != nil {
		return fmt.Errorf("failed to advance history index: %w", err)
	}
	report.Slot = idx
	report.NextSlot = next
	report.Snapshot = snap
	metrics.RecordSlot(next)

	snapshots, err := store.ReadSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	avg := p.averager.Compute(snapshots, items)
	if err := store.WriteAverages(ctx, avg); err != nil {
		return fmt.Errorf("failed to write averages: %w", err)
	}
	report.Averages = avg
	logger.Debug("Averaged %d items over %d stored periods", len(avg), len(snapshots))
	return nil
}

func (p *Pipeline) publish(ctx context.Context, report *models.RunReport) {
	for _, pub := range p.deps.Publishers {
		if err := pub.Publish(ctx, report); err != nil {
			logger.Error("Publisher %s failed for run %s: %v", pub.Name(), report.RunID, err)
			metrics.RecordPublishFailure(pub.Name())
			continue
		}
		logger.Debug("Published run %s to %s", report.RunID, pub.Name())
	}
}
