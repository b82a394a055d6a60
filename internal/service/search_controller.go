package service

import (
	"context"
	"sync"

	"github.com/yourorg/coinscope/internal/events"
	"github.com/yourorg/coinscope/internal/model"

	"go.uber.org/zap"
)

// CoinSearcher looks up coins matching a free-text query
type CoinSearcher interface {
	SearchCoins(ctx context.Context, query string) ([]model.Coin, error)
}

// SearchController runs one search per submitted query and publishes only
// results belonging to the latest submission. Earlier requests are cancelled
// and whatever they return is discarded.
type SearchController struct {
	searcher  CoinSearcher
	reporter  events.Reporter
	sessionID string
	logger    *zap.Logger

	parent    context.Context
	published *Observable[[]model.Coin]
	wg        sync.WaitGroup

	mu          sync.Mutex
	generation  uint64
	cancel      context.CancelFunc
	latestQuery string
	status      model.SearchStatus
	results     []model.Coin
	closed      bool
}

// NewSearchController creates a controller whose requests are bound to parent
func NewSearchController(
	parent context.Context,
	sessionID string,
	searcher CoinSearcher,
	reporter events.Reporter,
	logger *zap.Logger,
) *SearchController {
	if reporter == nil {
		reporter = events.NopReporter{}
	}

	return &SearchController{
		searcher:  searcher,
		reporter:  reporter,
		sessionID: sessionID,
		logger:    logger.With(zap.String("sessionID", sessionID)),
		parent:    parent,
		published: NewObservable([]model.Coin{}),
		status:    model.SearchIdle,
		results:   []model.Coin{},
	}
}

// OnQueryChanged submits query as the newest generation and cancels the
// request of the previous one. It returns the generation the query runs under
// and false when the query was ignored.
func (c *SearchController) OnQueryChanged(query string) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return c.generation, false
	}

	// Nothing has been typed yet
	if c.status == model.SearchIdle && query == "" {
		return c.generation, false
	}

	if c.cancel != nil {
		c.cancel()
	}

	c.generation++
	gen := c.generation
	ctx, cancel := context.WithCancel(c.parent)
	c.cancel = cancel
	c.latestQuery = query
	c.status = model.SearchFetching

	c.logger.Debug("Submitting search",
		zap.String("query", query),
		zap.Uint64("generation", gen))

	c.wg.Add(1)
	go c.run(ctx, gen, query)

	return gen, true
}

func (c *SearchController) run(ctx context.Context, gen uint64, query string) {
	defer c.wg.Done()

	coins, err := c.searcher.SearchCoins(ctx, query)
	c.complete(gen, query, coins, err)
}

func (c *SearchController) complete(gen uint64, query string, coins []model.Coin, err error) {
	c.mu.Lock()

	if c.closed || gen != c.generation {
		c.mu.Unlock()
		c.logger.Debug("Discarding superseded search result",
			zap.String("query", query),
			zap.Uint64("generation", gen),
			zap.Bool("failed", err != nil))
		return
	}

	c.cancel()
	c.cancel = nil
	c.status = model.SearchSettled

	if err != nil {
		c.mu.Unlock()
		c.logger.Warn("Search failed",
			zap.String("query", query),
			zap.Uint64("generation", gen),
			zap.Error(err))
		c.reporter.Report(events.Event{
			Type:       events.SearchFailed,
			SessionID:  c.sessionID,
			Query:      query,
			Generation: gen,
			Error:      err.Error(),
		})
		return
	}

	if coins == nil {
		coins = []model.Coin{}
	}
	c.results = coins
	c.published.Set(cloneCoins(coins))
	c.mu.Unlock()

	c.logger.Debug("Search results published",
		zap.String("query", query),
		zap.Uint64("generation", gen),
		zap.Int("count", len(coins)))
	c.reporter.Report(events.Event{
		Type:       events.SearchPublished,
		SessionID:  c.sessionID,
		Query:      query,
		Generation: gen,
		Count:      len(coins),
	})
}

// State returns a snapshot of the controller
func (c *SearchController) State() model.QueryState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return model.QueryState{
		LatestQuery: c.latestQuery,
		Generation:  c.generation,
		Status:      c.status,
		Results:     cloneCoins(c.results),
	}
}

// Results returns the last published result list
func (c *SearchController) Results() []model.Coin {
	return cloneCoins(c.published.Get())
}

// Subscribe observes published result lists
func (c *SearchController) Subscribe() (<-chan []model.Coin, func()) {
	return c.published.Subscribe()
}

// Close cancels the in-flight request and ends all subscriptions.
// Queries submitted afterwards are ignored.
func (c *SearchController) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()

	c.wg.Wait()
	c.published.Close()
}

func cloneCoins(coins []model.Coin) []model.Coin {
	out := make([]model.Coin, len(coins))
	copy(out, coins)
	return out
}
