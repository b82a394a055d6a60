package service

import (
	"context"
	"sync"

	"github.com/yourorg/coinscope/internal/events"
	"github.com/yourorg/coinscope/internal/model"

	"go.uber.org/zap"
)

// HistoryFetcher loads the market history of one coin
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, coinID string) (*model.History, error)
}

// HistoryController loads the history of the selected coin once per selection
type HistoryController struct {
	fetcher   HistoryFetcher
	reporter  events.Reporter
	sessionID string
	logger    *zap.Logger

	parent   context.Context
	observed *Observable[model.HistoryState]
	wg       sync.WaitGroup

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	state      model.HistoryState
	closed     bool
}

// NewHistoryController creates a controller whose fetches are bound to parent
func NewHistoryController(
	parent context.Context,
	sessionID string,
	fetcher HistoryFetcher,
	reporter events.Reporter,
	logger *zap.Logger,
) *HistoryController {
	if reporter == nil {
		reporter = events.NopReporter{}
	}

	initial := model.HistoryState{Status: model.HistoryNotLoaded}
	return &HistoryController{
		fetcher:   fetcher,
		reporter:  reporter,
		sessionID: sessionID,
		logger:    logger.With(zap.String("sessionID", sessionID)),
		parent:    parent,
		observed:  NewObservable(initial),
		state:     initial,
	}
}

// SelectCoin starts loading the history of coin. Selecting the coin that is
// already loading or loaded does nothing and returns false.
func (c *HistoryController) SelectCoin(coin model.Coin) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	if c.state.Coin != nil && c.state.Coin.Equal(coin) &&
		(c.state.Status == model.HistoryLoading || c.state.Status == model.HistoryLoaded) {
		c.logger.Debug("Coin already selected", zap.String("coinID", coin.ID))
		return false
	}

	if c.cancel != nil {
		c.cancel()
	}

	c.generation++
	gen := c.generation
	ctx, cancel := context.WithCancel(c.parent)
	c.cancel = cancel

	selected := coin
	c.setState(model.HistoryState{Status: model.HistoryLoading, Coin: &selected})

	c.logger.Info("Loading history", zap.String("coinID", coin.ID))

	c.wg.Add(1)
	go c.run(ctx, gen, selected)

	return true
}

func (c *HistoryController) run(ctx context.Context, gen uint64, coin model.Coin) {
	defer c.wg.Done()

	history, err := c.fetcher.FetchHistory(ctx, coin.ID)

	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		c.logger.Debug("Discarding superseded history", zap.String("coinID", coin.ID))
		return
	}

	c.cancel()
	c.cancel = nil

	if err != nil {
		c.setState(model.HistoryState{Status: model.HistoryFailed, Coin: &coin, Err: err})
		c.mu.Unlock()

		c.logger.Error("Failed to load history",
			zap.String("coinID", coin.ID),
			zap.Error(err))
		c.reporter.Report(events.Event{
			Type:      events.HistoryFailed,
			SessionID: c.sessionID,
			CoinID:    coin.ID,
			Error:     err.Error(),
		})
		return
	}

	c.setState(model.HistoryState{Status: model.HistoryLoaded, Coin: &coin, History: history})
	c.mu.Unlock()

	count := len(history.Prices)
	c.logger.Info("History loaded",
		zap.String("coinID", coin.ID),
		zap.Int("points", count))
	c.reporter.Report(events.Event{
		Type:      events.HistoryLoaded,
		SessionID: c.sessionID,
		CoinID:    coin.ID,
		Count:     count,
	})
}

// setState must be called with c.mu held
func (c *HistoryController) setState(state model.HistoryState) {
	c.state = state
	c.observed.Set(state)
}

// State returns the current history state
func (c *HistoryController) State() model.HistoryState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe observes history state changes
func (c *HistoryController) Subscribe() (<-chan model.HistoryState, func()) {
	return c.observed.Subscribe()
}

// Close cancels the in-flight fetch and ends all subscriptions
func (c *HistoryController) Close() {
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
	c.observed.Close()
}
