package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yourorg/coinscope/internal/events"
	"github.com/yourorg/coinscope/internal/model"

	"go.uber.org/zap"
)

// MarketData is the upstream gateway a session drives
type MarketData interface {
	CoinSearcher
	HistoryFetcher
}

// Session owns the search and history controllers of one display.
// Closing it cancels every outstanding request.
type Session struct {
	ID        string
	CreatedAt time.Time

	search  *SearchController
	history *HistoryController
	cancel  context.CancelFunc

	lastActive atomic.Int64
	closeOnce  sync.Once
}

func newSession(id string, market MarketData, reporter events.Reporter, logger *zap.Logger, now time.Time) *Session {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		ID:        id,
		CreatedAt: now,
		search:    NewSearchController(ctx, id, market, reporter, logger),
		history:   NewHistoryController(ctx, id, market, reporter, logger),
		cancel:    cancel,
	}
	s.lastActive.Store(now.UnixNano())
	return s
}

// OnQueryChanged submits a new search query
func (s *Session) OnQueryChanged(query string) (uint64, bool) {
	s.touch()
	return s.search.OnQueryChanged(query)
}

// SearchState returns the search controller snapshot
func (s *Session) SearchState() model.QueryState {
	s.touch()
	return s.search.State()
}

// SubscribeSearch observes published search results
func (s *Session) SubscribeSearch() (<-chan []model.Coin, func()) {
	return s.search.Subscribe()
}

// SelectCoin requests the history of coin
func (s *Session) SelectCoin(coin model.Coin) bool {
	s.touch()
	return s.history.SelectCoin(coin)
}

// History returns the history controller state
func (s *Session) History() model.HistoryState {
	s.touch()
	return s.history.State()
}

// SubscribeHistory observes history state changes
func (s *Session) SubscribeHistory() (<-chan model.HistoryState, func()) {
	return s.history.Subscribe()
}

// LastActive reports when the session was last used
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// Touch marks the session as in use
func (s *Session) Touch() { s.touch() }

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// Close cancels outstanding work and waits for the controllers to stop
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.search.Close()
		s.history.Close()
	})
}
