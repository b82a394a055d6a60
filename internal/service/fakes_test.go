package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/yourorg/coinscope/internal/events"
	"github.com/yourorg/coinscope/internal/model"
)

const testTimeout = 2 * time.Second

type searchReply struct {
	coins []model.Coin
	err   error
}

type searchCall struct {
	ctx   context.Context
	query string
	reply chan searchReply
}

type historyReply struct {
	history *model.History
	err     error
}

type historyCall struct {
	ctx    context.Context
	coinID string
	reply  chan historyReply
}

// fakeMarket hands every request to the test through a channel and blocks
// until the test replies. With ignoreCancel set, a cancelled request still
// waits for its reply, modelling a response already in flight.
type fakeMarket struct {
	searches     chan searchCall
	histories    chan historyCall
	ignoreCancel bool

	mu           sync.Mutex
	historyCount int
}

func newFakeMarket(ignoreCancel bool) *fakeMarket {
	return &fakeMarket{
		searches:     make(chan searchCall, 64),
		histories:    make(chan historyCall, 64),
		ignoreCancel: ignoreCancel,
	}
}

func (f *fakeMarket) SearchCoins(ctx context.Context, query string) ([]model.Coin, error) {
	call := searchCall{ctx: ctx, query: query, reply: make(chan searchReply, 1)}
	f.searches <- call

	select {
	case r := <-call.reply:
		return r.coins, r.err
	case <-ctx.Done():
		if f.ignoreCancel {
			r := <-call.reply
			return r.coins, r.err
		}
		return nil, &model.TransportError{URL: "fake", Err: ctx.Err()}
	}
}

func (f *fakeMarket) FetchHistory(ctx context.Context, coinID string) (*model.History, error) {
	f.mu.Lock()
	f.historyCount++
	f.mu.Unlock()

	call := historyCall{ctx: ctx, coinID: coinID, reply: make(chan historyReply, 1)}
	f.histories <- call

	select {
	case r := <-call.reply:
		return r.history, r.err
	case <-ctx.Done():
		if f.ignoreCancel {
			r := <-call.reply
			return r.history, r.err
		}
		return nil, &model.TransportError{URL: "fake", Err: ctx.Err()}
	}
}

func (f *fakeMarket) historyCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.historyCount
}

func (f *fakeMarket) nextSearch(t *testing.T) searchCall {
	t.Helper()
	select {
	case call := <-f.searches:
		return call
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for a search request")
	}
	return searchCall{}
}

func (f *fakeMarket) nextHistory(t *testing.T) historyCall {
	t.Helper()
	select {
	case call := <-f.histories:
		return call
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for a history request")
	}
	return historyCall{}
}

func (f *fakeMarket) expectNoSearch(t *testing.T) {
	t.Helper()
	select {
	case call := <-f.searches:
		t.Fatalf("unexpected search request for %q", call.query)
	case <-time.After(50 * time.Millisecond):
	}
}

// recordingReporter keeps reported events in order
type recordingReporter struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingReporter) Report(event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingReporter) ofType(eventType events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []events.Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// waitFor receives from ch until match returns true
func waitFor[T any](t *testing.T, ch <-chan T, match func(T) bool) T {
	t.Helper()
	deadline := time.After(testTimeout)
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				t.Fatal("subscription closed while waiting")
			}
			if match(v) {
				return v
			}
		case <-deadline:
			t.Fatal("timed out waiting for a matching value")
		}
	}
}

func coin(id string) model.Coin {
	return model.Coin{ID: id, Name: id, Symbol: id}
}
