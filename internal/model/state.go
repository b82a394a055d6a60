package model

// SearchStatus is the state of the search supersession state machine
type SearchStatus string

const (
	SearchIdle     SearchStatus = "idle"
	SearchFetching SearchStatus = "fetching"
	SearchSettled  SearchStatus = "settled"
)

// QueryState is a snapshot of the search controller
type QueryState struct {
	LatestQuery string       `json:"latest_query"`
	Generation  uint64       `json:"generation"`
	Status      SearchStatus `json:"status"`
	Results     []Coin       `json:"results"`
}

// HistoryStatus is the state of the history fetch state machine
type HistoryStatus string

const (
	HistoryNotLoaded HistoryStatus = "not_loaded"
	HistoryLoading   HistoryStatus = "loading"
	HistoryLoaded    HistoryStatus = "loaded"
	HistoryFailed    HistoryStatus = "failed"
)

// HistoryState is a snapshot of the history controller.
// History is set only when Status is HistoryLoaded, Err only when HistoryFailed.
type HistoryState struct {
	Status  HistoryStatus
	Coin    *Coin
	History *History
	Err     error
}
