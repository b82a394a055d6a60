package model

// Coin represents a single entry of the CoinGecko search endpoint
type Coin struct {
	ID            string `json:"id" binding:"required"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	MarketCapRank *int   `json:"market_cap_rank,omitempty"`
	Thumb         string `json:"thumb"`
	Large         string `json:"large"`
}

// Key returns the identity used for equality and map lookups
func (c Coin) Key() string {
	return c.ID
}

// Equal reports whether both values refer to the same upstream coin
func (c Coin) Equal(other Coin) bool {
	return c.ID == other.ID
}

// Rank returns the market cap rank and whether upstream provided one
func (c Coin) Rank() (int, bool) {
	if c.MarketCapRank == nil {
		return 0, false
	}
	return *c.MarketCapRank, true
}

// CoinSearchResponse is the wire shape of GET /search
type CoinSearchResponse struct {
	Coins []Coin `json:"coins"`
}
