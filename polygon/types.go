package polygon

// Ticker is a reference record from /v3/reference/tickers. Only Ticker and
// Name are interpreted; the rest passes through.
type Ticker struct {
	Ticker          string `json:"ticker"`
	Name            string `json:"name"`
	Market          string `json:"market,omitempty"`
	Locale          string `json:"locale,omitempty"`
	PrimaryExchange string `json:"primary_exchange,omitempty"`
	Type            string `json:"type,omitempty"`
	Active          bool   `json:"active"`
	CurrencyName    string `json:"currency_name,omitempty"`
	CIK             string `json:"cik,omitempty"`
	CompositeFIGI   string `json:"composite_figi,omitempty"`
	ShareClassFIGI  string `json:"share_class_figi,omitempty"`
	LastUpdatedUTC  string `json:"last_updated_utc,omitempty"`
	ID              string `json:"id,omitempty"`
}

// IdentityKey is the ticker symbol, falling back to the id
func (t Ticker) IdentityKey() string {
	if t.Ticker != "" {
		return t.Ticker
	}
	return t.ID
}

// TickersResponse is one page of tickers
type TickersResponse struct {
	Results   []Ticker `json:"results"`
	Count     *int     `json:"count,omitempty"`
	NextURL   string   `json:"next_url,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
	Status    string   `json:"status,omitempty"`

	// Stale is set when the page was served from an expired cache entry
	// because the upstream was unreachable.
	Stale bool `json:"-"`
}

// Query selects a page of tickers. When NextURL is set every other field is
// ignored and the cursor is followed as-is.
type Query struct {
	Search  string
	Market  string
	Active  *bool
	CUSIP   string
	CIK     string
	Limit   int
	Sort    string
	Order   string
	NextURL string
}
