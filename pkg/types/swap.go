package types

// QuoteRequest represents the user's swap inputs
type QuoteRequest struct {
	TokenAddress string `json:"token_address"`
	Amount       string `json:"amount"`   // Native currency amount, e.g. "0.01"
	Protocol     string `json:"protocol"` // DEX protocol name, e.g. "UniswapV2"
	SlippageBps  uint32 `json:"slippage_bps"`
}

// QuoteStatus is the state of a quote for the current request
type QuoteStatus string

const (
	QuoteIdle     QuoteStatus = "idle"     // No token entered
	QuoteFetching QuoteStatus = "fetching" // Refresh in flight
	QuotePriced   QuoteStatus = "priced"   // Estimate available
	QuoteErrored  QuoteStatus = "errored"  // Estimate failed
)

// EstimateError is shown in place of a numeric estimate when quoting fails
const EstimateError = "error"

// TokenInfo holds display metadata for a token
type TokenInfo struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol,omitempty"`
	LogoURL  string `json:"logo_url,omitempty"`
	Decimals uint8  `json:"decimals"`
}

// QuoteResult holds derived quote information for display
type QuoteResult struct {
	Token      *TokenInfo  `json:"token,omitempty"` // nil when metadata could not be fetched
	Decimals   uint8       `json:"decimals"`
	Estimate   string      `json:"estimate"`
	Status     QuoteStatus `json:"status"`
	Error      string      `json:"error,omitempty"`
	Generation uint64      `json:"generation"`
}

// NoticeLevel classifies user-facing notices
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeAlert   NoticeLevel = "alert"
)

// Notice is a message meant for the user rather than the log
type Notice struct {
	Level   NoticeLevel
	Message string
}

// Notifier delivers notices to the user
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(Notice)

// Notify calls f(n)
func (f NotifierFunc) Notify(n Notice) {
	f(n)
}

// Discard is a Notifier that drops every notice
var Discard Notifier = NotifierFunc(func(Notice) {})
