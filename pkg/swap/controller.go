package swap

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/rs/zerolog"

	"evm-swap/pkg/metrics"
	"evm-swap/pkg/network"
	"evm-swap/pkg/parser"
	"evm-swap/pkg/session"
	"evm-swap/pkg/types"
)

// DefaultRefreshInterval is how often a priced quote is refreshed.
const DefaultRefreshInterval = 15 * time.Second

// SessionSource exposes session state changes.
type SessionSource interface {
	Snapshot() session.Session
	SubscribeUpdates(ch chan<- session.Session) event.Subscription
}

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	Metadata        MetadataSource
	Contracts       ContractSource // nil when no wallet provider is available
	Network         network.Descriptor
	RefreshInterval time.Duration
	Logger          zerolog.Logger
}

// Controller keeps the quote for the current request and network up to date.
//
// Every input change bumps a generation counter. A refresh commits its result
// only if the generation it started with is still current.
type Controller struct {
	meta      MetadataSource
	contracts ContractSource
	interval  time.Duration
	log       zerolog.Logger

	mu      sync.Mutex
	req     types.QuoteRequest
	network network.Descriptor
	valid   bool
	gen     uint64
	result  types.QuoteResult

	changed chan struct{}
	results event.Feed
}

// NewController creates a Controller in the Idle state.
func NewController(opts ControllerOptions) *Controller {
	interval := opts.RefreshInterval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Controller{
		meta:      opts.Metadata,
		contracts: opts.Contracts,
		interval:  interval,
		log:       opts.Logger.With().Str("component", "quote").Logger(),
		network:   opts.Network,
		result:    types.QuoteResult{Status: types.QuoteIdle},
		changed:   make(chan struct{}, 1),
	}
}

// SetRequest replaces the quote request. The previous result is discarded.
func (c *Controller) SetRequest(req types.QuoteRequest) error {
	var err error
	valid := false
	if req.TokenAddress != "" {
		err = parser.ValidateQuoteRequest(&req)
		valid = err == nil
	}

	c.mu.Lock()
	c.req = req
	c.valid = valid
	snap := c.resetLocked(err)
	c.mu.Unlock()

	c.publish(snap)
	c.signal()
	return err
}

// SetNetwork switches the network quotes are priced on. The previous result is discarded.
func (c *Controller) SetNetwork(desc network.Descriptor) {
	c.mu.Lock()
	c.network = desc
	var err error
	if c.req.TokenAddress != "" && !c.valid {
		err = parser.ValidateQuoteRequest(&c.req)
	}
	snap := c.resetLocked(err)
	c.mu.Unlock()

	c.publish(snap)
	c.signal()
}

// resetLocked starts a new generation with a fresh result.
func (c *Controller) resetLocked(validationErr error) types.QuoteResult {
	c.gen++

	c.result = types.QuoteResult{Status: types.QuoteIdle, Generation: c.gen}
	switch {
	case validationErr != nil:
		c.result.Status = types.QuoteErrored
		c.result.Estimate = types.EstimateError
		c.result.Error = validationErr.Error()
	case c.valid:
		c.result.Status = types.QuoteFetching
	}
	return c.result
}

// Request returns the current quote request.
func (c *Controller) Request() types.QuoteRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.req
}

// Network returns the network quotes are priced on.
func (c *Controller) Network() network.Descriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.network
}

// Snapshot returns the latest committed result.
func (c *Controller) Snapshot() types.QuoteResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// SubscribeResults delivers every committed or reset result.
func (c *Controller) SubscribeResults(ch chan<- types.QuoteResult) event.Subscription {
	return c.results.Subscribe(ch)
}

func (c *Controller) publish(r types.QuoteResult) {
	c.results.Send(r)
}

func (c *Controller) signal() {
	select {
	case c.changed <- struct{}{}:
	default:
	}
}

// Refresh runs one quote cycle for the current inputs. Token metadata and
// decimals are re-read on every cycle. Results whose inputs changed while in
// flight are dropped.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if !c.valid {
		c.mu.Unlock()
		return nil
	}
	gen, req, desc := c.gen, c.req, c.network
	c.mu.Unlock()

	decimals := c.TokenDecimals(ctx, req.TokenAddress)
	token, _ := c.fetchMetadata(ctx, desc, req.TokenAddress)
	if token != nil {
		token.Decimals = decimals
	}

	estimate, err := c.GetEstimatedTokens(ctx, desc, req, decimals)

	// A cancelled refresh has been superseded
	if ctx.Err() != nil {
		return ctx.Err()
	}
	metrics.QuoteRefreshes.WithLabelValues(desc.Name, metrics.Outcome(err)).Inc()

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		metrics.QuoteStaleDiscarded.Inc()
		c.log.Debug().Uint64("generation", gen).Msg("discarding stale quote")
		return nil
	}

	result := types.QuoteResult{
		Decimals:   decimals,
		Estimate:   estimate,
		Status:     types.QuotePriced,
		Token:      token,
		Generation: gen,
	}
	if err != nil {
		result.Status = types.QuoteErrored
		result.Error = err.Error()
	}
	c.result = result
	c.mu.Unlock()

	if err != nil {
		c.log.Warn().Err(err).Str("network", desc.Name).Str("token", req.TokenAddress).Msg("quote failed")
	} else {
		c.log.Debug().Str("estimate", estimate).Str("token", req.TokenAddress).Msg("quote updated")
	}
	c.publish(result)
	return err
}

// Run refreshes whenever the inputs change and every refresh interval until ctx ends.
// An input change cancels the in-flight refresh and restarts the interval.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	cancel := context.CancelFunc(func() {})
	defer func() {
		cancel()
		wg.Wait()
	}()

	start := func() {
		cancel()
		var refreshCtx context.Context
		refreshCtx, cancel = context.WithCancel(ctx)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Refresh(refreshCtx)
		}()
	}

	start()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.changed:
			ticker.Reset(c.interval)
			start()
		case <-ticker.C:
			start()
		}
	}
}

// Follow applies network changes from the session until ctx ends.
func (c *Controller) Follow(ctx context.Context, src SessionSource) error {
	ch := make(chan session.Session, 8)
	sub := src.SubscribeUpdates(ch)
	defer sub.Unsubscribe()

	current := src.Snapshot().Network
	if current.ChainID != c.Network().ChainID {
		c.SetNetwork(current)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case s := <-ch:
			if s.Network.ChainID != current.ChainID {
				current = s.Network
				c.SetNetwork(current)
			}
		}
	}
}
