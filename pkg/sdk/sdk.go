// Package sdk binds the billing client to a read cache.
//
// Reads (Check, Usage, Customer) are keyed queries satisfied from cache
// while fresh. Mutations (Track, SetUsage, RevokeSubscription,
// CreateCheckout) always hit the API and, on success only, invalidate a
// fixed set of read keys:
//
//	Track              -> every check and usage entry
//	SetUsage           -> the check and usage entries for its exact ref
//	RevokeSubscription -> every customer entry
//	CreateCheckout     -> nothing
//
// Track invalidates broadly because one event can move several derived
// balances (shared pools); SetUsage is a direct overwrite of one ref and
// stays scoped to it.
package sdk

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/ascendraa/ascendraa-go/internal/metrics"
	"github.com/ascendraa/ascendraa-go/internal/querycache"
	"github.com/ascendraa/ascendraa-go/pkg/billing"
)

const (
	keyRoot           = "ascendraa"
	namespaceCheck    = "check"
	namespaceUsage    = "usage"
	namespaceCustomer = "customer"

	// DefaultCheckStaleTime is the freshness window for check and usage reads.
	DefaultCheckStaleTime = 5 * time.Second
	// DefaultCustomerStaleTime is the freshness window for customer reads.
	// Customer records change rarely, so the window is longer.
	DefaultCustomerStaleTime = 30 * time.Second
)

// Usage is the usage-centric view derived from the check endpoint.
type Usage struct {
	Usage         float64 `json:"usage"`
	Balance       float64 `json:"balance"`
	IncludedUsage float64 `json:"included_usage"`
}

// SDK is the cached front door to the billing API. Safe for concurrent use.
type SDK struct {
	client *billing.Client
	cache  *querycache.Store
	logger zerolog.Logger
	stats  *metrics.Set

	checkStaleTime    time.Duration
	customerStaleTime time.Duration
}

// Option customizes an SDK.
type Option func(*options)

type options struct {
	httpOpts          []billing.Option
	logger            zerolog.Logger
	registerer        prometheus.Registerer
	checkStaleTime    time.Duration
	customerStaleTime time.Duration
	readRetries       int
}

// WithLogger sets the logger shared by the SDK and its client.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics registers request and cache collectors on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithCheckStaleTime overrides the freshness window for check and usage reads.
func WithCheckStaleTime(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.checkStaleTime = d
		}
	}
}

// WithCustomerStaleTime overrides the freshness window for customer reads.
func WithCustomerStaleTime(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.customerStaleTime = d
		}
	}
}

// WithReadRetries overrides how many times a failed read fetch is retried.
// Mutations are never retried.
func WithReadRetries(n int) Option {
	return func(o *options) { o.readRetries = n }
}

// WithClientOptions forwards options to the underlying billing client.
func WithClientOptions(opts ...billing.Option) Option {
	return func(o *options) { o.httpOpts = append(o.httpOpts, opts...) }
}

// New builds an SDK from the billing configuration.
func New(cfg billing.Config, opts ...Option) (*SDK, error) {
	o := &options{
		logger:            zerolog.Nop(),
		checkStaleTime:    DefaultCheckStaleTime,
		customerStaleTime: DefaultCustomerStaleTime,
		readRetries:       2,
	}
	for _, opt := range opts {
		opt(o)
	}

	clientOpts := append([]billing.Option{billing.WithLogger(o.logger)}, o.httpOpts...)
	client, err := billing.New(cfg, clientOpts...)
	if err != nil {
		return nil, err
	}

	var stats *metrics.Set
	storeOpts := []querycache.StoreOption{querycache.WithReadRetries(o.readRetries)}
	if o.registerer != nil {
		stats = metrics.New(o.registerer)
		storeOpts = append(storeOpts, querycache.WithObserver(stats))
	}

	return &SDK{
		client:            client,
		cache:             querycache.NewStore(storeOpts...),
		logger:            o.logger,
		stats:             stats,
		checkStaleTime:    o.checkStaleTime,
		customerStaleTime: o.customerStaleTime,
	}, nil
}

// Client exposes the underlying billing client for uncached access.
func (s *SDK) Client() *billing.Client {
	return s.client
}

// SetCustomerToken rotates the customer token for subsequent calls.
func (s *SDK) SetCustomerToken(token string) {
	s.client.SetCustomerToken(token)
}

// SetPublicKey rotates the public key for subsequent calls.
func (s *SDK) SetPublicKey(key string) {
	s.client.SetPublicKey(key)
}

// Check returns the entitlement state for ref, from cache when fresh.
func (s *SDK) Check(ctx context.Context, ref billing.Ref) (*billing.CheckResult, error) {
	key := querycache.Key{keyRoot, namespaceCheck, ref.String()}
	value, err := s.cache.Do(ctx, key, s.checkStaleTime, func(ctx context.Context) (any, error) {
		result, err := s.client.Check(ctx, ref)
		s.observe("check", err)
		if err != nil {
			return nil, err
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*billing.CheckResult), nil
}

// GetUsage returns the usage view for ref, from cache when fresh. The value
// is derived from the check endpoint but cached under its own namespace.
func (s *SDK) GetUsage(ctx context.Context, ref billing.Ref) (*Usage, error) {
	key := querycache.Key{keyRoot, namespaceUsage, ref.String()}
	value, err := s.cache.Do(ctx, key, s.checkStaleTime, func(ctx context.Context) (any, error) {
		result, err := s.client.Check(ctx, ref)
		s.observe("usage", err)
		if err != nil {
			return nil, err
		}
		return &Usage{
			Usage:         result.Usage,
			Balance:       result.Balance,
			IncludedUsage: result.IncludedUsage,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*Usage), nil
}

// GetCustomer returns the customer record, from cache when fresh.
func (s *SDK) GetCustomer(ctx context.Context, customerID string) (*billing.Customer, error) {
	key := querycache.Key{keyRoot, namespaceCustomer, customerID}
	value, err := s.cache.Do(ctx, key, s.customerStaleTime, func(ctx context.Context) (any, error) {
		result, err := s.client.GetCustomer(ctx, customerID)
		s.observe("customer", err)
		if err != nil {
			return nil, err
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*billing.Customer), nil
}

// Track records a usage event. On success every cached check and usage
// entry is invalidated; a failed track invalidates nothing.
func (s *SDK) Track(ctx context.Context, ref billing.Ref, value float64, metadata map[string]any) (*billing.TrackResult, error) {
	result, err := s.client.Track(ctx, ref, value, metadata)
	s.observe("track", err)
	if err != nil {
		return nil, err
	}

	s.cache.InvalidatePrefix(querycache.Key{keyRoot, namespaceCheck})
	s.cache.InvalidatePrefix(querycache.Key{keyRoot, namespaceUsage})
	s.logger.Debug().Str("ref", ref.String()).Msg("track succeeded, check and usage caches invalidated")
	return result, nil
}

// SetUsage overwrites usage for ref. On success only the check and usage
// entries for that exact ref are invalidated; other refs keep their cache.
func (s *SDK) SetUsage(ctx context.Context, ref billing.Ref, value float64, metadata map[string]any) (*billing.SetUsageResult, error) {
	result, err := s.client.SetUsage(ctx, ref, value, metadata)
	s.observe("set_usage", err)
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(querycache.Key{keyRoot, namespaceCheck, ref.String()})
	s.cache.Invalidate(querycache.Key{keyRoot, namespaceUsage, ref.String()})
	s.logger.Debug().Str("ref", ref.String()).Msg("usage overwritten, ref caches invalidated")
	return result, nil
}

// CreateCheckout opens a checkout session. Checkout state lives server-side
// and in the redirect flow, so no cache entries are invalidated.
func (s *SDK) CreateCheckout(ctx context.Context, planID string, amount float64, opts *billing.CheckoutOptions) (*billing.CheckoutSession, error) {
	result, err := s.client.CreateCheckout(ctx, planID, amount, opts)
	s.observe("checkout", err)
	return result, err
}

// RevokeSubscription cancels one subscription, or all active subscriptions
// when subscriptionID is empty. On success every cached customer entry is
// invalidated.
func (s *SDK) RevokeSubscription(ctx context.Context, subscriptionID string) (*billing.RevokeResult, error) {
	result, err := s.client.RevokeSubscription(ctx, subscriptionID)
	s.observe("revoke_subscription", err)
	if err != nil {
		return nil, err
	}

	s.cache.InvalidatePrefix(querycache.Key{keyRoot, namespaceCustomer})
	s.logger.Debug().Msg("subscription revoked, customer cache invalidated")
	return result, nil
}

// InvalidateAll drops every cached entry. Intended for realtime event
// callbacks: the bridge never invalidates automatically, callers decide.
func (s *SDK) InvalidateAll() {
	s.cache.Flush()
}

// InvalidateRef drops the check and usage entries for one ref.
func (s *SDK) InvalidateRef(ref billing.Ref) {
	s.cache.Invalidate(querycache.Key{keyRoot, namespaceCheck, ref.String()})
	s.cache.Invalidate(querycache.Key{keyRoot, namespaceUsage, ref.String()})
}

// InvalidateCustomers drops every cached customer entry.
func (s *SDK) InvalidateCustomers() {
	s.cache.InvalidatePrefix(querycache.Key{keyRoot, namespaceCustomer})
}

func (s *SDK) observe(operation string, err error) {
	if s.stats == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.stats.ObserveRequest(operation, outcome)
}
