package ingest

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"finset/internal/config"
)

// DomainLimiters admits requests per source domain through token buckets.
// Wait blocks until a token is available; requests are never dropped.
type DomainLimiters struct {
	mu       sync.Mutex
	limits   map[string]config.DomainRateLimit
	limiters map[string]*rate.Limiter
}

// NewDomainLimiters creates one bucket per configured domain. Unknown
// domains share the "default" bucket, or a conservative fallback.
func NewDomainLimiters(limits []config.DomainRateLimit) *DomainLimiters {
	d := &DomainLimiters{
		limits:   make(map[string]config.DomainRateLimit, len(limits)),
		limiters: make(map[string]*rate.Limiter, len(limits)),
	}
	for _, l := range limits {
		d.limits[l.Domain] = l
	}
	return d
}

// Limit returns the settings that apply to domain
func (d *DomainLimiters) Limit(domain string) config.DomainRateLimit {
	if l, ok := d.limits[domain]; ok {
		return l
	}
	if l, ok := d.limits[config.DefaultDomain]; ok {
		return l
	}
	return config.DomainRateLimit{
		Domain:      config.DefaultDomain,
		Rate:        config.DefaultRate,
		Capacity:    config.DefaultCapacity,
		Retry:       config.DefaultRetry,
		Concurrency: config.DefaultConcurrency,
	}
}

func (d *DomainLimiters) limiter(domain string) *rate.Limiter {
	l := d.Limit(domain)

	d.mu.Lock()
	defer d.mu.Unlock()
	lim, ok := d.limiters[l.Domain]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.Rate), l.Capacity)
		d.limiters[l.Domain] = lim
	}
	return lim
}

// Wait blocks until domain admits one request or ctx is done
func (d *DomainLimiters) Wait(ctx context.Context, domain string) error {
	return d.limiter(domain).Wait(ctx)
}
