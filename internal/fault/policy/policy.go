// Package policy implements the interception policy: the per-request decision
// of whether a destination host receives a synthetic failure, and the mutation
// API the control surface drives.
package policy

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kdelane/faultgate/internal/fault/common/utils"
	"github.com/kdelane/faultgate/internal/fault/domain"
	"github.com/kdelane/faultgate/internal/fault/hostset"
)

// Policy owns the interception state: the enabled flag, the single active
// failure type, the block-non-xboxlive allow-list overlay, and the blocked
// host set. Decide is safe for concurrent callers; mutations are mutually
// exclusive and atomic with respect to in-flight Decide calls, which observe
// either the pre- or post-mutation state in its entirety.
type Policy struct {
	mu               sync.RWMutex
	enabled          bool
	failure          domain.FailureType
	blockNonXboxLive bool
	hosts            *hostset.Set

	// cache memoizes canonical host -> blocked under the current host rules.
	// enabled and failure are applied after the cached answer, so only
	// host-rule mutations purge it. nil when memoization is disabled.
	cache *lru.Cache[string, bool]
}

// Options configures a Policy at construction.
type Options struct {
	Enabled          bool
	FailureType      domain.FailureType
	BlockNonXboxLive bool
	BlockedHosts     []string // seeded via AddBlockedHost, sentinel-aware
	CacheSize        int      // decision memoization capacity; <= 0 disables
}

// New constructs a Policy. The zero Options value yields the reference start
// state: disabled, NotFound, allow-list mode off, empty host set.
func New(opts Options) (*Policy, error) {
	p := &Policy{
		enabled: opts.Enabled,
		failure: opts.FailureType,
		hosts:   hostset.New(),
	}
	if !p.failure.Valid() {
		p.failure = domain.NotFound
	}
	if opts.CacheSize > 0 {
		c, err := lru.New[string, bool](opts.CacheSize)
		if err != nil {
			return nil, err
		}
		p.cache = c
	}
	p.blockNonXboxLive = opts.BlockNonXboxLive
	for _, h := range opts.BlockedHosts {
		p.addBlockedHostLocked(h)
	}
	return p, nil
}

// Decide evaluates a destination host against the policy. It never fails:
// unknown or unusable hosts are simply not blocked.
func (p *Policy) Decide(host string) domain.Decision {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.enabled {
		return domain.EmptyDecision()
	}
	cn, err := utils.CanonicalHost(host)
	if err != nil || cn == "" {
		return domain.EmptyDecision()
	}
	if !p.blockedLocked(cn) {
		return domain.EmptyDecision()
	}
	return domain.Decision{
		Blocked:  true,
		Failure:  p.failure,
		Template: domain.TemplateFor(p.failure),
	}
}

// blockedLocked answers the host-rule membership question under at least a
// read lock, consulting the memoization cache when present. The lru cache is
// internally synchronized, so writing through it under RLock is safe.
func (p *Policy) blockedLocked(cn string) bool {
	if p.cache != nil {
		if blocked, ok := p.cache.Get(cn); ok {
			return blocked
		}
	}
	blocked := p.hosts.Contains(cn) ||
		(p.blockNonXboxLive && !strings.HasSuffix(cn, domain.AllowListSuffix))
	if p.cache != nil {
		p.cache.Add(cn, blocked)
	}
	return blocked
}

// SetEnabled toggles interception. Host rules and the failure selection are
// untouched; decisions are evaluated per request, so no re-evaluation happens.
func (p *Policy) SetEnabled(on bool) {
	p.mu.Lock()
	p.enabled = on
	p.mu.Unlock()
}

// Enabled reports whether interception is active.
func (p *Policy) Enabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.enabled
}

// SetFailureType replaces the active failure type unconditionally. Exactly one
// is active at a time; values outside the defined enum normalize to NotFound
// so the active selection is always valid.
func (p *Policy) SetFailureType(t domain.FailureType) {
	if !t.Valid() {
		t = domain.NotFound
	}
	p.mu.Lock()
	p.failure = t
	p.mu.Unlock()
}

// FailureType returns the active failure type.
func (p *Policy) FailureType() domain.FailureType {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.failure
}

// SetBlockNonXboxLive toggles allow-list mode: block every host not under
// xboxlive.com. It is a policy-wide rule, independent of explicit entries.
func (p *Policy) SetBlockNonXboxLive(on bool) {
	p.mu.Lock()
	p.blockNonXboxLive = on
	p.purgeLocked()
	p.mu.Unlock()
}

// BlockNonXboxLive reports whether allow-list mode is active.
func (p *Policy) BlockNonXboxLive() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.blockNonXboxLive
}

// AddBlockedHost adds a host entry. The reserved sentinel token maps to
// allow-list mode instead of a literal entry.
func (p *Policy) AddBlockedHost(host string) {
	p.mu.Lock()
	p.addBlockedHostLocked(host)
	p.mu.Unlock()
}

func (p *Policy) addBlockedHostLocked(host string) {
	if isSentinel(host) {
		p.blockNonXboxLive = true
	} else {
		p.hosts.Add(host)
	}
	p.purgeLocked()
}

// RemoveBlockedHost removes a host entry; the sentinel token clears allow-list
// mode instead.
func (p *Policy) RemoveBlockedHost(host string) {
	p.mu.Lock()
	if isSentinel(host) {
		p.blockNonXboxLive = false
	} else {
		p.hosts.Remove(host)
	}
	p.purgeLocked()
	p.mu.Unlock()
}

// Contains reports whether host is an explicit entry. Allow-list mode does not
// influence the answer.
func (p *Policy) Contains(host string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.hosts.Contains(host)
}

// BlockedHosts returns the explicit entries in insertion order.
func (p *Policy) BlockedHosts() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.hosts.Entries()
}

// HostList renders the full editable text form: the explicit entries joined
// with "; ", plus the sentinel token when allow-list mode is active.
func (p *Policy) HostList() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.hosts.String()
	if p.blockNonXboxLive {
		if s == "" {
			return domain.SentinelExternalServices
		}
		return s + hostset.Delimiter + domain.SentinelExternalServices
	}
	return s
}

// ReplaceAll parses raw as the full editable text form and replaces the host
// set and the allow-list flag atomically. On a malformed token nothing
// changes and the error names the rejected token(s); see
// hostset.ErrInvalidHostToken.
func (p *Policy) ReplaceAll(raw string) error {
	tokens := strings.Split(raw, ";")
	rest := tokens[:0]
	sentinelSeen := false
	for _, tok := range tokens {
		if isSentinel(tok) {
			sentinelSeen = true
			continue
		}
		rest = append(rest, tok)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.hosts.ReplaceAllTokens(rest); err != nil {
		return err
	}
	p.blockNonXboxLive = sentinelSeen
	p.purgeLocked()
	return nil
}

// purgeLocked drops all memoized decisions. Callers hold the write lock.
func (p *Policy) purgeLocked() {
	if p.cache != nil {
		p.cache.Purge()
	}
}

func isSentinel(tok string) bool {
	return strings.EqualFold(strings.TrimSpace(tok), domain.SentinelExternalServices)
}
