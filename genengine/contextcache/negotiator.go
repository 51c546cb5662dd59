package contextcache

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hrayleung/Jin-sub003/genengine/domain"
)

const (
	// minExplicitTokens is the estimated size below which creating an
	// explicit cache costs more than it saves.
	minExplicitTokens = 2048
	// serverCacheTTL is the lifetime requested for provider-side resources.
	serverCacheTTL = 3600 * time.Second
	// minClientTTL floors the local registry TTL.
	minClientTTL = 60 * time.Second
	// lockTTL bounds the per-key negotiation lock; remote creates are short.
	lockTTL = 30 * time.Second
)

// Negotiator decides, once per outgoing generation request, whether and how
// to exploit provider-side prompt caching, and rewrites the request in place.
// Caching is a best-effort optimization: every failure inside here degrades
// to "no cache" and the request proceeds unmodified.
type Negotiator struct {
	registry domain.CacheRegistry
	creator  domain.CachedContentCreator
}

// NewNegotiator builds a negotiator over a shared registry and the remote
// cache-creation capability. creator may be nil; the explicit family then
// only reuses already-registered resources.
func NewNegotiator(registry domain.CacheRegistry, creator domain.CachedContentCreator) *Negotiator {
	return &Negotiator{registry: registry, creator: creator}
}

// Negotiate applies the caching strategy for the request's provider family.
// Mode off is a hard opt-out checked before anything provider-specific.
func (n *Negotiator) Negotiate(ctx context.Context, req *domain.GenerationRequest) {
	if req.CacheOptions.Mode == domain.CacheModeOff {
		return
	}
	// Already bound to a resource by the caller; nothing to decide.
	if req.CacheOptions.Mode == domain.CacheModeExplicit && req.CacheOptions.CachedResourceName != "" {
		return
	}

	switch req.Provider.CacheFamily() {
	case domain.FamilyKeyBased:
		req.CacheOptions.CacheKey = AutomaticOpenAICacheKey(req.Model, req.Messages, req.Tools)
		logrus.WithFields(logrus.Fields{
			"provider":  req.Provider,
			"model":     req.Model,
			"cache_key": req.CacheOptions.CacheKey,
		}).Debug("[CACHE] Key-based caching enabled")
	case domain.FamilyPrefixWindow:
		req.CacheOptions.Strategy = domain.StrategyPrefixWindow
		logrus.WithFields(logrus.Fields{
			"provider": req.Provider,
			"model":    req.Model,
		}).Debug("[CACHE] Prefix-window caching enabled")
	case domain.FamilyExplicit:
		n.negotiateExplicit(ctx, req)
	default:
		// Unsupported provider, request passes through untouched.
	}
}

// negotiateExplicit runs the explicit-resource flow: fingerprint the stable
// prefix, reuse a live registry entry or create the remote resource, then
// strip the system message and reference the resource by name.
func (n *Negotiator) negotiateExplicit(ctx context.Context, req *domain.GenerationRequest) {
	systemText := req.SystemText()
	if systemText == "" {
		return
	}
	threshold := minExplicitTokens
	if req.CacheOptions.MinTokensThreshold > 0 {
		threshold = req.CacheOptions.MinTokensThreshold
	}
	if est := estimateTokens(systemText); est < threshold {
		logrus.WithFields(logrus.Fields{
			"provider": req.Provider,
			"tokens":   est,
			"required": threshold,
		}).Debug("[CACHE] System prompt too small for explicit caching")
		return
	}

	fingerprint := explicitFingerprint(req.Provider, req.Model, systemText)
	key := registryKey(req.Provider, req.Model, fingerprint)

	// Serialize check-then-create per registry key so concurrent requests
	// for the same fingerprint do not both hit the provider. Losing the
	// lock is tolerable: duplicate creation is idempotent provider-side.
	if locked, _ := n.registry.Lock(ctx, key, lockTTL); locked {
		defer func() { _ = n.registry.Unlock(ctx, key) }()
	}

	resourceName := ""
	if entry, err := n.registry.Get(ctx, key); err == nil && entry != nil && entry.ResourceName != "" {
		resourceName = entry.ResourceName
		logrus.WithFields(logrus.Fields{
			"provider":   req.Provider,
			"model":      req.Model,
			"cache_name": resourceName,
		}).Info("[CACHE] Reusing existing cached resource")
	}

	if resourceName == "" {
		if n.creator == nil {
			return
		}
		created, err := n.creator.CreateCachedContent(ctx, domain.CreateCacheRequest{
			Model:       normalizeCacheModel(req.Provider, req.Model),
			DisplayName: displayName(fingerprint),
			TTLSeconds:  int(serverCacheTTL.Seconds()),
			SystemText:  systemText,
		})
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"provider": req.Provider,
				"model":    req.Model,
			}).Warn("[CACHE] Remote cache creation failed, proceeding without cache")
			return
		}
		if created == "" {
			return
		}
		resourceName = created

		// Pre-expire locally before the remote resource does, so a live
		// registry entry never references a dead resource.
		clientTTL := serverCacheTTL * 9 / 10
		if clientTTL < minClientTTL {
			clientTTL = minClientTTL
		}
		_ = n.registry.Save(ctx, key, &domain.CacheEntry{
			ResourceName: resourceName,
			ExpiresAt:    time.Now().Add(clientTTL),
			Model:        req.Model,
		}, clientTTL)

		logrus.WithFields(logrus.Fields{
			"provider":   req.Provider,
			"model":      req.Model,
			"cache_name": resourceName,
			"client_ttl": clientTTL,
		}).Info("[CACHE] Created new cached resource")
	}

	// The resource carries the system prompt; the request references it by
	// name instead. Explicit and automatic fields are mutually exclusive,
	// so everything else is cleared.
	req.DropSystemMessage()
	req.CacheOptions = domain.ContextCacheOptions{
		Mode:               domain.CacheModeExplicit,
		CachedResourceName: resourceName,
	}
}
