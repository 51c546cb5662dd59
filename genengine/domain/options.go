package domain

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// CacheMode selects how much caching the caller wants for a request.
type CacheMode string

const (
	// CacheModeOff disables all cache handling; the request passes through
	// the negotiator untouched.
	CacheModeOff CacheMode = "off"
	// CacheModeAutomatic lets the negotiator pick a strategy per provider.
	CacheModeAutomatic CacheMode = "automatic"
	// CacheModeExplicit references an already-created provider-side cached
	// resource by name.
	CacheModeExplicit CacheMode = "explicit"
)

// StrategyPrefixWindow marks requests for providers that cache on the
// growing conversation prefix.
const StrategyPrefixWindow = "prefix-window"

// ContextCacheOptions is the per-request caching configuration. It is owned
// by the request builder, copied per call, never shared across requests.
//
// Explicit and automatic fields are mutually exclusive: when
// CachedResourceName is set, Strategy, CacheKey, ConversationID and
// MinTokensThreshold must be unset.
type ContextCacheOptions struct {
	Mode               CacheMode     `json:"mode"`
	Strategy           string        `json:"strategy,omitempty"`
	CacheKey           string        `json:"cache_key,omitempty"`
	CachedResourceName string        `json:"cached_resource_name,omitempty"`
	TTL                time.Duration `json:"ttl,omitempty"`
	ConversationID     string        `json:"conversation_id,omitempty"`
	MinTokensThreshold int           `json:"min_tokens_threshold,omitempty"`
}

// Validate enforces the explicit/automatic mutual-exclusion invariant.
func (o ContextCacheOptions) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.Mode, validation.In(CacheModeOff, CacheModeAutomatic, CacheModeExplicit)),
		validation.Field(&o.Strategy, validation.When(o.CachedResourceName != "", validation.Empty)),
		validation.Field(&o.CacheKey, validation.When(o.CachedResourceName != "", validation.Empty)),
		validation.Field(&o.ConversationID, validation.When(o.CachedResourceName != "", validation.Empty)),
		validation.Field(&o.MinTokensThreshold, validation.When(o.CachedResourceName != "", validation.Empty)),
	)
}
