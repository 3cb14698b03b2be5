package cache

import "time"

// Keys used by the COD service
const (
	KeyActiveFeeRules = "cod:fee_rules:active"
	KeyCODEnums       = "cod:fee_rules:enums"
	PrefixFeeRules    = "cod:fee_rules:"
)

// CacheService is a process-local read-through cache. It is never a source
// of truth for writes.
type CacheService interface {
	// Get returns the value and whether it was present and unexpired.
	Get(key string) (interface{}, bool)

	// Set stores a value; a zero duration uses the cache default.
	Set(key string, value interface{}, duration time.Duration)

	Delete(key string)

	// DeletePrefix drops every key starting with prefix.
	DeletePrefix(prefix string)

	Flush()
}

// Remember returns the cached value for key, or calls load and caches its
// result. Load errors are not cached.
func Remember[T any](c CacheService, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.Set(key, v, ttl)
	return v, nil
}
