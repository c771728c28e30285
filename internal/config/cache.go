package config

import "time"

// SeatMapCacheConfig controls the Redis cache of occupied seats per
// showtime.  Entries are invalidated after every committed seat booking;
// TTL only bounds how long an entry survives a missed invalidation.
type SeatMapCacheConfig struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
}

// LoadSeatMapCacheConfig reads SEATMAP_CACHE_* variables.
func LoadSeatMapCacheConfig() SeatMapCacheConfig {
	c := SeatMapCacheConfig{
		Enabled: envBool("SEATMAP_CACHE_ENABLED", true),
		TTL:     envDur("SEATMAP_CACHE_TTL", 30*time.Second),
		Prefix:  envStr("SEATMAP_CACHE_PREFIX", "seatmap"),
	}
	if c.TTL <= 0 {
		c.TTL = 30 * time.Second
	}
	return c
}
