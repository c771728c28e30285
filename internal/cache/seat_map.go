// Package cache keeps a Redis copy of each showtime's occupied seat list so
// seat-map rendering does not hit the relational store on every request.
// The store stays authoritative: entries are dropped after every committed
// booking and expire after a short TTL.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/cinema-booking/internal/config"
)

// generationTTL outlives any read-through fill by a wide margin.  A
// generation key that expired mid-fill could otherwise repeat a value a
// reader already holds.
const generationTTL = 24 * time.Hour

// setIfGeneration writes the list only while the showtime's generation
// still equals the one the reader saw on its miss.
//
// KEYS[1] list key, KEYS[2] generation key
// ARGV[1] expected generation, ARGV[2] payload, ARGV[3] ttl ms
var setIfGeneration = redis.NewScript(`
local cur = redis.call('GET', KEYS[2])
if not cur then cur = '0' end
if cur ~= ARGV[1] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// SeatMap is a read-through cache of occupied seats keyed by showtime.
// Every Invalidate bumps a per-showtime generation; a fill started before
// the bump is discarded, so a list read before a commit cannot be written
// back after that commit's invalidation.
type SeatMap struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewSeatMap returns a SeatMap backed by client.
func NewSeatMap(client *redis.Client, cfg config.SeatMapCacheConfig) *SeatMap {
	return &SeatMap{client: client, ttl: cfg.TTL, prefix: cfg.Prefix}
}

// Get returns the cached list.  On a miss ok is false and gen is the
// generation to hand back to Set.
func (c *SeatMap) Get(ctx context.Context, showtimeID uint64) (seats []string, gen int64, ok bool, err error) {
	vals, err := c.client.MGet(ctx, c.key(showtimeID), c.genKey(showtimeID)).Result()
	if err != nil {
		return nil, 0, false, fmt.Errorf("seat map get: %w", err)
	}
	if s, isStr := vals[1].(string); isStr {
		if gen, err = strconv.ParseInt(s, 10, 64); err != nil {
			return nil, 0, false, fmt.Errorf("seat map generation %q: %w", s, err)
		}
	}
	raw, isStr := vals[0].(string)
	if !isStr {
		return nil, gen, false, nil
	}
	seats = []string{}
	if err := json.Unmarshal([]byte(raw), &seats); err != nil {
		// corrupt entry: treat as a miss and let the next Set overwrite it
		return nil, gen, false, nil
	}
	return seats, gen, true, nil
}

// Set stores the list with the configured TTL unless the showtime was
// invalidated after gen was read.  stored reports whether it was written.
func (c *SeatMap) Set(ctx context.Context, showtimeID uint64, gen int64, seats []string) (bool, error) {
	if seats == nil {
		seats = []string{}
	}
	raw, err := json.Marshal(seats)
	if err != nil {
		return false, fmt.Errorf("seat map encode: %w", err)
	}
	n, err := setIfGeneration.Run(ctx, c.client,
		[]string{c.key(showtimeID), c.genKey(showtimeID)},
		strconv.FormatInt(gen, 10), raw, c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("seat map set: %w", err)
	}
	return n == 1, nil
}

// Invalidate drops the cached list for the showtime and bumps its
// generation.
func (c *SeatMap) Invalidate(ctx context.Context, showtimeID uint64) error {
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, c.key(showtimeID))
		p.Incr(ctx, c.genKey(showtimeID))
		p.Expire(ctx, c.genKey(showtimeID), generationTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("seat map invalidate: %w", err)
	}
	return nil
}

func (c *SeatMap) key(showtimeID uint64) string {
	return fmt.Sprintf("%s:showtime:%d", c.prefix, showtimeID)
}

func (c *SeatMap) genKey(showtimeID uint64) string {
	return fmt.Sprintf("%s:showtime:%d:gen", c.prefix, showtimeID)
}
