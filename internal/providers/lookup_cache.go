package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"agriagent/apps/backend/internal/chat"
)

// LookupCache is the slice of the redis client the lookup caches need.
type LookupCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Coordinates are rounded to about 100 m so nearby requests share entries.
func lookupKey(kind string, lat, lng float64) string {
	return fmt.Sprintf("agri:%s:%.3f:%.3f", kind, lat, lng)
}

// CachedGeocoder memoizes successful reverse geocodes. Cache errors fall
// through to the wrapped geocoder.
type CachedGeocoder struct {
	next  chat.Geocoder
	cache LookupCache
	ttl   time.Duration
}

func NewCachedGeocoder(next chat.Geocoder, cache LookupCache, ttl time.Duration) *CachedGeocoder {
	return &CachedGeocoder{next: next, cache: cache, ttl: ttl}
}

func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	key := lookupKey("place", lat, lng)
	cached, err := c.cache.Get(ctx, key).Result()
	switch {
	case err == nil && cached != "":
		return cached, nil
	case err != nil && !errors.Is(err, redis.Nil):
		log.Printf("lookup cache read failed key=%s err=%v", key, err)
	}

	name, err := c.next.ReverseGeocode(ctx, lat, lng)
	if err != nil {
		return "", err
	}
	if err := c.cache.Set(ctx, key, name, c.ttl).Err(); err != nil {
		log.Printf("lookup cache write failed key=%s err=%v", key, err)
	}
	return name, nil
}

type CachedWeather struct {
	next  chat.WeatherProvider
	cache LookupCache
	ttl   time.Duration
}

func NewCachedWeather(next chat.WeatherProvider, cache LookupCache, ttl time.Duration) *CachedWeather {
	return &CachedWeather{next: next, cache: cache, ttl: ttl}
}

func (c *CachedWeather) CurrentWeather(ctx context.Context, lat, lng float64) (chat.WeatherSnapshot, error) {
	key := lookupKey("weather", lat, lng)
	cached, err := c.cache.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var snapshot chat.WeatherSnapshot
		if decodeErr := json.Unmarshal(cached, &snapshot); decodeErr == nil && !snapshot.HasError() {
			return snapshot, nil
		}
	case !errors.Is(err, redis.Nil):
		log.Printf("lookup cache read failed key=%s err=%v", key, err)
	}

	snapshot, err := c.next.CurrentWeather(ctx, lat, lng)
	if err != nil {
		return chat.WeatherSnapshot{}, err
	}
	if snapshot.HasError() {
		return snapshot, nil
	}
	encoded, err := json.Marshal(snapshot)
	if err != nil {
		return snapshot, nil
	}
	if err := c.cache.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
		log.Printf("lookup cache write failed key=%s err=%v", key, err)
	}
	return snapshot, nil
}
