package chat

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
)

type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
}

type WeatherProvider interface {
	CurrentWeather(ctx context.Context, lat, lng float64) (WeatherSnapshot, error)
}

// Enricher resolves place name and weather for a request's coordinates.
type Enricher struct {
	geocoder Geocoder
	weather  WeatherProvider
	timeout  time.Duration
}

func NewEnricher(geocoder Geocoder, weather WeatherProvider, timeout time.Duration) *Enricher {
	return &Enricher{geocoder: geocoder, weather: weather, timeout: timeout}
}

// Enrich runs both lookups concurrently. Lookup failures are folded into the
// returned conditions. It errors only when ctx is cancelled or a lookup
// panics (ErrInternal).
func (e *Enricher) Enrich(ctx context.Context, loc *Location) (LocalConditions, error) {
	if loc == nil {
		return LocalConditions{
			LocationName: UnknownLocation,
			Weather:      WeatherSnapshot{Error: NoCoordinatesError},
		}, nil
	}

	var (
		place   Result[string]
		weather Result[WeatherSnapshot]
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return guardBranch(ctx, "geocoding", func() {
			place = e.locationName(groupCtx, loc.Lat, loc.Lng)
		})
	})
	group.Go(func() error {
		return guardBranch(ctx, "weather", func() {
			weather = e.currentWeather(groupCtx, loc.Lat, loc.Lng)
		})
	})
	if err := group.Wait(); err != nil {
		return LocalConditions{}, err
	}

	if err := ctx.Err(); err != nil {
		return LocalConditions{}, err
	}

	cond := LocalConditions{LocationName: place.Value, Weather: weather.Value}
	if place.IsDegraded() {
		cond.Degraded = append(cond.Degraded, "geocoding")
	}
	if weather.IsDegraded() {
		cond.Degraded = append(cond.Degraded, "weather")
	}
	return cond, nil
}

func (e *Enricher) locationName(ctx context.Context, lat, lng float64) Result[string] {
	if e == nil || e.geocoder == nil {
		return Degraded(UnknownLocation, notConfigured("geocoding"))
	}
	callCtx, cancel := withOptionalTimeout(ctx, e.timeout)
	defer cancel()

	name, err := e.geocoder.ReverseGeocode(callCtx, lat, lng)
	if err != nil {
		log.Printf("reverse geocode failed request_id=%s lat=%f lng=%f err=%v", RequestIDFrom(ctx), lat, lng, err)
		return Degraded(UnknownLocation, err)
	}
	if name == "" {
		return Degraded(UnknownLocation, fmt.Errorf("reverse geocode returned no name"))
	}
	return Ok(name)
}

func (e *Enricher) currentWeather(ctx context.Context, lat, lng float64) Result[WeatherSnapshot] {
	if e == nil || e.weather == nil {
		return Degraded(WeatherSnapshot{Error: "Weather API key not configured."}, notConfigured("weather"))
	}
	callCtx, cancel := withOptionalTimeout(ctx, e.timeout)
	defer cancel()

	snapshot, err := e.weather.CurrentWeather(callCtx, lat, lng)
	if err != nil {
		log.Printf("weather lookup failed request_id=%s lat=%f lng=%f err=%v", RequestIDFrom(ctx), lat, lng, err)
		return Degraded(WeatherSnapshot{Error: "Weather API error", Details: TruncateForLog(err.Error(), 300)}, err)
	}
	if snapshot.HasError() {
		return Degraded(snapshot, fmt.Errorf("weather snapshot carries error: %s", snapshot.Error))
	}
	return Ok(snapshot)
}
