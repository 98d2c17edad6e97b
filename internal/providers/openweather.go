package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"agriagent/apps/backend/internal/chat"
	"agriagent/apps/backend/internal/config"
)

type OpenWeatherClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewOpenWeatherClient(cfg config.Config) *OpenWeatherClient {
	return &OpenWeatherClient{
		apiKey:     strings.TrimSpace(cfg.WeatherAPIKey),
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.WeatherBaseURL), "/"),
		httpClient: newHTTPClient(cfg.LookupTimeout()),
	}
}

type openWeatherResponse struct {
	Main struct {
		Temp     *float64 `json:"temp"`
		Humidity *float64 `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed *float64 `json:"speed"`
	} `json:"wind"`
}

// CurrentWeather returns metric readings for the coordinates.
func (c *OpenWeatherClient) CurrentWeather(ctx context.Context, lat, lng float64) (chat.WeatherSnapshot, error) {
	if c.apiKey == "" {
		return chat.WeatherSnapshot{}, errors.New("WEATHER_API_KEY is not configured")
	}
	query := url.Values{}
	query.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	query.Set("appid", c.apiKey)
	query.Set("units", "metric")
	endpoint := c.baseURL + "/data/2.5/weather?" + query.Encode()

	body, err := doJSON(ctx, c.httpClient, "openweather", lookupRetries, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return chat.WeatherSnapshot{}, err
	}

	var parsed openWeatherResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return chat.WeatherSnapshot{}, fmt.Errorf("decode openweather response: %w", err)
	}
	snapshot := chat.WeatherSnapshot{
		Temperature: parsed.Main.Temp,
		Humidity:    parsed.Main.Humidity,
		WindSpeed:   parsed.Wind.Speed,
	}
	if len(parsed.Weather) > 0 {
		snapshot.Description = strings.TrimSpace(parsed.Weather[0].Description)
	}
	return snapshot, nil
}
