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

	"agriagent/apps/backend/internal/config"
)

// NominatimGeocoder resolves coordinates to a human-readable place via the
// OpenStreetMap reverse endpoint.
type NominatimGeocoder struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

func NewNominatimGeocoder(cfg config.Config) *NominatimGeocoder {
	userAgent := strings.TrimSpace(cfg.NominatimUserAgent)
	if userAgent == "" {
		userAgent = "AgriAgent/1.0"
	}
	return &NominatimGeocoder{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.NominatimBaseURL), "/"),
		userAgent:  userAgent,
		httpClient: newHTTPClient(cfg.LookupTimeout()),
	}
}

type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		County string `json:"county"`
		State  string `json:"state"`
	} `json:"address"`
}

// ReverseGeocode prefers the county, then the state, then the full display
// name.
func (g *NominatimGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	if g.baseURL == "" {
		return "", errors.New("NOMINATIM_BASE_URL is not configured")
	}
	query := url.Values{}
	query.Set("format", "json")
	query.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	endpoint := g.baseURL + "/reverse?" + query.Encode()

	body, err := doJSON(ctx, g.httpClient, "nominatim", lookupRetries, func(ctx context.Context) (*http.Request, error) {
		request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		request.Header.Set("User-Agent", g.userAgent)
		request.Header.Set("Accept", "application/json")
		return request, nil
	})
	if err != nil {
		return "", err
	}

	var parsed nominatimResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode nominatim response: %w", err)
	}
	for _, candidate := range []string{parsed.Address.County, parsed.Address.State, parsed.DisplayName} {
		if name := strings.TrimSpace(candidate); name != "" {
			return name, nil
		}
	}
	return "", errors.New("nominatim returned no place name")
}
