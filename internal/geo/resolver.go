// Package geo resolves client IPs to approximate locations for audit
// logging. Lookups are best-effort: any failure degrades to a nil address
// rather than failing the login flow.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mbenek/sitegate/internal/models"
)

// Resolver queries an external IP-geolocation HTTP service.
type Resolver struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewResolver creates a Resolver against an ipwho.is style endpoint. The
// timeout bounds every lookup; keep it short so a slow upstream cannot
// stall logins.
func NewResolver(baseURL string, timeout time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type lookupResponse struct {
	Success     bool    `json:"success"`
	City        string  `json:"city"`
	Region      string  `json:"region"`
	Country     string  `json:"country"`
	CountryCode string  `json:"country_code"`
	Continent   string  `json:"continent"`
	Postal      string  `json:"postal"`
	Timezone    string  `json:"timezone"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Connection  struct {
		ISP string `json:"isp"`
	} `json:"connection"`
}

// Resolve returns the approximate location of ip, or nil if the lookup
// fails for any reason.
func (r *Resolver) Resolve(ctx context.Context, ip string) *models.Address {
	if ip == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s", r.baseURL, ip), nil)
	if err != nil {
		r.logger.Warn("geo lookup request build failed", slog.String("ip", ip), slog.Any("error", err))
		return nil
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("geo lookup failed", slog.String("ip", ip), slog.Any("error", err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.logger.Warn("geo lookup returned non-OK status", slog.String("ip", ip), slog.Int("status", resp.StatusCode))
		return nil
	}

	var payload lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		r.logger.Warn("geo lookup decode failed", slog.String("ip", ip), slog.Any("error", err))
		return nil
	}

	if !payload.Success {
		return nil
	}

	return &models.Address{
		City:        payload.City,
		Region:      payload.Region,
		Country:     payload.Country,
		CountryCode: payload.CountryCode,
		Continent:   payload.Continent,
		Postal:      payload.Postal,
		Timezone:    payload.Timezone,
		Latitude:    payload.Latitude,
		Longitude:   payload.Longitude,
		ISP:         payload.Connection.ISP,
	}
}
