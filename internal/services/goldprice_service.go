// internal/services/goldprice_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/greenbasket/commerce-backend/internal/config"
	"github.com/greenbasket/commerce-backend/internal/models"
)

// GoldQuoteProvider fetches the current spot gold price per gram from an
// external source. Implementations must respect the context deadline.
type GoldQuoteProvider interface {
	FetchPricePerGram(ctx context.Context, currency string) (decimal.Decimal, error)
}

// HTTPGoldQuoteProvider calls a JSON quote endpoint expected to respond with
// {"price_per_gram": "274.12"}.
type HTTPGoldQuoteProvider struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPGoldQuoteProvider(cfg config.PricingConfig) *HTTPGoldQuoteProvider {
	return &HTTPGoldQuoteProvider{
		url:    cfg.GoldQuoteURL,
		apiKey: cfg.GoldQuoteAPIKey,
		client: &http.Client{Timeout: time.Duration(cfg.GoldFetchTimeoutSec) * time.Second},
	}
}

func (p *HTTPGoldQuoteProvider) FetchPricePerGram(ctx context.Context, currency string) (decimal.Decimal, error) {
	if p.url == "" {
		return decimal.Zero, fmt.Errorf("gold quote provider not configured")
	}

	url := fmt.Sprintf("%s?currency=%s", p.url, strings.ToUpper(currency))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to build quote request: %w", err)
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("quote endpoint returned status %d", resp.StatusCode)
	}

	var body struct {
		PricePerGram decimal.Decimal `json:"price_per_gram"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode quote response: %w", err)
	}

	if body.PricePerGram.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("quote endpoint returned non-positive price")
	}

	return body.PricePerGram, nil
}

// GoldPriceService maintains the gold snapshot cache. Snapshots are
// append-only and shared; two concurrent refreshes may both insert a row,
// which is harmless. A refresh failure is degraded mode, not an error: the
// last known snapshot (or the configured floor) is served instead.
type GoldPriceService struct {
	db           *gorm.DB
	provider     GoldQuoteProvider
	maxAge       time.Duration
	fetchTimeout time.Duration
	floor        decimal.Decimal
	now          func() time.Time
	log          *logrus.Entry
}

func NewGoldPriceService(db *gorm.DB, provider GoldQuoteProvider, cfg config.PricingConfig) *GoldPriceService {
	floor, err := decimal.NewFromString(cfg.GoldFloorPerGram)
	if err != nil {
		floor = decimal.NewFromInt(250)
		logrus.WithField("component", "goldprice").
			Warnf("invalid gold floor %q, using %s", cfg.GoldFloorPerGram, floor)
	}

	return &GoldPriceService{
		db:           db,
		provider:     provider,
		maxAge:       time.Duration(cfg.GoldFreshnessMins) * time.Minute,
		fetchTimeout: time.Duration(cfg.GoldFetchTimeoutSec) * time.Second,
		floor:        floor,
		now:          time.Now,
		log:          logrus.WithField("component", "goldprice"),
	}
}

// CurrentPricePerGram returns the effective spot price for the currency:
// the latest snapshot while fresh, a freshly fetched quote otherwise, and the
// last known snapshot or the floor when the fetch fails. Never returns an
// error; pricing must not fail because a quote source is down.
func (s *GoldPriceService) CurrentPricePerGram(ctx context.Context, currency string) decimal.Decimal {
	latest := s.latestSnapshot(currency)
	if latest != nil && s.now().Sub(latest.CreatedAt) < s.maxAge {
		return latest.PricePerGram
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	price, err := s.provider.FetchPricePerGram(fetchCtx, currency)
	if err == nil {
		snapshot := &models.GoldPriceSnapshot{
			Source:       "quote-api",
			Currency:     strings.ToUpper(currency),
			PricePerGram: price,
		}
		if dbErr := s.db.WithContext(ctx).Create(snapshot).Error; dbErr != nil {
			// Still serve the fetched price; only the cache write was lost.
			s.log.WithError(dbErr).Warn("failed to persist gold price snapshot")
		}
		return price
	}

	s.log.WithError(err).WithField("currency", currency).
		Warn("gold quote refresh failed, serving fallback")

	if latest != nil {
		return latest.PricePerGram
	}
	return s.floor
}

func (s *GoldPriceService) latestSnapshot(currency string) *models.GoldPriceSnapshot {
	var snapshot models.GoldPriceSnapshot
	err := s.db.Where("currency = ?", strings.ToUpper(currency)).
		Order("created_at DESC").
		First(&snapshot).Error
	if err != nil {
		return nil
	}
	return &snapshot
}
