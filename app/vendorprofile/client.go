package vendorprofile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Saaiiikrishna/msd-th-sub005/app/entity"
	"github.com/Saaiiikrishna/msd-th-sub005/config"
)

var ErrProfileNotFound = errors.New("vendor profile not found")

// Client fetches vendor payout profiles from the vendor service. Profiles
// are read per initiation; the engine snapshots what it needs onto the
// payout row, so no caching happens here.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(cfg config.VendorProfileConfig) *Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) GetProfile(ctx context.Context, vendorID string) (*entity.VendorProfile, error) {
	endpoint := c.baseURL + "/v1/vendors/" + url.PathEscape(vendorID) + "/payout-profile"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrProfileNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("vendor profile request failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		VendorID              string          `json:"vendor_id"`
		CommissionRatePercent decimal.Decimal `json:"commission_rate_percent"`
		FundAccountID         string          `json:"fund_account_id"`
		PayoutLimitAmount     decimal.Decimal `json:"payout_limit_amount"`
		Active                bool            `json:"active"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	return &entity.VendorProfile{
		VendorID:              payload.VendorID,
		CommissionRatePercent: payload.CommissionRatePercent,
		FundAccountID:         payload.FundAccountID,
		PayoutLimitAmount:     payload.PayoutLimitAmount,
		Active:                payload.Active,
	}, nil
}
