// Package teslemetry is the HTTP client for the Teslemetry proxy in front of
// the Tesla energy-site API. It performs exactly one request per call; retry
// policy lives with the caller.
package teslemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/ratewriter/ratewriter/pkg/common"
	"github.com/ratewriter/ratewriter/pkg/log"
	"github.com/ratewriter/ratewriter/pkg/types"
)

// DefaultBaseURL is the public Teslemetry endpoint.
const DefaultBaseURL = "https://api.teslemetry.com"

const (
	// requestTimeout bounds each exchange end to end, dial through body read.
	requestTimeout = 30 * time.Second

	// errorBodyLimit caps how much of an error response gets logged.
	errorBodyLimit = 500
)

// Client talks to Teslemetry for one bearer token. Site IDs are passed per
// call so a token spanning several sites needs only one client.
type Client struct {
	client  *http.Client
	baseURL string
	token   string
}

// New returns a client for the given base URL and token. An empty baseURL
// selects the public endpoint.
func New(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		client:  common.HTTPClient(requestTimeout),
		baseURL: baseURL,
		token:   token,
	}
}

type touSettingsRequest struct {
	TOUSettings touSettings `json:"tou_settings"`
}

type touSettings struct {
	TariffContentV2 types.TariffDocument `json:"tariff_content_v2"`
}

type siteInfoResponse struct {
	Response siteInfoResult `json:"response"`
}

type siteInfoResult struct {
	TariffContentV2 storedTariffContent `json:"tariff_content_v2"`
}

type storedTariffContent struct {
	EnergyCharges storedEnergyCharges `json:"energy_charges"`
}

type storedEnergyCharges struct {
	Summer storedRates `json:"Summer"`
}

type storedRates struct {
	Rates map[string]float64 `json:"rates"`
}

func (c *Client) newGetRequest(ctx context.Context, elem ...string) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path, err = url.JoinPath(u.Path, elem...)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	return req, nil
}

func (c *Client) newPostJSONRequest(ctx context.Context, data interface{}, elem ...string) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path, err = url.JoinPath(u.Path, elem...)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// Publish POSTs the tariff document to the site's time_of_use_settings
// endpoint. It reports (true, 200) on success and (false, status) otherwise;
// a status of 0 means no HTTP response was received at all. All failures are
// absorbed into the return values, never surfaced as errors.
func (c *Client) Publish(ctx context.Context, siteID string, doc types.TariffDocument) (bool, int) {
	c.logPayloadSummary(ctx, doc)

	req, err := c.newPostJSONRequest(ctx, touSettingsRequest{
		TOUSettings: touSettings{TariffContentV2: doc},
	}, "api/1/energy_sites", siteID, "time_of_use_settings")
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to build tariff publish request", slog.Any("error", err))
		return false, 0
	}

	resp, err := c.client.Do(req)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "network error pushing tariff", slog.Any("error", err))
		return false, 0
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Ctx(ctx).InfoContext(ctx, "tariff pushed successfully",
			slog.Int("periods", len(doc.BuyRates())))
		log.Ctx(ctx).DebugContext(ctx, "teslemetry response", slog.String("body", string(body)))
		return true, http.StatusOK
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	log.Ctx(ctx).ErrorContext(ctx, "failed to push tariff",
		slog.Int("status", resp.StatusCode),
		slog.String("body", string(body)),
	)
	return false, resp.StatusCode
}

// Readback GETs the site_info document and extracts the stored buy rates.
// Any failure (transport, non-200, malformed body) comes back as an error
// for the caller to treat as unverifiable.
func (c *Client) Readback(ctx context.Context, siteID string) (types.StoredTariff, error) {
	req, err := c.newGetRequest(ctx, "api/1/energy_sites", siteID, "site_info")
	if err != nil {
		return types.StoredTariff{}, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return types.StoredTariff{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.StoredTariff{}, fmt.Errorf("status %d", resp.StatusCode)
	}

	var res siteInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return types.StoredTariff{}, fmt.Errorf("failed to decode site info: %w", err)
	}
	return types.StoredTariff{Rates: res.Response.TariffContentV2.EnergyCharges.Summer.Rates}, nil
}

func (c *Client) logPayloadSummary(ctx context.Context, doc types.TariffDocument) {
	rates := doc.BuyRates()
	if len(rates) == 0 {
		return
	}
	minBuy, maxBuy := math.Inf(1), math.Inf(-1)
	for _, v := range rates {
		minBuy = math.Min(minBuy, v)
		maxBuy = math.Max(maxBuy, v)
	}
	log.Ctx(ctx).DebugContext(ctx, "tariff payload summary",
		slog.Int("periods", len(rates)),
		slog.Float64("minBuy", minBuy),
		slog.Float64("maxBuy", maxBuy),
	)
}
