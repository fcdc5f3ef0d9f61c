package provider

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"mdwarehouse/internal/config"
)

// FREDClient reads macro series observations from the FRED API
type FREDClient struct {
	client *resty.Client
	logger *slog.Logger
}

// NewFREDClient creates a client with the key resolved at startup
func NewFREDClient(cfg config.ProviderConfig, creds *config.Credentials, fetch config.FetchConfig, logger *slog.Logger) (*FREDClient, error) {
	key, err := resolveKey(cfg, creds)
	if err != nil {
		return nil, err
	}
	client := newRestClient(cfg, fetch)
	client.SetQueryParams(map[string]string{
		"api_key":   key,
		"file_type": "json",
	})

	return &FREDClient{client: client, logger: providerLogger(logger, cfg.Source)}, nil
}

type observationsResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

// Observations returns the values of seriesID within [start, end]. FRED
// marks missing values with "."; those are skipped.
func (c *FREDClient) Observations(ctx context.Context, seriesID string, start, end time.Time) ([]Observation, error) {
	endpoint := "/fred/series/observations"

	params := map[string]string{"series_id": seriesID}
	if !start.IsZero() {
		params["observation_start"] = start.Format(config.DateLayout)
	}
	if !end.IsZero() {
		params["observation_end"] = end.Format(config.DateLayout)
	}

	var body observationsResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&body).
		Get(endpoint)
	if err := checkResponse(resp, err, endpoint); err != nil {
		return nil, err
	}

	out := make([]Observation, 0, len(body.Observations))
	skipped := 0
	for _, o := range body.Observations {
		date, err := time.Parse(config.DateLayout, o.Date)
		if err != nil {
			skipped++
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(o.Value), 64)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, Observation{Date: date, Value: v})
	}
	if skipped > 0 {
		c.logger.DebugContext(ctx, "Skipped missing observations",
			slog.String("series", seriesID), slog.Int("skipped", skipped))
	}
	return out, nil
}
