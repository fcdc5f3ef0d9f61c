package provider

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"mdwarehouse/internal/adjustment"
	"mdwarehouse/internal/config"
	apperrors "mdwarehouse/internal/errors"
)

const (
	polygonPageLimit       = 1000
	polygonReportPageLimit = 100
	polygonMaxPages        = 200
)

// reportStatements are the statement sections merged into one report
var reportStatements = []string{"income_statement", "balance_sheet", "cash_flow_statement", "comprehensive_income"}

// PolygonClient reads prices, corporate actions, universes and reference
// data from the Polygon REST API
type PolygonClient struct {
	client *resty.Client
	logger *slog.Logger
	// TickerType filters universe queries, "CS" for common stock
	TickerType string
}

// NewPolygonClient creates a client with the key resolved at startup
func NewPolygonClient(cfg config.ProviderConfig, creds *config.Credentials, fetch config.FetchConfig, logger *slog.Logger) (*PolygonClient, error) {
	key, err := resolveKey(cfg, creds)
	if err != nil {
		return nil, err
	}
	client := newRestClient(cfg, fetch)
	client.SetQueryParam("apiKey", key)

	return &PolygonClient{
		client:     client,
		logger:     providerLogger(logger, cfg.Source),
		TickerType: "CS",
	}, nil
}

type groupedResponse struct {
	Status     string `json:"status"`
	QueryCount int    `json:"queryCount"`
	Results    []struct {
		Ticker       string  `json:"T"`
		Volume       float64 `json:"v"`
		VWAP         float64 `json:"vw"`
		Open         float64 `json:"o"`
		Close        float64 `json:"c"`
		High         float64 `json:"h"`
		Low          float64 `json:"l"`
		Transactions float64 `json:"n"`
	} `json:"results"`
}

// DailyBars returns the grouped daily bars of every ticker. A delayed,
// unauthorized or empty answer is ErrNoData.
func (c *PolygonClient) DailyBars(ctx context.Context, date time.Time, adjusted bool) ([]Bar, error) {
	endpoint := "/v2/aggs/grouped/locale/us/market/stocks/" + date.Format(config.DateLayout)

	var body groupedResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("adjusted", strconv.FormatBool(adjusted)).
		SetResult(&body).
		Get(endpoint)
	if err := checkResponse(resp, err, endpoint); err != nil {
		return nil, err
	}

	switch {
	case body.Status == "NOT_AUTHORIZED" || body.Status == "DELAYED":
		return nil, noData(endpoint, "grouped bars not available: "+body.Status)
	case body.QueryCount == 0 || len(body.Results) == 0:
		return nil, noData(endpoint, "no grouped bars")
	}

	bars := make([]Bar, 0, len(body.Results))
	for _, r := range body.Results {
		bars = append(bars, Bar{
			Ticker:       r.Ticker,
			Open:         r.Open,
			High:         r.High,
			Low:          r.Low,
			Close:        r.Close,
			Volume:       r.Volume,
			AvgPrice:     r.VWAP,
			Transactions: r.Transactions,
		})
	}
	return bars, nil
}

type splitRecord struct {
	Ticker        string          `json:"ticker"`
	ExecutionDate string          `json:"execution_date"`
	SplitFrom     decimal.Decimal `json:"split_from"`
	SplitTo       decimal.Decimal `json:"split_to"`
}

// Splits returns the splits executed within [start, end]. Records with
// unusable terms are skipped and logged.
func (c *PolygonClient) Splits(ctx context.Context, start, end time.Time) ([]Split, error) {
	records, err := fetchPages[splitRecord](ctx, c, "/v3/reference/splits", map[string]string{
		"execution_date.gte": start.Format(config.DateLayout),
		"execution_date.lte": end.Format(config.DateLayout),
	})
	if err != nil {
		return nil, err
	}

	splits := make([]Split, 0, len(records))
	for _, r := range records {
		date, err := time.Parse(config.DateLayout, r.ExecutionDate)
		if err != nil {
			c.logger.WarnContext(ctx, "Skipping split with bad date",
				slog.String("ticker", r.Ticker), slog.String("date", r.ExecutionDate))
			continue
		}
		ratio, err := adjustment.SplitRatio(r.SplitFrom, r.SplitTo)
		if err != nil {
			c.logger.WarnContext(ctx, "Skipping split with bad terms",
				slog.String("ticker", r.Ticker), slog.String("error", err.Error()))
			continue
		}
		splits = append(splits, Split{Ticker: r.Ticker, Date: date, Ratio: ratio})
	}
	return splits, nil
}

type dividendRecord struct {
	Ticker         string  `json:"ticker"`
	ExDividendDate string  `json:"ex_dividend_date"`
	PayDate        string  `json:"pay_date"`
	CashAmount     float64 `json:"cash_amount"`
}

// Dividends returns the cash dividends going ex within [start, end]
func (c *PolygonClient) Dividends(ctx context.Context, start, end time.Time) ([]Dividend, error) {
	records, err := fetchPages[dividendRecord](ctx, c, "/v3/reference/dividends", map[string]string{
		"ex_dividend_date.gte": start.Format(config.DateLayout),
		"ex_dividend_date.lte": end.Format(config.DateLayout),
		"dividend_type":        "CD",
	})
	if err != nil {
		return nil, err
	}

	out := make([]Dividend, 0, len(records))
	for _, r := range records {
		ex, err := time.Parse(config.DateLayout, r.ExDividendDate)
		if err != nil {
			continue
		}
		d := Dividend{Ticker: r.Ticker, ExDate: ex, Amount: r.CashAmount}
		if pay, err := time.Parse(config.DateLayout, r.PayDate); err == nil {
			d.PayDate = pay
		}
		out = append(out, d)
	}
	return out, nil
}

type tickerRecord struct {
	Ticker      string `json:"ticker"`
	Name        string `json:"name"`
	DelistedUTC string `json:"delisted_utc"`
}

// Members returns the active tickers on date
func (c *PolygonClient) Members(ctx context.Context, date time.Time) ([]string, error) {
	records, err := fetchPages[tickerRecord](ctx, c, "/v3/reference/tickers", map[string]string{
		"type":   c.TickerType,
		"market": "stocks",
		"active": "true",
		"date":   date.Format(config.DateLayout),
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, noData("/v3/reference/tickers", "no active tickers")
	}

	tickers := make([]string, 0, len(records))
	for _, r := range records {
		tickers = append(tickers, r.Ticker)
	}
	return tickers, nil
}

// Delisted returns every inactive ticker with its delisting date
func (c *PolygonClient) Delisted(ctx context.Context) ([]DelistedTicker, error) {
	records, err := fetchPages[tickerRecord](ctx, c, "/v3/reference/tickers", map[string]string{
		"type":   c.TickerType,
		"market": "stocks",
		"active": "false",
	})
	if err != nil {
		return nil, err
	}

	out := make([]DelistedTicker, 0, len(records))
	for _, r := range records {
		if len(r.DelistedUTC) < len(config.DateLayout) {
			continue
		}
		date, err := time.Parse(config.DateLayout, r.DelistedUTC[:len(config.DateLayout)])
		if err != nil {
			continue
		}
		out = append(out, DelistedTicker{Ticker: r.Ticker, Name: r.Name, Date: date})
	}
	return out, nil
}

type tickerDetailResponse struct {
	Results struct {
		ShareClassSharesOutstanding float64 `json:"share_class_shares_outstanding"`
	} `json:"results"`
}

// SharesOutstanding returns the share class shares outstanding on date
func (c *PolygonClient) SharesOutstanding(ctx context.Context, ticker string, date time.Time) (float64, error) {
	endpoint := "/v3/reference/tickers/{ticker}"

	var body tickerDetailResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("ticker", ticker).
		SetQueryParam("date", date.Format(config.DateLayout)).
		SetResult(&body).
		Get(endpoint)
	if err := checkResponse(resp, err, endpoint); err != nil {
		return 0, err
	}
	if body.Results.ShareClassSharesOutstanding <= 0 {
		return 0, noData(endpoint, "no shares outstanding for "+ticker)
	}
	return body.Results.ShareClassSharesOutstanding, nil
}

type marketStatusRecord struct {
	Date   string `json:"date"`
	Status string `json:"status"`
}

// Holidays returns the upcoming dates the market is closed
func (c *PolygonClient) Holidays(ctx context.Context) ([]time.Time, error) {
	endpoint := "/v1/marketstatus/upcoming"

	var body []marketStatusRecord
	resp, err := c.client.R().SetContext(ctx).SetResult(&body).Get(endpoint)
	if err := checkResponse(resp, err, endpoint); err != nil {
		return nil, err
	}

	seen := make(map[time.Time]struct{})
	var out []time.Time
	for _, r := range body {
		if r.Status != "closed" {
			continue
		}
		d, err := time.Parse(config.DateLayout, r.Date)
		if err != nil {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out, nil
}

type financialValue struct {
	Value *float64 `json:"value"`
}

type financialRecord struct {
	Tickers    []string                             `json:"tickers"`
	FilingDate string                               `json:"filing_date"`
	Financials map[string]map[string]financialValue `json:"financials"`
}

// FinancialReports returns the quarterly reports filed on filingDate. The
// listing is queried with a one-day gte/lte window because an equality
// filter also returns the next day. Filings without a ticker are skipped.
func (c *PolygonClient) FinancialReports(ctx context.Context, filingDate time.Time) ([]Report, error) {
	day := filingDate.Format(config.DateLayout)
	records, err := fetchPages[financialRecord](ctx, c, "/vX/reference/financials", map[string]string{
		"filing_date.gte": day,
		"filing_date.lte": day,
		"timeframe":       "quarterly",
		"limit":           strconv.Itoa(polygonReportPageLimit),
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(records))
	out := make([]Report, 0, len(records))
	for _, r := range records {
		if len(r.Tickers) == 0 || r.Tickers[0] == "" {
			continue
		}
		ticker := r.Tickers[0]
		if _, dup := seen[ticker]; dup {
			c.logger.DebugContext(ctx, "Skipping repeated filing",
				slog.String("ticker", ticker), slog.String("date", day))
			continue
		}
		seen[ticker] = struct{}{}

		values := make(map[string]float64)
		for _, statement := range reportStatements {
			for account, v := range r.Financials[statement] {
				if v.Value != nil {
					values[account] = *v.Value
				}
			}
		}
		out = append(out, Report{Ticker: ticker, FilingDate: filingDate, Values: values})
	}
	return out, nil
}

type companyResponse struct {
	Results struct {
		Ticker          string  `json:"ticker"`
		Name            string  `json:"name"`
		Market          string  `json:"market"`
		Locale          string  `json:"locale"`
		PrimaryExchange string  `json:"primary_exchange"`
		Type            string  `json:"type"`
		Currency        string  `json:"currency_name"`
		CIK             string  `json:"cik"`
		ListDate        string  `json:"list_date"`
		SIC             string  `json:"sic_code"`
		SICDescription  string  `json:"sic_description"`
		MarketCap       float64 `json:"market_cap"`
		Employees       float64 `json:"total_employees"`
	} `json:"results"`
}

// CompanyInfo returns the current reference profile of ticker
func (c *PolygonClient) CompanyInfo(ctx context.Context, ticker string) (CompanyInfo, error) {
	endpoint := "/v3/reference/tickers/{ticker}"

	var body companyResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("ticker", ticker).
		SetResult(&body).
		Get(endpoint)
	if err := checkResponse(resp, err, endpoint); err != nil {
		return CompanyInfo{}, err
	}
	r := body.Results
	if r.Ticker == "" {
		return CompanyInfo{}, noData(endpoint, "no company profile for "+ticker)
	}
	return CompanyInfo{
		Ticker:          r.Ticker,
		Name:            r.Name,
		Market:          r.Market,
		Locale:          r.Locale,
		PrimaryExchange: r.PrimaryExchange,
		Type:            r.Type,
		Currency:        r.Currency,
		CIK:             r.CIK,
		ListDate:        r.ListDate,
		SIC:             r.SIC,
		SICDescription:  r.SICDescription,
		MarketCap:       r.MarketCap,
		Employees:       r.Employees,
	}, nil
}

type page[T any] struct {
	Status  string `json:"status"`
	Results []T    `json:"results"`
	NextURL string `json:"next_url"`
}

// fetchPages follows next_url until the listing is exhausted
func fetchPages[T any](ctx context.Context, c *PolygonClient, endpoint string, params map[string]string) ([]T, error) {
	var all []T

	url := endpoint
	for n := 0; n < polygonMaxPages; n++ {
		var body page[T]
		req := c.client.R().SetContext(ctx).SetResult(&body)
		if n == 0 {
			req.SetQueryParam("limit", strconv.Itoa(polygonPageLimit)).SetQueryParams(params)
		}
		resp, err := req.Get(url)
		if err := checkResponse(resp, err, endpoint); err != nil {
			return nil, err
		}
		if body.Status == "NOT_AUTHORIZED" {
			return nil, noData(endpoint, "listing not authorized")
		}

		all = append(all, body.Results...)
		if body.NextURL == "" {
			return all, nil
		}
		url = body.NextURL
	}

	return nil, apperrors.NewNetworkError("listing did not terminate", nil).
		WithContext("endpoint", endpoint).
		WithContext("pages", polygonMaxPages)
}
