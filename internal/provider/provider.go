// Package provider defines the upstream data vendors the downloaders read
// from, and ships HTTP clients for Polygon and FRED.
package provider

import (
	"context"
	stderrors "errors"
	"time"
)

// ErrNoData marks a vendor response that carries no usable data: not
// authorized, delayed, or empty.
var ErrNoData = stderrors.New("vendor returned no data")

// Bar is one entity's daily aggregate
type Bar struct {
	Ticker       string
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       float64
	AvgPrice     float64
	Transactions float64
}

// Split is a split executed on Date. Ratio is the price multiplier
// split_from/split_to, so a 2-for-1 split is 0.5.
type Split struct {
	Ticker string
	Date   time.Time
	Ratio  float64
}

// Dividend is one cash distribution
type Dividend struct {
	Ticker  string
	ExDate  time.Time
	PayDate time.Time
	Amount  float64
}

// DelistedTicker is an entity that stopped trading
type DelistedTicker struct {
	Ticker string
	Name   string
	Date   time.Time
}

// Observation is one value of a macro series
type Observation struct {
	Date  time.Time
	Value float64
}

// Report is one quarterly filing. Values maps account names such as
// "revenues" or "assets" to their reported value.
type Report struct {
	Ticker     string
	FilingDate time.Time
	Values     map[string]float64
}

// CompanyInfo is the reference profile of one listed company
type CompanyInfo struct {
	Ticker          string
	Name            string
	Market          string
	Locale          string
	PrimaryExchange string
	Type            string
	Currency        string
	CIK             string
	ListDate        string
	SIC             string
	SICDescription  string
	MarketCap       float64
	Employees       float64
}

// PriceProvider returns the grouped daily bars of one date
type PriceProvider interface {
	DailyBars(ctx context.Context, date time.Time, adjusted bool) ([]Bar, error)
}

// CorporateActionProvider returns splits and cash dividends
type CorporateActionProvider interface {
	Splits(ctx context.Context, start, end time.Time) ([]Split, error)
	Dividends(ctx context.Context, start, end time.Time) ([]Dividend, error)
}

// UniverseProvider returns index or market membership
type UniverseProvider interface {
	Members(ctx context.Context, date time.Time) ([]string, error)
	Delisted(ctx context.Context) ([]DelistedTicker, error)
}

// SharesProvider returns shares outstanding of one entity on one date
type SharesProvider interface {
	SharesOutstanding(ctx context.Context, ticker string, date time.Time) (float64, error)
}

// CalendarProvider returns exchange holidays
type CalendarProvider interface {
	Holidays(ctx context.Context) ([]time.Time, error)
}

// MacroProvider returns the observations of a macro series
type MacroProvider interface {
	Observations(ctx context.Context, seriesID string, start, end time.Time) ([]Observation, error)
}

// FundamentalsProvider returns the financial reports filed on one date
type FundamentalsProvider interface {
	FinancialReports(ctx context.Context, filingDate time.Time) ([]Report, error)
}

// CompanyInfoProvider returns the profile of one company
type CompanyInfoProvider interface {
	CompanyInfo(ctx context.Context, ticker string) (CompanyInfo, error)
}

var (
	_ PriceProvider           = (*PolygonClient)(nil)
	_ CorporateActionProvider = (*PolygonClient)(nil)
	_ UniverseProvider        = (*PolygonClient)(nil)
	_ SharesProvider          = (*PolygonClient)(nil)
	_ CalendarProvider        = (*PolygonClient)(nil)
	_ FundamentalsProvider    = (*PolygonClient)(nil)
	_ CompanyInfoProvider     = (*PolygonClient)(nil)
	_ MacroProvider           = (*FREDClient)(nil)
)
