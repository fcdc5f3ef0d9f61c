package ingest

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	apperrors "mdwarehouse/internal/errors"
	"mdwarehouse/internal/fanout"
	"mdwarehouse/internal/provider"
	"mdwarehouse/internal/registry"
	"mdwarehouse/internal/universe"
)

// SaveFinancialReports downloads the quarterly reports filed on each
// trading date, one fan-out unit per date. A unit writes the filers to the
// filing_date item and one snapshot per registered report account. Accounts
// without a registered report item are skipped, and a filer that did not
// report an account has no entry in that account's snapshot. Dates without
// filings write nothing and are asked again on the next run.
func (in *Ingestor) SaveFinancialReports(ctx context.Context, stack string) (fanout.Report, error) {
	if in.providers.Fundamentals == nil {
		return fanout.Report{}, apperrors.NewConfigError("no fundamentals provider configured", nil)
	}
	if err := in.requireItems(stack, ItemFilingDate); err != nil {
		return fanout.Report{}, err
	}
	accounts, err := in.registry.ItemsOfKind(stack, registry.KindReport)
	if err != nil {
		return fanout.Report{}, err
	}
	registered := make(map[string]struct{}, len(accounts))
	for _, it := range accounts {
		registered[it.Name] = struct{}{}
	}

	start, err := in.fetchStart(stack, ItemFilingDate)
	if err != nil {
		return fanout.Report{}, err
	}
	names, byName := units(in.fetchDates(start, in.today()))

	return fanout.Run(ctx, names, in.fanoutOptions("financial_reports"), func(ctx context.Context, unit string) error {
		date := byName[unit]
		reports, err := in.providers.Fundamentals.FinancialReports(ctx, date)
		if err != nil {
			return err
		}
		if len(reports) == 0 {
			return nil
		}

		filers := make([]string, 0, len(reports))
		byAccount := make(map[string]map[string]float64)
		skipped := make(map[string]struct{})
		for _, r := range reports {
			filers = append(filers, r.Ticker)
			for account, v := range r.Values {
				if _, ok := registered[account]; !ok {
					skipped[account] = struct{}{}
					continue
				}
				if byAccount[account] == nil {
					byAccount[account] = make(map[string]float64)
				}
				byAccount[account][r.Ticker] = v
			}
		}

		if err := in.store.WriteMembership(stack, ItemFilingDate, date, filers); err != nil {
			return err
		}
		written := make([]string, 0, len(byAccount))
		for account := range byAccount {
			written = append(written, account)
		}
		sort.Strings(written)
		for _, account := range written {
			if err := in.store.WriteSnapshot(stack, account, date, byAccount[account]); err != nil {
				return err
			}
		}

		in.logger.DebugContext(ctx, "Financial reports saved",
			slog.String("date", unit),
			slog.Int("filers", len(filers)),
			slog.Int("accounts", len(written)),
			slog.Int("unregistered_accounts", len(skipped)))
		return nil
	}), nil
}

// SaveCompanyInfo appends the profiles of universe members that the
// company table at the raw_table location of company_info does not list
// yet, one fan-out unit per new ticker. Existing rows are never rewritten.
func (in *Ingestor) SaveCompanyInfo(ctx context.Context, stack, universeItem string) (fanout.Report, error) {
	if in.providers.Companies == nil {
		return fanout.Report{}, apperrors.NewConfigError("no company info provider configured", nil)
	}
	if err := in.requireItems(stack, ItemCompanyInfo, universeItem); err != nil {
		return fanout.Report{}, err
	}
	loc, err := in.registry.Resolve(stack, ItemCompanyInfo, registry.TierRawTable)
	if err != nil {
		return fanout.Report{}, err
	}

	table, err := universe.LoadCompanies(loc.Path)
	if err != nil {
		return fanout.Report{}, err
	}
	members, err := in.membersOn(stack, universeItem, in.today())
	if err != nil {
		return fanout.Report{}, err
	}
	missing := table.Missing(members)

	var (
		mu    sync.Mutex
		infos []provider.CompanyInfo
	)
	report := fanout.Run(ctx, missing, in.fanoutOptions("company_info"), func(ctx context.Context, ticker string) error {
		info, err := in.providers.Companies.CompanyInfo(ctx, ticker)
		if err != nil {
			return err
		}
		info.Ticker = ticker
		mu.Lock()
		infos = append(infos, info)
		mu.Unlock()
		return nil
	})
	sort.Slice(infos, func(i, j int) bool { return infos[i].Ticker < infos[j].Ticker })

	added, err := universe.AppendCompanies(loc.Path, table, infos, in.logger)
	if err != nil {
		return report, err
	}
	in.logger.InfoContext(ctx, "Company info saved",
		slog.String("stack", stack),
		slog.Int("known", table.Len()-added),
		slog.Int("added", added),
		slog.Int("failed", len(report.Failed)))
	return report, nil
}
