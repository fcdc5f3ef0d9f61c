package universe

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"mdwarehouse/internal/config"
	apperrors "mdwarehouse/internal/errors"
	"mdwarehouse/internal/panel"
	"mdwarehouse/internal/snapshot"
)

// CheckComponentChange compares the universe snapshot on date with the one
// lookback snapshots earlier. A date after the last stored snapshot is
// logged and the latest snapshot is used instead.
func CheckComponentChange(ctx context.Context, store *snapshot.Store, stack, item string, date time.Time, lookback int, logger *slog.Logger) (entered, exited []string, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	if lookback < 1 {
		return nil, nil, apperrors.NewValidationError("lookback must be positive").WithContext("lookback", lookback)
	}

	dates, err := store.Dates(stack, item)
	if err != nil {
		return nil, nil, err
	}
	if len(dates) == 0 {
		return nil, nil, apperrors.NewNotFoundError("universe snapshots of " + stack + "/" + item)
	}

	date = panel.Day(date)
	last := dates[len(dates)-1]
	if date.After(last) {
		logger.WarnContext(ctx, "Universe not updated through requested date, comparing latest snapshot",
			slog.String("stack", stack),
			slog.String("item", item),
			slog.String("date", date.Format(config.DateLayout)),
			slog.String("last_update", last.Format(config.DateLayout)))
	}

	idx := sort.Search(len(dates), func(i int) bool { return dates[i].After(date) }) - 1
	if idx-lookback < 0 {
		return nil, nil, apperrors.NewNotFoundError("universe snapshot to compare against").
			WithContext("date", date.Format(config.DateLayout)).
			WithContext("lookback", lookback)
	}

	after, err := members(store, stack, item, dates[idx])
	if err != nil {
		return nil, nil, err
	}
	before, err := members(store, stack, item, dates[idx-lookback])
	if err != nil {
		return nil, nil, err
	}

	entered, exited = diff(before, after)
	return entered, exited, nil
}

func members(store *snapshot.Store, stack, item string, date time.Time) ([]string, error) {
	values, err := store.ReadSnapshot(stack, item, date)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(values))
	for id, v := range values {
		if !panel.IsNull(v) && v != 0 {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
