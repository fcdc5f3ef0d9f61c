package assembler

import (
	"context"
	"time"

	"mdwarehouse/internal/panel"
)

// AssembleItems assembles several items of one stack over the same range.
// With align set, every panel is conformed to the union of dates and
// entities so cells line up across items before they are joined.
func (a *Assembler) AssembleItems(ctx context.Context, stack string, items []string, start, end time.Time, align bool) (map[string]*panel.Panel, error) {
	panels := make([]*panel.Panel, len(items))
	for i, item := range items {
		p, err := a.Assemble(ctx, Request{Stack: stack, Item: item, Start: start, End: end})
		if err != nil {
			return nil, err
		}
		panels[i] = p
	}
	if align {
		panels = panel.Align(panels...)
	}

	out := make(map[string]*panel.Panel, len(items))
	for i, item := range items {
		out[item] = panels[i]
	}
	return out, nil
}
