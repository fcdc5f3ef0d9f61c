package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"mdwarehouse/internal/config"
	apperrors "mdwarehouse/internal/errors"
)

// Item is one registered (stack, item) pair
type Item struct {
	Stack string
	Name  string
	Path  []string
	Kind  Kind
}

// Location is the physical place of an item in one tier. For the snapshot
// tier Path is a directory; for the table tiers it is a file.
type Location struct {
	Tier Tier
	Path string
}

// Registry maps logical items to physical locations. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	layout *config.Layout
	stacks map[string]map[string]Item
}

// New validates items and builds a registry over layout
func New(layout *config.Layout, items []Item) (*Registry, error) {
	if layout == nil {
		return nil, apperrors.NewConfigError("registry needs a storage layout", nil)
	}

	r := &Registry{layout: layout, stacks: make(map[string]map[string]Item)}
	for _, it := range items {
		if err := validateItem(&it); err != nil {
			return nil, err
		}
		stack, ok := r.stacks[it.Stack]
		if !ok {
			stack = make(map[string]Item)
			r.stacks[it.Stack] = stack
		}
		if _, dup := stack[it.Name]; dup {
			return nil, apperrors.NewConfigError(
				fmt.Sprintf("item %q registered twice in stack %q", it.Name, it.Stack), nil)
		}
		stack[it.Name] = it
	}
	return r, nil
}

func validateItem(it *Item) error {
	if it.Stack == "" || it.Name == "" {
		return apperrors.NewConfigError("registry entry needs a stack and an item name", nil).
			WithContext("stack", it.Stack).
			WithContext("item", it.Name)
	}
	if len(it.Path) == 0 {
		it.Path = []string{it.Name}
	}
	for _, part := range append([]string{it.Stack}, it.Path...) {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return apperrors.NewConfigError(
				fmt.Sprintf("invalid path component %q for item %q", part, it.Name), nil)
		}
	}
	if it.Kind == "" {
		it.Kind = KindGeneric
	}
	if _, err := ParseKind(string(it.Kind)); err != nil {
		return apperrors.NewConfigError(fmt.Sprintf("item %q", it.Name), err)
	}
	it.Path = append([]string(nil), it.Path...)
	return nil
}

// Resolve returns the location of (stack, item) in tier
func (r *Registry) Resolve(stack, item string, tier Tier) (Location, error) {
	if !tier.Valid() {
		return Location{}, apperrors.NewValidationError(fmt.Sprintf("invalid tier %s", tier))
	}
	it, err := r.Item(stack, item)
	if err != nil {
		return Location{}, err
	}

	rel := filepath.Join(it.Path...)
	switch tier {
	case TierSnapshot:
		return Location{Tier: tier, Path: filepath.Join(r.layout.RawDataDir, stack, rel)}, nil
	case TierRawTable:
		return Location{Tier: tier, Path: filepath.Join(r.layout.RawTableDir, stack, rel+config.SnapshotExt)}, nil
	default:
		return Location{Tier: tier, Path: filepath.Join(r.layout.TableDir, stack, rel+config.SnapshotExt)}, nil
	}
}

// Item returns the registration of (stack, item)
func (r *Registry) Item(stack, item string) (Item, error) {
	items, ok := r.stacks[stack]
	if !ok {
		return Item{}, apperrors.NewUnknownItemError(stack, "")
	}
	it, ok := items[item]
	if !ok {
		return Item{}, apperrors.NewUnknownItemError(stack, item)
	}
	return it, nil
}

// Items lists the items of a stack sorted by name
func (r *Registry) Items(stack string) ([]Item, error) {
	items, ok := r.stacks[stack]
	if !ok {
		return nil, apperrors.NewUnknownItemError(stack, "")
	}
	out := make([]Item, 0, len(items))
	for _, it := range items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ItemsOfKind lists the items of a stack with the given kind
func (r *Registry) ItemsOfKind(stack string, kind Kind) ([]Item, error) {
	items, err := r.Items(stack)
	if err != nil {
		return nil, err
	}
	var out []Item
	for _, it := range items {
		if it.Kind == kind {
			out = append(out, it)
		}
	}
	return out, nil
}

// Stacks lists the registered stacks
func (r *Registry) Stacks() []string {
	out := make([]string, 0, len(r.stacks))
	for s := range r.stacks {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Layout returns the storage layout the registry resolves against
func (r *Registry) Layout() *config.Layout {
	return r.layout
}

// EnsureLayout creates the tier roots and the per-stack directories
func (r *Registry) EnsureLayout() error {
	if err := r.layout.EnsureDirectories(); err != nil {
		return apperrors.NewStorageError("failed to create layout", err)
	}
	for stack := range r.stacks {
		for _, root := range []string{r.layout.RawDataDir, r.layout.RawTableDir, r.layout.TableDir} {
			if err := os.MkdirAll(filepath.Join(root, stack), config.DirPermissions); err != nil {
				return apperrors.NewStorageError("failed to create stack directory", err)
			}
		}
	}
	return nil
}
