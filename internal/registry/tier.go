package registry

import (
	"fmt"
	"strings"

	apperrors "mdwarehouse/internal/errors"
)

// Tier is a storage stage of an item
type Tier int

const (
	// TierSnapshot holds one file per date under the item directory
	TierSnapshot Tier = iota + 1
	// TierRawTable holds the merged, unfiltered panel
	TierRawTable
	// TierTable holds the quality-filtered panel
	TierTable
)

// String returns the on-disk name of the tier
func (t Tier) String() string {
	switch t {
	case TierSnapshot:
		return "raw_snapshot"
	case TierRawTable:
		return "raw_table"
	case TierTable:
		return "table"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Valid reports whether t is one of the declared tiers
func (t Tier) Valid() bool {
	return t >= TierSnapshot && t <= TierTable
}

// ParseTier validates a tier name at the boundary
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "raw_snapshot", "snapshot", "raw_data":
		return TierSnapshot, nil
	case "raw_table":
		return TierRawTable, nil
	case "table":
		return TierTable, nil
	}
	return 0, apperrors.NewValidationError(fmt.Sprintf("unknown tier %q", s))
}

// Kind tells the pipeline how an item is built and filtered
type Kind string

const (
	KindOHLC     Kind = "ohlc"
	KindVolume   Kind = "volume"
	KindDividend Kind = "dividend"
	KindSplit    Kind = "split"
	KindUniverse Kind = "universe"
	KindShares   Kind = "shares"
	KindReturn   Kind = "return"
	KindMacro    Kind = "macro"
	KindReport   Kind = "report"
	KindCalendar Kind = "calendar"
	KindDelisted Kind = "delisted"
	KindCompany  Kind = "company"
	KindGeneric  Kind = "generic"
)

var knownKinds = map[Kind]struct{}{
	KindOHLC: {}, KindVolume: {}, KindDividend: {}, KindSplit: {},
	KindUniverse: {}, KindShares: {}, KindReturn: {}, KindMacro: {},
	KindReport: {}, KindCalendar: {}, KindDelisted: {}, KindCompany: {},
	KindGeneric: {},
}

// ParseKind validates a kind name; empty means generic
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if k == "" {
		return KindGeneric, nil
	}
	if _, ok := knownKinds[k]; !ok {
		return "", apperrors.NewValidationError(fmt.Sprintf("unknown item kind %q", s))
	}
	return k, nil
}

// Dense reports whether the item has a snapshot on every trading day, which
// is what merge gap validation checks.
func (k Kind) Dense() bool {
	switch k {
	case KindOHLC, KindVolume, KindUniverse, KindShares, KindReturn:
		return true
	}
	return false
}
