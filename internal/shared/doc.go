// Package shared holds code used across the warehouse packages that belongs
// to no single component.
//
// testutil captures slog records so tests can assert on the soft failure
// paths (missing entities, empty ranges, failed fetch units) that are only
// reported through logs.
package shared
