package schedule

import "errors"

// Sentinel errors for the scheduling engine. Callers match with errors.Is;
// wrapped messages carry the offending field or date range.
var (
	// ErrInvalidPolicy means a merged schedule policy violates its
	// invariants (non-positive daily limit, min gap above max gap, empty
	// allowed-weekday set, inverted window, bad timezone). Surfaced to the
	// user when they save schedule settings, before any scheduling runs.
	ErrInvalidPolicy = errors.New("invalid schedule policy")

	// ErrNoAllowedWindow means no allowed sending window exists within the
	// look-ahead bound. Guards against a policy whose effective weekday set
	// is impossible to satisfy; emails are never silently dropped.
	ErrNoAllowedWindow = errors.New("no allowed send window within look-ahead")
)
