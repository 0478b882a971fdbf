// Package schedule implements the campaign send-time engine: resolving an
// effective schedule policy from organization defaults plus campaign
// overrides, finding the next allowed sending instant inside timezone-aware
// day/time windows, and allocating one timestamp per pending email under
// daily-volume and gap constraints.
//
// Everything here is computationally pure. No database, no clock reads, no
// goroutines; callers pass in "now" and persist the resulting slots
// themselves. The only nondeterminism is the randomized gap between
// consecutive sends, and that draw is behind the RandSource interface so
// tests can pin it.
package schedule
