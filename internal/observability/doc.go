// Package observability records domain events of a spec-kit project as
// JSON Lines in .specify/events.jsonl and derives activity metrics from
// them on demand.
package observability
