// Package metrics validates and aggregates per-instance run data, and
// optionally exposes run-level gauges over Prometheus via an
// opt-in HTTP endpoint (--metrics-addr). Validation and aggregation are
// plain computation over pkg/arena/pkg/supervisor data; the Prometheus
// wiring only mirrors the aggregated numbers for external scraping, it is
// never the source of truth — the YAML report (pkg/report) is.
package metrics
