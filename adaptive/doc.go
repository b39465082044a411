// Package adaptive recommends a crypto mode from live network and
// device telemetry. It scores the three modes against a handful of
// independent dimensions, caches the winning recommendation for a
// validity window, and keeps a rolling measurement history for trend
// analysis.
package adaptive
