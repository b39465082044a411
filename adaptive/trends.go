package adaptive

import (
	"time"

	"github.com/nanorelay/client-go/wire"
)

// PerformanceMetrics captures the measured cost of one crypto
// operation.
type PerformanceMetrics struct {
	EncryptionTimeMS float64
	DecryptionTimeMS float64
	MessageSizeBytes int
	CPUUsagePercent  float64
	MemoryUsageMB    float64
	BatteryDrainMW   float64
}

type measurement struct {
	at      time.Time
	network NetworkConditions
	device  DeviceConstraints
	mode    wire.Mode
	metrics PerformanceMetrics
}

// TrendDirection classifies how a mode's measured cost is moving.
type TrendDirection int

const (
	TrendStable TrendDirection = iota
	TrendImproving
	TrendDegrading
)

func (d TrendDirection) String() string {
	switch d {
	case TrendImproving:
		return "improving"
	case TrendDegrading:
		return "degrading"
	default:
		return "stable"
	}
}

// ModeTrend summarizes one mode's recent measurements.
type ModeTrend struct {
	AvgEncryptionTimeMS float64
	AvgCPUUsagePercent  float64
	AvgMemoryUsageMB    float64
	AvgBatteryDrainMW   float64
	Direction           TrendDirection
	ChangeRate          float64
	SampleCount         int
}

// PerformanceTrends holds per-mode trends over the retention window.
type PerformanceTrends struct {
	ModeTrends map[wire.Mode]ModeTrend
	Overall    TrendDirection
	Confidence float64
}

// RecordPerformance appends one measurement and evicts any that have
// aged past the retention window.
func (a *Advisor) RecordPerformance(network NetworkConditions, device DeviceConstraints, mode wire.Mode, metrics PerformanceMetrics) {
	a.measurements = append(a.measurements, measurement{
		at:      a.now(),
		network: network,
		device:  device,
		mode:    mode,
		metrics: metrics,
	})
	a.evictStale()
}

// SampleCount reports how many measurements are currently retained.
func (a *Advisor) SampleCount() int {
	return len(a.measurements)
}

func (a *Advisor) evictStale() {
	cutoff := a.now().Add(-a.cfg.MeasurementWindow)
	i := 0
	for i < len(a.measurements) && a.measurements[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		a.measurements = append(a.measurements[:0], a.measurements[i:]...)
	}
}

// Trends analyzes the retained measurements. With fewer samples than
// the configured minimum it reports no per-mode trends.
func (a *Advisor) Trends() PerformanceTrends {
	cutoff := a.now().Add(-a.cfg.MeasurementWindow)
	var recent []measurement
	for _, m := range a.measurements {
		if m.at.After(cutoff) {
			recent = append(recent, m)
		}
	}

	trends := PerformanceTrends{ModeTrends: map[wire.Mode]ModeTrend{}}
	if len(recent) < a.cfg.MinSamples {
		return trends
	}

	byMode := map[wire.Mode][]measurement{}
	for _, m := range recent {
		byMode[m.mode] = append(byMode[m.mode], m)
	}
	for mode, ms := range byMode {
		if len(ms) >= 2 {
			trends.ModeTrends[mode] = a.modeTrend(ms)
		}
	}
	trends.Overall = TrendStable
	trends.Confidence = 0.7
	return trends
}

func (a *Advisor) modeTrend(ms []measurement) ModeTrend {
	n := len(ms)
	var encTotal, cpuTotal, memTotal, batTotal float64
	for _, m := range ms {
		encTotal += m.metrics.EncryptionTimeMS
		cpuTotal += m.metrics.CPUUsagePercent
		memTotal += m.metrics.MemoryUsageMB
		batTotal += m.metrics.BatteryDrainMW
	}

	// Compare mean encryption time of the first half against the
	// second half.
	split := n / 2
	var firstTotal, secondTotal float64
	for _, m := range ms[:split] {
		firstTotal += m.metrics.EncryptionTimeMS
	}
	for _, m := range ms[split:] {
		secondTotal += m.metrics.EncryptionTimeMS
	}
	firstMean := firstTotal / float64(split)
	secondMean := secondTotal / float64(n-split)

	// A zero baseline would make the relative change NaN or Inf.
	var change float64
	if firstMean != 0 {
		change = (secondMean - firstMean) / firstMean
	}
	direction := TrendStable
	if change > a.cfg.Threshold {
		direction = TrendDegrading
	} else if change < -a.cfg.Threshold {
		direction = TrendImproving
	}

	return ModeTrend{
		AvgEncryptionTimeMS: encTotal / float64(n),
		AvgCPUUsagePercent:  cpuTotal / float64(n),
		AvgMemoryUsageMB:    memTotal / float64(n),
		AvgBatteryDrainMW:   batTotal / float64(n),
		Direction:           direction,
		ChangeRate:          change,
		SampleCount:         n,
	}
}
