package adaptive

import (
	"time"

	"github.com/nanorelay/client-go/wire"
)

// Defaults for the advisor's timing knobs.
const (
	DefaultMeasurementWindow = 5 * time.Minute
	DefaultMinSamples        = 5
	DefaultThreshold         = 0.15
	DefaultRecomputeInterval = 30 * time.Second
	DefaultValidity          = 60 * time.Second
)

// Config controls which scoring dimensions are active and how the
// measurement history is retained.
type Config struct {
	EnableBandwidth bool
	EnableBattery   bool
	EnableLatency   bool
	EnableCPU       bool

	MeasurementWindow time.Duration
	MinSamples        int
	Threshold         float64 // relative change classifying a trend
	RecomputeInterval time.Duration
	Validity          time.Duration
	FallbackMode      wire.Mode
}

// DefaultConfig enables every dimension with the standard windows.
func DefaultConfig() Config {
	return Config{
		EnableBandwidth:   true,
		EnableBattery:     true,
		EnableLatency:     true,
		EnableCPU:         true,
		MeasurementWindow: DefaultMeasurementWindow,
		MinSamples:        DefaultMinSamples,
		Threshold:         DefaultThreshold,
		RecomputeInterval: DefaultRecomputeInterval,
		Validity:          DefaultValidity,
		FallbackMode:      wire.ModeClassical,
	}
}

// Recommendation is the advisor's output: a mode, how strongly the
// telemetry supports it, and the reasons behind the choice. Impact
// estimates are multipliers relative to the classical baseline.
type Recommendation struct {
	Mode              wire.Mode
	Confidence        float64
	Reasoning         []string
	PerformanceImpact float64
	BatteryImpact     float64
	BandwidthImpact   float64
	ValidFor          time.Duration
}

// Advisor computes and caches crypto-mode recommendations.
// It is not safe for concurrent use; callers serialize access.
type Advisor struct {
	cfg          Config
	measurements []measurement
	rec          *Recommendation
	lastUpdate   time.Time

	now func() time.Time // test seam
}

// New creates an advisor. Zero-valued timing fields in cfg fall back
// to the package defaults.
func New(cfg Config) *Advisor {
	if cfg.MeasurementWindow <= 0 {
		cfg.MeasurementWindow = DefaultMeasurementWindow
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = DefaultMinSamples
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.RecomputeInterval <= 0 {
		cfg.RecomputeInterval = DefaultRecomputeInterval
	}
	if cfg.Validity <= 0 {
		cfg.Validity = DefaultValidity
	}
	return &Advisor{cfg: cfg, now: time.Now}
}

// Recommend returns the cached recommendation when it is still inside
// the recompute interval, otherwise recomputes from the given
// telemetry.
func (a *Advisor) Recommend(network NetworkConditions, device DeviceConstraints) Recommendation {
	if a.rec == nil || a.now().Sub(a.lastUpdate) > a.cfg.RecomputeInterval {
		rec := a.compute(network, device)
		a.rec = &rec
		a.lastUpdate = a.now()
	}
	if a.rec == nil {
		return a.fallback()
	}
	return *a.rec
}

func (a *Advisor) fallback() Recommendation {
	return Recommendation{
		Mode:              a.cfg.FallbackMode,
		Confidence:        0.5,
		Reasoning:         []string{"Fallback recommendation due to insufficient data"},
		PerformanceImpact: 1.0,
		BatteryImpact:     1.0,
		BandwidthImpact:   1.0,
		ValidFor:          30 * time.Second,
	}
}

// scores accumulates the per-mode totals during one recompute.
type scores struct {
	classical, hybrid, quantum float64
	reasons                    []string
}

func (s *scores) reason(r string) { s.reasons = append(s.reasons, r) }

func (a *Advisor) compute(network NetworkConditions, device DeviceConstraints) Recommendation {
	s := scores{classical: 1.0, hybrid: 0.8, quantum: 0.9}

	if a.cfg.EnableBandwidth {
		a.scoreBandwidth(network, &s)
	}
	if a.cfg.EnableBattery {
		a.scoreBattery(device, &s)
	}
	if a.cfg.EnableLatency {
		a.scoreLatency(network, &s)
	}
	if a.cfg.EnableCPU {
		a.scoreCPU(device, &s)
	}
	a.scoreDeviceClass(device, &s)

	// Highest score wins; ties resolve classical > hybrid > quantum.
	var mode wire.Mode
	var confidence float64
	switch {
	case s.classical >= s.hybrid && s.classical >= s.quantum:
		mode, confidence = wire.ModeClassical, s.classical
	case s.hybrid >= s.quantum:
		mode, confidence = wire.ModeHybrid, s.hybrid
	default:
		mode, confidence = wire.ModeQuantum, s.quantum
	}

	perf, battery, bandwidth := impactEstimates(mode)
	return Recommendation{
		Mode:              mode,
		Confidence:        confidence,
		Reasoning:         s.reasons,
		PerformanceImpact: perf,
		BatteryImpact:     battery,
		BandwidthImpact:   bandwidth,
		ValidFor:          a.cfg.Validity,
	}
}

func (a *Advisor) scoreBandwidth(network NetworkConditions, s *scores) {
	switch {
	case network.BandwidthMbps < 1.0:
		s.classical += 0.3
		s.hybrid -= 0.2
		s.quantum -= 0.1
		s.reason("Low bandwidth favors classical crypto")
	case network.BandwidthMbps < 5.0:
		s.quantum += 0.1
		s.hybrid -= 0.1
		s.reason("Moderate bandwidth favors quantum over hybrid")
	default:
		s.hybrid += 0.2
		s.reason("High bandwidth allows for maximum security")
	}

	if network.IsMetered {
		s.classical += 0.2
		s.hybrid -= 0.3
		s.quantum -= 0.1
		s.reason("Metered connection reduces crypto overhead preference")
	}
}

func (a *Advisor) scoreBattery(device DeviceConstraints, s *scores) {
	switch device.PowerSource {
	case PowerBattery:
		if device.BatteryLevelPercent < 20.0 {
			s.classical += 0.4
			s.hybrid -= 0.3
			s.quantum -= 0.1
			s.reason("Critical battery level favors classical crypto")
		} else if device.BatteryLevelPercent < 50.0 {
			s.classical += 0.2
			s.hybrid -= 0.2
			s.reason("Low battery level favors efficient crypto")
		}
	case PowerPluggedIn:
		s.hybrid += 0.2
		s.reason("Plugged in allows maximum security")
	case PowerCharging:
		s.quantum += 0.1
		s.reason("Charging allows good security")
	}

	switch device.ThermalState {
	case ThermalHot, ThermalCritical:
		s.classical += 0.3
		s.hybrid -= 0.4
		s.quantum -= 0.2
		s.reason("High thermal state favors low-CPU crypto")
	case ThermalWarm:
		s.classical += 0.1
		s.hybrid -= 0.1
		s.reason("Elevated temperature slightly favors classical")
	}
}

func (a *Advisor) scoreLatency(network NetworkConditions, s *scores) {
	if network.LatencyMS > 500.0 {
		s.classical += 0.2
		s.hybrid -= 0.2
		s.quantum += 0.1
		s.reason("High latency favors efficient crypto operations")
	}

	switch network.ConnectionStability {
	case VeryUnstable:
		s.classical += 0.3
		s.hybrid -= 0.2
		s.quantum -= 0.1
		s.reason("Unstable connection favors reliable classical crypto")
	case Unstable:
		s.classical += 0.1
		s.hybrid -= 0.1
		s.reason("Somewhat unstable connection favors classical")
	case Stable:
		s.hybrid += 0.1
		s.reason("Stable connection allows complex crypto")
	}
}

func (a *Advisor) scoreCPU(device DeviceConstraints, s *scores) {
	switch {
	case device.CPUUsagePercent > 80.0:
		s.classical += 0.3
		s.hybrid -= 0.4
		s.quantum -= 0.1
		s.reason("High CPU usage favors lightweight crypto")
	case device.CPUUsagePercent > 60.0:
		s.classical += 0.1
		s.hybrid -= 0.2
		s.reason("Elevated CPU usage favors efficient crypto")
	case device.CPUUsagePercent < 30.0:
		s.hybrid += 0.2
		s.reason("Low CPU usage allows intensive crypto")
	}

	if device.MemoryUsagePercent > 85.0 {
		s.classical += 0.2
		s.hybrid -= 0.3
		s.quantum -= 0.1
		s.reason("High memory usage favors memory-efficient crypto")
	}
}

func (a *Advisor) scoreDeviceClass(device DeviceConstraints, s *scores) {
	switch device.DeviceClass {
	case DeviceMobile:
		s.quantum += 0.1
		s.reason("Mobile device favors balanced quantum crypto")
	case DeviceIoT:
		s.classical += 0.3
		s.hybrid -= 0.2
		s.quantum -= 0.1
		s.reason("IoT device favors efficient classical crypto")
	case DeviceServer:
		s.hybrid += 0.3
		s.reason("Server can afford maximum security")
	case DeviceDesktop:
		s.hybrid += 0.1
		s.reason("Desktop allows good security")
	case DeviceLaptop:
		s.reason("Laptop crypto choice depends on power source")
	case DeviceTablet:
		s.quantum += 0.05
		s.reason("Tablet favors quantum crypto")
	}
}

// impactEstimates is a fixed per-mode lookup, not derived from live
// measurement.
func impactEstimates(mode wire.Mode) (performance, battery, bandwidth float64) {
	switch mode {
	case wire.ModeHybrid:
		return 1.8, 1.6, 1.2
	case wire.ModeQuantum:
		return 1.4, 1.3, 1.1
	default:
		return 1.0, 1.0, 1.0
	}
}
