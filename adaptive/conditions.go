package adaptive

// ConnectionStability classifies how reliable the current link is.
type ConnectionStability int

const (
	Stable ConnectionStability = iota
	Unstable
	VeryUnstable
)

func (s ConnectionStability) String() string {
	switch s {
	case Stable:
		return "stable"
	case Unstable:
		return "unstable"
	case VeryUnstable:
		return "very-unstable"
	default:
		return "unknown"
	}
}

// SignalStrength buckets radio signal quality.
type SignalStrength int

const (
	SignalExcellent SignalStrength = iota // > 80%
	SignalGood                            // 60-80%
	SignalFair                            // 40-60%
	SignalPoor                            // < 40%
)

// ThermalState classifies device temperature.
type ThermalState int

const (
	ThermalNormal ThermalState = iota
	ThermalWarm
	ThermalHot
	ThermalCritical
)

// PowerSource is where the device currently draws power from.
type PowerSource int

const (
	PowerBattery PowerSource = iota
	PowerCharging
	PowerPluggedIn
)

// DeviceClass is a coarse hardware category.
type DeviceClass int

const (
	DeviceMobile DeviceClass = iota
	DeviceTablet
	DeviceLaptop
	DeviceDesktop
	DeviceServer
	DeviceIoT
)

// NetworkConditions is a snapshot of link telemetry feeding the scorer.
type NetworkConditions struct {
	BandwidthMbps       float64
	LatencyMS           float64
	PacketLossRate      float64
	ConnectionStability ConnectionStability
	IsMetered           bool
	SignalStrength      SignalStrength
}

// DeviceConstraints is a snapshot of local hardware telemetry.
type DeviceConstraints struct {
	BatteryLevelPercent float64
	CPUUsagePercent     float64
	MemoryUsagePercent  float64
	ThermalState        ThermalState
	PowerSource         PowerSource
	DeviceClass         DeviceClass
}

// MeasureNetwork returns a conservative default network snapshot.
// Real deployments replace this with platform measurement.
func MeasureNetwork() NetworkConditions {
	return NetworkConditions{
		BandwidthMbps:       10.0,
		LatencyMS:           50.0,
		PacketLossRate:      0.01,
		ConnectionStability: Stable,
		IsMetered:           false,
		SignalStrength:      SignalGood,
	}
}

// MeasureDevice returns a conservative default device snapshot.
func MeasureDevice() DeviceConstraints {
	return DeviceConstraints{
		BatteryLevelPercent: 75.0,
		CPUUsagePercent:     30.0,
		MemoryUsagePercent:  45.0,
		ThermalState:        ThermalNormal,
		PowerSource:         PowerBattery,
		DeviceClass:         DeviceLaptop,
	}
}
