// Package hardware defines the identity and reading types shared by
// every data source and consumer. The wire names below are fixed;
// downstream consumers match on them.
package hardware

// Type is the kind of monitored hardware
type Type string

const (
	TypeTemperatureSensor Type = "TemperatureSensor"
	TypeUPS               Type = "UninterruptiblePowerSupply"
)

// SourceType is the protocol a reading was collected over
type SourceType string

const (
	SourceOneWire SourceType = "OneWire"
	SourceNUT     SourceType = "NetworkUpsTools"
)

// Info identifies one physical device
type Info struct {
	ID           string `json:"id"`
	HardwareType Type   `json:"hardware_type"`
}

// Source describes where a reading came from
type Source struct {
	SourceType SourceType `json:"source_type"`
}

// Metadata pairs a device identity with its source
type Metadata struct {
	HW     Info   `json:"hw"`
	Source Source `json:"source"`
}

// SensorReading is the latest measurement of one temperature sensor
type SensorReading struct {
	Meta        Metadata `json:"meta"`
	Temperature float64  `json:"temperature"`
	Resolution  int      `json:"resolution"`
}

// UPSReading is the latest variable set of one UPS. Values are opaque
// strings; the daemon never interprets them.
type UPSReading struct {
	Meta      Metadata          `json:"meta"`
	Variables map[string]string `json:"variables"`
}

// NewSensorReading builds a sensor reading. The type pairing is fixed
// here so no other pairing can be constructed.
func NewSensorReading(id string, temperature float64, resolution int) SensorReading {
	return SensorReading{
		Meta: Metadata{
			HW:     Info{ID: id, HardwareType: TypeTemperatureSensor},
			Source: Source{SourceType: SourceOneWire},
		},
		Temperature: temperature,
		Resolution:  resolution,
	}
}

// NewUPSReading builds a UPS reading. The variable map is copied so
// later mutation by the caller cannot leak into the store, and a nil
// map still serializes as {}.
func NewUPSReading(id string, variables map[string]string) UPSReading {
	vars := make(map[string]string, len(variables))
	for name, value := range variables {
		vars[name] = value
	}

	return UPSReading{
		Meta: Metadata{
			HW:     Info{ID: id, HardwareType: TypeUPS},
			Source: Source{SourceType: SourceNUT},
		},
		Variables: vars,
	}
}
