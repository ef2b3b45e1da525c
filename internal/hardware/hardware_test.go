package hardware_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/welterm/udsd/internal/hardware"
)

func TestSensorReadingWireFormat(t *testing.T) {
	reading := hardware.NewSensorReading("28-00000a0b0c0d", 1.234, 12)

	body, err := json.Marshal(reading)
	require.NoError(t, err)

	assert.Equal(t,
		`{"meta":{"hw":{"id":"28-00000a0b0c0d","hardware_type":"TemperatureSensor"},"source":{"source_type":"OneWire"}},"temperature":1.234,"resolution":12}`,
		string(body))
}

func TestUPSReadingWireFormat(t *testing.T) {
	reading := hardware.NewUPSReading("[rack]admin@10.0.0.5:3493", map[string]string{
		"ups.status": "OL",
	})

	body, err := json.Marshal(reading)
	require.NoError(t, err)

	assert.Equal(t,
		`{"meta":{"hw":{"id":"[rack]admin@10.0.0.5:3493","hardware_type":"UninterruptiblePowerSupply"},"source":{"source_type":"NetworkUpsTools"}},"variables":{"ups.status":"OL"}}`,
		string(body))
}

func TestNewUPSReadingNilVariables(t *testing.T) {
	reading := hardware.NewUPSReading("[ups]127.0.0.1:3493", nil)

	require.NotNil(t, reading.Variables)

	body, err := json.Marshal(reading)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"variables":{}`)
}

func TestNewUPSReadingCopiesVariables(t *testing.T) {
	vars := map[string]string{"ups.load": "23"}
	reading := hardware.NewUPSReading("[ups]127.0.0.1:3493", vars)

	vars["ups.load"] = "99"

	assert.Equal(t, "23", reading.Variables["ups.load"])
}

func TestConstructorsFixTypePairing(t *testing.T) {
	sensor := hardware.NewSensorReading("10-000800abcdef", 21.5, 10)
	assert.Equal(t, hardware.TypeTemperatureSensor, sensor.Meta.HW.HardwareType)
	assert.Equal(t, hardware.SourceOneWire, sensor.Meta.Source.SourceType)

	ups := hardware.NewUPSReading("[ups]host:3493", nil)
	assert.Equal(t, hardware.TypeUPS, ups.Meta.HW.HardwareType)
	assert.Equal(t, hardware.SourceNUT, ups.Meta.Source.SourceType)
}
