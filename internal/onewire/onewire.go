// Package onewire collects temperature readings from a w1 sysfs
// hierarchy: one directory per device, a temperature file holding
// millidegrees Celsius and a resolution file holding bits.
package onewire

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

const (
	temperatureFile = "temperature"
	resolutionFile  = "resolution"
	millidegPerDeg  = 1000.0
)

// Device directories look like 28-00000a0b0c0d: family code, dash,
// serial, all lowercase hex.
var deviceIDPattern = regexp.MustCompile(`^[0-9a-f]{2}-[0-9a-f]{12}$`)

var (
	ErrBasePathUnavailable = errors.New("one-wire base path unavailable")
	ErrMalformedReading    = errors.New("malformed device reading")
)

// Measurement is a single device read
type Measurement struct {
	Temperature float64
	Resolution  int
}

// Reader enumerates and reads 1-wire devices
type Reader interface {
	List() ([]string, error)
	Read(id string) (Measurement, error)
}

// SysfsReader reads devices below one base directory
type SysfsReader struct {
	base string
}

func NewSysfsReader(base string) *SysfsReader {
	return &SysfsReader{base: base}
}

// List returns the ids of directories that look like devices and
// expose both value files. Anything else under base, including bus
// master entries, is ignored.
func (r *SysfsReader) List() ([]string, error) {
	entries, err := os.ReadDir(r.base)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBasePathUnavailable, err)
	}

	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() || !deviceIDPattern.MatchString(entry.Name()) {
			continue
		}
		if !r.hasValueFiles(entry.Name()) {
			continue
		}
		ids = append(ids, entry.Name())
	}

	return ids, nil
}

func (r *SysfsReader) hasValueFiles(id string) bool {
	for _, name := range []string{temperatureFile, resolutionFile} {
		if _, err := os.Stat(filepath.Join(r.base, id, name)); err != nil {
			return false
		}
	}

	return true
}

// Read parses both value files for one device. The temperature file
// holds millidegrees, so 1234 becomes 1.234.
func (r *SysfsReader) Read(id string) (Measurement, error) {
	rawTemp, err := r.readFile(id, temperatureFile)
	if err != nil {
		return Measurement{}, err
	}
	millideg, err := strconv.ParseFloat(rawTemp, 64)
	if err != nil {
		return Measurement{}, fmt.Errorf("%w: temperature %q: %v", ErrMalformedReading, rawTemp, err)
	}

	rawRes, err := r.readFile(id, resolutionFile)
	if err != nil {
		return Measurement{}, err
	}
	resolution, err := strconv.Atoi(rawRes)
	if err != nil {
		return Measurement{}, fmt.Errorf("%w: resolution %q: %v", ErrMalformedReading, rawRes, err)
	}

	return Measurement{
		Temperature: millideg / millidegPerDeg,
		Resolution:  resolution,
	}, nil
}

func (r *SysfsReader) readFile(id, name string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(r.base, id, name))
	if err != nil {
		return "", fmt.Errorf("read %s of %s: %w", name, id, err)
	}

	return strings.TrimSpace(string(raw)), nil
}
