// Package identity derives the stable device identifier a Shaka unit
// presents to the backend. The identifier is computed from the CPU
// serial exposed in /proc/cpuinfo, so it survives reflashes and never
// requires local state.
package identity

import (
	"bufio"
	"os"
	"strings"
)

const (
	// SerialPrefix is the fixed prefix of every Shaka device serial.
	SerialPrefix = "CS-SHAKA-V1-"

	// FallbackSerial is returned when hardware metadata cannot be
	// read. Resolution must never fail the bootstrap flow; an
	// unidentifiable device registers under the fallback and is
	// sorted out by the operator.
	FallbackSerial = SerialPrefix + "UNKNOWN"

	suffixLength = 4
)

// Resolver derives device serials from a cpuinfo-format file.
type Resolver struct {
	// CPUInfoPath is the file to read hardware metadata from,
	// normally /proc/cpuinfo.
	CPUInfoPath string
}

// Resolve returns the device serial for this hardware. It is
// deterministic for a given device, has no side effects, and returns
// FallbackSerial instead of an error when the metadata source is
// absent or malformed.
func (r *Resolver) Resolve() string {
	f, err := os.Open(r.CPUInfoPath)
	if err != nil {
		return FallbackSerial
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "Serial") {
			continue
		}
		_, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		serial := strings.TrimSpace(value)
		if serial == "" {
			continue
		}
		if len(serial) > suffixLength {
			serial = serial[len(serial)-suffixLength:]
		}
		return SerialPrefix + strings.ToUpper(serial)
	}
	return FallbackSerial
}
