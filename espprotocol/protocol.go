package espprotocol

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Control bytes understood by the MicroPython REPL.
const (
	CtrlA byte = 0x01 // raw REPL
	CtrlB byte = 0x02 // friendly REPL
	CtrlC byte = 0x03 // interrupt
	CtrlD byte = 0x04 // soft reset, or finish paste mode
	CtrlE byte = 0x05 // enter paste mode
)

// Protocol constants.
const (
	// EOL is the line terminator used by the device for both echo and output.
	EOL = "\r\n"

	// Prompt is the interactive prompt marker, including the line break
	// that always precedes it.
	Prompt = EOL + ">>> "

	// PasteBanner is printed by the interpreter after Ctrl-E.
	PasteBanner = "paste mode; Ctrl-C to cancel, Ctrl-D to finish" + EOL + "=== "

	// PasteContinuation is printed after every carriage return received
	// in paste mode.
	PasteContinuation = EOL + "=== "

	// DefaultFaultMarker marks an uncaught exception in captured output.
	DefaultFaultMarker = "Traceback (most recent call last):"

	// DefaultBaudRate is the default serial speed.
	DefaultBaudRate = 115200

	// DefaultTimeout bounds every wait for the prompt.
	DefaultTimeout = 5 * time.Second

	// MinResetHold is the shortest time the reset line is held asserted.
	MinResetHold = 500 * time.Millisecond

	// DefaultPollInterval is the port read timeout. Cancellation and
	// deadlines are observed at this granularity.
	DefaultPollInterval = 50 * time.Millisecond

	// readChunkSize is the size of a single port read.
	readChunkSize = 256
)

// portNamePrefixes are device node prefixes of USB serial adapters commonly
// found on development boards.
var portNamePrefixes = []string{
	"ttyUSB",
	"ttyACM",
	"cu.usbserial",
	"cu.usbmodem",
	"cu.SLAB_USBtoUART",
	"cu.wchusbserial",
	"COM",
}

// listPorts enumerates the serial ports of the system.
var listPorts = serial.GetPortsList

// isCandidatePort reports whether a port name looks like a USB serial
// adapter rather than a built-in UART or a Bluetooth endpoint.
func isCandidatePort(name string) bool {
	base := filepath.Base(name)
	for _, prefix := range portNamePrefixes {
		if strings.HasPrefix(base, prefix) {
			return true
		}
	}
	return false
}

// DiscoverPorts lists candidate serial ports.
// Returns port names sorted by device node modification time (most recently
// plugged in first).
func DiscoverPorts() ([]string, error) {
	names, err := listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	type portInfo struct {
		name    string
		modTime time.Time
	}
	ports := make([]portInfo, 0, len(names))

	for _, name := range names {
		if !isCandidatePort(name) {
			continue
		}
		info := portInfo{name: name}
		if st, err := os.Stat(name); err == nil {
			info.modTime = st.ModTime()
		}
		ports = append(ports, info)
	}

	sort.SliceStable(ports, func(i, j int) bool {
		return ports[i].modTime.After(ports[j].modTime)
	})

	result := make([]string, len(ports))
	for i, p := range ports {
		result[i] = p.name
	}
	return result, nil
}

// DiscoverPort returns the only candidate serial port.
// Returns empty string when there is none or when the choice is ambiguous.
// An error means the ports could not be enumerated at all.
func DiscoverPort() (string, error) {
	ports, err := DiscoverPorts()
	if err != nil {
		return "", err
	}
	if len(ports) != 1 {
		return "", nil
	}
	return ports[0], nil
}
