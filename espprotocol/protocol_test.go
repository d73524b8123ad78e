package espprotocol

import (
	"errors"
	"testing"
)

func TestProtocolConstants(t *testing.T) {
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"EOL", EOL, "\r\n"},
		{"Prompt", Prompt, "\r\n>>> "},
		{"PasteBanner", PasteBanner, "paste mode; Ctrl-C to cancel, Ctrl-D to finish\r\n=== "},
		{"PasteContinuation", PasteContinuation, "\r\n=== "},
		{"DefaultFaultMarker", DefaultFaultMarker, "Traceback (most recent call last):"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %q, want %q", tt.got, tt.expected)
			}
		})
	}
}

func TestControlBytes(t *testing.T) {
	if CtrlC != 0x03 || CtrlD != 0x04 || CtrlE != 0x05 {
		t.Errorf("control bytes: C=%#x D=%#x E=%#x", CtrlC, CtrlD, CtrlE)
	}
}

func TestIsCandidatePort(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"/dev/ttyUSB0", true},
		{"/dev/ttyACM1", true},
		{"/dev/cu.usbserial-0001", true},
		{"/dev/cu.SLAB_USBtoUART", true},
		{"/dev/ttyS0", false},
		{"/dev/cu.Bluetooth-Incoming-Port", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isCandidatePort(tt.name); got != tt.want {
				t.Errorf("isCandidatePort(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestDiscoverPort(t *testing.T) {
	enumerationFailed := errors.New("no such file or directory")
	tests := []struct {
		name    string
		ports   []string
		listErr error
		want    string
		wantErr error
	}{
		{"single adapter", []string{"/dev/ttyS0", "/dev/ttyUSB0"}, nil, "/dev/ttyUSB0", nil},
		{"none", []string{"/dev/ttyS0"}, nil, "", nil},
		{"ambiguous", []string{"/dev/ttyUSB0", "/dev/ttyACM0"}, nil, "", nil},
		{"enumeration fails", nil, enumerationFailed, "", enumerationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			old := listPorts
			listPorts = func() ([]string, error) { return tt.ports, tt.listErr }
			t.Cleanup(func() { listPorts = old })

			got, err := DiscoverPort()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("DiscoverPort() = %q, want %q", got, tt.want)
			}
		})
	}
}
