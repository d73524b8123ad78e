// =============================================================================
// device.go - Synthetic MicroPython Device for Tests
// =============================================================================
//
// Device emulates just enough of a MicroPython board on the far side of a
// serial line to exercise the whole stack without hardware:
//
//   - reset timing: releasing RTS after it was asserted "boots" the board,
//     which prints a banner and its prompt after BootDelay, or stops in the
//     ROM loader when DTR is still asserted;
//   - paste mode: Ctrl-E banner, per-line echo, Ctrl-D acknowledgement;
//   - execution: the filesystem helper calls installed by espfs run against
//     an in-memory filesystem, and simple print() statements are evaluated.
//
// It implements espprotocol.Port, so tests plug it into espprotocol.NewSession.
//
// =============================================================================

package esptest

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"time"
)

const (
	ctrlC = 0x03
	ctrlD = 0x04
	ctrlE = 0x05

	prompt      = "\r\n>>> "
	pasteBanner = "\r\npaste mode; Ctrl-C to cancel, Ctrl-D to finish\r\n=== "

	// LoaderBanner is printed instead of booting when DTR holds IO0 low
	// while the board comes out of reset.
	LoaderBanner = "ets Jun  8 2016 00:22:57\r\n\r\n" +
		"rst:0x1 (POWERON_RESET),boot:0x3 (DOWNLOAD_BOOT(UART0/UART1/SDIO_REI_REO_V2))\r\n" +
		"waiting for download\r\n"

	// BootBanner is printed by the device after every reset.
	BootBanner = "ets Jun  8 2016 00:22:57\r\n\r\nrst:0x1 (POWERON_RESET)\r\n" +
		"MicroPython v1.22.0 on 2023-12-27; Generic ESP32 module with ESP32\r\n" +
		"Type \"help()\" for more information."
)

// Device is a synthetic MicroPython board. It is safe for concurrent use.
type Device struct {
	// BootDelay is how long after RTS is released the prompt appears.
	BootDelay time.Duration

	// FS is the board's filesystem.
	FS *MemFS

	// Exec evaluates pasted source that is not a filesystem helper call.
	// Defaults to EvalPrints.
	Exec func(source string) string

	mu          sync.Mutex
	out         []byte
	pending     []byte
	pendingAt   time.Time
	readTimeout time.Duration
	dtr, rts    bool
	closed      bool
	booted      bool

	paste     bool
	pasteBuf  strings.Builder
	helpers   bool
	resets    int
	submitted []string
}

// NewDevice creates a device with an empty root filesystem.
func NewDevice() *Device {
	return &Device{
		FS:          NewMemFS(),
		readTimeout: 10 * time.Millisecond,
	}
}

// PowerOn makes the device responsive immediately, as if it had been
// running before the port was opened. No banner is printed.
func (d *Device) PowerOn() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.booted = true
}

// Resets returns how many times the device was reset.
func (d *Device) Resets() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resets
}

// Submitted returns every source text executed through paste mode.
func (d *Device) Submitted() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.submitted...)
}

// SetDTR implements espprotocol.Port.
func (d *Device) SetDTR(dtr bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dtr = dtr
	return nil
}

// SetRTS implements espprotocol.Port. Releasing RTS after it was asserted
// reboots the board.
func (d *Device) SetRTS(rts bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rts && !rts {
		d.reboot()
	}
	d.rts = rts
	return nil
}

// SetReadTimeout implements espprotocol.Port.
func (d *Device) SetReadTimeout(t time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readTimeout = t
	return nil
}

// ResetInputBuffer implements espprotocol.Port.
func (d *Device) ResetInputBuffer() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.out = nil
	return nil
}

// Close implements io.Closer.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Read returns device output. Like a serial port it returns (0, nil) when
// nothing arrives within the read timeout.
func (d *Device) Read(p []byte) (int, error) {
	deadline := time.Now().Add(d.timeout())
	for {
		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return 0, io.EOF
		}
		if d.pending != nil && !time.Now().Before(d.pendingAt) {
			d.out = append(d.out, d.pending...)
			d.pending = nil
		}
		if len(d.out) > 0 {
			n := copy(p, d.out)
			d.out = d.out[n:]
			d.mu.Unlock()
			return n, nil
		}
		d.mu.Unlock()

		if !time.Now().Before(deadline) {
			return 0, nil
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// Write feeds bytes to the device's REPL.
func (d *Device) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, io.ErrClosedPipe
	}
	if !d.booted {
		// A board held in reset (or not yet booted) drops input.
		return len(p), nil
	}
	for _, c := range p {
		d.feed(c)
	}
	return len(p), nil
}

func (d *Device) timeout() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readTimeout
}

// reboot schedules the boot banner and prompt, or the ROM loader banner
// when DTR is asserted. Called with mu held.
func (d *Device) reboot() {
	d.resets++
	d.out = nil
	d.paste = false
	d.pasteBuf.Reset()
	d.helpers = false
	d.pendingAt = time.Now().Add(d.BootDelay)
	if d.dtr {
		d.booted = false
		d.pending = []byte(LoaderBanner)
		return
	}
	d.booted = true
	d.pending = []byte(BootBanner + prompt)
}

// feed processes one input byte. Called with mu held.
func (d *Device) feed(c byte) {
	if !d.paste {
		switch c {
		case ctrlE:
			d.paste = true
			d.pasteBuf.Reset()
			d.emit(pasteBanner)
		case ctrlC:
			d.emit(prompt)
		default:
			d.out = append(d.out, c)
		}
		return
	}

	switch c {
	case ctrlC:
		d.paste = false
		d.emit(prompt)
	case ctrlD:
		d.paste = false
		d.emit("\r\n")
		d.emit(strings.ReplaceAll(d.run(d.pasteBuf.String()), "\n", "\r\n"))
		d.emit(">>> ")
	case '\r':
		d.pasteBuf.WriteByte('\n')
		d.emit("\r\n=== ")
	case '\n':
		d.out = append(d.out, c)
	default:
		d.pasteBuf.WriteByte(c)
		d.out = append(d.out, c)
	}
}

func (d *Device) emit(s string) {
	d.out = append(d.out, s...)
}

// run executes pasted source and returns its output with "\n" line endings.
func (d *Device) run(source string) string {
	d.submitted = append(d.submitted, source)

	if strings.Contains(source, "def _esp_stat(") {
		d.helpers = true
		return ""
	}

	lines := strings.Split(strings.TrimRight(source, "\n"), "\n")
	var out bytes.Buffer
	for _, line := range lines {
		if strings.HasPrefix(line, "_esp_") {
			if !d.helpers {
				out.WriteString(nameError(callName(line)))
				continue
			}
			out.WriteString(d.FS.call(line))
			continue
		}
	}
	if out.Len() > 0 {
		return out.String()
	}

	exec := d.Exec
	if exec == nil {
		exec = EvalPrints
	}
	return exec(source)
}

func nameError(name string) string {
	return traceback(1, "NameError: name '"+name+"' isn't defined")
}
