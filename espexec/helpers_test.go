package espexec

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nagylzs/espsyncer/espprotocol"
	"github.com/nagylzs/espsyncer/esptest"
)

// syncBuffer is a bytes.Buffer safe to read while another goroutine writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// waitFor polls until the buffer contains want.
func (b *syncBuffer) waitFor(t *testing.T, want string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if strings.Contains(b.String(), want) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("output never contained %q; got %q", want, b.String())
}

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestSession(t *testing.T, dev *esptest.Device) *espprotocol.Session {
	t.Helper()
	opts := espprotocol.DefaultOptions()
	opts.Timeout = 2 * time.Second
	opts.PollInterval = 2 * time.Millisecond
	opts.Logger = quietLogger()

	s, err := espprotocol.NewSession(dev, opts)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func runningSession(t *testing.T) (*espprotocol.Session, *esptest.Device) {
	t.Helper()
	dev := esptest.NewDevice()
	s := newTestSession(t, dev)
	if err := s.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	return s, dev
}
