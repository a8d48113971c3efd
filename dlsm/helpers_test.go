package dlsm_test

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/vk7xyz/ax25d/dlsm"
	"github.com/vk7xyz/ax25d/pkg/clock"
	"github.com/vk7xyz/ax25d/pkg/frame"
	"github.com/vk7xyz/ax25d/pkg/kiss"
	"github.com/vk7xyz/ax25d/pkg/ssid"
)

const testPort = 0

// fakePlatform is an in-memory Platform: time is advanced explicitly by
// tests rather than flowing with the wall clock, and every serial write is
// captured (still KISS-stuffed) for inspection or feeding back as an
// "ingress" round trip.
type fakePlatform struct {
	now     clock.Instant
	written [][]byte
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{now: clock.Now()}
}

func (p *fakePlatform) Now() clock.Instant { return p.now }

func (p *fakePlatform) WriteSerial(serialIndex uint8, data []byte) error {
	p.written = append(p.written, append([]byte(nil), data...))
	return nil
}

func (p *fakePlatform) advance(d clock.Duration) { p.now = p.now.Add(d) }

// lastWireFrame KISS-decodes the most recent write and returns the raw AX.25
// bytes it carried.
func (p *fakePlatform) lastWireFrame(t *testing.T) []byte {
	t.Helper()
	require.NotEmpty(t, p.written, "expected at least one transmitted frame")
	raw := p.written[len(p.written)-1]
	dec := kiss.NewDecoder(0, 4096)
	var out kiss.Frame
	var ok bool
	for _, b := range raw {
		f, got := dec.DecodeByte(b)
		if got {
			out, ok = f, true
		}
	}
	require.True(t, ok, "KISS-framed write did not decode to a complete frame")
	return out.Payload
}

func testLogger() *log.Logger {
	logger := log.New(io.Discard)
	logger.SetLevel(log.FatalLevel)
	return logger
}

func newTestCore(platform dlsm.Platform) *dlsm.Core {
	return dlsm.New(dlsm.DefaultConfig(), platform, testLogger())
}

func mustAddr(t *testing.T, s string) ssid.Address {
	t.Helper()
	a, err := ssid.Parse(s)
	require.NoError(t, err)
	return a
}

// inboundCtx builds a ReplyContext that places local at the wire destination
// slot and remote at the wire source slot, i.e. exactly how a frame arriving
// from remote at local looks on the air.
func inboundCtx(local, remote ssid.Address, modulo uint8) frame.ReplyContext {
	return frame.ReplyContext{Addresses: []ssid.Address{remote, local}, Modulo: modulo}
}
