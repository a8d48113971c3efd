package kiss_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/vk7xyz/ax25d/pkg/kiss"
)

func feedAll(d *kiss.Decoder, data []byte) []kiss.Frame {
	var frames []kiss.Frame
	for _, b := range data {
		if f, ok := d.DecodeByte(b); ok {
			frames = append(frames, f)
		}
	}
	return frames
}

func TestDecodeDataFrame(t *testing.T) {
	d := kiss.NewDecoder(0, 256)

	data := []byte{kiss.FEND, 0x00, 'h', 'i', kiss.FEND}

	frames := feedAll(d, data)
	require.Len(t, frames, 1)
	assert.Equal(t, "hi", string(frames[0].Payload))
	assert.Equal(t, kiss.PortFor(0, 0), frames[0].Port)
}

func TestDecodeEscapeSequence(t *testing.T) {
	d := kiss.NewDecoder(0, 256)

	// From spec.md's worked example: C0 00 DB DC 01 DB DD C0 -> payload C0 01 DB
	data := []byte{kiss.FEND, 0x00, kiss.FESC, kiss.TFEND, 0x01, kiss.FESC, kiss.TFESC, kiss.FEND}

	frames := feedAll(d, data)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{kiss.FEND, 0x01, kiss.FESC}, frames[0].Payload)
}

func TestDecodeACKMode(t *testing.T) {
	d := kiss.NewDecoder(2, 256)

	data := []byte{kiss.FEND, byte(kiss.CmdACKMode) | (1 << 4), 0x01, 0x02, 'x', kiss.FEND}
	frames := feedAll(d, data)

	require.Len(t, frames, 1)
	assert.Equal(t, uint16(0x0102), frames[0].AckID)
	assert.Equal(t, []byte("x"), frames[0].Payload)
	assert.Equal(t, kiss.PortFor(1, 2), frames[0].Port)
}

func TestDecodeUnknownCommandCounted(t *testing.T) {
	d := kiss.NewDecoder(0, 256)

	data := []byte{kiss.FEND, 0x07, 0xFF, kiss.FEND}
	frames := feedAll(d, data)

	assert.Empty(t, frames)
	assert.Equal(t, uint64(1), d.Counters().UnknownCmds)
}

func TestDecodeOverrunResets(t *testing.T) {
	d := kiss.NewDecoder(0, 4)

	data := []byte{kiss.FEND, 0x00, 'a', 'b', 'c', 'd', 'e', kiss.FEND}
	frames := feedAll(d, data)

	assert.Empty(t, frames)
	assert.Equal(t, uint64(1), d.Counters().Overruns)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	enc := &kiss.Encoder{}
	payload := []byte{0xC0, 0xDB, 'h', 'e', 'l', 'l', 'o'}

	wire := enc.Encode(3, payload)

	d := kiss.NewDecoder(5, 256)
	frames := feedAll(d, wire)

	require.Len(t, frames, 1)
	assert.Equal(t, payload, frames[0].Payload)
	assert.Equal(t, kiss.PortFor(3, 5), frames[0].Port)
}

func TestEncodeACKModeAllocatesNonZeroID(t *testing.T) {
	enc := &kiss.Encoder{}

	for i := 0; i < 3; i++ {
		_, id := enc.EncodeACKMode(0, []byte("x"))
		assert.NotZero(t, id)
	}
}

func TestStuffUnstuffRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		data := rapid.SliceOf(rapid.Byte()).Draw(rt, "data")
		assert.Equal(rt, data, kiss.Unstuff(kiss.Stuff(data)))
	})
}

func TestDecodeStreamRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		payload := rapid.SliceOfN(rapid.Byte(), 1, 64).Draw(rt, "payload")
		enc := &kiss.Encoder{}
		wire := enc.Encode(0, payload)

		d := kiss.NewDecoder(0, 4096)
		frames := feedAll(d, wire)

		require.Len(rt, frames, 1)
		assert.Equal(rt, payload, frames[0].Payload)
	})
}
