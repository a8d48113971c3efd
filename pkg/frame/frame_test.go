package frame_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/vk7xyz/ax25d/pkg/frame"
	"github.com/vk7xyz/ax25d/pkg/ssid"
)

func mustAddr(t *testing.T, s string) ssid.Address {
	t.Helper()
	a, err := ssid.Parse(s)
	require.NoError(t, err)
	return a
}

func TestDecodeSABMCommand(t *testing.T) {
	dst := mustAddr(t, "2E0ITB-1")
	src := mustAddr(t, "M7QQQ-1")

	var data []byte
	dstWire := ssid.EncodeWire(dst, false, true) // CMD: dest H/C bit set
	srcWire := ssid.EncodeWire(src, true, false)
	data = append(data, dstWire[:]...)
	data = append(data, srcWire[:]...)
	data = append(data, 0b0010_1111|0b0001_0000) // SABM, P=1

	d, err := frame.Decode(data, 8)
	require.NoError(t, err)

	assert.Equal(t, frame.KindSABM, d.Kind)
	assert.Equal(t, frame.Cmd, d.Type)
	assert.True(t, d.P)
	assert.False(t, d.F)
	assert.Equal(t, 0, d.ActiveDestIndex)
	assert.Equal(t, []ssid.Address{dst, src}, d.Addresses)
}

func TestDecodeIFrameModulo8(t *testing.T) {
	dst := mustAddr(t, "2E0ITB-1")
	src := mustAddr(t, "M7QQQ-1")

	var data []byte
	dstWire := ssid.EncodeWire(dst, false, false) // direction doesn't matter here; neither command bit is set
	srcWire := ssid.EncodeWire(src, true, false)
	data = append(data, dstWire[:]...)
	data = append(data, srcWire[:]...)

	var control uint8
	control |= 2 << 1 // N(S) = 2
	control |= 3 << 5 // N(R) = 3
	data = append(data, control)
	data = append(data, 0xF0, 'h', 'i')

	d, err := frame.Decode(data, 8)
	require.NoError(t, err)

	assert.Equal(t, frame.KindI, d.Kind)
	assert.Equal(t, uint8(2), d.NS)
	assert.Equal(t, uint8(3), d.NR)
	assert.Equal(t, []byte{0xF0, 'h', 'i'}, d.Info)
}

func TestDecodeIFrameModulo128(t *testing.T) {
	dst := mustAddr(t, "2E0ITB-1")
	src := mustAddr(t, "M7QQQ-1")

	var data []byte
	dstWire := ssid.EncodeWire(dst, false, false)
	srcWire := ssid.EncodeWire(src, true, false)
	data = append(data, dstWire[:]...)
	data = append(data, srcWire[:]...)

	var control uint16
	control |= 100 << 1 // N(S) = 100
	control |= 50 << 9  // N(R) = 50
	data = append(data, byte(control), byte(control>>8))
	data = append(data, 0xF0, 'x')

	d, err := frame.Decode(data, 128)
	require.NoError(t, err)

	assert.Equal(t, frame.KindI, d.Kind)
	assert.Equal(t, uint8(100), d.NS)
	assert.Equal(t, uint8(50), d.NR)
}

func TestActiveDestinationDigipeat(t *testing.T) {
	dst := mustAddr(t, "2E0ITB-1")
	src := mustAddr(t, "M7QQQ-1")
	digi1 := mustAddr(t, "VK7XYZ")
	digi2 := mustAddr(t, "N0CALL")

	var data []byte
	dstWire := ssid.EncodeWire(dst, false, false)
	srcWire := ssid.EncodeWire(src, false, false)
	digi1Wire := ssid.EncodeWire(digi1, false, true) // already used (hop bit set)
	digi2Wire := ssid.EncodeWire(digi2, true, false) // not yet used

	data = append(data, dstWire[:]...)
	data = append(data, srcWire[:]...)
	data = append(data, digi1Wire[:]...)
	data = append(data, digi2Wire[:]...)
	data = append(data, 0b0000_0011) // UI

	d, err := frame.Decode(data, 8)
	require.NoError(t, err)
	assert.Equal(t, 3, d.ActiveDestIndex, "active dest should be the first un-hopped digipeater")
}

func TestActiveDestinationFullyDigipeated(t *testing.T) {
	dst := mustAddr(t, "2E0ITB-1")
	src := mustAddr(t, "M7QQQ-1")
	digi1 := mustAddr(t, "VK7XYZ")
	digi2 := mustAddr(t, "N0CALL")

	var data []byte
	dstWire := ssid.EncodeWire(dst, false, false)
	srcWire := ssid.EncodeWire(src, false, false)
	digi1Wire := ssid.EncodeWire(digi1, false, true)
	digi2Wire := ssid.EncodeWire(digi2, true, true)

	data = append(data, dstWire[:]...)
	data = append(data, srcWire[:]...)
	data = append(data, digi1Wire[:]...)
	data = append(data, digi2Wire[:]...)
	data = append(data, 0b0000_0011)

	d, err := frame.Decode(data, 8)
	require.NoError(t, err)
	assert.Equal(t, 0, d.ActiveDestIndex, "all hop bits set means fully digipeated, active dest is final destination")
}

func TestDecodeRejectsTooFewAddresses(t *testing.T) {
	dst := mustAddr(t, "2E0ITB-1")
	wire := ssid.EncodeWire(dst, true, false)

	_, err := frame.Decode(wire[:], 8)
	assert.ErrorIs(t, err, frame.ErrTooFewAddresses)
}

func TestDecodeRejectsTruncated(t *testing.T) {
	_, err := frame.Decode([]byte{1, 2, 3}, 8)
	assert.ErrorIs(t, err, frame.ErrTruncated)
}

func TestBuildReplySwapsAndSetsBits(t *testing.T) {
	dst := mustAddr(t, "2E0ITB-1")
	src := mustAddr(t, "M7QQQ-1")

	ctx := frame.ReplyContext{Addresses: []ssid.Address{dst, src}, Modulo: 8}

	wire, err := frame.BuildUFrame(ctx, frame.KindUA, frame.Res, true, nil)
	require.NoError(t, err)

	d, err := frame.Decode(wire, 8)
	require.NoError(t, err)

	assert.Equal(t, []ssid.Address{src, dst}, d.Addresses, "reply swaps source and destination")
	assert.Equal(t, frame.Res, d.Type)
	assert.True(t, d.F)
	assert.Equal(t, frame.KindUA, d.Kind)
}

func TestIFrameRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		modulo := rapid.SampledFrom([]uint8{8, 128}).Draw(rt, "modulo")
		maxSeq := uint8(7)
		if modulo == 128 {
			maxSeq = 127
		}
		ns := uint8(rapid.IntRange(0, int(maxSeq)).Draw(rt, "ns"))
		nr := uint8(rapid.IntRange(0, int(maxSeq)).Draw(rt, "nr"))
		p := rapid.Bool().Draw(rt, "p")
		info := rapid.SliceOfN(rapid.Byte(), 0, 32).Draw(rt, "info")

		dst := mustAddr(t, "2E0ITB-1")
		src := mustAddr(t, "M7QQQ-1")
		ctx := frame.ReplyContext{Addresses: []ssid.Address{dst, src}, Modulo: modulo}

		wire := frame.BuildIFrame(ctx, frame.Cmd, p, nr, ns, frame.PIDNoL3, info)

		d, err := frame.Decode(wire, modulo)
		require.NoError(rt, err)

		assert.Equal(rt, frame.KindI, d.Kind)
		assert.Equal(rt, ns, d.NS)
		assert.Equal(rt, nr, d.NR)
		assert.Equal(rt, p, d.P)
		assert.Equal(rt, append([]byte{byte(frame.PIDNoL3)}, info...), d.Info)
	})
}
