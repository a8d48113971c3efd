package dlsm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk7xyz/ax25d/dlsm"
	"github.com/vk7xyz/ax25d/pkg/clock"
	"github.com/vk7xyz/ax25d/pkg/frame"
	"github.com/vk7xyz/ax25d/pkg/ssid"
)

func TestConnectSendsSABMAndEstablishesOnUA(t *testing.T) {
	platform := newFakePlatform()
	core := newTestCore(platform)

	local := mustAddr(t, "VK7XYZ-1")
	remote := mustAddr(t, "N0CALL-2")

	connected := false
	var connectedConn *dlsm.Connection
	conn, err := core.Connect(testPort, local, remote, dlsm.Callbacks{
		OnConnect: func(c *dlsm.Connection) { connected = true; connectedConn = c },
	})
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, dlsm.StateAwaitingConnection, conn.State)

	wire := platform.lastWireFrame(t)
	d, err := frame.Decode(wire, 8)
	require.NoError(t, err)
	assert.Equal(t, frame.KindSABM, d.Kind)
	assert.True(t, d.P)

	ua, err := frame.BuildUFrame(inboundCtx(local, remote, 8), frame.KindUA, frame.Res, true, nil)
	require.NoError(t, err)
	core.IngressFrame(testPort, ua, 8)

	assert.True(t, connected)
	assert.Same(t, conn, connectedConn)
	assert.Equal(t, dlsm.StateConnected, conn.State)
}

func TestInboundSABMIsAcceptedByListener(t *testing.T) {
	platform := newFakePlatform()
	core := newTestCore(platform)

	local := mustAddr(t, "VK7XYZ-1")
	remote := mustAddr(t, "N0CALL-2")

	var accepted *dlsm.Connection
	_, err := core.Listen(testPort, local, dlsm.Callbacks{
		OnConnect: func(c *dlsm.Connection) { accepted = c },
	})
	require.NoError(t, err)

	sabm, err := frame.BuildUFrame(inboundCtx(local, remote, 8), frame.KindSABM, frame.Cmd, true, nil)
	require.NoError(t, err)
	core.IngressFrame(testPort, sabm, 8)

	require.NotNil(t, accepted)
	assert.Equal(t, dlsm.StateConnected, accepted.State)
	assert.Equal(t, dlsm.Version2_0, accepted.Version)

	wire := platform.lastWireFrame(t)
	d, err := frame.Decode(wire, 8)
	require.NoError(t, err)
	assert.Equal(t, frame.KindUA, d.Kind)
	assert.True(t, d.F)
}

func TestInboundSABMEUsesExtendedModulo(t *testing.T) {
	platform := newFakePlatform()
	core := newTestCore(platform)

	local := mustAddr(t, "VK7XYZ-1")
	remote := mustAddr(t, "N0CALL-2")

	var accepted *dlsm.Connection
	_, err := core.Listen(testPort, local, dlsm.Callbacks{
		OnConnect: func(c *dlsm.Connection) { accepted = c },
	})
	require.NoError(t, err)

	sabme, err := frame.BuildUFrame(inboundCtx(local, remote, 8), frame.KindSABME, frame.Cmd, true, nil)
	require.NoError(t, err)
	core.IngressFrame(testPort, sabme, 8)

	require.NotNil(t, accepted)
	assert.Equal(t, dlsm.Version2_2, accepted.Version)
	assert.Equal(t, 32, accepted.WindowSize)
}

func connectAndEstablish(t *testing.T, core *dlsm.Core, platform *fakePlatform, local, remote ssid.Address) *dlsm.Connection {
	t.Helper()
	conn, err := core.Connect(testPort, local, remote, dlsm.Callbacks{})
	require.NoError(t, err)
	ua, err := frame.BuildUFrame(inboundCtx(local, remote, 8), frame.KindUA, frame.Res, true, nil)
	require.NoError(t, err)
	core.IngressFrame(testPort, ua, 8)
	require.Equal(t, dlsm.StateConnected, conn.State)
	return conn
}

func TestSendTransmitsIFrameAndAdvancesSndState(t *testing.T) {
	platform := newFakePlatform()
	core := newTestCore(platform)
	local := mustAddr(t, "VK7XYZ-1")
	remote := mustAddr(t, "N0CALL-2")

	conn := connectAndEstablish(t, core, platform, local, remote)

	core.Send(conn, []byte("hello"))

	wire := platform.lastWireFrame(t)
	d, err := frame.Decode(wire, 8)
	require.NoError(t, err)
	assert.Equal(t, frame.KindI, d.Kind)
	assert.Equal(t, uint8(0), d.NS)
	assert.Equal(t, []byte{0xF0, 'h', 'e', 'l', 'l', 'o'}, d.Info)
	assert.Equal(t, uint8(1), conn.SndState)

	core.Send(conn, []byte("world"))
	wire2 := platform.lastWireFrame(t)
	d2, err := frame.Decode(wire2, 8)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), d2.NS)
}

func TestInboundIFrameInvokesOnData(t *testing.T) {
	platform := newFakePlatform()
	core := newTestCore(platform)
	local := mustAddr(t, "VK7XYZ-1")
	remote := mustAddr(t, "N0CALL-2")

	var got []byte
	conn, err := core.Connect(testPort, local, remote, dlsm.Callbacks{
		OnData: func(c *dlsm.Connection, info []byte) { got = info },
	})
	require.NoError(t, err)
	ua, err := frame.BuildUFrame(inboundCtx(local, remote, 8), frame.KindUA, frame.Res, true, nil)
	require.NoError(t, err)
	core.IngressFrame(testPort, ua, 8)
	require.Equal(t, dlsm.StateConnected, conn.State)

	payload := []byte("ping")
	iwire := frame.BuildIFrame(inboundCtx(local, remote, 8), frame.Cmd, false, 0, 0, frame.PIDNoL3, payload)
	core.IngressFrame(testPort, iwire, 8)

	assert.Equal(t, payload, got)
	assert.Equal(t, uint8(1), conn.RcvState)
}

func TestT1TimeoutRetransmitsSABM(t *testing.T) {
	platform := newFakePlatform()
	core := newTestCore(platform)
	local := mustAddr(t, "VK7XYZ-1")
	remote := mustAddr(t, "N0CALL-2")

	conn, err := core.Connect(testPort, local, remote, dlsm.Callbacks{})
	require.NoError(t, err)
	require.Equal(t, 1, len(platform.written))

	platform.advance(clock.Seconds(10))
	core.Tick()

	assert.Equal(t, 2, len(platform.written), "T1 expiry should trigger a second SABM")
	assert.Equal(t, 1, conn.RC)
	assert.Equal(t, dlsm.StateAwaitingConnection, conn.State)

	wire := platform.lastWireFrame(t)
	d, err := frame.Decode(wire, 8)
	require.NoError(t, err)
	assert.Equal(t, frame.KindSABM, d.Kind)
}

func TestConnectionGivesUpAfterN2Retries(t *testing.T) {
	platform := newFakePlatform()
	core := newTestCore(platform)
	local := mustAddr(t, "VK7XYZ-1")
	remote := mustAddr(t, "N0CALL-2")

	var disconnectErr error
	disconnected := false
	conn, err := core.Connect(testPort, local, remote, dlsm.Callbacks{
		OnDisconnect: func(c *dlsm.Connection, err error) { disconnected = true; disconnectErr = err },
	})
	require.NoError(t, err)

	for i := 0; i < 11; i++ {
		platform.advance(clock.Seconds(10))
		core.Tick()
	}

	assert.True(t, disconnected)
	assert.Nil(t, disconnectErr)
	assert.Equal(t, dlsm.StateDisconnected, conn.State)
}

func TestDisconnectReleasesConnectionOnUA(t *testing.T) {
	platform := newFakePlatform()
	core := newTestCore(platform)
	local := mustAddr(t, "VK7XYZ-1")
	remote := mustAddr(t, "N0CALL-2")

	conn := connectAndEstablish(t, core, platform, local, remote)
	core.Disconnect(conn)
	assert.Equal(t, dlsm.StateAwaitingRelease, conn.State)

	ua, err := frame.BuildUFrame(inboundCtx(local, remote, 8), frame.KindUA, frame.Res, true, nil)
	require.NoError(t, err)
	core.IngressFrame(testPort, ua, 8)

	assert.Equal(t, dlsm.StateDisconnected, conn.State)
}

func TestOutOfWindowAckTriggersErrorRecovery(t *testing.T) {
	platform := newFakePlatform()
	core := newTestCore(platform)
	local := mustAddr(t, "VK7XYZ-1")
	remote := mustAddr(t, "N0CALL-2")

	var errs []dlsm.DLError
	conn, err := core.Connect(testPort, local, remote, dlsm.Callbacks{
		OnError: func(c *dlsm.Connection, e dlsm.DLError) { errs = append(errs, e) },
	})
	require.NoError(t, err)
	ua, err := frame.BuildUFrame(inboundCtx(local, remote, 8), frame.KindUA, frame.Res, true, nil)
	require.NoError(t, err)
	core.IngressFrame(testPort, ua, 8)
	require.Equal(t, dlsm.StateConnected, conn.State)

	// N(R)=5 acknowledges a frame we never sent: outside [V(A), V(S)] = [0,0].
	rrWire, err := frame.BuildSFrame(inboundCtx(local, remote, 8), frame.KindRR, frame.Res, true, 5)
	require.NoError(t, err)
	core.IngressFrame(testPort, rrWire, 8)

	require.NotEmpty(t, errs)
	assert.Equal(t, dlsm.ErrJ, errs[len(errs)-1].Code)
	assert.Equal(t, dlsm.StateAwaitingConnection, conn.State)
}

func TestListenerRejectsSABMWhenNoSocketCapacity(t *testing.T) {
	platform := newFakePlatform()
	cfg := dlsm.DefaultConfig()
	cfg.MaxSockets = 1
	core := dlsm.New(cfg, platform, testLogger())

	local := mustAddr(t, "VK7XYZ-1")
	remote := mustAddr(t, "N0CALL-2")

	_, err := core.Listen(testPort, local, dlsm.Callbacks{})
	require.NoError(t, err)

	sabm, err := frame.BuildUFrame(inboundCtx(local, remote, 8), frame.KindSABM, frame.Cmd, true, nil)
	require.NoError(t, err)
	core.IngressFrame(testPort, sabm, 8)

	assert.Empty(t, platform.written, "no UA should be sent when the socket table is exhausted")
}
