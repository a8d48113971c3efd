package dlsm

import (
	"github.com/rs/xid"

	"github.com/vk7xyz/ax25d/pkg/clock"
	"github.com/vk7xyz/ax25d/pkg/packet"
	"github.com/vk7xyz/ax25d/pkg/ssid"
)

// State is one of the six states of the data-link state machine.
type State int

const (
	StateDisconnected State = iota
	StateAwaitingConnection
	StateAwaitingRelease
	StateConnected
	StateTimerRecovery
	StateAwaitingConnect22
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateAwaitingConnection:
		return "awaiting-connection"
	case StateAwaitingRelease:
		return "awaiting-release"
	case StateConnected:
		return "connected"
	case StateTimerRecovery:
		return "timer-recovery"
	case StateAwaitingConnect22:
		return "awaiting-connect-2.2"
	default:
		return "unknown"
	}
}

// Version selects which set of default link parameters a Connection runs
// with; it is re-applied whenever the link is (re-)established.
type Version int

const (
	Version2_0 Version = iota
	Version2_2
)

// defaultSRTT seeds a Connection's smoothed round-trip estimate before any
// samples have been taken.
func defaultSRTT() clock.Duration { return clock.Seconds(3) }

// N2 bounds how many times T1 may expire before a link attempt or an
// outstanding frame is given up on, for both protocol versions.
const defaultN2 = 10

// n1 bounds information-field length; both versions share this default.
const defaultN1 = 2048

// t3Duration is how long an idle link waits before probing with RR/RNR.
var t3Duration = clock.Minutes(15)

// windowSlots is sized to the largest modulo-128 window so a single array
// backs both 2.0 and 2.2 connections.
const windowSlots = 128

// Connection is a single AX.25 data-link connection: one (local, remote,
// port) triple running the six-state machine described by the AX.25 2.2
// SDL. Field names mirror the canonical V(S)/V(A)/V(R) variables as
// SndState/AckState/RcvState.
type Connection struct {
	idx int

	Port   uint8
	Local  ssid.Address
	Remote ssid.Address

	// ID is an opaque, process-unique correlation id assigned once at
	// find-or-create time, surfaced in logs so a single link's lifetime can
	// be traced across many interleaved connections.
	ID xid.ID

	State State

	Version      Version
	Modulo       uint8
	WindowSize   int
	N1           int
	N2           int
	SrejEnabled  bool

	T2            clock.Duration
	RC            int
	PeerBusy      bool
	SelfBusy      bool
	RejException  bool
	AckPending    bool
	L3Initiated   bool
	SrejException int

	SndState uint8 // V(S)
	AckState uint8 // V(A)
	RcvState uint8 // V(R)

	SentBuffer [windowSlots]*packet.Packet
	SrejQueue  [windowSlots]*packet.Buffer

	sendQueueHead *packet.Buffer
	sendQueueTail *packet.Buffer

	SRTT        clock.Duration
	T1V         clock.Duration
	T1Remaining clock.Duration
	T1Expiry    clock.Instant
	T2Expiry    clock.Instant
	T3Expiry    clock.Instant

	Socket *Socket
}

func (c *Connection) reset() {
	id := c.ID
	idx := c.idx
	*c = Connection{idx: idx, ID: id}
}

// ApplyVersion2_0 sets the connection's parameters to the modulo-8 defaults.
func (c *Connection) ApplyVersion2_0() {
	c.Version = Version2_0
	c.SrejEnabled = false
	c.Modulo = 8
	c.N1 = defaultN1
	c.WindowSize = 4
	c.N2 = defaultN2
	c.T2 = clock.Seconds(3)
}

// ApplyVersion2_2 sets the connection's parameters to the modulo-128
// defaults.
func (c *Connection) ApplyVersion2_2() {
	c.Version = Version2_2
	c.SrejEnabled = true
	c.Modulo = 128
	c.N1 = defaultN1
	c.WindowSize = 32
	c.N2 = defaultN2
	c.T2 = clock.Seconds(3)
}

func (c *Connection) clearExceptionConditions() {
	c.PeerBusy = false
	c.RejException = false
	c.SelfBusy = false
	c.AckPending = false
}

// --- send queue: singly-linked FIFO of buffers awaiting transmission ---

func (c *Connection) pushSendQueue(buf *packet.Buffer) {
	buf.Next = nil
	if c.sendQueueTail == nil {
		c.sendQueueHead = buf
		c.sendQueueTail = buf
		return
	}
	c.sendQueueTail.Next = buf
	c.sendQueueTail = buf
}

func (c *Connection) popSendQueue() *packet.Buffer {
	buf := c.sendQueueHead
	if buf == nil {
		return nil
	}
	c.sendQueueHead = buf.Next
	if c.sendQueueHead == nil {
		c.sendQueueTail = nil
	}
	buf.Next = nil
	return buf
}

func (c *Connection) discardSendQueue(pool *packet.BufferPool) {
	for {
		buf := c.popSendQueue()
		if buf == nil {
			return
		}
		pool.Free(buf)
	}
}

// --- timers ---

func (c *Connection) timerRunningT1() bool { return !c.T1Expiry.IsZero() }

func (c *Connection) timerStartT1(now clock.Instant) {
	c.T1Expiry = now.Add(c.T1V)
}

func (c *Connection) timerStopT1(now clock.Instant) {
	if c.T1Expiry.IsZero() {
		return
	}
	c.T1Remaining = c.T1Expiry.Sub(now).Clamp()
	c.T1Expiry = clock.Zero
}

// timerExpiredT1 reports whether T1 has actually elapsed. The original C
// source's equivalent predicate compares the wrong direction (it returns
// true while T1_expiry is still in the future); select_t1 here implements
// the intended "has this timer actually fired" semantics instead.
func (c *Connection) timerExpiredT1(now clock.Instant) bool {
	return !c.T1Expiry.IsZero() && !c.T1Expiry.After(now)
}

func (c *Connection) timerStartT2(now clock.Instant, t2 clock.Duration) {
	c.T2Expiry = now.Add(t2)
}

func (c *Connection) timerStopT2() { c.T2Expiry = clock.Zero }

func (c *Connection) timerStartT3(now clock.Instant) {
	c.T3Expiry = now.Add(t3Duration)
}

func (c *Connection) timerStopT3() { c.T3Expiry = clock.Zero }
