package dlsm

import (
	"github.com/vk7xyz/ax25d/pkg/frame"
	"github.com/vk7xyz/ax25d/pkg/ssid"
)

// dispatch routes ev to the handler for its connection's current state (or
// to the pre-connection Disconnected handler when ev.Conn is nil), then
// checks the post-dispatch invariant every state transition must leave
// true: a connection is either Connected or has no live T3 timer.
func (c *Core) dispatch(ev *Event) {
	state := StateDisconnected
	if ev.Conn != nil {
		state = ev.Conn.State
	}

	switch state {
	case StateDisconnected:
		c.dispatchDisconnected(ev)
	case StateAwaitingConnection:
		c.dispatchAwaitingConnection(ev)
	case StateAwaitingRelease:
		c.dispatchAwaitingRelease(ev)
	case StateConnected:
		c.dispatchConnected(ev)
	case StateTimerRecovery:
		c.dispatchTimerRecovery(ev)
	case StateAwaitingConnect22:
		c.dispatchAwaitingConnect22(ev)
	}

	if ev.Conn != nil {
		if ev.Conn.State != StateConnected && !ev.Conn.T3Expiry.IsZero() {
			c.log.Warn("connection left T3 running outside Connected", "state", ev.Conn.State, "conn", ev.Conn.ID)
		}
	}
}

// knownLocal reports whether addr is an address this node answers to on
// port, either via a bound listener or an already-established connection.
func (c *Core) knownLocal(port uint8, addr ssid.Address) bool {
	for i := range c.sockets.slots {
		s := &c.sockets.slots[i]
		if s.Kind == SocketListen && s.Port == port && s.Local == addr {
			return true
		}
	}
	for i := range c.conns.slots {
		conn := &c.conns.slots[i]
		if conn.State != StateDisconnected && conn.Port == port && conn.Local == addr {
			return true
		}
	}
	return false
}

func eventKindFor(k frame.Kind) EventKind {
	switch k {
	case frame.KindSABM:
		return EvSABM
	case frame.KindSABME:
		return EvSABME
	case frame.KindDISC:
		return EvDISC
	case frame.KindDM:
		return EvDM
	case frame.KindUA:
		return EvUA
	case frame.KindFRMR:
		return EvFRMR
	case frame.KindUI:
		return EvUI
	case frame.KindXID:
		return EvXID
	case frame.KindTEST:
		return EvTEST
	case frame.KindI:
		return EvI
	case frame.KindRR:
		return EvRR
	case frame.KindRNR:
		return EvRNR
	case frame.KindREJ:
		return EvREJ
	case frame.KindSREJ:
		return EvSREJ
	default:
		return EvUnknownFrame
	}
}

// isInfoBearing reports whether k is a frame kind allowed to carry an
// information field (I, UI, TEST, FRMR, XID).
func isInfoBearing(k frame.Kind) bool {
	switch k {
	case frame.KindI, frame.KindUI, frame.KindTEST, frame.KindFRMR, frame.KindXID:
		return true
	default:
		return false
	}
}

// ingress decodes data as an AX.25 frame arriving on port, resolves it to a
// Connection/Socket, and dispatches the corresponding Event.
func (c *Core) ingress(port uint8, data []byte, _ uint8) {
	pre, err := frame.Decode(data, 8)
	if err != nil {
		c.metrics.InvalidAddress.Inc()
		return
	}

	local := pre.Addresses[pre.ActiveDestIndex]
	remote := pre.Addresses[AddrSrc]

	if !c.knownLocal(port, local) {
		c.metrics.NotMe.Inc()
		c.metrics.NotMeBytes.Add(float64(len(data)))
		return
	}

	if pre.ActiveDestIndex != 0 {
		c.metrics.RefusedDigipeat.Inc()
		return
	}

	conn := c.conns.Find(port, local, remote)
	modulo := uint8(8)
	if conn != nil {
		modulo = conn.Modulo
	}

	d := pre
	if modulo != 8 {
		d, err = frame.Decode(data, modulo)
		if err != nil {
			c.metrics.InvalidAddress.Inc()
			return
		}
	}

	ev := &Event{
		Kind:      eventKindFor(d.Kind),
		Port:      port,
		Addresses: d.Addresses,
		Type:      d.Type,
		P:         d.P,
		F:         d.F,
		NS:        d.NS,
		NR:        d.NR,
		Info:      d.Info,
		Conn:      conn,
	}
	if conn != nil {
		ev.Socket = conn.Socket
	} else {
		ev.Socket = c.sockets.FindListener(port, local)
	}

	if d.Kind == frame.KindUnknown {
		c.metrics.UnknownFrame.Inc()
	}

	if !isInfoBearing(d.Kind) && len(d.Info) > 0 {
		ev.Kind = EvInfoNotPermitted
	}

	c.dispatch(ev)
}
