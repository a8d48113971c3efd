package dlsm

import "github.com/vk7xyz/ax25d/pkg/frame"

// dispatchDisconnected implements State 0 (Disconnected). Most inbound
// frames are answered with DM since there is no link to speak of; DL_CONNECT
// and inbound SABM/SABME are the only events that bring a connection to
// life.
func (c *Core) dispatchDisconnected(ev *Event) {
	switch ev.Kind {
	case EvCtrlError:
		c.dlError(ev, ErrL)
	case EvInfoNotPermitted:
		c.dlError(ev, ErrM)
	case EvIncorrectLength:
		c.dlError(ev, ErrN)

	case EvUA:
		c.dlError(ev, ErrC)
		c.dlError(ev, ErrD)

	case EvDM:
		// Already disconnected; nothing to do.

	case EvUI:
		c.uiCheck(ev)
		if ev.P {
			c.sendDM(ev, true)
		}

	case EvTEST:
		if ev.Type == frame.Cmd {
			c.sendTEST(ev, frame.Res, ev.F)
		}

	case EvDLDisconnect:
		// Already disconnected; confirm implicitly.

	case EvDISC:
		ev.F = ev.P
		c.sendDM(ev, ev.F)

	case EvDLUnitData:
		c.sendUI(ev, frame.Cmd)

	case EvUnknownFrame, EvI, EvRR, EvRNR, EvREJ, EvSREJ, EvFRMR:
		ev.F = ev.P
		c.sendDM(ev, ev.F)

	case EvDLData, EvDLFlowOn, EvDLFlowOff, EvTimerExpireT1, EvTimerExpireT3, EvLMData, EvTimerExpireT2:
		// No connection to act on.

	case EvDLConnect:
		// Core.Connect already finds-or-creates the Connection and allocates
		// its Socket (so the caller's full Callbacks, not just OnConnect,
		// reach it); only fall back to doing that here for a DL_CONNECT
		// synthesised without one, e.g. a future in-process trigger.
		conn := ev.Conn
		if conn == nil {
			conn = c.conns.FindOrCreate(ev.Port, ev.Addresses[AddrDst], ev.Addresses[AddrSrc])
			if conn == nil {
				c.metrics.NoConnections.Inc()
				return
			}
			ev.Conn = conn
		}
		conn.SRTT = defaultSRTT()
		conn.T1V = conn.SRTT.Mul(2)

		sock := ev.Socket
		if sock == nil {
			sock = c.sockets.Allocate(SocketConnected, conn.Local, ev.Port)
			if sock == nil {
				c.metrics.NoSockets.Inc()
				return
			}
			ev.Socket = sock
		}
		sock.Conn = conn
		conn.Socket = sock

		c.establishDataLink(ev)
		conn.L3Initiated = true
		c.setState(conn, StateAwaitingConnection)

	case EvSABM, EvSABME:
		ev.F = ev.P
		conn := c.conns.FindOrCreate(ev.Port, ev.Addresses[AddrDst], ev.Addresses[AddrSrc])
		if conn == nil {
			c.metrics.NoConnections.Inc()
			c.sendDM(ev, ev.F)
			return
		}
		ev.Conn = conn

		sock := c.sockets.Allocate(SocketConnected, ev.Addresses[AddrDst], ev.Port)
		if sock == nil {
			c.metrics.NoSockets.Inc()
			c.metrics.SABMFail.Inc()
			return
		}

		c.sendUA(ev, ev.F)
		conn.SndState, conn.AckState, conn.RcvState = 0, 0, 0
		if ev.Socket != nil {
			sock.Callbacks.OnConnect = ev.Socket.Callbacks.OnConnect
		}
		sock.Conn = conn
		conn.Socket = sock
		ev.Socket = sock

		c.dlConnectIndication(ev)

		conn.SRTT = defaultSRTT()
		conn.T1V = conn.SRTT.Mul(2)

		c.setState(conn, StateConnected)
		conn.L3Initiated = false
		conn.timerStartT3(c.now())
		c.metrics.SABMSuccess.Inc()

		if ev.Kind == EvSABM {
			conn.ApplyVersion2_0()
		} else {
			conn.ApplyVersion2_2()
		}
	}
}
