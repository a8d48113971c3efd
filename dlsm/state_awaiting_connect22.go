package dlsm

import "github.com/vk7xyz/ax25d/pkg/frame"

// dispatchAwaitingConnect22 implements State 5: an outbound SABME has been
// sent and we're waiting for the peer to confirm 2.2 operation. A peer that
// answers FRMR instead of UA/DM doesn't understand SABME, so the link falls
// back to 2.0 and retries from Awaiting-Connection.
func (c *Core) dispatchAwaitingConnect22(ev *Event) {
	conn := ev.Conn
	switch ev.Kind {
	case EvCtrlError:
		c.dlError(ev, ErrL)
	case EvInfoNotPermitted:
		c.dlError(ev, ErrM)
	case EvIncorrectLength:
		c.dlError(ev, ErrN)

	case EvDLDisconnect:
		// TODO: requeue the disconnect request once it is no longer dropped.

	case EvDLConnect:
		conn.discardSendQueue(c.buffers)
		conn.L3Initiated = true

	case EvDLUnitData:
		c.sendUI(ev, frame.Cmd)

	case EvDLData:
		if !conn.L3Initiated {
			c.pushI(conn, ev.Info)
		}

	case EvDrainSendq:
		if conn.L3Initiated {
			buf := conn.popSendQueue()
			if buf != nil {
				c.buffers.Free(buf)
			}
		}
		// else: leave the frame queued until the link comes up.

	case EvDLFlowOff, EvDLFlowOn, EvTimerExpireT2, EvTimerExpireT3:
		// Ignored in this state.

	case EvUI:
		c.uiCheck(ev)
		if !ev.P {
			c.sendDM(ev, true)
		}

	case EvDM:
		if !ev.F {
			c.setState(conn, StateAwaitingConnection)
			return
		}
		conn.discardSendQueue(c.buffers)
		c.dlDisconnectIndication(ev)
		conn.timerStopT1(c.now())
		c.setState(conn, StateDisconnected)

	case EvUA:
		if !ev.F {
			c.dlError(ev, ErrD)
			return
		}
		sendConnectIndication := false
		if conn.L3Initiated {
			sendConnectIndication = true
		} else if conn.SndState != conn.AckState {
			conn.discardSendQueue(c.buffers)
			sendConnectIndication = true
		}
		conn.timerStopT1(c.now())
		conn.timerStartT3(c.now())
		conn.SndState, conn.AckState, conn.RcvState = 0, 0, 0
		c.selectT1(ev)
		c.mdlNegotiateRequest(ev)
		c.setState(conn, StateConnected)
		if sendConnectIndication {
			c.dlConnectIndication(ev)
		}

	case EvTimerExpireT1:
		if conn.RC == conn.N2 {
			conn.discardSendQueue(c.buffers)
			c.dlError(ev, ErrG)
			c.dlDisconnectIndication(ev)
			c.setState(conn, StateDisconnected)
		} else {
			conn.RC++
			c.selectT1(ev)
			conn.timerStartT1(c.now())
		}

	case EvFRMR:
		c.selectT1(ev)
		conn.ApplyVersion2_0()
		c.establishDataLink(ev)
		conn.L3Initiated = true
		c.setState(conn, StateAwaitingConnection)

	case EvSABME:
		ev.F = ev.P
		c.sendUA(ev, false)

	case EvSABM:
		ev.F = ev.P
		c.sendUA(ev, false)
		c.setState(conn, StateAwaitingConnection)

	case EvDISC:
		ev.F = ev.P
		c.sendDM(ev, ev.F)

	case EvTEST:
		if ev.Type == frame.Cmd {
			c.sendTEST(ev, frame.Res, ev.F)
		}

	case EvUnknownFrame, EvI, EvRR, EvRNR, EvREJ, EvSREJ, EvXID, EvLMData:
		// Ignored in this state.
	}
}

// mdlNegotiateRequest would kick off XID-based parameter negotiation
// (window size, T1 extension) once a 2.2 link comes up. Full negotiation
// isn't implemented; connections run with the version defaults applied by
// ApplyVersion2_2 for their entire lifetime.
func (c *Core) mdlNegotiateRequest(ev *Event) {}
