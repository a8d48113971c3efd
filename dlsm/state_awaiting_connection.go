package dlsm

import "github.com/vk7xyz/ax25d/pkg/frame"

// dispatchAwaitingConnection implements State 1: an outbound SABM/SABME has
// been sent and we're waiting for UA, DM, or a timeout.
func (c *Core) dispatchAwaitingConnection(ev *Event) {
	conn := ev.Conn
	switch ev.Kind {
	case EvCtrlError:
		c.dlError(ev, ErrL)
	case EvInfoNotPermitted:
		c.dlError(ev, ErrM)
	case EvIncorrectLength:
		c.dlError(ev, ErrN)

	case EvDLConnect:
		conn.discardSendQueue(c.buffers)
		conn.L3Initiated = true

	case EvDLDisconnect:
		// TODO: requeue the disconnect request once it is no longer dropped.

	case EvSABM:
		ev.F = ev.P
		c.sendUA(ev, false)

	case EvSABME:
		ev.F = ev.P
		c.sendDM(ev, false)
		c.setState(conn, StateAwaitingConnect22)

	case EvDISC:
		ev.F = ev.P
		c.sendDM(ev, ev.F)

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

	case EvUI:
		c.uiCheck(ev)
		if ev.P {
			c.sendDM(ev, true)
		}

	case EvTEST:
		if ev.Type == frame.Cmd {
			c.sendTEST(ev, frame.Res, ev.F)
		}

	case EvDLUnitData:
		c.sendUI(ev, frame.Cmd)

	case EvTimerExpireT3, EvDLFlowOff, EvDLFlowOn, EvUnknownFrame, EvI, EvRR, EvRNR,
		EvREJ, EvSREJ, EvFRMR, EvLMData, EvTimerExpireT2:
		// Ignored in this state.

	case EvDM:
		if ev.F {
			conn.discardSendQueue(c.buffers)
			c.dlDisconnectIndication(ev)
			conn.timerStopT1(c.now())
			conn.timerStopT3()
			c.setState(conn, StateDisconnected)
		} else {
			c.setState(conn, StateAwaitingConnection)
		}

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
		conn.timerStopT2()
		conn.timerStartT3(c.now())
		conn.SndState, conn.AckState, conn.RcvState = 0, 0, 0
		c.selectT1(ev)
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
			c.sendSABM(ev, true)
			c.selectT1(ev)
			conn.timerStartT1(c.now())
		}
	}
}
