package dlsm

import "github.com/vk7xyz/ax25d/pkg/frame"

// dispatchAwaitingRelease implements State 2: we've sent DISC and are
// waiting for UA or DM to confirm the release.
func (c *Core) dispatchAwaitingRelease(ev *Event) {
	conn := ev.Conn
	switch ev.Kind {
	case EvCtrlError:
		c.dlError(ev, ErrL)
	case EvInfoNotPermitted:
		c.dlError(ev, ErrM)
	case EvIncorrectLength:
		c.dlError(ev, ErrN)

	case EvDLDisconnect:
		c.sendDM(ev, false)
		conn.timerStopT1(c.now())
		conn.timerStopT2()
		c.setState(conn, StateDisconnected)

	case EvSABM, EvSABME:
		ev.F = ev.P
		c.sendDM(ev, ev.F)

	case EvDISC:
		ev.F = ev.P
		c.sendUA(ev, ev.F)

	case EvDLUnitData:
		c.sendUI(ev, frame.Cmd)

	case EvI, EvRR, EvRNR, EvREJ, EvSREJ:
		if ev.P {
			c.sendDM(ev, true)
		}

	case EvUI:
		c.uiCheck(ev)
		if ev.P {
			c.sendDM(ev, true)
		}

	case EvTEST:
		if ev.Type == frame.Cmd {
			c.sendTEST(ev, frame.Res, ev.F)
		}

	case EvTimerExpireT3, EvDLFlowOn, EvDLFlowOff, EvUnknownFrame, EvDLConnect,
		EvDLData, EvFRMR, EvLMData, EvTimerExpireT2:
		// Ignored in this state.

	case EvUA:
		if ev.F {
			c.dlDisconnectIndication(ev)
			conn.timerStopT1(c.now())
			c.setState(conn, StateDisconnected)
		} else {
			c.dlError(ev, ErrD)
		}

	case EvDM:
		if ev.F {
			c.dlDisconnectIndication(ev)
			conn.timerStopT1(c.now())
			c.setState(conn, StateDisconnected)
		}

	case EvTimerExpireT1:
		if conn.RC == conn.N2 {
			c.dlError(ev, ErrH)
			c.dlDisconnectIndication(ev)
			c.setState(conn, StateDisconnected)
		} else {
			conn.RC++
			c.sendDISC(ev, true)
			c.selectT1(ev)
			conn.timerStartT1(c.now())
		}
	}
}
