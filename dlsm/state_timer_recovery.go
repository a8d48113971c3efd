package dlsm

import "github.com/vk7xyz/ax25d/pkg/frame"

// dispatchTimerRecovery implements State 4: an RR/RNR poll has gone
// unanswered and we're retrying, counting attempts against N2 before
// giving up on the link.
func (c *Core) dispatchTimerRecovery(ev *Event) {
	conn := ev.Conn
	switch ev.Kind {
	case EvCtrlError:
		c.dlError(ev, ErrL)
		c.resetLinkAwaitingConnection(ev)
	case EvInfoNotPermitted:
		c.dlError(ev, ErrM)
		c.resetLinkAwaitingConnection(ev)
	case EvIncorrectLength:
		c.dlError(ev, ErrN)
		c.resetLinkAwaitingConnection(ev)
	case EvDLConnect:
		c.resetLinkAwaitingConnection(ev)

	case EvDLDisconnect:
		conn.discardSendQueue(c.buffers)
		conn.RC = 0
		c.sendDISC(ev, true)
		conn.timerStopT3()
		conn.timerStartT1(c.now())
		c.setState(conn, StateAwaitingRelease)

	case EvDLData:
		c.pushI(conn, ev.Info)

	case EvDrainSendq:
		c.drainOneTimerRecovery(ev)

	case EvTimerExpireT1:
		if conn.RC != conn.N2 {
			conn.RC++
			c.transmitInquiry(ev)
			return
		}
		switch {
		case conn.AckState == conn.SndState && conn.PeerBusy:
			c.dlError(ev, ErrT)
		case conn.AckState == conn.SndState:
			c.dlError(ev, ErrU)
		default:
			c.dlError(ev, ErrI)
		}
		conn.discardSendQueue(c.buffers)
		c.sendDM(ev, ev.F)
		conn.timerStopT1(c.now())
		conn.timerStopT3()
		c.setState(conn, StateDisconnected)

	case EvSABM, EvSABME:
		if ev.Kind == EvSABM {
			conn.ApplyVersion2_0()
		} else {
			conn.ApplyVersion2_2()
		}
		ev.F = ev.P
		c.sendUA(ev, false)
		conn.clearExceptionConditions()
		c.dlError(ev, ErrF)
		if conn.SndState != conn.AckState {
			conn.discardSendQueue(c.buffers)
			c.dlConnectIndication(ev)
		}
		conn.timerStopT1(c.now())
		conn.timerStartT3(c.now())
		conn.SndState, conn.AckState, conn.RcvState = 0, 0, 0
		c.setState(conn, StateConnected)

	case EvRR, EvRNR:
		conn.PeerBusy = ev.Kind == EvRNR
		if ev.Type == frame.Res && ev.F {
			conn.timerStopT1(c.now())
			c.selectT1(ev)
			if seqnoInRangeIncl(conn.AckState, ev.NR, conn.SndState, conn.Modulo) {
				conn.AckState = ev.NR
				if conn.SndState == conn.RcvState {
					conn.timerStartT3(c.now())
					c.setState(conn, StateConnected)
				} else {
					c.invokeRetransmission(ev)
					c.setState(conn, StateTimerRecovery)
				}
			} else {
				c.nrErrorRecovery(ev)
				c.setState(conn, StateAwaitingConnection)
			}
			return
		}
		if ev.Type == frame.Cmd && ev.P {
			c.enquiryResponse(ev, true)
		}
		if seqnoInRangeIncl(conn.AckState, ev.NR, conn.SndState, conn.Modulo) {
			conn.AckState = ev.NR
		} else {
			c.nrErrorRecovery(ev)
			c.setState(conn, StateAwaitingConnection)
		}

	case EvDISC:
		conn.discardSendQueue(c.buffers)
		ev.F = ev.P
		c.sendUA(ev, false)
		c.dlDisconnectIndication(ev)
		conn.timerStopT1(c.now())
		conn.timerStopT3()
		c.setState(conn, StateDisconnected)

	case EvUA:
		c.dlError(ev, ErrC)
		c.establishDataLink(ev)
		conn.L3Initiated = false
		c.setState(conn, StateAwaitingConnection)

	case EvTimerExpireT2:
		if conn.AckPending {
			conn.AckPending = false
			c.enquiryResponse(ev, false)
		}
		conn.timerStopT2()

	case EvUI:
		c.uiCheck(ev)
		if ev.P {
			c.enquiryResponse(ev, ev.F)
		}

	case EvTEST:
		if ev.Type == frame.Cmd {
			c.sendTEST(ev, frame.Res, ev.F)
		}

	case EvDLUnitData:
		c.sendUI(ev, frame.Cmd)

	case EvREJ:
		conn.PeerBusy = false
		if ev.Type == frame.Res && ev.F {
			conn.timerStopT1(c.now())
			c.selectT1(ev)
		} else if ev.Type == frame.Cmd && ev.P {
			c.enquiryResponse(ev, ev.F)
		}
		if !seqnoInRangeExcl(conn.AckState, ev.NR, conn.SndState, conn.Modulo) {
			c.nrErrorRecovery(ev)
			c.setState(conn, StateAwaitingConnection)
			return
		}
		if conn.SndState != conn.AckState {
			c.invokeRetransmission(ev)
			c.setState(conn, StateTimerRecovery)
			return
		}
		if ev.Type == frame.Res && ev.F {
			conn.timerStartT3(c.now())
			c.setState(conn, StateConnected)
			return
		}
		c.setState(conn, StateTimerRecovery)

	case EvDM:
		c.dlError(ev, ErrE)
		c.dlDisconnectIndication(ev)
		conn.discardSendQueue(c.buffers)
		conn.timerStopT1(c.now())
		conn.timerStopT3()
		c.setState(conn, StateDisconnected)

	case EvDLFlowOff:
		if !conn.SelfBusy {
			conn.SelfBusy = true
			c.sendRNR(ev, frame.Cmd, false)
			conn.AckPending = false
			conn.timerStopT2()
		}

	case EvDLFlowOn:
		if conn.SelfBusy {
			conn.SelfBusy = false
			c.sendRR(ev, frame.Cmd, true)
			conn.AckPending = false
			conn.timerStopT2()
			if !conn.timerRunningT1() {
				conn.timerStopT3()
				conn.timerStartT1(c.now())
			}
		}

	case EvFRMR:
		c.dlError(ev, ErrK)
		c.establishDataLink(ev)
		conn.L3Initiated = false
		c.setState(conn, StateAwaitingConnection)

	case EvSREJ:
		conn.PeerBusy = false
		if ev.Type == frame.Res {
			conn.timerStopT1(c.now())
			c.selectT1(ev)
		}
		if !seqnoInRangeExcl(conn.AckState, ev.NR, conn.SndState, conn.Modulo) {
			c.nrErrorRecovery(ev)
			c.setState(conn, StateAwaitingConnection)
			return
		}
		if (ev.Type == frame.Res && ev.F) || (ev.Type == frame.Cmd && ev.P) {
			conn.AckState = ev.NR
		}
		if conn.AckState != conn.SndState {
			c.pushOldIFrameNrOnQueue(ev)
			return
		}
		if ev.Type == frame.Res {
			conn.timerStartT3(c.now())
			c.setState(conn, StateConnected)
		}

	case EvI:
		c.handleIFrameTimerRecovery(ev)
	}
}

func (c *Core) resetLinkAwaitingConnection(ev *Event) {
	conn := ev.Conn
	conn.discardSendQueue(c.buffers)
	c.establishDataLink(ev)
	conn.L3Initiated = true
	c.setState(conn, StateAwaitingConnection)
}

func (c *Core) drainOneTimerRecovery(ev *Event) {
	conn := ev.Conn
	if conn.PeerBusy || conn.SndState == (conn.AckState+uint8(conn.WindowSize))%conn.Modulo {
		return
	}
	ns := conn.SndState
	nr := conn.RcvState
	buf := conn.popSendQueue()
	if buf == nil {
		return
	}
	iev := &Event{Kind: ev.Kind, Port: ev.Port, Conn: conn, Addresses: ev.Addresses, NR: nr, P: false}
	c.constructI(iev, buf.Bytes(), nr)
	c.buffers.Free(buf)

	conn.AckPending = false
	conn.timerStopT2()
	conn.SndState = (ns + 1) % conn.Modulo

	if !conn.timerRunningT1() {
		conn.timerStopT3()
		conn.timerStartT1(c.now())
	}
}

// handleIFrameTimerRecovery mirrors handleIFrameConnected but uses the
// exclusive N(R) range check and unconditionally accepts N(R), and does not
// retain an SREJ-queue copy before requesting a selective repeat: a second
// gap inside Timer-Recovery escalates straight to REJ.
func (c *Core) handleIFrameTimerRecovery(ev *Event) {
	conn := ev.Conn
	if ev.Type != frame.Cmd {
		c.dlError(ev, ErrS)
		return
	}
	if len(ev.Info) >= conn.N1 {
		c.dlError(ev, ErrO)
		c.establishDataLink(ev)
		conn.L3Initiated = false
		c.setState(conn, StateAwaitingConnection)
		return
	}
	if !seqnoInRangeExcl(conn.AckState, ev.NR, conn.SndState, conn.Modulo) {
		c.nrErrorRecovery(ev)
		c.setState(conn, StateAwaitingConnection)
		return
	}
	conn.AckState = ev.NR

	if conn.SelfBusy {
		if ev.P {
			ev.F = true
			ev.NR = conn.RcvState
			c.sendRNR(ev, frame.Res, ev.F)
			conn.AckPending = false
			conn.timerStopT2()
		}
		return
	}

	if ev.NS == conn.RcvState {
		conn.RcvState = (conn.RcvState + 1) % conn.Modulo
		conn.RejException = false
		if conn.SrejException > 0 {
			conn.SrejException--
		}
		c.dlDataIndication(ev, ev.Info)
		for conn.SrejQueue[conn.RcvState] != nil {
			buf := conn.SrejQueue[conn.RcvState]
			conn.SrejQueue[conn.RcvState] = nil
			c.dlDataIndication(ev, buf.Bytes())
			c.buffers.Free(buf)
			conn.RcvState = (conn.RcvState + 1) % conn.Modulo
		}
		if ev.P {
			ev.F = true
			c.sendRR(ev, frame.Res, ev.F)
			conn.AckPending = false
			conn.timerStopT2()
		} else if !conn.AckPending {
			conn.timerStartT2(c.now(), conn.T2)
			conn.AckPending = true
		}
		return
	}

	if ev.NS == (conn.RcvState+1)%conn.Modulo {
		ev.NR = conn.RcvState
		ev.F = true
		conn.SrejException++
		c.sendSREJ(ev, frame.Res)
		conn.AckPending = false
		conn.timerStopT2()
		return
	}

	conn.RejException = true
	ev.F = ev.P
	c.sendREJ(ev, frame.Res)
	conn.AckPending = false
	conn.timerStopT2()
}
