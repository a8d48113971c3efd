package dlsm

import "github.com/vk7xyz/ax25d/pkg/frame"

// dispatchConnected implements State 3: the data link is up and carrying
// traffic. This is the busiest state: it runs the send-queue drain, the
// I-frame receive window (including the SREJ-queue reordering path), and
// the RR/RNR/REJ/SREJ acknowledgement machinery.
func (c *Core) dispatchConnected(ev *Event) {
	conn := ev.Conn
	switch ev.Kind {
	case EvCtrlError:
		c.dlError(ev, ErrL)
		c.resetLinkAfterError(ev)
	case EvInfoNotPermitted:
		c.dlError(ev, ErrM)
		c.resetLinkAfterError(ev)
	case EvIncorrectLength:
		c.dlError(ev, ErrN)
		c.resetLinkAfterError(ev)

	case EvDLConnect:
		conn.discardSendQueue(c.buffers)
		c.establishDataLink(ev)
		conn.L3Initiated = true
		c.setState(conn, StateAwaitingConnection)

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
		c.drainOneConnected(ev)

	case EvTimerExpireT1:
		conn.RC = 1
		c.transmitInquiry(ev)
		c.setState(conn, StateTimerRecovery)

	case EvTimerExpireT3:
		conn.RC = 0
		c.transmitInquiry(ev)
		c.setState(conn, StateTimerRecovery)

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

	case EvDISC:
		conn.discardSendQueue(c.buffers)
		ev.F = ev.P
		c.sendUA(ev, false)
		c.dlDisconnectIndication(ev)
		conn.timerStopT1(c.now())
		conn.timerStopT3()
		c.setState(conn, StateDisconnected)

	case EvUA, EvFRMR:
		c.dlError(ev, ErrK)
		c.establishDataLink(ev)
		conn.L3Initiated = false
		if conn.Version == Version2_2 {
			c.setState(conn, StateAwaitingConnect22)
		} else {
			c.setState(conn, StateAwaitingConnection)
		}

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

	case EvDLUnitData:
		c.sendUI(ev, frame.Cmd)

	case EvUI:
		c.uiCheck(ev)
		if ev.P {
			c.enquiryResponse(ev, true)
		}

	case EvTEST:
		if ev.Type == frame.Cmd {
			c.sendTEST(ev, frame.Res, ev.F)
		}

	case EvRR:
		conn.PeerBusy = false
		c.checkNeedForResponse(ev)
		if seqnoInRangeIncl(conn.AckState, ev.NR, conn.SndState, conn.Modulo) {
			c.checkIFrameAcked(ev)
		} else {
			c.nrErrorRecovery(ev)
			if conn.Version == Version2_2 {
				c.setState(conn, StateAwaitingConnect22)
			} else {
				c.setState(conn, StateAwaitingConnection)
			}
		}

	case EvRNR:
		conn.PeerBusy = true
		c.checkNeedForResponse(ev)
		if seqnoInRangeIncl(conn.AckState, ev.NR, conn.SndState, conn.Modulo) {
			c.checkIFrameAcked(ev)
		} else {
			c.nrErrorRecovery(ev)
			c.setState(conn, StateAwaitingConnection)
		}

	case EvTimerExpireT2:
		if conn.AckPending {
			conn.AckPending = false
			conn.timerStopT2()
			c.enquiryResponse(ev, false)
		}
		conn.timerStopT2()

	case EvSREJ:
		conn.PeerBusy = false
		if seqnoInRangeExcl(conn.AckState, ev.NR, conn.SndState, conn.Modulo) {
			if (ev.Type == frame.Cmd && ev.P) || (ev.Type != frame.Cmd && ev.F) {
				conn.AckState = ev.NR
			}
			conn.timerStopT1(c.now())
			conn.timerStartT3(c.now())
			c.selectT1(ev)
			c.pushOldIFrameNrOnQueue(ev)
		} else {
			c.nrErrorRecovery(ev)
			c.setState(conn, StateAwaitingConnection)
		}

	case EvREJ:
		conn.PeerBusy = false
		c.checkNeedForResponse(ev)
		if seqnoInRangeExcl(conn.AckState, ev.NR, conn.SndState, conn.Modulo) {
			conn.AckState = ev.NR
			conn.timerStopT1(c.now())
			conn.timerStopT3()
			c.selectT1(ev)
			c.invokeRetransmission(ev)
		} else {
			c.nrErrorRecovery(ev)
			c.setState(conn, StateAwaitingConnection)
		}

	case EvI:
		c.handleIFrameConnected(ev)
	}
}

func (c *Core) resetLinkAfterError(ev *Event) {
	conn := ev.Conn
	conn.discardSendQueue(c.buffers)
	c.establishDataLink(ev)
	conn.L3Initiated = true
	if conn.Version == Version2_2 {
		c.setState(conn, StateAwaitingConnect22)
	} else {
		c.setState(conn, StateAwaitingConnection)
	}
}

// drainOneConnected dequeues and transmits a single I frame, subject to the
// peer-busy and window-full backpressure conditions.
func (c *Core) drainOneConnected(ev *Event) {
	conn := ev.Conn
	if conn.PeerBusy {
		return
	}
	if conn.SndState == (conn.AckState+uint8(conn.WindowSize))%conn.Modulo {
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

	conn.SndState = (ns + 1) % conn.Modulo
	conn.AckPending = false
	conn.timerStopT2()
	if !conn.timerRunningT1() {
		conn.timerStopT3()
		conn.timerStartT1(c.now())
	}
}

// handleIFrameConnected implements Connected's EV_I branch. Timer-Recovery
// has its own variant, handleIFrameTimerRecovery.
func (c *Core) handleIFrameConnected(ev *Event) {
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
	if !seqnoInRangeIncl(conn.AckState, ev.NR, conn.SndState, conn.Modulo) {
		c.nrErrorRecovery(ev)
		c.setState(conn, StateAwaitingConnection)
		return
	}

	c.checkIFrameAcked(ev)

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

	if conn.RejException {
		if ev.P {
			ev.F = true
			c.sendRR(ev, frame.Res, ev.F)
			conn.AckPending = false
			conn.timerStopT2()
		}
		return
	}

	if !conn.SrejEnabled {
		conn.RejException = true
		ev.F = ev.P
		c.sendREJ(ev, frame.Res)
		conn.AckPending = false
		conn.timerStopT2()
		return
	}

	buf, err := c.buffers.Allocate(ev.Info)
	if err != nil {
		c.metrics.NoBuffers.Inc()
		return
	}
	conn.SrejQueue[ev.NS] = buf

	if conn.SrejException > 0 {
		ev.NR = ev.NS
		ev.F = false
		conn.SrejException++
		c.sendSREJ(ev, frame.Res)
		conn.AckPending = false
		conn.timerStopT2()
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
