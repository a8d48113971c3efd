package dlsm

import (
	"github.com/vk7xyz/ax25d/pkg/frame"
)

// --- sequence-number range predicates ---

// seqnoInRangeIncl reports whether nr lies in [va, vs] modulo the
// connection's sequence space, used when checking N(R) acknowledgements.
func seqnoInRangeIncl(va, nr, vs, modulo uint8) bool {
	if va <= vs {
		return nr >= va && nr <= vs
	}
	return nr >= va || nr <= vs
}

// seqnoInRangeExcl reports whether nr lies in (va, vs] modulo the
// connection's sequence space, used by REJ/SREJ N(R) validation.
func seqnoInRangeExcl(va, nr, vs, modulo uint8) bool {
	if va == vs {
		return nr == vs
	}
	return seqnoInRangeIncl((va+1)%modulo, nr, vs, modulo)
}

// --- reply addressing ---

func (c *Core) replyCtx(ev *Event) frame.ReplyContext {
	conn := ev.Conn
	var modulo uint8 = 8
	if conn != nil {
		modulo = conn.Modulo
	}
	if len(ev.Addresses) > 0 {
		return frame.ReplyContext{Addresses: ev.Addresses, Modulo: modulo}
	}
	return frame.ReplyContext{Local: conn.Local, Remote: conn.Remote, Modulo: modulo}
}

// --- frame-sending helpers, one per outbound frame type ---

func (c *Core) sendDM(ev *Event, f bool) {
	ctx := c.replyCtx(ev)
	wire, err := frame.BuildUFrame(ctx, frame.KindDM, frame.Res, f, nil)
	if err != nil {
		return
	}
	c.transmit(ev.Port, wire)
}

func (c *Core) sendUA(ev *Event, f bool) {
	ctx := c.replyCtx(ev)
	wire, err := frame.BuildUFrame(ctx, frame.KindUA, frame.Res, f, nil)
	if err != nil {
		return
	}
	c.transmit(ev.Port, wire)
}

func (c *Core) sendSABM(ev *Event, p bool) {
	ctx := c.replyCtx(ev)
	wire, err := frame.BuildUFrame(ctx, frame.KindSABM, frame.Cmd, p, nil)
	if err != nil {
		return
	}
	c.transmit(ev.Port, wire)
}

func (c *Core) sendSABME(ev *Event, p bool) {
	ctx := c.replyCtx(ev)
	wire, err := frame.BuildUFrame(ctx, frame.KindSABME, frame.Cmd, p, nil)
	if err != nil {
		return
	}
	c.transmit(ev.Port, wire)
}

func (c *Core) sendDISC(ev *Event, p bool) {
	ctx := c.replyCtx(ev)
	wire, err := frame.BuildUFrame(ctx, frame.KindDISC, frame.Cmd, p, nil)
	if err != nil {
		return
	}
	c.transmit(ev.Port, wire)
}

func (c *Core) sendUI(ev *Event, typ frame.CmdRes) {
	ctx := c.replyCtx(ev)
	wire, err := frame.BuildUFrame(ctx, frame.KindUI, typ, ev.P, ev.Info)
	if err != nil {
		return
	}
	c.transmit(ev.Port, wire)
}

func (c *Core) sendTEST(ev *Event, typ frame.CmdRes, f bool) {
	ctx := c.replyCtx(ev)
	wire, err := frame.BuildUFrame(ctx, frame.KindTEST, typ, f, ev.Info)
	if err != nil {
		return
	}
	c.transmit(ev.Port, wire)
}

func (c *Core) sendRR(ev *Event, typ frame.CmdRes, pf bool) {
	ctx := c.replyCtx(ev)
	wire, err := frame.BuildSFrame(ctx, frame.KindRR, typ, pf, ev.NR)
	if err != nil {
		return
	}
	c.transmit(ev.Port, wire)
}

func (c *Core) sendRNR(ev *Event, typ frame.CmdRes, pf bool) {
	ctx := c.replyCtx(ev)
	wire, err := frame.BuildSFrame(ctx, frame.KindRNR, typ, pf, ev.NR)
	if err != nil {
		return
	}
	c.transmit(ev.Port, wire)
}

func (c *Core) sendREJ(ev *Event, typ frame.CmdRes) {
	ctx := c.replyCtx(ev)
	wire, err := frame.BuildSFrame(ctx, frame.KindREJ, typ, ev.F, ev.NR)
	if err != nil {
		return
	}
	c.transmit(ev.Port, wire)
}

func (c *Core) sendSREJ(ev *Event, typ frame.CmdRes) {
	ctx := c.replyCtx(ev)
	wire, err := frame.BuildSFrame(ctx, frame.KindSREJ, typ, ev.F, ev.NR)
	if err != nil {
		return
	}
	c.transmit(ev.Port, wire)
}

// constructI builds and transmits an I frame carrying info with the given
// N(R), using the connection's current N(S), and stashes a copy in
// sent_buffer[N(S)] for possible retransmission.
func (c *Core) constructI(ev *Event, info []byte, nr uint8) {
	conn := ev.Conn
	ctx := c.replyCtx(ev)
	ns := conn.SndState
	wire := frame.BuildIFrame(ctx, frame.Cmd, ev.P, nr, ns, frame.PIDNoL3, info)

	pkt, err := c.packets.Allocate()
	if err != nil {
		c.metrics.NoPackets.Inc()
		return
	}
	if err := pkt.Push(wire); err != nil {
		c.packets.Free(pkt)
		return
	}
	pkt.Port = ev.Port

	if conn.SentBuffer[ns] != nil {
		c.packets.Free(conn.SentBuffer[ns])
	}
	conn.SentBuffer[ns] = pkt

	c.transmit(ev.Port, wire)
}

// pushOldIFrameNrOnQueue re-transmits the previously-sent frame stored at
// sent_buffer[N(R)], used by invokeRetransmission and SREJ handling.
func (c *Core) pushOldIFrameNrOnQueue(ev *Event) {
	conn := ev.Conn
	pkt := conn.SentBuffer[ev.NR]
	if pkt == nil {
		return
	}
	c.transmit(ev.Port, pkt.Bytes())
}

// --- shared sub-procedures ---

func (c *Core) dlError(ev *Event, code ErrorCode) {
	if ev.Conn == nil || ev.Conn.Socket == nil || ev.Conn.Socket.OnError == nil {
		return
	}
	c.metrics.ErrorsByCode.WithLabelValues(string(rune(code))).Inc()
	ev.Conn.Socket.OnError(ev.Conn, DLError{Code: code})
}

// stripPID drops the leading Layer-3 protocol id byte every I/UI frame's
// info field carries on the wire, handing applications back the payload
// they gave send()/sendUnitData() without it.
func stripPID(info []byte) []byte {
	if len(info) == 0 {
		return info
	}
	return info[1:]
}

func (c *Core) dlDataIndication(ev *Event, info []byte) {
	if ev.Conn == nil || ev.Conn.Socket == nil || ev.Conn.Socket.OnData == nil {
		return
	}
	ev.Conn.Socket.OnData(ev.Conn, stripPID(info))
}

func (c *Core) dlUnitDataIndication(ev *Event) {
	if ev.Socket == nil || ev.Socket.OnUnitData == nil {
		return
	}
	src := ev.Addresses[AddrSrc]
	ev.Socket.OnUnitData(ev.Port, src, stripPID(ev.Info))
}

func (c *Core) dlConnectIndication(ev *Event) {
	if ev.Conn == nil || ev.Conn.Socket == nil || ev.Conn.Socket.OnConnect == nil {
		return
	}
	ev.Conn.Socket.OnConnect(ev.Conn)
}

func (c *Core) dlDisconnectIndication(ev *Event) {
	if ev.Conn == nil || ev.Conn.Socket == nil || ev.Conn.Socket.OnDisconnect == nil {
		return
	}
	ev.Conn.Socket.OnDisconnect(ev.Conn, nil)
}

// setState transitions conn to s, releasing it back to the connection table
// when it returns to StateDisconnected -- the single chokepoint a
// connection returns through, mirroring the original's set_state.
func (c *Core) setState(conn *Connection, s State) {
	conn.State = s
	if s == StateDisconnected {
		if sock := c.sockets.FindConnected(conn); sock != nil {
			c.sockets.Free(sock)
		}
		conn.discardSendQueue(c.buffers)
		c.conns.release(conn)
	}
}

func (c *Core) establishDataLink(ev *Event) {
	conn := ev.Conn
	conn.clearExceptionConditions()
	conn.RC = 0
	ev.P = true
	if conn.Modulo == 128 {
		conn.ApplyVersion2_2()
		c.sendSABME(ev, true)
	} else {
		conn.ApplyVersion2_0()
		c.sendSABM(ev, true)
	}
	conn.timerStopT3()
	conn.timerStartT1(c.now())
}

func (c *Core) nrErrorRecovery(ev *Event) {
	c.dlError(ev, ErrJ)
	c.establishDataLink(ev)
	ev.Conn.L3Initiated = false
}

// transmitInquiry polls the peer with RR (or RNR, if we're self-busy).
func (c *Core) transmitInquiry(ev *Event) {
	conn := ev.Conn
	poll := &Event{Kind: ev.Kind, Port: ev.Port, Conn: conn, NR: conn.RcvState, P: true, F: ev.F}
	if conn.SelfBusy {
		c.sendRNR(poll, frame.Cmd, true)
	} else {
		c.sendRR(poll, frame.Cmd, true)
	}
	conn.AckPending = false
	conn.timerStartT1(c.now())
	conn.timerStopT2()
}

func (c *Core) enquiryResponse(ev *Event, f bool) {
	conn := ev.Conn
	resp := &Event{Kind: ev.Kind, Port: ev.Port, Conn: conn, NR: conn.RcvState}
	if conn.SelfBusy {
		c.sendRNR(resp, frame.Res, f)
	} else {
		c.sendRR(resp, frame.Res, f)
	}
	conn.AckPending = false
	conn.timerStopT2()
}

func (c *Core) invokeRetransmission(ev *Event) {
	conn := ev.Conn
	x := conn.SndState
	conn.SndState = ev.NR
	for {
		c.pushOldIFrameNrOnQueue(&Event{Kind: ev.Kind, Port: ev.Port, Conn: conn, NR: conn.SndState})
		conn.SndState = (conn.SndState + 1) % conn.Modulo
		if conn.SndState == x {
			break
		}
	}
}

// selectT1 re-estimates the retransmission timer after either a successful
// round-trip sample (rc==0) or a timeout (rc>0).
func (c *Core) selectT1(ev *Event) {
	conn := ev.Conn
	if conn.RC == 0 {
		sample := conn.T1V.Sub(conn.T1Remaining)
		conn.SRTT = conn.SRTT.Mul(7).Add(sample).Div(8)
		conn.T1V = conn.SRTT.Mul(2)
		return
	}
	if conn.timerExpiredT1(c.now()) {
		conn.T1V = conn.SRTT.Mul(1 << uint(conn.RC+1))
	}
}

func (c *Core) checkIFrameAcked(ev *Event) {
	conn := ev.Conn
	switch {
	case conn.PeerBusy:
		conn.AckState = ev.NR
		if !conn.timerRunningT1() {
			conn.timerStartT1(c.now())
		}
	case ev.NR == conn.SndState:
		conn.AckState = ev.NR
		conn.timerStopT1(c.now())
		conn.timerStopT2()
		conn.timerStopT3()
		c.selectT1(ev)
	case ev.NR != conn.AckState:
		conn.AckState = ev.NR
		conn.timerStartT1(c.now())
	}
}

func (c *Core) checkNeedForResponse(ev *Event) {
	if ev.Type == frame.Cmd {
		c.enquiryResponse(ev, true)
	} else if ev.Type == frame.Res && ev.F {
		c.dlError(ev, ErrA)
	}
}

// uiCheck validates an inbound UI frame's length and direction before it is
// handed to the application.
func (c *Core) uiCheck(ev *Event) {
	if ev.Type != frame.Cmd {
		c.dlError(ev, ErrQ)
		return
	}
	limit := defaultN1
	if ev.Conn != nil {
		limit = ev.Conn.N1
	}
	if len(ev.Info) < limit {
		c.dlUnitDataIndication(ev)
		return
	}
	c.dlError(ev, ErrN)
}

// pushI allocates a buffer for info and appends it to conn's send queue.
func (c *Core) pushI(conn *Connection, info []byte) {
	buf, err := c.buffers.Allocate(info)
	if err != nil {
		c.metrics.NoBuffers.Inc()
		return
	}
	conn.pushSendQueue(buf)
}
