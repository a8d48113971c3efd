// Package dlsm implements the AX.25 v2.2 data-link state machine: the
// six-state per-connection machine (Disconnected, Awaiting-Connection,
// Awaiting-Release, Connected, Timer-Recovery, Awaiting-Connect-2.2), its
// shared sub-procedures and timers, the connection and socket tables, and
// the public socket-layer API (Listen, Connect, Send, Disconnect) that sits
// above it. Connections and Sockets hold a cyclic back-reference to each
// other, so both tables live in this one package rather than being split
// across smaller leaf packages.
package dlsm

import (
	"github.com/charmbracelet/log"

	"github.com/vk7xyz/ax25d/internal/metrics"
	"github.com/vk7xyz/ax25d/pkg/clock"
	"github.com/vk7xyz/ax25d/pkg/kiss"
	"github.com/vk7xyz/ax25d/pkg/packet"
	"github.com/vk7xyz/ax25d/pkg/ssid"
)

// Platform is the host environment a Core is wired to: a source of time
// and a way to put bytes on the wire. Production code backs this with a
// serial port; tests back it with an in-memory buffer.
type Platform interface {
	Now() clock.Instant
	WriteSerial(serialIndex uint8, data []byte) error
}

// Config bounds the fixed-capacity resources a Core allocates up front.
type Config struct {
	MaxConnections int
	MaxSockets     int
	MaxPackets     int
	MaxBuffers     int
}

// DefaultConfig mirrors the original implementation's compiled-in limits.
func DefaultConfig() Config {
	return Config{
		MaxConnections: 16,
		MaxSockets:     16,
		MaxPackets:     20,
		MaxBuffers:     20,
	}
}

// Core is the node's single data-link engine: one packet pool, one buffer
// pool, one connection table, one socket table, and the KISS encoder for
// egress framing. It is always constructed explicitly and threaded through
// the call graph; nothing here is a package-level global.
type Core struct {
	platform Platform
	log      *log.Logger
	metrics  *metrics.Metrics

	packets *packet.Pool
	buffers *packet.BufferPool
	conns   *Table
	sockets *SocketTable

	encoder kiss.Encoder
}

// New builds a Core with its resource pools sized per cfg.
func New(cfg Config, platform Platform, logger *log.Logger) *Core {
	c := &Core{
		platform: platform,
		log:      logger,
		packets:  packet.NewPool(cfg.MaxPackets),
		buffers:  packet.NewBufferPool(cfg.MaxBuffers),
		conns:    NewTable(cfg.MaxConnections),
		sockets:  NewSocketTable(cfg.MaxSockets),
	}
	c.metrics = metrics.New(metrics.Gauges{
		PacketPoolInUse:    func() float64 { return float64(c.packets.InUse()) },
		BufferPoolInUse:    func() float64 { return float64(c.buffers.InUse()) },
		ConnectionTableLen: func() float64 { return float64(c.conns.Active()) },
	})
	return c
}

// Metrics exposes the Core's Prometheus collectors for registration.
func (c *Core) Metrics() *metrics.Metrics { return c.metrics }

func (c *Core) now() clock.Instant { return c.platform.Now() }

// transmit KISS-encodes wire and writes it to the port's serial link.
func (c *Core) transmit(port uint8, wire []byte) {
	unit := kiss.UnitOf(port)
	serialIndex := kiss.SerialIndexOf(port)
	framed := c.encoder.Encode(unit, wire)
	if err := c.platform.WriteSerial(serialIndex, framed); err != nil {
		c.log.Error("serial write failed", "port", port, "err", err)
		return
	}
	c.metrics.KISSFramesSent.Inc()
	c.metrics.KISSBytesSent.Add(float64(len(wire)))
}

// Listen registers a listening socket bound to local on port, notified via
// cb whenever a remote station establishes a new connection to it.
func (c *Core) Listen(port uint8, local ssid.Address, cb Callbacks) (*Socket, error) {
	s := c.sockets.Allocate(SocketListen, local, port)
	if s == nil {
		c.metrics.NoSockets.Inc()
		return nil, ErrNoSockets
	}
	s.Callbacks = cb
	return s, nil
}

// Connect initiates an outbound connection from local to remote on port.
// The connection is reported established via cb.OnConnect once the peer's
// UA arrives.
func (c *Core) Connect(port uint8, local, remote ssid.Address, cb Callbacks) (*Connection, error) {
	conn := c.conns.FindOrCreate(port, local, remote)
	if conn == nil {
		c.metrics.NoConnections.Inc()
		return nil, ErrNoConnections
	}
	sock := c.sockets.Allocate(SocketConnected, local, port)
	if sock == nil {
		c.metrics.NoSockets.Inc()
		return nil, ErrNoSockets
	}
	sock.Conn = conn
	sock.Callbacks = cb
	conn.Socket = sock

	ev := &Event{
		Kind:      EvDLConnect,
		Port:      port,
		Addresses: []ssid.Address{local, remote},
		Conn:      conn,
		Socket:    sock,
	}
	c.dispatch(ev)
	return conn, nil
}

// Send queues info for transmission as I frames on conn, draining as much
// of the queue as the current window allows.
func (c *Core) Send(conn *Connection, info []byte) {
	c.dispatch(&Event{Kind: EvDLData, Port: conn.Port, Conn: conn, Info: info})
	c.drainSendQueue(conn)
}

// Disconnect begins an orderly release of conn.
func (c *Core) Disconnect(conn *Connection) {
	c.dispatch(&Event{Kind: EvDLDisconnect, Port: conn.Port, Conn: conn})
}

// drainSendQueue repeatedly issues DRAIN_SENDQ events until the connection's
// window or queue is exhausted, mirroring connection.c's periodic drain
// ticker but invoked eagerly right after new data is queued.
func (c *Core) drainSendQueue(conn *Connection) {
	for conn.sendQueueHead != nil {
		before := conn.sendQueueHead
		c.dispatch(&Event{Kind: EvDrainSendq, Port: conn.Port, Conn: conn})
		if conn.sendQueueHead == before {
			// Handler declined to dequeue (busy/window full/queued-before-
			// l3-initiated): stop spinning.
			return
		}
	}
}

// IngressFrame feeds a decoded AX.25 frame arriving on port into the state
// machine, resolving it to the right Connection/Socket and synthesizing
// the matching Event.
func (c *Core) IngressFrame(port uint8, data []byte, modulo uint8) {
	c.ingress(port, data, modulo)
}

// Tick drives every connection's timers and send-queue forward; call this
// periodically (e.g. once a second) from the platform's event loop.
func (c *Core) Tick() {
	now := c.now()
	for i := range c.conns.slots {
		conn := &c.conns.slots[i]
		if conn.State == StateDisconnected {
			continue
		}
		if conn.timerRunningT1() && conn.timerExpiredT1(now) {
			conn.T1Expiry = clock.Zero
			c.dispatch(&Event{Kind: EvTimerExpireT1, Port: conn.Port, Conn: conn})
		}
		if !conn.T2Expiry.IsZero() && !conn.T2Expiry.After(now) {
			conn.T2Expiry = clock.Zero
			c.dispatch(&Event{Kind: EvTimerExpireT2, Port: conn.Port, Conn: conn})
		}
		if !conn.T3Expiry.IsZero() && !conn.T3Expiry.After(now) {
			conn.T3Expiry = clock.Zero
			c.dispatch(&Event{Kind: EvTimerExpireT3, Port: conn.Port, Conn: conn})
		}
		c.drainSendQueue(conn)
	}
}
