package dlsm

import "github.com/vk7xyz/ax25d/pkg/ssid"

// SocketKind distinguishes a listening socket (bound to a local address,
// waiting for inbound SABM/SABME) from one attached to a live Connection.
type SocketKind int

const (
	SocketListen SocketKind = iota
	SocketConnected
)

// Callbacks groups the application-facing hooks a socket is notified
// through. All are optional; a nil callback is simply not invoked.
type Callbacks struct {
	OnConnect    func(c *Connection)
	OnDisconnect func(c *Connection, err error)
	OnData       func(c *Connection, info []byte)
	OnUnitData   func(port uint8, from ssid.Address, info []byte)
	OnError      func(c *Connection, err DLError)
}

// Socket is the application's handle onto either a listener (bound to a
// local call, matching any remote) or a single connected link.
type Socket struct {
	idx int

	Kind  SocketKind
	Local ssid.Address
	Port  uint8 // listeners only match frames arriving on this port

	Conn *Connection

	Callbacks
}

func (s *Socket) reset() {
	idx := s.idx
	*s = Socket{idx: idx}
}

// SocketTable is a fixed-capacity pool of sockets, mirroring the
// fixed-size socket table of the original implementation (MAX_SOCKETS).
type SocketTable struct {
	slots []Socket
	free  []int
}

// NewSocketTable builds a SocketTable with room for capacity sockets.
func NewSocketTable(capacity int) *SocketTable {
	t := &SocketTable{
		slots: make([]Socket, capacity),
		free:  make([]int, capacity),
	}
	for i := range t.slots {
		t.slots[i].idx = i
		t.free[i] = capacity - 1 - i
	}
	return t
}

// Capacity returns the maximum number of sockets the table can hold.
func (t *SocketTable) Capacity() int { return len(t.slots) }

// InUse returns the number of sockets currently allocated.
func (t *SocketTable) InUse() int { return len(t.slots) - len(t.free) }

// Allocate reserves a socket slot, or returns nil if the table is full.
func (t *SocketTable) Allocate(kind SocketKind, local ssid.Address, port uint8) *Socket {
	if len(t.free) == 0 {
		return nil
	}
	idx := t.free[len(t.free)-1]
	t.free = t.free[:len(t.free)-1]
	s := &t.slots[idx]
	s.reset()
	s.Kind = kind
	s.Local = local
	s.Port = port
	return s
}

// Free returns a socket to the pool.
func (t *SocketTable) Free(s *Socket) {
	if s.Conn != nil {
		s.Conn.Socket = nil
	}
	s.reset()
	t.free = append(t.free, s.idx)
}

// FindConnected returns the connected socket attached to conn, if any.
func (t *SocketTable) FindConnected(conn *Connection) *Socket {
	for i := range t.slots {
		s := &t.slots[i]
		if s.Kind == SocketConnected && s.Conn == conn {
			return s
		}
	}
	return nil
}

// FindListener returns a listener bound to local on port, matching AX.25's
// "exact connected socket, else a matching listener" lookup order: callers
// should try FindConnected first.
func (t *SocketTable) FindListener(port uint8, local ssid.Address) *Socket {
	for i := range t.slots {
		s := &t.slots[i]
		if s.Kind == SocketListen && s.Port == port && s.Local == local {
			return s
		}
	}
	return nil
}
