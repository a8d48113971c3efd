package dlsm

import (
	"github.com/rs/xid"

	"github.com/vk7xyz/ax25d/pkg/ssid"
)

// Table is a fixed-capacity pool of Connections (MAX_CONN in the original
// implementation), looked up by (port, local, remote).
type Table struct {
	slots []Connection
	free  []int
}

// NewTable builds a Table with room for capacity connections.
func NewTable(capacity int) *Table {
	t := &Table{
		slots: make([]Connection, capacity),
		free:  make([]int, capacity),
	}
	for i := range t.slots {
		t.slots[i].idx = i
		t.free[i] = capacity - 1 - i
	}
	return t
}

// Capacity returns the maximum number of connections the table can hold.
func (t *Table) Capacity() int { return len(t.slots) }

// Active returns the number of connections not in StateDisconnected.
func (t *Table) Active() int {
	n := 0
	for i := range t.slots {
		if t.slots[i].ID != (xid.ID{}) && t.slots[i].State != StateDisconnected {
			n++
		}
	}
	return n
}

// Find returns the connection matching (port, local, remote), or nil.
func (t *Table) Find(port uint8, local, remote ssid.Address) *Connection {
	for i := range t.slots {
		c := &t.slots[i]
		if c.ID != (xid.ID{}) && c.Port == port && c.Local == local && c.Remote == remote {
			return c
		}
	}
	return nil
}

// FindOrCreate returns the existing connection for (port, local, remote),
// allocating a fresh StateDisconnected one from the pool if none exists.
// It returns nil if none exists and the pool is exhausted.
func (t *Table) FindOrCreate(port uint8, local, remote ssid.Address) *Connection {
	if c := t.Find(port, local, remote); c != nil {
		return c
	}
	if len(t.free) == 0 {
		return nil
	}
	idx := t.free[len(t.free)-1]
	t.free = t.free[:len(t.free)-1]
	c := &t.slots[idx]
	c.reset()
	c.ID = xid.New()
	c.Port = port
	c.Local = local
	c.Remote = remote
	c.ApplyVersion2_0()
	return c
}

// release returns a connection to the free pool. It is the single
// chokepoint a connection passes through on its way back to
// StateDisconnected, mirroring set_state's behaviour in the original
// implementation.
func (t *Table) release(c *Connection) {
	c.ID = xid.ID{}
	t.free = append(t.free, c.idx)
}
