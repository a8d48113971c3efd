// Package packet implements the fixed-capacity, single-owner pools of
// bounded byte buffers used for stored frames (Packet; the data-link core
// keeps its sent I frames in them for retransmission) and queued outbound
// payloads (Buffer). Allocation never blocks; exhaustion is
// reported via ErrPoolExhausted so callers can count it rather than hang.
package packet

import (
	"errors"
	"fmt"
)

// MaxSize bounds the payload a Packet or Buffer can hold.
const MaxSize = 2048

// ErrPoolExhausted is returned by Allocate when no free slot remains.
var ErrPoolExhausted = errors.New("packet: pool exhausted")

// ErrOverflow is returned by Push/PushByte when the write would exceed MaxSize.
var ErrOverflow = errors.New("packet: capacity exceeded")

// Packet is a bounded, reusable byte buffer tagged with the port it arrived
// on or is destined for.
type Packet struct {
	Port uint8
	buf  [MaxSize]byte
	len  int
	used bool
	idx  int
}

// Bytes returns the slice of bytes currently stored in p.
func (p *Packet) Bytes() []byte { return p.buf[:p.len] }

// Len reports the number of bytes currently stored in p.
func (p *Packet) Len() int { return p.len }

// Push appends b to p, failing if the result would exceed MaxSize.
func (p *Packet) Push(b []byte) error {
	if p.len+len(b) > MaxSize {
		return fmt.Errorf("%w: %d+%d > %d", ErrOverflow, p.len, len(b), MaxSize)
	}
	copy(p.buf[p.len:], b)
	p.len += len(b)
	return nil
}

// PushByte appends a single byte to p.
func (p *Packet) PushByte(b byte) error {
	if p.len+1 > MaxSize {
		return fmt.Errorf("%w: %d+1 > %d", ErrOverflow, p.len, MaxSize)
	}
	p.buf[p.len] = b
	p.len++
	return nil
}

func (p *Packet) reset() {
	p.Port = 0
	p.len = 0
}

// Pool is a fixed-capacity pool of Packets.
type Pool struct {
	slots []Packet
	free  []int
}

// NewPool allocates a Pool with room for capacity Packets.
func NewPool(capacity int) *Pool {
	p := &Pool{
		slots: make([]Packet, capacity),
		free:  make([]int, capacity),
	}
	for i := range p.free {
		p.free[i] = capacity - 1 - i
	}
	for i := range p.slots {
		p.slots[i].idx = i
	}
	return p
}

// Capacity reports the total number of slots in the pool.
func (p *Pool) Capacity() int { return len(p.slots) }

// InUse reports how many slots are currently allocated.
func (p *Pool) InUse() int { return len(p.slots) - len(p.free) }

// Allocate claims a zero-length Packet from the pool, or fails with
// ErrPoolExhausted.
func (p *Pool) Allocate() (*Packet, error) {
	if len(p.free) == 0 {
		return nil, ErrPoolExhausted
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	slot := &p.slots[idx]
	slot.reset()
	slot.used = true
	return slot, nil
}

// Free returns pkt to the pool. pkt must have come from this Pool via
// Allocate and must not be used afterwards.
func (p *Pool) Free(pkt *Packet) {
	if !pkt.used {
		return
	}
	pkt.used = false
	p.free = append(p.free, pkt.idx)
}

// Buffer is a bounded, reusable byte buffer with a next-pointer so it can
// form a singly-linked send-queue FIFO.
type Buffer struct {
	Next *Buffer
	buf  [MaxSize]byte
	len  int
	used bool
	idx  int
}

// Bytes returns the slice of bytes currently stored in b.
func (b *Buffer) Bytes() []byte { return b.buf[:b.len] }

// Len reports the number of bytes currently stored in b.
func (b *Buffer) Len() int { return b.len }

func (b *Buffer) reset() {
	b.Next = nil
	b.len = 0
}

// BufferPool is a fixed-capacity pool of Buffers.
type BufferPool struct {
	slots []Buffer
	free  []int
}

// NewBufferPool allocates a BufferPool with room for capacity Buffers.
func NewBufferPool(capacity int) *BufferPool {
	p := &BufferPool{
		slots: make([]Buffer, capacity),
		free:  make([]int, capacity),
	}
	for i := range p.free {
		p.free[i] = capacity - 1 - i
	}
	for i := range p.slots {
		p.slots[i].idx = i
	}
	return p
}

// Capacity reports the total number of slots in the pool.
func (p *BufferPool) Capacity() int { return len(p.slots) }

// InUse reports how many slots are currently allocated.
func (p *BufferPool) InUse() int { return len(p.slots) - len(p.free) }

// Allocate copies src into a freshly claimed Buffer, or fails with
// ErrPoolExhausted.
func (p *BufferPool) Allocate(src []byte) (*Buffer, error) {
	if len(src) > MaxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrOverflow, len(src), MaxSize)
	}
	if len(p.free) == 0 {
		return nil, ErrPoolExhausted
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	slot := &p.slots[idx]
	slot.reset()
	slot.used = true
	copy(slot.buf[:], src)
	slot.len = len(src)
	return slot, nil
}

// Free returns buf to the pool. buf must have come from this BufferPool via
// Allocate and must not be used afterwards.
func (p *BufferPool) Free(buf *Buffer) {
	if !buf.used {
		return
	}
	buf.used = false
	p.free = append(p.free, buf.idx)
}
