package packet_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk7xyz/ax25d/pkg/packet"
)

func TestPoolAllocateFree(t *testing.T) {
	pool := packet.NewPool(2)

	p1, err := pool.Allocate()
	require.NoError(t, err)
	require.NoError(t, p1.Push([]byte("hello")))
	assert.Equal(t, "hello", string(p1.Bytes()))

	p2, err := pool.Allocate()
	require.NoError(t, err)
	assert.NotSame(t, p1, p2)

	_, err = pool.Allocate()
	assert.ErrorIs(t, err, packet.ErrPoolExhausted)

	pool.Free(p1)
	p3, err := pool.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 0, p3.Len(), "reused slot must come back zero-length")
}

func TestPacketPushOverflow(t *testing.T) {
	pool := packet.NewPool(1)
	p, err := pool.Allocate()
	require.NoError(t, err)

	big := make([]byte, packet.MaxSize+1)
	assert.ErrorIs(t, p.Push(big), packet.ErrOverflow)
}

func TestBufferPoolRoundTrip(t *testing.T) {
	pool := packet.NewBufferPool(1)

	b, err := pool.Allocate([]byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(b.Bytes()))

	pool.Free(b)

	_, err = pool.Allocate(make([]byte, packet.MaxSize+1))
	assert.ErrorIs(t, err, packet.ErrOverflow)
}

func TestBufferLinkedListFIFO(t *testing.T) {
	pool := packet.NewBufferPool(3)

	head, err := pool.Allocate([]byte("a"))
	require.NoError(t, err)
	second, err := pool.Allocate([]byte("b"))
	require.NoError(t, err)
	head.Next = second

	var got []string
	for b := head; b != nil; b = b.Next {
		got = append(got, string(b.Bytes()))
	}
	assert.Equal(t, []string{"a", "b"}, got)
}
