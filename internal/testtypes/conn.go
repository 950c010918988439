package testtypes

import (
	"context"
	"sync"
	"sync/atomic"
)

// Conn is a fake connection that records how often it was closed.
type Conn struct {
	ID       int
	CloseErr error
	closes   atomic.Int32
	onClose  func(*Conn)
}

func (c *Conn) Close(context.Context) error {
	c.closes.Add(1)
	if c.onClose != nil {
		c.onClose(c)
	}
	return c.CloseErr
}

// Closes returns the number of times Close was called.
func (c *Conn) Closes() int {
	return int(c.closes.Load())
}

// ConnFactory opens Conns with increasing ids and records the order they are closed in.
type ConnFactory struct {
	mu     sync.Mutex
	opened []*Conn
	closed []int
}

// Open returns a new Conn.
func (f *ConnFactory) Open() *Conn {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := &Conn{
		ID:      len(f.opened) + 1,
		onClose: f.recordClose,
	}
	f.opened = append(f.opened, c)

	return c
}

func (f *ConnFactory) recordClose(c *Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = append(f.closed, c.ID)
}

// Opened returns the number of Conns opened.
func (f *ConnFactory) Opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.opened)
}

// Conns returns all opened Conns.
func (f *ConnFactory) Conns() []*Conn {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]*Conn(nil), f.opened...)
}

// ClosedOrder returns the ids of closed Conns in the order they were closed.
func (f *ConnFactory) ClosedOrder() []int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]int(nil), f.closed...)
}
