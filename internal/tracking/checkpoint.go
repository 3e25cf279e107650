package tracking

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Slot is the single durable backup record of a device. Load returns
// nil, nil when the slot is empty.
type Slot interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Clear(ctx context.Context) error
}

type opKind int

const (
	opSave opKind = iota
	opClear
)

type checkpointOp struct {
	seq  uint64
	kind opKind
	data []byte
}

// Checkpointer serialises backup writes on one goroutine. Only the newest
// pending operation is ever applied, so a stale save can never overwrite a
// later save or resurrect a cleared slot. Enqueueing never blocks.
type Checkpointer struct {
	slot Slot

	mu       sync.Mutex
	pending  *checkpointOp
	seq      uint64
	done     uint64
	lastErr  error
	progress chan struct{}
	closed   bool

	wake    chan struct{}
	quit    chan struct{}
	stopped chan struct{}

	onHealth func(error)
}

// NewCheckpointer starts the writer goroutine. A nil slot means no durable
// medium is available: every checkpoint is skipped and reported.
func NewCheckpointer(slot Slot) *Checkpointer {
	c := &Checkpointer{
		slot:     slot,
		progress: make(chan struct{}),
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	if slot == nil {
		c.lastErr = fmt.Errorf("%w: no backup slot configured", ErrPersistenceUnavailable)
	}
	go c.run()
	return c
}

// OnHealthChange registers fn to be called from the writer goroutine when
// persistence goes from healthy to failing or back. fn receives nil on
// recovery.
func (c *Checkpointer) OnHealthChange(fn func(error)) {
	c.mu.Lock()
	c.onHealth = fn
	c.mu.Unlock()
}

func (c *Checkpointer) Save(data []byte) uint64 {
	return c.enqueue(checkpointOp{kind: opSave, data: data})
}

func (c *Checkpointer) Clear() uint64 {
	return c.enqueue(checkpointOp{kind: opClear})
}

func (c *Checkpointer) enqueue(op checkpointOp) uint64 {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0
	}
	c.seq++
	op.seq = c.seq
	c.pending = &op
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return op.seq
}

// Load reads the slot directly, after letting pending writes land.
func (c *Checkpointer) Load(ctx context.Context) ([]byte, error) {
	if err := c.Flush(ctx); err != nil {
		return nil, err
	}
	if c.slot == nil {
		return nil, fmt.Errorf("%w: no backup slot configured", ErrPersistenceUnavailable)
	}
	data, err := c.slot.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	return data, nil
}

// Flush waits until every operation enqueued before the call is applied or
// superseded.
func (c *Checkpointer) Flush(ctx context.Context) error {
	c.mu.Lock()
	target := c.seq
	c.mu.Unlock()

	for {
		c.mu.Lock()
		if c.done >= target || c.closed && c.pending == nil {
			c.mu.Unlock()
			return nil
		}
		ch := c.progress
		c.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Err is nil when the last write succeeded.
func (c *Checkpointer) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Close applies whatever is pending and stops the writer.
func (c *Checkpointer) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.stopped
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.quit)
	<-c.stopped
}

func (c *Checkpointer) run() {
	defer close(c.stopped)
	for {
		select {
		case <-c.wake:
			c.drain()
		case <-c.quit:
			c.drain()
			return
		}
	}
}

func (c *Checkpointer) drain() {
	for {
		c.mu.Lock()
		op := c.pending
		c.pending = nil
		c.mu.Unlock()
		if op == nil {
			return
		}

		err := c.apply(op)
		if err != nil {
			log.Printf("backup checkpoint skipped: %v", err)
		}

		c.mu.Lock()
		prev := c.lastErr
		c.lastErr = err
		notify := c.onHealth
		c.mu.Unlock()

		if notify != nil && (prev == nil) != (err == nil) {
			notify(err)
		}

		// waiters in Flush observe health notifications before returning
		c.mu.Lock()
		c.done = op.seq
		close(c.progress)
		c.progress = make(chan struct{})
		c.mu.Unlock()
	}
}

func (c *Checkpointer) apply(op *checkpointOp) error {
	if c.slot == nil {
		return fmt.Errorf("%w: no backup slot configured", ErrPersistenceUnavailable)
	}
	ctx := context.Background()
	var err error
	switch op.kind {
	case opSave:
		err = c.slot.Save(ctx, op.data)
	case opClear:
		err = c.slot.Clear(ctx)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	return nil
}
