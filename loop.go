package statefile

import "sync"

// The message loop is the serializer of all mutation: a single goroutine
// drains messages in arrival order and is the only code that touches the
// cached entry, the slot reference, and the target file. No locks guard
// that state because only the loop mutates it.

type msgKind uint8

const (
	msgRead msgKind = iota
	msgUpdate
)

// message is a pending Read or Update. The slot is the broadcast slot that
// was current when the message was enqueued; if a prior failure terminated
// it, the message is discarded because its sender already saw the error
// through the slot.
type message[T any] struct {
	kind      msgKind
	slot      *conflated[T]
	transform func(T) (T, error)
	ack       chan updateResult[T] // cap 1, update messages only
}

type updateResult[T any] struct {
	value T
	err   error
}

func (m message[T]) complete(v T, err error) {
	m.ack <- updateResult[T]{value: v, err: err}
}

// mailbox is an unbounded FIFO queue. Enqueueing never blocks on the
// consumer; back-pressure is absorbed by the queue.
type mailbox[T any] struct {
	mu     sync.Mutex
	queue  []message[T]
	notify chan struct{}
	closed bool
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{notify: make(chan struct{}, 1)}
}

func (m *mailbox[T]) put(msg message[T]) error {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()

		return ErrClosed
	}

	m.queue = append(m.queue, msg)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}

	return nil
}

// take blocks until a message is available or stop is closed.
func (m *mailbox[T]) take(stop <-chan struct{}) (message[T], bool) {
	for {
		m.mu.Lock()

		if len(m.queue) > 0 {
			msg := m.queue[0]
			m.queue = m.queue[1:]
			m.mu.Unlock()

			return msg, true
		}

		m.mu.Unlock()

		select {
		case <-m.notify:
		case <-stop:
			var zero message[T]

			return zero, false
		}
	}
}

func (m *mailbox[T]) close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
}

// run drains the mailbox until the store is closed, then completes the
// current slot so observers finish cleanly.
func (s *Store[T]) run() {
	defer close(s.loopDone)

	for {
		msg, ok := s.mail.take(s.stop)
		if !ok {
			s.slot.Load().close(nil)

			return
		}

		s.handle(msg)
	}
}

func (s *Store[T]) handle(msg message[T]) {
	// Enqueued against a slot that a prior failure already terminated. The
	// sender has seen the error through that slot; re-reporting it here
	// would double-fail.
	if msg.slot.closed() {
		return
	}

	cur := s.slot.Load()

	err := s.readAndInitOnce(cur)
	if err != nil {
		// Swap in a fresh slot before closing the failed one, so messages
		// enqueued from now on target the new slot and the next message
		// retries initialization from scratch.
		s.slot.Store(newConflated[T]())
		cur.close(err)

		s.log.Warn("read failed, slot terminated", "path", s.path, "err", err)

		return
	}

	if msg.kind == msgRead {
		// The slot now carries the current value, which is all a reader
		// needed.
		return
	}

	s.transformAndWrite(msg, cur)
}

// readAndInitOnce makes sure the slot holds a value. On the first successful
// attempt it reads the file (recovering from corruption if a handler is
// configured), runs the one-shot initialization tasks, and publishes the
// result. Later calls return immediately.
func (s *Store[T]) readAndInitOnce(c *conflated[T]) error {
	if _, ok := c.current(); ok {
		return nil
	}

	v, err := s.readOrHandleCorruption()
	if err != nil {
		return err
	}

	if len(s.initTasks) > 0 {
		api := newInitAPI(s, v)

		for _, task := range s.initTasks {
			taskErr := task(s.ctx, api)
			if taskErr != nil {
				// Keep the task list: the next message retries the whole
				// initialization from the start.
				api.invalidate()

				return taskErr
			}
		}

		v = api.finish()
		s.initTasks = nil

		s.log.Debug("initialization tasks complete", "path", s.path)
	}

	fp, err := s.fingerprint(v)
	if err != nil {
		return err
	}

	c.publish(entry[T]{value: v, fp: fp})

	return nil
}

// transformAndWrite runs an update message against a slot that holds a
// value. Persistence failures leave the slot untouched; no partial update
// is ever observable.
func (s *Store[T]) transformAndWrite(msg message[T], c *conflated[T]) {
	var zero T

	cur, ok := c.current()
	if !ok {
		// readAndInitOnce ran just before us on the same goroutine.
		panic("statefile: update against an empty slot")
	}

	err := s.checkUnmodified(cur)
	if err != nil {
		msg.complete(zero, err)

		return
	}

	next, err := msg.transform(cur.value)
	if err != nil {
		msg.complete(zero, err)

		return
	}

	// Re-verify: the transform itself may have mutated the cached value.
	err = s.checkUnmodified(cur)
	if err != nil {
		msg.complete(zero, err)

		return
	}

	if s.equal(next, cur.value) {
		msg.complete(cur.value, nil)

		return
	}

	fp, err := s.persist(next)
	if err != nil {
		msg.complete(zero, err)

		return
	}

	c.publish(entry[T]{value: next, fp: fp})
	msg.complete(next, nil)

	s.log.Debug("update persisted", "path", s.path)
}
