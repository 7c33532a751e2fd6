package statefile

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"os"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/calvinalkan/statefile/fs"
)

// Store is a single-process, typed, on-disk single-document store. It holds
// exactly one logical value of type T, persists it durably to one file,
// serves a live stream of the current value to any number of observers, and
// applies read-modify-write transforms with strict serialization.
//
// All reads and updates funnel through one message loop, so there is at
// most one in-flight writer and updates are sequentially consistent with
// reads. Writes are atomic: the value is encoded to a scratch file that is
// renamed over the target.
//
// Multi-process safety is out of scope; if several processes share a file,
// exclusion between them is the caller's responsibility (see [fs.Flock]).
type Store[T any] struct {
	path string
	ser  Serializer[T]

	fsys    fs.FS
	handler func(*CorruptionError) (T, error)
	equal   func(a, b T) bool
	log     *slog.Logger
	perm    os.FileMode

	// slot is the current broadcast slot. Mutated only by the loop;
	// everyone else reads the reference atomically.
	slot atomic.Pointer[conflated[T]]

	mail *mailbox[T]

	// initTasks is owned by the loop and dropped after the first fully
	// successful initialization.
	initTasks []InitTask[T]

	ctx      context.Context
	cancel   context.CancelFunc
	stop     chan struct{}
	loopDone chan struct{}
	once     sync.Once
}

// Options configures a [Store]. The zero value is usable.
type Options[T any] struct {
	// FS is the file backend. Defaults to [fs.NewReal].
	FS fs.FS

	// CorruptionHandler produces a replacement value when the serializer
	// reports corruption. The replacement is persisted before it becomes
	// observable. Without a handler, corruption surfaces as a read failure.
	CorruptionHandler func(*CorruptionError) (T, error)

	// InitTasks run exactly once, in order, before the first value becomes
	// observable. See [InitTask].
	InitTasks []InitTask[T]

	// Equal decides whether a transform result differs from the current
	// value; equal results skip the disk write. Defaults to
	// [reflect.DeepEqual].
	Equal func(a, b T) bool

	// Logger receives diagnostics. Defaults to a discard logger.
	Logger *slog.Logger

	// FilePerm is the mode for the target file. Defaults to 0o644.
	FilePerm os.FileMode
}

// Open creates a store for the file at path and starts its message loop.
//
// The file is not touched until the first read or update; opening a store
// for a missing file is cheap and valid.
func Open[T any](path string, ser Serializer[T], opts Options[T]) (*Store[T], error) {
	if path == "" {
		return nil, errors.New("open store: path is empty")
	}

	if ser == nil {
		return nil, errors.New("open store: serializer is nil")
	}

	s := &Store[T]{
		path:      path,
		ser:       ser,
		fsys:      opts.FS,
		handler:   opts.CorruptionHandler,
		equal:     opts.Equal,
		log:       opts.Logger,
		perm:      opts.FilePerm,
		mail:      newMailbox[T](),
		initTasks: opts.InitTasks,
		stop:      make(chan struct{}),
		loopDone:  make(chan struct{}),
	}

	if s.fsys == nil {
		s.fsys = fs.NewReal()
	}

	if s.equal == nil {
		s.equal = func(a, b T) bool { return reflect.DeepEqual(a, b) }
	}

	if s.log == nil {
		s.log = slog.New(slog.DiscardHandler)
	}

	if s.perm == 0 {
		s.perm = 0o644
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.slot.Store(newConflated[T]())

	go s.run()

	return s, nil
}

// Update applies transform to the current value, persists the result
// atomically if it changed, and returns it.
//
// Transforms must treat their argument as immutable and return a new value;
// mutating a value the store handed out fails later operations with
// [ErrValueMutated]. A transform that returns an equal value causes no disk
// write.
//
// Cancelling ctx stops the caller from waiting but does not cancel the
// enqueued message; the store still serializes and persists it.
func (s *Store[T]) Update(ctx context.Context, transform func(T) (T, error)) (T, error) {
	var zero T

	if transform == nil {
		return zero, errors.New("update: transform is nil")
	}

	sl := s.slot.Load()
	ack := make(chan updateResult[T], 1)

	err := s.mail.put(message[T]{kind: msgUpdate, slot: sl, transform: transform, ack: ack})
	if err != nil {
		return zero, err
	}

	// If the captured slot has no value yet, this update may be the message
	// that triggers initialization. An init failure terminates the slot
	// without completing the ack, so wait for the slot to produce either a
	// value or the failure.
	if _, ok := sl.current(); !ok {
		ob := sl.subscribe()

		select {
		case <-ob.ch:
			sl.unsubscribe(ob)
		case <-sl.done:
			sl.unsubscribe(ob)

			termErr := sl.terminalErr()
			if termErr != nil {
				return zero, termErr
			}

			return zero, ErrClosed
		case <-ctx.Done():
			sl.unsubscribe(ob)

			return zero, ctx.Err()
		}
	}

	select {
	case r := <-ack:
		return r.value, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-s.loopDone:
		// The loop drains its backlog before exiting, so the ack may have
		// completed concurrently with shutdown.
		select {
		case r := <-ack:
			return r.value, r.err
		default:
			return zero, ErrClosed
		}
	}
}

// Get returns the current value, initializing the store on first use.
func (s *Store[T]) Get(ctx context.Context) (T, error) {
	var zero T

	sl := s.slot.Load()

	err := s.mail.put(message[T]{kind: msgRead, slot: sl})
	if err != nil {
		return zero, err
	}

	ob := sl.subscribe()
	defer sl.unsubscribe(ob)

	select {
	case e := <-ob.ch:
		return e.value, nil
	case <-sl.done:
		termErr := sl.terminalErr()
		if termErr != nil {
			return zero, termErr
		}

		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Watch returns a lazy sequence of the store's values: the current value,
// then every subsequent successful update, conflated so that a slow
// consumer sees only the latest. Each call subscribes independently.
//
// The sequence ends with a non-nil error when the read path fails or the
// store refuses the subscription; it ends without an error when the store
// closes or ctx is cancelled. A failed watch may be restarted: the next
// subscription retries the read from scratch.
func (s *Store[T]) Watch(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T

		sl := s.slot.Load()

		err := s.mail.put(message[T]{kind: msgRead, slot: sl})
		if err != nil {
			yield(zero, err)

			return
		}

		ob := sl.subscribe()
		defer sl.unsubscribe(ob)

		for {
			select {
			case e := <-ob.ch:
				if !yield(e.value, nil) {
					return
				}
			case <-sl.done:
				termErr := sl.terminalErr()
				if termErr != nil {
					yield(zero, termErr)

					return
				}

				// Clean completion: deliver a final pending value, if any.
				select {
				case e := <-ob.ch:
					yield(e.value, nil)
				default:
				}

				return
			case <-ctx.Done():
				return
			}
		}
	}
}

// Close refuses new messages, drains messages already enqueued, completes
// the current slot cleanly, and stops the message loop. Close blocks until
// the loop has exited; afterwards every operation fails with [ErrClosed].
func (s *Store[T]) Close() error {
	s.once.Do(func() {
		s.mail.close()
		s.cancel()
		close(s.stop)
	})

	<-s.loopDone

	return nil
}
