package fs

import (
	"errors"
	iofs "io/fs"
	"sync"
)

// InjectedError marks an error as intentionally injected by [Chaos].
//
// It wraps the underlying error so errors.Is/As continue to work.
//
// Note: for errno-style errors, [Chaos] returns a plain *fs.PathError with
// a syscall.Errno in PathError.Err so os.IsNotExist/os.IsPermission keep
// working. Those injected *fs.PathError values are tracked separately so
// [IsInjected] can still distinguish injected from real OS errors in tests.
type InjectedError struct {
	Err error
}

// Error returns the underlying error's message.
func (e *InjectedError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *InjectedError) Unwrap() error {
	return e.Err
}

// IsInjected reports whether err (or any wrapped error) was injected by
// [Chaos]. Returns false if err is nil.
func IsInjected(err error) bool {
	if err == nil {
		return false
	}

	var injected *InjectedError
	if errors.As(err, &injected) {
		return true
	}

	var pathErr *iofs.PathError
	if errors.As(err, &pathErr) {
		_, ok := injectedPathErrors.Load(pathErr)

		return ok
	}

	var linkErr *linkError
	return errors.As(err, &linkErr)
}

// --- Private api ---

var injectedPathErrors sync.Map // map[*fs.PathError]struct{}

// markInjectedPathError registers a PathError as injected.
func markInjectedPathError(err *iofs.PathError) {
	injectedPathErrors.Store(err, struct{}{})
}

// linkError is an injected rename failure. os.Rename reports *os.LinkError;
// chaos mirrors that shape while staying recognizable to IsInjected.
type linkError struct {
	op       string
	old, new string
	err      error
}

func (e *linkError) Error() string {
	return e.op + " " + e.old + " " + e.new + ": " + e.err.Error()
}

func (e *linkError) Unwrap() error {
	return e.err
}
