package statefile

import (
	"errors"
	"fmt"
	"os"
)

// readData decodes the current value from the target file.
//
// A missing file yields the serializer's default value without creating the
// file. Corruption reported by the serializer is rewrapped with the path and
// passed upward for the corruption handshake. Everything else is an I/O
// failure.
func (s *Store[T]) readData() (T, error) {
	var zero T

	f, err := s.fsys.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s.ser.DefaultValue(), nil
		}

		return zero, fmt.Errorf("open %q: %w", s.path, err)
	}

	defer func() { _ = f.Close() }()

	v, err := s.ser.ReadFrom(f)
	if err != nil {
		var corr *CorruptionError
		if errors.As(err, &corr) {
			return zero, &CorruptionError{Path: s.path, Err: corr.Err}
		}

		return zero, fmt.Errorf("read %q: %w", s.path, err)
	}

	return v, nil
}

// readOrHandleCorruption wraps readData with the corruption handshake: when
// the serializer reports corruption and a handler is configured, the
// handler's replacement value is persisted and returned. The handler is
// called at most once per cache-miss cycle.
//
// If persisting the replacement fails, the original corruption error is
// surfaced with the write error attached.
func (s *Store[T]) readOrHandleCorruption() (T, error) {
	v, err := s.readData()
	if err == nil {
		return v, nil
	}

	var (
		zero T
		corr *CorruptionError
	)

	if !errors.As(err, &corr) || s.handler == nil {
		return zero, err
	}

	replacement, err := s.handler(corr)
	if err != nil {
		return zero, err
	}

	_, werr := s.persist(replacement)
	if werr != nil {
		return zero, fmt.Errorf("persisting corruption replacement: %w", errors.Join(corr, werr))
	}

	s.log.Warn("replaced corrupt file", "path", s.path)

	return replacement, nil
}
