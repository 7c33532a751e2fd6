package statefile

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// The store treats values as immutable once published. That cannot be
// enforced in Go, so each published entry carries a fingerprint of the
// value's encoding, and the fingerprint is re-checked before and after each
// update transform runs; Get and Watch hand out the cached value without
// checking it. A mismatch means a caller mutated a value the store handed
// out. Detection is best-effort: a mutation that preserves the hash goes
// unnoticed.

// fingerprint hashes the serializer's encoding of v.
func (s *Store[T]) fingerprint(v T) (uint64, error) {
	digest := xxhash.New()

	err := s.ser.WriteTo(v, &closeGuard{w: digest})
	if err != nil {
		return 0, fmt.Errorf("fingerprint: %w", err)
	}

	return digest.Sum64(), nil
}

// checkUnmodified verifies that the entry's value still hashes to the
// fingerprint captured when it was published.
func (s *Store[T]) checkUnmodified(e entry[T]) error {
	fp, err := s.fingerprint(e.value)
	if err != nil {
		return err
	}

	if fp != e.fp {
		return ErrValueMutated
	}

	return nil
}
