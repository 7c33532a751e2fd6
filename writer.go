package statefile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
)

// scratchSuffix is appended to the target path to form the scratch file
// used during an atomic write. At steady state the scratch file is absent.
const scratchSuffix = ".tmp"

// closeGuard forwards writes and ignores Close. The store, not the
// serializer, owns the close timing of the underlying file; a serializer
// that closes the sink it was given must not terminate the scratch file.
type closeGuard struct {
	w io.Writer
}

func (g *closeGuard) Write(p []byte) (int, error) {
	return g.w.Write(p)
}

func (g *closeGuard) Close() error {
	return nil
}

// persist writes v to the scratch file, syncs it, and renames it over the
// target. It returns the fingerprint of the encoded bytes, computed while
// they are written.
//
// On any failure after the scratch file was created, the scratch file is
// removed best-effort and the original error propagates. The target is
// never opened for writing directly.
func (s *Store[T]) persist(v T) (uint64, error) {
	err := s.ensureParentDir()
	if err != nil {
		return 0, err
	}

	scratch := s.path + scratchSuffix

	f, err := s.fsys.OpenFile(scratch, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, s.perm)
	if err != nil {
		return 0, fmt.Errorf("create scratch %q: %w", scratch, err)
	}

	digest := xxhash.New()

	writeErr := s.ser.WriteTo(v, &closeGuard{w: io.MultiWriter(f, digest)})
	if writeErr != nil {
		writeErr = fmt.Errorf("encode to %q: %w", scratch, writeErr)
	}

	if writeErr == nil {
		syncErr := f.Sync()
		if syncErr != nil {
			writeErr = fmt.Errorf("sync scratch %q: %w", scratch, syncErr)
		}
	}

	closeErr := f.Close()
	if writeErr == nil && closeErr != nil {
		writeErr = fmt.Errorf("close scratch %q: %w", scratch, closeErr)
	}

	if writeErr != nil {
		s.removeScratch(scratch)

		return 0, writeErr
	}

	err = s.fsys.Rename(scratch, s.path)
	if err != nil {
		s.removeScratch(scratch)

		return 0, fmt.Errorf("rename %q over %q: %w", scratch, s.path, errors.Join(ErrRenameConflict, err))
	}

	s.syncParentDir()

	return digest.Sum64(), nil
}

// ensureParentDir creates the target's parent directory if needed and fails
// when a non-directory sits at that path.
func (s *Store[T]) ensureParentDir() error {
	dir := filepath.Dir(s.path)

	info, err := s.fsys.Stat(dir)

	switch {
	case err == nil && !info.IsDir():
		return fmt.Errorf("parent %q is not a directory", dir)
	case err == nil:
		return nil
	case os.IsNotExist(err):
		mkErr := s.fsys.MkdirAll(dir, 0o755)
		if mkErr != nil {
			return fmt.Errorf("create parent %q: %w", dir, mkErr)
		}

		return nil
	default:
		return fmt.Errorf("stat parent %q: %w", dir, err)
	}
}

// syncParentDir makes the rename itself durable. A failure here does not
// fail the write: the new content is already in place, and failing the
// update would leave the cache and the file disagreeing. The gap is logged
// instead.
func (s *Store[T]) syncParentDir() {
	dir, err := s.fsys.Open(filepath.Dir(s.path))
	if err != nil {
		s.log.Warn("parent dir sync skipped", "path", s.path, "err", err)

		return
	}

	defer func() { _ = dir.Close() }()

	err = dir.Sync()
	if err != nil {
		s.log.Warn("parent dir sync failed", "path", s.path, "err", err)
	}
}

func (s *Store[T]) removeScratch(scratch string) {
	err := s.fsys.Remove(scratch)
	if err != nil && !os.IsNotExist(err) {
		s.log.Warn("scratch cleanup failed", "path", scratch, "err", err)
	}
}
