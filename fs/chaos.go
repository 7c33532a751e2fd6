package fs

import (
	iofs "io/fs"
	"math/rand"
	"os"
	"sync"
	"syscall"
)

// ChaosConfig controls fault injection probabilities.
// Each rate is a float64 from 0.0 (never) to 1.0 (always).
//
// The zero value disables all fault injection. Partially initialized
// configs only inject faults for the specified rates; unset fields default
// to 0.0.
type ChaosConfig struct {
	// OpenFailRate controls how often FS.Open and FS.OpenFile fail to open
	// a file. For read-only opens: EACCES, EIO, EMFILE. For write opens:
	// adds ENOSPC and EROFS. Never ENOENT, so missing-file handling is
	// always exercised against real state.
	OpenFailRate float64

	// ReadFailRate controls how often FS.ReadFile and File.Read fail,
	// returning zero bytes and EIO.
	ReadFailRate float64

	// WriteFailRate controls how often File.Write fails entirely, writing
	// zero bytes and returning EIO, ENOSPC, or EROFS.
	WriteFailRate float64

	// PartialWriteRate controls how often File.Write writes only a prefix
	// of the data before failing. Returns n > 0 along with the error.
	PartialWriteRate float64

	// SyncFailRate controls how often File.Sync (fsync) fails. Sync
	// failures surface delayed write errors that Write didn't report.
	SyncFailRate float64

	// CloseFailRate controls how often File.Close reports an error. The
	// underlying descriptor is always closed (to avoid leaks) even when an
	// error is returned.
	CloseFailRate float64

	// RenameFailRate controls how often FS.Rename fails. Returns an
	// injected link error with EIO, ENOSPC, EXDEV, or EACCES.
	RenameFailRate float64

	// RemoveFailRate controls how often FS.Remove fails with EACCES, EBUSY,
	// or EIO.
	RemoveFailRate float64

	// StatFailRate controls how often FS.Stat and FS.Exists fail on a path
	// with EACCES or EIO.
	StatFailRate float64

	// MkdirAllFailRate controls how often FS.MkdirAll fails with EACCES,
	// EIO, ENOSPC, or EROFS.
	MkdirAllFailRate float64

	// ReadDirFailRate controls how often FS.ReadDir fails entirely.
	ReadDirFailRate float64
}

// Chaos wraps an [FS] and injects random failures according to a
// [ChaosConfig]. The same seed always produces the same failure sequence,
// so failing tests reproduce.
//
// Injected errors are recognizable via [IsInjected]; real errors from the
// underlying filesystem pass through unmarked.
type Chaos struct {
	fs     FS
	config ChaosConfig

	mu  sync.Mutex
	rng *rand.Rand

	active bool
}

// NewChaos creates a new [Chaos] filesystem wrapping the given [FS].
// The seed controls random fault injection for reproducibility.
// Panics if fs is nil.
func NewChaos(fs FS, seed int64, config ChaosConfig) *Chaos {
	if fs == nil {
		panic("fs is nil")
	}

	return &Chaos{
		fs:     fs,
		rng:    rand.New(rand.NewSource(seed)),
		config: config,
		active: true,
	}
}

// SetActive enables or disables fault injection. While inactive, all
// operations pass through to the underlying filesystem.
func (c *Chaos) SetActive(active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.active = active
}

// hit reports whether a fault with the given rate fires.
func (c *Chaos) hit(rate float64) bool {
	if rate <= 0 {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return false
	}

	return c.rng.Float64() < rate
}

// pick returns one of the errnos, uniformly.
func (c *Chaos) pick(errnos ...syscall.Errno) syscall.Errno {
	c.mu.Lock()
	defer c.mu.Unlock()

	return errnos[c.rng.Intn(len(errnos))]
}

// pathError builds an injected *fs.PathError so os.IsPermission and
// friends keep working on it.
func (c *Chaos) pathError(op, path string, errno syscall.Errno) error {
	err := &iofs.PathError{Op: op, Path: path, Err: errno}
	markInjectedPathError(err)

	return err
}

func (c *Chaos) Open(path string) (File, error) {
	if c.hit(c.config.OpenFailRate) {
		return nil, c.pathError("open", path, c.pick(syscall.EACCES, syscall.EIO, syscall.EMFILE))
	}

	f, err := c.fs.Open(path)
	if err != nil {
		return nil, err
	}

	return &chaosFile{chaos: c, f: f, path: path}, nil
}

func (c *Chaos) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	if c.hit(c.config.OpenFailRate) {
		errnos := []syscall.Errno{syscall.EACCES, syscall.EIO, syscall.EMFILE}
		if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE) != 0 {
			errnos = append(errnos, syscall.ENOSPC, syscall.EROFS)
		}

		return nil, c.pathError("open", path, c.pick(errnos...))
	}

	f, err := c.fs.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}

	return &chaosFile{chaos: c, f: f, path: path}, nil
}

func (c *Chaos) ReadFile(path string) ([]byte, error) {
	if c.hit(c.config.ReadFailRate) {
		return nil, c.pathError("read", path, syscall.EIO)
	}

	return c.fs.ReadFile(path)
}

func (c *Chaos) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if c.hit(c.config.WriteFailRate) {
		return c.pathError("write", path, c.pick(syscall.EIO, syscall.ENOSPC, syscall.EROFS))
	}

	return c.fs.WriteFileAtomic(path, data, perm)
}

func (c *Chaos) ReadDir(path string) ([]os.DirEntry, error) {
	if c.hit(c.config.ReadDirFailRate) {
		return nil, c.pathError("readdirent", path, c.pick(syscall.EACCES, syscall.EIO))
	}

	return c.fs.ReadDir(path)
}

func (c *Chaos) MkdirAll(path string, perm os.FileMode) error {
	if c.hit(c.config.MkdirAllFailRate) {
		return c.pathError("mkdir", path, c.pick(syscall.EACCES, syscall.EIO, syscall.ENOSPC, syscall.EROFS))
	}

	return c.fs.MkdirAll(path, perm)
}

func (c *Chaos) Stat(path string) (os.FileInfo, error) {
	if c.hit(c.config.StatFailRate) {
		return nil, c.pathError("stat", path, c.pick(syscall.EACCES, syscall.EIO))
	}

	return c.fs.Stat(path)
}

func (c *Chaos) Exists(path string) (bool, error) {
	if c.hit(c.config.StatFailRate) {
		return false, c.pathError("stat", path, c.pick(syscall.EACCES, syscall.EIO))
	}

	return c.fs.Exists(path)
}

func (c *Chaos) Remove(path string) error {
	if c.hit(c.config.RemoveFailRate) {
		return c.pathError("remove", path, c.pick(syscall.EACCES, syscall.EBUSY, syscall.EIO))
	}

	return c.fs.Remove(path)
}

func (c *Chaos) Rename(oldpath, newpath string) error {
	if c.hit(c.config.RenameFailRate) {
		return &linkError{
			op:  "rename",
			old: oldpath,
			new: newpath,
			err: c.pick(syscall.EIO, syscall.ENOSPC, syscall.EXDEV, syscall.EACCES),
		}
	}

	return c.fs.Rename(oldpath, newpath)
}

// Compile-time interface check.
var _ FS = (*Chaos)(nil)

// chaosFile wraps a [File] to inject read/write/sync/close failures.
type chaosFile struct {
	chaos *Chaos
	f     File
	path  string
}

var _ File = (*chaosFile)(nil)

func (cf *chaosFile) Read(p []byte) (int, error) {
	if cf.chaos.hit(cf.chaos.config.ReadFailRate) {
		return 0, cf.chaos.pathError("read", cf.path, syscall.EIO)
	}

	return cf.f.Read(p)
}

func (cf *chaosFile) Write(p []byte) (int, error) {
	c := cf.chaos

	if c.hit(c.config.WriteFailRate) {
		return 0, c.pathError("write", cf.path, c.pick(syscall.EIO, syscall.ENOSPC, syscall.EROFS))
	}

	if len(p) > 1 && c.hit(c.config.PartialWriteRate) {
		c.mu.Lock()
		n := 1 + c.rng.Intn(len(p)-1)
		c.mu.Unlock()

		written, err := cf.f.Write(p[:n])
		if err != nil {
			return written, err
		}

		return written, c.pathError("write", cf.path, c.pick(syscall.EIO, syscall.ENOSPC))
	}

	return cf.f.Write(p)
}

func (cf *chaosFile) Close() error {
	// Always close the real descriptor so chaos runs don't leak fds.
	err := cf.f.Close()

	if cf.chaos.hit(cf.chaos.config.CloseFailRate) {
		return cf.chaos.pathError("close", cf.path, syscall.EIO)
	}

	return err
}

func (cf *chaosFile) Fd() uintptr {
	return cf.f.Fd()
}

func (cf *chaosFile) Stat() (os.FileInfo, error) {
	return cf.f.Stat()
}

func (cf *chaosFile) Sync() error {
	if cf.chaos.hit(cf.chaos.config.SyncFailRate) {
		return cf.chaos.pathError("fsync", cf.path, cf.chaos.pick(syscall.EIO, syscall.ENOSPC, syscall.EROFS))
	}

	return cf.f.Sync()
}
