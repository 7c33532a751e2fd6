package statefile_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/calvinalkan/statefile"
	"github.com/calvinalkan/statefile/fs"
)

func TestInitTasks_RunOnceBeforeFirstValue(t *testing.T) {
	t.Parallel()

	path := statePath(t)

	var order []string

	st := openIntStore(t, path, statefile.Options[int]{
		InitTasks: []statefile.InitTask[int]{
			func(_ context.Context, api *statefile.InitAPI[int]) error {
				order = append(order, "seed")

				_, err := api.Update(func(int) (int, error) { return 10, nil })

				return err
			},
			func(_ context.Context, api *statefile.InitAPI[int]) error {
				order = append(order, "bump")

				v, err := api.Get()
				if err != nil {
					return err
				}

				if v != 10 {
					t.Errorf("second task sees %d, want 10", v)
				}

				_, err = api.Update(func(v int) (int, error) { return v + 1, nil })

				return err
			},
		},
	})

	got, err := st.Get(t.Context())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if got != 11 {
		t.Fatalf("Get=%d, want 11", got)
	}

	if strings.Join(order, ",") != "seed,bump" {
		t.Fatalf("task order=%v, want seed,bump", order)
	}

	// Tasks ran before the value became observable, and exactly once.
	_, err = st.Update(t.Context(), func(v int) (int, error) { return v + 1, nil })
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if len(order) != 2 {
		t.Fatalf("tasks re-ran: %v", order)
	}

	if v := decodeIntFile(t, path); v != 12 {
		t.Fatalf("on-disk value=%d, want 12", v)
	}
}

func TestInitTasks_RetryFromStartAfterFailure(t *testing.T) {
	t.Parallel()

	errFlaky := errors.New("flaky bootstrap")

	var (
		firstRuns  atomic.Int32
		secondRuns atomic.Int32
	)

	st := openIntStore(t, statePath(t), statefile.Options[int]{
		InitTasks: []statefile.InitTask[int]{
			func(_ context.Context, api *statefile.InitAPI[int]) error {
				firstRuns.Add(1)

				_, err := api.Update(func(int) (int, error) { return 5, nil })

				return err
			},
			func(context.Context, *statefile.InitAPI[int]) error {
				if secondRuns.Add(1) == 1 {
					return errFlaky
				}

				return nil
			},
		},
	})

	_, err := st.Get(t.Context())
	if !errors.Is(err, errFlaky) {
		t.Fatalf("Get err=%v, want errFlaky", err)
	}

	// The next message re-runs the whole list from the start.
	got, err := st.Get(t.Context())
	if err != nil {
		t.Fatalf("Get after retry: %v", err)
	}

	if got != 5 {
		t.Fatalf("Get=%d, want 5", got)
	}

	if firstRuns.Load() != 2 || secondRuns.Load() != 2 {
		t.Fatalf("task runs=%d/%d, want 2/2", firstRuns.Load(), secondRuns.Load())
	}
}

func TestInitAPI_RejectsUseAfterCompletion(t *testing.T) {
	t.Parallel()

	var leaked *statefile.InitAPI[int]

	st := openIntStore(t, statePath(t), statefile.Options[int]{
		InitTasks: []statefile.InitTask[int]{
			func(_ context.Context, api *statefile.InitAPI[int]) error {
				leaked = api

				return nil
			},
		},
	})

	_, err := st.Get(t.Context())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	_, err = leaked.Get()
	if !errors.Is(err, statefile.ErrInitClosed) {
		t.Fatalf("leaked Get err=%v, want ErrInitClosed", err)
	}

	_, err = leaked.Update(func(v int) (int, error) { return v, nil })
	if !errors.Is(err, statefile.ErrInitClosed) {
		t.Fatalf("leaked Update err=%v, want ErrInitClosed", err)
	}
}

func TestInitTasks_PersistOnlyOnChange(t *testing.T) {
	t.Parallel()

	path := statePath(t)

	scratchOpens := 0
	fsys := &hookFS{FS: fs.NewReal()}
	fsys.openFile = func(p string, flag int, perm os.FileMode) (fs.File, error) {
		if strings.HasSuffix(p, ".tmp") {
			scratchOpens++
		}

		return fs.NewReal().OpenFile(p, flag, perm)
	}

	st := openIntStore(t, path, statefile.Options[int]{
		FS: fsys,
		InitTasks: []statefile.InitTask[int]{
			func(_ context.Context, api *statefile.InitAPI[int]) error {
				// Identity: must not touch the disk.
				_, err := api.Update(func(v int) (int, error) { return v, nil })

				return err
			},
		},
	})

	got, err := st.Get(t.Context())
	if err != nil || got != 0 {
		t.Fatalf("Get=%d err=%v, want 0", got, err)
	}

	if scratchOpens != 0 {
		t.Fatalf("identity init update wrote %d times, want 0", scratchOpens)
	}

	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatalf("state file should not exist, stat err=%v", statErr)
	}
}
