// Package statefile provides a single-process, typed, on-disk document
// store: one logical value per file, durable atomic writes, strictly
// serialized read-modify-write updates, and a live conflated stream of the
// current value for any number of observers.
//
// Basic usage:
//
//	type Settings struct {
//		Theme string `json:"theme"`
//	}
//
//	st, err := statefile.Open("app/settings.json", statefile.JSON[Settings](), statefile.Options[Settings]{})
//	if err != nil {
//		return err
//	}
//	defer st.Close()
//
//	cur, err := st.Update(ctx, func(s Settings) (Settings, error) {
//		s.Theme = "dark"
//		return s, nil
//	})
//
//	for v, err := range st.Watch(ctx) {
//		if err != nil {
//			return err
//		}
//		apply(v)
//	}
//
// Values must be treated as immutable once they have passed through the
// store; transforms receive a value and return a new one. Mutating a value
// in place is detected best-effort via a fingerprint and reported as
// [ErrValueMutated].
//
// The store is safe for concurrent use by multiple goroutines within one
// process. Nothing guards the file against other processes; callers that
// need cross-process exclusion can use [github.com/calvinalkan/statefile/fs.Flock].
package statefile
