package statefile_test

import (
	"bufio"
	"io"
	"os"
	"testing"

	"github.com/calvinalkan/statefile"
)

// closingSerializer encodes a string and deliberately closes the sink
// halfway through, like a careless serializer wrapping the writer in its
// own closer.
type closingSerializer struct{}

func (closingSerializer) DefaultValue() string {
	return ""
}

func (closingSerializer) ReadFrom(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

func (closingSerializer) WriteTo(v string, w io.Writer) error {
	half := len(v) / 2

	_, err := io.WriteString(w, v[:half])
	if err != nil {
		return err
	}

	if closer, ok := w.(io.Closer); ok {
		closeErr := closer.Close()
		if closeErr != nil {
			return closeErr
		}
	}

	// Bytes written after the close must still be accepted; the store owns
	// close timing, not the serializer.
	buffered := bufio.NewWriter(w)

	_, err = buffered.WriteString(v[half:])
	if err != nil {
		return err
	}

	return buffered.Flush()
}

func TestPersist_SerializerCannotCloseScratchFile(t *testing.T) {
	t.Parallel()

	path := statePath(t)

	st, err := statefile.Open(path, closingSerializer{}, statefile.Options[string]{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	t.Cleanup(func() { _ = st.Close() })

	const payload = "both halves must survive the close"

	got, err := st.Update(t.Context(), func(string) (string, error) {
		return payload, nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if got != payload {
		t.Fatalf("Update=%q, want %q", got, payload)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(data) != payload {
		t.Fatalf("on-disk=%q, want %q: the serializer's close truncated the write", string(data), payload)
	}
}
