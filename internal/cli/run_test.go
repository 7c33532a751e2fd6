package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// runCLI invokes Run the way main does, against a temp working directory.
func runCLI(t *testing.T, dir string, args ...string) (int, string, string) {
	t.Helper()

	var out, errOut bytes.Buffer

	env := map[string]string{"XDG_CONFIG_HOME": t.TempDir()}
	argv := append([]string{"statefile", "-C", dir}, args...)

	code := Run(strings.NewReader(""), &out, &errOut, argv, env, nil)

	return code, out.String(), errOut.String()
}

func TestRun_SetGetMergeRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	code, _, errOut := runCLI(t, dir, "-f", "state.json", "set", `{"name":"ada","count":1}`)
	if code != 0 {
		t.Fatalf("set exit=%d stderr=%q", code, errOut)
	}

	code, out, errOut := runCLI(t, dir, "-f", "state.json", "get")
	if code != 0 {
		t.Fatalf("get exit=%d stderr=%q", code, errOut)
	}

	if !strings.Contains(out, `"name":"ada"`) || !strings.Contains(out, `"count":1`) {
		t.Fatalf("get output=%q", out)
	}

	// Merge replaces one key and deletes another via null.
	code, _, errOut = runCLI(t, dir, "-f", "state.json", "merge", `{"count":2,"name":null}`)
	if code != 0 {
		t.Fatalf("merge exit=%d stderr=%q", code, errOut)
	}

	code, out, _ = runCLI(t, dir, "-f", "state.json", "get")
	if code != 0 {
		t.Fatalf("get exit=%d", code)
	}

	if strings.Contains(out, "ada") || !strings.Contains(out, `"count":2`) {
		t.Fatalf("merged output=%q", out)
	}
}

func TestRun_GetOnMissingFilePrintsEmptyDocument(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	code, out, errOut := runCLI(t, dir, "-f", "state.json", "get")
	if code != 0 {
		t.Fatalf("get exit=%d stderr=%q", code, errOut)
	}

	if strings.TrimSpace(out) != "{}" {
		t.Fatalf("get output=%q, want {}", out)
	}

	// Reads never create the file.
	if _, err := os.Stat(filepath.Join(dir, "state.json")); !os.IsNotExist(err) {
		t.Fatalf("state file should not exist, stat err=%v", err)
	}
}

func TestRun_WatchCountEmitsCurrentValue(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	code, _, errOut := runCLI(t, dir, "-f", "state.json", "set", `{"v":1}`)
	if code != 0 {
		t.Fatalf("set exit=%d stderr=%q", code, errOut)
	}

	code, out, errOut := runCLI(t, dir, "-f", "state.json", "watch", "--count", "1")
	if code != 0 {
		t.Fatalf("watch exit=%d stderr=%q", code, errOut)
	}

	if !strings.Contains(out, `"v":1`) {
		t.Fatalf("watch output=%q", out)
	}
}

func TestRun_ConfigFileDrivesCommands(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(`{
	// state lives next to the config
	"file": "nested/doc.json",
	"lock": true,
}`), 0o644)
	if err != nil {
		t.Fatalf("write config: %v", err)
	}

	code, _, errOut := runCLI(t, dir, "set", `{"ok":true}`)
	if code != 0 {
		t.Fatalf("set exit=%d stderr=%q", code, errOut)
	}

	data, err := os.ReadFile(filepath.Join(dir, "nested", "doc.json"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if !strings.Contains(string(data), `"ok":true`) {
		t.Fatalf("on-disk=%q", string(data))
	}
}

func TestRun_CorruptFileFailsGetWithoutResetFlag(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	err := os.WriteFile(filepath.Join(dir, "state.json"), []byte("garbage"), 0o644)
	if err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	code, _, errOut := runCLI(t, dir, "-f", "state.json", "get")
	if code == 0 {
		t.Fatal("get on corrupt file should fail")
	}

	if !strings.Contains(errOut, "corrupt") {
		t.Fatalf("stderr=%q, want corruption diagnostic", errOut)
	}

	// With --reset-corrupt the document is replaced and a warning flags it.
	code, out, errOut := runCLI(t, dir, "-f", "state.json", "get", "--reset-corrupt")
	if code != 1 {
		t.Fatalf("reset get exit=%d, want 1 (warning)", code)
	}

	if strings.TrimSpace(strings.Split(out, "\n")[0]) != "{}" {
		t.Fatalf("reset get output=%q, want {}", out)
	}

	if !strings.Contains(errOut, "warning") {
		t.Fatalf("stderr=%q, want warning", errOut)
	}
}

func TestRun_UnknownCommandFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	code, _, errOut := runCLI(t, dir, "-f", "state.json", "frobnicate")
	if code != 1 {
		t.Fatalf("exit=%d, want 1", code)
	}

	if !strings.Contains(errOut, "unknown command") {
		t.Fatalf("stderr=%q", errOut)
	}
}

func TestRun_InitWritesStarterConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	// init must work without an existing config; it is exempt from the
	// file requirement via the --file override.
	code, out, errOut := runCLI(t, dir, "-f", "state.json", "init")
	if code != 0 {
		t.Fatalf("init exit=%d stderr=%q", code, errOut)
	}

	if !strings.Contains(out, ConfigFileName) {
		t.Fatalf("init output=%q", out)
	}

	if _, err := os.Stat(filepath.Join(dir, ConfigFileName)); err != nil {
		t.Fatalf("config not written: %v", err)
	}

	// Second init refuses to clobber.
	code, _, errOut = runCLI(t, dir, "-f", "state.json", "init")
	if code != 1 || !strings.Contains(errOut, "already exists") {
		t.Fatalf("second init exit=%d stderr=%q", code, errOut)
	}
}
