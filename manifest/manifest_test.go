package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/xtclang/xvm-sub023/vm"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "counter"
version = "0.1.0"

[runtime]
workers = 2
quantum = 500
max-depth = 128
inbox-limit = 64
reentrancy = "exclusive"
timeout = "2s"

[entry]
image = "build/counter.xvmi"
function = "Main.start"
args = ["10"]

[log]
level = 2
file = "xvm.log"

[server]
enabled = true
address = ":7000"

[journal]
enabled = true
path = "state/journal.db"
interval = "250ms"

[dependencies]
helper = { path = "../helper", version = "^1.0" }
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "counter" || m.Project.Version != "0.1.0" {
		t.Errorf("project = %+v", m.Project)
	}
	want := vm.Config{
		Workers: 2, Quantum: 500, MaxDepth: 128, InboxLimit: 64,
		Reentrancy: vm.ReentrancyExclusive, Timeout: 2 * time.Second,
	}
	if diff := cmp.Diff(want, m.Config()); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if m.Entry.Function != "Main.start" || len(m.Entry.Args) != 1 {
		t.Errorf("entry = %+v", m.Entry)
	}
	if got := m.ImagePath(); got != filepath.Join(m.Dir, "build", "counter.xvmi") {
		t.Errorf("image path = %q", got)
	}
	if m.Log.Level != 2 || m.Log.File != "xvm.log" {
		t.Errorf("log = %+v", m.Log)
	}
	if !m.Server.Enabled || m.Server.Address != ":7000" {
		t.Errorf("server = %+v", m.Server)
	}
	if !m.Journal.Enabled || m.Journal.Interval.Duration != 250*time.Millisecond {
		t.Errorf("journal = %+v", m.Journal)
	}
	if got := m.JournalPath(); got != filepath.Join(m.Dir, "state", "journal.db") {
		t.Errorf("journal path = %q", got)
	}
	if dep, ok := m.Dependencies["helper"]; !ok || dep.Path != "../helper" || dep.Version != "^1.0" {
		t.Errorf("helper dep = %+v", m.Dependencies["helper"])
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Entry.Function != "" {
		t.Errorf("entry function = %q, want none", m.Entry.Function)
	}
	if m.Server.Address != "localhost:50051" {
		t.Errorf("server address = %q", m.Server.Address)
	}
	if m.Journal.Interval.Duration != 5*time.Second {
		t.Errorf("journal interval = %s", m.Journal.Interval)
	}
	if diff := cmp.Diff(vm.DefaultConfig(), m.Config()); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadManifestErrors(t *testing.T) {
	tests := map[string]string{
		"unknown key":  "[runtime]\nthreads = 4\n",
		"bad duration": "[journal]\ninterval = \"soon\"\n",
		"syntax":       "[project\n",
		"reentrancy":   "[runtime]\nreentrancy = \"sometimes\"\n",
	}
	for name, content := range tests {
		dir := t.TempDir()
		writeManifest(t, dir, content)
		if _, err := Load(dir); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}

	if _, err := Load(t.TempDir()); err == nil || !strings.Contains(err.Error(), "cannot read") {
		t.Errorf("missing file: err = %v", err)
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "[project]\nname = \"root\"\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil || m.Project.Name != "root" {
		t.Fatalf("found %+v, want the root manifest", m)
	}
}

func TestFindAndLoadNone(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	// A manifest above the temp dir is possible but unlikely; only a
	// manifest in the temp dir itself would be wrong.
	if m != nil && strings.HasPrefix(m.Dir, os.TempDir()) {
		t.Errorf("found unexpected manifest in %s", m.Dir)
	}
}
