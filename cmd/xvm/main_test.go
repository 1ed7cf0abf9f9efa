package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xtclang/xvm-sub023/manifest"
	"github.com/xtclang/xvm-sub023/vm"
)

// Constant operands: ConstArg(0) is -17, ConstArg(1) is -18 and so on.
const appListing = `name: app
version: 1.0.0
entry: Main.echo
constants:
  - kind: int
    int: 7
  - kind: method
    type: Lib
    name: seven
  - kind: method
    type: Console
    name: println
    params: 1
  - kind: string
    text: hi
types:
  - name: Main
    format: class
    methods:
      - name: seven
        kind: function
        returns: 1
        code:
          - op: RETURN_1
            operands: [-17]
      - name: echo
        kind: function
        params: 1
        returns: 1
        registers: 1
        code:
          - op: RETURN_1
            operands: [0]
      - name: viaLib
        kind: function
        returns: 1
        registers: 1
        code:
          - op: CALL_01
            operands: [-18, 0]
          - op: RETURN_1
            operands: [0]
      - name: hello
        kind: function
        code:
          - op: CALL_10
            operands: [-19, -20]
          - op: RETURN_0
`

const libListing = `name: lib
version: 2.1.0
constants:
  - kind: int
    int: 21
types:
  - name: Lib
    format: class
    methods:
      - name: seven
        kind: function
        returns: 1
        code:
          - op: RETURN_1
            operands: [-17]
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// project lays out an app depending on a lib and returns the app's
// manifest.
func project(t *testing.T) *manifest.Manifest {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "lib", "lib.yaml"), libListing)
	writeFile(t, filepath.Join(root, "lib", manifest.FileName), `
[project]
name = "lib"
version = "2.1.0"

[entry]
image = "lib.yaml"
`)
	writeFile(t, filepath.Join(root, "app", "app.yaml"), appListing)
	writeFile(t, filepath.Join(root, "app", manifest.FileName), `
[project]
name = "app"

[runtime]
workers = 2

[entry]
image = "app.yaml"

[dependencies]
lib = { path = "../lib", version = "^2" }
`)
	m, err := manifest.Load(filepath.Join(root, "app"))
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestExecute(t *testing.T) {
	tests := []struct {
		name  string
		entry string
		args  []string
		want  []vm.Value
	}{
		{"image entry", "", []string{"42"}, []vm.Value{vm.Int(42)}},
		{"string argument", "", []string{"forty"}, []vm.Value{vm.String("forty")}},
		{"flag entry", "Main.seven", nil, []vm.Value{vm.Int(7)}},
		{"dependency", "Main.viaLib", nil, []vm.Value{vm.Int(21)}},
	}
	for _, tt := range tests {
		m := project(t)
		var out bytes.Buffer
		got, err := execute(context.Background(), m, runOptions{entry: tt.entry, args: tt.args, stdout: &out})
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", tt.name, diff)
		}
	}
}

func TestExecuteWritesConsole(t *testing.T) {
	m := project(t)
	var out bytes.Buffer
	got, err := execute(context.Background(), m, runOptions{entry: "Main.hello", stdout: &out})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("results = %v, want none", got)
	}
	if out.String() != "hi\n" {
		t.Errorf("console = %q, want %q", out.String(), "hi\n")
	}
}

func TestExecuteErrors(t *testing.T) {
	m := project(t)
	tests := map[string]runOptions{
		"bad entry":      {entry: "seven"},
		"unknown type":   {entry: "Nope.run"},
		"missing image":  {image: filepath.Join(m.Dir, "missing.xvmi")},
		"unknown method": {entry: "Main.nothing"},
	}
	for name, opts := range tests {
		opts.stdout = &bytes.Buffer{}
		if _, err := execute(context.Background(), m, opts); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}

	bare := manifest.New(t.TempDir())
	_, err := execute(context.Background(), bare, runOptions{stdout: &bytes.Buffer{}})
	if err == nil || !strings.Contains(err.Error(), "no image") {
		t.Errorf("no image: err = %v", err)
	}
}

func TestExecuteRecordsJournal(t *testing.T) {
	m := project(t)
	_, err := execute(context.Background(), m, runOptions{entry: "Main.seven", journal: true, stdout: &bytes.Buffer{}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(m.JournalPath()); err != nil {
		t.Errorf("journal not written: %v", err)
	}
}

func TestAssembleAndDisassemble(t *testing.T) {
	m := project(t)
	listing := filepath.Join(m.Dir, "app.yaml")
	if err := assemble(listing, ""); err != nil {
		t.Fatalf("assemble failed: %v", err)
	}
	bin := filepath.Join(m.Dir, "app.xvmi")

	got, err := execute(context.Background(), m, runOptions{image: bin, entry: "Main.seven", stdout: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("running assembled image: %v", err)
	}
	if diff := cmp.Diff([]vm.Value{vm.Int(7)}, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	var out bytes.Buffer
	if err := disassemble(bin, "", &out); err != nil {
		t.Fatalf("disassemble failed: %v", err)
	}
	for _, want := range []string{"name: app", "op: CALL_01", "entry: Main.echo"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("listing lacks %q:\n%s", want, out.String())
		}
	}
}

func TestParseArg(t *testing.T) {
	tests := map[string]vm.Value{
		"12":    vm.Int(12),
		"-3":    vm.Int(-3),
		"true":  vm.Bool(true),
		"false": vm.Bool(false),
		"text":  vm.String("text"),
	}
	for in, want := range tests {
		if got := parseArg(in); got != want {
			t.Errorf("parseArg(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestPrintResults(t *testing.T) {
	var plain, tty bytes.Buffer
	results := []vm.Value{vm.Int(1), vm.String("two")}
	printResults(&plain, results, false)
	printResults(&tty, results, true)
	if plain.String() != "1\ntwo\n" {
		t.Errorf("plain = %q", plain.String())
	}
	if tty.String() != "=> 1\n=> two\n" {
		t.Errorf("tty = %q", tty.String())
	}
}

func TestLooksLikeImage(t *testing.T) {
	for arg, want := range map[string]bool{
		"app.xvmi": true, "app.yaml": true, "x.yml": true, "42": false, "main": false,
	} {
		if got := looksLikeImage(arg); got != want {
			t.Errorf("looksLikeImage(%q) = %v", arg, got)
		}
	}
}

func TestHelloExample(t *testing.T) {
	m, err := manifest.Load(filepath.Join("..", "..", "examples", "hello"))
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	got, err := execute(context.Background(), m, runOptions{stdout: &out})
	if err != nil {
		t.Fatal(err)
	}
	if out.String() != "Hello, world\n" {
		t.Errorf("console = %q", out.String())
	}
	if diff := cmp.Diff([]vm.Value{vm.Int(0)}, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}
