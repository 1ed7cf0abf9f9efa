package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/xtclang/xvm-sub023/image"
	"github.com/xtclang/xvm-sub023/lib/journal"
)

// asmCommand handles `xvm asm`: a YAML listing in, a binary image out.
func asmCommand(args []string) int {
	fs := flag.NewFlagSet("asm", flag.ExitOnError)
	out := fs.String("o", "", "Output image (default: input with .xvmi extension)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: xvm asm [-o image.xvmi] <listing.yaml>")
		return 1
	}
	if err := assemble(fs.Arg(0), *out); err != nil {
		return fail("%v", err)
	}
	return 0
}

// assemble converts the listing at in to a binary image. An empty out
// replaces in's extension with .xvmi.
func assemble(in, out string) error {
	mod, err := image.Open(in)
	if err != nil {
		return err
	}
	if err := image.CheckEngine(mod); err != nil {
		return err
	}
	if out == "" {
		out = strings.TrimSuffix(in, filepath.Ext(in)) + ".xvmi"
	}
	return image.WriteFile(out, mod)
}

// disasmCommand handles `xvm disasm`: any image in, a YAML listing out.
func disasmCommand(args []string) int {
	fs := flag.NewFlagSet("disasm", flag.ExitOnError)
	out := fs.String("o", "", "Output listing (default: standard output)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: xvm disasm [-o listing.yaml] <image.xvmi>")
		return 1
	}
	if err := disassemble(fs.Arg(0), *out, os.Stdout); err != nil {
		return fail("%v", err)
	}
	return 0
}

func disassemble(in, out string, stdout io.Writer) error {
	mod, err := image.Open(in)
	if err != nil {
		return err
	}
	if out == "" {
		return image.WriteAssembly(stdout, mod)
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := image.WriteAssembly(f, mod); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// journalCommand handles `xvm journal`: recent snapshots of one service.
func journalCommand(args []string) int {
	fs := flag.NewFlagSet("journal", flag.ExitOnError)
	dir := fs.String("C", ".", "Project directory")
	count := fs.Int("n", 10, "Number of snapshots to show")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: xvm journal [-C dir] [-n count] <service>")
		return 1
	}

	m, err := loadProject(*dir)
	if err != nil {
		return fail("%v", err)
	}
	j, err := journal.Open(m.JournalPath())
	if err != nil {
		return fail("%v", err)
	}
	defer j.Close()

	snaps, err := j.History(context.Background(), fs.Arg(0), *count)
	if err != nil {
		return fail("%v", err)
	}
	if len(snaps) == 0 {
		fmt.Printf("No snapshots of %s in %s\n", fs.Arg(0), j.Path())
		return 0
	}
	printSnapshots(os.Stdout, snaps)
	return 0
}

func printSnapshots(w io.Writer, snaps []journal.Snapshot) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TAKEN\tSTATUS\tUPTIME\tCPU\tOPS\tREQUESTS\tQUEUED\tCONTENDED")
	for _, s := range snaps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			s.Taken.Format(time.DateTime), s.StatusName,
			s.Uptime.Round(time.Millisecond), s.CPU.Round(time.Microsecond),
			s.Ops, s.Requests, s.Queued, s.Contended)
	}
	tw.Flush()
}
