// XVM CLI - runs linked program images and manages their encodings.
package main

import (
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/xtclang/xvm-sub023/vm"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: xvm [run] [options] [image] [args...]\n")
	fmt.Fprintf(os.Stderr, "       xvm asm [-o image.xvmi] <listing.yaml>\n")
	fmt.Fprintf(os.Stderr, "       xvm disasm [-o listing.yaml] <image.xvmi>\n")
	fmt.Fprintf(os.Stderr, "       xvm journal [-C dir] [-n count] <service>\n")
	fmt.Fprintf(os.Stderr, "       xvm version\n\n")
	fmt.Fprintf(os.Stderr, "Runs the entry function of an image. Without an image argument the\n")
	fmt.Fprintf(os.Stderr, "image named by the nearest %s is used.\n\n", "xvm.toml")
	fmt.Fprintf(os.Stderr, "Examples:\n")
	fmt.Fprintf(os.Stderr, "  xvm                          # run the project in the current directory\n")
	fmt.Fprintf(os.Stderr, "  xvm -m Main.start app.xvmi 3 # run Main.start(3) from app.xvmi\n")
	fmt.Fprintf(os.Stderr, "  xvm -serve                   # run, then serve health until interrupted\n")
	fmt.Fprintf(os.Stderr, "  xvm asm app.yaml             # assemble app.yaml into app.xvmi\n")
}

func main() {
	args := os.Args[1:]
	if len(args) > 0 {
		switch args[0] {
		case "run":
			os.Exit(runCommand(args[1:]))
		case "asm":
			os.Exit(asmCommand(args[1:]))
		case "disasm":
			os.Exit(disasmCommand(args[1:]))
		case "journal":
			os.Exit(journalCommand(args[1:]))
		case "version":
			fmt.Printf("xvm %s\n", vm.Version)
			os.Exit(0)
		case "help", "-h", "--help":
			usage()
			os.Exit(0)
		}
	}
	os.Exit(runCommand(args))
}

// configureLogging sets the commonlog verbosity; file, when set, receives
// the log instead of standard error.
func configureLogging(verbosity int, file string) {
	var path *string
	if file != "" {
		path = &file
	}
	commonlog.Configure(verbosity, path)
}

func fail(format string, args ...any) int {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	return 1
}
