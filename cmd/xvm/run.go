package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"

	"github.com/xtclang/xvm-sub023/image"
	"github.com/xtclang/xvm-sub023/lib/journal"
	"github.com/xtclang/xvm-sub023/lib/natives"
	"github.com/xtclang/xvm-sub023/manifest"
	"github.com/xtclang/xvm-sub023/server"
	"github.com/xtclang/xvm-sub023/vm"
)

var log = commonlog.GetLogger("xvm.cli")

// runOptions collects the run command's flags.
type runOptions struct {
	dir       string
	image     string
	entry     string
	args      []string
	verbosity int
	logFile   string
	serve     bool
	addr      string
	journal   bool
	stdout    io.Writer
}

func runCommand(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	fs.Usage = usage
	var opts runOptions
	fs.StringVar(&opts.dir, "C", ".", "Project directory")
	fs.StringVar(&opts.entry, "m", "", "Entry function (e.g., 'Main.run')")
	fs.IntVar(&opts.verbosity, "v", 0, "Log verbosity (0 errors only, 1 info, 2 debug)")
	fs.StringVar(&opts.logFile, "log", "", "Write the log to a file")
	fs.BoolVar(&opts.serve, "serve", false, "Serve gRPC health after the entry returns")
	fs.StringVar(&opts.addr, "addr", "", "Health server address (used with -serve)")
	fs.BoolVar(&opts.journal, "journal", false, "Record service snapshots while running")
	fs.Parse(args)

	rest := fs.Args()
	if len(rest) > 0 && !strings.HasPrefix(rest[0], "-") && looksLikeImage(rest[0]) {
		opts.image, rest = rest[0], rest[1:]
	}
	opts.args = rest
	opts.stdout = os.Stdout

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	m, err := loadProject(opts.dir)
	if err != nil {
		return fail("%v", err)
	}
	if !set["v"] {
		opts.verbosity = m.Log.Level
	}
	if !set["log"] && m.Log.File != "" {
		opts.logFile = m.Path(m.Log.File)
	}
	configureLogging(opts.verbosity, opts.logFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := execute(ctx, m, opts)
	if err != nil {
		var uncaught *vm.UncaughtError
		if errors.As(err, &uncaught) {
			return fail("uncaught %s: %s", uncaught.TypeName(), vm.ExceptionText(uncaught.Exception))
		}
		return fail("%v", err)
	}
	printResults(opts.stdout, results, isTerminal(os.Stdout))
	return 0
}

// looksLikeImage reports whether arg names an image rather than an entry
// argument.
func looksLikeImage(arg string) bool {
	switch {
	case strings.HasSuffix(arg, ".xvmi"), strings.HasSuffix(arg, ".yaml"), strings.HasSuffix(arg, ".yml"):
		return true
	}
	return false
}

// loadProject loads the nearest manifest above dir, or an empty one
// rooted at dir when there is none.
func loadProject(dir string) (*manifest.Manifest, error) {
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.New(dir)
	}
	return m, nil
}

// execute builds an engine for m, loads its dependencies and image, and
// calls the entry function.
func execute(ctx context.Context, m *manifest.Manifest, opts runOptions) ([]vm.Value, error) {
	v := vm.NewVM(m.Config(), natives.New(opts.stdout))
	v.Start(ctx)
	defer func() {
		if err := v.Stop(); err != nil {
			log.Warningf("stopping engine: %s", err)
		}
	}()

	deps, err := manifest.NewResolver(m).Resolve()
	if err != nil {
		return nil, err
	}
	for _, dep := range deps {
		if dep.Image() == "" {
			continue
		}
		if _, err := loadImage(v, dep.Image()); err != nil {
			return nil, fmt.Errorf("dependency %s: %w", dep.Name, err)
		}
	}

	path := opts.image
	if path == "" {
		path = m.ImagePath()
	}
	if path == "" {
		return nil, errors.New("no image given and no [entry] image in " + manifest.FileName)
	}
	mod, err := loadImage(v, path)
	if err != nil {
		return nil, err
	}

	entry := opts.entry
	switch {
	case entry != "":
	case m.Entry.Function != "":
		entry = m.Entry.Function
	case mod.Entry != "":
		entry = mod.Entry
	default:
		entry = "Main.run"
	}
	typeName, name, ok := strings.Cut(entry, ".")
	if !ok {
		return nil, fmt.Errorf("entry %q is not of the form Type.name", entry)
	}

	if opts.journal || m.Journal.Enabled {
		j, err := journal.Open(m.JournalPath())
		if err != nil {
			return nil, err
		}
		defer j.Close()
		jctx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			j.Run(jctx, v, m.Journal.Interval.Duration)
		}()
		defer func() {
			cancel()
			<-done
		}()
	}

	var srv *server.HealthServer
	if opts.serve || m.Server.Enabled {
		addr := opts.addr
		if addr == "" {
			addr = m.Server.Address
		}
		srv = server.New(v)
		go func() {
			if err := srv.ListenAndServe(ctx, addr); err != nil {
				log.Errorf("health server: %s", err)
			}
		}()
		defer srv.Stop()
	}

	args := opts.args
	if len(args) == 0 {
		args = m.Entry.Args
	}
	values := make([]vm.Value, len(args))
	for i, a := range args {
		values[i] = parseArg(a)
	}

	log.Infof("running %s", entry)
	results, err := v.CallFunction(ctx, typeName, name, values...)
	if err != nil {
		return nil, err
	}

	if srv != nil {
		log.Infof("serving health; interrupt to stop")
		<-ctx.Done()
	}
	return results, nil
}

// loadImage opens, links and loads the image at path.
func loadImage(v *vm.VM, path string) (*image.Module, error) {
	mod, err := image.Open(path)
	if err != nil {
		return nil, err
	}
	prog, err := image.Link(mod, v.Registry())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := v.Load(prog); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return mod, nil
}

// parseArg converts a command-line argument to an Int or Boolean where it
// reads as one, and to a String otherwise.
func parseArg(s string) vm.Value {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return vm.Int(n)
	}
	switch s {
	case "true":
		return vm.Bool(true)
	case "false":
		return vm.Bool(false)
	}
	return vm.String(s)
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// printResults writes one result per line; on a terminal each is prefixed
// with "=> ".
func printResults(w io.Writer, results []vm.Value, tty bool) {
	for _, r := range results {
		if tty {
			fmt.Fprintf(w, "=> %s\n", r)
		} else {
			fmt.Fprintln(w, r)
		}
	}
}
