// Package manifest handles xvm.toml runtime configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/xtclang/xvm-sub023/vm"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "xvm.toml"

// Manifest represents an xvm.toml configuration.
type Manifest struct {
	Project      Project               `toml:"project"`
	Runtime      Runtime               `toml:"runtime"`
	Entry        Entry                 `toml:"entry"`
	Log          Log                   `toml:"log"`
	Server       Server                `toml:"server"`
	Journal      Journal               `toml:"journal"`
	Dependencies map[string]Dependency `toml:"dependencies"`

	// Dir is the directory containing the xvm.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Runtime configures the engine. Zero values take vm.DefaultConfig.
type Runtime struct {
	Workers    int    `toml:"workers"`
	Quantum    int    `toml:"quantum"`
	MaxDepth   int    `toml:"max-depth"`
	InboxLimit int    `toml:"inbox-limit"`
	Reentrancy string `toml:"reentrancy"`
	// Timeout bounds every call between services ("2s"); unset means none.
	Timeout Duration `toml:"timeout"`
}

// Entry names the image and function to run. An empty Function defers to
// the image's own entry.
type Entry struct {
	Image    string   `toml:"image"`
	Function string   `toml:"function"`
	Args     []string `toml:"args"`
}

// Log configures logging.
type Log struct {
	Level int    `toml:"level"`
	File  string `toml:"file"`
}

// Server configures the health endpoint.
type Server struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
}

// Journal configures service snapshots.
type Journal struct {
	Enabled  bool     `toml:"enabled"`
	Path     string   `toml:"path"`
	Interval Duration `toml:"interval"`
}

// Duration is a time.Duration written as a string ("5s").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Load parses an xvm.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}
	if _, err := vm.ParseReentrancy(m.Runtime.Reentrancy); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	m.applyDefaults()
	return &m, nil
}

// New returns a manifest rooted at dir with every default applied, for
// running without an xvm.toml.
func New(dir string) *Manifest {
	m := &Manifest{Dir: dir}
	if abs, err := filepath.Abs(dir); err == nil {
		m.Dir = abs
	}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Server.Address == "" {
		m.Server.Address = "localhost:50051"
	}
	if m.Journal.Path == "" {
		m.Journal.Path = filepath.Join(".xvm", "journal.db")
	}
	if m.Journal.Interval.Duration == 0 {
		m.Journal.Interval.Duration = 5 * time.Second
	}
}

// FindAndLoad walks up from startDir to find an xvm.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Config returns the engine configuration, starting from vm.DefaultConfig.
func (m *Manifest) Config() vm.Config {
	cfg := vm.DefaultConfig()
	if m.Runtime.Workers > 0 {
		cfg.Workers = m.Runtime.Workers
	}
	if m.Runtime.Quantum > 0 {
		cfg.Quantum = m.Runtime.Quantum
	}
	if m.Runtime.MaxDepth > 0 {
		cfg.MaxDepth = m.Runtime.MaxDepth
	}
	if m.Runtime.InboxLimit > 0 {
		cfg.InboxLimit = m.Runtime.InboxLimit
	}
	if r, err := vm.ParseReentrancy(m.Runtime.Reentrancy); err == nil {
		cfg.Reentrancy = r
	}
	cfg.Timeout = m.Runtime.Timeout.Duration
	return cfg
}

// Path resolves p against the manifest directory.
func (m *Manifest) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// ImagePath returns the absolute path of the entry image.
func (m *Manifest) ImagePath() string {
	return m.Path(m.Entry.Image)
}

// JournalPath returns the absolute path of the journal database.
func (m *Manifest) JournalPath() string {
	return m.Path(m.Journal.Path)
}
