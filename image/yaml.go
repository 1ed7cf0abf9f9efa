package image

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ReadAssembly decodes a YAML assembly listing.
func ReadAssembly(r io.Reader) (*Module, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var m Module
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("image: assembly: %w", err)
	}
	return &m, nil
}

// WriteAssembly writes m as a YAML assembly listing.
func WriteAssembly(w io.Writer, m *Module) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("image: assembly: %w", err)
	}
	return enc.Close()
}

// Open loads a module from path: a YAML listing for .yaml and .yml files,
// a binary image otherwise.
func Open(path string) (*Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ReadAssembly(f)
	}
	return Read(f)
}
