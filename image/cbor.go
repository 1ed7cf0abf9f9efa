package image

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// Magic starts every binary image.
const Magic = "XVMI"

// FormatVersion is the binary layout version written by Marshal.
const FormatVersion = 1

var (
	// ErrInvalidMagic is returned for data that is not an image.
	ErrInvalidMagic = errors.New("invalid magic number: expected " + Magic)
	// ErrFormatVersion is returned for an image of another layout version.
	ErrFormatVersion = errors.New("image format version mismatch")
)

// envelope is the top-level CBOR value after the magic.
type envelope struct {
	Format uint    `cbor:"1,keyasint"`
	Module *Module `cbor:"2,keyasint"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal encodes m as a binary image. The encoding is canonical, so equal
// modules produce equal bytes.
func Marshal(m *Module) ([]byte, error) {
	body, err := cborEncMode.Marshal(envelope{Format: FormatVersion, Module: m})
	if err != nil {
		return nil, fmt.Errorf("image: marshal %s: %w", m.Name, err)
	}
	return append([]byte(Magic), body...), nil
}

// Unmarshal decodes a binary image.
func Unmarshal(data []byte) (*Module, error) {
	if !bytes.HasPrefix(data, []byte(Magic)) {
		return nil, ErrInvalidMagic
	}
	var env envelope
	if err := cbor.Unmarshal(data[len(Magic):], &env); err != nil {
		return nil, fmt.Errorf("image: unmarshal: %w", err)
	}
	if env.Format != FormatVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrFormatVersion, env.Format, FormatVersion)
	}
	if env.Module == nil {
		return nil, fmt.Errorf("image: unmarshal: no module")
	}
	return env.Module, nil
}

// Read decodes a binary image from r.
func Read(r io.Reader) (*Module, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}

// WriteFile writes m as a binary image to path.
func WriteFile(path string, m *Module) error {
	data, err := Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
