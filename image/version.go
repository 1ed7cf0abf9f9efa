package image

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/xtclang/xvm-sub023/vm"
)

var engineVersion = semver.MustParse(vm.Version)

// CheckEngine reports whether m can run on this engine. A module without
// an engine constraint runs anywhere; a module version, when present, must
// be a semantic version.
func CheckEngine(m *Module) error {
	if m.Version != "" {
		if _, err := semver.NewVersion(m.Version); err != nil {
			return fmt.Errorf("%w: %s: bad module version %q", ErrIncompatibleImage, m.Name, m.Version)
		}
	}
	if m.Engine == "" {
		return nil
	}
	c, err := semver.NewConstraint(m.Engine)
	if err != nil {
		return fmt.Errorf("%w: %s: bad engine constraint %q: %v", ErrIncompatibleImage, m.Name, m.Engine, err)
	}
	if ok, errs := c.Validate(engineVersion); !ok {
		return fmt.Errorf("%w: %s requires engine %s, have %s: %v",
			ErrIncompatibleImage, m.Name, m.Engine, engineVersion, errs)
	}
	return nil
}
