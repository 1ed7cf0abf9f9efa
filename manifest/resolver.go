package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/Masterminds/semver/v3"
)

// Dependency is another project whose image is linked before this one.
type Dependency struct {
	Path    string `toml:"path"`
	Version string `toml:"version"` // semantic version constraint on the project's version
}

// ResolvedDep represents a dependency that has been resolved to a local path.
type ResolvedDep struct {
	Name      string    // dependency name
	LocalPath string    // local filesystem path
	Manifest  *Manifest // the dependency's own manifest (may be nil)
}

// Image returns the dependency's entry image, or "" if it has none.
func (d ResolvedDep) Image() string {
	if d.Manifest == nil {
		return ""
	}
	return d.Manifest.ImagePath()
}

// Resolver manages dependency resolution.
type Resolver struct {
	manifest *Manifest
}

// NewResolver creates a new dependency resolver.
func NewResolver(m *Manifest) *Resolver {
	return &Resolver{manifest: m}
}

// Resolve resolves all dependencies and returns them in load order
// (topologically sorted: dependencies before dependents).
func (r *Resolver) Resolve() ([]ResolvedDep, error) {
	resolved := make(map[string]*ResolvedDep)
	visiting := make(map[string]bool)
	return r.resolveAll(r.manifest, resolved, visiting)
}

// resolveAll resolves the dependencies of m recursively. Names are visited
// in sorted order so the load order is stable.
func (r *Resolver) resolveAll(m *Manifest, resolved map[string]*ResolvedDep, visiting map[string]bool) ([]ResolvedDep, error) {
	names := make([]string, 0, len(m.Dependencies))
	for name := range m.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)

	var order []ResolvedDep
	for _, name := range names {
		if _, ok := resolved[name]; ok {
			continue // already resolved
		}
		if visiting[name] {
			return nil, fmt.Errorf("dependency cycle through %s", name)
		}

		rd, err := resolveOne(m, name, m.Dependencies[name])
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", name, err)
		}

		// Check for transitive dependencies
		if rd.Manifest != nil && len(rd.Manifest.Dependencies) > 0 {
			visiting[name] = true
			transitive, err := r.resolveAll(rd.Manifest, resolved, visiting)
			delete(visiting, name)
			if err != nil {
				return nil, err
			}
			order = append(order, transitive...)
		}

		resolved[name] = rd
		order = append(order, *rd)
	}
	return order, nil
}

// resolveOne resolves a single path dependency of m.
func resolveOne(m *Manifest, name string, dep Dependency) (*ResolvedDep, error) {
	if dep.Path == "" {
		return nil, fmt.Errorf("dependency %q has no path specified", name)
	}
	localPath, err := filepath.Abs(m.Path(dep.Path))
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", dep.Path, err)
	}
	if _, err := os.Stat(localPath); err != nil {
		return nil, fmt.Errorf("local dependency %q not found at %s: %w", name, localPath, err)
	}

	var depManifest *Manifest
	if _, err := os.Stat(filepath.Join(localPath, FileName)); err == nil {
		if depManifest, err = Load(localPath); err != nil {
			return nil, err
		}
	}

	if dep.Version != "" {
		if err := checkVersion(name, dep.Version, depManifest); err != nil {
			return nil, err
		}
	}

	return &ResolvedDep{
		Name:      name,
		LocalPath: localPath,
		Manifest:  depManifest,
	}, nil
}

func checkVersion(name, constraint string, depManifest *Manifest) error {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("dependency %q: bad version constraint %q: %w", name, constraint, err)
	}
	if depManifest == nil || depManifest.Project.Version == "" {
		return fmt.Errorf("dependency %q declares no version to check against %s", name, constraint)
	}
	v, err := semver.NewVersion(depManifest.Project.Version)
	if err != nil {
		return fmt.Errorf("dependency %q: bad version %q: %w", name, depManifest.Project.Version, err)
	}
	if !c.Check(v) {
		return fmt.Errorf("dependency %q is version %s, want %s", name, v, constraint)
	}
	return nil
}
