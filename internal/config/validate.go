package config

import (
	"fmt"
	"path/filepath"
	"sort"

	"go.uber.org/multierr"

	"github.com/Paintersrp/procspawn/internal/process"
)

// Validate checks every profile and reports all problems found, ordered by
// profile name.
func (f *File) Validate() error {
	if f.Version != 1 {
		return fmt.Errorf("version: unsupported version %d", f.Version)
	}
	if len(f.Profiles) == 0 {
		return fmt.Errorf("profiles: at least one profile is required")
	}
	names := make([]string, 0, len(f.Profiles))
	for name := range f.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs error
	for _, name := range names {
		errs = multierr.Append(errs, validateProfile(name, f.Profiles[name]))
	}
	return errs
}

func validateProfile(name string, p *Profile) error {
	if p == nil {
		return fmt.Errorf("%s: profile is empty", profileField(name))
	}
	var errs error
	if p.Program == "" {
		errs = multierr.Append(errs, fmt.Errorf("%s: program is required", profileField(name, "program")))
	}
	modes := map[string]string{"stdin": p.Stdin, "stdout": p.Stdout, "stderr": p.Stderr}
	for _, slot := range []string{"stdin", "stdout", "stderr"} {
		mode, err := process.ParseStdio(modes[slot])
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", profileField(name, slot), err))
			continue
		}
		if p.Detached && mode == process.StdioPipe {
			errs = multierr.Append(errs, fmt.Errorf("%s: detached profiles cannot use pipes", profileField(name, slot)))
		}
	}

	if p.Detached {
		if p.Program != "" && !filepath.IsAbs(p.Program) {
			errs = multierr.Append(errs, fmt.Errorf("%s: detached program must be an absolute path, got %q", profileField(name, "program"), p.Program))
		}
		if p.NonBlock {
			errs = multierr.Append(errs, fmt.Errorf("%s: detached profiles have no streams", profileField(name, "nonblock")))
		}
		return errs
	}

	if len(p.Env) > 0 || p.EnvFromFile != "" {
		errs = multierr.Append(errs, fmt.Errorf("%s: environment is only supported for detached profiles", profileField(name, "env")))
	}
	return errs
}
