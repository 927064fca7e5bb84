package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/Paintersrp/procspawn/internal/process"
)

// File is a decoded profile file.
type File struct {
	Version  int                 `yaml:"version"`
	Profiles map[string]*Profile `yaml:"profiles"`

	// Path is the absolute path the file was loaded from.
	Path string `yaml:"-"`
}

// Profile describes one named spawn.
type Profile struct {
	Program            string            `yaml:"program"`
	Args               []string          `yaml:"args"`
	Stdin              string            `yaml:"stdin"`
	Stdout             string            `yaml:"stdout"`
	Stderr             string            `yaml:"stderr"`
	NonBlock           bool              `yaml:"nonblock"`
	Detached           bool              `yaml:"detached"`
	AllowSetForeground bool              `yaml:"allowSetForeground"`
	KeepStdin          bool              `yaml:"keepStdin"`
	KeepStdout         bool              `yaml:"keepStdout"`
	KeepStderr         bool              `yaml:"keepStderr"`
	Env                map[string]string `yaml:"env"`
	EnvFromFile        string            `yaml:"envFromFile"`
}

// Lookup returns the named profile.
func (f *File) Lookup(name string) (*Profile, error) {
	p, ok := f.Profiles[name]
	if !ok || p == nil {
		names := make([]string, 0, len(f.Profiles))
		for n := range f.Profiles {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("profile %q not found (available: %s)", name, strings.Join(names, ", "))
	}
	return p, nil
}

// Flags converts the boolean fields into process flags.
func (p *Profile) Flags() process.Flags {
	var flags process.Flags
	set := func(on bool, flag process.Flags) {
		if on {
			flags |= flag
		}
	}
	set(p.KeepStdin, process.KeepStdin)
	set(p.KeepStdout, process.KeepStdout)
	set(p.KeepStderr, process.KeepStderr)
	set(p.Detached, process.Detached)
	set(p.AllowSetForeground, process.AllowSetForeground)
	set(p.NonBlock, process.NonBlock)
	return flags
}

// SpawnOptions converts an attached profile into spawn options.
func (p *Profile) SpawnOptions() (process.SpawnOptions, error) {
	opts := process.SpawnOptions{
		Program: p.Program,
		Args:    append([]string(nil), p.Args...),
		Flags:   p.Flags(),
	}
	var err error
	if opts.Stdin, err = process.ParseStdio(p.Stdin); err != nil {
		return process.SpawnOptions{}, fmt.Errorf("stdin: %w", err)
	}
	if opts.Stdout, err = process.ParseStdio(p.Stdout); err != nil {
		return process.SpawnOptions{}, fmt.Errorf("stdout: %w", err)
	}
	if opts.Stderr, err = process.ParseStdio(p.Stderr); err != nil {
		return process.SpawnOptions{}, fmt.Errorf("stderr: %w", err)
	}
	return opts, nil
}

// DetachedOptions converts a detached profile. Slots set to inherit are
// bound to the caller's own standard files.
func (p *Profile) DetachedOptions() process.DetachedOptions {
	opts := process.DetachedOptions{
		Program: p.Program,
		Args:    append([]string(nil), p.Args...),
		Env:     mergeEnv(os.Environ(), p.Env),
	}
	cfg := &process.StdioConfig{AllowSetForeground: p.AllowSetForeground}
	if p.Stdin == "inherit" || (p.Stdin == "" && p.KeepStdin) {
		cfg.Stdin = os.Stdin
	}
	if p.Stdout == "inherit" || (p.Stdout == "" && p.KeepStdout) {
		cfg.Stdout = os.Stdout
	}
	if p.Stderr == "inherit" || (p.Stderr == "" && p.KeepStderr) {
		cfg.Stderr = os.Stderr
	}
	opts.Stdio = cfg
	return opts
}

// mergeEnv overlays extra onto base. It returns nil when extra is empty so
// the child simply inherits the caller's environment.
func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return nil
	}
	out := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, overridden := extra[key]; overridden {
			continue
		}
		out = append(out, kv)
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+extra[k])
	}
	return out
}

func fieldPath(parts ...string) string {
	return strings.Join(parts, ".")
}

func profileField(profile string, parts ...string) string {
	pathParts := append([]string{"profiles", profile}, parts...)
	return fieldPath(pathParts...)
}
