package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Paintersrp/procspawn/internal/process"
)

func TestProfileSpawnOptions(t *testing.T) {
	p := &Profile{
		Program:    "/usr/bin/gpg",
		Args:       []string{"--verify"},
		Stdin:      "pipe",
		Stdout:     "inherit",
		NonBlock:   true,
		KeepStderr: true,
	}
	opts, err := p.SpawnOptions()
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/gpg", opts.Program)
	assert.Equal(t, []string{"--verify"}, opts.Args)
	assert.Equal(t, process.StdioPipe, opts.Stdin)
	assert.Equal(t, process.StdioInherit, opts.Stdout)
	assert.Equal(t, process.StdioDefault, opts.Stderr)
	assert.Equal(t, process.NonBlock|process.KeepStderr, opts.Flags)

	p.Stderr = "tty"
	_, err = p.SpawnOptions()
	assert.ErrorIs(t, err, process.ErrInvalidUsage)
}

func TestProfileDetachedOptions(t *testing.T) {
	t.Setenv("PROCSPAWN_BASE", "kept")
	p := &Profile{
		Program:    "/usr/bin/gpg-agent",
		Detached:   true,
		Stdout:     "inherit",
		KeepStderr: true,
		Env:        map[string]string{"GNUPGHOME": "/tmp/gnupg", "PROCSPAWN_BASE": "overridden"},
	}
	opts := p.DetachedOptions()
	require.NotNil(t, opts.Stdio)
	assert.Nil(t, opts.Stdio.Stdin)
	assert.Equal(t, os.Stdout, opts.Stdio.Stdout)
	assert.Equal(t, os.Stderr, opts.Stdio.Stderr)
	assert.Contains(t, opts.Env, "GNUPGHOME=/tmp/gnupg")
	assert.Contains(t, opts.Env, "PROCSPAWN_BASE=overridden")
	assert.NotContains(t, opts.Env, "PROCSPAWN_BASE=kept")

	p.Env = nil
	assert.Nil(t, p.DetachedOptions().Env)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("GNUPG_EXEC_DEBUG_FLAGS", "1")
	t.Setenv("PROCSPAWN_LOG_LEVEL", "debug")
	t.Setenv("PROCSPAWN_LOG_DEV", "true")
	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, Env{DebugFlags: 1, LogLevel: "debug", LogDev: true}, env)

	t.Setenv("GNUPG_EXEC_DEBUG_FLAGS", "lots")
	_, err = LoadEnv()
	assert.Error(t, err)
}
