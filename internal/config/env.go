package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Env holds settings read from the process environment.
type Env struct {
	// DebugFlags is the GNUPG_EXEC_DEBUG_FLAGS bitmask; bit 0 logs the job
	// break-away decision of detached spawns.
	DebugFlags int `envconfig:"GNUPG_EXEC_DEBUG_FLAGS" default:"0"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `envconfig:"PROCSPAWN_LOG_LEVEL" default:"info"`
	// LogDev switches to the human-readable console encoder.
	LogDev bool `envconfig:"PROCSPAWN_LOG_DEV" default:"false"`
}

// LoadEnv reads Env from the environment.
func LoadEnv() (Env, error) {
	var env Env
	if err := envconfig.Process("", &env); err != nil {
		return Env{}, fmt.Errorf("load environment: %w", err)
	}
	return env, nil
}
