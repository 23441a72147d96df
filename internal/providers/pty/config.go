package pty

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/GriffinCanCode/termvisor/internal/domain/process"
)

// Defaults for Config.
const (
	DefaultShell      = "/bin/bash"
	DefaultTerm       = "xterm-256color"
	DefaultCloseGrace = 2 * time.Second
)

// Config holds spawner defaults applied when a Spec leaves them empty.
type Config struct {
	Shell string
	Dir   string
	Term  string
	Env   map[string]string
	// CloseGrace bounds how long the pty master stays open after the process
	// exits while descendants still hold the terminal.
	CloseGrace time.Duration
}

func (c Config) withDefaults() Config {
	if c.Shell == "" {
		c.Shell = os.Getenv("SHELL")
		if c.Shell == "" {
			c.Shell = DefaultShell
		}
	}
	if c.Dir == "" {
		c.Dir = os.Getenv("HOME")
		if c.Dir == "" {
			c.Dir = os.TempDir()
		}
	}
	if c.Term == "" {
		c.Term = DefaultTerm
	}
	if c.CloseGrace <= 0 {
		c.CloseGrace = DefaultCloseGrace
	}
	return c
}

// resolve fills spec from the defaults.
func (c Config) resolve(spec process.Spec) process.Spec {
	if spec.Shell == "" {
		spec.Shell = c.Shell
	}
	if spec.Dir == "" {
		spec.Dir = c.Dir
	}
	if spec.Cols <= 0 {
		spec.Cols = 80
	}
	if spec.Rows <= 0 {
		spec.Rows = 24
	}
	return spec
}

// environ builds the child environment: the parent's, then TERM, then the
// configured and per-spec variables in key order so later entries win.
func (c Config) environ(spec process.Spec) []string {
	env := os.Environ()
	env = append(env, "TERM="+c.Term)
	env = appendSorted(env, c.Env)
	env = appendSorted(env, spec.Env)
	return env
}

func appendSorted(env []string, vars map[string]string) []string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, vars[k]))
	}
	return env
}
