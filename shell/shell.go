// Package shell resolves and spawns the shell behind an integrated terminal.
package shell

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sort"
)

var ErrShellNotFound = errors.New("shell not found")

// Options describes the shell to start. Zero values fall back to the user's
// default shell in the current working directory.
type Options struct {
	Shell string            `json:"shell,omitempty"`
	Args  []string          `json:"args,omitempty"`
	Cwd   string            `json:"cwd,omitempty"`
	Env   map[string]string `json:"env,omitempty"`
}

// Resolve returns the executable and arguments for opts on this platform
func Resolve(opts Options) (string, []string) {
	return resolve(opts, runtime.GOOS, os.Getenv)
}

func resolve(opts Options, goos string, getenv func(string) string) (string, []string) {
	shell := opts.Shell
	if shell == "" {
		if goos == "windows" {
			shell = getenv("ComSpec")
			if shell == "" {
				shell = "cmd.exe"
			}
		} else {
			shell = getenv("SHELL")
			if shell == "" {
				shell = "/bin/sh"
			}
		}
	}

	args := opts.Args
	if args == nil && opts.Shell == "" && goos != "windows" {
		// login shell so profile scripts run as they would in a terminal
		args = []string{"-l"}
	}
	return shell, append([]string(nil), args...)
}

// Command builds the command for opts without starting it
func Command(ctx context.Context, opts Options) (*exec.Cmd, error) {
	name, args := Resolve(opts)
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrShellNotFound, name, err)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = opts.Cwd
	cmd.Env = mergeEnv(os.Environ(), opts.Env)
	return cmd, nil
}

// Spawn starts the shell described by opts
func Spawn(ctx context.Context, opts Options) (*exec.Cmd, error) {
	cmd, err := Command(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cmd.Path, err)
	}
	return cmd, nil
}

// mergeEnv overlays the given variables onto base. Overlay keys are applied in
// sorted order so the result is stable.
func mergeEnv(base []string, overlay map[string]string) []string {
	if len(overlay) == 0 {
		return base
	}

	keys := make([]string, 0, len(overlay))
	for k := range overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(base)+len(overlay))
	for _, kv := range base {
		if _, ok := overlay[envKey(kv)]; !ok {
			env = append(env, kv)
		}
	}
	for _, k := range keys {
		env = append(env, k+"="+overlay[k])
	}
	return env
}

func envKey(kv string) string {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' && i > 0 {
			return kv[:i]
		}
	}
	return kv
}
