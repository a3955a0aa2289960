package shell

import (
	"context"
	"reflect"
	"runtime"
	"testing"
)

func TestResolveExplicitShell(t *testing.T) {
	shell, args := resolve(Options{Shell: "/usr/bin/zsh", Args: []string{"-i"}}, "linux", func(string) string { return "/bin/bash" })
	if shell != "/usr/bin/zsh" {
		t.Fatalf("Expected explicit shell, got: %s", shell)
	}
	if !reflect.DeepEqual(args, []string{"-i"}) {
		t.Fatalf("Expected explicit args, got: %v", args)
	}
}

func TestResolveFromEnvironment(t *testing.T) {
	env := map[string]string{"SHELL": "/bin/bash", "ComSpec": `C:\Windows\system32\cmd.exe`}
	getenv := func(k string) string { return env[k] }

	shell, args := resolve(Options{}, "linux", getenv)
	if shell != "/bin/bash" {
		t.Fatalf("Expected $SHELL, got: %s", shell)
	}
	if !reflect.DeepEqual(args, []string{"-l"}) {
		t.Fatalf("Expected login shell args, got: %v", args)
	}

	shell, args = resolve(Options{}, "windows", getenv)
	if shell != env["ComSpec"] {
		t.Fatalf("Expected ComSpec, got: %s", shell)
	}
	if len(args) != 0 {
		t.Fatalf("Expected no args on windows, got: %v", args)
	}
}

func TestResolveFallbacks(t *testing.T) {
	empty := func(string) string { return "" }

	if shell, _ := resolve(Options{}, "darwin", empty); shell != "/bin/sh" {
		t.Fatalf("Expected /bin/sh fallback, got: %s", shell)
	}
	if shell, _ := resolve(Options{}, "windows", empty); shell != "cmd.exe" {
		t.Fatalf("Expected cmd.exe fallback, got: %s", shell)
	}
}

func TestMergeEnv(t *testing.T) {
	base := []string{"PATH=/bin", "HOME=/root", "TERM=dumb"}
	got := mergeEnv(base, map[string]string{"TERM": "xterm-256color", "COLORTERM": "truecolor"})
	want := []string{"PATH=/bin", "HOME=/root", "COLORTERM=truecolor", "TERM=xterm-256color"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Expected %v, got: %v", want, got)
	}

	if got := mergeEnv(base, nil); !reflect.DeepEqual(got, base) {
		t.Fatalf("Expected base env unchanged, got: %v", got)
	}
}

func TestSpawn(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix shell required")
	}

	cmd, err := Spawn(context.Background(), Options{
		Shell: "/bin/sh",
		Args:  []string{"-c", `test "$CMDPROXY_TEST" = ok`},
		Cwd:   t.TempDir(),
		Env:   map[string]string{"CMDPROXY_TEST": "ok"},
	})
	if err != nil {
		t.Fatalf("Failed to spawn shell: %v", err)
	}
	if err := cmd.Wait(); err != nil {
		t.Fatalf("Expected shell to see overlay env, got: %v", err)
	}
}

func TestSpawnMissingShell(t *testing.T) {
	_, err := Spawn(context.Background(), Options{Shell: "/nonexistent/shell"})
	if err == nil {
		t.Fatal("Expected error for missing shell")
	}
}
