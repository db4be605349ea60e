// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package clitest provides a table-driven harness for testing command-line
// applications built with package cli.
package clitest

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.astrophena.name/preview/internal/cli"
)

// DefaultTimeout is how long a case may run when its Timeout is zero.
const DefaultTimeout = 10 * time.Second

// Case represents a single test case for a command-line application.
type Case[App cli.App] struct {
	// Args are the command-line arguments to pass to the application.
	Args []string
	// Env are the environment variables visible to the application.
	Env map[string]string
	// WantErr is the error the application must fail with, checked with
	// errors.Is. If nil, the application must succeed.
	WantErr error
	// WantFlags maps flag names to the values they must have after parsing,
	// as formatted by flag.Value.String. It checks how defaults, environment
	// variables and command-line flags combine.
	WantFlags map[string]string
	// WantStdout are lines that must be printed to stdout, in this order.
	WantStdout []string
	// WantInStderr is the expected substring to be present in the stderr output.
	WantInStderr string
	// Timeout bounds the run. The application must return on its own before
	// it passes; an application that is still running (for example, serving
	// requests) is canceled and the case fails. Zero means DefaultTimeout.
	Timeout time.Duration
	// CheckFunc is an optional function to perform additional checks after the
	// application has run.
	CheckFunc func(*testing.T, App)
}

// Run runs each case in parallel against the application returned by setup.
func Run[App cli.App](t *testing.T, setup func(*testing.T) App, cases map[string]Case[App]) {
	t.Helper()
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			app := setup(t)

			var stdout, stderr bytes.Buffer
			env := &cli.Env{
				Args:   tc.Args,
				Getenv: func(name string) string { return tc.Env[name] },
				Stdin:  strings.NewReader(""),
				Stdout: &stdout,
				Stderr: &stderr,
			}

			timeout := tc.Timeout
			if timeout == 0 {
				timeout = DefaultTimeout
			}
			ctx, cancel := context.WithTimeout(cli.WithEnv(context.Background(), env), timeout)
			defer cancel()

			err := cli.Run(ctx, app)
			if ctx.Err() != nil {
				t.Fatalf("still running after %v, stderr:\n%s", timeout, stderr.String())
			}

			switch {
			case tc.WantErr == nil && err != nil:
				t.Fatalf("unexpected error: %v", err)
			case tc.WantErr != nil && err == nil:
				t.Fatalf("must fail with error: %v", tc.WantErr)
			case tc.WantErr != nil && !errors.Is(err, tc.WantErr):
				t.Fatalf("want error %v, got %v", tc.WantErr, err)
			}

			if len(tc.WantFlags) > 0 && env.Flags == nil {
				t.Fatal("flags were not parsed")
			}
			for name, want := range tc.WantFlags {
				f := env.Flags.Lookup(name)
				if f == nil {
					t.Errorf("flag -%s is not defined", name)
					continue
				}
				if got := f.Value.String(); got != want {
					t.Errorf("flag -%s = %q, want %q", name, got, want)
				}
			}

			if err := containsLines(stdout.String(), tc.WantStdout); err != nil {
				t.Errorf("stdout: %v, got:\n%s", err, stdout.String())
			}
			if tc.WantInStderr != "" && !strings.Contains(stderr.String(), tc.WantInStderr) {
				t.Errorf("stderr must contain %q, got: %q", tc.WantInStderr, stderr.String())
			}

			if tc.CheckFunc != nil {
				tc.CheckFunc(t, app)
			}
		})
	}
}

// containsLines checks that every line of want is a whole line of out and
// that they appear in order.
func containsLines(out string, want []string) error {
	lines := strings.Split(out, "\n")
	i := 0
	for _, w := range want {
		for i < len(lines) && lines[i] != w {
			i++
		}
		if i == len(lines) {
			return errors.New("missing line " + `"` + w + `"` + " (or it is out of order)")
		}
		i++
	}
	return nil
}
