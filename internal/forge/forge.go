// Package forge resolves the viewer's identity and API credentials.
package forge

import (
	"context"
	"os/exec"
)

// Identity is the authenticated viewer.
type Identity struct {
	Name string // login
}

// Token is an API credential.
type Token struct {
	Value string
}

// runner executes a CLI and returns its output.
type runner func(ctx context.Context, stderr bool, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, stderr bool, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stderr {
		return cmd.CombinedOutput()
	}
	return cmd.Output()
}

func trimOutput(b []byte) string {
	s := string(b)
	if len(s) > 200 {
		return s[:200] + "…"
	}
	return s
}
