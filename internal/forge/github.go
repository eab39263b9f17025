package forge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var tokenLine = regexp.MustCompile(`Token: (\S+)`)

// GitHub resolves identity and credentials through the gh CLI. A token
// supplied up front (GITHUB_TOKEN) takes precedence over gh's stored one.
type GitHub struct {
	token string
	run   runner
}

// NewGitHub returns a GitHub provider. envToken may be empty.
func NewGitHub(envToken string) *GitHub {
	return &GitHub{token: envToken, run: execRunner}
}

// ghUser mirrors the fields we care about from `gh api user`.
type ghUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

// Whoami returns the login of the authenticated user.
func (g *GitHub) Whoami(ctx context.Context) (Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	out, err := g.run(ctx, false, "gh", "api", "user")
	if err != nil {
		return Identity{}, fmt.Errorf("gh api user: %w", err)
	}

	var user ghUser
	if err := json.Unmarshal(out, &user); err != nil {
		return Identity{}, fmt.Errorf("gh api user: unexpected output %q: %w", trimOutput(out), err)
	}
	if user.Login == "" {
		return Identity{}, errors.New("gh api user: response has no login")
	}
	return Identity{Name: user.Login}, nil
}

// AuthToken returns the API token to use for GraphQL requests.
func (g *GitHub) AuthToken(ctx context.Context) (Token, error) {
	if g.token != "" {
		return Token{Value: g.token}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	// gh prints the status report on stderr.
	out, err := g.run(ctx, true, "gh", "auth", "status", "--show-token")
	if err != nil {
		return Token{}, fmt.Errorf("authentication status failed, check the output of \"gh auth status\": %s", trimOutput(out))
	}
	for _, line := range strings.Split(string(out), "\n") {
		if m := tokenLine.FindStringSubmatch(line); m != nil {
			return Token{Value: m[1]}, nil
		}
	}
	return Token{}, errors.New("could not find a token in the output of \"gh auth status\"")
}
