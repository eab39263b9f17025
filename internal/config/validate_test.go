package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func requireInvalid(t *testing.T, source string, want ...string) {
	t.Helper()
	_, err := Parse([]byte(source))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, want, verr.Messages)
}

func TestParseEmptyFile(t *testing.T) {
	requireInvalid(t, "", "Yaml must contain a 'sources' property.")
}

func TestParseSourcesNotList(t *testing.T) {
	requireInvalid(t, `sources: "hei"`, "'sources' must be an array of non-zero length.")
}

func TestParseMigratesBeta(t *testing.T) {
	cfg, err := Parse([]byte(`
sources:
  - username: name
    ignore:
      - repo: repo
      - username: othername
  - organization: organization
    include:
      - team: team
      - repo: repo
    ignore:
      - username: othername
      - repo: repo
`))
	require.NoError(t, err)
	require.Equal(t, Version, cfg.Version)
	require.Empty(t, cfg.Settings.Ignore)
	require.Equal(t, RendererTerminal, cfg.Settings.Renderer)
	require.Equal(t, BackboneLoopback, cfg.Settings.Backbone)
	require.False(t, cfg.Settings.Daemon)

	require.Len(t, cfg.Sources, 2)
	require.Equal(t, "name", cfg.Sources[0].Username)
	require.Equal(t, []Reference{{Repo: "repo"}, {Username: "othername"}}, cfg.Sources[0].Ignore)
	require.Equal(t, "organization", cfg.Sources[1].Organization)
	require.Equal(t, []Reference{{Team: "team"}, {Repo: "repo"}}, cfg.Sources[1].Include)
}

func TestParseV1(t *testing.T) {
	cfg, err := Parse([]byte(`
version: 1.0
sources:
  - username: name
  - organization: organization
    include:
      - team: team
config:
  ignore:
    - username: othername
    - repo: repo
  renderer: terminal
  backbone: loopback
  daemon: false
`))
	require.NoError(t, err)
	require.Equal(t, BackboneLoopback, cfg.Settings.Backbone)
	require.Equal(t, []Reference{{Username: "othername"}, {Repo: "repo"}}, cfg.Settings.Ignore)
	require.Len(t, cfg.UserSources(), 1)
	require.Len(t, cfg.OrganizationSources(), 1)
}

func TestParseV1DefaultsToNetwork(t *testing.T) {
	cfg, err := Parse([]byte("version: 1.0\nsources:\n  - username: me\n"))
	require.NoError(t, err)
	require.Equal(t, BackboneNetwork, cfg.Settings.Backbone)
	require.Equal(t, RendererTerminal, cfg.Settings.Renderer)
}

func TestParseWrongVersion(t *testing.T) {
	requireInvalid(t, "version: 2.0\nsources:\n  - username: me\n",
		"Yaml file is referring to wrong version. Expected '1.0' but found '2.0'")
}

func TestParseSourceShape(t *testing.T) {
	requireInvalid(t, `
sources:
  - username: name
    organization: test
`, "'sources[0]' had both 'username' and 'organization' property. Just one is permitted at root level")

	requireInvalid(t, `
sources:
  - not_username: name
    not_organization: test
`, "'sources[0]' did not include 'username' or 'organization' property. One of these are required")
}

func TestParseIgnoreMustBeList(t *testing.T) {
	requireInvalid(t, `
sources:
  - username: myname
    ignore: asd
`, "'sources[0].ignore' is required to be 'undefined' or an 'Array'")

	requireInvalid(t, `
sources:
  - organization: myorg
    include:
      - repo: name
    ignore: asd
`, "'sources[0].ignore' is required to be 'undefined' or an 'Array'")
}

func TestParseIncludeRules(t *testing.T) {
	requireInvalid(t, `
sources:
  - organization: myorg
`, "'sources[0].include' must be an Array of non-zero length")

	requireInvalid(t, `
sources:
  - organization: myorg
    include:
      - repo: myrepo
        team: myteam
`, "'sources[0].include[0]' had 2 keys; 'repo, team'. Expected just one of: 'team', 'repo'")

	requireInvalid(t, `
sources:
  - organization: myorg
    include:
      - user: someone
`, "'sources[0].include[0]' had no matching keys; 'user'. Expected one of: 'team', 'repo'")
}

func TestParseCollectsAllMessages(t *testing.T) {
	requireInvalid(t, `
version: 1.0
sources:
  - organization: myorg
  - username: me
    ignore: nope
config:
  renderer: html
`,
		"'sources[0].include' must be an Array of non-zero length",
		"'sources[1].ignore' is required to be 'undefined' or an 'Array'",
		"'config.renderer' is required to be one of: terminal, web",
	)
}

func TestParseLoopbackRestrictions(t *testing.T) {
	requireInvalid(t, `
version: 1.0
sources:
  - username: me
config:
  renderer: web
  backbone: loopback
  daemon: true
`,
		"'config.daemon' cannot be true when using 'loopback' backbone",
		"'config.renderer' cannot be 'web' when using 'loopback' backbone",
	)
}

func TestValidationErrorJoinsMessages(t *testing.T) {
	err := &ValidationError{Messages: []string{"a", "b"}}
	require.Equal(t, "a\nb", err.Error())
}
