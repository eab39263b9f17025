// Package config loads gitnext's settings: process settings from the
// environment and the user's YAML configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ilyakaznacheev/cleanenv"

	"gitnext/internal/logger"
)

// Version is the current configuration schema version.
const Version = "1.0"

// SelfUsername in a user source stands for the authenticated viewer.
const SelfUsername = "__self__"

// Env holds process settings read from the environment.
type Env struct {
	ConfigPath  string `env:"GITNEXT_CONFIG"`
	Port        int    `env:"GITNEXT_PORT" env-default:"8099"`
	GraphQLURL  string `env:"GITNEXT_GRAPHQL_URL" env-default:"https://api.github.com/graphql"`
	GitHubToken string `env:"GITHUB_TOKEN"`
	Logger      logger.Config
}

// ReadEnv reads Env, filling in home-relative defaults.
func ReadEnv() (*Env, error) {
	var env Env
	if err := cleanenv.ReadEnv(&env); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if env.ConfigPath == "" || env.Logger.File == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("user home dir: %w", err)
		}
		if env.ConfigPath == "" {
			env.ConfigPath = filepath.Join(home, ".gitnext.yaml")
		}
		if env.Logger.File == "" {
			env.Logger.File = filepath.Join(home, ".gitnext.log")
		}
	}
	return &env, nil
}

// Renderer selects the user interface.
type Renderer string

const (
	RendererTerminal Renderer = "terminal"
	RendererWeb      Renderer = "web"
)

// Backbone selects the transport between the pipeline and the UI.
type Backbone string

const (
	BackboneNetwork  Backbone = "network"
	BackboneLoopback Backbone = "loopback"
)

// Reference points at a team, a repository ("owner/name") or a user.
// Exactly one field is set.
type Reference struct {
	Team     string `yaml:"team,omitempty"`
	Repo     string `yaml:"repo,omitempty"`
	Username string `yaml:"username,omitempty"`
}

// Source is one place to fetch pull requests from. Exactly one of Username
// and Organization is set.
type Source struct {
	Username     string      `yaml:"username,omitempty"`
	Organization string      `yaml:"organization,omitempty"`
	Include      []Reference `yaml:"include,omitempty"` // organizations only
	Ignore       []Reference `yaml:"ignore,omitempty"`
}

// IsUser reports whether s is a user source.
func (s Source) IsUser() bool {
	return s.Organization == ""
}

// Settings is the optional global "config" block.
type Settings struct {
	Renderer Renderer    `yaml:"renderer"`
	Backbone Backbone    `yaml:"backbone"`
	Daemon   bool        `yaml:"daemon"`
	Ignore   []Reference `yaml:"ignore,omitempty"`
}

// Config is a validated configuration file.
type Config struct {
	Version  string   `yaml:"version"`
	Sources  []Source `yaml:"sources"`
	Settings Settings `yaml:"config"`
}

// UserSources returns the user sources in file order.
func (c *Config) UserSources() []Source {
	var sources []Source
	for _, s := range c.Sources {
		if s.IsUser() {
			sources = append(sources, s)
		}
	}
	return sources
}

// OrganizationSources returns the organization sources in file order.
func (c *Config) OrganizationSources() []Source {
	var sources []Source
	for _, s := range c.Sources {
		if !s.IsUser() {
			sources = append(sources, s)
		}
	}
	return sources
}
