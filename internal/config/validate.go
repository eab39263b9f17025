package config

import (
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidationError lists every problem found in a configuration file.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, "\n")
}

// Parse decodes and validates a configuration file. Scalars are treated as
// plain strings, so "version: 1.0" and "daemon: true" need no quoting.
// Configurations without a version (or with version "beta") are migrated to
// the current schema.
func Parse(source []byte) (*Config, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(source, &doc); err != nil {
		return nil, &ValidationError{Messages: []string{err.Error()}}
	}

	var root *yaml.Node
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		root = doc.Content[0]
	}

	version := ""
	if v := lookup(root, "version"); v != nil {
		version = v.Value
	}

	var (
		cfg  *Config
		errs []string
	)
	switch version {
	case "", "beta":
		cfg, errs = validateBeta(root)
	case Version:
		cfg, errs = validateV1(root)
	default:
		errs = []string{fmt.Sprintf("Yaml file is referring to wrong version. Expected '%s' but found '%s'", Version, version)}
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Messages: errs}
	}
	return cfg, nil
}

func validateBeta(root *yaml.Node) (*Config, []string) {
	sources, errs := validateSources(root)
	if len(errs) > 0 {
		return nil, errs
	}
	return &Config{
		Version: Version,
		Sources: sources,
		Settings: Settings{
			Renderer: RendererTerminal,
			Backbone: BackboneLoopback,
		},
	}, nil
}

func validateV1(root *yaml.Node) (*Config, []string) {
	var errs []string
	sources, sourceErrs := validateSources(root)
	errs = append(errs, sourceErrs...)
	settings, settingsErrs := validateSettings(lookup(root, "config"))
	errs = append(errs, settingsErrs...)
	if len(errs) > 0 {
		return nil, errs
	}
	return &Config{Version: Version, Sources: sources, Settings: settings}, nil
}

func validateSources(root *yaml.Node) ([]Source, []string) {
	node := lookup(root, "sources")
	if node == nil {
		return nil, []string{"Yaml must contain a 'sources' property."}
	}
	if node.Kind != yaml.SequenceNode || len(node.Content) == 0 {
		return nil, []string{"'sources' must be an array of non-zero length."}
	}

	var (
		sources []Source
		errs    []string
	)
	for i, item := range node.Content {
		context := fmt.Sprintf("sources[%d]", i)
		hasUser := lookup(item, "username") != nil
		hasOrg := lookup(item, "organization") != nil
		switch {
		case hasUser && hasOrg:
			return nil, []string{fmt.Sprintf("'%s' had both 'username' and 'organization' property. Just one is permitted at root level", context)}
		case !hasUser && !hasOrg:
			return nil, []string{fmt.Sprintf("'%s' did not include 'username' or 'organization' property. One of these are required", context)}
		}

		var (
			source    Source
			sourceErr []string
		)
		if hasUser {
			source, sourceErr = validateUserSource(item, context)
		} else {
			source, sourceErr = validateOrgSource(item, context)
		}
		if len(sourceErr) > 0 {
			errs = append(errs, sourceErr...)
			continue
		}
		sources = append(sources, source)
	}
	return sources, errs
}

func validateUserSource(node *yaml.Node, context string) (Source, []string) {
	var errs []string
	username, ok := scalar(lookup(node, "username"))
	if !ok {
		errs = append(errs, fmt.Sprintf("'%s.username' must be a string", context))
	}
	ignore, ignoreErrs := validateIgnore(lookup(node, "ignore"), context)
	errs = append(errs, ignoreErrs...)
	return Source{Username: username, Ignore: ignore}, errs
}

func validateOrgSource(node *yaml.Node, context string) (Source, []string) {
	var errs []string
	organization, ok := scalar(lookup(node, "organization"))
	if !ok {
		errs = append(errs, fmt.Sprintf("'%s.organization' must be a string", context))
	}
	include, includeErrs := validateInclude(lookup(node, "include"), context)
	errs = append(errs, includeErrs...)
	ignore, ignoreErrs := validateIgnore(lookup(node, "ignore"), context)
	errs = append(errs, ignoreErrs...)
	return Source{Organization: organization, Include: include, Ignore: ignore}, errs
}

func validateInclude(node *yaml.Node, context string) ([]Reference, []string) {
	if node == nil || node.Kind != yaml.SequenceNode || len(node.Content) == 0 {
		return nil, []string{fmt.Sprintf("'%s.include' must be an Array of non-zero length", context)}
	}
	return validateReferences(node, context+".include", "team", "repo")
}

func validateIgnore(node *yaml.Node, context string) ([]Reference, []string) {
	if node == nil || isNull(node) {
		return nil, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, []string{fmt.Sprintf("'%s.ignore' is required to be 'undefined' or an 'Array'", context)}
	}
	return validateReferences(node, context+".ignore", "repo", "username")
}

// validateReferences checks a list of single-key mappings whose key is one
// of allowed.
func validateReferences(node *yaml.Node, context string, allowed ...string) ([]Reference, []string) {
	var (
		refs []Reference
		errs []string
	)
	expected := "'" + strings.Join(allowed, "', '") + "'"
	for i, item := range node.Content {
		itemContext := fmt.Sprintf("%s[%d]", context, i)
		keys := mappingKeys(item)
		if len(keys) != 1 {
			errs = append(errs, fmt.Sprintf("'%s' had %d keys; '%s'. Expected just one of: %s", itemContext, len(keys), strings.Join(keys, ", "), expected))
			continue
		}
		key := keys[0]
		if !slices.Contains(allowed, key) {
			errs = append(errs, fmt.Sprintf("'%s' had no matching keys; '%s'. Expected one of: %s", itemContext, key, expected))
			continue
		}
		value, ok := scalar(lookup(item, key))
		if !ok {
			errs = append(errs, fmt.Sprintf("'%s.%s' has wrong type, expected a string.", itemContext, key))
			continue
		}
		var ref Reference
		switch key {
		case "team":
			ref.Team = value
		case "repo":
			ref.Repo = value
		case "username":
			ref.Username = value
		}
		refs = append(refs, ref)
	}
	return refs, errs
}

func validateSettings(node *yaml.Node) (Settings, []string) {
	settings := Settings{Renderer: RendererTerminal, Backbone: BackboneNetwork}
	if node == nil || isNull(node) {
		return settings, nil
	}

	var errs []string
	ignore, ignoreErrs := validateIgnore(lookup(node, "ignore"), "config")
	settings.Ignore = ignore
	errs = append(errs, ignoreErrs...)

	if n := lookup(node, "renderer"); n != nil {
		switch v := Renderer(n.Value); v {
		case RendererTerminal, RendererWeb:
			settings.Renderer = v
		default:
			errs = append(errs, "'config.renderer' is required to be one of: terminal, web")
		}
	}
	if n := lookup(node, "backbone"); n != nil {
		switch v := Backbone(n.Value); v {
		case BackboneNetwork, BackboneLoopback:
			settings.Backbone = v
		default:
			errs = append(errs, "'config.backbone' is required to be one of: network, loopback")
		}
	}
	if n := lookup(node, "daemon"); n != nil {
		switch n.Value {
		case "true", "false":
			settings.Daemon = n.Value == "true"
		default:
			errs = append(errs, "'config.daemon' is required to be one of: true, false")
		}
	}

	if settings.Backbone == BackboneLoopback {
		if settings.Daemon {
			errs = append(errs, "'config.daemon' cannot be true when using 'loopback' backbone")
		}
		if settings.Renderer == RendererWeb {
			errs = append(errs, "'config.renderer' cannot be 'web' when using 'loopback' backbone")
		}
	}
	return settings, errs
}

// lookup returns the value stored under key in a mapping node.
func lookup(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func mappingKeys(node *yaml.Node) []string {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	keys := make([]string, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keys = append(keys, node.Content[i].Value)
	}
	return keys
}

func scalar(node *yaml.Node) (string, bool) {
	if node == nil || node.Kind != yaml.ScalarNode || isNull(node) {
		return "", false
	}
	return node.Value, true
}

func isNull(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && node.Tag == "!!null"
}
