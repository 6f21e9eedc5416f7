package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when --config is not given.
const DefaultPath = "~/.smartschedule/config.yaml"

// YAML is a kong.ConfigurationLoader for YAML files.
//
// Global flags are top level keys. Command flags may also be nested under the
// command name, which takes precedence:
//
//	server: https://smartschedule.example.com
//	serve:
//	  listen: 127.0.0.1:9000
//
// Keys match the flag name with dashes or underscores.
func YAML(r io.Reader) (kong.Resolver, error) {
	values := map[string]any{}
	if err := yaml.NewDecoder(r).Decode(&values); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	var f kong.ResolverFunc = func(ctx *kong.Context, parent *kong.Path, flag *kong.Flag) (any, error) {
		for _, scope := range scopes(ctx) {
			section, ok := lookupSection(values, scope)
			if !ok {
				continue
			}
			if raw, ok := lookup(section, flag.Name); ok {
				return stringify(raw), nil
			}
		}
		return nil, nil
	}

	return f, nil
}

// scopes returns the command sections to search, most specific first, ending
// with the top level.
func scopes(ctx *kong.Context) [][]string {
	var words []string
	if ctx != nil {
		for _, w := range strings.Fields(ctx.Command()) {
			if strings.HasPrefix(w, "<") {
				continue
			}
			words = append(words, w)
		}
	}

	out := make([][]string, 0, len(words)+1)
	for i := len(words); i > 0; i-- {
		out = append(out, words[:i])
	}
	return append(out, nil)
}

func lookupSection(values map[string]any, path []string) (map[string]any, bool) {
	section := values
	for _, part := range path {
		next, ok := section[part].(map[string]any)
		if !ok {
			return nil, false
		}
		section = next
	}
	return section, true
}

func lookup(section map[string]any, name string) (any, bool) {
	for _, key := range []string{name, strings.ReplaceAll(name, "-", "_")} {
		raw, ok := section[key]
		if !ok || raw == nil {
			continue
		}
		if _, nested := raw.(map[string]any); nested {
			// a command section, not a value
			continue
		}
		return raw, true
	}
	return nil, false
}

// stringify renders YAML scalars and lists the way they would be typed on the
// command line, so kong's own mappers do the conversion.
func stringify(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, stringify(item))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(v)
	}
}
