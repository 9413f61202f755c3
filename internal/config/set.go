package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/tirecode/internal/errors"
)

type keyKind int

const (
	kindString keyKind = iota
	kindBool
	kindFloat
	kindDuration
)

// keys lists every settable key and how its value is parsed.
var keys = map[string]keyKind{
	"api.url":                      kindString,
	"api.timeout":                  kindDuration,
	"log.level":                    kindString,
	"log.format":                   kindString,
	"store.backend":                kindString,
	"store.path":                   kindString,
	"store.prefix":                 kindString,
	"store.passphrase_env":         kindString,
	"vault.address":                kindString,
	"vault.token":                  kindString,
	"vault.mount":                  kindString,
	"vault.path":                   kindString,
	"session.retry_on_unavailable": kindBool,
	"telemetry.enabled":            kindBool,
	"telemetry.endpoint":           kindString,
	"telemetry.sample_rate":        kindFloat,
}

// Keys returns the settable keys in sorted order.
func Keys() []string {
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Set writes key=value into the YAML file at path, keeping other entries.
// The file and its directory are created when missing.
func Set(path, key, value string) error {
	kind, ok := keys[key]
	if !ok {
		return errors.New(errors.ErrCodeConfigInvalid, "unknown configuration key: "+key).
			WithSuggestion("Valid keys: " + strings.Join(Keys(), ", "))
	}

	parsed, err := parseValue(kind, value)
	if err != nil {
		return errors.Wrap(errors.ErrCodeConfigInvalid, fmt.Sprintf("invalid value for %s", key), err)
	}

	doc := map[string]any{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return errors.Wrap(errors.ErrCodeConfigInvalid, "cannot parse "+path, err)
		}
		if doc == nil {
			doc = map[string]any{}
		}
	case !stderrors.Is(err, os.ErrNotExist):
		return errors.Wrap(errors.ErrCodeConfigWrite, "cannot read "+path, err)
	}

	setNested(doc, strings.Split(key, "."), parsed)

	out, err := yaml.Marshal(doc)
	if err != nil {
		return errors.Wrap(errors.ErrCodeConfigWrite, "cannot encode config", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(errors.ErrCodeConfigWrite, "cannot create config directory", err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return errors.Wrap(errors.ErrCodeConfigWrite, "cannot write "+path, err)
	}
	return nil
}

func parseValue(kind keyKind, value string) (any, error) {
	switch kind {
	case kindBool:
		return strconv.ParseBool(value)
	case kindFloat:
		return strconv.ParseFloat(value, 64)
	case kindDuration:
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, err
		}
		return d.String(), nil
	default:
		return value, nil
	}
}

func setNested(doc map[string]any, path []string, value any) {
	for _, p := range path[:len(path)-1] {
		next, ok := doc[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			doc[p] = next
		}
		doc = next
	}
	doc[path[len(path)-1]] = value
}

// Marshal renders c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	view := *c
	if view.Vault.Token != "" {
		view.Vault.Token = "********"
	}
	return yaml.Marshal(view)
}
