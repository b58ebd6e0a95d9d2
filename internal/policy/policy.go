// Package policy decides who may publish and call named services.
//
// Policy is layered above the transport: the transport stamps identities,
// implementations consult the checker. Rules load from a TOML file:
//
//	default_allow = true
//
//	[[service]]
//	name = "power"
//	publish_uids = [0]
//	call_uids = [0, 1000]
//
// A service without a rule falls back to default_allow. An empty uid list
// in a rule denies everyone for that verb.
package policy

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Rule restricts one service name.
type Rule struct {
	Name        string   `toml:"name"`
	PublishUIDs []uint32 `toml:"publish_uids"`
	CallUIDs    []uint32 `toml:"call_uids"`
}

// File is the on-disk policy document.
type File struct {
	DefaultAllow bool   `toml:"default_allow"`
	Services     []Rule `toml:"service"`
}

// Checker answers allow/deny questions for service names.
type Checker struct {
	defaultAllow bool
	rules        map[string]Rule
}

// NewPermissive returns a checker that allows everything; the daemon runs
// with it when no policy file is configured.
func NewPermissive() *Checker {
	return &Checker{defaultAllow: true, rules: make(map[string]Rule)}
}

// Load reads a TOML policy file.
func Load(path string) (*Checker, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse builds a checker from TOML bytes.
func Parse(raw []byte) (*Checker, error) {
	var f File
	if err := toml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("policy: parse: %w", err)
	}
	c := &Checker{defaultAllow: f.DefaultAllow, rules: make(map[string]Rule, len(f.Services))}
	for _, r := range f.Services {
		if r.Name == "" {
			return nil, fmt.Errorf("policy: service rule with empty name")
		}
		c.rules[r.Name] = r
	}
	return c, nil
}

// MayPublish reports whether uid may publish the named service.
func (c *Checker) MayPublish(name string, uid uint32) bool {
	rule, ok := c.rules[name]
	if !ok {
		return c.defaultAllow
	}
	return containsUID(rule.PublishUIDs, uid)
}

// MayCall reports whether uid may look up the named service.
func (c *Checker) MayCall(name string, uid uint32) bool {
	rule, ok := c.rules[name]
	if !ok {
		return c.defaultAllow
	}
	return containsUID(rule.CallUIDs, uid)
}

func containsUID(uids []uint32, uid uint32) bool {
	for _, u := range uids {
		if u == uid {
			return true
		}
	}
	return false
}
