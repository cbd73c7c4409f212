// Package auth implements the access-control configuration: the
// auth.json loader, password verification and the package
// accessibility check.
package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/iancoleman/orderedmap"

	"github.com/packserv/packserv/ruleset"
)

// Pattern matches package identifiers. The source is a literal string
// where "*" matches any run of characters; everything else matches
// itself. Identity is by source string.
type Pattern struct {
	src string
	re  *regexp.Regexp
}

// CompilePattern compiles the pattern by escaping the source and
// widening the escaped "*" into ".*", anchored on both ends.
func CompilePattern(src string) (*Pattern, error) {
	expr := "^" + strings.ReplaceAll(regexp.QuoteMeta(src), `\*`, `.*`) + "$"
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &Pattern{src: src, re: re}, nil
}

// Match reports whether the pattern accepts the package identifier.
func (p *Pattern) Match(id string) bool { return p.re.MatchString(id) }

// String returns the pattern source.
func (p *Pattern) String() string { return p.src }

// Rule pairs a package pattern with its access rule.
type Rule struct {
	Pattern *Pattern
	Ruleset *ruleset.Ruleset
}

// Permissions is an ordered list of rules; evaluation follows the
// configuration file's declaration order.
type Permissions []Rule

// UnmarshalJSON decodes a JSON object of pattern to ruleset mappings,
// preserving key order.
func (p *Permissions) UnmarshalJSON(b []byte) error {
	om := orderedmap.New()
	if err := json.Unmarshal(b, om); err != nil {
		return err
	}
	rules := make(Permissions, 0, len(om.Keys()))
	for _, k := range om.Keys() {
		v, _ := om.Get(k)
		src, ok := v.(string)
		if !ok {
			return fmt.Errorf("auth: ruleset for %q is not a string", k)
		}
		pat, err := CompilePattern(k)
		if err != nil {
			return err
		}
		rs, err := ruleset.Compile(src)
		if err != nil {
			return err
		}
		rules = append(rules, Rule{Pattern: pat, Ruleset: rs})
	}
	*p = rules
	return nil
}

// UserInfo is one user's credentials and permissions.
type UserInfo struct {
	Passwd   Password    `json:"passwd"`
	Groups   []string    `json:"groups"`
	Packages Permissions `json:"packages"`
}

// Config is the parsed auth.json document. All top-level keys are
// optional and default to empty.
type Config struct {
	Users    map[string]*UserInfo   `json:"users"`
	Groups   map[string]Permissions `json:"groups"`
	Packages Permissions            `json:"packages"`
}

// Parse decodes an auth.json document.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	for name, u := range cfg.Users {
		if u == nil || u.Passwd.PasswordHash == nil {
			return nil, fmt.Errorf("auth: user %q has no passwd", name)
		}
	}
	return &cfg, nil
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}
