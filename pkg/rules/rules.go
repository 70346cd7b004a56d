// Package rules restricts sync direction per logical container using
// wildcard patterns. Evaluation is category-based: an explicit skip pattern
// always wins over directional and default rules, so overlapping patterns
// can never accidentally sync a container that was opted out.
package rules

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Direction is the permitted sync flow for a container.
type Direction string

const (
	DirectionSkip          Direction = "skip"
	DirectionJoplinToVault Direction = "joplin-to-vault"
	DirectionVaultToJoplin Direction = "vault-to-joplin"
	DirectionBidirectional Direction = "bidirectional"
)

// AllowsJoplinToVault reports whether content may flow joplin -> vault.
func (d Direction) AllowsJoplinToVault() bool {
	return d == DirectionJoplinToVault || d == DirectionBidirectional
}

// AllowsVaultToJoplin reports whether content may flow vault -> joplin.
func (d Direction) AllowsVaultToJoplin() bool {
	return d == DirectionVaultToJoplin || d == DirectionBidirectional
}

// Document is the on-disk rule configuration: four named categories, each an
// ordered list of glob patterns matched against full container names.
type Document struct {
	SkipSync             []string `yaml:"skip_sync"`
	JoplinToObsidianOnly []string `yaml:"joplin_to_obsidian_only"`
	ObsidianToJoplinOnly []string `yaml:"obsidian_to_joplin_only"`
	Bidirectional        []string `yaml:"bidirectional"`
}

// Set holds the compiled rule patterns.
type Set struct {
	skip          []*regexp.Regexp
	joplinToVault []*regexp.Regexp
	vaultToJoplin []*regexp.Regexp
	bidirectional []*regexp.Regexp
}

// Compile builds a Set from a rule document. A malformed pattern is a fatal
// configuration error: syncing with partially applied rules is worse than
// not starting.
func Compile(doc Document) (*Set, error) {
	s := &Set{}
	for _, c := range []struct {
		name     string
		patterns []string
		dst      *[]*regexp.Regexp
	}{
		{"skip_sync", doc.SkipSync, &s.skip},
		{"joplin_to_obsidian_only", doc.JoplinToObsidianOnly, &s.joplinToVault},
		{"obsidian_to_joplin_only", doc.ObsidianToJoplinOnly, &s.vaultToJoplin},
		{"bidirectional", doc.Bidirectional, &s.bidirectional},
	} {
		for _, p := range c.patterns {
			re, err := compileGlob(p)
			if err != nil {
				return nil, fmt.Errorf("rule category %s: pattern %q: %w", c.name, p, err)
			}
			*c.dst = append(*c.dst, re)
		}
	}
	return s, nil
}

// Load reads and compiles a YAML rule document. A missing file is not an
// error: every container then defaults to bidirectional.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Compile(Document{})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("malformed rule document %s: %w", path, err)
	}
	return Compile(doc)
}

// Resolve returns the direction for a container. Categories are checked in
// fixed order regardless of how the document lists them: skip first, then
// joplin-only, then vault-only, then bidirectional. No match means
// bidirectional.
func (s *Set) Resolve(container string) Direction {
	if matchAny(s.skip, container) {
		return DirectionSkip
	}
	if matchAny(s.joplinToVault, container) {
		return DirectionJoplinToVault
	}
	if matchAny(s.vaultToJoplin, container) {
		return DirectionVaultToJoplin
	}
	return DirectionBidirectional
}

func matchAny(res []*regexp.Regexp, text string) bool {
	for _, re := range res {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// compileGlob translates a glob pattern to an anchored regexp: * matches any
// run of characters, ? exactly one, everything else is literal. Matching is
// case-sensitive.
func compileGlob(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString(`\A`)
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(`.*`)
		case '?':
			b.WriteString(`.`)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString(`\z`)
	return regexp.Compile(b.String())
}
