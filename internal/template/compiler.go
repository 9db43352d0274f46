// Package template renders {{variable}} placeholders in operator-authored
// message patterns.
//
// Substitution is fail-open: a placeholder with no binding is left in the
// output as literal text so a campaign degrades visibly instead of aborting.
package template

import (
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

type segment struct {
	literal string
	name    string // empty for literal segments
	raw     string
}

// Compiled is a pattern scanned once and rendered many times.
type Compiled struct {
	pattern  string
	segments []segment
	vars     []string
}

// Compile scans pattern for placeholders.
func Compile(pattern string) *Compiled {
	c := &Compiled{pattern: pattern}
	seen := make(map[string]struct{})

	last := 0
	for _, m := range tokenPattern.FindAllStringSubmatchIndex(pattern, -1) {
		if m[0] > last {
			c.segments = append(c.segments, segment{literal: pattern[last:m[0]]})
		}
		name := pattern[m[2]:m[3]]
		c.segments = append(c.segments, segment{name: name, raw: pattern[m[0]:m[1]]})
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			c.vars = append(c.vars, name)
		}
		last = m[1]
	}
	if last < len(pattern) {
		c.segments = append(c.segments, segment{literal: pattern[last:]})
	}
	return c
}

func (c *Compiled) Pattern() string {
	return c.pattern
}

// Variables returns placeholder names in first-appearance order.
func (c *Compiled) Variables() []string {
	out := make([]string, len(c.vars))
	copy(out, c.vars)
	return out
}

// Render substitutes bound placeholders verbatim and leaves the rest as
// written in the pattern.
func (c *Compiled) Render(vars map[string]string) string {
	if len(c.vars) == 0 {
		return c.pattern
	}
	var b strings.Builder
	b.Grow(len(c.pattern))
	for _, s := range c.segments {
		if s.name == "" {
			b.WriteString(s.literal)
			continue
		}
		if v, ok := vars[s.name]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(s.raw)
		}
	}
	return b.String()
}

// Unresolved lists placeholder names that have no binding in vars.
func (c *Compiled) Unresolved(vars map[string]string) []string {
	var out []string
	for _, name := range c.vars {
		if _, ok := vars[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}

func Render(pattern string, vars map[string]string) string {
	return Compile(pattern).Render(vars)
}

func Variables(pattern string) []string {
	return Compile(pattern).Variables()
}

func Unresolved(pattern string, vars map[string]string) []string {
	return Compile(pattern).Unresolved(vars)
}
