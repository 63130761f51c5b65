package ratelimit

import (
	"fmt"
	"regexp"
	"strings"
)

// toolRule is a compiled per-tool limit rule. Glob patterns are compiled
// once at registration with all regex metacharacters escaped, so rule
// configuration cannot inject arbitrary expressions.
type toolRule struct {
	pattern   string
	perMinute int
	reason    string
	re        *regexp.Regexp // nil for exact patterns
}

// compileToolRule builds a toolRule from a pattern. Patterns containing '*'
// become anchored regexes; anything else is matched exactly.
func compileToolRule(pattern string, perMinute int, reason string) (*toolRule, error) {
	if pattern == "" {
		return nil, fmt.Errorf("tool pattern is required")
	}
	if perMinute <= 0 {
		return nil, fmt.Errorf("per-minute limit must be positive")
	}

	rule := &toolRule{pattern: pattern, perMinute: perMinute, reason: reason}
	if strings.Contains(pattern, "*") {
		parts := strings.Split(pattern, "*")
		for i, part := range parts {
			parts[i] = regexp.QuoteMeta(part)
		}
		re, err := regexp.Compile("^" + strings.Join(parts, ".*") + "$")
		if err != nil {
			return nil, fmt.Errorf("invalid tool pattern %q: %w", pattern, err)
		}
		rule.re = re
	}
	return rule, nil
}

func (r *toolRule) matches(toolName string) bool {
	if r.re != nil {
		return r.re.MatchString(toolName)
	}
	return r.pattern == toolName
}

// matchToolRule returns the first matching rule: exact patterns take
// precedence over globs, each in registration order.
func matchToolRule(rules []*toolRule, toolName string) *toolRule {
	for _, rule := range rules {
		if rule.re == nil && rule.matches(toolName) {
			return rule
		}
	}
	for _, rule := range rules {
		if rule.re != nil && rule.matches(toolName) {
			return rule
		}
	}
	return nil
}
