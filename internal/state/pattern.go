package state

import (
	"fmt"
	"regexp"
	"strings"
)

// compilePattern turns a glob such as "sensegg.*.ntcT" into an anchored
// regular expression. '*' matches any run of characters, dots included.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		pattern = "*"
	}
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	re, err := regexp.Compile("^" + strings.Join(parts, ".*") + "$")
	if err != nil {
		return nil, fmt.Errorf("invalid state pattern %q: %w", pattern, err)
	}
	return re, nil
}
