// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

package environment

import (
	"fmt"
	"strings"
)

// substitute expands `{{var}}` references in s against vars. Every
// reference must resolve: a transform's script is staged once and run
// later with no human watching it fail, so a typo'd or renamed
// variable must surface as a build error at Command construction time
// rather than reach the shell as a literal, unexpanded "{{name}}" and
// fail (or, worse, silently succeed) for reasons the log gives no hint
// of.
//
// This is a deliberately small subset of Handlebars syntax: plain
// `{{name}}` substitution only, no helpers, no block expressions. No
// library in the example pack implements `{{var}}`-style templating,
// so this hand-rolled pass is the one piece of this package with no
// ecosystem grounding (see DESIGN.md).
func substitute(s string, vars map[string]string) (string, error) {
	var b strings.Builder
	for {
		start := strings.Index(s, "{{")
		if start < 0 {
			b.WriteString(s)
			break
		}
		end := strings.Index(s[start:], "}}")
		if end < 0 {
			b.WriteString(s)
			break
		}
		end += start

		b.WriteString(s[:start])
		name := strings.TrimSpace(s[start+2 : end])
		val, ok := vars[name]
		if !ok {
			return "", fmt.Errorf("undefined template variable %q", name)
		}
		b.WriteString(val)
		s = s[end+2:]
	}
	return b.String(), nil
}
