// Package css extracts the style information the geometry pipeline needs
// from a deck's stylesheet and inline style attributes. It understands the
// small property set styled containers and background figures use; anything
// else is skipped, never an error.
package css

import (
	"strconv"
	"strings"
)

// Value is a single parsed property value. Raw always holds the original
// text; Value/Unit are filled for dimensions and percentages, Keyword for
// identifiers and anything the tokenizer could not reduce further.
type Value struct {
	Raw     string
	Value   float64
	Unit    string
	Keyword string
}

// Px returns the value in pixels when the unit is px.
func (v Value) Px() (float64, bool) {
	if v.Unit == "px" {
		return v.Value, true
	}
	return 0, false
}

// Percent returns the value when the unit is %.
func (v Value) Percent() (float64, bool) {
	if v.Unit == "%" {
		return v.Value, true
	}
	return 0, false
}

// Number returns a unitless numeric value ("0.85" for opacity and friends).
func (v Value) Number() (float64, bool) {
	if v.Unit == "" && v.Raw != "" {
		if f, err := strconv.ParseFloat(v.Raw, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// URL extracts the target of a url(...) value, unquoted.
func (v Value) URL() (string, bool) {
	s := strings.TrimSpace(v.Raw)
	i := strings.Index(strings.ToLower(s), "url(")
	if i < 0 {
		return "", false
	}
	s = s[i+len("url("):]
	j := strings.IndexByte(s, ')')
	if j < 0 {
		return "", false
	}
	u := unquote(strings.TrimSpace(s[:j]))
	return u, u != ""
}

// Scale extracts the factor of a transform: scale(...) value.
func (v Value) Scale() (float64, bool) {
	s := strings.ToLower(v.Raw)
	_, rest, ok := strings.Cut(s, "scale(")
	if !ok {
		return 0, false
	}
	num, _, ok := strings.Cut(rest, ")")
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Position parses a two-component object-position value. Both components
// must share the unit, "%" or "px"; single keywords and mixed units are not
// positions this engine acts on.
func (v Value) Position() (x, y float64, unit string, ok bool) {
	fields := strings.Fields(v.Raw)
	if len(fields) != 2 {
		return 0, 0, "", false
	}
	for _, u := range []string{"%", "px"} {
		if strings.HasSuffix(fields[0], u) && strings.HasSuffix(fields[1], u) {
			px, err1 := strconv.ParseFloat(strings.TrimSuffix(fields[0], u), 64)
			py, err2 := strconv.ParseFloat(strings.TrimSuffix(fields[1], u), 64)
			if err1 != nil || err2 != nil {
				return 0, 0, "", false
			}
			return px, py, u, true
		}
	}
	return 0, 0, "", false
}

// Props is a property-name keyed declaration set.
type Props map[string]Value

// Get returns a property value, true when the property is declared.
func (p Props) Get(name string) (Value, bool) {
	v, ok := p[name]
	return v, ok
}

// Merge overlays o onto p; o wins on conflicts.
func (p Props) Merge(o Props) {
	for k, v := range o {
		p[k] = v
	}
}

// Rule is one class-indexed ruleset. A selector list mentioning several
// classes indexes the same property block under each of them, mirroring the
// forgiving "selector contains the class" matching the rendering pipeline
// relies on.
type Rule struct {
	Class string
	Props Props
}

// Stylesheet is the parsed deck stylesheet.
type Stylesheet struct {
	Rules    []Rule
	Warnings []string
}

// Class returns the merged properties of every rule indexed under the given
// class, later rules winning.
func (s *Stylesheet) Class(name string) Props {
	merged := make(Props)
	for _, r := range s.Rules {
		if r.Class == name {
			merged.Merge(r.Props)
		}
	}
	return merged
}

// Resolve merges class rules in class-list order, then overlays inline
// declarations, matching CSS cascade precedence for the simple selectors
// this engine supports.
func (s *Stylesheet) Resolve(classes []string, inline Props) Props {
	merged := make(Props)
	for _, c := range classes {
		merged.Merge(s.Class(c))
	}
	merged.Merge(inline)
	return merged
}

// unquote removes surrounding quotes from a string.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return s
	}
	if (s[0] == '"' && s[len(s)-1] == '"') ||
		(s[0] == '\'' && s[len(s)-1] == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}
