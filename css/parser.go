package css

import (
	"bytes"
	"strconv"
	"strings"
	"unicode"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"
)

// Parser parses deck stylesheets and inline style attributes.
type Parser struct {
	log *zap.Logger
}

// NewParser creates a new CSS parser.
func NewParser(log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log.Named("css-parser")}
}

// Parse parses stylesheet text into class-indexed rules. At-rules and
// selectors without classes carry nothing this engine acts on and are
// skipped with a debug note.
func (p *Parser) Parse(data []byte) *Stylesheet {
	sheet := &Stylesheet{}

	input := parse.NewInput(bytes.NewReader(data))
	parser := css.NewParser(input, false)

	for {
		gt, _, data := parser.Next()

		switch gt {
		case css.ErrorGrammar:
			if err := parser.Err(); err != nil && err.Error() != "EOF" {
				p.log.Debug("CSS parse error", zap.Error(err))
			}
			return sheet

		case css.BeginAtRuleGrammar:
			p.log.Debug("Skipping @-rule", zap.String("rule", string(data)))
			p.skipAtRuleBlock(parser)

		case css.BeginRulesetGrammar, css.QualifiedRuleGrammar:
			selectors := p.parseSelectors(data, parser.Values())
			props := p.parseDeclarations(parser)

			classes := classesOf(selectors)
			if len(classes) == 0 && len(props) > 0 {
				sheet.Warnings = append(sheet.Warnings, "selector without class: "+strings.Join(selectors, ", "))
				continue
			}
			for _, c := range classes {
				rule := Rule{Class: c, Props: make(Props, len(props))}
				rule.Props.Merge(props)
				sheet.Rules = append(sheet.Rules, rule)
			}
		}
	}
}

// Inline parses a style attribute value into properties. Custom properties
// (--marpit-* variables) are kept alongside regular declarations.
func (p *Parser) Inline(style string) Props {
	props := make(Props)
	if len(strings.TrimSpace(style)) == 0 {
		return props
	}

	input := parse.NewInput(bytes.NewReader([]byte(style)))
	parser := css.NewParser(input, true)

	for {
		gt, _, data := parser.Next()

		switch gt {
		case css.ErrorGrammar:
			return props

		case css.DeclarationGrammar, css.CustomPropertyGrammar:
			props[strings.ToLower(string(data))] = p.parsePropertyValue(parser.Values())
		}
	}
}

// parseSelectors extracts selector strings from token data.
func (p *Parser) parseSelectors(data []byte, values []css.Token) []string {
	var sb strings.Builder
	sb.Write(data)
	for _, v := range values {
		sb.Write(v.Data)
	}

	var selectors []string
	for _, s := range strings.Split(sb.String(), ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			selectors = append(selectors, s)
		}
	}
	return selectors
}

// classesOf collects every class name mentioned anywhere in the selector
// list. "div .portrait" and ".a, .b" both index under the classes they name.
func classesOf(selectors []string) []string {
	var classes []string
	seen := make(map[string]struct{})
	for _, sel := range selectors {
		rest := sel
		for {
			i := strings.IndexByte(rest, '.')
			if i < 0 {
				break
			}
			rest = rest[i+1:]
			end := strings.IndexFunc(rest, func(r rune) bool {
				return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_'
			})
			name := rest
			if end >= 0 {
				name = rest[:end]
				rest = rest[end:]
			} else {
				rest = ""
			}
			if name == "" {
				continue
			}
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				classes = append(classes, name)
			}
		}
	}
	return classes
}

// parseDeclarations parses property declarations until EndRulesetGrammar.
func (p *Parser) parseDeclarations(parser *css.Parser) Props {
	props := make(Props)

	for {
		gt, _, data := parser.Next()

		switch gt {
		case css.ErrorGrammar, css.EndRulesetGrammar:
			return props

		case css.DeclarationGrammar, css.CustomPropertyGrammar:
			if values := parser.Values(); len(values) > 0 {
				props[strings.ToLower(string(data))] = p.parsePropertyValue(values)
			}
		}
	}
}

// parsePropertyValue converts CSS tokens to a Value.
func (p *Parser) parsePropertyValue(tokens []css.Token) Value {
	var rawParts []string
	var solo css.Token
	values := 0
	for _, t := range tokens {
		if t.TokenType == css.WhitespaceToken {
			if len(rawParts) > 0 {
				rawParts = append(rawParts, " ")
			}
			continue
		}
		rawParts = append(rawParts, string(t.Data))
		solo = t
		values++
	}
	val := Value{Raw: strings.TrimSpace(strings.Join(rawParts, ""))}
	if values == 0 || val.Raw == "" {
		return Value{}
	}

	if values == 1 {
		switch solo.TokenType {
		case css.DimensionToken:
			val.Value, val.Unit = parseDimension(string(solo.Data))
		case css.PercentageToken:
			val.Value, _ = strconv.ParseFloat(strings.TrimSuffix(string(solo.Data), "%"), 64)
			val.Unit = "%"
		case css.NumberToken:
			val.Value, _ = strconv.ParseFloat(string(solo.Data), 64)
		case css.IdentToken:
			val.Keyword = strings.ToLower(string(solo.Data))
		case css.StringToken:
			val.Keyword = unquote(string(solo.Data))
		default:
			// Custom property values come back as a single untyped token,
			// so the percentage/dimension typing happens on the raw text.
			reduceRaw(&val)
		}
		return val
	}

	// Functions (url, scale) and multi-value properties keep the raw text;
	// the typed accessors on Value pick them apart on demand.
	val.Keyword = val.Raw
	return val
}

// reduceRaw types a value the tokenizer kept as raw text.
func reduceRaw(v *Value) {
	s := v.Raw
	if strings.ContainsRune(s, ' ') {
		v.Keyword = s
		return
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		v.Value = f
		return
	}
	if num, unit := parseDimension(s); unit == "%" || isUnitName(unit) {
		v.Value, v.Unit = num, unit
		return
	}
	v.Keyword = strings.ToLower(s)
}

// isUnitName reports whether s looks like a CSS unit identifier.
func isUnitName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// parseDimension extracts numeric value and unit from a dimension token.
func parseDimension(s string) (float64, string) {
	numEnd := 0
	for i, r := range s {
		if unicode.IsDigit(r) || r == '.' || r == '-' || r == '+' {
			numEnd = i + 1
		} else {
			break
		}
	}
	if numEnd == 0 {
		return 0, ""
	}
	num, _ := strconv.ParseFloat(s[:numEnd], 64)
	return num, strings.ToLower(s[numEnd:])
}

// skipAtRuleBlock skips tokens until the matching end of an @-rule block.
func (p *Parser) skipAtRuleBlock(parser *css.Parser) {
	depth := 1
	for depth > 0 {
		gt, _, _ := parser.Next()
		switch gt {
		case css.ErrorGrammar:
			return
		case css.BeginAtRuleGrammar, css.BeginRulesetGrammar:
			depth++
		case css.EndAtRuleGrammar, css.EndRulesetGrammar:
			depth--
		}
	}
}
