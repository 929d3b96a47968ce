package script

import "strings"

// FormatList renders items as a list: elements holding blanks or special
// characters are braced, empty elements become {}.
func FormatList(items []string) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = quoteElement(item)
	}
	return strings.Join(parts, " ")
}

func quoteElement(s string) string {
	if s == "" {
		return "{}"
	}
	if !strings.ContainsAny(s, " \t\n\r;\"{}[]$\\") && s[0] != '#' {
		return s
	}
	if balancedBraces(s) && !strings.HasSuffix(s, "\\") {
		return "{" + s + "}"
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case ' ', '\t', ';', '"', '{', '}', '[', ']', '$', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func balancedBraces(s string) bool {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

// SplitList parses a list produced by FormatList (or written by hand) back
// into its elements. No substitution is performed other than backslash
// escapes in unbraced elements.
func SplitList(s string) ([]string, error) {
	p := &parser{src: s, line: 1}
	var out []string
	for {
		for !p.eof() && (isBlank(p.peek()) || p.peek() == '\n') {
			p.advance()
		}
		if p.eof() {
			return out, nil
		}
		var (
			w   Word
			err error
		)
		switch p.peek() {
		case '{':
			w, err = p.braced()
		case '"':
			w, err = p.quoted()
		default:
			start := p.pos
			for !p.eof() && !isBlank(p.peek()) && p.peek() != '\n' {
				if p.advance() == '\\' && !p.eof() {
					p.advance()
				}
			}
			w = Word{Text: p.src[start:p.pos], kind: wordBare}
		}
		if err != nil {
			return nil, err
		}
		if w.kind == wordBraced {
			out = append(out, w.Text)
		} else {
			out = append(out, unescapeAll(w.Text))
		}
	}
}

func unescapeAll(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			b.WriteString(unescape(s[i+1]))
			i++
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
