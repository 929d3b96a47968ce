// Package script is a small command language evaluated on top of the
// interpreter tree. It exists so the control surface has something real to
// run: words, braces, quotes, $variables and [command] substitution, with a
// cancellation checkpoint before every command.
package script

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"hive/interp-go/pkg/interp"
	"hive/interp-go/pkg/runtime"
)

// Evaluator implements interp.Evaluator for the command language.
type Evaluator struct{}

func New() *Evaluator { return &Evaluator{} }

var _ interp.Evaluator = (*Evaluator)(nil)

func (e *Evaluator) Evaluate(ctx context.Context, n *interp.Node, script string) runtime.Result {
	cancel := n.Cancellation()
	if limit := cancel.Limits().RecursionLimit; limit > 0 && cancel.Depth() > limit {
		return runtime.Failf("too many nested evaluations (infinite loop?)")
	}
	cmds, err := Parse(script)
	if err != nil {
		return runtime.Fail(runtime.WrapError(runtime.KindInvalidArgument, err, "%s", err.Error()))
	}
	res := runtime.OK("")
	for _, cmd := range cmds {
		if err := cancel.Checkpoint(); err != nil {
			return runtime.Fail(err)
		}
		if err := ctx.Err(); err != nil {
			return runtime.Fail(err)
		}
		words, r := substituteAll(ctx, n, cmd.Words)
		if r.Code != runtime.Ok {
			return annotate(r, cmd)
		}
		if len(words) == 0 {
			continue
		}
		res = n.Invoke(ctx, words[0], words[1:]...)
		if res.Code != runtime.Ok {
			return annotate(res, cmd)
		}
	}
	return res
}

func annotate(r runtime.Result, cmd Command) runtime.Result {
	if r.Code != runtime.Error {
		return r
	}
	return r.Annotate(fmt.Sprintf("while executing %q", truncate(cmd.Source, 60)))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func substituteAll(ctx context.Context, n *interp.Node, words []Word) ([]string, runtime.Result) {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w.kind == wordBraced {
			out = append(out, w.Text)
			continue
		}
		s, r := Substitute(ctx, n, w.Text)
		if r.Code != runtime.Ok {
			return nil, r
		}
		out = append(out, s)
	}
	return out, runtime.OK("")
}

// Substitute performs backslash, variable and command substitution on text
// in the context of n.
func Substitute(ctx context.Context, n *interp.Node, text string) (string, runtime.Result) {
	var b strings.Builder
	for i := 0; i < len(text); {
		c := text[i]
		switch c {
		case '\\':
			if i+1 >= len(text) {
				b.WriteByte(c)
				i++
				continue
			}
			b.WriteString(unescape(text[i+1]))
			i += 2
		case '$':
			name, next := varName(text, i+1)
			if name == "" {
				b.WriteByte(c)
				i++
				continue
			}
			v, ok := n.Variables().Get(name)
			if !ok {
				return "", runtime.Fail(runtime.NewError(runtime.KindNotFound, "can't read %q: no such variable", name))
			}
			b.WriteString(v)
			i = next
		case '[':
			end := matchBracket(text, i)
			if end < 0 {
				return "", runtime.Failf("missing close-bracket")
			}
			r := n.Evaluate(ctx, text[i+1:end])
			if r.Code != runtime.Ok {
				return "", r
			}
			b.WriteString(r.Value)
			i = end + 1
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), runtime.OK("")
}

func unescape(c byte) string {
	switch c {
	case 'n':
		return "\n"
	case 't':
		return "\t"
	case 'r':
		return "\r"
	case '\n':
		return " "
	default:
		return string(c)
	}
}

func varName(text string, i int) (string, int) {
	if i < len(text) && text[i] == '{' {
		end := strings.IndexByte(text[i:], '}')
		if end < 0 {
			return "", i
		}
		return text[i+1 : i+end], i + end + 1
	}
	j := i
	for j < len(text) {
		r := rune(text[j])
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		j++
	}
	return text[i:j], j
}

func matchBracket(text string, open int) int {
	depth := 0
	braces := 0
	for i := open; i < len(text); i++ {
		switch text[i] {
		case '\\':
			i++
		case '{':
			braces++
		case '}':
			if braces > 0 {
				braces--
			}
		case '[':
			if braces == 0 {
				depth++
			}
		case ']':
			if braces == 0 {
				depth--
				if depth == 0 {
					return i
				}
			}
		}
	}
	return -1
}
