package script

import (
	"errors"
	"fmt"
	"strings"
)

type wordKind int

const (
	wordBare wordKind = iota
	wordQuoted
	wordBraced
)

// Word is one word of a command as written. Braced words are taken
// literally; bare and quoted words go through substitution.
type Word struct {
	Text string
	kind wordKind
}

// Command is one parsed command together with its source text.
type Command struct {
	Words  []Word
	Source string
	Line   int
}

// SyntaxError reports a malformed script.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error on line %d: %s", e.Line, e.Msg)
}

// Incomplete reports whether err means the script ended inside an open
// brace, quote or bracket, so more input could complete it.
func Incomplete(err error) bool {
	var se *SyntaxError
	if !errors.As(err, &se) {
		return false
	}
	return strings.HasPrefix(se.Msg, "missing ")
}

type parser struct {
	src  string
	pos  int
	line int
}

// Parse splits script into commands. Commands end at a newline or ";",
// words are separated by blanks, and "#" at the start of a command begins a
// comment running to the end of the line.
func Parse(script string) ([]Command, error) {
	p := &parser{src: script, line: 1}
	var cmds []Command
	for {
		cmd, ok, err := p.command()
		if err != nil {
			return nil, err
		}
		if !ok {
			return cmds, nil
		}
		if len(cmd.Words) > 0 {
			cmds = append(cmds, cmd)
		}
	}
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte { return p.src[p.pos] }

func (p *parser) advance() byte {
	c := p.src[p.pos]
	p.pos++
	if c == '\n' {
		p.line++
	}
	return c
}

func isBlank(c byte) bool { return c == ' ' || c == '\t' || c == '\r' }

func isTerminator(c byte) bool { return c == '\n' || c == ';' }

func (p *parser) skipBlanks() {
	for !p.eof() {
		c := p.peek()
		if isBlank(c) {
			p.advance()
			continue
		}
		if c == '\\' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '\n' {
			p.advance()
			p.advance()
			continue
		}
		return
	}
}

func (p *parser) command() (Command, bool, error) {
	// skip separators and comments between commands
	for {
		for !p.eof() && (isBlank(p.peek()) || isTerminator(p.peek())) {
			p.advance()
		}
		if p.eof() {
			return Command{}, false, nil
		}
		if p.peek() != '#' {
			break
		}
		for !p.eof() && p.peek() != '\n' {
			p.advance()
		}
	}

	cmd := Command{Line: p.line}
	start := p.pos
	for {
		p.skipBlanks()
		if p.eof() || isTerminator(p.peek()) {
			cmd.Source = strings.TrimSpace(p.src[start:p.pos])
			return cmd, true, nil
		}
		w, err := p.word()
		if err != nil {
			return Command{}, false, err
		}
		cmd.Words = append(cmd.Words, w)
	}
}

func (p *parser) word() (Word, error) {
	switch p.peek() {
	case '{':
		return p.braced()
	case '"':
		return p.quoted()
	default:
		return p.bare()
	}
}

func (p *parser) braced() (Word, error) {
	line := p.line
	p.advance()
	start := p.pos
	depth := 1
	for !p.eof() {
		c := p.advance()
		switch c {
		case '\\':
			if !p.eof() {
				p.advance()
			}
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				text := p.src[start : p.pos-1]
				if !p.eof() && !isBlank(p.peek()) && !isTerminator(p.peek()) {
					return Word{}, &SyntaxError{Line: p.line, Msg: "extra characters after close-brace"}
				}
				return Word{Text: text, kind: wordBraced}, nil
			}
		}
	}
	return Word{}, &SyntaxError{Line: line, Msg: "missing close-brace"}
}

func (p *parser) quoted() (Word, error) {
	line := p.line
	p.advance()
	start := p.pos
	for !p.eof() {
		c := p.peek()
		switch c {
		case '\\':
			p.advance()
			if !p.eof() {
				p.advance()
			}
		case '[':
			if err := p.bracket(); err != nil {
				return Word{}, err
			}
		case '"':
			text := p.src[start:p.pos]
			p.advance()
			if !p.eof() && !isBlank(p.peek()) && !isTerminator(p.peek()) {
				return Word{}, &SyntaxError{Line: p.line, Msg: "extra characters after close-quote"}
			}
			return Word{Text: text, kind: wordQuoted}, nil
		default:
			p.advance()
		}
	}
	return Word{}, &SyntaxError{Line: line, Msg: `missing "`}
}

func (p *parser) bare() (Word, error) {
	start := p.pos
	for !p.eof() {
		c := p.peek()
		if isBlank(c) || isTerminator(c) {
			break
		}
		switch c {
		case '\\':
			p.advance()
			if !p.eof() {
				p.advance()
			}
		case '[':
			if err := p.bracket(); err != nil {
				return Word{}, err
			}
		default:
			p.advance()
		}
	}
	return Word{Text: p.src[start:p.pos], kind: wordBare}, nil
}

// bracket skips a [command] substitution, nested brackets and braces
// included.
func (p *parser) bracket() error {
	line := p.line
	p.advance()
	depth := 1
	for !p.eof() {
		c := p.advance()
		switch c {
		case '\\':
			if !p.eof() {
				p.advance()
			}
		case '{':
			p.pos--
			if _, err := p.braced(); err != nil {
				// a brace inside a bracket may legitimately be followed by
				// anything; only an unterminated one is an error
				if se, ok := err.(*SyntaxError); ok && se.Msg == "missing close-brace" {
					return err
				}
			}
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return nil
			}
		}
	}
	return &SyntaxError{Line: line, Msg: "missing close-bracket"}
}
