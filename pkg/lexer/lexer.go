// Package lexer implements the scanner for voxl (C2): it consumes
// UTF-8 source from a SourceMap (which indexes line starts itself when
// it is built) and yields a token stream.
//
// Scanner Architecture:
//
// The scanner is a single forward pass over the byte slice. It never
// backtracks more than one byte (peekByte), which keeps token spans
// exact: every Token carries absolute [Start, End) byte offsets rather
// than a line/column pair, so the SourceMap can resolve positions
// lazily only when a diagnostic actually needs to be printed.
//
// Errors are not returned as Go errors: an illegal character or an
// unterminated string produces a synthetic token.Illegal token and a
// call into the Reporter (§6), and scanning continues from the next
// byte. This lets the parser attempt statement-level recovery instead
// of aborting the whole file on the first bad byte.
package lexer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/kristofer/voxl/pkg/reporter"
	"github.com/kristofer/voxl/pkg/srcmap"
	"github.com/kristofer/voxl/pkg/token"
)

// Lexer is the voxl scanner. Create one with New per source file.
type Lexer struct {
	src string
	pos int // byte offset of ch
	rd  int // byte offset after ch
	ch  byte

	sm       *srcmap.SourceMap
	rep      reporter.Reporter
	replMode bool // suppress "unexpected EOF" so the REPL can ask for more input
}

// New creates a Lexer over sm's text, routing scanner errors to rep.
func New(sm *srcmap.SourceMap, rep reporter.Reporter) *Lexer {
	l := &Lexer{src: sm.Text, sm: sm, rep: rep}
	l.readByte()
	return l
}

// SetReplMode toggles suppression of end-of-input scan errors so a
// REPL can accumulate lines across an incomplete statement.
func (l *Lexer) SetReplMode(on bool) { l.replMode = on }

func (l *Lexer) readByte() {
	if l.rd >= len(l.src) {
		l.ch = 0
		l.pos = len(l.src)
		l.rd = len(l.src) + 1
		return
	}
	l.ch = l.src[l.rd]
	l.pos = l.rd
	l.rd++
}

func (l *Lexer) peekByte() byte {
	if l.rd >= len(l.src) {
		return 0
	}
	return l.src[l.rd]
}

func (l *Lexer) errorf(start int, format string, args ...interface{}) token.Token {
	msg := fmt.Sprintf(format, args...)
	l.rep.ScannerError(l.sm, start, l.pos, msg)
	return token.Token{Kind: token.Illegal, Literal: msg, Start: start, End: l.pos}
}

// Next scans and returns the next token.
func (l *Lexer) Next() token.Token {
	l.skipWhitespaceAndComments()

	start := l.pos
	if l.pos >= len(l.src) {
		return token.Token{Kind: token.EOF, Start: start, End: start}
	}

	ch := l.ch

	switch {
	case isIdentStart(ch):
		return l.scanIdent(start)
	case isDigit(ch):
		return l.scanNumber(start)
	case ch == '"':
		return l.scanString(start)
	}

	switch ch {
	case '(':
		l.readByte()
		return tok(token.LParen, "(", start, l.pos)
	case ')':
		l.readByte()
		return tok(token.RParen, ")", start, l.pos)
	case '{':
		l.readByte()
		return tok(token.LBrace, "{", start, l.pos)
	case '}':
		l.readByte()
		return tok(token.RBrace, "}", start, l.pos)
	case '[':
		l.readByte()
		return tok(token.LBracket, "[", start, l.pos)
	case ']':
		l.readByte()
		return tok(token.RBracket, "]", start, l.pos)
	case ',':
		l.readByte()
		return tok(token.Comma, ",", start, l.pos)
	case ';':
		l.readByte()
		return tok(token.Semi, ";", start, l.pos)
	case '.':
		l.readByte()
		return tok(token.Dot, ".", start, l.pos)
	case '|':
		l.readByte()
		return tok(token.Pipe, "|", start, l.pos)
	case '$':
		l.readByte()
		return tok(token.Dollar, "$", start, l.pos)
	case ':':
		l.readByte()
		return tok(token.Decl, ":", start, l.pos)
	case '+':
		l.readByte()
		if l.ch == '+' {
			l.readByte()
			if l.ch == '=' {
				l.readByte()
				return tok(token.PlusPlusEq, "++=", start, l.pos)
			}
			return tok(token.PlusPlus, "++", start, l.pos)
		}
		if l.ch == '=' {
			l.readByte()
			return tok(token.PlusEq, "+=", start, l.pos)
		}
		return tok(token.Plus, "+", start, l.pos)
	case '-':
		l.readByte()
		if l.ch == '=' {
			l.readByte()
			return tok(token.MinusEq, "-=", start, l.pos)
		}
		if l.ch == '>' {
			l.readByte()
			return tok(token.Arrow, "->", start, l.pos)
		}
		return tok(token.Minus, "-", start, l.pos)
	case '*':
		l.readByte()
		if l.ch == '=' {
			l.readByte()
			return tok(token.StarEq, "*=", start, l.pos)
		}
		return tok(token.Star, "*", start, l.pos)
	case '/':
		l.readByte()
		if l.ch == '=' {
			l.readByte()
			return tok(token.SlashEq, "/=", start, l.pos)
		}
		return tok(token.Slash, "/", start, l.pos)
	case '%':
		l.readByte()
		if l.ch == '=' {
			l.readByte()
			return tok(token.PercentEq, "%=", start, l.pos)
		}
		return tok(token.Percent, "%", start, l.pos)
	case '<':
		l.readByte()
		if l.ch == '=' {
			l.readByte()
			return tok(token.LessEq, "<=", start, l.pos)
		}
		if l.ch == '-' {
			l.readByte()
			return tok(token.LeftArrow, "<-", start, l.pos)
		}
		return tok(token.Less, "<", start, l.pos)
	case '>':
		l.readByte()
		if l.ch == '=' {
			l.readByte()
			return tok(token.GreaterEq, ">=", start, l.pos)
		}
		return tok(token.Greater, ">", start, l.pos)
	case '=':
		l.readByte()
		if l.ch == '=' {
			l.readByte()
			return tok(token.Eq, "==", start, l.pos)
		}
		if l.ch == '>' {
			l.readByte()
			return tok(token.FatArrow, "=>", start, l.pos)
		}
		return tok(token.Assign, "=", start, l.pos)
	case '!':
		l.readByte()
		if l.ch == '=' {
			l.readByte()
			return tok(token.NotEq, "!=", start, l.pos)
		}
		return l.errorf(start, "unexpected character '!'")
	}

	// Unknown byte: consume one UTF-8 rune so we make forward progress
	// on non-ASCII illegal input too.
	_, size := utf8.DecodeRuneInString(l.src[l.pos:])
	if size == 0 {
		size = 1
	}
	for i := 0; i < size; i++ {
		l.readByte()
	}
	return l.errorf(start, "illegal character %q", l.src[start:l.pos])
}

func tok(k token.Kind, lit string, start, end int) token.Token {
	return token.Token{Kind: k, Literal: lit, Start: start, End: end}
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch l.ch {
		case ' ', '\t', '\r', '\n':
			l.readByte()
		case '/':
			if l.peekByte() == '/' {
				for l.ch != '\n' && l.pos < len(l.src) {
					l.readByte()
				}
				continue
			}
			return
		default:
			return
		}
	}
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentCont(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func (l *Lexer) scanIdent(start int) token.Token {
	for isIdentCont(l.ch) {
		l.readByte()
	}
	lit := l.src[start:l.pos]
	return tok(token.LookupIdent(lit), lit, start, l.pos)
}

func (l *Lexer) scanNumber(start int) token.Token {
	isFloat := false
	for isDigit(l.ch) {
		l.readByte()
	}
	if l.ch == '.' && isDigit(l.peekByte()) {
		isFloat = true
		l.readByte()
		for isDigit(l.ch) {
			l.readByte()
		}
	}
	lit := l.src[start:l.pos]
	if isFloat {
		return tok(token.Float, lit, start, l.pos)
	}
	return tok(token.Int, lit, start, l.pos)
}

// scanString scans a `"..."` literal, processing escape sequences
// `\" \\ \/ \b \f \n \r \t \uXXXX` per §4.1. The returned Literal is
// the decoded value, not the raw source text.
func (l *Lexer) scanString(start int) token.Token {
	l.readByte() // consume opening quote
	var sb strings.Builder
	for {
		if l.pos >= len(l.src) {
			if !l.replMode {
				return l.errorf(start, "unterminated string literal")
			}
			return token.Token{Kind: token.Illegal, Literal: "", Start: start, End: l.pos}
		}
		if l.ch == '"' {
			l.readByte()
			break
		}
		if l.ch == '\\' {
			l.readByte()
			switch l.ch {
			case '"':
				sb.WriteByte('"')
				l.readByte()
			case '\\':
				sb.WriteByte('\\')
				l.readByte()
			case '/':
				sb.WriteByte('/')
				l.readByte()
			case 'b':
				sb.WriteByte('\b')
				l.readByte()
			case 'f':
				sb.WriteByte('\f')
				l.readByte()
			case 'n':
				sb.WriteByte('\n')
				l.readByte()
			case 'r':
				sb.WriteByte('\r')
				l.readByte()
			case 't':
				sb.WriteByte('\t')
				l.readByte()
			case 'u':
				l.readByte()
				if l.pos+4 > len(l.src) {
					return l.errorf(start, "incomplete \\u escape")
				}
				hex := l.src[l.pos : l.pos+4]
				v, err := strconv.ParseUint(hex, 16, 32)
				if err != nil {
					return l.errorf(start, "bad \\u escape %q", hex)
				}
				sb.WriteRune(rune(v))
				for i := 0; i < 4; i++ {
					l.readByte()
				}
			default:
				return l.errorf(start, "unknown escape sequence '\\%c'", l.ch)
			}
			continue
		}
		sb.WriteByte(l.ch)
		l.readByte()
	}
	return token.Token{Kind: token.String, Literal: sb.String(), Start: start, End: l.pos}
}
