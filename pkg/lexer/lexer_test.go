package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/voxl/pkg/reporter"
	"github.com/kristofer/voxl/pkg/srcmap"
	"github.com/kristofer/voxl/pkg/token"
)

func scanAll(t *testing.T, src string) []token.Token {
	t.Helper()
	sm := srcmap.New("<test>", "", src)
	l := New(sm, reporter.Discard{})
	var toks []token.Token
	for {
		tok := l.Next()
		toks = append(toks, tok)
		if tok.Kind == token.EOF {
			break
		}
	}
	return toks
}

func TestLexerPunctuationAndOperators(t *testing.T) {
	toks := scanAll(t, `+= -= *= /= %= ++= ++ <- -> => : =`)
	require.Len(t, toks, 13)
	want := []token.Kind{
		token.PlusEq, token.MinusEq, token.StarEq, token.SlashEq,
		token.PercentEq, token.PlusPlusEq, token.PlusPlus,
		token.LeftArrow, token.Arrow, token.FatArrow, token.Decl, token.Assign,
	}
	for i, k := range want {
		assert.Equal(t, k, toks[i].Kind, "token %d", i)
	}
	assert.Equal(t, token.EOF, toks[len(toks)-1].Kind)
}

func TestLexerKeywords(t *testing.T) {
	toks := scanAll(t, "fn ret if elif else loop while for in break continue class impl try catch finally throw match use null true false and or not")
	kinds := []token.Kind{
		token.Fn, token.Ret, token.If, token.Elif, token.Else, token.Loop,
		token.While, token.For, token.In, token.Break, token.Continue,
		token.Class, token.Impl, token.Try, token.Catch, token.Finally,
		token.Throw, token.Match, token.Use, token.Null, token.True,
		token.False, token.And, token.Or, token.Not,
	}
	require.Len(t, toks, len(kinds)+1)
	for i, k := range kinds {
		assert.Equal(t, k, toks[i].Kind)
	}
}

func TestLexerStringEscapes(t *testing.T) {
	toks := scanAll(t, `"a\nb\tcA"`)
	require.Len(t, toks, 2)
	assert.Equal(t, token.String, toks[0].Kind)
	assert.Equal(t, "a\nb\tcA", toks[0].Literal)
}

func TestLexerNumbers(t *testing.T) {
	toks := scanAll(t, "10 3.14 0")
	require.Len(t, toks, 4)
	assert.Equal(t, token.Int, toks[0].Kind)
	assert.Equal(t, "10", toks[0].Literal)
	assert.Equal(t, token.Float, toks[1].Kind)
	assert.Equal(t, "3.14", toks[1].Literal)
}

func TestLexerComment(t *testing.T) {
	toks := scanAll(t, "1 // a comment\n2")
	require.Len(t, toks, 3)
	assert.Equal(t, "1", toks[0].Literal)
	assert.Equal(t, "2", toks[1].Literal)
}

func TestLexerUnterminatedStringReportsError(t *testing.T) {
	sm := srcmap.New("<test>", "", `"abc`)
	rep := &collectingReporter{}
	l := New(sm, rep)
	tok := l.Next()
	assert.Equal(t, token.Illegal, tok.Kind)
	assert.Len(t, rep.scannerErrs, 1)
}

type collectingReporter struct {
	reporter.Discard
	scannerErrs []string
}

func (r *collectingReporter) ScannerError(sm *srcmap.SourceMap, start, end int, msg string) {
	r.scannerErrs = append(r.scannerErrs, msg)
}
