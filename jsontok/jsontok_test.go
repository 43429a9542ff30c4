package jsontok_test

import (
	"io"
	"testing"

	"github.com/grailbio/respire/jsontok"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenize(t *testing.T, input string) []jsontok.Token {
	t.Helper()
	tok := jsontok.New([]byte(input))
	var toks []jsontok.Token
	for {
		tk, err := tok.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		toks = append(toks, tk)
	}
	return toks
}

func TestSimpleObject(t *testing.T) {
	toks := tokenize(t, `{"cmd": ["gcc", "-o", "a.out"]}`)
	require.Len(t, toks, 8)
	assert.Equal(t, jsontok.StartObject, toks[0].Kind)
	assert.Equal(t, jsontok.String, toks[1].Kind)
	assert.Equal(t, "cmd", toks[1].Value.AsString())
	assert.Equal(t, jsontok.StartList, toks[2].Kind)
	assert.Equal(t, "gcc", toks[3].Value.AsString())
	assert.Equal(t, "-o", toks[4].Value.AsString())
	assert.Equal(t, "a.out", toks[5].Value.AsString())
	assert.Equal(t, jsontok.EndList, toks[6].Kind)
	assert.Equal(t, jsontok.EndObject, toks[7].Kind)
}

func TestEscapedQuoteAndBackslash(t *testing.T) {
	toks := tokenize(t, `["a\"b", "c\\d"]`)
	require.Len(t, toks, 4)
	assert.Equal(t, `a"b`, toks[1].Value.AsString())
	assert.Equal(t, `c\d`, toks[2].Value.AsString())
}

func TestWhitespaceIgnored(t *testing.T) {
	toks := tokenize(t, "  [ \n\t \"x\"  ,  \"y\" ] \n")
	require.Len(t, toks, 4)
	assert.Equal(t, "x", toks[1].Value.AsString())
	assert.Equal(t, "y", toks[2].Value.AsString())
}

func TestTrailingCommaAccepted(t *testing.T) {
	toks := tokenize(t, `["a", "b",]`)
	require.Len(t, toks, 4)
	assert.Equal(t, jsontok.StartList, toks[0].Kind)
	assert.Equal(t, "a", toks[1].Value.AsString())
	assert.Equal(t, jsontok.EndList, toks[3].Kind)

	toks = tokenize(t, `{"a": "b",}`)
	require.Len(t, toks, 4)
	assert.Equal(t, jsontok.EndObject, toks[3].Kind)
}

func TestDoubleCommaIsInvalid(t *testing.T) {
	tok := jsontok.New([]byte(`["a",, "b"]`))
	var err error
	for {
		_, err = tok.Next()
		if err != nil {
			break
		}
	}
	require.Error(t, err)
	require.NotEqual(t, io.EOF, err)
}

func TestUnexpectedEOF(t *testing.T) {
	tok := jsontok.New([]byte(`["a", "b"`))
	var err error
	for {
		_, err = tok.Next()
		if err != nil {
			break
		}
	}
	require.Error(t, err)
	require.NotEqual(t, io.EOF, err)
}

func TestMismatchedBrackets(t *testing.T) {
	tok := jsontok.New([]byte(`["a"}`))
	var err error
	for {
		_, err = tok.Next()
		if err != nil {
			break
		}
	}
	require.Error(t, err)
}

func TestNestedObjectsAndLists(t *testing.T) {
	toks := tokenize(t, `{"build": [{"cmd": ["x"], "out": ["y"]}]}`)
	require.NotEmpty(t, toks)
	assert.Equal(t, jsontok.StartObject, toks[0].Kind)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "StartList", jsontok.StartList.String())
	assert.Equal(t, "String", jsontok.String.String())
}
