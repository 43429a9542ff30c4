// Package jsontok implements a streaming tokenizer for the restricted
// JSON dialect used by registry files: lists, objects, and strings
// only (no numbers, booleans, or null). Punctuation follows the
// original tokenizer's grammar exactly, including one quirk: a comma
// immediately followed by a closing bracket is accepted rather than
// rejected, since the state reached after a comma is the same
// "waiting for value"/"waiting for key" state used at the start of a
// list or object, and that state treats a closing bracket as a valid
// way to end the list/object.
//
// Tokenizer scans a single in-memory buffer and returns string tokens
// as zero-copy jsonpath.View values into that buffer, mirroring the
// "persisted input memory" mode of the tokenizer this package is
// modeled on: callers that read a whole registry file into memory
// before parsing it (which registry.Parse always does) get borrowed
// string views instead of per-token allocations.
package jsontok

import (
	"io"

	"github.com/grailbio/respire/errors"
	"github.com/grailbio/respire/internal/strview"
	"github.com/grailbio/respire/jsonpath"
)

// Kind identifies the syntactic class of a Token.
type Kind int

const (
	StartList Kind = iota
	EndList
	StartObject
	EndObject
	String
)

func (k Kind) String() string {
	switch k {
	case StartList:
		return "StartList"
	case EndList:
		return "EndList"
	case StartObject:
		return "StartObject"
	case EndObject:
		return "EndObject"
	case String:
		return "String"
	default:
		return "Unknown"
	}
}

// Token is one lexical unit of the registry JSON dialect. Value is
// only populated when Kind == String.
type Token struct {
	Kind  Kind
	Value jsonpath.View
}

// parseState mirrors the original tokenizer's scope stack entries.
type parseState int

const (
	topLevelWaitingForValue parseState = iota
	topLevelWaitingForComma
	listWaitingForValue
	listWaitingForComma
	objectWaitingForKey
	objectWaitingForColon
	objectWaitingForValue
	objectWaitingForComma
	stringWaitingForChar
	stringWaitingForEscapedChar
)

// Tokenizer scans a fixed input buffer into a sequence of Tokens.
type Tokenizer struct {
	input []byte
	pos   int

	scopeStack []parseState

	// stringStart is the offset of the first byte after the opening
	// quote of the string value currently being scanned. Because the
	// whole input is held in one contiguous buffer, the raw (still
	// escaped) value of a string token is always the single contiguous
	// span input[stringStart:pos] at the closing quote; no piecewise
	// accumulation across buffer boundaries is needed.
	stringStart int

	done bool
}

// New returns a Tokenizer over input. input must not be mutated while
// any jsonpath.View returned from Next is still in use.
func New(input []byte) *Tokenizer {
	return &Tokenizer{
		input:      input,
		scopeStack: []parseState{topLevelWaitingForValue},
	}
}

// Next returns the next token in the stream. It returns io.EOF once
// the top-level value has been fully consumed with no trailing
// garbage. A malformed document yields a *errors.Error of kind
// errors.Invalid.
func (t *Tokenizer) Next() (Token, error) {
	for {
		if t.done {
			return Token{}, io.EOF
		}
		if t.pos >= len(t.input) {
			t.done = true
			top := t.scopeStack[len(t.scopeStack)-1]
			if top == topLevelWaitingForValue || top == topLevelWaitingForComma {
				return Token{}, io.EOF
			}
			return Token{}, errUnexpectedEOF()
		}
		c := t.input[t.pos]
		tok, produced, err := t.parseNextChar(c)
		t.pos++
		if err != nil {
			t.done = true
			return Token{}, err
		}
		if produced {
			return tok, nil
		}
	}
}

func (t *Tokenizer) top() parseState {
	return t.scopeStack[len(t.scopeStack)-1]
}

func (t *Tokenizer) setTop(s parseState) {
	t.scopeStack[len(t.scopeStack)-1] = s
}

func (t *Tokenizer) push(s parseState) {
	t.scopeStack = append(t.scopeStack, s)
}

func (t *Tokenizer) pop() parseState {
	s := t.top()
	t.scopeStack = t.scopeStack[:len(t.scopeStack)-1]
	return s
}

func (t *Tokenizer) parseNextChar(c byte) (Token, bool, error) {
	switch t.top() {
	case stringWaitingForChar:
		return t.parseCharInString(c)
	case stringWaitingForEscapedChar:
		return t.parseEscapedCharInString(c)
	}

	if isWhitespace(c) {
		return Token{}, false, nil
	}

	switch t.top() {
	case objectWaitingForKey:
		return t.parseWaitingForKey(c)
	case topLevelWaitingForValue, listWaitingForValue, objectWaitingForValue:
		return t.parseWaitingForValue(c)
	case topLevelWaitingForComma, listWaitingForComma, objectWaitingForComma:
		return t.parseWaitingForComma(c)
	case objectWaitingForColon:
		return t.parseWaitingForColon(c)
	}
	panic("jsontok: impossible parse state")
}

func (t *Tokenizer) parseWaitingForValue(c byte) (Token, bool, error) {
	switch t.top() {
	case listWaitingForValue:
		t.setTop(listWaitingForComma)
	case objectWaitingForValue:
		t.setTop(objectWaitingForComma)
	case topLevelWaitingForValue:
		t.setTop(topLevelWaitingForComma)
	}

	switch {
	case c == '"':
		t.push(stringWaitingForChar)
		t.stringStart = t.pos + 1
		return Token{}, false, nil
	case c == '[':
		t.push(listWaitingForValue)
		return Token{Kind: StartList}, true, nil
	case c == '{':
		t.push(objectWaitingForKey)
		return Token{Kind: StartObject}, true, nil
	case isClosingScope(c):
		return t.parseClosingScope(c)
	default:
		return Token{}, false, errInvalidToken()
	}
}

func (t *Tokenizer) parseWaitingForKey(c byte) (Token, bool, error) {
	switch {
	case c == '"':
		t.setTop(objectWaitingForColon)
		t.push(stringWaitingForChar)
		t.stringStart = t.pos + 1
		return Token{}, false, nil
	case isClosingScope(c):
		return t.parseClosingScope(c)
	default:
		return Token{}, false, errInvalidToken()
	}
}

func (t *Tokenizer) parseWaitingForComma(c byte) (Token, bool, error) {
	switch {
	case c == ',':
		switch t.top() {
		case topLevelWaitingForComma:
			t.setTop(topLevelWaitingForValue)
		case listWaitingForComma:
			t.setTop(listWaitingForValue)
		case objectWaitingForComma:
			t.setTop(objectWaitingForKey)
		}
		return Token{}, false, nil
	case isClosingScope(c):
		return t.parseClosingScope(c)
	default:
		return Token{}, false, errInvalidToken()
	}
}

func (t *Tokenizer) parseWaitingForColon(c byte) (Token, bool, error) {
	if c != ':' {
		return Token{}, false, errInvalidToken()
	}
	t.setTop(objectWaitingForValue)
	return Token{}, false, nil
}

func (t *Tokenizer) parseClosingScope(c byte) (Token, bool, error) {
	closing := t.pop()
	switch c {
	case ']':
		if closing != listWaitingForValue && closing != listWaitingForComma {
			return Token{}, false, errInvalidToken()
		}
		return Token{Kind: EndList}, true, nil
	case '}':
		if closing != objectWaitingForKey && closing != objectWaitingForComma {
			return Token{}, false, errInvalidToken()
		}
		return Token{Kind: EndObject}, true, nil
	default:
		panic("jsontok: impossible closing scope character")
	}
}

func (t *Tokenizer) parseCharInString(c byte) (Token, bool, error) {
	switch c {
	case '"':
		raw := strview.BytesToString(t.input[t.stringStart:t.pos])
		t.pop()
		return Token{Kind: String, Value: jsonpath.NewView(raw)}, true, nil
	case '\\':
		t.setTop(stringWaitingForEscapedChar)
		return Token{}, false, nil
	default:
		return Token{}, false, nil
	}
}

func (t *Tokenizer) parseEscapedCharInString(c byte) (Token, bool, error) {
	if c != '\\' && c != '"' {
		return Token{}, false, errInvalidToken()
	}
	t.setTop(stringWaitingForChar)
	return Token{}, false, nil
}

func isWhitespace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r':
		return true
	default:
		return false
	}
}

func isClosingScope(c byte) bool {
	return c == '}' || c == ']'
}

func errInvalidToken() error {
	return errors.E(errors.Invalid, "invalid token encountered while tokenizing JSON")
}

func errUnexpectedEOF() error {
	return errors.E(errors.Invalid, "unexpected end of stream while tokenizing JSON")
}
