// Package registry implements the directive grammar registry files are
// written in (inc/sc/build directives over a restricted JSON dialect).
// Processing those directives into a build graph is done by package
// graph.
package registry

import (
	"io"

	"github.com/grailbio/respire/errors"
	"github.com/grailbio/respire/jsonpath"
	"github.com/grailbio/respire/jsontok"
)

// IncludeParams is the payload of an "inc" directive: the path to
// another registry file to parse and fold into this one's graph.
type IncludeParams struct {
	Path jsonpath.View
}

// BuildParams is the payload of a "build" directive: a target path
// that should be built when this registry (or one that includes it)
// is the entry point of a build.
type BuildParams struct {
	Path jsonpath.View
}

// SystemCommandParams is the payload of an "sc" directive: a shell
// command along with the input/output files it reads and produces.
type SystemCommandParams struct {
	Command     jsonpath.View
	Inputs      []jsonpath.View
	Outputs     []jsonpath.View
	SoftOutputs []jsonpath.View
	DepsFile    *jsonpath.View
	StdoutFile  *jsonpath.View
	StderrFile  *jsonpath.View
	StdinFile   *jsonpath.View
}

// Directive is one of IncludeParams, SystemCommandParams, or
// BuildParams.
type Directive interface {
	isDirective()
}

func (IncludeParams) isDirective()       {}
func (SystemCommandParams) isDirective() {}
func (BuildParams) isDirective()         {}

// Kind classifies why parsing a registry file failed.
type Kind int

const (
	// ErrorTokenizer means the underlying jsontok.Tokenizer rejected
	// the input before the directive grammar ever got a look at it.
	ErrorTokenizer Kind = iota
	// ErrorUnexpectedToken means a token of the wrong kind showed up
	// at a point in the directive grammar that required something
	// else (e.g. a string where a '[' was expected).
	ErrorUnexpectedToken
	// ErrorInvalidDirectiveName means a directive object's first key
	// was not one of "inc", "sc", or "build".
	ErrorInvalidDirectiveName
	// ErrorMultiplyDefinedKey means an "sc" directive repeated one of
	// its parameter keys (e.g. two "cmd" entries).
	ErrorMultiplyDefinedKey
	// ErrorDidNotFindAllExpectedKeys means an "sc" directive's object
	// closed without having seen all of "cmd", "in", and "out".
	ErrorDidNotFindAllExpectedKeys
)

func (k Kind) String() string {
	switch k {
	case ErrorTokenizer:
		return "ErrorTokenizer"
	case ErrorUnexpectedToken:
		return "ErrorUnexpectedToken"
	case ErrorInvalidDirectiveName:
		return "ErrorInvalidDirectiveName"
	case ErrorMultiplyDefinedKey:
		return "ErrorMultiplyDefinedKey"
	case ErrorDidNotFindAllExpectedKeys:
		return "ErrorDidNotFindAllExpectedKeys"
	default:
		return "Unknown"
	}
}

// ParseError reports which Kind of grammar violation stopped parsing.
type ParseError struct {
	Kind Kind
	Err  error
}

func (e *ParseError) Error() string { return e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

func newParseError(kind Kind, msg string) *ParseError {
	return &ParseError{Kind: kind, Err: errors.E(errors.Invalid, msg)}
}

// Parse reads every directive out of a registry file's contents and
// returns them in file order. It stops at the first grammar error.
func Parse(input []byte) ([]Directive, error) {
	p := &parser{tok: jsontok.New(input)}
	return p.parse()
}

type parser struct {
	tok *jsontok.Tokenizer
}

// next pulls the next token, translating a tokenizer-level error into
// an ErrorTokenizer ParseError and io.EOF into (Token{}, false, nil).
func (p *parser) next() (jsontok.Token, bool, error) {
	tok, err := p.tok.Next()
	if err == io.EOF {
		return jsontok.Token{}, false, nil
	}
	if err != nil {
		return jsontok.Token{}, false, newParseError(ErrorTokenizer, err.Error())
	}
	return tok, true, nil
}

func (p *parser) nextOfKind(kind jsontok.Kind) (jsontok.Token, bool, error) {
	tok, ok, err := p.next()
	if err != nil || !ok {
		return jsontok.Token{}, ok, err
	}
	if tok.Kind != kind {
		return jsontok.Token{}, false, newParseError(ErrorUnexpectedToken, "unexpected token while parsing registry file")
	}
	return tok, true, nil
}

func (p *parser) parse() ([]Directive, error) {
	if _, ok, err := p.nextOfKind(jsontok.StartList); err != nil {
		return nil, err
	} else if !ok {
		return nil, newParseError(ErrorUnexpectedToken, "registry file must start with a list")
	}

	directives, err := p.parseTopLevelListEntries()
	if err != nil {
		return nil, err
	}

	// Drain the rest of the stream; hopefully there's nothing left.
	if tok, ok, err := p.next(); err != nil {
		return nil, err
	} else if ok {
		_ = tok
		return nil, newParseError(ErrorUnexpectedToken, "unexpected trailing content after registry file's top-level list")
	}

	return directives, nil
}

func (p *parser) parseTopLevelListEntries() ([]Directive, error) {
	var directives []Directive
	for {
		tok, ok, err := p.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, newParseError(ErrorUnexpectedToken, "unexpected end of stream inside registry file's top-level list")
		}

		switch tok.Kind {
		case jsontok.StartObject:
			d, err := p.parseDirectiveObject()
			if err != nil {
				return nil, err
			}
			directives = append(directives, d)
		case jsontok.EndList:
			return directives, nil
		default:
			return nil, newParseError(ErrorUnexpectedToken, "expected a directive object or the end of the top-level list")
		}
	}
}

type directiveType int

const (
	directiveInvalid directiveType = iota
	directiveInclude
	directiveSystemCommand
	directiveBuild
)

func (p *parser) parseDirectiveObject() (Directive, error) {
	dtype, err := p.parseDirectiveName()
	if err != nil {
		return nil, err
	}

	if _, ok, err := p.nextOfKind(jsontok.StartList); err != nil {
		return nil, err
	} else if !ok {
		return nil, newParseError(ErrorUnexpectedToken, "expected directive argument list")
	}

	var directive Directive
	switch dtype {
	case directiveInclude:
		directive, err = p.parseIncludeDirective()
	case directiveSystemCommand:
		directive, err = p.parseSystemCommandDirective()
	case directiveBuild:
		directive, err = p.parseBuildDirective()
	}
	if err != nil {
		return nil, err
	}

	if _, ok, err := p.nextOfKind(jsontok.EndObject); err != nil {
		return nil, err
	} else if !ok {
		return nil, newParseError(ErrorUnexpectedToken, "expected directive object to close")
	}

	return directive, nil
}

func (p *parser) parseDirectiveName() (directiveType, error) {
	tok, ok, err := p.nextOfKind(jsontok.String)
	if err != nil {
		return directiveInvalid, err
	}
	if !ok {
		return directiveInvalid, newParseError(ErrorUnexpectedToken, "expected a directive name string")
	}

	switch tok.Value.AsString() {
	case "inc":
		return directiveInclude, nil
	case "sc":
		return directiveSystemCommand, nil
	case "build":
		return directiveBuild, nil
	default:
		return directiveInvalid, newParseError(ErrorInvalidDirectiveName, "unrecognized directive name: "+tok.Value.AsString())
	}
}

// singlePathDirective parses a directive of the form ["path", "path", ...]
// and invokes produce for every JSON string entry it sees, stopping at
// the closing EndList.
func (p *parser) singlePathDirective(produce func(jsonpath.View)) error {
	for {
		tok, ok, err := p.next()
		if err != nil {
			return err
		}
		if !ok {
			return newParseError(ErrorUnexpectedToken, "unexpected end of stream inside directive argument list")
		}
		switch tok.Kind {
		case jsontok.EndList:
			return nil
		case jsontok.String:
			produce(tok.Value)
		default:
			return newParseError(ErrorUnexpectedToken, "expected a path string in directive argument list")
		}
	}
}

func (p *parser) parseIncludeDirective() (Directive, error) {
	var params IncludeParams
	seen := false
	if err := p.singlePathDirective(func(v jsonpath.View) {
		params.Path = v
		seen = true
	}); err != nil {
		return nil, err
	}
	if !seen {
		return nil, newParseError(ErrorDidNotFindAllExpectedKeys, "\"inc\" directive requires exactly one path argument")
	}
	return params, nil
}

func (p *parser) parseBuildDirective() (Directive, error) {
	var params BuildParams
	seen := false
	if err := p.singlePathDirective(func(v jsonpath.View) {
		params.Path = v
		seen = true
	}); err != nil {
		return nil, err
	}
	if !seen {
		return nil, newParseError(ErrorDidNotFindAllExpectedKeys, "\"build\" directive requires exactly one path argument")
	}
	return params, nil
}

// parsePathList parses a JSON list of strings, e.g. the value of an
// "in"/"out"/"soft_out" key.
func (p *parser) parsePathList() ([]jsonpath.View, error) {
	if _, ok, err := p.nextOfKind(jsontok.StartList); err != nil {
		return nil, err
	} else if !ok {
		return nil, newParseError(ErrorUnexpectedToken, "expected a path list")
	}

	var result []jsonpath.View
	for {
		tok, ok, err := p.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, newParseError(ErrorUnexpectedToken, "unexpected end of stream inside path list")
		}
		switch tok.Kind {
		case jsontok.EndList:
			return result, nil
		case jsontok.String:
			result = append(result, tok.Value)
		default:
			return nil, newParseError(ErrorUnexpectedToken, "expected a path string in path list")
		}
	}
}

func (p *parser) parseSingleStringValue() (jsonpath.View, error) {
	tok, ok, err := p.nextOfKind(jsontok.String)
	if err != nil {
		return jsonpath.View{}, err
	}
	if !ok {
		return jsonpath.View{}, newParseError(ErrorUnexpectedToken, "expected a string value")
	}
	return tok.Value, nil
}

func (p *parser) parseSystemCommandDirective() (Directive, error) {
	var (
		command     *jsonpath.View
		inputs      []jsonpath.View
		haveInputs  bool
		outputs     []jsonpath.View
		haveOutputs bool
		softOutputs []jsonpath.View
		haveSoft    bool
		deps        *jsonpath.View
		stdoutFile  *jsonpath.View
		stderrFile  *jsonpath.View
		stdinFile   *jsonpath.View
	)

	for {
		tok, ok, err := p.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, newParseError(ErrorUnexpectedToken, "unexpected end of stream inside \"sc\" directive object")
		}

		if tok.Kind == jsontok.EndObject {
			if command == nil || !haveInputs || !haveOutputs {
				return nil, newParseError(ErrorDidNotFindAllExpectedKeys, "\"sc\" directive requires \"cmd\", \"in\", and \"out\" keys")
			}
			if !haveSoft {
				softOutputs = nil
			}
			return SystemCommandParams{
				Command:     *command,
				Inputs:      inputs,
				Outputs:     outputs,
				SoftOutputs: softOutputs,
				DepsFile:    deps,
				StdoutFile:  stdoutFile,
				StderrFile:  stderrFile,
				StdinFile:   stdinFile,
			}, nil
		}

		if tok.Kind != jsontok.String {
			return nil, newParseError(ErrorUnexpectedToken, "expected an \"sc\" directive parameter key")
		}

		switch tok.Value.AsString() {
		case "cmd":
			if command != nil {
				return nil, newParseError(ErrorMultiplyDefinedKey, "\"cmd\" specified more than once")
			}
			v, err := p.parseSingleStringValue()
			if err != nil {
				return nil, err
			}
			command = &v
		case "in":
			if haveInputs {
				return nil, newParseError(ErrorMultiplyDefinedKey, "\"in\" specified more than once")
			}
			inputs, err = p.parsePathList()
			if err != nil {
				return nil, err
			}
			haveInputs = true
		case "out":
			if haveOutputs {
				return nil, newParseError(ErrorMultiplyDefinedKey, "\"out\" specified more than once")
			}
			outputs, err = p.parsePathList()
			if err != nil {
				return nil, err
			}
			haveOutputs = true
		case "soft_out":
			if haveSoft {
				return nil, newParseError(ErrorMultiplyDefinedKey, "\"soft_out\" specified more than once")
			}
			softOutputs, err = p.parsePathList()
			if err != nil {
				return nil, err
			}
			haveSoft = true
		case "deps":
			if deps != nil {
				return nil, newParseError(ErrorMultiplyDefinedKey, "\"deps\" specified more than once")
			}
			v, err := p.parseSingleStringValue()
			if err != nil {
				return nil, err
			}
			deps = &v
		case "stdout":
			if stdoutFile != nil {
				return nil, newParseError(ErrorMultiplyDefinedKey, "\"stdout\" specified more than once")
			}
			v, err := p.parseSingleStringValue()
			if err != nil {
				return nil, err
			}
			stdoutFile = &v
		case "stderr":
			if stderrFile != nil {
				return nil, newParseError(ErrorMultiplyDefinedKey, "\"stderr\" specified more than once")
			}
			v, err := p.parseSingleStringValue()
			if err != nil {
				return nil, err
			}
			stderrFile = &v
		case "stdin":
			if stdinFile != nil {
				return nil, newParseError(ErrorMultiplyDefinedKey, "\"stdin\" specified more than once")
			}
			v, err := p.parseSingleStringValue()
			if err != nil {
				return nil, err
			}
			stdinFile = &v
		default:
			return nil, newParseError(ErrorUnexpectedToken, "unrecognized \"sc\" directive parameter key: "+tok.Value.AsString())
		}
	}
}
