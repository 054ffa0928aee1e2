package codec

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels for errors.Is matching against *ParseError
var (
	ErrSyntax = errors.New("syntax error")
	ErrSchema = errors.New("schema error")
)

// ErrorKind separates malformed text from well-formed but invalid models
type ErrorKind string

const (
	KindSyntax ErrorKind = "syntax"
	KindSchema ErrorKind = "schema"
)

// ParseError is returned by the valley parsers. Schema errors name the
// offending entities so the user can fix them without guessing.
type ParseError struct {
	Kind     ErrorKind `json:"kind"`
	Message  string    `json:"message"`
	Entities []string  `json:"entities,omitempty"`
	Offset   int64     `json:"offset,omitempty"`
	Line     int       `json:"line,omitempty"`
	Column   int       `json:"column,omitempty"`
	Err      error     `json:"-"`
}

func (e *ParseError) Error() string {
	switch {
	case e.Kind == KindSyntax && e.Line > 0:
		return fmt.Sprintf("syntax error at line %d, column %d: %s", e.Line, e.Column, e.Message)
	case e.Kind == KindSyntax:
		return "syntax error: " + e.Message
	case len(e.Entities) > 0:
		return fmt.Sprintf("schema error: %s (%s)", e.Message, strings.Join(e.Entities, ", "))
	default:
		return "schema error: " + e.Message
	}
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is matches ErrSyntax and ErrSchema by kind
func (e *ParseError) Is(target error) bool {
	switch target {
	case ErrSyntax:
		return e.Kind == KindSyntax
	case ErrSchema:
		return e.Kind == KindSchema
	}
	return false
}

func syntaxError(text string, offset int64, msg string, cause error) *ParseError {
	line, col := lineColumn(text, offset)
	return &ParseError{
		Kind:    KindSyntax,
		Message: msg,
		Offset:  offset,
		Line:    line,
		Column:  col,
		Err:     cause,
	}
}

func schemaError(msg string, entities ...string) *ParseError {
	return &ParseError{Kind: KindSchema, Message: msg, Entities: entities}
}

// lineColumn converts a byte offset into 1-based line and column
func lineColumn(text string, offset int64) (int, int) {
	if offset <= 0 {
		return 0, 0
	}
	if offset > int64(len(text)) {
		offset = int64(len(text))
	}
	line, col := 1, 1
	for _, b := range []byte(text[:offset]) {
		if b == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
