package endpoint

import (
	"errors"
	"fmt"
)

// Sentinel errors for the endpoint language
var (
	ErrDeclaration   = errors.New("invalid endpoint declaration")
	ErrTemplate      = errors.New("uri template failed")
	ErrShapeMismatch = errors.New("inconsistent response shape")
	ErrEmptyURI      = errors.New("template rendered an empty uri")
)

// DeclarationError reports a malformed config context entry.
type DeclarationError struct {
	Feature string
	Index   int // -1 when the whole entry is malformed
	Reason  string
}

func (e *DeclarationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("config context %q: %s", e.Feature, e.Reason)
	}
	return fmt.Sprintf("config context %q endpoint %d: %s", e.Feature, e.Index, e.Reason)
}

func (e *DeclarationError) Unwrap() error { return ErrDeclaration }

// TemplateError reports a URI template that failed to parse or referenced
// an undefined attribute.
type TemplateError struct {
	Template string
	Err      error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("rendering %q: %v", e.Template, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// Is matches ErrTemplate.
func (e *TemplateError) Is(target error) bool { return target == ErrTemplate }

// ShapeError reports a feature whose endpoints returned both list and
// dict results.
type ShapeError struct {
	Want string
	Got  string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("all responses should be %s but got %s", e.Want, e.Got)
}

func (e *ShapeError) Unwrap() error { return ErrShapeMismatch }
