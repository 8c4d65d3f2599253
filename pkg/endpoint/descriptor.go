// Package endpoint implements the declarative endpoint language: endpoint
// descriptors read from a device config context, URI template rendering,
// query building and JMESPath field extraction.
package endpoint

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmespath/go-jmespath"

	"github.com/newtron-network/ctrlcfg/pkg/tree"
)

// Descriptor is one declared API call.
type Descriptor struct {
	Endpoint   string      `validate:"required"`
	Method     string      `validate:"omitempty,oneof=GET POST PUT PATCH DELETE"`
	Query      []string    `validate:"dive,required"`
	Fields     []Field     `validate:"dive"`
	Parameters *Parameters `validate:"omitempty"`

	// Transpose overrides row-transpose detection when set.
	Transpose *bool
}

// Field is one named JMESPath extraction.
type Field struct {
	Name string `validate:"required"`
	Expr string `validate:"required"`

	compiled *jmespath.JMESPath
}

// Parameters lists the parameter names an endpoint accepts.
type Parameters struct {
	Optional    []string `validate:"dive,required"`
	NonOptional []string `validate:"dive,required"`
}

// FeatureEndpointList is the ordered descriptor list declared for one
// feature key.
type FeatureEndpointList []*Descriptor

var validate = validator.New()

// HTTPMethod returns the declared method, defaulting to GET.
func (d *Descriptor) HTTPMethod() string {
	if d.Method == "" {
		return "GET"
	}
	return d.Method
}

// HasOptional reports whether the descriptor declares optional parameters.
func (d *Descriptor) HasOptional() bool {
	return d.Parameters != nil && len(d.Parameters.Optional) > 0
}

// Required returns the non-optional parameter names.
func (d *Descriptor) Required() []string {
	if d.Parameters == nil {
		return nil
	}
	return d.Parameters.NonOptional
}

// AllParameters returns optional and non-optional names, optional first.
func (d *Descriptor) AllParameters() []string {
	if d.Parameters == nil {
		return nil
	}
	out := make([]string, 0, len(d.Parameters.Optional)+len(d.Parameters.NonOptional))
	out = append(out, d.Parameters.Optional...)
	return append(out, d.Parameters.NonOptional...)
}

// ParseFeatureEndpoints converts the list stored under feature into
// descriptors. Every failure is a *DeclarationError.
func ParseFeatureEndpoints(feature string, v tree.Value) (FeatureEndpointList, error) {
	arr, ok := v.(*tree.Array)
	if !ok {
		return nil, &DeclarationError{Feature: feature, Index: -1,
			Reason: fmt.Sprintf("expected a list of endpoints, got %s", tree.KindOf(v))}
	}
	out := make(FeatureEndpointList, 0, arr.Len())
	for i, item := range arr.Items {
		d, err := parseDescriptor(item)
		if err != nil {
			return nil, &DeclarationError{Feature: feature, Index: i, Reason: err.Error()}
		}
		out = append(out, d)
	}
	return out, nil
}

func parseDescriptor(v tree.Value) (*Descriptor, error) {
	obj, ok := v.(*tree.Object)
	if !ok {
		return nil, fmt.Errorf("expected an object, got %s", tree.KindOf(v))
	}
	d := &Descriptor{}
	var err error
	if d.Endpoint, err = optionalString(obj, "endpoint"); err != nil {
		return nil, err
	}
	if d.Method, err = optionalString(obj, "method"); err != nil {
		return nil, err
	}
	d.Method = strings.ToUpper(d.Method)
	if d.Query, err = optionalStrings(obj, "query"); err != nil {
		return nil, err
	}

	if jp, ok := obj.Get("jmespath"); ok && tree.KindOf(jp) != tree.KindNull {
		fields, ok := jp.(*tree.Object)
		if !ok {
			return nil, fmt.Errorf("jmespath: expected an object, got %s", tree.KindOf(jp))
		}
		var fieldErr error
		fields.Range(func(name string, expr tree.Value) bool {
			s, ok := expr.(tree.String)
			if !ok {
				fieldErr = fmt.Errorf("jmespath.%s: expected a string expression, got %s", name, tree.KindOf(expr))
				return false
			}
			f := Field{Name: name, Expr: string(s)}
			if f.compiled, err = jmespath.Compile(f.Expr); err != nil {
				fieldErr = fmt.Errorf("jmespath.%s: %w", name, err)
				return false
			}
			d.Fields = append(d.Fields, f)
			return true
		})
		if fieldErr != nil {
			return nil, fieldErr
		}
	}

	if p, ok := obj.Get("parameters"); ok && tree.KindOf(p) != tree.KindNull {
		params, ok := p.(*tree.Object)
		if !ok {
			return nil, fmt.Errorf("parameters: expected an object, got %s", tree.KindOf(p))
		}
		d.Parameters = &Parameters{}
		if d.Parameters.Optional, err = optionalStrings(params, "optional"); err != nil {
			return nil, fmt.Errorf("parameters: %w", err)
		}
		if d.Parameters.NonOptional, err = optionalStrings(params, "non_optional"); err != nil {
			return nil, fmt.Errorf("parameters: %w", err)
		}
	}

	if t, ok := obj.Get("transpose"); ok {
		b, ok := t.(tree.Bool)
		if !ok {
			return nil, fmt.Errorf("transpose: expected a bool, got %s", tree.KindOf(t))
		}
		flag := bool(b)
		d.Transpose = &flag
	}

	if err := validate.Struct(d); err != nil {
		return nil, describeValidation(err)
	}
	return d, nil
}

func optionalString(obj *tree.Object, key string) (string, error) {
	v, ok := obj.Get(key)
	if !ok || tree.KindOf(v) == tree.KindNull {
		return "", nil
	}
	s, ok := v.(tree.String)
	if !ok {
		return "", fmt.Errorf("%s: expected a string, got %s", key, tree.KindOf(v))
	}
	return string(s), nil
}

func optionalStrings(obj *tree.Object, key string) ([]string, error) {
	v, ok := obj.Get(key)
	if !ok || tree.KindOf(v) == tree.KindNull {
		return nil, nil
	}
	list, ok := tree.Strings(v)
	if !ok {
		return nil, fmt.Errorf("%s: expected a list of strings", key)
	}
	return list, nil
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, strings.ToLower(fe.Field())+" is required")
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s %q must be one of %s", strings.ToLower(fe.Field()), fe.Value(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(parts, "; "))
}
