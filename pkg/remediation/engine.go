// Package remediation computes minimal configuration patches from an
// intended and an actual device configuration and pushes them through the
// controller drivers.
//
// A patch is built in four passes over the feature subtree:
//
//  1. both trees are restricted to the parameters declared by the
//     <feature>_remediation descriptors
//  2. a positional structural diff records every intended value that is
//     missing from or different in the actual tree
//  3. the non-optional parameters are copied back into every changed
//     object so each payload can be replayed on its own
//  4. empty objects, empty lists and nulls are dropped
package remediation

import (
	"fmt"

	"github.com/newtron-network/ctrlcfg/pkg/endpoint"
	"github.com/newtron-network/ctrlcfg/pkg/tree"
	"github.com/newtron-network/ctrlcfg/pkg/util"
)

// Indent is the JSON indent of remediation patches.
const Indent = "    "

// Compute returns the JSON patch that brings actual in line with intended
// for feature, or "" when nothing needs to change. Missing or unusable
// parameter declarations and a diff lacking the feature are
// *util.ValidationError.
func Compute(intended, actual tree.Value, cc *endpoint.ConfigContext, feature string) (string, error) {
	params, err := declaredParameters(cc, feature)
	if err != nil {
		return "", err
	}
	want, err := params.filter(intended, feature, true)
	if err != nil {
		return "", err
	}
	have, err := params.filter(actual, feature, false)
	if err != nil {
		return "", err
	}

	diff := structuralDiff(want, have)
	if diff.Len() == 0 {
		return "", nil
	}
	if v, ok := diff.Get(feature); !ok || tree.IsEmpty(v) {
		return "", util.NewValidationError(fmt.Sprintf("feature %s not found in the config", feature))
	}

	injectRequired(diff, intended, params.required)
	cleaned, ok := clean(diff)
	if !ok {
		return "", nil
	}
	return tree.EncodeString(cleaned, Indent)
}

// parameters holds the union of the remediation parameter declarations of
// one feature.
type parameters struct {
	allowed  map[string]bool
	required []string
}

func noDeclarations(feature string) error {
	return util.NewValidationError(fmt.Sprintf(
		"no usable parameter declarations for %s: the config context has no %s or it does not declare optional parameters",
		feature, endpoint.RemediationKey(feature)))
}

// declaredParameters reads <feature>_remediation. Every descriptor must
// declare optional parameters.
func declaredParameters(cc *endpoint.ConfigContext, feature string) (*parameters, error) {
	list, found, err := cc.Endpoints(endpoint.RemediationKey(feature))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, noDeclarations(feature)
	}
	p := &parameters{allowed: make(map[string]bool)}
	for _, d := range list {
		if !d.HasOptional() {
			return nil, noDeclarations(feature)
		}
		for _, name := range d.AllParameters() {
			p.allowed[name] = true
		}
		p.required = append(p.required, d.Required()...)
	}
	p.required = util.UniqueStrings(p.required)
	return p, nil
}

func (p *parameters) keep(obj *tree.Object) *tree.Object {
	out := tree.NewObject()
	obj.Range(func(k string, v tree.Value) bool {
		if p.allowed[k] {
			out.Set(k, v)
		}
		return true
	})
	return out
}

// filter returns {feature: <declared keys only>}. An actual tree without
// the feature yields an empty object so every intended value is an
// addition.
func (p *parameters) filter(config tree.Value, feature string, intended bool) (*tree.Object, error) {
	side := "actual"
	if intended {
		side = "intended"
	}
	root, ok := config.(*tree.Object)
	if !ok {
		return nil, util.NewValidationError(fmt.Sprintf("%s config must be an object, got %s", side, tree.KindOf(config)))
	}
	out := tree.NewObject()
	v, ok := root.Get(feature)
	if !ok {
		if intended {
			return nil, util.NewValidationError(fmt.Sprintf("feature %s not found in the intended config", feature))
		}
		return out, nil
	}

	switch t := v.(type) {
	case *tree.Object:
		out.Set(feature, p.keep(t))
	case *tree.Array:
		items := tree.NewArray()
		for _, item := range t.Items {
			obj, ok := item.(*tree.Object)
			if !ok {
				continue
			}
			if kept := p.keep(obj); kept.Len() > 0 {
				items.Append(kept)
			}
		}
		out.Set(feature, items)
	default:
		return nil, util.NewValidationError(fmt.Sprintf("%s feature %s must be an object or a list, got %s", side, feature, tree.KindOf(v)))
	}
	return out, nil
}

// step is one path element: an object key, or a list index when index is
// not negative.
type step struct {
	key   string
	index int
}

func keyStep(k string) step  { return step{key: k, index: -1} }
func indexStep(i int) step   { return step{index: i} }
func (s step) isIndex() bool { return s.index >= 0 }

type frame struct {
	path     []step
	intended tree.Value
	actual   tree.Value
	// missing marks an intended value with no actual counterpart.
	missing bool
}

func extend(path []step, s step) []step {
	out := make([]step, len(path)+1)
	copy(out, path)
	out[len(path)] = s
	return out
}

// structuralDiff walks both trees with an explicit stack. Children are
// pushed in reverse so they are visited in intended order, which keeps
// the key order of the patch.
func structuralDiff(intended, actual *tree.Object) *tree.Object {
	diff := tree.NewObject()
	stack := []frame{{intended: intended, actual: actual}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.missing {
			record(diff, f.path, f.intended)
			continue
		}

		switch want := f.intended.(type) {
		case *tree.Object:
			have, ok := f.actual.(*tree.Object)
			if !ok {
				record(diff, f.path, want)
				continue
			}
			keys := want.Keys()
			for i := len(keys) - 1; i >= 0; i-- {
				child, _ := want.Get(keys[i])
				other, ok := have.Get(keys[i])
				stack = append(stack, frame{path: extend(f.path, keyStep(keys[i])), intended: child, actual: other, missing: !ok})
			}
		case *tree.Array:
			have, ok := f.actual.(*tree.Array)
			if !ok {
				record(diff, f.path, want)
				continue
			}
			for i := want.Len() - 1; i >= 0; i-- {
				fr := frame{path: extend(f.path, indexStep(i)), intended: want.Items[i]}
				if i < have.Len() {
					fr.actual = have.Items[i]
				} else {
					fr.missing = true
				}
				stack = append(stack, fr)
			}
		default:
			if !tree.Equal(f.intended, f.actual) {
				record(diff, f.path, f.intended)
			}
		}
	}
	return diff
}

func container(s step) tree.Value {
	if s.isIndex() {
		return tree.NewArray()
	}
	return tree.NewObject()
}

func fits(v tree.Value, s step) bool {
	if s.isIndex() {
		_, ok := v.(*tree.Array)
		return ok
	}
	_, ok := v.(*tree.Object)
	return ok
}

// record stores a copy of v at path in diff, creating intermediate
// containers. Lists are padded with empty objects up to the index.
func record(diff *tree.Object, path []step, v tree.Value) {
	if len(path) == 0 {
		return
	}
	var cur tree.Value = diff
	for i, s := range path {
		last := i == len(path)-1
		switch c := cur.(type) {
		case *tree.Object:
			if last {
				c.Set(s.key, tree.Clone(v))
				return
			}
			child, ok := c.Get(s.key)
			if !ok || !fits(child, path[i+1]) {
				child = container(path[i+1])
				c.Set(s.key, child)
			}
			cur = child
		case *tree.Array:
			for c.Len() <= s.index {
				c.Append(tree.NewObject())
			}
			if last {
				c.Items[s.index] = tree.Clone(v)
				return
			}
			child := c.Items[s.index]
			if !fits(child, path[i+1]) {
				child = container(path[i+1])
				c.Items[s.index] = child
			}
			cur = child
		}
	}
}

// injectRequired copies every required key present in intended into each
// non-empty object of diff, level by level.
func injectRequired(diff, intended tree.Value, required []string) {
	switch d := diff.(type) {
	case *tree.Object:
		in, ok := intended.(*tree.Object)
		if !ok {
			return
		}
		if d.Len() > 0 {
			for _, name := range required {
				if v, ok := in.Get(name); ok {
					d.Set(name, tree.Clone(v))
				}
			}
		}
		for _, k := range d.Keys() {
			if iv, ok := in.Get(k); ok {
				child, _ := d.Get(k)
				injectRequired(child, iv, required)
			}
		}
	case *tree.Array:
		in, ok := intended.(*tree.Array)
		if !ok {
			return
		}
		for i := 0; i < d.Len() && i < in.Len(); i++ {
			injectRequired(d.Items[i], in.Items[i], required)
		}
	}
}

// clean drops nulls and containers left empty. ok is false when v itself
// is dropped.
func clean(v tree.Value) (out tree.Value, ok bool) {
	switch t := v.(type) {
	case nil, tree.Null:
		return nil, false
	case *tree.Object:
		obj := tree.NewObject()
		t.Range(func(k string, child tree.Value) bool {
			if c, ok := clean(child); ok {
				obj.Set(k, c)
			}
			return true
		})
		return obj, obj.Len() > 0
	case *tree.Array:
		arr := tree.NewArray()
		for _, item := range t.Items {
			if c, ok := clean(item); ok {
				arr.Append(c)
			}
		}
		return arr, arr.Len() > 0
	}
	return v, true
}
