package endpoint

import (
	"fmt"
	"strings"

	"github.com/jmespath/go-jmespath"

	"github.com/newtron-network/ctrlcfg/pkg/tree"
)

// ExtractFields evaluates every declared field against the raw response.
//
// Null results are kept as explicit nulls. When every field yields a list
// and all lists have the same positive length, the columns are zipped
// into a list of row objects; a single field holding a one-element list
// stays an object. Descriptor.Transpose overrides the detection.
func ExtractFields(d *Descriptor, response tree.Value) (tree.Value, error) {
	data := tree.ToAny(response)
	out := tree.NewObject()
	for _, f := range d.Fields {
		compiled := f.compiled
		if compiled == nil {
			var err error
			if compiled, err = jmespath.Compile(f.Expr); err != nil {
				return nil, fmt.Errorf("jmespath %s: %w", f.Name, err)
			}
		}
		res, err := compiled.Search(data)
		if err != nil {
			return nil, fmt.Errorf("jmespath %s (%s): %w", f.Name, f.Expr, err)
		}
		out.Set(f.Name, tree.FromAny(res))
	}

	if !shouldTranspose(d, out) {
		return out, nil
	}
	return transpose(out), nil
}

func shouldTranspose(d *Descriptor, fields *tree.Object) bool {
	if d.Transpose != nil && !*d.Transpose {
		return false
	}
	lengths := make([]int, 0, fields.Len())
	fields.Range(func(_ string, v tree.Value) bool {
		if arr, ok := v.(*tree.Array); ok {
			lengths = append(lengths, arr.Len())
		}
		return true
	})
	if len(lengths) == 0 || len(lengths) != fields.Len() {
		return false
	}
	for _, n := range lengths[1:] {
		if n != lengths[0] {
			return false
		}
	}
	if lengths[0] == 0 {
		return false
	}
	if d.Transpose != nil {
		return true
	}
	return !(len(lengths) == 1 && lengths[0] == 1)
}

func transpose(fields *tree.Object) *tree.Array {
	keys := fields.Keys()
	first, _ := fields.Get(keys[0])
	rows := tree.NewArray()
	for i := 0; i < first.(*tree.Array).Len(); i++ {
		row := tree.NewObject()
		for _, k := range keys {
			col, _ := fields.Get(k)
			row.Set(k, col.(*tree.Array).Items[i])
		}
		rows.Append(row)
	}
	return rows
}

// Usable reports whether an extraction result carries data: false for
// nulls, empty containers and objects whose values are all null or empty.
func Usable(v tree.Value) bool {
	if tree.IsEmpty(v) {
		return false
	}
	obj, ok := v.(*tree.Object)
	if !ok {
		return true
	}
	usable := false
	obj.Range(func(_ string, field tree.Value) bool {
		if !tree.IsEmpty(field) {
			usable = true
			return false
		}
		return true
	})
	return usable
}

// ResolveParams selects the setup parameters named in names, matching
// case-insensitively. Keys keep the spelling used by params.
func ResolveParams(names []string, params map[string]string) map[string]string {
	out := make(map[string]string)
	if len(names) == 0 || len(params) == 0 {
		return out
	}
	for _, name := range names {
		for k, v := range params {
			if strings.EqualFold(k, name) {
				out[k] = v
			}
		}
	}
	return out
}

// Accumulator merges the results of one feature's endpoints. The first
// usable result fixes the shape: objects are merged key-wise, lists are
// concatenated. Mixing shapes is a *ShapeError.
type Accumulator struct {
	result tree.Value
}

// Add merges v into the accumulated result.
func (a *Accumulator) Add(v tree.Value) error {
	switch t := v.(type) {
	case *tree.Object:
		if a.result == nil {
			a.result = tree.NewObject()
		}
		acc, ok := a.result.(*tree.Object)
		if !ok {
			return &ShapeError{Want: tree.KindArray.String(), Got: tree.KindObject.String()}
		}
		acc.Update(t)
	case *tree.Array:
		if a.result == nil {
			a.result = tree.NewArray()
		}
		acc, ok := a.result.(*tree.Array)
		if !ok {
			return &ShapeError{Want: tree.KindObject.String(), Got: tree.KindArray.String()}
		}
		acc.Append(t.Items...)
	default:
		want := "dict or list"
		if a.result != nil {
			want = tree.KindOf(a.result).String()
		}
		return &ShapeError{Want: want, Got: tree.KindOf(v).String()}
	}
	return nil
}

// Result returns the merged value, or nil when nothing was added.
func (a *Accumulator) Result() tree.Value {
	return a.result
}

// Empty reports whether the accumulated result holds no data.
func (a *Accumulator) Empty() bool {
	return tree.IsEmpty(a.result)
}
