package tree

// Merge returns base with override layered on top. Objects merge key by
// key, recursively; any other override value replaces the base value.
// Neither input is modified.
func Merge(base, override Value) Value {
	bo, okBase := base.(*Object)
	oo, okOver := override.(*Object)
	if !okBase || !okOver {
		if override == nil {
			return Clone(base)
		}
		return Clone(override)
	}
	out := Clone(bo).(*Object)
	oo.Range(func(k string, v Value) bool {
		if existing, ok := out.Get(k); ok {
			out.Set(k, Merge(existing, v))
		} else {
			out.Set(k, Clone(v))
		}
		return true
	})
	return out
}
