package store

// PreferredVariant returns the variant with the highest intrinsic kind
// priority (COMBINED > CURRENT > ORIGINAL). Deterministic for well-formed
// data (at most one variant per kind). Returns nil for an empty slice.
func PreferredVariant(variants []*AudioVariant) *AudioVariant {
	var selected *AudioVariant
	for _, v := range variants {
		if selected == nil || v.Kind.rank() > selected.Kind.rank() {
			selected = v
		}
	}
	return selected
}

// SelectVariant returns the first variant matching any of the given kinds,
// scanning kinds in the caller-specified order rather than the intrinsic
// priority order. Returns nil if no variant matches or variants is empty.
//
// Forward composition uses this to prefer COMBINED over CURRENT explicitly.
func SelectVariant(variants []*AudioVariant, kinds ...VariantKind) *AudioVariant {
	for _, kind := range kinds {
		for _, v := range variants {
			if v.Kind == kind {
				return v
			}
		}
	}
	return nil
}
