package binning

// MergeSummaryMaps is the reduce step: a pairwise associative, commutative
// combination of two partial summary maps. A nil map (an empty or absent
// shard result) is the identity element. Column sets are fixed by
// configuration, so a key present on one side but not the other is a
// KeyNotFoundError. The left map is mutated and returned; neither operand
// should be reused afterwards.
func MergeSummaryMaps(a, b SummaryMap) (SummaryMap, error) {
	if a == nil {
		return b, nil
	}
	if b == nil {
		return a, nil
	}
	for name, sa := range a {
		sb, ok := b[name]
		if !ok {
			return nil, &KeyNotFoundError{Column: name}
		}
		if err := sa.Merge(sb); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// AssignTotalCounts sets the authoritative full-dataset row count on every
// sparse summary of a fully reduced map. Called exactly once, after the
// reduce phase; dense summaries are left untouched.
func AssignTotalCounts(m SummaryMap, total int64) error {
	for _, cs := range m {
		sc, ok := cs.(SparseColumn)
		if !ok {
			continue
		}
		if err := sc.SetTotalCount(total); err != nil {
			return err
		}
	}
	return nil
}
