package binning

// BuildPartitionSummaries is the map step: it builds one fresh summary per
// configured column from a single data shard. For sparse rows only the
// explicitly stored entries are visited; absent columns are implicit zeros
// and never insert. The returned map is owned exclusively by the caller, so
// shard-parallel invocations share no state.
func BuildPartitionSummaries(shard []Row, cfg Config) SummaryMap {
	m := make(SummaryMap, len(cfg.Columns))
	for name := range cfg.Columns {
		m[name] = NewColumnSummary(cfg)
	}

	for _, row := range shard {
		if cfg.Sparse {
			for _, e := range row.Sparse {
				if e.Index < 0 || e.Index >= len(cfg.Header) {
					continue
				}
				if cs, ok := m[cfg.Header[e.Index]]; ok {
					cs.Insert(e.Value)
				}
			}
			continue
		}
		for name, idx := range cfg.Columns {
			if idx >= 0 && idx < len(row.Dense) {
				m[name].Insert(row.Dense[idx])
			}
		}
	}
	return m
}
