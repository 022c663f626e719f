package tario

// Entries returns a range-over-func iterator yielding every entry in the
// archive in order. Iteration stops after the first error, which the
// final yield delivers alongside a nil entry.
//
//	for entry, err := range rd.Entries() {
//		if err != nil { ... }
//		...
//	}
func (rd *Reader) Entries() func(yield func(*Entry, error) bool) {
	return func(yield func(*Entry, error) bool) {
		for {
			entry, err := rd.NextEntry()
			if err != nil {
				yield(nil, err)
				return
			}
			if entry == nil {
				return
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}
