package utils

// SmallMapEntry is one key/value pair in a SmallMap.
type SmallMapEntry struct {
	Key   Symbol
	Value interface{}
}

// A SmallMap maps interned Symbol keys to values, similar to Go's
// built-in maps. Most alignment records carry only a handful of
// optional (SAM "aux") tags, so a linear scan over a short slice beats
// a native map's bucket overhead; record.Record.Aux is declared as a
// SmallMap for exactly that reason.
type SmallMap []SmallMapEntry

// Get returns the value of the first entry keyed by key, and whether
// one was found.
func (m SmallMap) Get(key Symbol) (interface{}, bool) {
	for _, entry := range m {
		if entry.Key == key {
			return entry.Value, true
		}
	}
	return nil, false
}

// Set overwrites the first entry keyed by key, or appends a new
// key/value pair if none exists yet.
func (m *SmallMap) Set(key Symbol, value interface{}) {
	for index := range *m {
		if (*m)[index].Key == key {
			(*m)[index].Value = value
			return
		}
	}
	*m = append(*m, SmallMapEntry{key, value})
}

// Delete removes the first entry keyed by key, reporting whether one
// was found to remove.
func (m SmallMap) Delete(key Symbol) (SmallMap, bool) {
	for index, entry := range m {
		if entry.Key == key {
			return append(m[:index], m[index+1:]...), true
		}
	}
	return m, false
}

// DeleteIf removes every entry for which test returns true, reporting
// whether anything was removed.
func (m SmallMap) DeleteIf(test func(key Symbol, val interface{}) bool) (SmallMap, bool) {
	i := 0
	for _, entry := range m {
		if !test(entry.Key, entry.Value) {
			m[i] = entry
			i++
		}
	}
	return m[:i], i < len(m)
}
