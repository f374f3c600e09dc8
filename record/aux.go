package record

import "github.com/readflow/engine/utils"

// ByteArray is the decoded form of a BAM 'H' (hex byte array) optional
// tag value.
type ByteArray []byte

// Tag returns the interned Symbol key for a two-character BAM tag code,
// for use as an Aux key.
func Tag(code string) utils.Symbol {
	return utils.Intern(code)
}

// GetAux returns the value of the given tag, if set.
func (r *Record) GetAux(code string) (interface{}, bool) {
	return r.Aux.Get(Tag(code))
}

// SetAux sets the value of the given tag, overwriting any previous
// value for that tag.
func (r *Record) SetAux(code string, value interface{}) {
	r.Aux.Set(Tag(code), value)
}
