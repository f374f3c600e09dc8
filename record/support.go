package record

// Support is the opaque "support data" a Record may carry instead of
// eagerly decoded character fields, allowing lazy materialization: a
// codec can hand back a Record whose Seq/Qual/Cigar are decoded only
// when first accessed.
//
// A codec that does not need lazy materialization (most callers) can
// simply decode eagerly and leave Record.Support() nil.
type Support interface {
	// MaterializeSeq decodes and returns the query sequence.
	MaterializeSeq() (string, error)
	// MaterializeQual decodes and returns the per-base qualities.
	MaterializeQual() (string, error)
	// MaterializeCigar decodes and returns the CIGAR operations.
	MaterializeCigar() ([]CigarOp, error)
}

// EnsureSeq returns r.Seq, materializing it from r.Support() first if
// r.Seq is empty but a Support is attached.
func (r *Record) EnsureSeq() (string, error) {
	if r.Seq != "" || r.support == nil {
		return r.Seq, nil
	}
	seq, err := r.support.MaterializeSeq()
	if err != nil {
		return "", err
	}
	r.Seq = seq
	return seq, nil
}

// EnsureQual returns r.Qual, materializing it from r.Support() first if
// r.Qual is empty but a Support is attached.
func (r *Record) EnsureQual() (string, error) {
	if r.Qual != "" || r.support == nil {
		return r.Qual, nil
	}
	qual, err := r.support.MaterializeQual()
	if err != nil {
		return "", err
	}
	r.Qual = qual
	return qual, nil
}

// EnsureCigar returns r.Cigar, materializing it from r.Support() first
// if r.Cigar is empty but a Support is attached.
func (r *Record) EnsureCigar() ([]CigarOp, error) {
	if len(r.Cigar) > 0 || r.support == nil {
		return r.Cigar, nil
	}
	ops, err := r.support.MaterializeCigar()
	if err != nil {
		return nil, err
	}
	r.Cigar = ops
	return ops, nil
}
