package bamio

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/readflow/engine/engineerr"
	"github.com/readflow/engine/record"
	"github.com/readflow/engine/utils"
	"github.com/readflow/engine/utils/nibbles"
)

// seqNT16Str maps a packed 4-bit BAM base code to its ASCII base
// letter. See the SAM specification, section 4.2.3.
const seqNT16Str = "=ACMGRSVTWYHKDBN"

var seqNT16Table = func() [256]byte {
	var t [256]byte
	for i, c := range []byte(seqNT16Str) {
		t[c] = byte(i)
	}
	return t
}()

const (
	refIDOff     = 0
	posOff       = 4
	lReadNameOff = posOff + 4
	mapqOff      = lReadNameOff + 1
	binOff       = mapqOff + 1
	nCigarOff    = binOff + 2
	flagOff      = nCigarOff + 2
	lSeqOff      = flagOff + 2
	nextRefIDOff = lSeqOff + 4
	nextPosOff   = nextRefIDOff + 4
	tlenOff      = nextPosOff + 4
	readNameOff  = tlenOff + 4
)

// decodeAlignment decodes one BAM alignment record body (everything
// after its leading block_size int32) into a record.Record.
//
// Grounded on elprep's parseBamAlignment (sam/bam-files.go), adapted
// from elprep's own Alignment type onto record.Record. A panic while
// decoding (for example an out-of-range slice of a malformed body) is
// recovered here and returned as a MalformedRecord error.
func decodeAlignment(body []byte, refs record.ReferenceTable) (rec *record.Record, err error) {
	defer func() {
		if p := recover(); p != nil {
			rec, err = nil, engineerr.Newf(engineerr.MalformedRecord, "bamio: malformed alignment record: %v", p)
		}
	}()

	if len(body) < readNameOff {
		return nil, engineerr.New(engineerr.TruncatedStream, "bamio: alignment record shorter than its fixed fields")
	}

	rec = &record.Record{}
	rec.RefID = int32(binary.LittleEndian.Uint32(body[refIDOff:]))
	rec.Pos = int32(binary.LittleEndian.Uint32(body[posOff:]))
	lReadName := int(body[lReadNameOff])
	rec.MapQ = body[mapqOff]
	nCigarOp := binary.LittleEndian.Uint16(body[nCigarOff:])
	rec.Flag = binary.LittleEndian.Uint16(body[flagOff:])
	lSeq := int(int32(binary.LittleEndian.Uint32(body[lSeqOff:])))
	rec.MateRefID = int32(binary.LittleEndian.Uint32(body[nextRefIDOff:]))
	rec.MatePos = int32(binary.LittleEndian.Uint32(body[nextPosOff:]))
	rec.TLen = int32(binary.LittleEndian.Uint32(body[tlenOff:]))

	rec.Name = string(body[readNameOff : readNameOff+lReadName-1])
	index := readNameOff + lReadName

	rec.Cigar = make([]record.CigarOp, nCigarOp)
	for i := 0; i < int(nCigarOp); i, index = i+1, index+4 {
		packed := binary.LittleEndian.Uint32(body[index:])
		op, err := record.CigarOpByCode(packed & 0xF)
		if err != nil {
			return nil, engineerr.Wrap(engineerr.MalformedRecord, err, "bamio: decoding CIGAR")
		}
		rec.Cigar[i] = record.CigarOp{Length: int32(packed >> 4), Op: op}
	}

	seqEnd := index + (lSeq+1)/2
	seq := nibbles.ReflectMake(lSeq, 0, body[index:seqEnd])
	rec.Seq = expandSeq(seq)
	index = seqEnd

	qualEnd := index + lSeq
	rec.Qual = decodeQual(body[index:qualEnd], lSeq)
	index = qualEnd

	for index < len(body) {
		code := string(body[index : index+2])
		typeByte := body[index+2]
		index += 3
		value, newIndex, err := decodeAuxValue(body, index, typeByte)
		if err != nil {
			return nil, err
		}
		index = newIndex
		rec.SetAux(code, value)
	}

	if rec.RefID != record.Unmapped && (rec.RefID < 0 || int(rec.RefID) >= len(refs)) {
		return nil, engineerr.Newf(engineerr.MalformedRecord, "bamio: reference id %d out of range", rec.RefID)
	}
	return rec, nil
}

// expandSeq decodes a 4-bit-packed BAM SEQ field to its ASCII base
// string.
func expandSeq(n nibbles.Nibbles) string {
	length := n.Len()
	if length == 0 {
		return ""
	}
	out := make([]byte, length)
	for i := 0; i < length; i++ {
		out[i] = seqNT16Str[n.Get(i)]
	}
	return string(out)
}

// decodeQual decodes a BAM QUAL field. A QUAL field that is all 0xFF
// (a run indicating "qualities not stored") decodes to an empty
// string, matching elprep's convention.
func decodeQual(b []byte, lSeq int) string {
	if lSeq == 0 {
		return ""
	}
	allMissing := true
	for _, c := range b {
		if c != 0xFF {
			allMissing = false
			break
		}
	}
	if allMissing {
		return ""
	}
	out := make([]byte, len(b))
	for i, c := range b {
		out[i] = c + 33
	}
	return string(out)
}

func decodeAuxValue(body []byte, index int, typeByte byte) (interface{}, int, error) {
	switch typeByte {
	case 'A':
		return body[index], index + 1, nil
	case 'c':
		return int64(int8(body[index])), index + 1, nil
	case 'C':
		return int64(body[index]), index + 1, nil
	case 's':
		return int64(int16(binary.LittleEndian.Uint16(body[index:]))), index + 2, nil
	case 'S':
		return int64(binary.LittleEndian.Uint16(body[index:])), index + 2, nil
	case 'i':
		return int64(int32(binary.LittleEndian.Uint32(body[index:]))), index + 4, nil
	case 'I':
		return int64(binary.LittleEndian.Uint32(body[index:])), index + 4, nil
	case 'f':
		return math.Float32frombits(binary.LittleEndian.Uint32(body[index:])), index + 4, nil
	case 'Z':
		for end := index; end < len(body); end++ {
			if body[end] == 0 {
				return string(body[index:end]), end + 1, nil
			}
		}
		return nil, -1, engineerr.New(engineerr.MalformedRecord, "bamio: missing NUL in Z aux field")
	case 'H':
		for end := index; end < len(body); end++ {
			if body[end] == 0 {
				hex := make([]byte, 0, (end-index)/2)
				for i := index; i < end; i += 2 {
					b, err := strconv.ParseUint(string(body[i:i+2]), 16, 8)
					if err != nil {
						return nil, -1, engineerr.Wrap(engineerr.MalformedRecord, err, "bamio: decoding H aux field")
					}
					hex = append(hex, byte(b))
				}
				return record.ByteArray(hex), end + 1, nil
			}
		}
		return nil, -1, engineerr.New(engineerr.MalformedRecord, "bamio: missing NUL in H aux field")
	case 'B':
		return decodeNumericArray(body, index)
	default:
		return nil, -1, engineerr.Newf(engineerr.MalformedRecord, "bamio: unknown aux field type %q", typeByte)
	}
}

func decodeNumericArray(body []byte, index int) (interface{}, int, error) {
	subtype := body[index]
	index++
	count := int(int32(binary.LittleEndian.Uint32(body[index:])))
	index += 4
	switch subtype {
	case 'c':
		out := make([]int8, count)
		for i := 0; i < count; i++ {
			out[i] = int8(body[index+i])
		}
		return out, index + count, nil
	case 'C':
		out := make([]uint8, count)
		copy(out, body[index:index+count])
		return out, index + count, nil
	case 's':
		out := make([]int16, count)
		for i := 0; i < count; i++ {
			out[i] = int16(binary.LittleEndian.Uint16(body[index+2*i:]))
		}
		return out, index + 2*count, nil
	case 'S':
		out := make([]uint16, count)
		for i := 0; i < count; i++ {
			out[i] = binary.LittleEndian.Uint16(body[index+2*i:])
		}
		return out, index + 2*count, nil
	case 'i':
		out := make([]int32, count)
		for i := 0; i < count; i++ {
			out[i] = int32(binary.LittleEndian.Uint32(body[index+4*i:]))
		}
		return out, index + 4*count, nil
	case 'I':
		out := make([]uint32, count)
		for i := 0; i < count; i++ {
			out[i] = binary.LittleEndian.Uint32(body[index+4*i:])
		}
		return out, index + 4*count, nil
	case 'f':
		out := make([]float32, count)
		for i := 0; i < count; i++ {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[index+4*i:]))
		}
		return out, index + 4*count, nil
	default:
		return nil, -1, engineerr.Newf(engineerr.MalformedRecord, "bamio: unknown numeric array subtype %q", subtype)
	}
}

// encodeAlignment encodes rec into the BAM alignment record body
// (everything after the leading block_size int32). rec.RefID and
// rec.MateRefID are written as they are: records carry their reference
// dictionary index directly.
//
// Grounded on elprep's formatBamAlignment (sam/bam-files.go).
// The body is encoded into buf, which must be a
// zero-length, pool-reserved slice obtained from internal.ReserveByteBuffer:
// the caller owns buf's backing array and is responsible for releasing the
// returned slice with internal.ReleaseByteBuffer once it is done with it.
func encodeAlignment(rec *record.Record, buf []byte) ([]byte, error) {
	seq, err := rec.EnsureSeq()
	if err != nil {
		return nil, err
	}
	qual, err := rec.EnsureQual()
	if err != nil {
		return nil, err
	}
	cigar, err := rec.EnsureCigar()
	if err != nil {
		return nil, err
	}

	lReadName := len(rec.Name) + 1
	lSeq := len(seq)
	need := readNameOff + lReadName
	var out []byte
	if cap(buf) >= need {
		out = buf[:need]
	} else {
		out = make([]byte, need)
	}

	binary.LittleEndian.PutUint32(out[refIDOff:], uint32(rec.RefID))
	binary.LittleEndian.PutUint32(out[posOff:], uint32(rec.Pos))
	out[lReadNameOff] = byte(lReadName)
	out[mapqOff] = rec.MapQ
	binary.LittleEndian.PutUint16(out[binOff:], reg2bin(rec.Pos, record.ReferenceSpan(cigar)))
	binary.LittleEndian.PutUint16(out[nCigarOff:], uint16(len(cigar)))
	binary.LittleEndian.PutUint16(out[flagOff:], rec.Flag)
	binary.LittleEndian.PutUint32(out[lSeqOff:], uint32(lSeq))
	binary.LittleEndian.PutUint32(out[nextRefIDOff:], uint32(rec.MateRefID))
	binary.LittleEndian.PutUint32(out[nextPosOff:], uint32(rec.MatePos))
	binary.LittleEndian.PutUint32(out[tlenOff:], uint32(rec.TLen))
	copy(out[readNameOff:], rec.Name)
	out[readNameOff+lReadName-1] = 0

	for _, op := range cigar {
		code, err := record.CigarCodeByOp(op.Op)
		if err != nil {
			return nil, engineerr.Wrap(engineerr.MalformedRecord, err, "bamio: encoding CIGAR")
		}
		out = appendUint32(out, uint32(op.Length)<<4|code)
	}

	out = append(out, packSeq(seq)...)
	out = append(out, packQual(qual, lSeq)...)

	for _, entry := range rec.Aux {
		out, err = encodeAuxEntry(out, entry)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func packSeq(seq string) []byte {
	n := nibbles.Make(len(seq))
	for i := 0; i < len(seq); i++ {
		n.Set(i, seqNT16Table[seq[i]])
	}
	_, _, bytes := n.ReflectValue()
	return bytes
}

func packQual(qual string, lSeq int) []byte {
	out := make([]byte, lSeq)
	if qual == "" {
		for i := range out {
			out[i] = 0xFF
		}
		return out
	}
	for i := 0; i < lSeq; i++ {
		out[i] = qual[i] - 33
	}
	return out
}

func encodeAuxEntry(out []byte, entry utils.SmallMapEntry) ([]byte, error) {
	out = append(out, (*entry.Key)...)
	switch v := entry.Value.(type) {
	case byte:
		return append(out, 'A', v), nil
	case int64:
		return appendAuxInt(out, v), nil
	case float32:
		return appendUint32(append(out, 'f'), math.Float32bits(v)), nil
	case string:
		out = append(out, 'Z')
		out = append(out, v...)
		return append(out, 0), nil
	case record.ByteArray:
		out = append(out, 'H')
		for _, b := range v {
			out = append(out, fmt.Sprintf("%02X", b)...)
		}
		return append(out, 0), nil
	case []int8:
		out = append(out, 'B', 'c')
		out = appendUint32(out, uint32(len(v)))
		for _, n := range v {
			out = append(out, byte(n))
		}
		return out, nil
	case []uint8:
		out = append(out, 'B', 'C')
		out = appendUint32(out, uint32(len(v)))
		return append(out, v...), nil
	case []int16:
		out = append(out, 'B', 's')
		out = appendUint32(out, uint32(len(v)))
		for _, n := range v {
			out = appendUint16(out, uint16(n))
		}
		return out, nil
	case []uint16:
		out = append(out, 'B', 'S')
		out = appendUint32(out, uint32(len(v)))
		for _, n := range v {
			out = appendUint16(out, n)
		}
		return out, nil
	case []int32:
		out = append(out, 'B', 'i')
		out = appendUint32(out, uint32(len(v)))
		for _, n := range v {
			out = appendUint32(out, uint32(n))
		}
		return out, nil
	case []uint32:
		out = append(out, 'B', 'I')
		out = appendUint32(out, uint32(len(v)))
		for _, n := range v {
			out = appendUint32(out, n)
		}
		return out, nil
	case []float32:
		out = append(out, 'B', 'f')
		out = appendUint32(out, uint32(len(v)))
		for _, f := range v {
			out = appendUint32(out, math.Float32bits(f))
		}
		return out, nil
	default:
		return nil, engineerr.Newf(engineerr.MalformedRecord, "bamio: unsupported aux value type %T", v)
	}
}

func appendUint16(out []byte, v uint16) []byte {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	return append(out, buf[:]...)
}

func appendUint32(out []byte, v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return append(out, buf[:]...)
}

// appendAuxInt picks the smallest BAM integer tag type that can
// represent v, matching how samtools round-trips integer tags.
func appendAuxInt(out []byte, v int64) []byte {
	switch {
	case v >= 0 && v <= math.MaxUint8:
		return append(out, 'C', byte(v))
	case v >= math.MinInt8 && v < 0:
		return append(out, 'c', byte(int8(v)))
	case v >= 0 && v <= math.MaxUint16:
		return appendUint16(append(out, 'S'), uint16(v))
	case v >= math.MinInt16 && v < 0:
		return appendUint16(append(out, 's'), uint16(int16(v)))
	case v >= 0 && v <= math.MaxUint32:
		return appendUint32(append(out, 'I'), uint32(v))
	default:
		return appendUint32(append(out, 'i'), uint32(int32(v)))
	}
}

// reg2bin computes the BAM binning index bin for an alignment spanning
// [pos, pos+refLen). See the SAM specification, section 5.3.
func reg2bin(pos int32, refLen int32) uint16 {
	beg := pos
	end := pos + refLen
	if refLen <= 0 {
		end = beg + 1
	}
	end--
	switch {
	case beg>>14 == end>>14:
		return uint16(((1<<15)-1)/7 + beg>>14)
	case beg>>17 == end>>17:
		return uint16(((1<<12)-1)/7 + beg>>17)
	case beg>>20 == end>>20:
		return uint16(((1<<9)-1)/7 + beg>>20)
	case beg>>23 == end>>23:
		return uint16(((1<<6)-1)/7 + beg>>23)
	case beg>>26 == end>>26:
		return uint16(((1<<3)-1)/7 + beg>>26)
	default:
		return 0
	}
}
