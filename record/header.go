package record

import (
	"strconv"

	"github.com/readflow/engine/utils"
)

// FileFormatVersion is the SAM/BAM format version this engine writes
// into a fresh Header's HD VN field.
const FileFormatVersion = "1.6"

// A Header carries a container's textual header fields (HD, SQ, RG, PG,
// CO, and arbitrary user records) plus the derived ReferenceTable and
// sort-order. It is threaded end-to-end through the stage graph: the
// external sorter rewrites its sort-order field, but never mutates the
// ReferenceTable, which is immutable once a reader opens its input.
// AddProvenance appends a @PG line; no reader, writer or stage in this
// module calls it, so a written header carries only the @PG lines it
// was given.
type Header struct {
	HD          utils.StringMap
	SQ          []utils.StringMap
	RG          []utils.StringMap
	PG          []utils.StringMap
	CO          []string
	UserRecords map[string][]utils.StringMap

	References ReferenceTable
}

// NewHeader returns a fresh, empty Header.
func NewHeader() *Header {
	return &Header{}
}

func (h *Header) ensureHD() utils.StringMap {
	if h.HD == nil {
		h.HD = utils.StringMap{"VN": FileFormatVersion}
	}
	return h.HD
}

// SortOrder returns the sort order recorded in the header's HD/SO
// field.
func (h *Header) SortOrder() SortingOrder {
	hd := h.ensureHD()
	switch hd["SO"] {
	case "unsorted":
		return Unsorted
	case "coordinate":
		return Coordinate
	case "queryname":
		return Queryname
	default:
		return Unknown
	}
}

// SetSortOrder rewrites the header's HD/SO field to order.
func (h *Header) SetSortOrder(order SortingOrder) {
	hd := h.ensureHD()
	if order == Unknown {
		delete(hd, "SO")
		return
	}
	hd["SO"] = order.String()
}

// AddProvenance appends a @PG provenance line recording that program
// processed the data, following the chain of any already-present PG
// records (PP links to the previous line's ID, matching SAM's @PG
// provenance-chain convention).
func (h *Header) AddProvenance(program, version, commandLine string) {
	id := program
	for n := 2; h.hasPGID(id); n++ {
		id = program + "." + strconv.Itoa(n)
	}
	record := utils.StringMap{"ID": id, "PN": program}
	if version != "" {
		record["VN"] = version
	}
	if commandLine != "" {
		record["CL"] = commandLine
	}
	if len(h.PG) > 0 {
		record["PP"] = h.PG[len(h.PG)-1]["ID"]
	}
	h.PG = append(h.PG, record)
}

func (h *Header) hasPGID(id string) bool {
	for _, pg := range h.PG {
		if pg["ID"] == id {
			return true
		}
	}
	return false
}

// AddUserRecord appends a header record under an arbitrary record-type
// code that is not one of the standard HD/SQ/RG/PG record types. The
// code is kept as it appears at the start of a header line, '@'
// included (for example "@XY"), and is written back verbatim.
func (h *Header) AddUserRecord(code string, fields utils.StringMap) {
	if h.UserRecords == nil {
		h.UserRecords = make(map[string][]utils.StringMap)
	}
	h.UserRecords[code] = append(h.UserRecords[code], fields)
}

// SyncReferences rebuilds h.References from h.SQ, the textual SN/LN
// header fields. The BAM reader does not call it: it fills References
// from the binary reference dictionary instead. Calling it again with
// h.SQ unchanged rebuilds the same table.
func (h *Header) SyncReferences() error {
	refs := make(ReferenceTable, len(h.SQ))
	for i, sq := range h.SQ {
		ln, err := strconv.ParseInt(sq["LN"], 10, 32)
		if err != nil {
			return err
		}
		refs[i] = Reference{Name: sq["SN"], Length: int32(ln)}
	}
	h.References = refs
	return nil
}
