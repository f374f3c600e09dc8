// Package bamio implements the BAM binary codec on top of the BGZF
// container envelope (package bgzf): parsing and formatting a
// record.Header's textual fields and reference table, and decoding
// and encoding record.Record values to and from BAM's packed binary
// alignment layout.
//
// Grounded on elprep's sam/sam-files.go (textual header parsing) and
// sam/bam-files.go (binary alignment record layout), generalized from
// elprep's own Header/Alignment types onto this engine's record
// package and from elprep's bgzf reader/writer onto package bgzf.
package bamio

import (
	"fmt"
	"io"
	"strings"

	"github.com/readflow/engine/engineerr"
	"github.com/readflow/engine/record"
)

// bamMagic is the four-byte magic string at the start of a BAM stream.
// See the SAM specification, section 4.2.
const bamMagic = "BAM\x01"

func parseHeaderField(line string) (tag, value string, err error) {
	if len(line) < 3 || line[2] != ':' {
		return "", "", fmt.Errorf("malformed header field %q", line)
	}
	return line[:2], line[3:], nil
}

func parseHeaderLine(fields string) (map[string]string, error) {
	record := make(map[string]string)
	for _, field := range strings.Split(fields, "\t") {
		if field == "" {
			continue
		}
		tag, value, err := parseHeaderField(field)
		if err != nil {
			return nil, err
		}
		if _, dup := record[tag]; dup {
			return nil, fmt.Errorf("duplicate field tag %s in a SAM header line", tag)
		}
		record[tag] = value
	}
	return record, nil
}

// parseTextHeader parses the textual SAM header embedded in a BAM
// stream (the @HD/@SQ/@RG/@PG/@CO lines and any user-defined header
// record types) into a fresh record.Header. It does not populate
// Header.References; callers read that from the binary reference
// dictionary that follows the text header in a BAM stream.
func parseTextHeader(text string) (*record.Header, error) {
	hdr := record.NewHeader()
	first := true
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		if len(line) < 4 || line[0] != '@' {
			return nil, fmt.Errorf("malformed SAM header line %q", line)
		}
		code, rest := line[:3], line[4:]
		switch code {
		case "@HD":
			if !first {
				return nil, fmt.Errorf("@HD line not first in a SAM header")
			}
			fields, err := parseHeaderLine(rest)
			if err != nil {
				return nil, err
			}
			hdr.HD = fields
		case "@SQ":
			fields, err := parseHeaderLine(rest)
			if err != nil {
				return nil, err
			}
			hdr.SQ = append(hdr.SQ, fields)
		case "@RG":
			fields, err := parseHeaderLine(rest)
			if err != nil {
				return nil, err
			}
			hdr.RG = append(hdr.RG, fields)
		case "@PG":
			fields, err := parseHeaderLine(rest)
			if err != nil {
				return nil, err
			}
			hdr.PG = append(hdr.PG, fields)
		case "@CO":
			hdr.CO = append(hdr.CO, line[4:])
		default:
			fields, err := parseHeaderLine(rest)
			if err != nil {
				return nil, err
			}
			hdr.AddUserRecord(code, fields)
		}
		first = false
	}
	return hdr, nil
}

// formatTextHeader renders hdr's textual fields back to BAM's embedded
// SAM header text, in the same record-type order a BAM writer's header
// block uses: HD, SQ, RG, PG, CO, then any user record types.
func formatTextHeader(hdr *record.Header) string {
	var b strings.Builder
	if hdr.HD != nil {
		formatHeaderLine(&b, "@HD", hdr.HD)
	}
	for _, sq := range hdr.SQ {
		formatHeaderLine(&b, "@SQ", sq)
	}
	for _, rg := range hdr.RG {
		formatHeaderLine(&b, "@RG", rg)
	}
	for _, pg := range hdr.PG {
		formatHeaderLine(&b, "@PG", pg)
	}
	for _, co := range hdr.CO {
		b.WriteString("@CO\t")
		b.WriteString(co)
		b.WriteByte('\n')
	}
	for code, records := range hdr.UserRecords {
		for _, fields := range records {
			formatHeaderLine(&b, code, fields)
		}
	}
	return b.String()
}

func formatHeaderLine(b *strings.Builder, code string, fields map[string]string) {
	b.WriteString(code)
	for tag, value := range fields {
		b.WriteByte('\t')
		b.WriteString(tag)
		b.WriteByte(':')
		b.WriteString(value)
	}
	b.WriteByte('\n')
}

// readTextHeader reads the complete BAM header block from r (magic,
// length-prefixed text, reference dictionary) and returns the parsed
// Header with its ReferenceTable populated.
func readTextHeader(r io.Reader) (*record.Header, error) {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, engineerr.Wrap(engineerr.TruncatedStream, err, "bamio: reading magic")
	}
	if string(magic) != bamMagic {
		return nil, engineerr.New(engineerr.UnsupportedVersion, "bamio: not a BAM stream")
	}
	lText, err := readInt32(r)
	if err != nil {
		return nil, err
	}
	text := make([]byte, lText)
	if _, err := io.ReadFull(r, text); err != nil {
		return nil, engineerr.Wrap(engineerr.TruncatedStream, err, "bamio: reading header text")
	}
	if i := strings.IndexByte(string(text), 0); i >= 0 {
		text = text[:i]
	}
	hdr, err := parseTextHeader(string(text))
	if err != nil {
		return nil, engineerr.Wrap(engineerr.MalformedRecord, err, "bamio: parsing header text")
	}

	nRef, err := readInt32(r)
	if err != nil {
		return nil, err
	}
	refs := make(record.ReferenceTable, nRef)
	for i := int32(0); i < nRef; i++ {
		lName, err := readInt32(r)
		if err != nil {
			return nil, err
		}
		name := make([]byte, lName)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, engineerr.Wrap(engineerr.TruncatedStream, err, "bamio: reading reference name")
		}
		lRef, err := readInt32(r)
		if err != nil {
			return nil, err
		}
		refs[i] = record.Reference{Name: string(name[:len(name)-1]), Length: lRef}
	}
	hdr.References = refs
	return hdr, nil
}

// writeTextHeader writes a BAM header block (magic, length-prefixed
// text, reference dictionary) derived from hdr.
func writeTextHeader(w io.Writer, hdr *record.Header) error {
	if _, err := io.WriteString(w, bamMagic); err != nil {
		return engineerr.Wrap(engineerr.IOError, err, "bamio: writing magic")
	}
	text := formatTextHeader(hdr) + "\x00"
	if err := writeInt32(w, int32(len(text))); err != nil {
		return err
	}
	if _, err := io.WriteString(w, text); err != nil {
		return engineerr.Wrap(engineerr.IOError, err, "bamio: writing header text")
	}
	if err := writeInt32(w, int32(len(hdr.References))); err != nil {
		return err
	}
	for _, ref := range hdr.References {
		nameZ := ref.Name + "\x00"
		if err := writeInt32(w, int32(len(nameZ))); err != nil {
			return err
		}
		if _, err := io.WriteString(w, nameZ); err != nil {
			return engineerr.Wrap(engineerr.IOError, err, "bamio: writing reference name")
		}
		if err := writeInt32(w, ref.Length); err != nil {
			return err
		}
	}
	return nil
}
