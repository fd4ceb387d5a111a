package rusticdb

// This file defines methods for working with tuples and their schemas,
// including the types FieldType, TupleDesc, RecordID, and Tuple.

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// RecordID identifies the slot a tuple occupies: a page plus a slot
// index within that page.  The zero RecordID marks a tuple that has not
// been placed on any page yet.
type RecordID struct {
	PID    HeapPageID
	SlotNo int
}

// FieldType is one column of a schema: a name and a DBType.
type FieldType struct {
	Fname string
	Ftype DBType
}

// TupleDesc is the "type" of a tuple, e.g., the ordered field names and
// types of a table's rows.
type TupleDesc struct {
	Fields []FieldType
}

// Compare two tuple descs, and return true iff all of their fields are
// equal and they are the same length.
func (d *TupleDesc) equals(d2 *TupleDesc) bool {
	if len(d.Fields) != len(d2.Fields) {
		return false
	}
	for i := range d.Fields {
		if d.Fields[i] != d2.Fields[i] {
			return false
		}
	}
	return true
}

// Make a copy of a tuple desc.  Note that in go, assignment of a slice
// to another slice object does not make a copy of the contents of the
// slice.
func (d *TupleDesc) copy() *TupleDesc {
	fields := make([]FieldType, len(d.Fields))
	copy(fields, d.Fields)
	return &TupleDesc{Fields: fields}
}

// nameToIndex returns the index of the first field with the supplied
// name.  Field names are not required to be unique; lookups resolve to
// the first occurrence.
func (d *TupleDesc) nameToIndex(name string) (int, bool) {
	for i, f := range d.Fields {
		if f.Fname == name {
			return i, true
		}
	}
	return -1, false
}

// size returns the number of bytes one tuple of this desc occupies on
// disk, i.e., the sum of the field type sizes.
func (d *TupleDesc) size() int {
	sz := 0
	for _, f := range d.Fields {
		sz += f.Ftype.size()
	}
	return sz
}

// Tuple represents the contents of a tuple read from a table.  It
// includes the tuple descriptor, the values of the fields, and the
// record id tracking the page and slot the tuple was read from.
type Tuple struct {
	Desc   TupleDesc
	Fields []DBValue
	Rid    RecordID
}

// Serialize the contents of the tuple into the supplied buffer.  Since
// all tuples are fixed size, this simply writes the fields in order in
// their on-disk forms.
func (t *Tuple) writeTo(b *bytes.Buffer) error {
	for _, f := range t.Fields {
		if err := f.writeTo(b); err != nil {
			return err
		}
	}
	return nil
}

// Read the contents of a tuple with the specified TupleDesc from the
// specified buffer.  The returned tuple has a zero record id; callers
// that know the slot stamp it afterwards.
func readTupleFrom(b *bytes.Buffer, desc *TupleDesc) (*Tuple, error) {
	t := &Tuple{Desc: *desc.copy()}
	for _, ft := range desc.Fields {
		f, err := readField(ft.Ftype, b)
		if err != nil {
			return nil, err
		}
		t.Fields = append(t.Fields, f)
	}
	return t, nil
}

// Compare two tuples for equality.  Equality means the descs are equal
// and all of the fields are equal.  Record ids are not compared.
func (t *Tuple) equals(t2 *Tuple) bool {
	if t == nil || t2 == nil {
		return t == t2
	}
	if !t.Desc.equals(&t2.Desc) || len(t.Fields) != len(t2.Fields) {
		return false
	}
	for i := range t.Fields {
		if t.Fields[i] != t2.Fields[i] {
			return false
		}
	}
	return true
}

// tupleKey computes a stable byte key for the tuple, used by the table
// statistics sketches.
func (t *Tuple) tupleKey() []byte {
	var buf bytes.Buffer
	t.writeTo(&buf)
	return buf.Bytes()
}

var winWidth int = 120

func fmtCol(v string, ncols int) string {
	colWid := winWidth / ncols
	nextLen := len(v) + 3
	remLen := colWid - nextLen
	if remLen > 0 {
		spacesRight := remLen / 2
		spacesLeft := remLen - spacesRight
		return strings.Repeat(" ", spacesLeft) + v + strings.Repeat(" ", spacesRight) + " |"
	}
	return " " + v[0:colWid-4] + " |"
}

// Return a string representing the header of a table for a tuple with
// the supplied TupleDesc.
//
// Aligned indicates if the header should be formatted in a tabular
// format.
func (d *TupleDesc) HeaderString(aligned bool) string {
	outstr := ""
	for i, f := range d.Fields {
		if aligned {
			outstr = fmt.Sprintf("%s %s", outstr, fmtCol(f.Fname, len(d.Fields)))
		} else {
			sep := ","
			if i == 0 {
				sep = ""
			}
			outstr = fmt.Sprintf("%s%s%s", outstr, sep, f.Fname)
		}
	}
	return outstr
}

// Return a string representing the tuple.  Aligned indicates if the
// tuple should be formatted in a tabular format.
func (t *Tuple) PrettyPrintString(aligned bool) string {
	outstr := ""
	for i, f := range t.Fields {
		str := ""
		switch f := f.(type) {
		case IntField:
			str = strconv.FormatInt(int64(f.Value), 10)
		case StringField:
			str = f.Value
		}
		if aligned {
			outstr = fmt.Sprintf("%s %s", outstr, fmtCol(str, len(t.Fields)))
		} else {
			sep := ","
			if i == 0 {
				sep = ""
			}
			outstr = fmt.Sprintf("%s%s%s", outstr, sep, str)
		}
	}
	return outstr
}
