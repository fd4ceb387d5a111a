package rusticdb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf8"
)

// DBValue is a single field value inside a tuple.
type DBValue interface {
	// Type returns the DBType this value encodes as.
	Type() DBType
	// writeTo serializes the value onto b in its on-disk form.
	writeTo(b *bytes.Buffer) error
}

// IntField is a signed 32 bit integer field, stored big-endian.
type IntField struct {
	Value int32
}

func (f IntField) Type() DBType {
	return IntType
}

func (f IntField) writeTo(b *bytes.Buffer) error {
	return binary.Write(b, binary.BigEndian, f.Value)
}

// StringField is a fixed-capacity string field.  On disk it is a 4 byte
// big-endian length followed by StringLength payload bytes; values
// longer than StringLength are truncated on encode.
type StringField struct {
	Value string
}

func (f StringField) Type() DBType {
	return StringType
}

func (f StringField) writeTo(b *bytes.Buffer) error {
	payload := []byte(f.Value)
	if len(payload) > StringLength {
		payload = payload[:StringLength]
	}
	if err := binary.Write(b, binary.BigEndian, uint32(len(payload))); err != nil {
		return err
	}
	padded := make([]byte, StringLength)
	copy(padded, payload)
	_, err := b.Write(padded)
	return err
}

// readField decodes one field of the given type from b.  The declared
// length of a string is authoritative, but must fit in StringLength and
// must delimit valid UTF-8; anything else is malformed data.
func readField(t DBType, b *bytes.Buffer) (DBValue, error) {
	switch t {
	case IntType:
		var v int32
		if err := binary.Read(b, binary.BigEndian, &v); err != nil {
			return nil, DBError{MalformedDataError, fmt.Sprintf("short int field: %v", err)}
		}
		return IntField{v}, nil
	case StringType:
		var length uint32
		if err := binary.Read(b, binary.BigEndian, &length); err != nil {
			return nil, DBError{MalformedDataError, fmt.Sprintf("short string length: %v", err)}
		}
		payload := make([]byte, StringLength)
		if _, err := io.ReadFull(b, payload); err != nil {
			return nil, DBError{MalformedDataError, fmt.Sprintf("short string payload: %v", err)}
		}
		if length > StringLength {
			return nil, DBError{MalformedDataError, fmt.Sprintf("declared string length %d exceeds capacity %d", length, StringLength)}
		}
		raw := payload[:length]
		if !utf8.Valid(raw) {
			return nil, DBError{MalformedDataError, "string payload is not valid UTF-8"}
		}
		return StringField{string(raw)}, nil
	}
	return nil, DBError{TypeMismatchError, fmt.Sprintf("unknown field type %d", t)}
}
