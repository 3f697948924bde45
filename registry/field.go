// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidField = errors.New("invalid profile field")

// Field identifies one of the seven encrypted profile attributes. The numeric
// values are part of the ledger interface and must never be reordered.
type Field uint8

const (
	FieldEmail Field = iota
	FieldDOB
	FieldName
	FieldIDNumber
	FieldLocation
	FieldExperience
	FieldCountry

	// NumFields is the fixed attribute count of a profile.
	NumFields = 7
)

// FieldKind describes how a field's cleartext maps to its uint64 encoding.
type FieldKind uint8

const (
	// KindText packs the first 8 bytes of the string big-endian.
	KindText FieldKind = iota
	// KindDate stores a unix timestamp in seconds.
	KindDate
	// KindNumber stores the parsed integer directly.
	KindNumber
)

// fieldTable is the fixed field <-> index <-> label <-> encoding mapping.
// Lookups go through this table rather than runtime string switches so a
// missing or duplicated entry is caught by tests, not by silent misencoding.
var fieldTable = [NumFields]struct {
	label string
	kind  FieldKind
}{
	FieldEmail:      {label: "email", kind: KindText},
	FieldDOB:        {label: "dob", kind: KindDate},
	FieldName:       {label: "name", kind: KindText},
	FieldIDNumber:   {label: "id_number", kind: KindText},
	FieldLocation:   {label: "location", kind: KindText},
	FieldExperience: {label: "experience", kind: KindNumber},
	FieldCountry:    {label: "country", kind: KindText},
}

// Valid reports whether f is one of the seven defined fields.
func (f Field) Valid() bool {
	return f < NumFields
}

func (f Field) String() string {
	if !f.Valid() {
		return "unknown"
	}
	return fieldTable[f].label
}

// Kind returns the encoding kind for the field.
func (f Field) Kind() FieldKind {
	if !f.Valid() {
		return KindText
	}
	return fieldTable[f].kind
}

// ParseField converts a raw index into a Field, rejecting out-of-range values.
func ParseField(index uint8) (Field, error) {
	f := Field(index)
	if !f.Valid() {
		return 0, fmt.Errorf("%w: index %d", ErrInvalidField, index)
	}
	return f, nil
}

// FieldFromLabel resolves a field by its label.
func FieldFromLabel(label string) (Field, error) {
	for i := range fieldTable {
		if fieldTable[i].label == label {
			return Field(i), nil
		}
	}
	return 0, fmt.Errorf("%w: label %q", ErrInvalidField, label)
}

// AllFields returns the seven fields in ledger order.
func AllFields() [NumFields]Field {
	var fields [NumFields]Field
	for i := range fields {
		fields[i] = Field(i)
	}
	return fields
}

// EncodeValue converts a field's cleartext form value into the uint64 that is
// submitted for encryption.
func (f Field) EncodeValue(value string) (uint64, error) {
	switch f.Kind() {
	case KindText:
		return encodeText(value), nil
	case KindDate:
		return encodeDate(value)
	case KindNumber:
		return encodeNumber(value)
	default:
		return 0, ErrInvalidField
	}
}

// DecodeValue converts a decrypted uint64 back into a display string. Text
// decoding is lossy beyond 8 bytes, mirroring the encoding.
func (f Field) DecodeValue(value uint64) string {
	switch f.Kind() {
	case KindDate:
		if value == 0 {
			return ""
		}
		return time.Unix(int64(value), 0).UTC().Format("2006-01-02")
	case KindNumber:
		return strconv.FormatUint(value, 10)
	default:
		return decodeText(value)
	}
}

func encodeText(value string) uint64 {
	var v uint64
	b := []byte(value)
	if len(b) > 8 {
		b = b[:8]
	}
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func decodeText(value uint64) string {
	if value == 0 {
		return ""
	}
	var b []byte
	for value > 0 {
		b = append([]byte{byte(value & 0xff)}, b...)
		value >>= 8
	}
	return string(b)
}

func encodeDate(value string) (uint64, error) {
	if value == "" {
		return 0, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		// Fall back to full timestamps for callers that pass RFC 3339.
		t, err = time.Parse(time.RFC3339, value)
		if err != nil {
			return 0, fmt.Errorf("invalid date %q: %w", value, err)
		}
	}
	return uint64(t.Unix()), nil
}

func encodeNumber(value string) (uint64, error) {
	if value == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", value, err)
	}
	return v, nil
}
