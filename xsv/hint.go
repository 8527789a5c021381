// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package xsv

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"golang.org/x/exp/slices"
)

const (
	TypeIgnore   = "ignore"
	TypeString   = "string" // default
	TypeNumber   = "number" // also floating point
	TypeInt      = "int"    // integer only
	TypeBool     = "bool"
	TypeDateTime = "datetime"
)

const (
	FormatDateTime             = "datetime" // default
	FormatDateTimeUnixSec      = "unix_seconds"
	FormatDateTimeUnixMilliSec = "unix_milli_seconds"
	FormatDateTimeUnixMicroSec = "unix_micro_seconds"
	FormatDateTimeUnixNanoSec  = "unix_nano_seconds"
)

var (
	ErrIngestEmptyOnlyValidForStrings = errors.New("only strings can be empty")
	ErrFormatOnlyValidForDateTime     = errors.New("format only valid for datetime type")
	ErrBoolValuesOnlyValidForBool     = errors.New("custom true/false values only valid for bool type")
	ErrRequireBothTrueAndFalseValues  = errors.New("require both true and false values")
	ErrTrueAndFalseValuesOverlap      = errors.New("true and false values overlap")
)

// Hint specifies the options and
// mandatory fields for parsing
// CSV/TSV files.
type Hint struct {
	// SkipRecords allows skipping the first
	// N records (useful when headers are used)
	SkipRecords int `json:"skipRecords"`
	// Separator allows specifying a custom
	// separator (only applicable for CSV)
	Separator rune `json:"separator"`
	// Fields specifies the hint for each field
	Fields []FieldHint `json:"fields"`
}

// FieldHint defines if and how a
// field should be imported
type FieldHint struct {
	// Field-name (use dots to make it a subfield)
	Name string `json:"name,omitempty"`
	// Type of field (or ignore)
	Type string `json:"type,omitempty"`
	// Default value if the column is an empty string
	Default string `json:"default,omitempty"`
	// Ingestion format (i.e. different data formats)
	Format string `json:"format,omitempty"`
	// Allow empty values (only valid for strings) to
	// be ingested. If the flag is false, an empty
	// column is ingested as a null instead.
	AllowEmpty bool `json:"allowEmpty,omitempty"`
	// Optional list of values that represent TRUE
	// (only valid for bool type)
	TrueValues []string `json:"trueValues,omitempty"`
	// Optional list of values that represent FALSE
	// (only valid for bool type)
	FalseValues []string `json:"falseValues,omitempty"`

	// internals
	nameParts   []string
	arrowType   arrow.DataType
	appendValue appendFunc
}

func (fh *FieldHint) UnmarshalJSON(data []byte) error {
	// base JSON unmarshalling
	type _fieldHint FieldHint
	if err := json.Unmarshal(data, (*_fieldHint)(fh)); err != nil {
		return err
	}

	// set type to "ignore" if no name is set
	if fh.Name == "" || fh.Type == TypeIgnore {
		fh.Name = ""
		fh.Type = TypeIgnore
		return nil
	}

	// split the field-name into separate parts
	fh.nameParts = strings.Split(fh.Name, ".")

	// determine type
	t := fh.Type
	if t == "" {
		t = TypeString
	}

	if t != TypeDateTime && fh.Format != "" {
		return ErrFormatOnlyValidForDateTime
	}
	if t != TypeString && fh.AllowEmpty {
		return ErrIngestEmptyOnlyValidForStrings
	}
	if t != TypeBool && (fh.TrueValues != nil || fh.FalseValues != nil) {
		return ErrBoolValuesOnlyValidForBool
	}

	arrowType, err := arrowTypeForHint(t)
	if err != nil {
		return err
	}
	fh.arrowType = arrowType

	switch t {
	case TypeString:
		fh.appendValue = appendString
	case TypeNumber:
		fh.appendValue = appendFloat
	case TypeInt:
		fh.appendValue = appendInt
	case TypeBool:
		if fh.TrueValues != nil || fh.FalseValues != nil {
			if len(fh.TrueValues) == 0 || len(fh.FalseValues) == 0 {
				return ErrRequireBothTrueAndFalseValues
			}
			for _, tv := range fh.TrueValues {
				if slices.Contains(fh.FalseValues, tv) {
					return ErrTrueAndFalseValuesOverlap
				}
			}
			fh.appendValue = appendCustomBool(fh.TrueValues, fh.FalseValues)
		} else {
			fh.appendValue = appendBool
		}
	case TypeDateTime:
		f := FormatDateTime
		if fh.Format != "" {
			f = fh.Format
		}
		switch f {
		case FormatDateTime:
			fh.appendValue = appendDateTimeText
		case FormatDateTimeUnixSec:
			fh.appendValue = appendEpochSec
		case FormatDateTimeUnixMilliSec:
			fh.appendValue = appendEpochMSec
		case FormatDateTimeUnixMicroSec:
			fh.appendValue = appendEpochUSec
		case FormatDateTimeUnixNanoSec:
			fh.appendValue = appendEpochNSec
		default:
			return fmt.Errorf("invalid date format %q", f)
		}
	}

	return nil
}

// arrowTypeForHint maps a FieldHint.Type onto the Arrow column type
// that holds it; datetime fields are stored as microsecond
// timestamps, matching the precision framesrv's Parquet tier and
// Arrow IPC codec already use elsewhere.
func arrowTypeForHint(t string) (arrow.DataType, error) {
	switch t {
	case TypeString:
		return arrow.BinaryTypes.String, nil
	case TypeNumber:
		return arrow.PrimitiveTypes.Float64, nil
	case TypeInt:
		return arrow.PrimitiveTypes.Int64, nil
	case TypeBool:
		return arrow.FixedWidthTypes.Boolean, nil
	case TypeDateTime:
		return arrow.FixedWidthTypes.Timestamp_us, nil
	default:
		return nil, fmt.Errorf("unknown field type %q", t)
	}
}

// ParseHint parses a json byte array into a Hint structure which can
// later be used to pass type-hints and/or other flags to the CSV/TSV
// parser.
//
// The input must contain a valid JSON object, like:
//
//	{
//	  "fields": [
//	    {"name":"field", "type": "<type>"},
//	    {"name":"field.a", "type": "<type>", "default": "empty"},
//	    {"name":"field.b", "type": "datetime", "format": "unix_seconds"},
//	    {"name":"anotherField", "type": "bool", "trueValues": ["Y"], "falseValues": ["N"]},
//	    ...
//	  ]
//	}
//
// With CSV and TSV each line represents a single record, split into
// columns by the chopper in use. The 'fields' entry is an ordered list
// that specifies the name and type of each column, in column order.
//
// Each field is given the specified 'name'. If no 'type' is specified
// then 'string' is assumed. Columns beyond the end of 'fields' are
// ignored.
//
// If a field doesn't need to be ingested, insert an entry with 'type'
// set to "ignore" (or omit the field and leave a gap — see Convert).
//
// When a column is empty, the field is ingested as a null value unless
// a 'default' is specified (which can be an empty string, for string
// fields with 'allowEmpty' set).
//
// The 'name' can contain multiple levels separated by dots, which
// builds a nested struct column in the resulting frame — useful for
// grouping related columns together.
//
// Supported types:
//   - string -> set 'allowEmpty' if you want empty strings to be ingested
//   - number -> either float or int
//   - int
//   - bool -> can support custom trueValues/falseValues
//   - datetime -> formats: datetime (RFC3339, default), unix_seconds,
//     unix_milli_seconds, unix_micro_seconds, unix_nano_seconds
func ParseHint(hint []byte) (*Hint, error) {
	var h Hint
	err := json.Unmarshal(hint, &h)
	if err != nil {
		return nil, err
	}
	return &h, nil
}
