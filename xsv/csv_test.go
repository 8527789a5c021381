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
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

func mustParseHint(t *testing.T, json string) *Hint {
	t.Helper()
	h, err := ParseHint([]byte(json))
	if err != nil {
		t.Fatalf("ParseHint: %v", err)
	}
	return h
}

func TestConvertCSVFlat(t *testing.T) {
	h := mustParseHint(t, `{
		"skipRecords": 1,
		"fields": [
			{"name": "name", "type": "string"},
			{"name": "age", "type": "int"},
			{"name": "score", "type": "number"},
			{"name": "active", "type": "bool"}
		]
	}`)

	input := "name,age,score,active\nalice,30,1.5,true\nbob,40,2.5,false\n"
	ch := &CsvChopper{SkipRecords: h.SkipRecords, Separator: Delim(h.Separator)}

	f, err := Convert(strings.NewReader(input), ch, h, 0)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	defer f.Release()

	if f.Height() != 2 {
		t.Fatalf("Height() = %d, want 2", f.Height())
	}
	if f.Width() != 4 {
		t.Fatalf("Width() = %d, want 4", f.Width())
	}

	names, err := f.Column("name")
	if err != nil {
		t.Fatalf("Column(name): %v", err)
	}
	sc := names[0].(*array.String)
	if sc.Value(0) != "alice" || sc.Value(1) != "bob" {
		t.Fatalf("name column = %v", []string{sc.Value(0), sc.Value(1)})
	}

	ages, _ := f.Column("age")
	ic := ages[0].(*array.Int64)
	if ic.Value(0) != 30 || ic.Value(1) != 40 {
		t.Fatalf("age column = %v, %v", ic.Value(0), ic.Value(1))
	}

	actives, _ := f.Column("active")
	bc := actives[0].(*array.Boolean)
	if bc.Value(0) != true || bc.Value(1) != false {
		t.Fatalf("active column = %v, %v", bc.Value(0), bc.Value(1))
	}
}

func TestConvertCSVIgnoreAndDefault(t *testing.T) {
	h := mustParseHint(t, `{
		"fields": [
			{"name": "keep", "type": "string"},
			{"type": "ignore"},
			{"name": "withDefault", "type": "int", "default": "0"}
		]
	}`)

	input := "a,skipme,\nb,skipme,7\n"
	ch := &CsvChopper{}

	f, err := Convert(strings.NewReader(input), ch, h, 0)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	defer f.Release()

	if f.Width() != 2 {
		t.Fatalf("Width() = %d, want 2 (ignored field must not appear)", f.Width())
	}

	withDefault, _ := f.Column("withDefault")
	ic := withDefault[0].(*array.Int64)
	if ic.Value(0) != 0 || ic.Value(1) != 7 {
		t.Fatalf("withDefault column = %v, %v", ic.Value(0), ic.Value(1))
	}
}

func TestConvertCSVNestedFields(t *testing.T) {
	h := mustParseHint(t, `{
		"fields": [
			{"name": "user.name", "type": "string"},
			{"name": "user.age", "type": "int"}
		]
	}`)

	input := "alice,30\n"
	ch := &CsvChopper{}

	f, err := Convert(strings.NewReader(input), ch, h, 0)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	defer f.Release()

	if f.Width() != 1 {
		t.Fatalf("Width() = %d, want 1 (single struct column)", f.Width())
	}
	field := f.Schema().Field(0)
	st, ok := field.Type.(*arrow.StructType)
	if field.Name != "user" || !ok || st.NumFields() != 2 {
		t.Fatalf("schema field 0 = %+v, want struct \"user\" with 2 fields", field)
	}
	batch := f.Batches()[0]
	structCol := batch.Column(0).(*array.Struct)
	nameCol := structCol.Field(1).(*array.String)
	ageCol := structCol.Field(0).(*array.Int64)
	if nameCol.Value(0) != "alice" || ageCol.Value(0) != 30 {
		t.Fatalf("nested fields = %q, %d", nameCol.Value(0), ageCol.Value(0))
	}
}

func TestConvertCSVCustomSeparator(t *testing.T) {
	h := mustParseHint(t, `{
		"separator": 59,
		"fields": [
			{"name": "a", "type": "string"},
			{"name": "b", "type": "string"}
		]
	}`)

	input := "x;y\n"
	ch := &CsvChopper{Separator: Delim(h.Separator)}

	f, err := Convert(strings.NewReader(input), ch, h, 0)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	defer f.Release()

	cols, _ := f.Column("a")
	if cols[0].(*array.String).Value(0) != "x" {
		t.Fatalf("a column = %q, want x", cols[0].(*array.String).Value(0))
	}
}

func TestConvertNoHintsReturnsError(t *testing.T) {
	ch := &CsvChopper{}
	_, err := Convert(strings.NewReader("a,b\n"), ch, nil, 0)
	if err != ErrNoHints {
		t.Fatalf("Convert error = %v, want ErrNoHints", err)
	}
}

func TestConvertCSVChunking(t *testing.T) {
	h := mustParseHint(t, `{"fields": [{"name": "n", "type": "int"}]}`)
	var sb strings.Builder
	for i := 0; i < 25; i++ {
		sb.WriteString("1\n")
	}
	ch := &CsvChopper{}

	f, err := Convert(strings.NewReader(sb.String()), ch, h, 10)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	defer f.Release()

	if f.Height() != 25 {
		t.Fatalf("Height() = %d, want 25", f.Height())
	}
	if len(f.Batches()) != 3 {
		t.Fatalf("len(Batches()) = %d, want 3 (10+10+5)", len(f.Batches()))
	}
}
