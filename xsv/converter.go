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

// Package xsv implements parsing/converting CSV (RFC 4180) and
// TSV (tab separated values) files into frame.Frame values.
package xsv

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/framesrv/framesrv/frame"
)

var ErrNoHints = errors.New("hints are mandatory")

// defaultConvertChunkRows bounds how many rows accumulate in a single
// Arrow record batch when the caller doesn't pass a chunk size of its
// own (see Convert).
const defaultConvertChunkRows = 10_000

// RowChopper implements fetching
// records row-by-row and chopping
// the records into individual fields
// until the reader is exhausted
type RowChopper interface {
	// GetNext return the next record and
	// splits fields in individual columns
	GetNext(r io.Reader) ([]string, error)
}

// Convert reads all records from r using ch to split each line into
// columns and hint to type and shape them, and returns the result as
// a frame.Frame. Rows accumulate into Arrow record batches of
// chunkRows rows each (pass 0 to use a sensible default); the caller
// should pick chunkRows from chunk.Strategy.CurrentRows when adaptive
// sizing matters, e.g. for very large uploads.
func Convert(r io.Reader, ch RowChopper, hint *Hint, chunkRows int) (*frame.Frame, error) {
	if hint == nil || len(hint.Fields) == 0 {
		return nil, ErrNoHints
	}
	if chunkRows <= 0 {
		chunkRows = defaultConvertChunkRows
	}

	tree, err := newFieldTree(hint.Fields)
	if err != nil {
		return nil, err
	}
	schema := arrow.NewSchema(tree.schemaFields(), nil)

	mem := memory.NewGoAllocator()
	rb := array.NewRecordBuilder(mem, schema)
	defer rb.Release()
	bound := tree.bind(rb)

	var batches []arrow.Record
	releaseBatches := func() {
		for _, b := range batches {
			b.Release()
		}
	}

	rows := 0
	flush := func() {
		if rows == 0 {
			return
		}
		batches = append(batches, rb.NewRecord())
		rows = 0
	}

	for {
		fields, err := ch.GetNext(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				releaseBatches()
				return nil, err
			}
			break
		}
		if err := appendRow(bound, fields); err != nil {
			releaseBatches()
			return nil, err
		}
		rows++
		if rows >= chunkRows {
			flush()
		}
	}
	flush()

	if len(batches) == 0 {
		// still produce an empty, schema-conformant frame
		batches = append(batches, rb.NewRecord())
	}

	f, err := frame.New(schema, batches)
	releaseBatches()
	return f, err
}

// fieldTree groups hint.Fields by their dotted name into the nested
// struct shape the output schema should have: "a.b" and "a.c" both
// become children of a struct column named "a".
type fieldTree struct {
	name     string
	children []*fieldTree
	leaf     *FieldHint
	rowIndex int // index into the per-row []string slice; valid iff leaf != nil
}

func newFieldTree(fields []FieldHint) (*fieldTree, error) {
	root := &fieldTree{}
	for i := range fields {
		f := &fields[i]
		if f.Type == TypeIgnore {
			continue
		}
		node := root
		for j, part := range f.nameParts {
			last := j == len(f.nameParts)-1
			child := node.childNamed(part)
			if child == nil {
				child = &fieldTree{name: part}
				node.children = append(node.children, child)
			}
			if last {
				if child.leaf != nil || len(child.children) > 0 {
					return nil, fmt.Errorf("conflicting field name %q", f.Name)
				}
				child.leaf = f
				child.rowIndex = i
			} else if child.leaf != nil {
				return nil, fmt.Errorf("conflicting field name %q", f.Name)
			}
			node = child
		}
	}
	root.sortChildren()
	return root, nil
}

func (n *fieldTree) childNamed(name string) *fieldTree {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

func (n *fieldTree) sortChildren() {
	sort.Slice(n.children, func(a, b int) bool { return n.children[a].name < n.children[b].name })
	for _, c := range n.children {
		c.sortChildren()
	}
}

func (n *fieldTree) schemaFields() []arrow.Field {
	out := make([]arrow.Field, len(n.children))
	for i, c := range n.children {
		out[i] = c.schemaField()
	}
	return out
}

func (n *fieldTree) schemaField() arrow.Field {
	if n.leaf != nil {
		return arrow.Field{Name: n.name, Type: n.leaf.arrowType, Nullable: true}
	}
	return arrow.Field{Name: n.name, Type: arrow.StructOf(n.schemaFields()...), Nullable: true}
}

// boundField ties a fieldTree node to the array.Builder that accepts
// its values, walking the same shape as array.RecordBuilder's (and,
// for struct columns, array.StructBuilder's) field builders.
type boundField struct {
	node     *fieldTree
	builder  array.Builder
	children []*boundField
}

func (n *fieldTree) bind(rb *array.RecordBuilder) *boundField {
	root := &boundField{node: n}
	root.children = make([]*boundField, len(n.children))
	for i, c := range n.children {
		root.children[i] = c.bindBuilder(rb.Field(i))
	}
	return root
}

func (n *fieldTree) bindBuilder(b array.Builder) *boundField {
	bf := &boundField{node: n, builder: b}
	if n.leaf == nil {
		sb := b.(*array.StructBuilder)
		bf.children = make([]*boundField, len(n.children))
		for i, c := range n.children {
			bf.children[i] = c.bindBuilder(sb.FieldBuilder(i))
		}
	}
	return bf
}

func appendRow(root *boundField, rowFields []string) error {
	for _, c := range root.children {
		if err := appendField(c, rowFields); err != nil {
			return err
		}
	}
	return nil
}

func appendField(bf *boundField, rowFields []string) error {
	if bf.node.leaf == nil {
		sb := bf.builder.(*array.StructBuilder)
		sb.Append(true)
		for _, c := range bf.children {
			if err := appendField(c, rowFields); err != nil {
				return err
			}
		}
		return nil
	}

	f := bf.node.leaf
	var text string
	if bf.node.rowIndex < len(rowFields) {
		text = rowFields[bf.node.rowIndex]
	}
	if text == "" {
		text = f.Default
	}
	if text == "" && !f.AllowEmpty {
		bf.builder.AppendNull()
		return nil
	}
	if err := f.appendValue(bf.builder, text); err != nil {
		return fmt.Errorf("field %q: %w", f.Name, err)
	}
	return nil
}
