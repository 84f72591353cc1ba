// Package span holds source positions shared by the parse layer, the
// workspace and the language server.
package span

import "fmt"

// Point is a zero-based (row, column) position. Columns count bytes.
type Point struct {
	Row    uint32 `json:"row"`
	Column uint32 `json:"column"`
}

// Less orders points in document order.
func (p Point) Less(o Point) bool {
	if p.Row != o.Row {
		return p.Row < o.Row
	}
	return p.Column < o.Column
}

func (p Point) String() string {
	return fmt.Sprintf("%d:%d", p.Row, p.Column)
}

// Range covers one syntax node. StartByte and EndByte index the source
// buffer the node was parsed from.
type Range struct {
	Start     Point  `json:"start"`
	End       Point  `json:"end"`
	StartByte uint32 `json:"startByte"`
	EndByte   uint32 `json:"endByte"`
}

// Collapsed returns an empty range positioned at p.
func Collapsed(p Point, offset uint32) Range {
	return Range{Start: p, End: p, StartByte: offset, EndByte: offset}
}

// IsCollapsed reports whether the range is empty.
func (r Range) IsCollapsed() bool {
	return r.Start == r.End
}

// Contains reports whether p lies within the range, ends included.
func (r Range) Contains(p Point) bool {
	return !p.Less(r.Start) && !r.End.Less(p)
}

// ContainsRange reports whether o lies entirely within r.
func (r Range) ContainsRange(o Range) bool {
	return r.Contains(o.Start) && r.Contains(o.End)
}

// Len is the byte length of the range.
func (r Range) Len() uint32 {
	return r.EndByte - r.StartByte
}

func (r Range) String() string {
	return r.Start.String() + "-" + r.End.String()
}

// Location pins a range to a file.
type Location struct {
	Path  string `json:"path"`
	Range Range  `json:"range"`
}

func (l Location) String() string {
	return l.Path + ":" + l.Range.String()
}
