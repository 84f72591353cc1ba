package command

import (
	protocol "github.com/tliron/glsp/protocol_3_16"

	"eiffel-lsp/internal/span"
)

// PositionOf converts a parse point to an LSP position.
func PositionOf(p span.Point) protocol.Position {
	return protocol.Position{Line: p.Row, Character: p.Column}
}

// RangeOf converts a parse range to an LSP range.
func RangeOf(r span.Range) protocol.Range {
	return protocol.Range{Start: PositionOf(r.Start), End: PositionOf(r.End)}
}

// PointOf converts an LSP position back to a parse point.
func PointOf(p protocol.Position) span.Point {
	return span.Point{Row: p.Line, Column: p.Character}
}
