// Package scipexport writes the parsed classes of a system as a SCIP index
// so code-intelligence tools can browse Eiffel sources.
package scipexport

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	scippb "github.com/sourcegraph/scip/bindings/go/scip"
	"google.golang.org/protobuf/proto"

	"eiffel-lsp/internal/errors"
	"eiffel-lsp/internal/model"
	"eiffel-lsp/internal/paths"
	"eiffel-lsp/internal/span"
)

const (
	scheme   = "eiffel"
	language = "Eiffel"
)

// Options describe the index being written.
type Options struct {
	// Root is the directory document paths are made relative to.
	Root string
	// Package names the system; it becomes the package of every symbol.
	Package     string
	ToolName    string
	ToolVersion string
	Arguments   []string
}

// Build converts classes into a SCIP index with one document per file.
// Classes outside Root keep their absolute path.
func Build(classes []*model.Class, opts Options) *scippb.Index {
	pkg := sanitize(opts.Package)
	if pkg == "" {
		pkg = "."
	}

	idx := &scippb.Index{
		Metadata: &scippb.Metadata{
			ToolInfo: &scippb.ToolInfo{
				Name:      opts.ToolName,
				Version:   opts.ToolVersion,
				Arguments: opts.Arguments,
			},
			ProjectRoot:          paths.FileURI(opts.Root),
			TextDocumentEncoding: scippb.TextEncoding_UTF8,
		},
	}

	sorted := append([]*model.Class(nil), classes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
	for _, cls := range sorted {
		idx.Documents = append(idx.Documents, document(cls, pkg, opts.Root))
	}
	return idx
}

func document(cls *model.Class, pkg, root string) *scippb.Document {
	rel := cls.Path
	if r, err := filepath.Rel(root, cls.Path); err == nil && !strings.HasPrefix(r, "..") {
		rel = r
	}
	doc := &scippb.Document{
		Language:     language,
		RelativePath: filepath.ToSlash(rel),
	}

	classSym := ClassSymbol(pkg, cls.Name)
	info := &scippb.SymbolInformation{
		Symbol:      classSym,
		Kind:        scippb.SymbolInformation_Class,
		DisplayName: string(cls.Name),
	}
	for _, p := range cls.Parents {
		info.Relationships = append(info.Relationships, &scippb.Relationship{
			Symbol:           ClassSymbol(pkg, p.Name),
			IsImplementation: true,
		})
	}
	doc.Symbols = append(doc.Symbols, info)
	doc.Occurrences = append(doc.Occurrences, definition(classSym, cls.Range))

	for i := range cls.Features {
		f := &cls.Features[i]
		sym := FeatureSymbol(pkg, cls.Name, f)
		fi := &scippb.SymbolInformation{
			Symbol:          sym,
			Kind:            scippb.SymbolInformation_Field,
			DisplayName:     string(f.Name),
			EnclosingSymbol: classSym,
			Documentation:   []string{"```eiffel\n" + f.Signature() + "\n```"},
		}
		if f.IsRoutine() {
			fi.Kind = scippb.SymbolInformation_Method
		}
		for _, p := range cls.Parents {
			if p.Redefines(f.Name) {
				fi.Relationships = append(fi.Relationships, &scippb.Relationship{
					Symbol:           FeatureSymbol(pkg, p.Name, &model.Feature{Name: p.OriginalName(f.Name), Routine: f.IsRoutine()}),
					IsImplementation: true,
					IsReference:      true,
				})
			}
		}
		doc.Symbols = append(doc.Symbols, fi)
		doc.Occurrences = append(doc.Occurrences, definition(sym, f.Range))
	}
	return doc
}

func definition(symbol string, r span.Range) *scippb.Occurrence {
	return &scippb.Occurrence{
		Range:       []int32{int32(r.Start.Row), int32(r.Start.Column), int32(r.End.Row), int32(r.End.Column)},
		Symbol:      symbol,
		SymbolRoles: int32(scippb.SymbolRole_Definition),
	}
}

// ClassSymbol is the global symbol of a class: `eiffel . <pkg> . NAME#`.
func ClassSymbol(pkg string, name model.ClassName) string {
	return fmt.Sprintf("%s . %s . %s#", scheme, pkg, name)
}

// FeatureSymbol is the symbol of a feature: a method descriptor for
// routines, a term descriptor for attributes.
func FeatureSymbol(pkg string, class model.ClassName, f *model.Feature) string {
	name := strings.ToLower(string(f.Name))
	if f.IsRoutine() {
		return ClassSymbol(pkg, class) + name + "()."
	}
	return ClassSymbol(pkg, class) + name + "."
}

// sanitize makes name usable as a space-separated symbol component.
func sanitize(name string) string {
	return strings.Join(strings.Fields(name), "_")
}

// Write serialises idx to path.
func Write(path string, idx *scippb.Index) error {
	data, err := proto.Marshal(idx)
	if err != nil {
		return errors.New(errors.InternalError, "failed to encode SCIP index", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New(errors.InternalError, "failed to write "+path, err)
	}
	return nil
}

// Read loads an index written by Write.
func Read(path string) (*scippb.Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.InternalError, "failed to read "+path, err)
	}
	var idx scippb.Index
	if err := proto.Unmarshal(data, &idx); err != nil {
		return nil, errors.New(errors.ParseError, "failed to parse SCIP index "+path, err)
	}
	return &idx, nil
}
