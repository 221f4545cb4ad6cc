// Package loader turns raw scrape files into documents of atomic units.
//
// Each supported format decides how its text is cut into units and how the
// units are joined inside a chunk. Loading is tolerant: a missing or
// malformed file is reported to the caller, and LoadAll logs it and moves
// on to the next file.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/log"
)

// Document types, stored as the "type" metadata field.
const (
	TypeText               = "text"
	TypeProgramLink        = "program_link"
	TypeProgramDescription = "program_description"
	TypeTable              = "table"
)

var (
	// ErrUnsupported is returned for a file extension no loader handles.
	ErrUnsupported = errors.New("loader: unsupported file type")
	// ErrMalformed is returned when a file cannot be parsed.
	ErrMalformed = errors.New("loader: malformed input")
)

// Document is one loaded input, ready for the splitter. It is read-only
// after loading.
type Document struct {
	// Source identifies the input, usually its base file name.
	Source string
	// Path is the location the input was read from.
	Path string
	// Type is one of the Type* constants.
	Type string
	// Units are the atomic units in input order.
	Units []string
	// Separator joins units inside a chunk.
	Separator string
	// HeaderUnits is the number of leading units repeated in every chunk.
	HeaderUnits int
	// CarryOverlap enables trailing-character overlap between chunks.
	CarryOverlap bool
	// Refine cuts a unit that is too large for one chunk into finer units.
	Refine func(string) []string
	// ContentIDs selects content-hash vector ids over positional ones.
	ContentIDs bool
	// Fields holds record-level metadata preserved from the input.
	Fields map[string]string
}

// Loader parses one input.
type Loader interface {
	Load(source string, r io.Reader) ([]Document, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(source string, r io.Reader) ([]Document, error)

// Load implements Loader.
func (f LoaderFunc) Load(source string, r io.Reader) ([]Document, error) {
	return f(source, r)
}

// TextExtractor extracts plain text from binary formats.
type TextExtractor interface {
	ExtractText(r io.Reader, fileName string) (string, error)
}

// Options configures a Registry.
type Options struct {
	// CSVHeaderRows is the number of data rows repeated with the column
	// line in every table chunk.
	CSVHeaderRows int
	// JSONMetadataFields are record fields kept as metadata instead of
	// text.
	JSONMetadataFields []string
	// Extractor handles extensions without a dedicated loader. Nil
	// disables them.
	Extractor TextExtractor
}

// Registry dispatches inputs to loaders by file extension.
type Registry struct {
	byExt     map[string]Loader
	extractor TextExtractor
}

// NewRegistry returns a registry with the txt, json and csv loaders.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		byExt: map[string]Loader{
			".txt":  TextLoader{},
			".md":   TextLoader{},
			".json": JSONLoader{MetadataFields: opts.JSONMetadataFields},
			".csv":  CSVLoader{HeaderRows: opts.CSVHeaderRows},
		},
		extractor: opts.Extractor,
	}
}

// Register adds or replaces the loader of ext (".xml").
func (r *Registry) Register(ext string, l Loader) {
	r.byExt[strings.ToLower(ext)] = l
}

// Supports reports whether name can be loaded.
func (r *Registry) Supports(name string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(name))]
	return ok || r.extractor != nil
}

// Load parses the input called name, identified by its base name.
func (r *Registry) Load(name string, rd io.Reader) ([]Document, error) {
	return r.LoadAs(SourceName(name), name, rd)
}

// LoadAs parses the input called name and tags its documents with source.
func (r *Registry) LoadAs(source, name string, rd io.Reader) ([]Document, error) {
	ext := strings.ToLower(filepath.Ext(name))
	l, ok := r.byExt[ext]
	if !ok {
		if r.extractor == nil {
			return nil, fmt.Errorf("%w: %q", ErrUnsupported, ext)
		}
		l = extractingLoader{extractor: r.extractor}
	}
	docs, err := l.Load(source, rd)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		docs[i].Path = name
	}
	return docs, nil
}

// LoadFile opens name from src and loads it.
func (r *Registry) LoadFile(ctx context.Context, src Source, name string) ([]Document, error) {
	rc, err := src.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()
	return r.LoadAs(SourceOf(src, name), name, rc)
}

// LoadAll loads every supported file of src. Files that fail to load are
// logged and skipped; only a failure to list src is returned.
func (r *Registry) LoadAll(ctx context.Context, src Source) ([]Document, error) {
	names, err := src.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list inputs: %w", err)
	}
	var docs []Document
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return docs, err
		}
		if !r.Supports(name) {
			log.Warnf("[Loader] skipping unsupported file %s", name)
			continue
		}
		loaded, err := r.LoadFile(ctx, src, name)
		if err != nil {
			log.Warnf("[Loader] skipping %s: %v", name, err)
			continue
		}
		docs = append(docs, loaded...)
	}
	return docs, nil
}

// SourceName returns the base name of a file path or object key. It is the
// identifier of inputs whose source does not implement Namer.
func SourceName(name string) string {
	return path.Base(filepath.ToSlash(name))
}

// Namer is implemented by sources that derive the identifier of their
// inputs themselves. Identifiers must be unique within the source.
type Namer interface {
	SourceName(name string) string
}

// SourceOf returns the identifier stored with the documents of name.
func SourceOf(src Source, name string) string {
	if n, ok := src.(Namer); ok {
		return n.SourceName(name)
	}
	return SourceName(name)
}

type extractingLoader struct {
	extractor TextExtractor
}

func (l extractingLoader) Load(source string, r io.Reader) ([]Document, error) {
	text, err := l.extractor.ExtractText(r, source)
	if err != nil {
		return nil, fmt.Errorf("extract text from %s: %w", source, err)
	}
	return textDocuments(source, text), nil
}
