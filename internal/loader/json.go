package loader

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/tidwall/gjson"
)

// Record fields always kept as metadata when present.
var alwaysMetadata = []string{"degreelevel", "program_name"}

// JSONLoader reads program data. An array of {name, url} objects becomes a
// single program_link document with one unit per program. Any other record
// becomes its own program_description document whose units are the
// record's sections, in key order.
type JSONLoader struct {
	// MetadataFields are kept as metadata and left out of the text.
	MetadataFields []string
}

// Load implements Loader.
func (l JSONLoader) Load(source string, r io.Reader) ([]Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: %s is not valid JSON", ErrMalformed, source)
	}

	root := gjson.ParseBytes(data)
	items := []gjson.Result{root}
	if root.IsArray() {
		items = root.Array()
	}
	if len(items) == 0 {
		return nil, nil
	}
	if isLinkListing(items) {
		return []Document{linkDocument(source, items)}, nil
	}

	docs := make([]Document, 0, len(items))
	for _, item := range items {
		if !item.IsObject() {
			continue
		}
		if doc, ok := l.descriptionDocument(source, item); ok {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func isLinkListing(items []gjson.Result) bool {
	for _, item := range items {
		if !item.IsObject() {
			return false
		}
		keys := 0
		ok := true
		item.ForEach(func(key, _ gjson.Result) bool {
			keys++
			ok = key.String() == "name" || key.String() == "url"
			return ok
		})
		if !ok || keys != 2 {
			return false
		}
	}
	return true
}

func linkDocument(source string, items []gjson.Result) Document {
	units := make([]string, 0, len(items))
	for _, item := range items {
		units = append(units, fmt.Sprintf("Program: %s\nURL: %s", item.Get("name").String(), item.Get("url").String()))
	}
	return Document{
		Source:     source,
		Type:       TypeProgramLink,
		Units:      units,
		Separator:  "\n",
		ContentIDs: true,
	}
}

func (l JSONLoader) descriptionDocument(source string, item gjson.Result) (Document, bool) {
	fields := make(map[string]string)
	byKey := item.Map()
	for _, f := range append(slices.Clone(l.MetadataFields), alwaysMetadata...) {
		if _, done := fields[f]; done {
			continue
		}
		if v, ok := byKey[f]; ok {
			fields[f] = v.String()
		}
	}

	var sections []string
	item.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		if _, meta := fields[k]; meta {
			return true
		}
		if value.IsArray() {
			var lines []string
			for _, v := range value.Array() {
				if truthy(v) {
					lines = append(lines, v.String())
				}
			}
			sections = append(sections, k+":\n"+strings.Join(lines, "\n"))
		} else if truthy(value) {
			sections = append(sections, k+": "+value.String())
		}
		return true
	})
	if len(sections) == 0 {
		return Document{}, false
	}

	return Document{
		Source:     source,
		Type:       TypeProgramDescription,
		Units:      sections,
		Separator:  "\n\n",
		Refine:     Sentences,
		ContentIDs: true,
		Fields:     fields,
	}, true
}

// truthy reports whether v carries content: null, false, zero, empty
// strings and empty containers do not.
func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.Number:
		return v.Num != 0
	case gjson.String:
		return v.Str != ""
	case gjson.JSON:
		raw := strings.Join(strings.Fields(v.Raw), "")
		return raw != "{}" && raw != "[]"
	default:
		return true
	}
}
