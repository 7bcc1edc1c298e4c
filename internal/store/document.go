package store

import (
	"path"
	"strings"
)

// variantSeparator splits a file's base name into <base>--<variant>.
const variantSeparator = "--"

// Document is the ingested content of one file. Data holds the parsed JSON
// value when the body parsed, otherwise the raw text. The resolver mutates
// Data in place when it mounts includes.
type Document struct {
	// FilePath is the relative path of the originating file within the data
	// directory. It is set on ingestion and never changes.
	FilePath string

	Raw  []byte
	Data any
}

// Map returns the document body as an object, or nil when the body is not
// object-shaped (raw text, arrays, scalars).
func (d *Document) Map() map[string]any {
	m, _ := d.Data.(map[string]any)
	return m
}

// Variant derives the variant name from the document's file name.
// "41234--card.json" yields "card"; a name without the separator yields ""
// and the document is the main representative for its base name.
func (d *Document) Variant() string {
	return variantOf(path.Base(d.FilePath))
}

func variantOf(filename string) string {
	base := strings.TrimSuffix(filename, path.Ext(filename))
	i := strings.LastIndex(base, variantSeparator)
	if i < 0 {
		return ""
	}
	return base[i+len(variantSeparator):]
}
