package store

// IndexKey is the reserved tree segment under which every level stores its
// aggregation index. It can never occur as an ordinary path segment;
// ingestion refuses paths that contain it.
const IndexKey = "_json"

// Index aggregates every document ingested at or below one tree level.
// Main holds non-variant documents, Variants groups the rest by variant
// name, both in ingestion order.
type Index struct {
	Main     []*Document
	Variants map[string][]*Document
}

func newIndex() *Index {
	return &Index{
		Main:     []*Document{},
		Variants: map[string][]*Document{},
	}
}

func (ix *Index) add(doc *Document, variant string) {
	if variant == "" {
		ix.Main = append(ix.Main, doc)
		return
	}
	ix.Variants[variant] = append(ix.Variants[variant], doc)
}

// remove drops doc from the list it was inserted into. An emptied variant
// group is deleted entirely so no empty keys linger.
func (ix *Index) remove(doc *Document, variant string) {
	if variant == "" {
		ix.Main = withoutDoc(ix.Main, doc)
		return
	}
	kept := withoutDoc(ix.Variants[variant], doc)
	if len(kept) == 0 {
		delete(ix.Variants, variant)
		return
	}
	ix.Variants[variant] = kept
}

func withoutDoc(docs []*Document, doc *Document) []*Document {
	for i, d := range docs {
		if d == doc {
			return append(docs[:i:i], docs[i+1:]...)
		}
	}
	return docs
}
