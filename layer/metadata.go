package layer

// Metadata is the normalized service metadata an adapter fetched for one
// top-level layer.
type Metadata struct {
	Title      string
	Projection int
	Entries    []*MetadataEntry
	// Assets maps a layer id to a downloadable file.
	Assets map[string]Asset
	// Source holds service level source options applied to every leaf.
	Source map[string]any
}

// MetadataEntry is one node of the service's own layer tree.
type MetadataEntry struct {
	ID       string
	Name     string
	MinScale *float64
	MaxScale *float64
	Extent   []float64
	Style    map[string]any
	Children []*MetadataEntry
}

// Asset is a file the metadata exposes for a layer id.
type Asset struct {
	Href string `json:"href"`
	Type string `json:"type,omitempty"`
}

// FindMetadataEntry searches entries depth first and returns the first node
// whose ID matches. Duplicate ids in sibling groups are not disambiguated.
func FindMetadataEntry(entries []*MetadataEntry, id string) *MetadataEntry {
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		if entry.ID == id {
			return entry
		}
		if found := FindMetadataEntry(entry.Children, id); found != nil {
			return found
		}
	}
	return nil
}
