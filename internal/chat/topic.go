package chat

// Topic is one conversation partition. Topics with Retrieval set answer from
// an index; the others go straight to the model.
type Topic struct {
	ID        string
	Label     string
	Retrieval bool
	// Index locates the topic's own index. Empty means the default index.
	Index string
}

// DefaultTopics returns the TET topic backed by the index and a general topic
// without retrieval.
func DefaultTopics() []Topic {
	return []Topic{
		{ID: "tet", Label: "TET", Retrieval: true},
		{ID: "general", Label: "General questions"},
	}
}
