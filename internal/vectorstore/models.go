package vectorstore

// Document represents a pre-embedded document stored in the vector store.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// Content is the text content of the document.
	Content string

	// Vector is the pre-computed embedding. Required for AddDocuments.
	Vector []float32

	// Metadata contains additional key-value pairs for filtering and
	// reconstruction. Common fields: type, conversation_id, seed, timestamp.
	Metadata map[string]string
}

// SearchResult represents a search hit from the vector store.
type SearchResult struct {
	Document

	// Score is the cosine similarity to the query vector (higher = more similar).
	Score float32
}
