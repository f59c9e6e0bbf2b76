package models

// Document is the extracted text of one fetched URL.
type Document struct {
	URL      string
	Title    string
	Content  string
	Metadata map[string]interface{}
}

// Chunk is a bounded slice of a Document's text.
type Chunk struct {
	ID     string
	Source string
	Index  int
	Text   string
}

type Match struct {
	Chunk      Chunk
	Similarity float32
}

// QueryResult is an answer plus the distinct source URLs it drew from.
type QueryResult struct {
	Answer  string
	Sources []string
}
