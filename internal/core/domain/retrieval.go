package domain

// NoChunkIndex marks a candidate whose payload carried no chunk number.
const NoChunkIndex = -1

// Query is the original question plus its expansion variants.
// Variants[0] is always the unmodified original text.
type Query struct {
	Original string   `json:"original"`
	Variants []string `json:"variants"`
}

type RetrievedCandidate struct {
	DocumentID     string  `json:"document_id,omitempty"`
	Source         string  `json:"source"`
	ChunkIndex     int     `json:"chunk"`
	Text           string  `json:"text"`
	Rank           int     `json:"rank"`
	RetrievalScore float64 `json:"retrieval_score"`
}

// RankedCandidate carries the cross-encoder relevance score.
type RankedCandidate struct {
	RetrievedCandidate
	Score float64 `json:"score"`
}

// SelectionResult is the single best variant of a request.
type SelectionResult struct {
	VariantIndex int               `json:"variant_index"`
	Query        string            `json:"query"`
	Candidates   []RankedCandidate `json:"candidates"`
	BestScore    float64           `json:"best_score"`
}

// IndexedChunk is one passage written to the vector store by ingestion.
type IndexedChunk struct {
	ID         string
	DocumentID string
	Source     string
	ChunkIndex int
	Text       string
	Vector     []float32
}
