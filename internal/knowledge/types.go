package knowledge

// Dimension is the width of the embedding column in the rag_chunks schema.
// It must match the output dimension of the configured embedding model;
// config.Validate enforces this at startup. Changing it requires a migration.
const Dimension = 1536

// Chunk is a bounded-size unit of seed text stored with its embedding and
// retrieval metadata. Stage is empty for crop-wide material (stored as NULL);
// such chunks are eligible for every stage filter.
type Chunk struct {
	ID         int64     `json:"id"`
	CropID     string    `json:"cropId"`
	Stage      string    `json:"stage,omitempty"`
	Lang       string    `json:"lang"`
	SourcePath string    `json:"sourcePath"`
	Text       string    `json:"chunk"`
	Embedding  []float32 `json:"-"`
}

// RetrievedChunk is a search result: a stored chunk plus its cosine similarity
// to the query embedding. Score is in [-1, 1], higher is more relevant.
type RetrievedChunk struct {
	Chunk
	Score float64 `json:"score"`
}

// SearchQuery describes one similarity search over the chunk store.
type SearchQuery struct {
	Embedding []float32
	CropID    string
	Lang      string
	Stage     string // empty disables the stage filter entirely
	Limit     int
}
