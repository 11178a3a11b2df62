package domain

// TitleMatchScore is the score assigned to a document whose title matches
// the query exactly. It deliberately exceeds the normal [0,1] ceiling so
// that title matches always rank ahead of every normally-scored result.
const TitleMatchScore = 1.1

// Document is a single retrieval result: a passage of text, its metadata,
// and a relevance score. Higher scores are more relevant. Scores are not
// bounded to [0,1]; see TitleMatchScore.
type Document struct {
	text     string
	metadata map[string]any
	score    float64
}

// NewDocument creates a retrieval result.
func NewDocument(text string, metadata map[string]any, score float64) Document {
	return Document{text: text, metadata: metadata, score: score}
}

// Text returns the passage text.
func (d Document) Text() string { return d.text }

// Metadata returns the passage metadata.
func (d Document) Metadata() map[string]any { return d.metadata }

// Score returns the relevance score.
func (d Document) Score() float64 { return d.score }

// MetaString returns the metadata value for key as a string,
// or "" when the key is absent or not a string.
func (d Document) MetaString(key string) string {
	if v, ok := d.metadata[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithScore returns a copy of the document carrying a different score.
func (d Document) WithScore(score float64) Document {
	return Document{text: d.text, metadata: d.metadata, score: score}
}
