package entity

import "encoding/json"

// Dream is a journal record owned by exactly one user.
// Blocks and SimilarArtworks are never nil once loaded through the repo.
type Dream struct {
	ID                        string            `json:"id"`
	User                      string            `json:"user"`
	Title                     *string           `json:"title"`
	DreamText                 string            `json:"dreamText"`
	Date                      int64             `json:"date"` // epoch seconds
	Category                  *string           `json:"category"`
	DreamSummary              *string           `json:"dreamSummary"`
	GlobalFinalInterpretation *string           `json:"globalFinalInterpretation"`
	Blocks                    []json.RawMessage `json:"blocks"`
	SimilarArtworks           []Artwork         `json:"similarArtworks"`
	Context                   *string           `json:"context"`
}

// Artwork is one entry of a dream's similar-works list.
type Artwork struct {
	Title  string `json:"title"`
	Type   string `json:"type,omitempty"`
	Author string `json:"author"`
	Desc   string `json:"desc"`
	Value  string `json:"value"`
}

// MaxArtworks caps SimilarArtworks on write.
const MaxArtworks = 5
