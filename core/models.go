package core

import (
	"encoding/binary"
	"fmt"

	"github.com/go-crypt/x/blake2b"
)

// ForcedScore marks a candidate that was inserted by a non-vector signal
// (conversation context or an exact name mention). It is above any cosine
// similarity so forced candidates always rank first.
const ForcedScore float32 = 2.0

// IDFromContent generates a deterministic record id from text content using BLAKE2b hashing.
// Identical content produces identical ids.
func IDFromContent(text string) string {
	return fmt.Sprintf("%016x", Fingerprint([]byte(text)))
}

// Fingerprint returns a 64-bit BLAKE2b digest of data.
func Fingerprint(data []byte) uint64 {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write(data)
	return binary.LittleEndian.Uint64(h.Sum(nil))
}

// Record is a single entry of the knowledge base.
// Metadata holds the source document as raw JSON object text.
type Record struct {
	Id       string
	Content  string // Flattened searchable text
	Metadata string
}

// ParsedMetadata decodes the record's metadata. Records whose metadata cannot
// be decoded yield an empty Metadata along with the decode error.
func (r *Record) ParsedMetadata() (Metadata, error) {
	return ParseMetadata(r.Metadata)
}

// KnownName associates a display name with the record it came from.
type KnownName struct {
	Name     string
	RecordId string
}

// EntityContext is the most recently resolved entity of a conversation.
type EntityContext struct {
	Id   string
	Name string
}

// IsEmpty reports whether no entity has been resolved yet.
func (e EntityContext) IsEmpty() bool {
	return e.Id == ""
}

// SimilarityMatch is a single hit from the vector index.
type SimilarityMatch struct {
	RecordId string
	Score    float32
}

// CandidateResult is a retrieved record with its relevance score.
// Score is a cosine similarity in [-1, 1] or ForcedScore.
type CandidateResult struct {
	Id       string
	Content  string
	Score    float32
	Metadata Metadata
}

// Forced reports whether the candidate was inserted by context or name matching.
func (c *CandidateResult) Forced() bool {
	return c.Score == ForcedScore
}

// Source is a supporting candidate returned next to an answer.
type Source struct {
	Id       string
	Score    float32
	Metadata Metadata
}

// Answer is the synthesized response to a question.
type Answer struct {
	Text    string
	Sources []Source
}
