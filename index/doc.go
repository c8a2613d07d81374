// Package index provides the vector index used for semantic retrieval.
//
// An Index holds one unit-normalized embedding per record and answers
// top-k queries by exact inner product, which equals cosine similarity for
// unit vectors. Contents are replaced as a whole: Build from vectors, Load
// from disk, or Builder.Run to embed every record in a store.
//
// # Persistence
//
// Save writes two files that must stay together:
//
//   - vectors.idx: zstd-compressed header, float32 payload and CRC32
//   - ids.mus: the slot to record id mapping, MUS encoded
//
// The vectors file carries a fingerprint of the id mapping, so Load rejects
// files from different builds with ErrIndexCorrupt. A missing file yields
// ErrIndexNotFound.
package index
