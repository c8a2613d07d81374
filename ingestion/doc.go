// Package ingestion loads JSON documents into the knowledge store.
//
// Every *.json file in a data directory may hold a single object, a list of
// objects or an object whose "data" field is such a list. Each object becomes
// one record: its descriptive fields are flattened into searchable content and
// the whole object is kept as the record's metadata.
package ingestion
