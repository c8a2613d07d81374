// Package answer produces answer text from retrieved knowledge records.
//
// Synthesis is extractive: a fixed, ordered rule table picks the metadata
// fields of the top record that fit the question's intent. No text is
// generated by a language model.
package answer
