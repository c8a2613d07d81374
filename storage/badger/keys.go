package badger

// Key prefixes for different data types
const (
	recordPrefix = "knorec:"
)

// makeRecordKey generates a key for a record by id.
func makeRecordKey(id string) []byte {
	buf := make([]byte, len(recordPrefix)+len(id))
	offset := copy(buf, recordPrefix)
	copy(buf[offset:], id)
	return buf
}

// recordIDFromKey extracts the record id from a record key.
func recordIDFromKey(key []byte) string {
	return string(key[len(recordPrefix):])
}
