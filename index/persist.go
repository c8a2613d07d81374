package index

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/askit/core"
)

const (
	// VectorsFile holds the compressed vector payload.
	VectorsFile = "vectors.idx"
	// IDsFile holds the slot to record id mapping.
	IDsFile = "ids.mus"

	formatVersion uint16 = 1
	// magic(4) + version(2) + dim(4) + count(4) + fingerprint(8)
	headerSize  = 22
	trailerSize = 4
)

var magic = [4]byte{'A', 'K', 'I', 'X'}

// Save writes the vectors and the id mapping to dir as a pair of files.
// Each file is written to a temporary name first and renamed into place.
func (x *Index) Save(dir string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if !x.ready {
		return ErrIndexNotReady
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	idsData := encodeIDs(x.ids)
	payload := encodeVectors(x.vectors, x.dim, core.Fingerprint(idsData))

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return err
	}
	compressed := enc.EncodeAll(payload, nil)
	if err := enc.Close(); err != nil {
		return err
	}

	if err := writeFileAtomic(filepath.Join(dir, IDsFile), idsData); err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(dir, VectorsFile), compressed); err != nil {
		return err
	}

	x.logger.Info("index saved", "dir", dir, "vectors", len(x.vectors), "bytes", len(compressed)+len(idsData))
	return nil
}

// Load replaces the index contents with the pair saved in dir. When either
// file is missing it returns ErrIndexNotFound and the index is unchanged.
func (x *Index) Load(dir string) error {
	idsData, err := os.ReadFile(filepath.Join(dir, IDsFile))
	if err != nil {
		return missing(err)
	}
	compressed, err := os.ReadFile(filepath.Join(dir, VectorsFile))
	if err != nil {
		return missing(err)
	}

	ids, err := decodeIDs(idsData)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrIndexCorrupt, IDsFile, err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return err
	}
	defer dec.Close()
	payload, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrIndexCorrupt, VectorsFile, err)
	}

	vectors, dim, err := decodeVectors(payload, core.Fingerprint(idsData), len(ids))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrIndexCorrupt, VectorsFile, err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.ids = ids
	x.vectors = vectors
	x.dim = dim
	x.ready = true
	x.logger.Info("index loaded", "dir", dir, "vectors", len(vectors), "dimension", dim)
	return nil
}

// Exists reports whether both index files are present in dir.
func Exists(dir string) bool {
	for _, name := range []string{IDsFile, VectorsFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

func missing(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", ErrIndexNotFound, err)
	}
	return err
}

// encodeIDs writes the id count followed by each id as a MUS string.
func encodeIDs(ids []string) []byte {
	size := varint.Uint64.Size(uint64(len(ids)))
	for _, id := range ids {
		size += ord.String.Size(id)
	}
	buf := make([]byte, size)
	n := varint.Uint64.Marshal(uint64(len(ids)), buf)
	for _, id := range ids {
		n += ord.String.Marshal(id, buf[n:])
	}
	return buf
}

func decodeIDs(data []byte) ([]string, error) {
	count, n, err := varint.Uint64.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	// Every id takes at least one byte
	if count > uint64(len(data)-n) {
		return nil, fmt.Errorf("id count %d exceeds data size", count)
	}
	ids := make([]string, count)
	for i := range ids {
		id, read, err := ord.String.Unmarshal(data[n:])
		if err != nil {
			return nil, fmt.Errorf("id %d: %w", i, err)
		}
		ids[i] = id
		n += read
	}
	if n != len(data) {
		return nil, fmt.Errorf("%d trailing bytes", len(data)-n)
	}
	return ids, nil
}

// encodeVectors lays out header, little-endian float32 payload and a CRC32
// of everything before the trailer.
func encodeVectors(vectors [][]float32, dim int, fingerprint uint64) []byte {
	buf := make([]byte, headerSize+len(vectors)*dim*4+trailerSize)
	copy(buf, magic[:])
	binary.LittleEndian.PutUint16(buf[4:], formatVersion)
	binary.LittleEndian.PutUint32(buf[6:], uint32(dim))
	binary.LittleEndian.PutUint32(buf[10:], uint32(len(vectors)))
	binary.LittleEndian.PutUint64(buf[14:], fingerprint)

	offset := headerSize
	for _, v := range vectors {
		for _, f := range v {
			binary.LittleEndian.PutUint32(buf[offset:], math.Float32bits(f))
			offset += 4
		}
	}
	binary.LittleEndian.PutUint32(buf[offset:], crc32.ChecksumIEEE(buf[:offset]))
	return buf
}

// decodeVectors checks a vectors.idx payload against the id mapping it pairs
// with before allocating anything.
func decodeVectors(buf []byte, fingerprint uint64, expected int) ([][]float32, int, error) {
	if len(buf) < headerSize+trailerSize {
		return nil, 0, errors.New("file too short")
	}
	if [4]byte(buf[:4]) != magic {
		return nil, 0, errors.New("bad magic")
	}
	if version := binary.LittleEndian.Uint16(buf[4:]); version != formatVersion {
		return nil, 0, fmt.Errorf("unsupported version %d", version)
	}

	body := len(buf) - trailerSize
	if crc32.ChecksumIEEE(buf[:body]) != binary.LittleEndian.Uint32(buf[body:]) {
		return nil, 0, errors.New("checksum mismatch")
	}
	if binary.LittleEndian.Uint64(buf[14:]) != fingerprint {
		return nil, 0, errors.New("id mapping fingerprint mismatch")
	}

	dim := int(binary.LittleEndian.Uint32(buf[6:]))
	count := int(binary.LittleEndian.Uint32(buf[10:]))
	if count != expected {
		return nil, 0, fmt.Errorf("%d vectors for %d ids", count, expected)
	}
	if dim == 0 && count > 0 {
		return nil, 0, errors.New("zero dimension")
	}
	if uint64(count)*uint64(dim)*4 != uint64(body-headerSize) {
		return nil, 0, fmt.Errorf("payload size does not match %d x %d", count, dim)
	}

	vectors := make([][]float32, count)
	offset := headerSize
	for i := range vectors {
		v := make([]float32, dim)
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[offset:]))
			offset += 4
		}
		vectors[i] = v
	}
	return vectors, dim, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
