package stacks

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	"github.com/corestack/agentcore/pkg/models"
)

// encodeVolume serializes a volume into the reference wire format: a
// fixed-order sequence of big-endian length-prefixed fields. access_count
// and last_accessed_ms are carried for compatibility with the reference
// layout but are not part of the Volume model; they are written as zero and
// the volume's own timestamp, respectively, and ignored on decode.
func encodeVolume(v *models.Volume) []byte {
	textBytes := []byte(v.Text)
	embBytes := []byte(encodeEmbeddingBase64(v.Embedding))
	metaBytes, err := json.Marshal(orEmptyMap(v.Metadata))
	if err != nil {
		metaBytes = []byte("{}")
	}

	size := 4 + len(textBytes) + 4 + len(embBytes) + 4 + len(metaBytes) + 8 + 4 + 8
	buf := make([]byte, 0, size)

	buf = appendU32Field(buf, textBytes)
	buf = appendU32Field(buf, embBytes)
	buf = appendU32Field(buf, metaBytes)
	buf = appendU64(buf, uint64(v.Timestamp))
	buf = appendU32(buf, 0) // access_count
	buf = appendU64(buf, uint64(v.Timestamp)) // last_accessed_ms

	return buf
}

// decodeVolume parses the reference wire format back into a Volume. Any
// malformed field (truncated length prefix, short read, invalid UTF-8 text,
// invalid embedding encoding, or invalid metadata JSON) is reported as an
// error so the caller can drop the record and mark the store dirty instead
// of failing the whole load.
func decodeVolume(id string, blob []byte) (*models.Volume, error) {
	r := &byteReader{buf: blob}

	textBytes, err := r.readField()
	if err != nil {
		return nil, fmt.Errorf("text field: %w", err)
	}
	if !utf8.Valid(textBytes) {
		return nil, fmt.Errorf("text field: invalid UTF-8")
	}
	if len(textBytes) == 0 {
		return nil, fmt.Errorf("text field: empty text violates the non-empty invariant")
	}

	embBytes, err := r.readField()
	if err != nil {
		return nil, fmt.Errorf("embedding field: %w", err)
	}
	embedding, err := decodeEmbeddingBase64(string(embBytes))
	if err != nil {
		return nil, fmt.Errorf("embedding field: %w", err)
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("embedding field: empty embedding violates the non-empty invariant")
	}

	metaBytes, err := r.readField()
	if err != nil {
		return nil, fmt.Errorf("metadata field: %w", err)
	}
	var metadata map[string]string
	if len(metaBytes) > 0 {
		if err := json.Unmarshal(metaBytes, &metadata); err != nil {
			return nil, fmt.Errorf("metadata field: invalid JSON: %w", err)
		}
	}

	timestamp, err := r.readU64()
	if err != nil {
		return nil, fmt.Errorf("timestamp field: %w", err)
	}
	if _, err := r.readU32(); err != nil { // access_count, unused
		return nil, fmt.Errorf("access_count field: %w", err)
	}
	if _, err := r.readU64(); err != nil { // last_accessed_ms, unused
		return nil, fmt.Errorf("last_accessed_ms field: %w", err)
	}

	return &models.Volume{
		ID:        id,
		Text:      string(textBytes),
		Embedding: embedding,
		Metadata:  metadata,
		Timestamp: int64(timestamp),
	}, nil
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func encodeEmbeddingBase64(embedding []float32) string {
	raw := make([]byte, 4*len(embedding))
	for i, f := range embedding {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(f))
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func decodeEmbeddingBase64(encoded string) ([]float32, error) {
	if encoded == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("embedding byte length %d not a multiple of 4", len(raw))
	}
	embedding := make([]float32, len(raw)/4)
	for i := range embedding {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		embedding[i] = math.Float32frombits(bits)
	}
	return embedding, nil
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU32Field(buf []byte, field []byte) []byte {
	buf = appendU32(buf, uint32(len(field)))
	return append(buf, field...)
}

// byteReader sequentially consumes big-endian length-prefixed fields and
// fixed-width integers from a blob, surfacing truncation as io.ErrUnexpectedEOF.
type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) readU32() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *byteReader) readU64() (uint64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *byteReader) readField() ([]byte, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	if r.pos+int(n) > len(r.buf) {
		return nil, io.ErrUnexpectedEOF
	}
	field := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return field, nil
}
