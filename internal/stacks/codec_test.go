package stacks

import (
	"testing"

	"github.com/corestack/agentcore/pkg/models"
)

func TestEncodeDecodeVolumeRoundTrip(t *testing.T) {
	v := &models.Volume{
		ID:        "abc",
		Text:      "hello, world",
		Embedding: []float32{1.5, -2.25, 0},
		Metadata:  map[string]string{"topic": "greeting"},
		Timestamp: 1700000000000,
	}

	blob := encodeVolume(v)
	got, err := decodeVolume(v.ID, blob)
	if err != nil {
		t.Fatalf("decodeVolume() error = %v", err)
	}

	if got.Text != v.Text || got.Timestamp != v.Timestamp || got.Metadata["topic"] != "greeting" {
		t.Fatalf("decoded volume mismatch: %+v", got)
	}
	if len(got.Embedding) != len(v.Embedding) {
		t.Fatalf("decoded embedding length = %d, want %d", len(got.Embedding), len(v.Embedding))
	}
	for i := range v.Embedding {
		if got.Embedding[i] != v.Embedding[i] {
			t.Fatalf("decoded embedding[%d] = %v, want %v", i, got.Embedding[i], v.Embedding[i])
		}
	}
}

func TestDecodeVolumeRejectsTruncatedBlob(t *testing.T) {
	if _, err := decodeVolume("x", []byte{0, 0, 0, 10}); err == nil {
		t.Fatal("expected error decoding truncated blob")
	}
}

func TestDecodeVolumeRejectsEmptyText(t *testing.T) {
	v := &models.Volume{Text: "", Embedding: []float32{1}, Timestamp: 1}
	blob := encodeVolume(v)
	if _, err := decodeVolume("x", blob); err == nil {
		t.Fatal("expected error decoding a volume with empty text")
	}
}

func TestDecodeVolumeRejectsEmptyEmbedding(t *testing.T) {
	v := &models.Volume{Text: "t", Embedding: nil, Timestamp: 1}
	blob := encodeVolume(v)
	if _, err := decodeVolume("x", blob); err == nil {
		t.Fatal("expected error decoding a volume with an empty embedding")
	}
}

func TestDecodeVolumeRejectsInvalidMetadataJSON(t *testing.T) {
	v := &models.Volume{Text: "t", Embedding: []float32{1}, Timestamp: 1}
	blob := encodeVolume(v)

	// Corrupt the metadata length-prefixed field by replacing "{}" bytes
	// with a non-object JSON value of the same length so offsets stay valid.
	idx := -1
	for i := 0; i+1 < len(blob); i++ {
		if blob[i] == '{' && blob[i+1] == '}' {
			idx = i
		}
	}
	if idx < 0 {
		t.Fatal("could not locate metadata field in blob")
	}
	blob[idx] = '['
	blob[idx+1] = ']' // "[]" is valid JSON array, not an object -> Unmarshal into map fails

	if _, err := decodeVolume("x", blob); err == nil {
		t.Fatal("expected error decoding invalid metadata JSON")
	}
}
