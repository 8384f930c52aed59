package stacks

import (
	"context"
	"testing"
)

func TestTextSearchModes(t *testing.T) {
	s, _ := newTestStacks(t)
	ctx := context.Background()
	s.Add(ctx, "The Quick Brown Fox", []float32{1}, nil)
	s.Add(ctx, "Lazy Dog", []float32{1}, nil)

	substr := s.TextSearch(TextSearchOptions{Query: "quick", Mode: TextSearchSubstring})
	if len(substr) != 1 || substr[0].Volume.Text != "The Quick Brown Fox" {
		t.Fatalf("substring search = %+v", substr)
	}

	exact := s.TextSearch(TextSearchOptions{Query: "Lazy Dog", Mode: TextSearchExact})
	if len(exact) != 1 {
		t.Fatalf("exact search = %+v", exact)
	}

	regex := s.TextSearch(TextSearchOptions{Query: "^The", Mode: TextSearchRegex})
	if len(regex) != 1 || regex[0].Volume.Text != "The Quick Brown Fox" {
		t.Fatalf("regex search = %+v", regex)
	}
}

func TestFilterByMetadata(t *testing.T) {
	s, _ := newTestStacks(t)
	ctx := context.Background()
	s.Add(ctx, "a", []float32{1}, map[string]string{"topic": "go", "lang": "en"})
	s.Add(ctx, "b", []float32{1}, map[string]string{"topic": "rust"})
	s.Add(ctx, "c", []float32{1}, nil)

	got := s.FilterByMetadata([]MetadataFilter{{Key: "topic", Mode: FilterEq, Value: "go"}})
	if len(got) != 1 || got[0].Text != "a" {
		t.Fatalf("FilterByMetadata(eq) = %+v", got)
	}

	notExists := s.FilterByMetadata([]MetadataFilter{{Key: "topic", Mode: FilterNotExists}})
	if len(notExists) != 1 || notExists[0].Text != "c" {
		t.Fatalf("FilterByMetadata(notExists) = %+v", notExists)
	}
}

func TestFilterByDateRange(t *testing.T) {
	s, _ := newTestStacks(t)
	ctx := context.Background()
	id, _ := s.Add(ctx, "a", []float32{1}, nil)
	vol, _ := s.GetByID(id)

	after := vol.Timestamp - 1
	before := vol.Timestamp + 1
	got := s.FilterByDateRange(DateRange{After: &after, Before: &before})
	if len(got) != 1 {
		t.Fatalf("FilterByDateRange = %+v", got)
	}

	tooLate := vol.Timestamp + 1000
	got = s.FilterByDateRange(DateRange{After: &tooLate})
	if len(got) != 0 {
		t.Fatalf("FilterByDateRange with After in the future = %+v", got)
	}
}

func TestAdvancedSearchRankModes(t *testing.T) {
	s, _ := newTestStacks(t)
	ctx := context.Background()
	s.Add(ctx, "exact match text", []float32{1, 0}, map[string]string{"topic": "x"})

	got := s.AdvancedSearch(AdvancedSearchOptions{
		QueryEmbedding: []float32{1, 0},
		Text:           "exact match text",
		RankBy:         RankMultiply,
		MaxResults:     10,
	})
	if len(got) != 1 {
		t.Fatalf("AdvancedSearch = %+v", got)
	}
	if got[0].Scores.Vector == nil || got[0].Scores.Text == nil {
		t.Fatalf("AdvancedSearch should populate both sub-scores: %+v", got[0])
	}
	if got[0].Score != *got[0].Scores.Vector**got[0].Scores.Text {
		t.Fatalf("multiply rank mismatch: %+v", got[0])
	}
}
