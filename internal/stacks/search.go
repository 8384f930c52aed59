package stacks

import (
	"regexp"
	"sort"
	"strings"

	"github.com/corestack/agentcore/internal/kernel"
	"github.com/corestack/agentcore/pkg/models"
)

// TextSearchMode selects the lexical matching strategy for TextSearch.
type TextSearchMode string

const (
	TextSearchFuzzy     TextSearchMode = "fuzzy"
	TextSearchSubstring TextSearchMode = "substring"
	TextSearchExact     TextSearchMode = "exact"
	TextSearchRegex     TextSearchMode = "regex"
	TextSearchToken     TextSearchMode = "token"
)

// TextSearchOptions configures TextSearch.
type TextSearchOptions struct {
	Query      string
	Mode       TextSearchMode // defaults to TextSearchFuzzy
	Threshold  float32        // defaults to 0
	MaxResults int            // 0 means unlimited
}

// TextSearch scores every volume's text against Query using Mode, drops
// results below Threshold, and returns them sorted by descending score.
func (s *Stacks) TextSearch(opts TextSearchOptions) []models.Lookup {
	if opts.Query == "" {
		return []models.Lookup{}
	}
	mode := opts.Mode
	if mode == "" {
		mode = TextSearchFuzzy
	}

	scorer, err := textScorer(mode, opts.Query)
	if err != nil {
		return []models.Lookup{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]models.Lookup, 0, len(s.order))
	for _, id := range s.order {
		vol := s.volumes[id]
		score := scorer(vol.Text)
		if score < opts.Threshold {
			continue
		}
		results = append(results, models.Lookup{Volume: vol.Clone(), Score: score})
	}

	sortLookupsDesc(results)
	return truncateLookups(results, opts.MaxResults)
}

// textScorer returns a function computing a single text's score against
// query under the given mode.
func textScorer(mode TextSearchMode, query string) (func(text string) float32, error) {
	switch mode {
	case TextSearchFuzzy:
		return func(text string) float32 { return float32(kernel.Fuzzy(query, text)) }, nil
	case TextSearchSubstring:
		lowerQuery := strings.ToLower(query)
		return func(text string) float32 {
			if strings.Contains(strings.ToLower(text), lowerQuery) {
				return 1
			}
			return 0
		}, nil
	case TextSearchExact:
		return func(text string) float32 {
			if text == query {
				return 1
			}
			return 0
		}, nil
	case TextSearchToken:
		return func(text string) float32 { return float32(kernel.TokenOverlap(query, text)) }, nil
	case TextSearchRegex:
		re, err := regexp.Compile(query)
		if err != nil {
			return nil, err
		}
		return func(text string) float32 {
			if re.MatchString(text) {
				return 1
			}
			return 0
		}, nil
	default:
		return func(text string) float32 { return float32(kernel.Fuzzy(query, text)) }, nil
	}
}

// MetadataFilterMode selects how a MetadataFilter compares a volume's
// metadata value.
type MetadataFilterMode string

const (
	FilterEq         MetadataFilterMode = "eq"
	FilterNeq        MetadataFilterMode = "neq"
	FilterContains   MetadataFilterMode = "contains"
	FilterStartsWith MetadataFilterMode = "startsWith"
	FilterEndsWith   MetadataFilterMode = "endsWith"
	FilterRegex      MetadataFilterMode = "regex"
	FilterExists     MetadataFilterMode = "exists"
	FilterNotExists  MetadataFilterMode = "notExists"
)

// MetadataFilter is one predicate in a FilterByMetadata call; all filters
// passed together are ANDed.
type MetadataFilter struct {
	Key   string
	Mode  MetadataFilterMode
	Value string
}

func (f MetadataFilter) matches(metadata map[string]string) bool {
	value, ok := metadata[f.Key]
	switch f.Mode {
	case FilterExists:
		return ok
	case FilterNotExists:
		return !ok
	case FilterEq:
		return ok && value == f.Value
	case FilterNeq:
		return !ok || value != f.Value
	case FilterContains:
		return ok && strings.Contains(strings.ToLower(value), strings.ToLower(f.Value))
	case FilterStartsWith:
		return ok && strings.HasPrefix(strings.ToLower(value), strings.ToLower(f.Value))
	case FilterEndsWith:
		return ok && strings.HasSuffix(strings.ToLower(value), strings.ToLower(f.Value))
	case FilterRegex:
		if !ok {
			return false
		}
		re, err := regexp.Compile(f.Value)
		if err != nil {
			return false
		}
		return re.MatchString(value)
	default:
		return false
	}
}

// FilterByMetadata returns every volume whose metadata satisfies the AND of
// all given filters.
func (s *Stacks) FilterByMetadata(filters []MetadataFilter) []*models.Volume {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Volume, 0)
	for _, id := range s.order {
		vol := s.volumes[id]
		if matchesAllFilters(vol.Metadata, filters) {
			out = append(out, vol.Clone())
		}
	}
	return out
}

func matchesAllFilters(metadata map[string]string, filters []MetadataFilter) bool {
	for _, f := range filters {
		if !f.matches(metadata) {
			return false
		}
	}
	return true
}

// DateRange bounds a FilterByDateRange query; either bound may be nil.
type DateRange struct {
	After  *int64
	Before *int64
}

// FilterByDateRange returns every volume whose timestamp falls within the
// given (inclusive) bounds.
func (s *Stacks) FilterByDateRange(r DateRange) []*models.Volume {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Volume, 0)
	for _, id := range s.order {
		vol := s.volumes[id]
		if r.After != nil && vol.Timestamp < *r.After {
			continue
		}
		if r.Before != nil && vol.Timestamp > *r.Before {
			continue
		}
		out = append(out, vol.Clone())
	}
	return out
}

// RankMode selects how AdvancedSearch combines vector and text sub-scores
// into a composite score.
type RankMode string

const (
	RankVector   RankMode = "vector"
	RankText     RankMode = "text"
	RankMultiply RankMode = "multiply"
	RankMax      RankMode = "max" // default
)

// AdvancedSearchOptions configures AdvancedSearch. QueryEmbedding and Text
// are both optional; at least one should be set for a meaningful score, but
// the metadata/date filters alone can also be used to simply enumerate a
// candidate set (in which case every candidate scores 0).
type AdvancedSearchOptions struct {
	QueryEmbedding []float32
	Text           string
	Metadata       []MetadataFilter
	DateRange      *DateRange
	RankBy         RankMode // defaults to RankMax
	MaxResults     int
}

// AdvancedSearch applies the metadata and date filters to build a candidate
// set, scores each candidate against QueryEmbedding and/or Text, and
// combines the two scores per RankBy.
func (s *Stacks) AdvancedSearch(opts AdvancedSearchOptions) []models.AdvancedLookup {
	rankBy := opts.RankBy
	if rankBy == "" {
		rankBy = RankMax
	}

	var textScore func(string) float32
	if opts.Text != "" {
		scorer, err := textScorer(TextSearchFuzzy, opts.Text)
		if err == nil {
			textScore = scorer
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]models.AdvancedLookup, 0, len(s.order))
	for _, id := range s.order {
		vol := s.volumes[id]

		if len(opts.Metadata) > 0 && !matchesAllFilters(vol.Metadata, opts.Metadata) {
			continue
		}
		if opts.DateRange != nil {
			if opts.DateRange.After != nil && vol.Timestamp < *opts.DateRange.After {
				continue
			}
			if opts.DateRange.Before != nil && vol.Timestamp > *opts.DateRange.Before {
				continue
			}
		}

		var scores models.SubScores
		var vecScore, txtScore float32
		haveVec, haveTxt := false, false

		if len(opts.QueryEmbedding) > 0 && len(vol.Embedding) == len(opts.QueryEmbedding) {
			vecScore = kernel.Cosine(opts.QueryEmbedding, vol.Embedding)
			scores.Vector = &vecScore
			haveVec = true
		}
		if textScore != nil {
			txtScore = textScore(vol.Text)
			scores.Text = &txtScore
			haveTxt = true
		}

		composite := combineScores(rankBy, vecScore, txtScore, haveVec, haveTxt)
		results = append(results, models.AdvancedLookup{Volume: vol.Clone(), Score: composite, Scores: scores})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if opts.MaxResults > 0 && len(results) > opts.MaxResults {
		results = results[:opts.MaxResults]
	}
	return results
}

func combineScores(rankBy RankMode, vec, txt float32, haveVec, haveTxt bool) float32 {
	switch rankBy {
	case RankVector:
		if haveVec {
			return vec
		}
		return 0
	case RankText:
		if haveTxt {
			return txt
		}
		return 0
	case RankMultiply:
		if haveVec && haveTxt {
			return vec * txt
		}
		if haveVec {
			return vec
		}
		if haveTxt {
			return txt
		}
		return 0
	default: // RankMax
		if haveVec && haveTxt {
			if vec > txt {
				return vec
			}
			return txt
		}
		if haveVec {
			return vec
		}
		if haveTxt {
			return txt
		}
		return 0
	}
}
