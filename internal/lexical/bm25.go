// Package lexical implements a request-scoped BM25-style scorer built
// over a candidate chunk set. It is constructed fresh per query by the Fusion
// technique and never shared across concurrent techniques.
package lexical

import (
	"math"
	"strings"

	"github.com/blevesearch/segment"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// Index is an in-memory BM25 scorer over a fixed candidate set.
type Index struct {
	docIDs    []string
	docTerms  [][]string
	termFreq  []map[string]int
	docLen    []int
	avgDocLen float64
	df        map[string]int // document frequency per term
	n         int
}

// Doc is one candidate to be scored, keyed by its chunk id.
type Doc struct {
	ID   string
	Text string
}

// New builds a BM25 index over docs. Construction is O(total tokens) and
// holds no state beyond the candidate set handed to it.
func New(docs []Doc) *Index {
	idx := &Index{
		df: make(map[string]int),
		n:  len(docs),
	}

	totalLen := 0
	for _, d := range docs {
		terms := tokenize(d.Text)
		freq := make(map[string]int, len(terms))
		for _, term := range terms {
			freq[term]++
		}
		for term := range freq {
			idx.df[term]++
		}

		idx.docIDs = append(idx.docIDs, d.ID)
		idx.docTerms = append(idx.docTerms, terms)
		idx.termFreq = append(idx.termFreq, freq)
		idx.docLen = append(idx.docLen, len(terms))
		totalLen += len(terms)
	}

	if idx.n > 0 {
		idx.avgDocLen = float64(totalLen) / float64(idx.n)
	}

	return idx
}

// Score returns the BM25 score of query against every document, keyed by
// document id. Documents that share no terms with the query score 0.
func (idx *Index) Score(query string) map[string]float64 {
	scores := make(map[string]float64, idx.n)
	if idx.n == 0 {
		return scores
	}

	queryTerms := tokenize(query)
	for i, docID := range idx.docIDs {
		scores[docID] = idx.scoreDoc(i, queryTerms)
	}
	return scores
}

func (idx *Index) scoreDoc(docIndex int, queryTerms []string) float64 {
	var score float64
	freq := idx.termFreq[docIndex]
	docLen := float64(idx.docLen[docIndex])

	seen := make(map[string]struct{}, len(queryTerms))
	for _, term := range queryTerms {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}

		f := float64(freq[term])
		if f == 0 {
			continue
		}

		df := idx.df[term]
		idf := math.Log(1 + (float64(idx.n)-float64(df)+0.5)/(float64(df)+0.5))
		norm := f * (bm25K1 + 1) / (f + bm25K1*(1-bm25B+bm25B*docLen/idx.avgDocLen))
		score += idf * norm
	}
	return score
}

// tokenize splits text into lower-cased word tokens using unicode-aware
// word-boundary segmentation, so non-Latin scripts and punctuation are
// handled the same way a real search engine's analyzer would.
func tokenize(text string) []string {
	segmenter := segment.NewWordSegmenterDirect([]byte(text))
	var terms []string
	for segmenter.Segment() {
		if segmenter.Type() != segment.Letter && segmenter.Type() != segment.Number {
			continue
		}
		term := strings.ToLower(string(segmenter.Bytes()))
		if term == "" {
			continue
		}
		terms = append(terms, term)
	}
	return terms
}
