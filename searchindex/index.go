// Package searchindex builds and queries the in-memory typeahead index for
// one regional shard.
//
// The index is built once from the precomputed search strings produced by the
// ingestion pipeline and is immutable afterwards. Every token is indexed with
// prefix semantics so partial input like "123 ma" matches "123 MAIN ST".
package searchindex

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
)

// ErrLengthMismatch is returned when parcel IDs and search strings disagree
// in length.
var ErrLengthMismatch = errors.New("parcel ids and search strings length mismatch")

// Record is one indexed address.
type Record struct {
	ParcelID string
	Address  string
}

// Index is an immutable prefix inverted index over address search strings.
// Safe for concurrent readers; never mutated after Build returns.
type Index struct {
	tokens   []string // sorted, for prefix range scans
	postings map[string]*roaring.Bitmap
	records  []Record
}

// Bundle is the fully built, ready-to-query structure for one shard.
type Bundle struct {
	Index       *Index
	ParcelIDs   []string
	AddressData map[string]string // parcel id -> display string
}

// Build constructs an index from parallel parcel-id and search-string slices.
func Build(parcelIDs, searchStrings []string) (*Index, error) {
	if len(parcelIDs) != len(searchStrings) {
		return nil, fmt.Errorf("%w: %d ids, %d strings", ErrLengthMismatch, len(parcelIDs), len(searchStrings))
	}

	idx := &Index{
		postings: make(map[string]*roaring.Bitmap),
		records:  make([]Record, len(parcelIDs)),
	}

	for i, s := range searchStrings {
		idx.records[i] = Record{ParcelID: parcelIDs[i], Address: s}
		for _, tok := range tokenize(s) {
			bm, ok := idx.postings[tok]
			if !ok {
				bm = roaring.New()
				idx.postings[tok] = bm
			}
			bm.Add(uint32(i))
		}
	}

	idx.tokens = make([]string, 0, len(idx.postings))
	for tok := range idx.postings {
		idx.tokens = append(idx.tokens, tok)
	}
	sort.Strings(idx.tokens)

	return idx, nil
}

// Len returns the number of indexed records.
func (idx *Index) Len() int {
	return len(idx.records)
}

// Search returns up to limit records matching every query token as a prefix,
// in record order. An empty or whitespace-only query matches nothing.
func (idx *Index) Search(query string, limit int) []Record {
	terms := tokenize(query)
	if len(terms) == 0 || limit <= 0 {
		return nil
	}

	var acc *roaring.Bitmap
	for _, term := range terms {
		matches := idx.prefixPostings(term)
		if matches.IsEmpty() {
			return nil
		}
		if acc == nil {
			acc = matches
		} else {
			acc.And(matches)
			if acc.IsEmpty() {
				return nil
			}
		}
	}

	results := make([]Record, 0, limit)
	it := acc.Iterator()
	for it.HasNext() {
		results = append(results, idx.records[it.Next()])
		if len(results) >= limit {
			break
		}
	}
	return results
}

// prefixPostings unions the posting lists of every indexed token that starts
// with term.
func (idx *Index) prefixPostings(term string) *roaring.Bitmap {
	out := roaring.New()

	start := sort.SearchStrings(idx.tokens, term)
	for i := start; i < len(idx.tokens); i++ {
		if !strings.HasPrefix(idx.tokens[i], term) {
			break
		}
		out.Or(idx.postings[idx.tokens[i]])
	}
	return out
}

func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}
