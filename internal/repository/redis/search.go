package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/quarry-search/quarry/internal/domain"
	"github.com/quarry-search/quarry/internal/domain/filter"
	"github.com/quarry-search/quarry/internal/retriever"
)

// Hash field names under which passages are stored. Everything else in
// the hash is passage metadata.
const (
	textField   = "__text"
	vectorField = "vector"
)

// scanLimit bounds full-collection scans.
const scanLimit = 10000

// Search implements retriever.VectorSource via FT.SEARCH KNN. A missing
// index yields an empty candidate list, not an error.
func (s *Store) Search(
	ctx context.Context, collection string, vector []float32, n int, f filter.Expression,
) ([]retriever.Candidate, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if n <= 0 {
		return nil, fmt.Errorf("n must be positive")
	}

	knnPart := fmt.Sprintf("[KNN %d @%s $BLOB]", n, vectorField)
	queryStr := "*=>" + knnPart
	if filterStr := buildFilter(f); filterStr != "" {
		queryStr = fmt.Sprintf("(%s)=>%s", filterStr, knnPart)
	}

	args := []string{
		s.indexName(collection), queryStr,
		"SORTBY", "__" + vectorField + "_score",
		"LIMIT", "0", strconv.Itoa(n),
		"PARAMS", "2", "BLOB", vectorToBytes(vector),
		"DIALECT", "2",
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		if isMissingIndex(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("search knn %s: %w", collection, err)
	}

	return parseCandidates(raw)
}

// GetAll implements retriever.CollectionReader via a filter-only
// FT.SEARCH scan. A missing index means the collection does not exist
// and reports domain.ErrCollectionNotFound.
func (s *Store) GetAll(
	ctx context.Context, collection string, f filter.Expression,
) ([]retriever.Entry, error) {
	queryStr := buildFilter(f)
	if queryStr == "" {
		queryStr = "*"
	}

	args := []string{
		s.indexName(collection), queryStr,
		"LIMIT", "0", strconv.Itoa(scanLimit),
		"DIALECT", "2",
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, scanError(collection, err)
	}

	candidates, err := parseCandidates(raw)
	if err != nil {
		return nil, err
	}
	entries := make([]retriever.Entry, len(candidates))
	for i, c := range candidates {
		entries[i] = retriever.Entry{Text: c.Text, Metadata: c.Metadata}
	}
	return entries, nil
}

// scanError classifies a full-scan failure: a missing index means the
// collection does not exist, anything else is an infrastructure error.
func scanError(collection string, err error) error {
	if isMissingIndex(err) {
		return fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, collection)
	}
	return fmt.Errorf("scan %s: %w", collection, err)
}

// parseCandidates decodes a RESP2 FT.SEARCH reply:
// [total, key1, fields1, key2, fields2, ...].
func parseCandidates(raw []rueidis.RedisMessage) ([]retriever.Candidate, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	candidates := make([]retriever.Candidate, 0, total)
	for i := 1; i+1 < len(raw); i += 2 {
		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		var c retriever.Candidate
		c.Metadata = make(map[string]any)
		for j := 0; j+1 < len(fields); j += 2 {
			name, err := fields[j].ToString()
			if err != nil {
				continue
			}
			value, err := fields[j+1].ToString()
			if err != nil {
				continue
			}
			switch name {
			case textField:
				c.Text = value
			case vectorField:
				// raw embedding blob, not metadata
			case "__" + vectorField + "_score":
				if d, err := strconv.ParseFloat(value, 64); err == nil {
					c.Distance = d
				}
			default:
				c.Metadata[name] = parseMetaValue(value)
			}
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// parseMetaValue restores numeric metadata stored as hash strings.
func parseMetaValue(value string) any {
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return rueidis.BinaryString(buf)
}
