// Package lexical scores query/document relevance by term overlap alone,
// with no index behind it. It is the fallback strategy when vector search
// is unavailable and the only strategy for collections without embeddings.
package lexical

import (
	"strings"
	"unicode"
)

// Calibration constants. Empirically tuned; the shape of the formula
// (bounded contributions, monotone in overlap) matters more than the
// exact numbers.
const (
	phraseWeight    = 3.0
	keywordWeight   = 3.0
	termWeight      = 1.5
	densityCap      = 0.3
	densityScale    = 2.0
	baseShare       = 0.5
	weightShare     = 0.4
	densityShare    = 0.1
	substringBonus  = 0.5
	maxPhraseLength = 3
)

// defaultKeywords are terms weighted above ordinary tokens. They reflect
// the documentation corpus this scorer was tuned on.
var defaultKeywords = []string{
	"建设", "目标", "系统", "平台", "架构", "数据", "服务", "管理",
	"architecture", "system", "platform", "service",
}

// Scorer computes a bounded [0,1] similarity between a query and a
// document without consulting any index.
type Scorer struct {
	keywords map[string]struct{}
}

// NewScorer creates a scorer. Extra keywords extend the built-in
// high-weight term set.
func NewScorer(extraKeywords ...string) *Scorer {
	kw := make(map[string]struct{}, len(defaultKeywords)+len(extraKeywords))
	for _, k := range defaultKeywords {
		addKeyword(kw, k)
	}
	for _, k := range extraKeywords {
		addKeyword(kw, k)
	}
	return &Scorer{keywords: kw}
}

// addKeyword stores a keyword in tokenizer units: CJK keywords are broken
// into single characters so they line up with per-character tokens.
func addKeyword(kw map[string]struct{}, k string) {
	k = strings.ToLower(k)
	kw[k] = struct{}{}
	for _, r := range k {
		if unicode.Is(unicode.Han, r) {
			kw[string(r)] = struct{}{}
		}
	}
}

// Score returns the lexical similarity of doc to query, in [0,1].
// Either side tokenizing to nothing scores 0.
func (s *Scorer) Score(query, doc string) float64 {
	queryTokens := Tokenize(query)
	docTokens := Tokenize(doc)
	if len(queryTokens) == 0 || len(docTokens) == 0 {
		return 0
	}

	docLower := strings.ToLower(doc)

	docSet := make(map[string]struct{}, len(docTokens))
	for _, tok := range docTokens {
		docSet[tok] = struct{}{}
	}

	var matches float64
	var weighted float64

	// Contiguous query n-grams found verbatim in the document text.
	for n := 2; n <= maxPhraseLength && n <= len(queryTokens); n++ {
		for i := 0; i+n <= len(queryTokens); i++ {
			phrase := strings.Join(queryTokens[i:i+n], "")
			if strings.Contains(docLower, phrase) {
				weighted += float64(n) * phraseWeight
			}
		}
	}

	// Individual term overlap.
	for _, tok := range queryTokens {
		if _, ok := docSet[tok]; !ok {
			continue
		}
		matches++
		if _, ok := s.keywords[tok]; ok {
			weighted += keywordWeight
		} else {
			weighted += termWeight
		}
	}

	density := matches / float64(len(docTokens))
	densityPart := density * densityScale
	if densityPart > densityCap {
		densityPart = densityCap
	}

	base := matches / float64(len(queryTokens))
	weightFactor := weighted / (float64(len(queryTokens)) * keywordWeight)

	score := baseShare*base + weightShare*weightFactor + densityShare*densityPart

	if strings.Contains(docLower, strings.ToLower(query)) {
		score += substringBonus
	}

	if score > 1 {
		return 1
	}
	if score < 0 {
		return 0
	}
	return score
}

// Tokenize splits text into match units. CJK characters become
// single-character tokens so no word segmenter is needed; the rest is
// lower-cased, stripped of punctuation, and split on whitespace. CJK
// tokens precede word tokens in the returned slice.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}

	var cjk []string
	var rest strings.Builder
	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			cjk = append(cjk, string(r))
			rest.WriteByte(' ')
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			rest.WriteRune(unicode.ToLower(r))
		} else {
			rest.WriteByte(' ')
		}
	}

	words := strings.Fields(rest.String())
	if len(cjk) == 0 {
		return words
	}
	return append(cjk, words...)
}
