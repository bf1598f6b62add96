package answer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hbollon/go-edlib"
)

// Kind tells which resolution step produced the answer.
type Kind string

const (
	KindGreeting Kind = "greeting"
	KindStatus   Kind = "status"
	KindMatch    Kind = "match"
	KindNoMatch  Kind = "no_match"
)

// Config holds the resolver tuning and canned replies.
type Config struct {
	// Threshold is a distance in [0,1]: a keyword matches when
	// 1 - similarity <= Threshold. 0 requires an exact match.
	Threshold     float64
	Algorithm     string // levenshtein, damerau-levenshtein, osa-damerau-levenshtein, lcs, jaro, jaro-winkler
	GreetingReply string
	StatusReply   string
	NoMatchReply  string
}

// DefaultConfig returns the stock resolver configuration.
func DefaultConfig() Config {
	return Config{
		Threshold:     0.6,
		Algorithm:     "levenshtein",
		GreetingReply: "Hello! How can I help you regarding the projects?",
		StatusReply:   "I am doing great, thank you! I am ready to explain any project here.",
		NoMatchReply:  "Sorry, I didn't quite catch that. Could you rephrase your question about the projects?",
	}
}

// Result is the outcome of resolving one query.
type Result struct {
	Kind    Kind    `json:"kind"`
	Answer  string  `json:"answer"`
	Score   float64 `json:"score,omitempty"`
	Index   int     `json:"index"` // corpus index for KindMatch, -1 otherwise
	Keyword string  `json:"keyword,omitempty"`
}

var algorithms = map[string]edlib.Algorithm{
	"levenshtein":             edlib.Levenshtein,
	"damerau-levenshtein":     edlib.DamerauLevenshtein,
	"osa-damerau-levenshtein": edlib.OSADamerauLevenshtein,
	"lcs":                     edlib.Lcs,
	"jaro":                    edlib.Jaro,
	"jaro-winkler":            edlib.JaroWinkler,
}

type preparedEntry struct {
	keywords [][]string // normalized keyword tokens
}

// Resolver answers queries against a fixed corpus. It is safe for
// concurrent use; nothing is mutated after construction.
type Resolver struct {
	cfg     Config
	algo    edlib.Algorithm
	entries []Entry
	index   []preparedEntry
}

// NewResolver prepares a resolver over entries.
func NewResolver(entries []Entry, cfg Config) (*Resolver, error) {
	def := DefaultConfig()
	if cfg.Algorithm == "" {
		cfg.Algorithm = def.Algorithm
	}
	algo, ok := algorithms[strings.ToLower(cfg.Algorithm)]
	if !ok {
		return nil, fmt.Errorf("unknown fuzzy algorithm %q", cfg.Algorithm)
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("fuzzy threshold %v out of range [0,1]", cfg.Threshold)
	}
	if cfg.GreetingReply == "" {
		cfg.GreetingReply = def.GreetingReply
	}
	if cfg.StatusReply == "" {
		cfg.StatusReply = def.StatusReply
	}
	if cfg.NoMatchReply == "" {
		cfg.NoMatchReply = def.NoMatchReply
	}

	r := &Resolver{
		cfg:     cfg,
		algo:    algo,
		entries: entries,
		index:   make([]preparedEntry, len(entries)),
	}
	for i, e := range entries {
		for _, k := range e.Keywords {
			if toks := tokenize(k); len(toks) > 0 {
				r.index[i].keywords = append(r.index[i].keywords, toks)
			}
		}
	}
	return r, nil
}

// Len returns the number of corpus entries.
func (r *Resolver) Len() int {
	return len(r.entries)
}

// Resolve maps a spoken query to a reply. Small talk is answered before any
// fuzzy search runs.
func (r *Resolver) Resolve(query string) Result {
	tokens := tokenize(query)
	normalized := strings.Join(tokens, " ")

	for _, t := range tokens {
		if t == "hello" || t == "hi" {
			return Result{Kind: KindGreeting, Answer: r.cfg.GreetingReply, Index: -1}
		}
	}
	if strings.Contains(normalized, "how are you") {
		return Result{Kind: KindStatus, Answer: r.cfg.StatusReply, Index: -1}
	}

	best := Result{Kind: KindNoMatch, Answer: r.cfg.NoMatchReply, Index: -1}
	if len(tokens) == 0 {
		return best
	}

	for i, e := range r.index {
		for _, kw := range e.keywords {
			score := r.score(normalized, tokens, kw)
			if 1-score > r.cfg.Threshold {
				continue
			}
			// Strictly greater keeps the earliest entry on ties.
			if best.Kind != KindMatch || score > best.Score {
				best = Result{
					Kind:    KindMatch,
					Answer:  r.entries[i].Answer,
					Score:   score,
					Index:   i,
					Keyword: strings.Join(kw, " "),
				}
			}
		}
	}
	return best
}

// minWordSimilarity is the floor each keyword word must clear against the
// query word it is aligned with. Short filler words ("is", "can") otherwise
// score well against longer keywords.
const minWordSimilarity = 0.5

// score is 1 for a verbatim hit. Otherwise each window of query words as
// wide as the keyword is aligned word by word; a window counts only when
// every word clears minWordSimilarity, and scores the mean similarity
// weighted by keyword word length.
func (r *Resolver) score(normalized string, tokens, keyword []string) float64 {
	if strings.Contains(normalized, strings.Join(keyword, " ")) {
		return 1
	}
	width := len(keyword)
	if width > len(tokens) {
		return 0
	}

	var best float64
	for start := 0; start+width <= len(tokens); start++ {
		if s := r.windowScore(tokens[start:start+width], keyword); s > best {
			best = s
		}
	}
	return best
}

func (r *Resolver) windowScore(window, keyword []string) float64 {
	var sum, total float64
	for i, kw := range keyword {
		sim, err := edlib.StringsSimilarity(kw, window[i], r.algo)
		if err != nil || float64(sim) <= minWordSimilarity {
			return 0
		}
		n := float64(utf8.RuneCountInString(kw))
		sum += float64(sim) * n
		total += n
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

// tokenize lower-cases s and splits it into words, dropping punctuation.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}
