// Package metrics computes the accuracy and speed scores of an evaluation
// run: corpus-level word error rate and per-sample real-time factor.
package metrics

import (
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// WERResult holds detailed word error rate results.
type WERResult struct {
	WER           float64 // Word Error Rate (0.0 = perfect, may exceed 1.0)
	Substitutions int     // Words replaced with different words
	Insertions    int     // Extra words in hypothesis
	Deletions     int     // Words missing from hypothesis
	RefWords      int     // Total words in reference
}

// Edits returns the total edit count.
func (r WERResult) Edits() int {
	return r.Substitutions + r.Insertions + r.Deletions
}

func (r *WERResult) add(o WERResult) {
	r.Substitutions += o.Substitutions
	r.Insertions += o.Insertions
	r.Deletions += o.Deletions
	r.RefWords += o.RefWords
}

func (r *WERResult) finish() {
	if r.RefWords == 0 {
		r.WER = 0
		return
	}
	r.WER = float64(r.Edits()) / float64(r.RefWords)
}

// Pair is one hypothesis scored against its reference.
type Pair struct {
	Hypothesis string
	Reference  string
}

// ComputeWER calculates the word error rate between reference and hypothesis
// text. Words are whitespace-separated tokens compared exactly; apply a
// textnorm normalizer first for case or punctuation insensitive scoring.
// WER = (Substitutions + Insertions + Deletions) / ReferenceWordCount.
func ComputeWER(reference, hypothesis string) WERResult {
	res := align(strings.Fields(reference), strings.Fields(hypothesis))
	res.finish()
	return res
}

// CorpusWER micro-averages WER over pairs: edit counts and reference word
// counts are summed across every pair before dividing, so long references
// weigh more than short ones and over-generation can push WER above 1.0.
func CorpusWER(pairs []Pair) WERResult {
	var total WERResult
	for _, p := range pairs {
		total.add(align(strings.Fields(p.Reference), strings.Fields(p.Hypothesis)))
	}
	total.finish()
	return total
}

var wordOptions = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: levenshtein.IdenticalRunes,
}

// align counts the substitutions, insertions and deletions of a minimum
// word-level edit path. WER is left unset.
func align(refWords, hypWords []string) WERResult {
	n := len(refWords)
	m := len(hypWords)
	if n == 0 {
		return WERResult{Insertions: m}
	}

	ref, hyp := internWords(refWords, hypWords)

	// d[i][j] is the edit distance between ref[:i] and hyp[:j].
	d := levenshtein.MatrixForStrings(ref, hyp, wordOptions)

	// Backtrace to count substitutions, insertions, deletions.
	var subs, ins, dels int
	i, j := n, m
	for i > 0 || j > 0 {
		if i > 0 && j > 0 && ref[i-1] == hyp[j-1] {
			// Match
			i--
			j--
		} else if i > 0 && j > 0 && d[i][j] == d[i-1][j-1]+1 {
			// Substitution
			subs++
			i--
			j--
		} else if i > 0 && d[i][j] == d[i-1][j]+1 {
			// Deletion (ref word missing from hyp)
			dels++
			i--
		} else {
			// Insertion (extra word in hyp)
			ins++
			j--
		}
	}

	return WERResult{
		Substitutions: subs,
		Insertions:    ins,
		Deletions:     dels,
		RefWords:      n,
	}
}

// internWords maps each distinct word to its own rune so word sequences can
// be aligned as rune strings.
func internWords(a, b []string) ([]rune, []rune) {
	ids := make(map[string]rune, len(a)+len(b))
	conv := func(words []string) []rune {
		out := make([]rune, len(words))
		for k, w := range words {
			id, ok := ids[w]
			if !ok {
				id = rune(len(ids) + 1)
				ids[w] = id
			}
			out[k] = id
		}
		return out
	}
	return conv(a), conv(b)
}
