// Package practice implements the per-sentence practice cycle: generating
// target sentences for a scenario, scoring a learner's spoken attempt
// against its target, and driving one attempt through capture and scoring.
package practice

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// DefaultPassThreshold is the similarity score a transcript must exceed to
// count as a pass.
const DefaultPassThreshold = 0.8

// nearMissThreshold is the Jaro-Winkler similarity above which a failed
// attempt is still flagged as close, so feedback can encourage another try.
const nearMissThreshold = 0.84

// Score returns the similarity of two strings as a ratio in [0, 1]. Both
// inputs are lower-cased first, so case differences never reduce the score.
//
// The measure is the classic sequence-matcher ratio 2*M/T, where M is the
// total length of all matching blocks found by recursively locating the
// longest common substring, and T the combined length of both inputs. It is
// a purely textual proxy for pronunciation accuracy; no phonetic analysis
// is involved.
func Score(a, b string) float64 {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))

	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}

	matched := matchedLen(ra, rb)
	return 2 * float64(matched) / float64(total)
}

// Passes reports whether score clears the pass threshold. The comparison is
// strict: a score exactly at the threshold fails.
func Passes(score, threshold float64) bool {
	return score > threshold
}

// NearMiss reports whether a failed transcript was phonetically close to the
// target, using Jaro-Winkler similarity on the case-folded strings.
func NearMiss(transcript, target string) bool {
	jw := matchr.JaroWinkler(strings.ToLower(transcript), strings.ToLower(target), false)
	return jw >= nearMissThreshold
}

// matchedLen sums the lengths of all matching blocks between a and b: it
// finds the longest common substring, then recurses into the unmatched
// regions on either side of it.
func matchedLen(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	ai, bi, size := longestMatch(a, b)
	if size == 0 {
		return 0
	}
	return size +
		matchedLen(a[:ai], b[:bi]) +
		matchedLen(a[ai+size:], b[bi+size:])
}

// longestMatch finds the longest common substring of a and b, returning its
// start offsets and length. Among equally long matches the earliest in a,
// then in b, wins, which keeps the ratio deterministic.
func longestMatch(a, b []rune) (bestA, bestB, bestSize int) {
	// lengths[j] is the length of the common suffix ending at a[i] and
	// b[j] for the current row i.
	lengths := make([]int, len(b)+1)
	for i := range a {
		prevDiag := 0
		for j := range b {
			prev := lengths[j+1]
			if a[i] == b[j] {
				lengths[j+1] = prevDiag + 1
				if lengths[j+1] > bestSize {
					bestSize = lengths[j+1]
					bestA = i - bestSize + 1
					bestB = j - bestSize + 1
				}
			} else {
				lengths[j+1] = 0
			}
			prevDiag = prev
		}
	}
	return bestA, bestB, bestSize
}
