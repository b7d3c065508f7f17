package extract

import (
	"math"

	"github.com/vishalm/serp-forge/internal/serp"
)

// Polarity thresholds; values exactly on a threshold are neutral.
const (
	positiveThreshold = 0.1
	negativeThreshold = -0.1
)

var positiveWords = map[string]float64{
	"good": 0.7, "great": 0.8, "excellent": 1.0, "amazing": 0.9, "awesome": 0.9,
	"best": 1.0, "better": 0.5, "love": 0.8, "loved": 0.8, "like": 0.3,
	"happy": 0.8, "wonderful": 1.0, "fantastic": 0.9, "positive": 0.5, "success": 0.6,
	"successful": 0.7, "win": 0.6, "wins": 0.6, "benefit": 0.5, "benefits": 0.5,
	"improve": 0.4, "improved": 0.4, "improvement": 0.4, "innovative": 0.6, "impressive": 0.8,
	"strong": 0.4, "growth": 0.4, "gain": 0.4, "gains": 0.4, "helpful": 0.6,
	"reliable": 0.5, "easy": 0.4, "effective": 0.5, "efficient": 0.5, "enjoy": 0.6,
	"perfect": 1.0, "beautiful": 0.8, "brilliant": 0.9, "nice": 0.6, "pleased": 0.6,
	"exciting": 0.7, "excited": 0.7, "breakthrough": 0.7, "secure": 0.3, "safe": 0.3,
	"recommend": 0.5, "favorite": 0.6, "valuable": 0.6, "robust": 0.4, "optimistic": 0.6,
}

var negativeWords = map[string]float64{
	"bad": -0.7, "worse": -0.6, "worst": -1.0, "terrible": -1.0, "awful": -1.0,
	"horrible": -1.0, "poor": -0.5, "hate": -0.8, "hated": -0.8, "sad": -0.6,
	"angry": -0.6, "negative": -0.4, "fail": -0.6, "failed": -0.6, "failure": -0.7,
	"loss": -0.5, "losses": -0.5, "lose": -0.5, "problem": -0.4, "problems": -0.4,
	"issue": -0.3, "issues": -0.3, "risk": -0.3, "risky": -0.4, "crisis": -0.7,
	"decline": -0.4, "declined": -0.4, "weak": -0.4, "broken": -0.6, "bug": -0.3,
	"bugs": -0.3, "slow": -0.3, "difficult": -0.4, "dangerous": -0.7, "threat": -0.5,
	"attack": -0.5, "scam": -0.9, "fraud": -0.9, "disappointing": -0.7, "disappointed": -0.7,
	"useless": -0.8, "annoying": -0.6, "wrong": -0.5, "error": -0.4, "errors": -0.4,
	"crash": -0.6, "vulnerable": -0.5, "concern": -0.3, "concerns": -0.3, "pessimistic": -0.6,
}

var negators = map[string]bool{
	"not": true, "no": true, "never": true, "none": true, "nobody": true,
	"nothing": true, "neither": true, "nor": true, "without": true, "hardly": true,
	"isn't": true, "aren't": true, "wasn't": true, "weren't": true, "don't": true,
	"doesn't": true, "didn't": true, "can't": true, "cannot": true, "won't": true,
}

// negationWindow is how many preceding tokens a negator reaches.
const negationWindow = 3

// Polarity scores tokens against the lexicon and returns the mean in [-1, 1].
// A negator within the preceding window flips and halves a word's score.
// Text with no lexicon hits scores 0.
func Polarity(text string) float64 {
	tokens := sentimentTokens(text)
	var (
		sum  float64
		hits int
	)
	lastNegator := -negationWindow - 1
	for i, tok := range tokens {
		if negators[tok] {
			lastNegator = i
			continue
		}
		score, ok := positiveWords[tok]
		if !ok {
			score, ok = negativeWords[tok]
		}
		if !ok {
			continue
		}
		if i-lastNegator <= negationWindow {
			score = -score * 0.5
		}
		sum += score
		hits++
	}
	if hits == 0 {
		return 0
	}
	return math.Max(-1, math.Min(1, sum/float64(hits)))
}

// SentimentLabel maps a polarity to positive, negative or neutral.
func SentimentLabel(polarity float64) string {
	switch {
	case polarity > positiveThreshold:
		return serp.SentimentPositive
	case polarity < negativeThreshold:
		return serp.SentimentNegative
	default:
		return serp.SentimentNeutral
	}
}
