// Package classifier implements the offline intent classifier.
// It scores a normalized utterance against weighted regex patterns per
// intent (~1ms), extracts entities for the winning intent's slots, and
// always returns a usable resolution; the resolver decides whether the
// confidence is good enough.
package classifier

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/normanking/jarvis/pkg/types"
)

const (
	// MissingSlotPenalty is applied when the predicted intent needs a slot
	// no extracted entity can fill. The result stays usable; it just ranks
	// lower in the fallback chain.
	MissingSlotPenalty = 0.5

	// noMatchConfidence is returned when no pattern matches at all.
	noMatchConfidence = 0.0
)

// Classifier maps an utterance to an intent, an action, and slot parameters
// using a trained pattern set. Deterministic given its pattern state.
type Classifier struct {
	patterns map[string][]*compiledPattern
	entities *entityExtractor
}

// compiledPattern holds a pre-compiled regex with its weight.
// Higher weight = stronger signal.
type compiledPattern struct {
	regex  *regexp.Regexp
	weight float64
}

// New creates a classifier with the built-in pattern set.
// Returns an error only if the pattern set is empty or fails to compile —
// that is a fatal startup condition, not a per-utterance one.
func New() (*Classifier, error) {
	patterns := buildPatterns()
	if len(patterns) == 0 {
		return nil, fmt.Errorf("classifier pattern set is empty")
	}
	return &Classifier{
		patterns: patterns,
		entities: newEntityExtractor(),
	}, nil
}

// Classify analyzes an utterance and returns the best local resolution.
// Never fails for malformed input; the floor is intent=unknown, confidence 0.
func (c *Classifier) Classify(text string) types.Resolution {
	start := time.Now()
	normalized := types.NormalizeUtterance(text)

	intent, confidence := c.scoreIntents(normalized)

	res := types.Resolution{
		Intent:     intent,
		Confidence: confidence,
		Source:     types.SourceLocal,
		ResolvedAt: time.Now(),
	}

	if intent == types.IntentUnknown {
		res.Confidence = noMatchConfidence
		res.Duration = time.Since(start)
		return res
	}

	entities := c.entities.extract(normalized)
	action, params, slotsOK := assembleAction(intent, text, entities)
	res.Action = action
	res.Parameters = params
	if !slotsOK {
		// Required slot unfilled: degrade rather than fail.
		res.Confidence = types.ClampConfidence(res.Confidence * MissingSlotPenalty)
	}

	res.Duration = time.Since(start)
	return res
}

// scoreIntents computes weighted scores per intent and derives a confidence
// from how decisively the best intent won.
func (c *Classifier) scoreIntents(normalized string) (string, float64) {
	scores := make(map[string]float64)
	matchCounts := make(map[string]int)

	for intent, patterns := range c.patterns {
		for _, p := range patterns {
			if p.regex.MatchString(normalized) {
				scores[intent] += p.weight
				matchCounts[intent]++
			}
		}
	}

	best := types.IntentUnknown
	var bestScore, totalScore float64
	for intent, score := range scores {
		totalScore += score
		if score > bestScore {
			bestScore = score
			best = intent
		}
	}

	if totalScore == 0 {
		return types.IntentUnknown, noMatchConfidence
	}

	confidence := bestScore / totalScore

	// A single matching intent is a much stronger signal than a plurality.
	if len(scores) == 1 {
		confidence = min(confidence+0.25, 1.0)
	}
	if matchCounts[best] >= 2 {
		confidence = min(confidence+0.1, 1.0)
	}

	// Close competition between two intents reduces certainty.
	if len(scores) > 1 {
		second := secondBest(scores, best)
		if second > 0 && (bestScore-second)/bestScore < 0.3 {
			confidence *= 0.8
		}
	}

	return best, types.ClampConfidence(confidence)
}

// secondBest returns the second highest score.
func secondBest(scores map[string]float64, best string) float64 {
	var second float64
	for intent, score := range scores {
		if intent != best && score > second {
			second = score
		}
	}
	return second
}

// assembleAction maps (intent, entities) to a concrete action and its
// parameters. The bool reports whether every required slot was filled.
func assembleAction(intent, rawText string, entities extractedEntities) (string, map[string]string, bool) {
	switch intent {
	case types.IntentAppLaunch:
		if entities.App != "" {
			return "open_app", map[string]string{"app": entities.App}, true
		}
		return "open_app", nil, false

	case types.IntentVolumeControl:
		if entities.Direction != "" {
			return "volume_" + entities.Direction, map[string]string{"direction": entities.Direction}, true
		}
		return "volume_up", nil, false

	case types.IntentBrightnessCtl:
		if entities.Direction == "up" || entities.Direction == "down" {
			return "brightness_" + entities.Direction, map[string]string{"direction": entities.Direction}, true
		}
		return "brightness_up", nil, false

	case types.IntentSystemTime:
		return "tell_time", nil, true
	case types.IntentSystemDate:
		return "tell_date", nil, true
	case types.IntentLockScreen:
		return "lock_screen", nil, true
	case types.IntentSystemSleep:
		return "system_sleep", nil, true
	case types.IntentSystemShutdown:
		return "system_shutdown", nil, true
	case types.IntentHelp:
		return "show_help", nil, true
	case types.IntentExit:
		return "exit_assistant", nil, true

	case types.IntentGeneralKnowledge:
		return "answer_question", map[string]string{"query": strings.TrimSpace(rawText)}, true
	}

	return "", nil, false
}

// min returns the smaller of two float64 values.
func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
