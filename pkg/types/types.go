// Package types defines shared types used across all Jarvis modules.
package types

import (
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════════
// UTTERANCE
// ═══════════════════════════════════════════════════════════════════════════════

// Utterance is one unit of recognized spoken text submitted for resolution.
// It is immutable: created by the speech layer, consumed by the resolver,
// discarded afterwards.
type Utterance struct {
	// Text is the raw recognized text. Possibly noisy, never empty.
	Text string `json:"text"`

	// SessionID identifies the voice session that produced this utterance.
	SessionID string `json:"session_id"`

	// ReceivedAt is when the utterance arrived from the speech layer.
	ReceivedAt time.Time `json:"received_at"`
}

// ═══════════════════════════════════════════════════════════════════════════════
// RESOLUTION
// ═══════════════════════════════════════════════════════════════════════════════

// Source identifies which resolution strategy produced a result.
type Source string

const (
	// SourceRemote means the cloud language model resolved the utterance.
	SourceRemote Source = "remote"
	// SourceLocal means the offline statistical classifier resolved it.
	SourceLocal Source = "local"
	// SourceLearned means a previously confirmed mapping was reused.
	SourceLearned Source = "learned"
	// SourceKeyword means the static keyword table matched.
	SourceKeyword Source = "keyword"
	// SourceUnresolved means every strategy was exhausted.
	SourceUnresolved Source = "unresolved"
)

// AllSources returns every valid source for validation.
func AllSources() []Source {
	return []Source{SourceRemote, SourceLocal, SourceLearned, SourceKeyword, SourceUnresolved}
}

// IsValid checks whether s is a known source.
func (s Source) IsValid() bool {
	for _, valid := range AllSources() {
		if s == valid {
			return true
		}
	}
	return false
}

// String returns the string representation of a Source.
func (s Source) String() string {
	return string(s)
}

// Resolution is the outcome of one resolution attempt: which intent the user
// expressed, the concrete action to execute, and how certain the resolver is.
type Resolution struct {
	// Intent is the abstract category of the request (e.g. "app_launch").
	Intent string `json:"intent"`

	// Action is the concrete operation to execute (e.g. "open_app").
	// Empty when Source is SourceUnresolved.
	Action string `json:"action"`

	// Parameters carries the action's slot values (e.g. {"app": "chrome"}).
	Parameters map[string]string `json:"parameters,omitempty"`

	// Confidence is the resolver's self-reported certainty in [0, 1].
	Confidence float64 `json:"confidence"`

	// Source indicates which strategy produced this result.
	Source Source `json:"source"`

	// ResolvedAt is when the resolution was made.
	ResolvedAt time.Time `json:"resolved_at"`

	// Duration is how long the resolution took end to end.
	Duration time.Duration `json:"duration"`
}

// Unresolved returns the explicit failure resolution for an exhausted chain.
// Per the data model: source=unresolved implies confidence=0 and empty action.
func Unresolved() Resolution {
	return Resolution{
		Intent:     IntentUnknown,
		Action:     "",
		Confidence: 0,
		Source:     SourceUnresolved,
		ResolvedAt: time.Now(),
	}
}

// ClampConfidence forces c into the valid [0, 1] range.
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// ═══════════════════════════════════════════════════════════════════════════════
// INTENTS
// ═══════════════════════════════════════════════════════════════════════════════

// Well-known intents. The classifier and the keyword table only ever emit
// these; the remote model is prompted with the same closed set.
const (
	IntentAppLaunch        = "app_launch"
	IntentVolumeControl    = "volume_control"
	IntentBrightnessCtl    = "brightness_control"
	IntentSystemTime       = "system_time"
	IntentSystemDate       = "system_date"
	IntentLockScreen       = "lock_screen"
	IntentSystemSleep      = "system_sleep"
	IntentSystemShutdown   = "system_shutdown"
	IntentHelp             = "help"
	IntentExit             = "exit"
	IntentGeneralKnowledge = "general_knowledge"
	IntentUnknown          = "unknown"
)

// KnownIntents returns the closed intent set in a stable order.
func KnownIntents() []string {
	return []string{
		IntentAppLaunch,
		IntentVolumeControl,
		IntentBrightnessCtl,
		IntentSystemTime,
		IntentSystemDate,
		IntentLockScreen,
		IntentSystemSleep,
		IntentSystemShutdown,
		IntentHelp,
		IntentExit,
		IntentGeneralKnowledge,
		IntentUnknown,
	}
}

// IsKnownIntent reports whether intent is part of the closed set.
func IsKnownIntent(intent string) bool {
	for _, known := range KnownIntents() {
		if intent == known {
			return true
		}
	}
	return false
}

// ═══════════════════════════════════════════════════════════════════════════════
// LEARNED COMMANDS
// ═══════════════════════════════════════════════════════════════════════════════

// LearnedCommand is one append-only record of a resolved utterance.
// Records are immutable once written; a newer record for the same normalized
// text supersedes older ones on lookup, but history is retained for retraining.
type LearnedCommand struct {
	ID             string            `json:"id"`
	UtteranceText  string            `json:"utterance_text"`
	NormalizedText string            `json:"normalized_text"`
	Intent         string            `json:"intent"`
	Action         string            `json:"action"`
	Parameters     map[string]string `json:"parameters,omitempty"`
	Confidence     float64           `json:"confidence"`
	Source         Source            `json:"source"`
	CreatedAt      time.Time         `json:"created_at"`
}

// IntentPattern aggregates how often a normalized utterance shape has been
// seen for an intent. occurrence_count only ever grows; example utterances
// are appended up to a bounded cap.
type IntentPattern struct {
	PatternKey      string    `json:"pattern_key"`
	Intent          string    `json:"intent"`
	OccurrenceCount int64     `json:"occurrence_count"`
	Examples        []string  `json:"examples,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONNECTIVITY
// ═══════════════════════════════════════════════════════════════════════════════

// ConnectivityState is a point-in-time snapshot of network reachability.
// The monitor replaces the whole value on refresh; readers never observe a
// partially updated state.
type ConnectivityState struct {
	// Online reports whether the last probe reached the internet.
	Online bool `json:"online"`

	// CheckedAt is when the probe completed. Zero before the first probe.
	CheckedAt time.Time `json:"checked_at"`

	// Via names the probe target that succeeded (e.g. "8.8.8.8:53"),
	// empty when offline or unknown.
	Via string `json:"via,omitempty"`
}

// Known reports whether at least one probe has completed.
func (s ConnectivityState) Known() bool {
	return !s.CheckedAt.IsZero()
}

// ═══════════════════════════════════════════════════════════════════════════════
// TEXT NORMALIZATION
// ═══════════════════════════════════════════════════════════════════════════════

// fillerWords are dropped during normalization. Speech recognizers pad
// commands with these and they carry no intent signal.
var fillerWords = map[string]bool{
	"please": true,
	"can":    true,
	"could":  true,
	"would":  true,
	"you":    true,
	"hey":    true,
	"um":     true,
	"uh":     true,
	"the":    true,
	"a":      true,
	"an":     true,
	"just":   true,
	"for":    true,
	"me":     true,
}

// NormalizeUtterance lowercases text, collapses whitespace, and strips filler
// words. Lookup keys and pattern keys are always built from this form so that
// "Please open Chrome" and "open chrome" hit the same record.
func NormalizeUtterance(text string) string {
	fields := strings.Fields(strings.ToLower(text))
	kept := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".,!?")
		if f == "" || fillerWords[f] {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}
