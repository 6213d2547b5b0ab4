package classifier

import (
	"regexp"
	"strings"
)

// extractedEntities holds the slot values found in one utterance.
type extractedEntities struct {
	// App is the canonical application name, if one was mentioned.
	App string
	// Direction is "up", "down", or "mute" for level adjustments.
	Direction string
	// Level is a bare numeric value ("50"), when spoken.
	Level string
	// Toggle is "on" or "off".
	Toggle string
}

// entityExtractor pulls slot values out of normalized text.
type entityExtractor struct {
	apps    map[string]string
	numbers *regexp.Regexp
	onWord  *regexp.Regexp
	offWord *regexp.Regexp
}

// appAliases maps spoken names to canonical application identifiers.
// Aliases are matched longest-first so "visual studio code" wins over "code".
var appAliases = map[string]string{
	"google chrome": "chrome",
	"chrome":        "chrome",
	"google":        "chrome",
	"browser":       "chrome",
	"firefox":       "firefox",
	"visual studio": "vscode",
	"vs code":       "vscode",
	"vscode":        "vscode",
	"code editor":   "vscode",
	"notepad":       "notepad",
	"text editor":   "notepad",
	"gedit":         "notepad",
	"terminal":      "terminal",
	"console":       "terminal",
	"shell":         "terminal",
	"spotify":       "spotify",
	"music player":  "spotify",
	"calculator":    "calculator",
	"file manager":  "files",
}

func newEntityExtractor() *entityExtractor {
	return &entityExtractor{
		apps:    appAliases,
		numbers: regexp.MustCompile(`\b(\d{1,3})\b`),
		onWord:  regexp.MustCompile(`\bon\b`),
		offWord: regexp.MustCompile(`\boff\b`),
	}
}

// extract scans normalized text for every entity type. Absent entities are
// zero values; the caller decides which slots its intent requires.
func (e *entityExtractor) extract(normalized string) extractedEntities {
	var out extractedEntities

	// Longest alias wins; "visual studio code" must not resolve via "code".
	bestLen := 0
	for alias, canonical := range e.apps {
		if strings.Contains(normalized, alias) && len(alias) > bestLen {
			out.App = canonical
			bestLen = len(alias)
		}
	}

	switch {
	case strings.Contains(normalized, "mute"):
		if strings.Contains(normalized, "unmute") {
			out.Direction = "up"
		} else {
			out.Direction = "mute"
		}
	case containsAny(normalized, "up", "increase", "raise", "louder", "higher", "brighten", "brighter"):
		out.Direction = "up"
	case containsAny(normalized, "down", "decrease", "lower", "quieter", "dim", "dimmer", "darker"):
		out.Direction = "down"
	}

	if m := e.numbers.FindStringSubmatch(normalized); m != nil {
		out.Level = m[1]
	}

	if e.onWord.MatchString(normalized) {
		out.Toggle = "on"
	} else if e.offWord.MatchString(normalized) {
		out.Toggle = "off"
	}

	return out
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
