package resolver

import (
	"strings"
	"time"

	"github.com/normanking/jarvis/pkg/types"
)

// KeywordConfidence is the fixed confidence of a keyword fallback match.
// Kept below the default threshold so a persisted keyword match is never
// replayed straight from the cache; it has to survive the chain again.
const KeywordConfidence = 0.3

// keywordEntry binds one trigger phrase to a resolution.
type keywordEntry struct {
	keyword string
	intent  string
	action  string
	params  map[string]string
}

// keywordTable holds the last-resort triggers: verb phrases and bare app
// names. Matched by substring against normalized text, more specific
// entries first, so "shut down" beats "down".
var keywordTable = []keywordEntry{
	{keyword: "shut down", intent: types.IntentSystemShutdown, action: "system_shutdown"},
	{keyword: "shutdown", intent: types.IntentSystemShutdown, action: "system_shutdown"},
	{keyword: "power off", intent: types.IntentSystemShutdown, action: "system_shutdown"},
	{keyword: "goodbye", intent: types.IntentExit, action: "exit_assistant"},
	{keyword: "chrome", intent: types.IntentAppLaunch, action: "open_app", params: map[string]string{"app": "chrome"}},
	{keyword: "firefox", intent: types.IntentAppLaunch, action: "open_app", params: map[string]string{"app": "firefox"}},
	{keyword: "spotify", intent: types.IntentAppLaunch, action: "open_app", params: map[string]string{"app": "spotify"}},
	{keyword: "calculator", intent: types.IntentAppLaunch, action: "open_app", params: map[string]string{"app": "calculator"}},
	{keyword: "notepad", intent: types.IntentAppLaunch, action: "open_app", params: map[string]string{"app": "notepad"}},
	{keyword: "terminal", intent: types.IntentAppLaunch, action: "open_app", params: map[string]string{"app": "terminal"}},
	{keyword: "sleep", intent: types.IntentSystemSleep, action: "system_sleep"},
	{keyword: "lock", intent: types.IntentLockScreen, action: "lock_screen"},
	{keyword: "time", intent: types.IntentSystemTime, action: "tell_time"},
	{keyword: "date", intent: types.IntentSystemDate, action: "tell_date"},
	{keyword: "volume", intent: types.IntentVolumeControl, action: "volume_up"},
	{keyword: "brightness", intent: types.IntentBrightnessCtl, action: "brightness_up"},
	{keyword: "help", intent: types.IntentHelp, action: "show_help"},
	{keyword: "exit", intent: types.IntentExit, action: "exit_assistant"},
	{keyword: "quit", intent: types.IntentExit, action: "exit_assistant"},
	{keyword: "bye", intent: types.IntentExit, action: "exit_assistant"},
}

// matchKeyword scans the table in order and returns a fixed low-confidence
// resolution for the first hit.
func matchKeyword(normalized string) (types.Resolution, bool) {
	for _, e := range keywordTable {
		if strings.Contains(normalized, e.keyword) {
			return types.Resolution{
				Intent:     e.intent,
				Action:     e.action,
				Parameters: e.params,
				Confidence: KeywordConfidence,
				Source:     types.SourceKeyword,
				ResolvedAt: time.Now(),
			}, true
		}
	}
	return types.Resolution{}, false
}
