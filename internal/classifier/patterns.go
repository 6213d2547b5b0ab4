package classifier

import (
	"regexp"

	"github.com/normanking/jarvis/pkg/types"
)

// buildPatterns creates the regex patterns for each intent. Patterns match
// against normalized text (lowercased, filler words stripped) and are
// weighted: higher weight = stronger signal.
func buildPatterns() map[string][]*compiledPattern {
	return map[string][]*compiledPattern{
		types.IntentAppLaunch: {
			{regexp.MustCompile(`\b(open|launch|start|run)\b`), 1.0},
			{regexp.MustCompile(`\b(chrome|firefox|browser|google)\b`), 1.0},
			{regexp.MustCompile(`\b(vs code|vscode|visual studio|code editor)\b`), 1.1},
			{regexp.MustCompile(`\b(notepad|text editor|gedit)\b`), 1.0},
			{regexp.MustCompile(`\b(terminal|console|shell)\b`), 0.9},
			{regexp.MustCompile(`\b(spotify|music player|calculator|file manager)\b`), 0.9},
		},

		types.IntentVolumeControl: {
			{regexp.MustCompile(`\bvolume\b`), 1.2},
			{regexp.MustCompile(`\b(louder|quieter|mute|unmute)\b`), 1.1},
			{regexp.MustCompile(`\b(turn|crank) (it )?(up|down)\b`), 0.8},
			{regexp.MustCompile(`\b(increase|decrease|raise|lower) (sound|audio)\b`), 1.0},
		},

		types.IntentBrightnessCtl: {
			{regexp.MustCompile(`\bbrightness\b`), 1.2},
			{regexp.MustCompile(`\b(brighten|brighter|dim|dimmer|darker)\b`), 1.1},
			{regexp.MustCompile(`\bscreen (up|down|brighter|darker)\b`), 0.9},
		},

		types.IntentSystemTime: {
			{regexp.MustCompile(`\bwhat time\b`), 1.2},
			{regexp.MustCompile(`\btime is it\b`), 1.2},
			{regexp.MustCompile(`\b(current|tell) time\b`), 1.0},
			{regexp.MustCompile(`\bclock\b`), 0.7},
		},

		types.IntentSystemDate: {
			{regexp.MustCompile(`\bwhat date\b`), 1.2},
			{regexp.MustCompile(`\b(todays?|current) date\b`), 1.2},
			{regexp.MustCompile(`\bwhat day is (it|today)\b`), 1.1},
		},

		types.IntentLockScreen: {
			{regexp.MustCompile(`\block\b`), 1.1},
			{regexp.MustCompile(`\block (my )?(screen|computer|pc)\b`), 1.3},
		},

		types.IntentSystemSleep: {
			{regexp.MustCompile(`\b(go to )?sleep\b`), 1.1},
			{regexp.MustCompile(`\b(suspend|standby|hibernate)\b`), 1.2},
		},

		types.IntentSystemShutdown: {
			{regexp.MustCompile(`\b(shut ?down|power off|turn off) (computer|pc|system|machine)\b`), 1.3},
			{regexp.MustCompile(`\bshut ?down\b`), 1.1},
			{regexp.MustCompile(`\bpower off\b`), 1.1},
		},

		types.IntentHelp: {
			{regexp.MustCompile(`\bhelp\b`), 1.2},
			{regexp.MustCompile(`\bwhat (things )?(do|commands)\b`), 0.8},
			{regexp.MustCompile(`\bwhat are (your|my) commands\b`), 1.1},
		},

		types.IntentExit: {
			{regexp.MustCompile(`\b(goodbye|bye|quit|exit)\b`), 1.2},
			{regexp.MustCompile(`\b(stop|that's all|thats all)\b`), 0.7},
		},

		types.IntentGeneralKnowledge: {
			{regexp.MustCompile(`\b(who|what|where|when|why|how) (is|are|was|were|do|does|did)\b`), 0.9},
			{regexp.MustCompile(`\btell .*about\b`), 0.9},
			{regexp.MustCompile(`\b(define|explain|meaning of)\b`), 0.8},
			{regexp.MustCompile(`\bsearch\b`), 0.7},
		},
	}
}
