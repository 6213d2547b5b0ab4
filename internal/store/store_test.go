package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/normanking/jarvis/pkg/types"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "knowledge.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testCommand(text, intent, action string) *types.LearnedCommand {
	return &types.LearnedCommand{
		UtteranceText: text,
		Intent:        intent,
		Action:        action,
		Confidence:    0.9,
		Source:        types.SourceRemote,
	}
}

func TestRecordCommand(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	t.Run("records and looks up", func(t *testing.T) {
		cmd := testCommand("please open chrome", types.IntentAppLaunch, "open_app")
		cmd.Parameters = map[string]string{"app": "chrome"}

		if err := s.RecordCommand(ctx, cmd); err != nil {
			t.Fatalf("RecordCommand failed: %v", err)
		}
		if cmd.ID == "" {
			t.Error("expected generated ID")
		}

		got, ok := s.Lookup(types.NormalizeUtterance("please open chrome"))
		if !ok {
			t.Fatal("expected lookup hit")
		}
		if got.Action != "open_app" {
			t.Errorf("expected action 'open_app', got %q", got.Action)
		}
		if got.Parameters["app"] != "chrome" {
			t.Errorf("expected app parameter 'chrome', got %q", got.Parameters["app"])
		}
	})

	t.Run("rejects empty utterance", func(t *testing.T) {
		err := s.RecordCommand(ctx, testCommand("", types.IntentHelp, "show_help"))
		if err == nil {
			t.Error("expected error for empty utterance")
		}
	})

	t.Run("rejects missing action", func(t *testing.T) {
		err := s.RecordCommand(ctx, testCommand("help me", types.IntentHelp, ""))
		if err == nil {
			t.Error("expected error for missing action")
		}
	})

	t.Run("most recent wins", func(t *testing.T) {
		first := testCommand("dim the screen", types.IntentBrightnessCtl, "brightness_down")
		first.CreatedAt = time.Now().Add(-time.Hour)
		if err := s.RecordCommand(ctx, first); err != nil {
			t.Fatalf("RecordCommand failed: %v", err)
		}

		second := testCommand("dim the screen", types.IntentBrightnessCtl, "brightness_down")
		second.Confidence = 0.95
		if err := s.RecordCommand(ctx, second); err != nil {
			t.Fatalf("RecordCommand failed: %v", err)
		}

		got, ok := s.Lookup(types.NormalizeUtterance("dim the screen"))
		if !ok {
			t.Fatal("expected lookup hit")
		}
		if got.ID != second.ID {
			t.Errorf("expected most recent command %s, got %s", second.ID, got.ID)
		}
	})
}

func TestPatternUpsert(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	// Three log rows for the same (normalized, intent) pair.
	for _, text := range []string{"lock my screen", "please lock my screen", "lock my screen"} {
		if err := s.RecordCommand(ctx, testCommand(text, types.IntentLockScreen, "lock_screen")); err != nil {
			t.Fatalf("RecordCommand failed: %v", err)
		}
	}

	patterns, err := s.PatternsFor(ctx, types.IntentLockScreen)
	if err != nil {
		t.Fatalf("PatternsFor failed: %v", err)
	}
	if len(patterns) != 1 {
		t.Fatalf("expected 1 pattern, got %d", len(patterns))
	}

	p := patterns[0]
	if p.OccurrenceCount != 3 {
		t.Errorf("expected occurrence count 3, got %d", p.OccurrenceCount)
	}
	// Duplicate example text is stored once.
	if len(p.Examples) != 2 {
		t.Errorf("expected 2 distinct examples, got %d: %v", len(p.Examples), p.Examples)
	}
}

func TestPatternExampleCap(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "knowledge.db")
	s, err := Open(dbPath, WithMaxPatternExamples(3))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	// Same normalized form, five distinct raw texts.
	texts := []string{
		"open chrome!", "open chrome?", "open chrome.", "open chrome,", "please open chrome",
	}
	for _, text := range texts {
		if err := s.RecordCommand(ctx, testCommand(text, types.IntentAppLaunch, "open_app")); err != nil {
			t.Fatalf("RecordCommand failed: %v", err)
		}
	}

	patterns, err := s.PatternsFor(ctx, types.IntentAppLaunch)
	if err != nil {
		t.Fatalf("PatternsFor failed: %v", err)
	}
	if len(patterns) != 1 {
		t.Fatalf("expected 1 pattern, got %d", len(patterns))
	}
	if got := len(patterns[0].Examples); got > 3 {
		t.Errorf("expected at most 3 examples, got %d", got)
	}
	if patterns[0].OccurrenceCount != 5 {
		t.Errorf("expected occurrence count 5, got %d", patterns[0].OccurrenceCount)
	}
}

func TestCacheRebuild(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "knowledge.db")
	ctx := context.Background()

	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.RecordCommand(ctx, testCommand("what time is it", types.IntentSystemTime, "tell_time")); err != nil {
		t.Fatalf("RecordCommand failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Reopen: the cache is rebuilt from the log.
	s2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	got, ok := s2.Lookup(types.NormalizeUtterance("what time is it"))
	if !ok {
		t.Fatal("expected lookup hit after reopen")
	}
	if got.Action != "tell_time" {
		t.Errorf("expected action 'tell_time', got %q", got.Action)
	}
}

func TestStats(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	cmds := []*types.LearnedCommand{
		testCommand("open chrome", types.IntentAppLaunch, "open_app"),
		testCommand("open firefox", types.IntentAppLaunch, "open_app"),
		testCommand("what time is it", types.IntentSystemTime, "tell_time"),
	}
	for _, cmd := range cmds {
		if err := s.RecordCommand(ctx, cmd); err != nil {
			t.Fatalf("RecordCommand failed: %v", err)
		}
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.LearnedCommands != 3 {
		t.Errorf("expected 3 learned commands, got %d", stats.LearnedCommands)
	}
	if stats.ByIntent[types.IntentAppLaunch] != 2 {
		t.Errorf("expected 2 app_launch commands, got %d", stats.ByIntent[types.IntentAppLaunch])
	}
}
