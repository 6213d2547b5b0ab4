// Package resolver implements the hybrid intent resolution chain. Every
// utterance walks the same ladder: learned-command cache, remote model,
// local classifier, keyword fallback, then user clarification. Each stage
// either produces a resolution good enough to stop, or hands a candidate
// down to the next stage. The chain always terminates with a
// resolution; stage failures degrade the answer, never the process.
package resolver

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/normanking/jarvis/internal/remote"
	"github.com/normanking/jarvis/pkg/types"
)

// DefaultConfidenceThreshold is the minimum confidence a stage needs to
// stop the chain. It also gates cache replay: stored entries below it are
// candidates, not answers.
const DefaultConfidenceThreshold = 0.6

// RemoteStrategy resolves an utterance via the cloud model.
type RemoteStrategy interface {
	Resolve(ctx context.Context, text string) (types.Resolution, error)
}

// LocalStrategy resolves an utterance offline. It never fails; low
// confidence is its way of declining.
type LocalStrategy interface {
	Classify(text string) types.Resolution
}

// Knowledge is the learned-command store surface the resolver needs.
type Knowledge interface {
	Lookup(normalized string) (types.LearnedCommand, bool)
	RecordCommand(ctx context.Context, cmd *types.LearnedCommand) error
}

// ConnectivitySource reports the last known connectivity snapshot without
// blocking.
type ConnectivitySource interface {
	Current() types.ConnectivityState
}

// SecretProvider supplies the remote API key. The second return is false
// when no key is configured, which disables the remote stage entirely.
type SecretProvider interface {
	APIKey() (string, bool)
}

// Clarifier asks the user to confirm a low-confidence candidate. A nil
// Clarifier means non-interactive operation: the chain returns its best
// candidate without asking.
type Clarifier interface {
	Confirm(ctx context.Context, utterance string, candidate types.Resolution) (bool, error)
}

// Resolver orchestrates the resolution chain.
type Resolver struct {
	remote       RemoteStrategy
	local        LocalStrategy
	knowledge    Knowledge
	connectivity ConnectivitySource
	secrets      SecretProvider
	clarifier    Clarifier

	threshold      float64
	enableLearning bool

	mu    sync.Mutex
	stats Stats
}

// Stats counts chain outcomes per stage.
type Stats struct {
	Total          int64   `json:"total"`
	CacheHits      int64   `json:"cache_hits"`
	RemoteHits     int64   `json:"remote_hits"`
	RemoteErrors   int64   `json:"remote_errors"`
	RemoteSkipped  int64   `json:"remote_skipped"`
	LocalHits      int64   `json:"local_hits"`
	KeywordHits    int64   `json:"keyword_hits"`
	Clarified      int64   `json:"clarified"`
	Unresolved     int64   `json:"unresolved"`
	LearnFailures  int64   `json:"learn_failures"`
	AvgConfidence  float64 `json:"avg_confidence"`
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithConfidenceThreshold overrides the stop threshold.
func WithConfidenceThreshold(threshold float64) Option {
	return func(r *Resolver) {
		if threshold > 0 {
			r.threshold = threshold
		}
	}
}

// WithLearning toggles persistence of resolutions into the knowledge store.
func WithLearning(enabled bool) Option {
	return func(r *Resolver) { r.enableLearning = enabled }
}

// WithClarifier installs an interactive confirmation stage.
func WithClarifier(c Clarifier) Option {
	return func(r *Resolver) { r.clarifier = c }
}

// WithConnectivity installs a connectivity snapshot source. Without one the
// remote stage assumes it is online and lets the request timeout decide.
func WithConnectivity(c ConnectivitySource) Option {
	return func(r *Resolver) { r.connectivity = c }
}

// WithSecrets installs the API key source.
func WithSecrets(s SecretProvider) Option {
	return func(r *Resolver) { r.secrets = s }
}

// New creates a resolver. remote may be nil, in which case the remote stage
// is skipped; local and knowledge are required.
func New(remoteStrategy RemoteStrategy, local LocalStrategy, knowledge Knowledge, opts ...Option) *Resolver {
	r := &Resolver{
		remote:         remoteStrategy,
		local:          local,
		knowledge:      knowledge,
		threshold:      DefaultConfidenceThreshold,
		enableLearning: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve walks the chain for one utterance. It always returns a resolution;
// when every stage declines and clarification is unavailable or refused, the
// resolution carries source "unresolved" with confidence zero.
func (r *Resolver) Resolve(ctx context.Context, utt types.Utterance) types.Resolution {
	return r.ResolveWith(ctx, utt, r.clarifier)
}

// ResolveWith runs the chain with a caller-supplied clarifier, overriding
// the configured one. The bridge uses this to clarify over the connection
// that sent the utterance.
func (r *Resolver) ResolveWith(ctx context.Context, utt types.Utterance, clarifier Clarifier) types.Resolution {
	start := time.Now()
	normalized := types.NormalizeUtterance(utt.Text)

	// best tracks the highest-confidence candidate from declining stages.
	var best types.Resolution
	best.Source = types.SourceUnresolved

	// Stage 1: learned-command cache. A confident exact normalized match
	// replays the stored resolution without touching the network; a weak one
	// (a reinforced keyword guess) only seeds the candidate.
	if cmd, ok := r.knowledge.Lookup(normalized); ok {
		res := types.Resolution{
			Intent:     cmd.Intent,
			Action:     cmd.Action,
			Parameters: cmd.Parameters,
			Confidence: cmd.Confidence,
			Source:     types.SourceLearned,
			ResolvedAt: time.Now(),
		}
		if res.Confidence >= r.threshold {
			res.Duration = time.Since(start)
			r.record(res, stageCache)
			return res
		}
		best = better(best, res)
	}

	// Stage 2: remote model, when a key is configured and the last
	// connectivity snapshot does not say offline.
	if res, attempted := r.tryRemote(ctx, utt.Text); attempted {
		if res.Confidence >= r.threshold {
			r.learn(ctx, utt.Text, normalized, res)
			res.Duration = time.Since(start)
			r.record(res, stageRemote)
			return res
		}
		best = better(best, res)
	}

	// Stage 3: local classifier. Never fails, may be unconfident.
	local := r.local.Classify(utt.Text)
	if local.Confidence >= r.threshold {
		r.learn(ctx, utt.Text, normalized, local)
		local.Duration = time.Since(start)
		r.record(local, stageLocal)
		return local
	}
	best = better(best, local)

	// Stage 4: keyword fallback. A deterministic table hit is preferred
	// over an unconfident statistical guess even at its fixed low
	// confidence. Safe actions are persisted to reinforce the pattern
	// table; the confidence keeps the entry below the cache-replay bar.
	if kw, ok := matchKeyword(normalized); ok {
		r.learn(ctx, utt.Text, normalized, kw)
		kw.Duration = time.Since(start)
		r.record(kw, stageKeyword)
		return kw
	}

	// Stage 5: clarification. Only reachable when every resolver declined
	// and the keyword table had nothing.
	if clarifier != nil && best.Intent != "" && best.Intent != types.IntentUnknown {
		confirmed, err := clarifier.Confirm(ctx, utt.Text, best)
		if err == nil && confirmed {
			best.Confidence = 1.0 // user said so
			best.Source = types.SourceLearned
			r.learn(ctx, utt.Text, normalized, best)
			best.Duration = time.Since(start)
			r.record(best, stageClarified)
			return best
		}
		if err != nil {
			log.Warn().Err(err).Msg("clarification failed")
		}
		// Declined: the candidate was wrong, do not return it.
		res := types.Unresolved()
		res.Duration = time.Since(start)
		r.record(res, stageUnresolved)
		return res
	}

	// Non-interactive: return the best candidate even below threshold,
	// or an unresolved result when no stage produced anything usable.
	if best.Intent == "" || best.Intent == types.IntentUnknown {
		res := types.Unresolved()
		res.Duration = time.Since(start)
		r.record(res, stageUnresolved)
		return res
	}

	best.Duration = time.Since(start)
	r.record(best, stageForSource(best.Source))
	return best
}

// tryRemote runs the remote stage. The bool reports whether a remote call
// actually produced a resolution; skips and failures both return false.
func (r *Resolver) tryRemote(ctx context.Context, text string) (types.Resolution, bool) {
	if r.remote == nil {
		return types.Resolution{}, false
	}
	if r.secrets != nil {
		if _, ok := r.secrets.APIKey(); !ok {
			r.bump(func(s *Stats) { s.RemoteSkipped++ })
			log.Debug().Msg("remote stage skipped: no api key")
			return types.Resolution{}, false
		}
	}
	if r.connectivity != nil {
		if state := r.connectivity.Current(); state.Known() && !state.Online {
			r.bump(func(s *Stats) { s.RemoteSkipped++ })
			log.Debug().Msg("remote stage skipped: offline")
			return types.Resolution{}, false
		}
	}

	res, err := r.remote.Resolve(ctx, text)
	if err != nil {
		r.bump(func(s *Stats) { s.RemoteErrors++ })
		switch {
		case errors.Is(err, remote.ErrUnavailable):
			log.Debug().Err(err).Msg("remote unavailable, falling back")
		case errors.Is(err, remote.ErrMalformedResponse):
			log.Warn().Err(err).Msg("malformed remote response, falling back")
		default:
			log.Warn().Err(err).Msg("remote resolution failed, falling back")
		}
		return types.Resolution{}, false
	}
	return res, true
}

// learn persists a resolution so future identical utterances hit the cache
// and the pattern table accumulates examples. Call sites decide when a
// resolution is worth keeping; learn only refuses destructive actions.
// Persistence failures are logged, never surfaced: a resolved command that
// could not be remembered is still resolved.
func (r *Resolver) learn(ctx context.Context, rawText, normalized string, res types.Resolution) {
	if !r.enableLearning || r.knowledge == nil {
		return
	}
	if !learnableAction(res.Action) {
		return
	}

	cmd := &types.LearnedCommand{
		UtteranceText:  rawText,
		NormalizedText: normalized,
		Intent:         res.Intent,
		Action:         res.Action,
		Parameters:     res.Parameters,
		Confidence:     res.Confidence,
		Source:         res.Source,
	}
	if err := r.knowledge.RecordCommand(ctx, cmd); err != nil {
		r.bump(func(s *Stats) { s.LearnFailures++ })
		log.Warn().Err(err).Str("intent", res.Intent).Msg("failed to persist learned command")
	}
}

// learnableAction excludes destructive actions from the cache. A cached
// shutdown replayed on a fuzzy match is worse than asking again.
func learnableAction(action string) bool {
	switch action {
	case "system_shutdown", "system_sleep":
		return false
	}
	return true
}

// better returns the candidate with the higher confidence.
func better(a, b types.Resolution) types.Resolution {
	if b.Confidence > a.Confidence {
		return b
	}
	return a
}

// Stats returns a copy of the chain counters.
func (r *Resolver) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

type stage int

const (
	stageCache stage = iota
	stageRemote
	stageLocal
	stageKeyword
	stageClarified
	stageUnresolved
)

func stageForSource(src types.Source) stage {
	switch src {
	case types.SourceRemote:
		return stageRemote
	case types.SourceKeyword:
		return stageKeyword
	case types.SourceUnresolved:
		return stageUnresolved
	}
	return stageLocal
}

func (r *Resolver) record(res types.Resolution, st stage) {
	r.mu.Lock()
	r.stats.Total++
	switch st {
	case stageCache:
		r.stats.CacheHits++
	case stageRemote:
		r.stats.RemoteHits++
	case stageLocal:
		r.stats.LocalHits++
	case stageKeyword:
		r.stats.KeywordHits++
	case stageClarified:
		r.stats.Clarified++
	case stageUnresolved:
		r.stats.Unresolved++
	}
	total := float64(r.stats.Total)
	r.stats.AvgConfidence = (r.stats.AvgConfidence*(total-1) + res.Confidence) / total
	r.mu.Unlock()

	log.Info().
		Str("intent", res.Intent).
		Str("action", res.Action).
		Str("source", string(res.Source)).
		Float64("confidence", res.Confidence).
		Dur("duration", res.Duration).
		Msg("utterance resolved")
}

func (r *Resolver) bump(fn func(*Stats)) {
	r.mu.Lock()
	fn(&r.stats)
	r.mu.Unlock()
}
