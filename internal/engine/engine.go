// Package engine coordinates clothing classification and style matching
// with bounded concurrency, result caching, and a circuit breaker around
// the AI capability. Public entry points never propagate errors; they
// degrade to neutral results.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stylelens/stylelens/internal/detect"
	"github.com/stylelens/stylelens/internal/page"
	"github.com/stylelens/stylelens/internal/style"
)

// Analysis result methods.
const (
	MethodNoProfile   = "no_profile"
	MethodQueueFull   = "queue_full"
	MethodNotClothing = "not_clothing"
	MethodError       = "analysis_error"
)

// neutralScore is the middle of the public 1-10 scale, returned whenever
// the engine sheds work rather than failing it.
const neutralScore = 5

// Classifier is the clothing-classification seam.
type Classifier interface {
	IsClothingImage(ctx context.Context, c *page.Candidate) detect.Classification
}

// StyleAnalyzer is the style-matching seam.
type StyleAnalyzer interface {
	AnalyzeStyle(ctx context.Context, c *page.Candidate, profile *style.Profile) (style.Result, error)
	KeywordFallback(c *page.Candidate, profile *style.Profile) style.Result
}

// Result is one product analysis on the public 1-10 scale.
type Result struct {
	Score      int
	Reasoning  string
	Confidence float64
	Method     string
}

// Stats is a snapshot of the engine's running counters.
type Stats struct {
	TotalAnalyzed int64
	CacheHits     int64
	APICalls      int64
	Failures      int64
	AverageScore  float64
}

// Config tunes the engine. Zero fields take the production defaults.
type Config struct {
	Workers          int           // concurrent analysis ceiling
	QueueCap         int           // overflow queue hard cap
	BreakerThreshold int           // consecutive failures that open the breaker
	BreakerRetry     time.Duration // wait between recovery attempts while open
	CallTimeout      time.Duration // per-analysis AI deadline, 0 disables
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		Workers:          4,
		QueueCap:         200,
		BreakerThreshold: 5,
		BreakerRetry:     30 * time.Second,
		CallTimeout:      30 * time.Second,
	}
}

type queueEntry struct {
	ctx     context.Context
	cand    *page.Candidate
	profile *style.Profile
	key     string
	done    chan Result
}

// Engine is the top-level analysis coordinator.
type Engine struct {
	classifier Classifier
	matcher    StyleAnalyzer
	quick      *detect.QuickExclusion
	cfg        Config

	mu      sync.Mutex
	active  int
	queue   []*queueEntry
	cache   map[string]Result
	stats   Stats
	scored  int64 // computed results feeding the running average
	breaker struct {
		open                bool
		consecutiveFailures int
		retrying            bool
		retryAt             time.Time
	}
}

// New creates an Engine. quick is used for the deterministic path while
// the circuit breaker is open.
func New(classifier Classifier, matcher StyleAnalyzer, quick *detect.QuickExclusion, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueCap <= 0 {
		cfg.QueueCap = def.QueueCap
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = def.BreakerThreshold
	}
	if cfg.BreakerRetry <= 0 {
		cfg.BreakerRetry = def.BreakerRetry
	}
	return &Engine{
		classifier: classifier,
		matcher:    matcher,
		quick:      quick,
		cfg:        cfg,
		cache:      make(map[string]Result),
	}
}

// AnalyzeProduct scores one product against the profile. A nil profile
// yields an immediate neutral result without touching AI or cache.
func (e *Engine) AnalyzeProduct(ctx context.Context, c *page.Candidate, profile *style.Profile) Result {
	if profile == nil {
		res := Result{
			Score:      neutralScore,
			Reasoning:  "no style profile loaded",
			Confidence: 0.5,
			Method:     MethodNoProfile,
		}
		e.mu.Lock()
		e.stats.TotalAnalyzed++
		e.mu.Unlock()
		return res
	}

	key := cacheKey(c, profile)

	e.mu.Lock()
	if res, ok := e.cache[key]; ok {
		e.stats.TotalAnalyzed++
		e.stats.CacheHits++
		e.mu.Unlock()
		return res
	}

	if e.active < e.cfg.Workers {
		e.active++
		e.mu.Unlock()
		return e.runSlot(ctx, c, profile, key)
	}

	if len(e.queue) >= e.cfg.QueueCap {
		e.mu.Unlock()
		log.Warn().Str("image", c.Identity()).Msg("analysis queue full, shedding request")
		return Result{
			Score:      neutralScore,
			Reasoning:  "analysis queue at capacity",
			Confidence: 0.2,
			Method:     MethodQueueFull,
		}
	}

	entry := &queueEntry{ctx: ctx, cand: c, profile: profile, key: key, done: make(chan Result, 1)}
	e.queue = append(e.queue, entry)
	e.mu.Unlock()
	return <-entry.done
}

// AnalyzeBatch analyzes candidates concurrently through the worker gate,
// preserving input order in the returned slice.
func (e *Engine) AnalyzeBatch(ctx context.Context, candidates []*page.Candidate, profile *style.Profile) []Result {
	results := make([]Result, len(candidates))
	var wg sync.WaitGroup
	for i, c := range candidates {
		wg.Add(1)
		go func(i int, c *page.Candidate) {
			defer wg.Done()
			results[i] = e.AnalyzeProduct(ctx, c, profile)
		}(i, c)
	}
	wg.Wait()
	return results
}

// InvalidateProfile clears the result cache. Call whenever the style
// profile is replaced.
func (e *Engine) InvalidateProfile() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]Result)
}

// CacheSnapshot returns a copy of the result cache for persistence.
func (e *Engine) CacheSnapshot() map[string]Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]Result, len(e.cache))
	for k, v := range e.cache {
		out[k] = v
	}
	return out
}

// WarmCache seeds the result cache, typically from a persisted snapshot
// at startup. Existing entries win over seeded ones.
func (e *Engine) WarmCache(entries map[string]Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k, v := range entries {
		if _, ok := e.cache[k]; !ok {
			e.cache[k] = v
		}
	}
}

// StatsSnapshot returns a copy of the running counters.
func (e *Engine) StatsSnapshot() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// QueueLen reports the current overflow queue depth.
func (e *Engine) QueueLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// BreakerOpen reports whether the circuit breaker is open.
func (e *Engine) BreakerOpen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.breaker.open
}

// runSlot performs one analysis while holding a worker slot. The
// deferred release is the guaranteed-execution path that drains the
// queue even when the analysis panics.
func (e *Engine) runSlot(ctx context.Context, c *page.Candidate, profile *style.Profile, key string) Result {
	defer e.release()

	// The key may have been computed by a concurrent analysis while this
	// request waited for its slot.
	e.mu.Lock()
	if res, ok := e.cache[key]; ok {
		e.stats.TotalAnalyzed++
		e.stats.CacheHits++
		e.mu.Unlock()
		return res
	}
	e.mu.Unlock()

	res := e.analyze(ctx, c, profile)

	e.mu.Lock()
	e.cache[key] = res
	e.stats.TotalAnalyzed++
	e.scored++
	e.stats.AverageScore += (float64(res.Score) - e.stats.AverageScore) / float64(e.scored)
	e.mu.Unlock()
	return res
}

// release frees the worker slot or hands it directly to the next queued
// entry, FIFO.
func (e *Engine) release() {
	e.mu.Lock()
	if len(e.queue) > 0 {
		entry := e.queue[0]
		e.queue = e.queue[1:]
		e.mu.Unlock()
		go func() {
			entry.done <- e.runSlot(entry.ctx, entry.cand, entry.profile, entry.key)
		}()
		return
	}
	e.active--
	e.mu.Unlock()
}

func (e *Engine) analyze(ctx context.Context, c *page.Candidate, profile *style.Profile) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("image", c.Identity()).Msg("analysis panicked")
			e.recordFailure()
			res = Result{
				Score:      neutralScore,
				Reasoning:  "analysis failed",
				Confidence: 0.2,
				Method:     MethodError,
			}
		}
	}()

	if !e.breakerAllows() {
		return e.deterministic(c, profile)
	}

	if e.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()
	}

	// Classify first: style matching is never invoked for non-clothing.
	cls := e.classifier.IsClothingImage(ctx, c)
	e.countAPIUse(cls.Method)
	if !cls.IsClothing {
		e.recordSuccess()
		return Result{
			Score:      1,
			Reasoning:  cls.Reasoning,
			Confidence: cls.Confidence,
			Method:     MethodNotClothing,
		}
	}

	sres, err := e.matcher.AnalyzeStyle(ctx, c, profile)
	if err != nil {
		e.recordFailure()
		log.Debug().Err(err).Str("image", c.Identity()).Msg("style analysis failed, using keyword fallback")
		return fromStyle(e.matcher.KeywordFallback(c, profile))
	}
	e.recordSuccess()
	e.countAPIUse(sres.Method)

	if !sres.Confident {
		sres = e.matcher.KeywordFallback(c, profile)
	}
	return fromStyle(sres)
}

// countAPIUse bumps the API counter only when the verdict actually came
// from an AI layer. Every AI-produced method carries the ai_ prefix;
// heuristic and fallback methods do not.
func (e *Engine) countAPIUse(method string) {
	if !strings.HasPrefix(method, "ai_") {
		return
	}
	e.mu.Lock()
	e.stats.APICalls++
	e.mu.Unlock()
}

// deterministic is the breaker-open path: quick exclusion plus keyword
// scoring, no AI.
func (e *Engine) deterministic(c *page.Candidate, profile *style.Profile) Result {
	if e.quick != nil {
		if excl := e.quick.Check(c); !excl.Passed {
			return Result{
				Score:      1,
				Reasoning:  excl.Reason,
				Confidence: 0.9,
				Method:     MethodNotClothing,
			}
		}
	}
	return fromStyle(e.matcher.KeywordFallback(c, profile))
}

// fromStyle rescales the matcher's 0-100 internal scale onto the public
// 1-10 scale. Matches are compressed into the upper half, non-matches
// into the lower quarter, so a score of 7 or more can only arise from a
// genuine match.
func fromStyle(r style.Result) Result {
	var score int
	if r.IsStyleMatch {
		score = int(math.Round(float64(r.Score) / 10))
		if score < 6 {
			score = 6
		}
	} else {
		score = int(math.Round(float64(r.Score) / 25))
		if score > 4 {
			score = 4
		}
	}
	if score < 1 {
		score = 1
	}
	if score > 10 {
		score = 10
	}
	return Result{
		Score:      score,
		Reasoning:  r.Reasoning,
		Confidence: r.Confidence,
		Method:     r.Method,
	}
}

// breakerAllows reports whether this call may take the AI path. While
// the breaker is open, one trial call per retry interval is let through
// so a recovered backend can close the breaker again.
func (e *Engine) breakerAllows() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.breaker.open {
		return true
	}
	if e.breaker.retrying || time.Now().Before(e.breaker.retryAt) {
		return false
	}
	e.breaker.retrying = true
	return true
}

func (e *Engine) recordFailure() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.Failures++
	e.breaker.consecutiveFailures++
	if e.breaker.retrying {
		e.breaker.retrying = false
		e.breaker.retryAt = time.Now().Add(e.cfg.BreakerRetry)
		log.Warn().Msg("recovery attempt failed, circuit breaker stays open")
		return
	}
	if !e.breaker.open && e.breaker.consecutiveFailures >= e.cfg.BreakerThreshold {
		e.breaker.open = true
		e.breaker.retryAt = time.Now().Add(e.cfg.BreakerRetry)
		log.Warn().Int("failures", e.breaker.consecutiveFailures).Msg("circuit breaker opened, AI analysis disabled")
	}
}

func (e *Engine) recordSuccess() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.breaker.open {
		log.Info().Msg("circuit breaker closed after successful analysis")
	}
	e.breaker.retrying = false
	e.breaker.consecutiveFailures = 0
	e.breaker.open = false
}

// cacheKey digests the candidate identity and profile hash, length
// prefixed to prevent boundary collisions.
func cacheKey(c *page.Candidate, profile *style.Profile) string {
	h := sha256.New()
	id := c.Identity()
	binary.Write(h, binary.LittleEndian, int64(len(id)))
	h.Write([]byte(id))
	ph := profile.Hash()
	binary.Write(h, binary.LittleEndian, int64(len(ph)))
	h.Write([]byte(ph))
	return hex.EncodeToString(h.Sum(nil))
}
