// Package recognition implements the recognition coordinator: the
// orchestration layer tying together the embedder adapter, descriptor
// store, vector index, result cache, and metrics surface. New code — the
// teacher has no single-shot "identify" flow; its closest analogue,
// internal/web/handlers/face_match.go's bbox-to-marker matcher, is
// generalized here from geometry matching to descriptor matching. The
// Coordinator takes every dependency through its constructor (no package
// globals), per the spec's design note on replacing singleton services.
package recognition

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/kozaktomas/facerecog/internal/apierr"
	"github.com/kozaktomas/facerecog/internal/cache"
	"github.com/kozaktomas/facerecog/internal/descriptor"
	"github.com/kozaktomas/facerecog/internal/embedder"
	"github.com/kozaktomas/facerecog/internal/index"
	"github.com/kozaktomas/facerecog/internal/metrics"
	"github.com/kozaktomas/facerecog/internal/store"
)

// Options carries the hot-reloadable thresholds the spec names in §4.E/§6.
type Options struct {
	ConfidenceThreshold float64
	MinFaceSize         float64
	MaxFaceSize         float64
	DetectionConfidence float32
	CacheEnabled        bool
	CacheTTL            time.Duration
}

// DefaultOptions matches the spec's "balanced" profile.
func DefaultOptions() Options {
	return Options{
		ConfidenceThreshold: 0.42,
		MinFaceSize:         40,
		MaxFaceSize:         4000,
		DetectionConfidence: 0.8,
		CacheEnabled:        true,
		CacheTTL:            cache.DefaultTTL,
	}
}

// Stats are the coordinator's rolling identification counters.
type Stats struct {
	Total          int64
	Success        int64
	AvgProcessingMs float64
}

// Coordinator orchestrates cache → detect → search → threshold → emit.
type Coordinator struct {
	embedder embedder.Client
	store    *store.Store
	cache    cache.Cache
	index    *index.Index
	metrics  *metrics.Recorder

	mu      sync.Mutex
	opts    Options
	stats   Stats
}

// New constructs a Coordinator from already-initialized dependencies.
func New(emb embedder.Client, st *store.Store, c cache.Cache, idx *index.Index, rec *metrics.Recorder, opts Options) *Coordinator {
	return &Coordinator{embedder: emb, store: st, cache: c, index: idx, metrics: rec, opts: opts}
}

// SetOptions hot-swaps the coordinator's thresholds, e.g. on a profile change.
func (c *Coordinator) SetOptions(opts Options) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts = opts
}

func (c *Coordinator) options() Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}

// EnrollInput is the request shape for Enroll.
type EnrollInput struct {
	ExternalID  string
	DisplayName string
	ClientRef   string
	Image       []byte
}

// EnrollResult is returned on successful enrollment.
type EnrollResult struct {
	UserID       uint64
	Descriptor   descriptor.Descriptor
	Confidence   float32
	Box          embedder.Box
	ProcessingMs float64
}

// Enroll runs the embedder in REGISTER mode, validates the detected face,
// persists the user, and upserts the vector index.
func (c *Coordinator) Enroll(ctx context.Context, in EnrollInput) (EnrollResult, error) {
	start := time.Now()
	opts := c.options()

	det, err := c.embedder.DetectAndEmbed(ctx, in.Image, embedder.RegisterMode)
	if err != nil {
		c.recordRegistration(string(apierr.KindOf(err)), start)
		return EnrollResult{}, err
	}

	if err := validateFace(det, opts); err != nil {
		c.recordRegistration(string(apierr.KindOf(err)), start)
		return EnrollResult{}, err
	}

	confidence := computeConfidence(det)

	userID, err := c.store.Create(ctx, store.User{
		ExternalID:  in.ExternalID,
		DisplayName: in.DisplayName,
		ClientRef:   in.ClientRef,
		Descriptor:  det.Descriptor,
		Confidence:  confidence,
	})
	if err != nil {
		// Persistence failures are fatal to the calling operation, per the
		// spec's propagation policy — the descriptor store is authoritative.
		c.recordRegistration(string(apierr.KindOf(err)), start)
		return EnrollResult{}, err
	}

	c.syncIndexBestEffort(userID, det.Descriptor, index.Entry{
		ExternalID:  in.ExternalID,
		DisplayName: in.DisplayName,
		ClientRef:   in.ClientRef,
	}, "add")

	c.appendLogBestEffort(ctx, &userID, "enroll", "success", nil)
	c.recordRegistration("success", start)

	return EnrollResult{
		UserID:       userID,
		Descriptor:   det.Descriptor,
		Confidence:   confidence,
		Box:          det.Box,
		ProcessingMs: msSince(start),
	}, nil
}

// UpdateInput is the request shape for Update.
type UpdateInput struct {
	ExternalID string
	Image      []byte
}

// Update replaces an existing user's descriptor, the way Enroll creates one.
func (c *Coordinator) Update(ctx context.Context, in UpdateInput) (EnrollResult, error) {
	start := time.Now()
	opts := c.options()

	existing, err := c.store.FindByExternalID(ctx, in.ExternalID)
	if err != nil {
		c.recordRegistration(string(apierr.KindOf(err)), start)
		return EnrollResult{}, err
	}

	det, err := c.embedder.DetectAndEmbed(ctx, in.Image, embedder.RegisterMode)
	if err != nil {
		c.recordRegistration(string(apierr.KindOf(err)), start)
		return EnrollResult{}, err
	}
	if err := validateFace(det, opts); err != nil {
		c.recordRegistration(string(apierr.KindOf(err)), start)
		return EnrollResult{}, err
	}

	confidence := computeConfidence(det)
	now := time.Now().UTC()
	if err := c.store.UpdateDescriptor(ctx, existing.UserID, det.Descriptor, confidence, now); err != nil {
		c.recordRegistration(string(apierr.KindOf(err)), start)
		return EnrollResult{}, err
	}

	c.syncIndexBestEffort(existing.UserID, det.Descriptor, index.Entry{
		ExternalID:  existing.ExternalID,
		DisplayName: existing.DisplayName,
		ClientRef:   existing.ClientRef,
	}, "update")

	c.appendLogBestEffort(ctx, &existing.UserID, "update", "success", nil)
	c.recordRegistration("success", start)

	return EnrollResult{
		UserID:       existing.UserID,
		Descriptor:   det.Descriptor,
		Confidence:   confidence,
		Box:          det.Box,
		ProcessingMs: msSince(start),
	}, nil
}

// IdentifyInput is the request shape for Identify. ActiveUsers, when
// supplied, is the injected snapshot the linear-fallback path uses when the
// ANN index is empty or unavailable — see the design note on accepting a
// snapshot so the fallback works in tests without a live store.
type IdentifyInput struct {
	Image       []byte
	ActiveUsers []store.User
}

// MatchSummary describes a successful identification.
type MatchSummary struct {
	UserID      uint64
	ExternalID  string
	DisplayName string
	ClientRef   string
	Distance    float64
	Similarity  int
}

// IdentifyResult is always returned on a successful call; Match is nil when
// no enrolled user matched within the operating threshold.
type IdentifyResult struct {
	Match        *MatchSummary
	ProcessingMs float64
	Backend      string
}

type cachedIdentifyResult struct {
	Match   *MatchSummary
	Backend string
}

// Identify runs cache lookup, detection, ANN search, and (if the index is
// unusable) a linear fallback over the injected snapshot.
func (c *Coordinator) Identify(ctx context.Context, in IdentifyInput) (IdentifyResult, error) {
	start := time.Now()
	opts := c.options()

	cacheKey := cache.FingerprintKey(in.Image)
	if opts.CacheEnabled && c.cache != nil {
		if raw, ok := c.cache.Get(ctx, cacheKey); ok {
			var cached cachedIdentifyResult
			if err := json.Unmarshal(raw, &cached); err == nil {
				if c.metrics != nil {
					c.metrics.RecordCacheHit()
				}
				return IdentifyResult{Match: cached.Match, Backend: cached.Backend, ProcessingMs: msSince(start)}, nil
			}
		}
		if c.metrics != nil {
			c.metrics.RecordCacheMiss()
		}
	}

	det, err := c.embedder.DetectAndEmbed(ctx, in.Image, embedder.RecognizeMode)
	if err != nil {
		c.recordRecognition("error", start)
		return IdentifyResult{}, err
	}

	match, backend := c.search(ctx, det.Descriptor, in.ActiveUsers, opts)

	if match != nil && opts.CacheEnabled && c.cache != nil {
		if raw, err := json.Marshal(cachedIdentifyResult{Match: match, Backend: backend}); err == nil {
			c.cache.Set(ctx, cacheKey, raw, opts.CacheTTL)
		}
	}

	c.updateStats(match != nil, msSince(start))
	status := "not_found"
	if match != nil {
		status = "match"
		if match.UserID != 0 {
			c.appendLogBestEffort(ctx, &match.UserID, "identify", status, &match.Distance)
			go c.touchRecognitionBestEffort(match.UserID)
		}
	} else {
		c.appendLogBestEffort(ctx, nil, "identify", status, nil)
	}
	c.recordRecognition(status, start)

	return IdentifyResult{Match: match, Backend: backend, ProcessingMs: msSince(start)}, nil
}

// search tries the ANN index first, then falls back to a linear scan over
// the caller-supplied active-user snapshot, the safety net the design
// notes describe for when the index is empty or unavailable.
func (c *Coordinator) search(ctx context.Context, desc descriptor.Descriptor, activeUsers []store.User, opts Options) (*MatchSummary, string) {
	if c.index != nil && c.index.Size() > 0 {
		searchStart := time.Now()
		results, err := c.index.Search(desc, 5, opts.ConfidenceThreshold)
		if c.metrics != nil {
			c.metrics.RecordHNSWSearch(msSince(searchStart) / 1000)
		}
		if err == nil {
			for _, r := range results {
				// The search already filters by threshold; re-check here as
				// defense in depth per the spec.
				if r.Distance <= opts.ConfidenceThreshold {
					return &MatchSummary{
						UserID:      r.UserID,
						ExternalID:  r.ExternalID,
						DisplayName: r.DisplayName,
						ClientRef:   r.ClientRef,
						Distance:    r.Distance,
						Similarity:  r.Similarity,
					}, "hnsw"
				}
			}
			return nil, "hnsw"
		}
		fmt.Printf("recognition: index search failed, falling back to linear scan: %v\n", err)
	}

	if len(activeUsers) == 0 {
		return nil, "none"
	}
	return linearFallback(desc, activeUsers, opts.ConfidenceThreshold), "linear"
}

// linearFallback computes Euclidean distance against every active user's
// descriptor in parallel and returns the closest one under threshold.
func linearFallback(query descriptor.Descriptor, users []store.User, threshold float64) *MatchSummary {
	var (
		mu   sync.Mutex
		best *MatchSummary
		wg   sync.WaitGroup
	)

	for i := range users {
		u := users[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			d := descriptor.EuclideanL2(query, u.Descriptor)
			if d >= threshold {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if best == nil || d < best.Distance {
				best = &MatchSummary{
					UserID:      u.UserID,
					ExternalID:  u.ExternalID,
					DisplayName: u.DisplayName,
					ClientRef:   u.ClientRef,
					Distance:    d,
					Similarity:  descriptor.Similarity(d),
				}
			}
		}()
	}
	wg.Wait()
	return best
}

// SyncIndex is an idempotent façade for code paths that reconcile the index
// without going through Enroll/Update. Failures are logged and swallowed.
func (c *Coordinator) SyncIndex(userID uint64, desc descriptor.Descriptor, meta index.Entry, op string) {
	c.syncIndexBestEffort(userID, desc, meta, op)
}

func (c *Coordinator) syncIndexBestEffort(userID uint64, desc descriptor.Descriptor, meta index.Entry, op string) {
	if c.index == nil {
		return
	}
	var err error
	switch op {
	case "add":
		err = c.index.AddUser(userID, desc, meta)
	case "update":
		err = c.index.UpdateUser(userID, desc, meta)
	case "remove":
		err = c.index.RemoveUser(userID)
	default:
		err = fmt.Errorf("unknown sync op %q", op)
	}
	if err != nil {
		fmt.Printf("recognition: index sync (%s) failed for user %d: %v\n", op, userID, err)
	}
	if c.metrics != nil {
		c.metrics.SetHNSWIndexSize(c.index.Size())
	}
}

func (c *Coordinator) appendLogBestEffort(ctx context.Context, userID *uint64, event, outcome string, distance *float64) {
	if c.store == nil {
		return
	}
	evt := store.LogEvent{UserID: userID, Event: event, Outcome: outcome, Distance: distance}
	if err := c.store.AppendLog(ctx, evt); err != nil {
		fmt.Printf("recognition: appendLog failed: %v\n", err)
	}
}

func (c *Coordinator) touchRecognitionBestEffort(userID uint64) {
	if c.store == nil {
		return
	}
	if err := c.store.TouchRecognition(context.Background(), userID, time.Now().UTC()); err != nil {
		fmt.Printf("recognition: touchRecognition failed: %v\n", err)
	}
}

func (c *Coordinator) updateStats(success bool, processingMs float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Total++
	if success {
		c.stats.Success++
	}
	n := float64(c.stats.Total)
	c.stats.AvgProcessingMs += (processingMs - c.stats.AvgProcessingMs) / n
}

// Stats returns a snapshot of the coordinator's rolling counters.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Coordinator) recordRecognition(status string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordRecognition(status, "recognize", msSince(start)/1000)
	}
}

func (c *Coordinator) recordRegistration(status string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordRegistration(status, msSince(start)/1000)
	}
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

func computeConfidence(det embedder.Result) float32 {
	landmarksFactor := float32(0.7)
	if det.HasLandmarks {
		landmarksFactor = 0.9
	}
	raw := det.DetectionScore * landmarksFactor
	return float32(math.Round(float64(raw)*100) / 100)
}

func validateFace(det embedder.Result, opts Options) error {
	if det.Box.W < opts.MinFaceSize || det.Box.H < opts.MinFaceSize {
		return apierr.New(apierr.FaceTooSmall, fmt.Sprintf("face %.0fx%.0f smaller than minimum %.0f", det.Box.W, det.Box.H, opts.MinFaceSize))
	}
	if det.Box.W > opts.MaxFaceSize || det.Box.H > opts.MaxFaceSize {
		return apierr.New(apierr.FaceTooLarge, fmt.Sprintf("face %.0fx%.0f larger than maximum %.0f", det.Box.W, det.Box.H, opts.MaxFaceSize))
	}
	if det.DetectionScore < opts.DetectionConfidence {
		return apierr.New(apierr.LowQuality, fmt.Sprintf("detection score %.2f below minimum %.2f", det.DetectionScore, opts.DetectionConfidence))
	}
	return nil
}
