package trigger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/storylingo/backend/internal/blobstore"
	"github.com/storylingo/backend/internal/logger"
)

// Job names, one per runner.
const (
	JobManifest      = "manifest-job"
	JobChunk         = "chunk-job"
	JobOrchestrator  = "orchestrator-job"
	JobFinalAssembly = "final-assembly-job"
	JobCover         = "cover-job"
)

// ErrMalformed marks a trigger blob whose payload cannot be used. Pollers
// treat it as a non-zero-exit condition rather than silently defaulting
// missing fields.
var ErrMalformed = errors.New("malformed trigger payload")

// Trigger is one unit of pending work. The blob key
// triggers/<job_name>-scheduled/<trigger_id>.json is its sole identity.
type Trigger struct {
	StoryID   string    `json:"story_id"`
	JobName   string    `json:"job_name"`
	TriggerID string    `json:"trigger_id"`
	Timestamp time.Time `json:"timestamp"`

	// Chunk job payload: either a single chunk or an inclusive chapter range.
	ChunkID      *int   `json:"chunk_id,omitempty"`
	ChapterStart *int   `json:"chapter_start,omitempty"`
	ChapterEnd   *int   `json:"chapter_end,omitempty"`
	BatchID      string `json:"batch_id,omitempty"`

	// Orchestrator payload.
	ExpectedChunks *int `json:"expected_chunks,omitempty"`
}

// Queue implements the trigger protocol over a blob store. Claims are a
// two-phase move: the trigger is copied to the in-progress prefix and deleted
// from the scheduled prefix before the runner executes, and retired from
// in-progress only on success. SweepStale requeues in-progress entries left
// behind by a crashed runner.
type Queue struct {
	log   *logger.Logger
	store blobstore.Store
}

func NewQueue(store blobstore.Store, log *logger.Logger) *Queue {
	return &Queue{log: log.With("component", "TriggerQueue"), store: store}
}

// Enqueue writes trig under the scheduled prefix for jobName and returns the
// assigned trigger id. Collisions inside the 32-bit id space overwrite; the
// odds are negligible and the write-ack is the durability signal.
func (q *Queue) Enqueue(ctx context.Context, jobName string, trig Trigger) (string, error) {
	if trig.StoryID == "" {
		return "", fmt.Errorf("enqueue %s: %w: missing story_id", jobName, ErrMalformed)
	}
	trig.JobName = jobName
	trig.TriggerID = NewTriggerID()
	trig.Timestamp = time.Now().UTC()

	data, err := json.Marshal(trig)
	if err != nil {
		return "", fmt.Errorf("marshal trigger: %w", err)
	}
	key := blobstore.ScheduledTriggerKey(jobName, trig.TriggerID)
	if err := q.store.Upload(ctx, key, data); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", jobName, err)
	}
	q.log.Info("Trigger enqueued", "job_name", jobName, "trigger_id", trig.TriggerID, "story_id", trig.StoryID)
	return trig.TriggerID, nil
}

// ClaimFirst claims the first trigger in sorted listing order, or nil when
// there is no work. Falls back to the legacy unscheduled prefix while the
// prefix migration is in flight.
func (q *Queue) ClaimFirst(ctx context.Context, jobName string) (*Trigger, error) {
	keys, err := q.listScheduled(ctx, jobName)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	return q.claim(ctx, jobName, keys[0])
}

// ClaimAt claims the trigger at the given replica ordinal in sorted listing
// order. Returns nil when the ordinal is beyond the listing, which a chunk
// replica treats as "no work for me this cycle".
func (q *Queue) ClaimAt(ctx context.Context, jobName string, ordinal int) (*Trigger, error) {
	if ordinal < 0 {
		return nil, fmt.Errorf("claim %s: negative replica ordinal %d", jobName, ordinal)
	}
	keys, err := q.listScheduled(ctx, jobName)
	if err != nil {
		return nil, err
	}
	if ordinal >= len(keys) {
		return nil, nil
	}
	return q.claim(ctx, jobName, keys[ordinal])
}

// ListScheduled reports how many triggers are pending for jobName.
func (q *Queue) ListScheduled(ctx context.Context, jobName string) ([]string, error) {
	return q.listScheduled(ctx, jobName)
}

// Complete retires a claimed trigger. Missing in-progress entries are fine;
// a sweep may already have requeued the work.
func (q *Queue) Complete(ctx context.Context, jobName, triggerID string) error {
	err := q.store.Delete(ctx, blobstore.InProgressTriggerKey(jobName, triggerID))
	if err != nil && !errors.Is(err, blobstore.ErrNotExist) {
		return fmt.Errorf("complete %s/%s: %w", jobName, triggerID, err)
	}
	return nil
}

// SweepStale moves in-progress triggers older than olderThan back to the
// scheduled prefix and reports how many were requeued.
func (q *Queue) SweepStale(ctx context.Context, jobName string, olderThan time.Duration) (int, error) {
	keys, err := q.store.List(ctx, blobstore.InProgressTriggerPrefix(jobName))
	if err != nil {
		return 0, fmt.Errorf("sweep %s: %w", jobName, err)
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	requeued := 0
	for _, key := range keys {
		data, err := q.store.Download(ctx, key)
		if err != nil {
			q.log.Warn("Sweep could not read in-progress trigger", "key", key, "error", err)
			continue
		}
		var trig Trigger
		if err := json.Unmarshal(data, &trig); err != nil || trig.TriggerID == "" {
			q.log.Warn("Sweep found unreadable in-progress trigger, dropping", "key", key)
			_ = q.store.Delete(ctx, key)
			continue
		}
		if trig.Timestamp.After(cutoff) {
			continue
		}
		scheduled := blobstore.ScheduledTriggerKey(jobName, trig.TriggerID)
		if err := q.store.Upload(ctx, scheduled, data); err != nil {
			q.log.Warn("Sweep requeue failed", "trigger_id", trig.TriggerID, "error", err)
			continue
		}
		if err := q.store.Delete(ctx, key); err != nil && !errors.Is(err, blobstore.ErrNotExist) {
			q.log.Warn("Sweep could not delete in-progress copy", "key", key, "error", err)
		}
		q.log.Info("Requeued stale trigger", "job_name", jobName, "trigger_id", trig.TriggerID)
		requeued++
	}
	return requeued, nil
}

func (q *Queue) listScheduled(ctx context.Context, jobName string) ([]string, error) {
	keys, err := q.store.List(ctx, blobstore.ScheduledTriggerPrefix(jobName))
	if err != nil {
		return nil, fmt.Errorf("list %s triggers: %w", jobName, err)
	}
	if len(keys) == 0 {
		keys, err = q.store.List(ctx, blobstore.LegacyTriggerPrefix(jobName))
		if err != nil {
			return nil, fmt.Errorf("list legacy %s triggers: %w", jobName, err)
		}
		// Old writers sometimes nested payloads under the legacy prefix;
		// only direct children are trigger blobs.
		direct := keys[:0]
		legacy := blobstore.LegacyTriggerPrefix(jobName)
		for _, k := range keys {
			rest := strings.TrimPrefix(k, legacy)
			if !strings.Contains(rest, "/") {
				direct = append(direct, k)
			}
		}
		keys = direct
	}
	// The store contract already sorts, but ordinal assignment must never
	// depend on a particular implementation honoring it.
	sort.Strings(keys)
	return keys, nil
}

// claim performs the two-phase move: copy to in-progress, then delete from
// scheduled. Once the scheduled blob is gone the work belongs exclusively to
// this execution.
func (q *Queue) claim(ctx context.Context, jobName, key string) (*Trigger, error) {
	data, err := q.store.Download(ctx, key)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotExist) {
			// Another consumer won the race for this key.
			return nil, nil
		}
		return nil, fmt.Errorf("read trigger %q: %w", key, err)
	}

	var trig Trigger
	if err := json.Unmarshal(data, &trig); err != nil {
		return nil, fmt.Errorf("trigger %q: %w: %v", key, ErrMalformed, err)
	}
	if trig.StoryID == "" || trig.TriggerID == "" {
		return nil, fmt.Errorf("trigger %q: %w: missing story_id or trigger_id", key, ErrMalformed)
	}

	inProgress := blobstore.InProgressTriggerKey(jobName, trig.TriggerID)
	if err := q.store.Upload(ctx, inProgress, data); err != nil {
		return nil, fmt.Errorf("stage trigger %q: %w", key, err)
	}
	if err := q.store.Delete(ctx, key); err != nil {
		if errors.Is(err, blobstore.ErrNotExist) {
			// Lost the race after staging. The in-progress key is shared with
			// the winner, so it must stay: it is the winner's crash-recovery
			// record. Our identical upload was a no-op.
			return nil, nil
		}
		return nil, fmt.Errorf("claim trigger %q: %w", key, err)
	}

	q.log.Info("Trigger claimed",
		"job_name", jobName,
		"trigger_id", trig.TriggerID,
		"story_id", trig.StoryID,
	)
	return &trig, nil
}

// NewTriggerID returns an 8-hex-character random id.
func NewTriggerID() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is unrecoverable in practice; fall back to a
		// timestamp-derived id rather than panicking in a batch job.
		return fmt.Sprintf("%08x", time.Now().UnixNano()&0xffffffff)
	}
	return hex.EncodeToString(buf)
}
