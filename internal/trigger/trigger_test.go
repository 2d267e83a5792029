package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/storylingo/backend/internal/blobstore"
	"github.com/storylingo/backend/internal/logger"
)

func testLogger() *logger.Logger {
	return &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func seedScheduled(t *testing.T, store *blobstore.MemoryStore, jobName, triggerID, storyID string) {
	t.Helper()
	trig := Trigger{
		StoryID:   storyID,
		JobName:   jobName,
		TriggerID: triggerID,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(trig)
	if err != nil {
		t.Fatalf("marshal trigger: %v", err)
	}
	if err := store.Upload(context.Background(), blobstore.ScheduledTriggerKey(jobName, triggerID), data); err != nil {
		t.Fatalf("seed trigger: %v", err)
	}
}

func TestEnqueueWritesScheduledTrigger(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	q := NewQueue(store, testLogger())

	id, err := q.Enqueue(ctx, JobManifest, Trigger{StoryID: "story-1"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if len(id) != 8 {
		t.Fatalf("trigger id %q: want 8 hex chars", id)
	}

	keys, err := q.ListScheduled(ctx, JobManifest)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("scheduled triggers = %d, want 1", len(keys))
	}

	data, err := store.Download(ctx, keys[0])
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	var trig Trigger
	if err := json.Unmarshal(data, &trig); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if trig.StoryID != "story-1" || trig.JobName != JobManifest || trig.TriggerID != id {
		t.Fatalf("stored trigger = %+v", trig)
	}
	if trig.Timestamp.IsZero() {
		t.Fatal("timestamp not assigned")
	}
}

func TestEnqueueRejectsMissingStoryID(t *testing.T) {
	q := NewQueue(blobstore.NewMemoryStore(), testLogger())
	if _, err := q.Enqueue(context.Background(), JobManifest, Trigger{}); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestClaimFirstIsExclusive(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	q := NewQueue(store, testLogger())

	if _, err := q.Enqueue(ctx, JobChunk, Trigger{StoryID: "story-1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	first, err := q.ClaimFirst(ctx, JobChunk)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if first == nil {
		t.Fatal("first claim returned nil")
	}

	second, err := q.ClaimFirst(ctx, JobChunk)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if second != nil {
		t.Fatalf("trigger %s claimed twice", second.TriggerID)
	}

	inProgress, err := store.List(ctx, blobstore.InProgressTriggerPrefix(JobChunk))
	if err != nil {
		t.Fatalf("list in-progress: %v", err)
	}
	if len(inProgress) != 1 {
		t.Fatalf("in-progress = %d entries, want 1", len(inProgress))
	}

	if err := q.Complete(ctx, JobChunk, first.TriggerID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("store still holds %d objects after complete", store.Len())
	}
}

// vanishingStore simulates losing the claim race: the scheduled blob is gone
// by the time the delete lands, as if another consumer removed it first.
type vanishingStore struct {
	*blobstore.MemoryStore
	scheduledKey string
}

func (s *vanishingStore) Delete(ctx context.Context, key string) error {
	if key == s.scheduledKey {
		_ = s.MemoryStore.Delete(ctx, key)
		return fmt.Errorf("object %q: %w", key, blobstore.ErrNotExist)
	}
	return s.MemoryStore.Delete(ctx, key)
}

func TestClaimLostRaceKeepsInProgressRecord(t *testing.T) {
	ctx := context.Background()
	mem := blobstore.NewMemoryStore()
	seedScheduled(t, mem, JobChunk, "00000001", "story-1")

	scheduledKey := blobstore.ScheduledTriggerKey(JobChunk, "00000001")
	inProgressKey := blobstore.InProgressTriggerKey(JobChunk, "00000001")

	// The winner already staged its in-progress record.
	winnerCopy, err := mem.Download(ctx, scheduledKey)
	if err != nil {
		t.Fatalf("read seeded trigger: %v", err)
	}
	if err := mem.Upload(ctx, inProgressKey, winnerCopy); err != nil {
		t.Fatalf("stage winner claim: %v", err)
	}

	q := NewQueue(&vanishingStore{MemoryStore: mem, scheduledKey: scheduledKey}, testLogger())
	trig, err := q.ClaimFirst(ctx, JobChunk)
	if err != nil {
		t.Fatalf("lost race claim: %v", err)
	}
	if trig != nil {
		t.Fatalf("lost race yielded a claim: %+v", trig)
	}
	if exists, _ := mem.Exists(ctx, inProgressKey); !exists {
		t.Fatal("winner's in-progress record was erased by the race loser")
	}
}

func TestCompleteToleratesMissingClaim(t *testing.T) {
	q := NewQueue(blobstore.NewMemoryStore(), testLogger())
	if err := q.Complete(context.Background(), JobChunk, "deadbeef"); err != nil {
		t.Fatalf("complete on missing claim: %v", err)
	}
}

func TestClaimAtFollowsSortedOrder(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	q := NewQueue(store, testLogger())

	// Seed out of lexical order; ordinal assignment must follow sorted ids.
	ids := []string{"0000000c", "00000003", "0000000a", "00000001", "00000007"}
	for i, id := range ids {
		seedScheduled(t, store, JobChunk, id, fmt.Sprintf("story-%d", i))
	}
	sorted := []string{"00000001", "00000003", "00000007", "0000000a", "0000000c"}

	trig, err := q.ClaimAt(ctx, JobChunk, 4)
	if err != nil {
		t.Fatalf("claim ordinal 4: %v", err)
	}
	if trig == nil || trig.TriggerID != sorted[4] {
		t.Fatalf("ordinal 4 claimed %+v, want id %s", trig, sorted[4])
	}

	trig, err = q.ClaimAt(ctx, JobChunk, 0)
	if err != nil {
		t.Fatalf("claim ordinal 0: %v", err)
	}
	if trig == nil || trig.TriggerID != sorted[0] {
		t.Fatalf("ordinal 0 claimed %+v, want id %s", trig, sorted[0])
	}

	// Three remain; an ordinal beyond the listing is a clean no-op.
	trig, err = q.ClaimAt(ctx, JobChunk, 3)
	if err != nil {
		t.Fatalf("claim beyond listing: %v", err)
	}
	if trig != nil {
		t.Fatalf("ordinal beyond listing claimed %+v", trig)
	}
}

func TestFiveReplicasClaimDistinctTriggers(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	q := NewQueue(store, testLogger())

	for i := 0; i < 5; i++ {
		seedScheduled(t, store, JobChunk, fmt.Sprintf("%08x", i+1), fmt.Sprintf("story-%d", i))
	}

	// Replicas claim highest ordinal first so earlier claims cannot shift the
	// listing under later ones.
	seen := map[string]bool{}
	for ordinal := 4; ordinal >= 0; ordinal-- {
		trig, err := q.ClaimAt(ctx, JobChunk, ordinal)
		if err != nil {
			t.Fatalf("replica %d: %v", ordinal, err)
		}
		if trig == nil {
			t.Fatalf("replica %d found no work", ordinal)
		}
		if seen[trig.TriggerID] {
			t.Fatalf("trigger %s claimed by two replicas", trig.TriggerID)
		}
		seen[trig.TriggerID] = true
	}
	if len(seen) != 5 {
		t.Fatalf("claimed %d distinct triggers, want 5", len(seen))
	}
}

func TestClaimRejectsMalformedPayload(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	q := NewQueue(store, testLogger())

	key := blobstore.ScheduledTriggerKey(JobManifest, "0badf00d")
	if err := store.Upload(ctx, key, []byte("not json")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := q.ClaimFirst(ctx, JobManifest); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}

	// Valid JSON missing required fields is just as fatal.
	if err := store.Upload(ctx, key, []byte(`{"job_name":"manifest-job"}`)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := q.ClaimFirst(ctx, JobManifest); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestClaimFallsBackToLegacyPrefix(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	q := NewQueue(store, testLogger())

	trig := Trigger{StoryID: "story-legacy", JobName: JobManifest, TriggerID: "00000001", Timestamp: time.Now().UTC()}
	data, _ := json.Marshal(trig)
	legacyKey := blobstore.LegacyTriggerPrefix(JobManifest) + "00000001.json"
	if err := store.Upload(ctx, legacyKey, data); err != nil {
		t.Fatalf("seed legacy: %v", err)
	}

	claimed, err := q.ClaimFirst(ctx, JobManifest)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil || claimed.StoryID != "story-legacy" {
		t.Fatalf("claimed = %+v", claimed)
	}
	if exists, _ := store.Exists(ctx, legacyKey); exists {
		t.Fatal("legacy trigger not consumed")
	}
}

func TestSweepStaleRequeuesOrphans(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	q := NewQueue(store, testLogger())

	stale := Trigger{
		StoryID:   "story-stale",
		JobName:   JobChunk,
		TriggerID: "00000001",
		Timestamp: time.Now().UTC().Add(-2 * time.Hour),
	}
	fresh := Trigger{
		StoryID:   "story-fresh",
		JobName:   JobChunk,
		TriggerID: "00000002",
		Timestamp: time.Now().UTC(),
	}
	for _, trig := range []Trigger{stale, fresh} {
		data, _ := json.Marshal(trig)
		if err := store.Upload(ctx, blobstore.InProgressTriggerKey(JobChunk, trig.TriggerID), data); err != nil {
			t.Fatalf("seed in-progress: %v", err)
		}
	}

	requeued, err := q.SweepStale(ctx, JobChunk, 30*time.Minute)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if requeued != 1 {
		t.Fatalf("requeued = %d, want 1", requeued)
	}

	if exists, _ := store.Exists(ctx, blobstore.ScheduledTriggerKey(JobChunk, "00000001")); !exists {
		t.Fatal("stale trigger not back on scheduled prefix")
	}
	if exists, _ := store.Exists(ctx, blobstore.InProgressTriggerKey(JobChunk, "00000001")); exists {
		t.Fatal("stale in-progress copy not removed")
	}
	if exists, _ := store.Exists(ctx, blobstore.InProgressTriggerKey(JobChunk, "00000002")); !exists {
		t.Fatal("fresh in-progress entry should be untouched")
	}
}

func TestClaimFirstEmptyQueue(t *testing.T) {
	q := NewQueue(blobstore.NewMemoryStore(), testLogger())
	trig, err := q.ClaimFirst(context.Background(), JobFinalAssembly)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if trig != nil {
		t.Fatalf("claimed %+v from empty queue", trig)
	}
}
