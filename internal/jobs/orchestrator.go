package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/storylingo/backend/internal/blobstore"
	"github.com/storylingo/backend/internal/logger"
	"github.com/storylingo/backend/internal/trigger"
)

const (
	defaultExpectedChunks = 10
	maxPollAttempts       = 60
	pollInterval          = 10 * time.Second
)

// OrchestratorRunner waits for a story's chunks to appear, then enqueues the
// final-assembly trigger. It measures progress purely by counting chunk
// blobs: a chunk that failed after claim looks identical to one not yet
// started, so a shortfall ends in a timeout, never a partial assembly.
type OrchestratorRunner struct {
	log   *logger.Logger
	store blobstore.Store
	queue *trigger.Queue

	// sleep is swapped out by tests; production uses time.Sleep.
	sleep func(time.Duration)
}

func NewOrchestratorRunner(store blobstore.Store, queue *trigger.Queue, log *logger.Logger) *OrchestratorRunner {
	return &OrchestratorRunner{
		log:   log.With("job", trigger.JobOrchestrator),
		store: store,
		queue: queue,
		sleep: time.Sleep,
	}
}

// Run polls chunk count for the trigger's story, bounded to 60 attempts with
// a 10-second interval (10-minute ceiling). On completion it enqueues exactly
// one final-assembly trigger. On timeout it returns nil: a stuck story is a
// product-level condition, not a poller failure, and needs manual re-trigger.
func (r *OrchestratorRunner) Run(ctx context.Context, trig *trigger.Trigger) error {
	expected := defaultExpectedChunks
	if trig.ExpectedChunks != nil && *trig.ExpectedChunks > 0 {
		expected = *trig.ExpectedChunks
	}

	log := r.log.With("story_id", trig.StoryID, "expected_chunks", expected)
	log.Info("Orchestration started")

	count := 0
	for attempt := 0; attempt < maxPollAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var err error
		count, err = r.countChunks(ctx, trig.StoryID)
		if err != nil {
			// Transient listing failures burn an attempt rather than abort.
			log.Warn("Chunk count failed", "attempt", attempt+1, "error", err)
		} else {
			log.Debug("Chunk progress", "completed", count)
			if count >= expected {
				id, err := r.queue.Enqueue(ctx, trigger.JobFinalAssembly, trigger.Trigger{StoryID: trig.StoryID})
				if err != nil {
					return fmt.Errorf("enqueue final assembly for story %s: %w", trig.StoryID, err)
				}
				log.Info("All chunks completed, final assembly scheduled", "trigger_id", id, "attempts", attempt+1)
				return nil
			}
		}

		r.sleep(pollInterval)
	}

	log.Warn("Orchestration timed out", "completed", count)
	return nil
}

func (r *OrchestratorRunner) countChunks(ctx context.Context, storyID string) (int, error) {
	keys, err := r.store.List(ctx, blobstore.ChunkPrefix(storyID))
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}
