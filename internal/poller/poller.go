package poller

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/storylingo/backend/internal/jobs"
	"github.com/storylingo/backend/internal/logger"
	"github.com/storylingo/backend/internal/trigger"
)

// staleClaimAge is how long an in-progress trigger may sit before a poll
// cycle requeues it as orphaned.
const staleClaimAge = 30 * time.Minute

// Pollers run one cycle per external scheduler invocation: list the
// scheduled prefix, claim per the job's rule, run the matching runner
// synchronously, retire the claim on success. An empty listing is a clean
// no-op, not an error.
type Pollers struct {
	log      *logger.Logger
	queue    *trigger.Queue
	manifest *jobs.ManifestRunner
	chunk    *jobs.ChunkRunner
	orch     *jobs.OrchestratorRunner
	assembly *jobs.FinalAssemblyRunner
	cover    *jobs.CoverRunner
}

func New(
	queue *trigger.Queue,
	manifest *jobs.ManifestRunner,
	chunk *jobs.ChunkRunner,
	orch *jobs.OrchestratorRunner,
	assembly *jobs.FinalAssemblyRunner,
	cover *jobs.CoverRunner,
	log *logger.Logger,
) *Pollers {
	return &Pollers{
		log:      log.With("component", "Poller"),
		queue:    queue,
		manifest: manifest,
		chunk:    chunk,
		orch:     orch,
		assembly: assembly,
		cover:    cover,
	}
}

// PollManifest claims and runs at most one manifest trigger. A runner
// failure is fatal to the cycle; the claim stays in-progress for the sweeper.
func (p *Pollers) PollManifest(ctx context.Context) error {
	p.sweep(ctx, trigger.JobManifest)

	trig, err := p.queue.ClaimFirst(ctx, trigger.JobManifest)
	if err != nil {
		return err
	}
	if trig == nil {
		p.log.Info("No manifest triggers found")
		return nil
	}

	results, err := p.manifest.Run(ctx, trig.StoryID)
	if err != nil {
		return fmt.Errorf("manifest job for story %s: %w", trig.StoryID, err)
	}
	if failed := jobs.FanoutFailures(results); failed > 0 {
		// Best-effort fan-out: the orchestrator will time out on any chunks
		// that never got a trigger. Surfaced here so operators can re-trigger.
		p.log.Warn("Manifest fan-out incomplete", "story_id", trig.StoryID, "failed_items", failed)
	}
	return p.queue.Complete(ctx, trigger.JobManifest, trig.TriggerID)
}

// PollChunk claims the trigger at this replica's ordinal and runs it.
// Ordinals beyond the listing mean no work for this replica.
func (p *Pollers) PollChunk(ctx context.Context) error {
	p.sweep(ctx, trigger.JobChunk)

	ordinal := ReplicaIndex()
	trig, err := p.queue.ClaimAt(ctx, trigger.JobChunk, ordinal)
	if err != nil {
		return err
	}
	if trig == nil {
		p.log.Info("No chunk trigger for replica", "replica_index", ordinal)
		return nil
	}

	if err := p.chunk.Run(ctx, trig); err != nil {
		return fmt.Errorf("chunk job for story %s: %w", trig.StoryID, err)
	}
	return p.queue.Complete(ctx, trigger.JobChunk, trig.TriggerID)
}

// PollOrchestrator iterates every listed orchestrator trigger, catching
// per-trigger failures so one bad trigger does not block the rest.
func (p *Pollers) PollOrchestrator(ctx context.Context) error {
	p.sweep(ctx, trigger.JobOrchestrator)

	for {
		trig, err := p.queue.ClaimFirst(ctx, trigger.JobOrchestrator)
		if err != nil {
			return err
		}
		if trig == nil {
			return nil
		}

		if err := p.orch.Run(ctx, trig); err != nil {
			p.log.Error("Orchestrator job failed, continuing", "story_id", trig.StoryID, "trigger_id", trig.TriggerID, "error", err)
			continue
		}
		if err := p.queue.Complete(ctx, trigger.JobOrchestrator, trig.TriggerID); err != nil {
			p.log.Warn("Could not retire orchestrator trigger", "trigger_id", trig.TriggerID, "error", err)
		}
	}
}

// PollFinalAssembly claims and runs at most one final-assembly trigger.
func (p *Pollers) PollFinalAssembly(ctx context.Context) error {
	p.sweep(ctx, trigger.JobFinalAssembly)

	trig, err := p.queue.ClaimFirst(ctx, trigger.JobFinalAssembly)
	if err != nil {
		return err
	}
	if trig == nil {
		p.log.Info("No final-assembly triggers found")
		return nil
	}

	if err := p.assembly.Run(ctx, trig.StoryID); err != nil {
		return fmt.Errorf("final assembly for story %s: %w", trig.StoryID, err)
	}
	return p.queue.Complete(ctx, trigger.JobFinalAssembly, trig.TriggerID)
}

// PollCover claims and runs at most one cover trigger.
func (p *Pollers) PollCover(ctx context.Context) error {
	p.sweep(ctx, trigger.JobCover)

	trig, err := p.queue.ClaimFirst(ctx, trigger.JobCover)
	if err != nil {
		return err
	}
	if trig == nil {
		p.log.Info("No cover triggers found")
		return nil
	}

	if err := p.cover.Run(ctx, trig.StoryID); err != nil {
		return fmt.Errorf("cover job for story %s: %w", trig.StoryID, err)
	}
	return p.queue.Complete(ctx, trigger.JobCover, trig.TriggerID)
}

func (p *Pollers) sweep(ctx context.Context, jobName string) {
	requeued, err := p.queue.SweepStale(ctx, jobName, staleClaimAge)
	if err != nil {
		p.log.Warn("Stale-claim sweep failed", "job_name", jobName, "error", err)
		return
	}
	if requeued > 0 {
		p.log.Info("Requeued orphaned triggers", "job_name", jobName, "count", requeued)
	}
}

// ReplicaIndex reads this worker's ordinal from the environment.
// REPLICA_INDEX wins; JOB_COMPLETION_INDEX is the platform-provided fallback.
func ReplicaIndex() int {
	for _, key := range []string{"REPLICA_INDEX", "JOB_COMPLETION_INDEX"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			if i, err := strconv.Atoi(v); err == nil && i >= 0 {
				return i
			}
		}
	}
	return 0
}
