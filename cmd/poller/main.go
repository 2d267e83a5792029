package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/storylingo/backend/internal/blobstore"
	"github.com/storylingo/backend/internal/jobs"
	"github.com/storylingo/backend/internal/llm"
	"github.com/storylingo/backend/internal/logger"
	"github.com/storylingo/backend/internal/observability"
	"github.com/storylingo/backend/internal/poller"
	"github.com/storylingo/backend/internal/trigger"
)

// The poller runs one cycle per invocation; an external scheduler restarts
// it. Exit code 0 means no work or success; non-zero means a bad payload,
// listing failure or runner failure, which the scheduler surfaces.
func main() {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "production"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	jobName := strings.TrimSpace(os.Getenv("JOB_NAME"))
	if jobName == "" {
		log.Error("JOB_NAME is required")
		os.Exit(2)
	}

	ctx := context.Background()
	shutdownOtel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "storylingo-poller-" + jobName,
		Environment: os.Getenv("APP_ENV"),
		Version:     os.Getenv("APP_VERSION"),
	})
	if shutdownOtel != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownOtel(shutdownCtx)
		}()
	}

	store, err := blobstore.NewGCSStore(ctx, log)
	if err != nil {
		log.Error("Blob store init failed", "error", err)
		os.Exit(1)
	}
	queue := trigger.NewQueue(store, log)

	// Only the manifest and chunk jobs talk to the model; the rest work purely
	// against the blob store.
	var llmClient llm.Client
	switch jobName {
	case trigger.JobManifest, trigger.JobChunk:
		llmClient, err = llm.NewClient(log)
		if err != nil {
			log.Error("LLM client init failed", "error", err)
			os.Exit(1)
		}
	}

	var pollErr error
	switch jobName {
	case trigger.JobManifest:
		runner := jobs.NewManifestRunner(store, queue, llmClient, log)
		p := poller.New(queue, runner, nil, nil, nil, nil, log)
		pollErr = p.PollManifest(ctx)
	case trigger.JobChunk:
		runner := jobs.NewChunkRunner(store, llmClient, log)
		p := poller.New(queue, nil, runner, nil, nil, nil, log)
		pollErr = p.PollChunk(ctx)
	case trigger.JobOrchestrator:
		runner := jobs.NewOrchestratorRunner(store, queue, log)
		p := poller.New(queue, nil, nil, runner, nil, nil, log)
		pollErr = p.PollOrchestrator(ctx)
	case trigger.JobFinalAssembly:
		runner := jobs.NewFinalAssemblyRunner(store, log)
		p := poller.New(queue, nil, nil, nil, runner, nil, log)
		pollErr = p.PollFinalAssembly(ctx)
	case trigger.JobCover:
		runner, err := jobs.NewCoverRunner(store, log)
		if err != nil {
			log.Error("Cover runner init failed", "error", err)
			os.Exit(1)
		}
		p := poller.New(queue, nil, nil, nil, nil, runner, log)
		pollErr = p.PollCover(ctx)
	default:
		log.Error("Unknown JOB_NAME", "job_name", jobName)
		os.Exit(2)
	}

	if pollErr != nil {
		if errors.Is(pollErr, trigger.ErrMalformed) {
			log.Error("Poll cycle hit malformed trigger", "job_name", jobName, "error", pollErr)
			os.Exit(2)
		}
		log.Error("Poll cycle failed", "job_name", jobName, "error", pollErr)
		os.Exit(1)
	}
}
