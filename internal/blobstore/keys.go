package blobstore

import (
	"fmt"
	"os"
	"strings"
)

// Key builders for the stories bucket layout. Every artifact a job reads or
// writes lives under the story's own namespace; triggers live under a shared
// triggers/ prefix keyed by job name.

func RawPromptKey(storyID string) string {
	return fmt.Sprintf("Users/%s/prompt/raw_%s.json", storyID, storyID)
}

func ManifestKey(storyID string) string {
	return fmt.Sprintf("Users/%s/manifest.json", storyID)
}

func ChunkKey(storyID string, chunkID int) string {
	return fmt.Sprintf("Users/%s/chunks/chunk_%d.json", storyID, chunkID)
}

// ChunkPrefix covers every chunk artifact for one story; the orchestrator
// counts blobs under it to measure progress.
func ChunkPrefix(storyID string) string {
	return fmt.Sprintf("Users/%s/chunks/chunk_", storyID)
}

func FinalStoryKey(storyID string) string {
	return fmt.Sprintf("Users/%s/final/story_%s.json", storyID, storyID)
}

func CoverImageKey(storyID string) string {
	return fmt.Sprintf("Users/%s/cover/cover_%s.png", storyID, storyID)
}

func CoverKey(storyID string) string {
	return fmt.Sprintf("Users/%s/cover/cover_%s.json", storyID, storyID)
}

func StoryPrefix(storyID string) string {
	return fmt.Sprintf("Users/%s/", storyID)
}

func ScheduledTriggerPrefix(jobName string) string {
	return fmt.Sprintf("triggers/%s-scheduled/", jobName)
}

// LegacyTriggerPrefix is the pre-migration trigger location. Claims fall back
// to it when the scheduled prefix is empty; nothing writes it anymore.
func LegacyTriggerPrefix(jobName string) string {
	return fmt.Sprintf("triggers/%s/", jobName)
}

func InProgressTriggerPrefix(jobName string) string {
	return fmt.Sprintf("triggers/%s-in-progress/", jobName)
}

func ScheduledTriggerKey(jobName, triggerID string) string {
	return ScheduledTriggerPrefix(jobName) + triggerID + ".json"
}

func InProgressTriggerKey(jobName, triggerID string) string {
	return InProgressTriggerPrefix(jobName) + triggerID + ".json"
}

// PublicURL builds the externally reachable URL for a stories-bucket key.
// STORIES_PUBLIC_BASE_URL overrides the default GCS form (emulator or CDN).
func PublicURL(key string) string {
	bucket := strings.TrimSpace(os.Getenv("STORIES_BUCKET_NAME"))
	key = strings.TrimLeft(key, "/")
	if base := strings.TrimRight(strings.TrimSpace(os.Getenv("STORIES_PUBLIC_BASE_URL")), "/"); base != "" {
		return fmt.Sprintf("%s/%s/%s", base, bucket, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, key)
}
