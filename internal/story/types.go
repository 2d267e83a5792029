package story

import "time"

// RawPrompt is what the book service stores when a user requests a story;
// the manifest job reads it back as the generation brief.
type RawPrompt struct {
	UserPrompt   string    `json:"userPrompt"`
	Genre        string    `json:"genre"`
	ReadingLevel string    `json:"readingLevel"`
	Language     string    `json:"language"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Chapter is one entry of the manifest outline.
type Chapter struct {
	ChapterNumber int    `json:"chapterNumber"`
	Title         string `json:"title"`
	Summary       string `json:"summary"`
}

// Manifest is the per-story outline artifact. It is written once by the
// manifest job and never mutated afterwards; chapter completion is measured
// by counting chunk blobs, not by updating this record.
type Manifest struct {
	StoryID      string    `json:"storyId"`
	Title        string    `json:"title"`
	UserPrompt   string    `json:"userPrompt"`
	Genre        string    `json:"genre"`
	ReadingLevel string    `json:"readingLevel"`
	Language     string    `json:"language"`
	Chapters     []Chapter `json:"chapters"`
}

// Chunk is one generated chapter's content artifact.
type Chunk struct {
	StoryID      string `json:"storyId"`
	ChunkID      int    `json:"chunkId"`
	ChapterTitle string `json:"chapterTitle"`
	Content      string `json:"content"`
	Status       string `json:"status"`
	WordCount    int    `json:"wordCount"`
}

// FinalChapter is one assembled chapter of the final story.
type FinalChapter struct {
	ChapterNumber int    `json:"chapterNumber"`
	Title         string `json:"title"`
	Content       string `json:"content"`
}

// FinalStory is the assembled artifact the reader-facing API serves.
type FinalStory struct {
	StoryID       string         `json:"storyId"`
	Title         string         `json:"title"`
	CoverURL      string         `json:"coverUrl,omitempty"`
	Language      string         `json:"language"`
	Genre         string         `json:"genre"`
	ReadingLevel  string         `json:"readingLevel"`
	Chapters      []FinalChapter `json:"chapters"`
	Content       []string       `json:"content"`
	Status        string         `json:"status"`
	TotalChapters int            `json:"totalChapters"`
}

// Cover records the rendered cover image for a story.
type Cover struct {
	StoryID  string `json:"storyId"`
	Title    string `json:"title"`
	CoverURL string `json:"coverUrl"`
	Status   string `json:"status"`
}

const (
	StatusCompleted = "completed"
)
