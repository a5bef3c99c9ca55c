package domain

import "time"

type FeedSource struct {
	Name string
	URL  string
}

// Entry is one article accepted from a feed. Title and Link are never empty.
type Entry struct {
	Source    string
	Title     string
	Summary   string
	Link      string
	Published *time.Time
}

type RunStats struct {
	SourcesAttempted int
	SourcesFailed    int
	EntriesMatched   int
	EntriesEmitted   int
}
