package domain

import "time"

// Origin tells where the articles of a Batch came from.
type Origin string

const (
	OriginFetched     Origin = "fetched"
	OriginCache       Origin = "cache"
	OriginPlaceholder Origin = "placeholder"
)

// SourceResult is the outcome of one source's fetch pipeline.
type SourceResult struct {
	Source     string
	FirstFetch bool
	Fetched    int
	Articles   []Article
	Added      int
	Err        error
	Duration   time.Duration
}

// SourceFailure records a source that could not be fetched.
type SourceFailure struct {
	Source string
	Err    error
}

// Batch is the result of a fetch-all run.
type Batch struct {
	Articles  []Article
	Failures  []SourceFailure
	Succeeded int
	Added     int
	Origin    Origin
	Duration  time.Duration
}
