package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageSearchStart Stage = "SEARCH_START"
	StageSearchDone  Stage = "SEARCH_DONE"
	StageSearchError Stage = "SEARCH_ERROR"
	StageFetchDone   Stage = "FETCH_DONE"
	StageFetchFailed Stage = "FETCH_FAILED"
	StageBatchDone   Stage = "BATCH_DONE"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for fetch completions.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event captures one milestone of a search or batch run.
type Event struct {
	// RunID is the request ID of a query or the batch ID of a batch.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Query is the search text the event belongs to.
	Query string
	// Site scopes fetch events to a host label.
	Site string
	// URL is the page URL for fetch events; it should not contain credentials.
	URL string
	// Bytes carries the response size of a fetch.
	Bytes int64
	// Count is the hit count for SEARCH_DONE and the successful query count for BATCH_DONE.
	Count int
	// Total is the number of queries in a batch.
	Total int
	// StatusClass groups HTTP response codes (2xx, 3xx, etc).
	StatusClass StatusClass
	// Dur captures latency for fetches, searches and batches.
	Dur time.Duration
	// Note lets emitters attach low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageSearchStart, StageSearchDone, StageSearchError, StageBatchDone:
	case StageFetchDone:
		if e.Site == "" {
			return errors.New("fetch done requires site")
		}
		if e.StatusClass == "" {
			return errors.New("fetch done requires status class")
		}
	case StageFetchFailed:
		if e.URL == "" {
			return errors.New("fetch failed requires url")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// ClassifyStatus groups HTTP status codes for fetch events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
