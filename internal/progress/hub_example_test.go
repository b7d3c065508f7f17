package progress_test

import (
	"context"
	"fmt"
	"time"

	"github.com/vishalm/serp-forge/internal/progress"
)

// pageTally counts fetched pages per query.
type pageTally map[string]int

func (p pageTally) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		if evt.Stage == progress.StageFetchDone {
			p[evt.Query]++
		}
	}
	return nil
}

func (pageTally) Close(context.Context) error { return nil }

func ExampleHub() {
	tally := pageTally{}
	hub := progress.NewHub(progress.Config{MaxBatchWait: time.Second}, tally)

	for _, site := range []string{"go.dev", "pkg.go.dev"} {
		hub.Emit(progress.Event{
			RunID:       "req-1",
			Stage:       progress.StageFetchDone,
			Query:       "golang generics",
			Site:        site,
			StatusClass: progress.ClassifyStatus(200),
		})
	}
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Println(tally["golang generics"])
	// Output: 2
}
