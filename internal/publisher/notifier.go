// Package publisher announces finished results on a message topic.
package publisher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vishalm/serp-forge/internal/serp"
)

// Publisher sends one payload to a topic and returns the broker message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Notification kinds.
const (
	KindQuery = "query"
	KindBatch = "batch"
)

// Notification is the compact completion message; full results go to storage.
type Notification struct {
	Kind              string    `json:"kind"`
	ID                string    `json:"id"`
	Query             string    `json:"query,omitempty"`
	SearchType        string    `json:"search_type,omitempty"`
	Success           bool      `json:"success"`
	TotalResults      int       `json:"total_results"`
	Scraped           int       `json:"scraped"`
	FailedURLs        int       `json:"failed_urls,omitempty"`
	TotalQueries      int       `json:"total_queries,omitempty"`
	SuccessfulQueries int       `json:"successful_queries,omitempty"`
	FailedQueries     int       `json:"failed_queries,omitempty"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// Notifier is a serp.ResultSink that publishes a Notification per result.
type Notifier struct {
	pub    Publisher
	topic  string
	logger *zap.Logger
}

// NewNotifier publishes to topic through pub.
func NewNotifier(pub Publisher, topic string, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{pub: pub, topic: topic, logger: logger}
}

// QueryNotification summarizes res.
func QueryNotification(res *serp.QueryResult) Notification {
	return Notification{
		Kind:         KindQuery,
		ID:           res.RequestID,
		Query:        res.Query,
		SearchType:   string(res.SearchType),
		Success:      res.Success,
		TotalResults: res.TotalResults,
		Scraped:      res.ScrapedSuccessfully,
		FailedURLs:   len(res.FailedURLs),
		ErrorMessage: res.ErrorMessage,
		Timestamp:    res.Timestamp,
	}
}

// BatchNotification summarizes res.
func BatchNotification(res *serp.BatchResult) Notification {
	return Notification{
		Kind:              KindBatch,
		ID:                res.BatchID,
		Success:           res.Success,
		TotalResults:      res.TotalResults,
		Scraped:           res.TotalScraped,
		TotalQueries:      res.TotalQueries,
		SuccessfulQueries: res.SuccessfulQueries,
		FailedQueries:     res.FailedQueries,
		ErrorMessage:      res.ErrorMessage,
		Timestamp:         res.Timestamp,
	}
}

// SaveQuery implements serp.ResultSink.
func (n *Notifier) SaveQuery(ctx context.Context, res *serp.QueryResult) error {
	if res == nil {
		return nil
	}
	return n.send(ctx, QueryNotification(res))
}

// SaveBatch implements serp.ResultSink.
func (n *Notifier) SaveBatch(ctx context.Context, res *serp.BatchResult) error {
	if res == nil {
		return nil
	}
	return n.send(ctx, BatchNotification(res))
}

func (n *Notifier) send(ctx context.Context, msg Notification) error {
	id, err := n.pub.Publish(ctx, n.topic, msg)
	if err != nil {
		return fmt.Errorf("publish %s notification %s: %w", msg.Kind, msg.ID, err)
	}
	n.logger.Debug("published notification",
		zap.String("kind", msg.Kind),
		zap.String("id", msg.ID),
		zap.String("topic", n.topic),
		zap.String("message_id", id),
	)
	return nil
}
