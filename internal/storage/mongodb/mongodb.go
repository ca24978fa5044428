// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

// Package mongodb stores audit events as documents in MongoDB using the v2
// driver. The event id is the document _id, so a redelivered event collides
// on the primary key and is skipped. Free-text search uses a text index on
// the description with language-neutral tokenization.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/tomtom215/chronicle/internal/audit"
	"github.com/tomtom215/chronicle/internal/logging"
)

// DefaultCollection is used when Options.Collection is empty.
const DefaultCollection = "audit_events"

const duplicateKeyCode = 11000

// Options configures Open.
type Options struct {
	// URI is a mongodb:// or mongodb+srv:// connection string.
	URI string

	// Database holds the events collection.
	Database string

	// Collection defaults to DefaultCollection.
	Collection string

	// ConnectTimeout bounds the initial connection. Zero selects ten seconds.
	ConnectTimeout time.Duration
}

// Store implements audit.Store on a MongoDB collection.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	now    func() time.Time

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Open connects, verifies the server is reachable and creates the indexes.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.URI == "" {
		return nil, fmt.Errorf("mongodb: uri is required")
	}
	if opts.Database == "" {
		return nil, fmt.Errorf("mongodb: database is required")
	}
	if opts.Collection == "" {
		opts.Collection = DefaultCollection
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}

	client, err := mongo.Connect(options.Client().
		ApplyURI(opts.URI).
		SetConnectTimeout(opts.ConnectTimeout).
		SetServerSelectionTimeout(opts.ConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("mongodb: connect: %w", err)
	}

	s := &Store{
		client: client,
		coll:   client.Database(opts.Database).Collection(opts.Collection),
		now:    time.Now,
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb: ping: %w", err)
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logging.Info().
		Str("database", opts.Database).
		Str("collection", opts.Collection).
		Msg("MongoDB audit store ready")
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "timestamp_us", Value: -1}}, Options: options.Index().SetName("idx_audit_timestamp")},
		{Keys: bson.D{{Key: "action", Value: 1}}, Options: options.Index().SetName("idx_audit_action")},
		{Keys: bson.D{{Key: "level", Value: 1}}, Options: options.Index().SetName("idx_audit_level")},
		{Keys: bson.D{{Key: "correlation_id", Value: 1}}, Options: options.Index().SetName("idx_audit_correlation_id")},
		{Keys: bson.D{{Key: "actor_id", Value: 1}, {Key: "timestamp_us", Value: -1}}, Options: options.Index().SetName("idx_audit_actor_timestamp")},
		{Keys: bson.D{{Key: "resource", Value: 1}, {Key: "timestamp_us", Value: -1}}, Options: options.Index().SetName("idx_audit_resource_timestamp")},
		{
			Keys:    bson.D{{Key: "description", Value: "text"}},
			Options: options.Index().SetName("idx_audit_description").SetDefaultLanguage("none"),
		},
	}
	if _, err := s.coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("mongodb: create indexes: %w", err)
	}
	return nil
}

// Write persists a single event. An existing id is not an error.
func (s *Store) Write(ctx context.Context, event *audit.Event) error {
	if s.closed.Load() {
		return audit.ErrClosed
	}
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	_, err := s.coll.InsertOne(ctx, toDocument(event, s.now()))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("mongodb: insert event: %w", err)
	}
	return nil
}

// WriteBatch inserts events unordered, so one existing id does not stop the
// rest. Duplicate key errors are ignored; any other failure is returned.
// MongoDB has no cross-document atomicity here: a failed batch may be partly
// stored, and the redelivery that follows skips what already landed.
func (s *Store) WriteBatch(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}
	if s.closed.Load() {
		return audit.ErrClosed
	}

	now := s.now()
	docs := make([]any, len(events))
	for i := range events {
		docs[i] = toDocument(&events[i], now)
	}

	_, err := s.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil && !onlyDuplicates(err) {
		return fmt.Errorf("mongodb: insert batch of %d events: %w", len(events), err)
	}
	return nil
}

// onlyDuplicates reports whether every write error in err is a duplicate key.
func onlyDuplicates(err error) bool {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) {
		return false
	}
	if bwe.WriteConcernError != nil || len(bwe.WriteErrors) == 0 {
		return false
	}
	for _, we := range bwe.WriteErrors {
		if we.Code != duplicateKeyCode {
			return false
		}
	}
	return true
}

// Query retrieves one page of events matching the filter.
func (s *Store) Query(ctx context.Context, filter audit.QueryFilter) (*audit.Page, error) {
	if s.closed.Load() {
		return nil, audit.ErrClosed
	}
	f, err := filter.Normalize()
	if err != nil {
		return nil, err
	}

	match := buildFilter(f)
	total, err := s.coll.CountDocuments(ctx, match)
	if err != nil {
		return nil, fmt.Errorf("mongodb: count events: %w", err)
	}
	if total == 0 || int64(f.Offset) >= total {
		return audit.NewPage(nil, total, f), nil
	}

	findOpts := options.Find().
		SetSort(buildSort(f)).
		SetSkip(int64(f.Offset)).
		SetLimit(int64(f.Limit))
	cursor, err := s.coll.Find(ctx, match, findOpts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: find events: %w", err)
	}

	var docs []storedDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongodb: decode events: %w", err)
	}

	events := make([]audit.Event, 0, len(docs))
	for i := range docs {
		e, err := docs[i].toEvent()
		if err != nil {
			return nil, fmt.Errorf("mongodb: %w", err)
		}
		events = append(events, e)
	}
	return audit.NewPage(events, total, f), nil
}

// Count returns the number of events matching the filter.
func (s *Store) Count(ctx context.Context, filter audit.QueryFilter) (int64, error) {
	if s.closed.Load() {
		return 0, audit.ErrClosed
	}
	f, err := filter.Normalize()
	if err != nil {
		return 0, err
	}
	n, err := s.coll.CountDocuments(ctx, buildFilter(f))
	if err != nil {
		return 0, fmt.Errorf("mongodb: count events: %w", err)
	}
	return n, nil
}

type bucket struct {
	Key   string `bson:"_id"`
	Count int64  `bson:"count"`
}

type statsFacets struct {
	Totals []struct {
		Total     int64 `bson:"total"`
		Successes int64 `bson:"successes"`
		Oldest    int64 `bson:"oldest"`
		Newest    int64 `bson:"newest"`
	} `bson:"totals"`
	ByAction   []bucket `bson:"by_action"`
	ByResource []bucket `bson:"by_resource"`
	ByLevel    []bucket `bson:"by_level"`
}

// GetStats aggregates events inside the time range in one $facet pipeline.
func (s *Store) GetStats(ctx context.Context, tr audit.TimeRange) (*audit.Stats, error) {
	if s.closed.Load() {
		return nil, audit.ErrClosed
	}

	groupBy := func(field string) bson.A {
		return bson.A{bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$" + field},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}}}
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: rangeFilter(tr.Start, tr.End)}},
		{{Key: "$facet", Value: bson.D{
			{Key: "totals", Value: bson.A{bson.D{{Key: "$group", Value: bson.D{
				{Key: "_id", Value: nil},
				{Key: "total", Value: bson.D{{Key: "$sum", Value: 1}}},
				{Key: "successes", Value: bson.D{{Key: "$sum", Value: bson.D{{Key: "$cond", Value: bson.A{"$success", 1, 0}}}}}},
				{Key: "oldest", Value: bson.D{{Key: "$min", Value: "$timestamp_us"}}},
				{Key: "newest", Value: bson.D{{Key: "$max", Value: "$timestamp_us"}}},
			}}}}},
			{Key: "by_action", Value: groupBy("action")},
			{Key: "by_resource", Value: groupBy("resource")},
			{Key: "by_level", Value: groupBy("level")},
		}}},
	}

	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("mongodb: aggregate stats: %w", err)
	}
	var results []statsFacets
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("mongodb: decode stats: %w", err)
	}

	stats := audit.NewStats(tr)
	if len(results) == 0 || len(results[0].Totals) == 0 {
		stats.Finalize(0, nil, nil)
		return stats, nil
	}

	r := results[0]
	for _, b := range r.ByAction {
		stats.EventsByAction[b.Key] = b.Count
	}
	for _, b := range r.ByResource {
		stats.EventsByResource[b.Key] = b.Count
	}
	for _, b := range r.ByLevel {
		stats.EventsByLevel[b.Key] = b.Count
	}

	t := r.Totals[0]
	stats.TotalEvents = t.Total
	oldest := time.UnixMicro(t.Oldest).UTC()
	newest := time.UnixMicro(t.Newest).UTC()
	stats.Finalize(t.Successes, &oldest, &newest)
	return stats, nil
}

// Purge removes events older than the given time.
func (s *Store) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	if s.closed.Load() {
		return 0, audit.ErrClosed
	}

	res, err := s.coll.DeleteMany(ctx, bson.D{{Key: "timestamp_us", Value: bson.D{{Key: "$lt", Value: audit.CeilMicro(olderThan).UnixMicro()}}}})
	if err != nil {
		return 0, fmt.Errorf("mongodb: delete old events: %w", err)
	}
	if res.DeletedCount > 0 {
		logging.Info().Int64("deleted", res.DeletedCount).Time("older_than", olderThan).Msg("Deleted old audit events")
	}
	return res.DeletedCount, nil
}

// HealthCheck pings the primary.
func (s *Store) HealthCheck(ctx context.Context) bool {
	if s.closed.Load() {
		return false
	}
	return s.client.Ping(ctx, nil) == nil
}

// Close disconnects the client. Later calls return the first result.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.closeErr = s.client.Disconnect(ctx)
	})
	return s.closeErr
}
