// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package mongodb

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/tomtom215/chronicle/internal/audit"
)

// sortFields maps order fields to document keys. Level sorts by its rank.
var sortFields = map[string]string{
	"timestamp":      "timestamp_us",
	"action":         "action",
	"level":          "level_rank",
	"resource":       "resource",
	"actor_id":       "actor_id",
	"actor_type":     "actor_type",
	"resource_id":    "resource_id",
	"correlation_id": "correlation_id",
}

// buildFilter translates a normalized filter into a query document.
func buildFilter(f audit.QueryFilter) bson.D {
	filter := bson.D{}
	add := func(key, value string) {
		if value != "" {
			filter = append(filter, bson.E{Key: key, Value: value})
		}
	}

	add("_id", f.EventID)
	add("actor_id", f.ActorID)
	add("actor_type", string(f.ActorType))
	add("resource", f.Resource)
	add("resource_id", f.ResourceID)
	add("action", string(f.Action))
	add("level", string(f.Level))
	add("correlation_id", f.CorrelationID)

	if f.Success != nil {
		filter = append(filter, bson.E{Key: "success", Value: *f.Success})
	}
	filter = append(filter, rangeFilter(f.StartTime, f.EndTime)...)

	if q := textQuery(f.SearchTerms()); q != "" {
		filter = append(filter, bson.E{Key: "$text", Value: bson.D{{Key: "$search", Value: q}}})
	}
	return filter
}

// rangeFilter selects the half-open interval [start, end).
func rangeFilter(start, end *time.Time) bson.D {
	bounds := bson.D{}
	if start != nil {
		bounds = append(bounds, bson.E{Key: "$gte", Value: audit.CeilMicro(*start).UnixMicro()})
	}
	if end != nil {
		bounds = append(bounds, bson.E{Key: "$lt", Value: audit.CeilMicro(*end).UnixMicro()})
	}
	if len(bounds) == 0 {
		return bson.D{}
	}
	return bson.D{{Key: "timestamp_us", Value: bounds}}
}

// textQuery quotes every term. $text treats quoted phrases as required, so
// the terms are ANDed instead of the default OR.
func textQuery(terms []string) string {
	phrases := make([]string, 0, len(terms))
	for _, term := range terms {
		if term = strings.ReplaceAll(term, `"`, ``); term != "" {
			phrases = append(phrases, `"`+term+`"`)
		}
	}
	return strings.Join(phrases, " ")
}

func buildSort(f audit.QueryFilter) bson.D {
	key, ok := sortFields[f.OrderBy]
	if !ok {
		key = sortFields["timestamp"]
	}
	dir := 1
	if f.Descending() {
		dir = -1
	}
	return bson.D{{Key: key, Value: dir}, {Key: "_id", Value: dir}}
}
