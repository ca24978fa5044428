// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package api

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/tomtom215/chronicle/internal/audit"
)

// parseFilter builds a QueryFilter from query parameters. Parse failures wrap
// audit.ErrInvalidFilter. Semantic validation is left to the store, which
// normalizes every filter it receives. A limit above maxPageSize is lowered
// to it rather than rejected.
func parseFilter(q url.Values, maxPageSize int) (audit.QueryFilter, error) {
	filter := audit.QueryFilter{
		EventID:       q.Get("event_id"),
		ActorID:       q.Get("actor_id"),
		ActorType:     audit.ActorType(q.Get("actor_type")),
		Resource:      q.Get("resource"),
		ResourceID:    q.Get("resource_id"),
		Action:        audit.Action(q.Get("action")),
		Level:         audit.Level(q.Get("level")),
		CorrelationID: q.Get("correlation_id"),
		Search:        q.Get("search"),
		OrderBy:       q.Get("order_by"),
		OrderDir:      q.Get("order_dir"),
	}

	if v := q.Get("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, invalidParam("success", v)
		}
		filter.Success = &b
	}

	var err error
	if filter.StartTime, err = parseTime(q, "start_time"); err != nil {
		return filter, err
	}
	if filter.EndTime, err = parseTime(q, "end_time"); err != nil {
		return filter, err
	}

	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, invalidParam("offset", v)
		}
		filter.Offset = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, invalidParam("limit", v)
		}
		filter.Limit = n
	}
	if maxPageSize > 0 && filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}

	return filter, nil
}

// parseTime reads an optional RFC3339 timestamp.
func parseTime(q url.Values, key string) (*time.Time, error) {
	v := q.Get(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, invalidParam(key, v)
	}
	return &t, nil
}

func invalidParam(key, value string) error {
	return fmt.Errorf("%w: invalid %s %q", audit.ErrInvalidFilter, key, value)
}
