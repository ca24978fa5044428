// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package sqlstore

import (
	"fmt"
	"strings"

	"github.com/tomtom215/chronicle/internal/audit"
)

// selectColumns matches scannedEventData.scanDestinations.
var selectColumns = []string{
	"id", "timestamp", "action", "actor_id", "actor_type",
	"resource", "resource_id", "level", "success", "description",
	"old_values", "new_values", "metadata", "context", "correlation_id",
}

var jsonColumns = map[string]bool{
	"old_values": true, "new_values": true, "metadata": true, "context": true,
}

// levelOrder sorts by severity instead of spelling.
const levelOrder = "CASE " + Table + ".level WHEN 'low' THEN 0 WHEN 'medium' THEN 1 WHEN 'high' THEN 2 WHEN 'critical' THEN 3 ELSE -1 END"

// orderColumns whitelists QueryFilter.OrderBy values.
var orderColumns = map[string]string{
	"timestamp":      Table + ".timestamp",
	"action":         Table + ".action",
	"level":          levelOrder,
	"resource":       Table + ".resource",
	"actor_id":       Table + ".actor_id",
	"actor_type":     Table + ".actor_type",
	"resource_id":    Table + ".resource_id",
	"correlation_id": Table + ".correlation_id",
}

func qualify(column string) string {
	return Table + "." + column
}

// buildQuery constructs the SQL query for a normalized filter. Every column
// is qualified because a search may join a shadow table.
func (s *Store) buildQuery(filter audit.QueryFilter, countOnly bool) (string, []any) {
	join, conditions, args := s.buildFilterConditions(filter)

	var b strings.Builder
	if countOnly {
		b.WriteString("SELECT COUNT(*) FROM " + Table)
	} else {
		b.WriteString(s.selectList())
	}
	if join != "" {
		b.WriteString(" " + join)
	}
	if len(conditions) > 0 {
		b.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	if !countOnly {
		b.WriteString(orderAndLimit(filter))
	}
	return b.String(), args
}

func (s *Store) selectList() string {
	cols := make([]string, len(selectColumns))
	for i, c := range selectColumns {
		if jsonColumns[c] {
			cols[i] = s.dialect.selectJSON(qualify(c)) + " AS " + c
		} else {
			cols[i] = qualify(c)
		}
	}
	return "SELECT " + strings.Join(cols, ", ") + " FROM " + Table
}

// buildFilterConditions builds WHERE clause conditions from a QueryFilter.
func (s *Store) buildFilterConditions(filter audit.QueryFilter) (string, []string, []any) {
	var args []any
	var conditions []string

	conditions, args = appendStringCondition(conditions, args, "id", filter.EventID)
	conditions, args = appendStringCondition(conditions, args, "actor_id", filter.ActorID)
	conditions, args = appendStringCondition(conditions, args, "actor_type", string(filter.ActorType))
	conditions, args = appendStringCondition(conditions, args, "resource", filter.Resource)
	conditions, args = appendStringCondition(conditions, args, "resource_id", filter.ResourceID)
	conditions, args = appendStringCondition(conditions, args, "action", string(filter.Action))
	conditions, args = appendStringCondition(conditions, args, "level", string(filter.Level))
	conditions, args = appendStringCondition(conditions, args, "correlation_id", filter.CorrelationID)

	if filter.Success != nil {
		conditions = append(conditions, qualify("success")+" = ?")
		args = append(args, *filter.Success)
	}

	if filter.StartTime != nil {
		conditions = append(conditions, qualify("timestamp")+" >= ?")
		args = append(args, s.dialect.encodeBound(*filter.StartTime))
	}
	if filter.EndTime != nil {
		conditions = append(conditions, qualify("timestamp")+" < ?")
		args = append(args, s.dialect.encodeBound(*filter.EndTime))
	}

	var join string
	if terms := filter.SearchTerms(); len(terms) > 0 && s.dialect.Search != nil {
		var cond string
		var searchArgs []any
		join, cond, searchArgs = s.dialect.Search(terms)
		if cond != "" {
			conditions = append(conditions, cond)
			args = append(args, searchArgs...)
		}
	}

	return join, conditions, args
}

// appendStringCondition adds a string equality condition if value is non-empty.
func appendStringCondition(conditions []string, args []any, column, value string) ([]string, []any) {
	if value != "" {
		conditions = append(conditions, qualify(column)+" = ?")
		args = append(args, value)
	}
	return conditions, args
}

// orderAndLimit adds ORDER BY with an id tiebreaker, LIMIT and OFFSET.
func orderAndLimit(filter audit.QueryFilter) string {
	expr, ok := orderColumns[filter.OrderBy]
	if !ok {
		expr = orderColumns["timestamp"]
	}
	dir := "ASC"
	if filter.Descending() {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, %s %s LIMIT %d OFFSET %d",
		expr, dir, qualify("id"), dir, filter.Limit, filter.Offset)
}

// LikeSearch matches each term as a case-insensitive substring of the
// description using the given operator ("ILIKE", or "LIKE" over LOWER).
func LikeSearch(operator string) func(terms []string) (string, string, []any) {
	return func(terms []string) (string, string, []any) {
		conds := make([]string, len(terms))
		args := make([]any, len(terms))
		column := qualify("description")
		if operator == "LIKE" {
			column = "LOWER(" + column + ")"
		}
		for i, term := range terms {
			conds[i] = column + " " + operator + " ? ESCAPE '\\'"
			args[i] = "%" + escapeLike(term) + "%"
		}
		return "", "(" + strings.Join(conds, " AND ") + ")", args
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
