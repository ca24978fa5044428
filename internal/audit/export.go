// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package audit

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Exporter renders events for external consumers.
type Exporter interface {
	Export(events []Event) ([]byte, error)
	ContentType() string
}

// JSONExporter renders events as an indented JSON array. A nil slice becomes
// "[]".
type JSONExporter struct{}

func (e *JSONExporter) Export(events []Event) ([]byte, error) {
	if events == nil {
		events = []Event{}
	}
	return json.MarshalIndent(events, "", "  ")
}

func (e *JSONExporter) ContentType() string { return "application/json" }

// CEFExporter renders one ArcSight Common Event Format line per event:
//
//	CEF:0|Vendor|Product|Version|<action>|<name>|<severity>|<extension>
type CEFExporter struct {
	DeviceVendor  string
	DeviceProduct string
	DeviceVersion string
}

// NewCEFExporter returns an exporter identifying itself as Chronicle.
func NewCEFExporter() *CEFExporter {
	return &CEFExporter{
		DeviceVendor:  "Chronicle",
		DeviceProduct: "AuditEngine",
		DeviceVersion: "1.0",
	}
}

func (e *CEFExporter) ContentType() string { return "text/plain; charset=utf-8" }

var (
	cefHeaderEscaper = strings.NewReplacer(`\`, `\\`, "|", `\|`, "\r", "", "\n", " ")
	cefValueEscaper  = strings.NewReplacer(`\`, `\\`, "=", `\=`, "\r", "", "\n", " ")
)

// Export joins the event lines with newlines.
func (e *CEFExporter) Export(events []Event) ([]byte, error) {
	var b strings.Builder
	for i := range events {
		if i > 0 {
			b.WriteByte('\n')
		}
		e.writeLine(&b, &events[i])
	}
	return []byte(b.String()), nil
}

func (e *CEFExporter) writeLine(b *strings.Builder, ev *Event) {
	name := ev.Description
	if name == "" {
		name = string(ev.Action) + " " + ev.Resource
	}

	header := []string{
		e.DeviceVendor, e.DeviceProduct, e.DeviceVersion,
		string(ev.Action), name,
	}
	b.WriteString("CEF:0")
	for _, h := range header {
		b.WriteByte('|')
		b.WriteString(cefHeaderEscaper.Replace(h))
	}
	fmt.Fprintf(b, "|%d|", cefSeverity(ev.Level))

	ext := cefExtension{b: b}
	ext.add("rt", strconv.FormatInt(ev.Timestamp.UnixMilli(), 10))
	ext.addIf("suid", ev.ActorID)
	ext.add("cs1Label", "actorType")
	ext.add("cs1", string(ev.ActorType))
	if rc := ev.Context; rc != nil {
		ext.addIf("src", rc.IPAddress)
		ext.addIf("requestMethod", rc.Method)
		ext.addIf("request", rc.Endpoint)
	}
	ext.add("act", string(ev.Action))
	ext.add("cs2Label", "resource")
	ext.add("cs2", ev.Resource)
	ext.addIf("duid", ev.ResourceID)
	if ev.Success {
		ext.add("outcome", "success")
	} else {
		ext.add("outcome", "failure")
	}
	ext.add("externalId", ev.ID)
	if ev.CorrelationID != "" {
		ext.add("cs3Label", "correlationId")
		ext.add("cs3", ev.CorrelationID)
	}
}

// cefExtension writes space separated key=value pairs.
type cefExtension struct {
	b       *strings.Builder
	started bool
}

func (x *cefExtension) add(key, value string) {
	if x.started {
		x.b.WriteByte(' ')
	}
	x.started = true
	x.b.WriteString(key)
	x.b.WriteByte('=')
	x.b.WriteString(cefValueEscaper.Replace(value))
}

func (x *cefExtension) addIf(key, value string) {
	if value != "" {
		x.add(key, value)
	}
}

// cefSeverity maps an audit level onto the CEF 0-10 scale.
func cefSeverity(level Level) int {
	switch level {
	case LevelLow:
		return 2
	case LevelMedium:
		return 5
	case LevelHigh:
		return 8
	case LevelCritical:
		return 10
	default:
		return 0
	}
}
