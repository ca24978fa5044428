// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package validation

import (
	"testing"
	"time"
)

func TestGetValidator_Singleton(t *testing.T) {
	v1 := GetValidator()
	v2 := GetValidator()

	if v1 != v2 {
		t.Error("GetValidator() should return the same singleton instance")
	}
	if v1 == nil {
		t.Error("GetValidator() should not return nil")
	}
}

type sampleRequest struct {
	Resource string        `json:"resource" validate:"required,max=8"`
	Level    string        `json:"level,omitempty" validate:"omitempty,oneof=low medium high critical"`
	Limit    int           `json:"limit" validate:"min=0,max=1000"`
	Tags     []string      `json:"tags" validate:"max=2"`
	Interval time.Duration `koanf:"interval" validate:"min=1ms"`
	Internal string        `json:"-" validate:"max=1"`
}

func validSample() sampleRequest {
	return sampleRequest{Resource: "note", Level: "high", Limit: 10, Interval: time.Second}
}

func TestValidateStruct_Valid(t *testing.T) {
	s := validSample()
	if err := ValidateStruct(&s); err != nil {
		t.Errorf("ValidateStruct() returned unexpected error: %v", err)
	}
}

func TestValidateStruct_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*sampleRequest)
		wantField string
		wantTag   string
		wantMsg   string
	}{
		{"missing resource", func(s *sampleRequest) { s.Resource = "" }, "resource", "required", "resource is required"},
		{"resource too long", func(s *sampleRequest) { s.Resource = "notebooks" }, "resource", "max", "resource must be at most 8 characters"},
		{"unknown level", func(s *sampleRequest) { s.Level = "severe" }, "level", "oneof", "level must be one of: low medium high critical"},
		{"negative limit", func(s *sampleRequest) { s.Limit = -1 }, "limit", "min", "limit must be at least 0"},
		{"too many tags", func(s *sampleRequest) { s.Tags = []string{"a", "b", "c"} }, "tags", "max", "tags must be at most 2 items"},
		{"interval too short", func(s *sampleRequest) { s.Interval = 0 }, "interval", "min", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSample()
			tt.mutate(&s)

			err := ValidateStruct(&s)
			if err == nil {
				t.Fatal("ValidateStruct() should have returned an error")
			}
			if len(err.Fields) != 1 {
				t.Fatalf("expected exactly one error, got %+v", err.Fields)
			}
			got := err.Fields[0]
			if got.Field != tt.wantField || got.Tag != tt.wantTag {
				t.Errorf("got field %s tag %s, want %s %s", got.Field, got.Tag, tt.wantField, tt.wantTag)
			}
			if tt.wantMsg != "" && got.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", got.Message, tt.wantMsg)
			}
			if err.Error() != got.Message {
				t.Errorf("Error() = %q, want %q", err.Error(), got.Message)
			}
		})
	}
}

func TestValidateStruct_MultipleFields(t *testing.T) {
	s := validSample()
	s.Resource = ""
	s.Limit = 5000

	err := ValidateStruct(&s)
	if err == nil {
		t.Fatal("expected an error")
	}
	if len(err.Fields) != 2 {
		t.Fatalf("expected 2 field errors, got %+v", err.Fields)
	}
	if !err.Has("resource") || !err.Has("limit") || err.Has("level") {
		t.Errorf("unexpected fields: %+v", err.Fields)
	}
	if err.Fields[1].Param != "1000" {
		t.Errorf("param = %q, want 1000", err.Fields[1].Param)
	}
	want := "resource is required; limit must be at most 1000"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestValidateStruct_NotAStruct(t *testing.T) {
	err := ValidateStruct("resource")
	if err == nil || len(err.Fields) != 1 || err.Fields[0].Tag != "struct" {
		t.Errorf("expected a struct error, got %+v", err)
	}
}

func TestValidateStruct_NestedStructs(t *testing.T) {
	type inner struct {
		Name string `json:"name" validate:"required"`
	}
	type outer struct {
		Inner *inner `json:"inner" validate:"omitempty"`
	}

	if err := ValidateStruct(&outer{}); err != nil {
		t.Errorf("nil nested struct should pass, got %v", err)
	}
	err := ValidateStruct(&outer{Inner: &inner{}})
	if err == nil {
		t.Fatal("expected nested required field to fail")
	}
	if !err.Has("inner.name") {
		t.Errorf("nested field path = %+v, want inner.name", err.Fields)
	}
}
