// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package audit

import "testing"

func TestResolveLevel(t *testing.T) {
	tests := []struct {
		action  Action
		success bool
		want    Level
	}{
		{ActionLogin, false, LevelCritical},
		{ActionLogin, true, LevelLow},
		{ActionLoginFailed, false, LevelCritical},
		{ActionAccessDenied, false, LevelCritical},
		{ActionPermissionDenied, false, LevelCritical},
		{ActionDelete, true, LevelHigh},
		{ActionDelete, false, LevelHigh},
		{ActionAccountLocked, true, LevelHigh},
		{ActionPasswordChange, true, LevelHigh},
		{ActionPermissionGranted, true, LevelHigh},
		{ActionCreate, true, LevelMedium},
		{ActionUpdate, false, LevelMedium},
		{ActionConfigChange, true, LevelMedium},
		{ActionSystemStart, true, LevelMedium},
		{ActionSystemStop, true, LevelMedium},
		{ActionRead, true, LevelLow},
		{ActionLogout, true, LevelLow},
		{ActionExport, false, LevelLow},
		{ActionPermissionGrant, true, LevelLow},
	}

	for _, tt := range tests {
		if got := ResolveLevel(tt.action, tt.success); got != tt.want {
			t.Errorf("ResolveLevel(%s, %v) = %s, want %s", tt.action, tt.success, got, tt.want)
		}
	}
}

func TestLevel_Ordering(t *testing.T) {
	levels := Levels()
	for i := 1; i < len(levels); i++ {
		if !levels[i].AtLeast(levels[i-1]) || levels[i-1].AtLeast(levels[i]) {
			t.Errorf("expected %s > %s", levels[i], levels[i-1])
		}
	}
	if Level("bogus").Valid() {
		t.Error("unknown level reported valid")
	}
}
