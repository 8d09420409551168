package models

import "testing"

func TestParseStopID(t *testing.T) {
	tests := []struct {
		id   string
		want StopKey
	}{
		{"-7874571842864554321-2405241145-3", StopKey{RideID: "-7874571842864554321-2405241145", StationNum: 3}},
		{"ICE-100-12", StopKey{RideID: "ICE-100", StationNum: 12}},
		{"8933471-2505080930-1", StopKey{RideID: "8933471-2505080930", StationNum: 1}},
	}
	for _, tc := range tests {
		got, err := ParseStopID(tc.id)
		if err != nil {
			t.Errorf("ParseStopID(%q): %v", tc.id, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseStopID(%q) = %+v, want %+v", tc.id, got, tc.want)
		}
		if got.StopID() != tc.id {
			t.Errorf("StopID() = %q, want %q", got.StopID(), tc.id)
		}
	}
}

func TestParseStopID_Invalid(t *testing.T) {
	for _, id := range []string{"", "noseparator", "-", "trailing-", "ride-x"} {
		if _, err := ParseStopID(id); err == nil {
			t.Errorf("ParseStopID(%q) succeeded, want error", id)
		}
	}
}
