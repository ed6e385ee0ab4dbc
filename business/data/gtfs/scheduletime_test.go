package gtfs

import (
	"testing"
	"time"
)

func TestServiceSecondsToTime(t *testing.T) {
	location, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatalf("loading test time zone: %v", err)
	}

	tests := []struct {
		name            string
		midnight        time.Time
		scheduleSeconds int
		want            time.Time
	}{
		{
			name:            "12am",
			midnight:        time.Date(2020, 1, 9, 0, 0, 0, 0, location),
			scheduleSeconds: 0,
			want:            time.Date(2020, 1, 9, 0, 0, 0, 0, location),
		},
		{
			name:            "12pm",
			midnight:        time.Date(2020, 1, 9, 0, 0, 0, 0, location),
			scheduleSeconds: 43200,
			want:            time.Date(2020, 1, 9, 12, 0, 0, 0, location),
		},
		{
			name:            "12:30pm, on fall-back day",
			midnight:        time.Date(2018, 11, 4, 0, 0, 0, 0, location),
			scheduleSeconds: 45000,
			want:            time.Date(2018, 11, 4, 12, 30, 0, 0, location),
		},
		{
			name:            "12:30pm, on spring-forward day",
			midnight:        time.Date(2019, 3, 10, 0, 0, 0, 0, location),
			scheduleSeconds: 45000,
			want:            time.Date(2019, 3, 10, 12, 30, 0, 0, location),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ServiceSecondsToTime(tt.midnight, tt.scheduleSeconds)
			if !got.Equal(tt.want) {
				t.Errorf("ServiceSecondsToTime() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTimeToServiceSecondsRoundTrip(t *testing.T) {
	location, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatalf("loading test time zone: %v", err)
	}

	dates := []time.Time{
		time.Date(2020, 1, 9, 0, 0, 0, 0, location),
		time.Date(2018, 11, 4, 0, 0, 0, 0, location),
		time.Date(2019, 3, 10, 0, 0, 0, 0, location),
	}
	seconds := []int{0, 3600, 43200, 45000, 86399}

	for _, midnight := range dates {
		for _, sec := range seconds {
			at := ServiceSecondsToTime(midnight, sec)
			got := TimeToServiceSeconds(midnight, at)
			if got != sec {
				t.Errorf("round trip for midnight=%v seconds=%d: got %d", midnight, sec, got)
			}
		}
	}
}

func TestAbsoluteToServiceSeconds(t *testing.T) {
	location, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatalf("loading test time zone: %v", err)
	}
	midnight := time.Date(2024, 6, 1, 0, 0, 0, 0, location)

	noon := midnight.Add(12 * time.Hour)
	got, err := AbsoluteToServiceSeconds(noon.Unix(), midnight)
	if err != nil {
		t.Fatalf("AbsoluteToServiceSeconds: %v", err)
	}
	if got != 43200 {
		t.Errorf("got %d seconds, want 43200", got)
	}

	tooLate := midnight.Add(49 * time.Hour)
	if _, err := AbsoluteToServiceSeconds(tooLate.Unix(), midnight); err == nil {
		t.Error("expected an error for an offset beyond MaxServiceSeconds")
	}

	tooEarly := midnight.Add(-time.Hour)
	if _, err := AbsoluteToServiceSeconds(tooEarly.Unix(), midnight); err == nil {
		t.Error("expected an error for a negative offset")
	}
}
