package league

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name      string
		dateText  string
		wantYear  int
		wantMonth time.Month
		wantDay   int
		wantZero  bool
	}{
		{
			name:      "full date 01.10.2016",
			dateText:  "01.10.2016",
			wantYear:  2016,
			wantMonth: time.October,
			wantDay:   1,
		},
		{
			name:      "single digit day and month 1.9.2016",
			dateText:  "1.9.2016",
			wantYear:  2016,
			wantMonth: time.September,
			wantDay:   1,
		},
		{
			name:      "short year 15.03.17",
			dateText:  "15.03.17",
			wantYear:  2017,
			wantMonth: time.March,
			wantDay:   15,
		},
		{
			name:      "weekday prefix",
			dateText:  "Sa 08.10.2016",
			wantYear:  2016,
			wantMonth: time.October,
			wantDay:   8,
		},
		{
			name:      "weekday prefix with dot",
			dateText:  "Mi. 12.10.2016",
			wantYear:  2016,
			wantMonth: time.October,
			wantDay:   12,
		},
		{
			name:     "empty",
			dateText: "",
			wantZero: true,
		},
		{
			name:     "garbage",
			dateText: "verschoben",
			wantZero: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseDate(tt.dateText)
			if tt.wantZero {
				if !got.IsZero() {
					t.Errorf("ParseDate(%q) = %v, want zero", tt.dateText, got)
				}
				return
			}
			if got.Year() != tt.wantYear || got.Month() != tt.wantMonth || got.Day() != tt.wantDay {
				t.Errorf("ParseDate(%q) = %v, want %d-%02d-%02d", tt.dateText, got, tt.wantYear, tt.wantMonth, tt.wantDay)
			}
		})
	}
}

func TestParseDateTime(t *testing.T) {
	got := ParseDateTime("08.10.2016", "20:15")
	if got.Hour() != 20 || got.Minute() != 15 {
		t.Errorf("ParseDateTime() = %v, want 20:15", got)
	}

	got = ParseDateTime("08.10.2016", "")
	if got.IsZero() || got.Hour() != 0 {
		t.Errorf("ParseDateTime() without time = %v, want midnight", got)
	}

	if !ParseDateTime("", "20:15").IsZero() {
		t.Error("ParseDateTime() without date should be zero")
	}
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		text     string
		wantHome int
		wantAway int
		wantOK   bool
	}{
		{"3:1", 3, 1, true},
		{" 0 : 3 ", 0, 3, true},
		{"25:23", 25, 23, true},
		{"", 0, 0, false},
		{"3-1", 0, 0, false},
		{"a:b", 0, 0, false},
		{"1:2:3", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			home, away, ok := ParseScore(tt.text)
			if ok != tt.wantOK || home != tt.wantHome || away != tt.wantAway {
				t.Errorf("ParseScore(%q) = (%d, %d, %v), want (%d, %d, %v)",
					tt.text, home, away, ok, tt.wantHome, tt.wantAway, tt.wantOK)
			}
		})
	}
}
