package sweep

import (
	"reflect"
	"testing"
	"time"
)

func TestDueReportsOncePerDay(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Kyiv")
	if err != nil {
		t.Fatal(err)
	}
	s := &Schedule{ReportHour: 9, Location: loc}

	monday := time.Date(2026, 3, 2, 8, 59, 0, 0, loc)
	if got := s.dueReports(monday); got != nil {
		t.Fatalf("before the hour: %v", got)
	}
	if got := s.dueReports(monday.Add(time.Minute)); !reflect.DeepEqual(got, []string{KindDailyReport, KindWeeklyReport}) {
		t.Fatalf("monday 09:00: %v", got)
	}
	if got := s.dueReports(monday.Add(30 * time.Minute)); got != nil {
		t.Fatalf("second poll same day: %v", got)
	}

	tuesday := monday.Add(24*time.Hour + 5*time.Minute)
	if got := s.dueReports(tuesday); !reflect.DeepEqual(got, []string{KindDailyReport}) {
		t.Fatalf("tuesday 09:04: %v", got)
	}
}

func TestDueReportsUsesLocalHour(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Kyiv")
	if err != nil {
		t.Fatal(err)
	}
	s := &Schedule{ReportHour: 9, Location: loc}
	// 07:00 UTC is 09:00 in Kyiv in March (UTC+2)
	if got := s.dueReports(time.Date(2026, 3, 3, 7, 0, 0, 0, time.UTC)); len(got) != 1 {
		t.Fatalf("got %v", got)
	}
}
