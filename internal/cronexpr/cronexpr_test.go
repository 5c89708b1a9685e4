package cronexpr

import (
	"testing"
	"time"
)

func TestParseRejectsWrongFieldCount(t *testing.T) {
	if _, err := Parse("* * * *"); err == nil {
		t.Fatal("expected error for 4-field expression")
	}
}

func TestParseRejectsOutOfRangeMinute(t *testing.T) {
	if _, err := Parse("60 0 * * *"); err == nil {
		t.Fatal("expected error for minute 60")
	}
}

func TestParseAcceptsWeekdayNames(t *testing.T) {
	e, err := Parse("0 9 * * mon-fri")
	if err != nil {
		t.Fatal(err)
	}
	if !e.DayOfWeek[1] || !e.DayOfWeek[5] || e.DayOfWeek[0] {
		t.Fatal("expected Mon-Fri set, Sunday excluded")
	}
}

func TestNextRunSeoulMorning(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Skip("tzdata not available")
	}
	e, err := Parse("0 9 * * *")
	if err != nil {
		t.Fatal(err)
	}

	now := time.Date(2025, 1, 15, 8, 0, 0, 0, loc)
	next, ok := e.NextRun(now, loc)
	if !ok {
		t.Fatal("expected a next run")
	}
	want := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestNextRunSeoulRollsToNextDay(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Skip("tzdata not available")
	}
	e, err := Parse("0 9 * * *")
	if err != nil {
		t.Fatal(err)
	}

	now := time.Date(2025, 1, 15, 10, 0, 0, 0, loc)
	next, ok := e.NextRun(now, loc)
	if !ok {
		t.Fatal("expected a next run")
	}
	want := time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestParseNLKoreanDaily(t *testing.T) {
	p, ok := ParseNL("매일 오후 3시", time.Now(), time.UTC)
	if !ok || p.CronExpression != "0 15 * * *" {
		t.Fatalf("expected cron '0 15 * * *', got %+v ok=%v", p, ok)
	}
}

func TestParseNLKoreanWeekdays(t *testing.T) {
	p, ok := ParseNL("평일 오후 6시", time.Now(), time.UTC)
	if !ok || p.CronExpression != "0 18 * * 1-5" {
		t.Fatalf("expected cron '0 18 * * 1-5', got %+v ok=%v", p, ok)
	}
}

func TestParseNLUnrecognized(t *testing.T) {
	_, ok := ParseNL("매일", time.Now(), time.UTC)
	if ok {
		t.Fatal("expected 'not recognized' for phrase with no time")
	}
}

func TestResolveKoreanWeekdayDoesNotConfuseMonAndSun(t *testing.T) {
	dow, ok := resolveKoreanWeekday("월요일")
	if !ok || dow != "mon" {
		t.Fatalf("expected mon, got %q ok=%v", dow, ok)
	}
	dow, ok = resolveKoreanWeekday("일요일")
	if !ok || dow != "sun" {
		t.Fatalf("expected sun, got %q ok=%v", dow, ok)
	}
}

func TestParseNLInMinutes(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p, ok := ParseNL("in 10 minutes", now, time.UTC)
	if !ok || p.At == nil {
		t.Fatal("expected a concrete instant")
	}
	if !p.At.Equal(now.Add(10 * time.Minute)) {
		t.Fatalf("expected now+10m, got %v", p.At)
	}
}
