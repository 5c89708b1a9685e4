package cronexpr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ParsedPhrase is the result of parsing a natural-language time phrase:
// either a cron expression (recurring) or a concrete future instant (one-shot).
type ParsedPhrase struct {
	CronExpression string
	At             *time.Time
}

var (
	reEveryDayAt    = regexp.MustCompile(`^every day at (\d{1,2})(?::(\d{2}))?$`)
	reWeekdaysAt    = regexp.MustCompile(`^weekdays at (\d{1,2})(?::(\d{2}))?$`)
	reWeekendsAt    = regexp.MustCompile(`^weekends at (\d{1,2})(?::(\d{2}))?$`)
	reEveryWeekOn   = regexp.MustCompile(`^every week on (\w+) at (\d{1,2})(?::(\d{2}))?$`)
	reEveryMonthOn  = regexp.MustCompile(`^every month on the (\d{1,2})(?:st|nd|rd|th)? at (\d{1,2})(?::(\d{2}))?$`)
	reEveryNMinutes = regexp.MustCompile(`^every (\d+) minutes?$`)
	reEveryNHours   = regexp.MustCompile(`^every (\d+) hours?$`)
	reTomorrowAt    = regexp.MustCompile(`^tomorrow at (\d{1,2})(?::(\d{2}))?$`)
	reTodayAt       = regexp.MustCompile(`^today at (\d{1,2})(?::(\d{2}))?$`)
	reInN           = regexp.MustCompile(`^in (\d+) (minutes?|hours?)$`)
	reAbsolute      = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}) (\d{2}):(\d{2})$`)

	// Korean-language phrases for the same documented subset. Weekday
	// tokens are matched as whole tokens, with no substring or
	// single-character fallback, so "월요일" is never misread via its "일"
	// substring — see the weekday token table below.
	reKrEveryDayAt  = regexp.MustCompile(`^매일 오(전|후) (\d{1,2})시$`)
	reKrWeekdaysAt  = regexp.MustCompile(`^평일 오(전|후) (\d{1,2})시$`)
	reKrWeeklyOn    = regexp.MustCompile(`^매주 (.+?) 오(전|후) (\d{1,2})시$`)
)

// krWeekdayTokens is ordered longest-match-first: every token here is the
// same length (3 runes, "X요일"), so iterating in map order would be fine
// for this set, but the table is kept explicit and ordered to document the
// resolution rule rather than rely on incidental length uniformity.
var krWeekdayTokens = []struct {
	token string
	dow   string // matches the three-letter English day used by Parse/field names
}{
	{"월요일", "mon"},
	{"화요일", "tue"},
	{"수요일", "wed"},
	{"목요일", "thu"},
	{"금요일", "fri"},
	{"토요일", "sat"},
	{"일요일", "sun"},
}

// resolveKoreanWeekday returns the weekday whose token equals s (after
// trimming surrounding space); s that is not exactly one table token is
// not recognized. It never matches a substring (e.g. the trailing "일" of
// "월요일") against a different weekday's token, because every candidate
// is compared as a whole unit rather than by scanning individual runes.
func resolveKoreanWeekday(s string) (dow string, ok bool) {
	s = strings.TrimSpace(s)
	for _, entry := range krWeekdayTokens {
		if s == entry.token {
			return entry.dow, true
		}
	}
	return "", false
}

// ParseNL parses a natural-language time phrase into either a cron
// expression or a concrete instant. now/loc are used to resolve relative
// phrases ("tomorrow", "in N minutes"). Returns ok=false for an
// unrecognized phrase.
func ParseNL(phrase string, now time.Time, loc *time.Location) (ParsedPhrase, bool) {
	p := strings.ToLower(strings.TrimSpace(phrase))

	if m := reEveryDayAt.FindStringSubmatch(p); m != nil {
		h, mi := atoiHM(m[1], m[2])
		return ParsedPhrase{CronExpression: fmt.Sprintf("%d %d * * *", mi, h)}, true
	}
	if m := reWeekdaysAt.FindStringSubmatch(p); m != nil {
		h, mi := atoiHM(m[1], m[2])
		return ParsedPhrase{CronExpression: fmt.Sprintf("%d %d * * 1-5", mi, h)}, true
	}
	if m := reWeekendsAt.FindStringSubmatch(p); m != nil {
		h, mi := atoiHM(m[1], m[2])
		return ParsedPhrase{CronExpression: fmt.Sprintf("%d %d * * 0,6", mi, h)}, true
	}
	if m := reEveryWeekOn.FindStringSubmatch(p); m != nil {
		dow, ok := dowNames[m[1][:3]]
		if !ok {
			return ParsedPhrase{}, false
		}
		h, mi := atoiHM(m[2], m[3])
		return ParsedPhrase{CronExpression: fmt.Sprintf("%d %d * * %d", mi, h, dow)}, true
	}
	if m := reEveryMonthOn.FindStringSubmatch(p); m != nil {
		day, _ := strconv.Atoi(m[1])
		h, mi := atoiHM(m[2], m[3])
		return ParsedPhrase{CronExpression: fmt.Sprintf("%d %d %d * *", mi, h, day)}, true
	}
	if m := reEveryNMinutes.FindStringSubmatch(p); m != nil {
		n, _ := strconv.Atoi(m[1])
		return ParsedPhrase{CronExpression: fmt.Sprintf("*/%d * * * *", n)}, true
	}
	if m := reEveryNHours.FindStringSubmatch(p); m != nil {
		n, _ := strconv.Atoi(m[1])
		return ParsedPhrase{CronExpression: fmt.Sprintf("0 */%d * * *", n)}, true
	}
	if m := reTomorrowAt.FindStringSubmatch(p); m != nil {
		h, mi := atoiHM(m[1], m[2])
		t := time.Date(now.Year(), now.Month(), now.Day()+1, h, mi, 0, 0, loc)
		return ParsedPhrase{At: &t}, true
	}
	if m := reTodayAt.FindStringSubmatch(p); m != nil {
		h, mi := atoiHM(m[1], m[2])
		t := time.Date(now.Year(), now.Month(), now.Day(), h, mi, 0, 0, loc)
		return ParsedPhrase{At: &t}, true
	}
	if m := reInN.FindStringSubmatch(p); m != nil {
		n, _ := strconv.Atoi(m[1])
		var t time.Time
		if strings.HasPrefix(m[2], "hour") {
			t = now.Add(time.Duration(n) * time.Hour)
		} else {
			t = now.Add(time.Duration(n) * time.Minute)
		}
		return ParsedPhrase{At: &t}, true
	}
	if m := reAbsolute.FindStringSubmatch(p); m != nil {
		t, err := time.ParseInLocation("2006-01-02 15:04", m[1]+" "+m[2]+":"+m[3], loc)
		if err != nil {
			return ParsedPhrase{}, false
		}
		return ParsedPhrase{At: &t}, true
	}

	// Korean phrases.
	if m := reKrEveryDayAt.FindStringSubmatch(p); m != nil {
		h := krHour(m[1], m[2])
		return ParsedPhrase{CronExpression: fmt.Sprintf("0 %d * * *", h)}, true
	}
	if m := reKrWeekdaysAt.FindStringSubmatch(p); m != nil {
		h := krHour(m[1], m[2])
		return ParsedPhrase{CronExpression: fmt.Sprintf("0 %d * * 1-5", h)}, true
	}
	if m := reKrWeeklyOn.FindStringSubmatch(p); m != nil {
		dow, ok := resolveKoreanWeekday(m[1])
		if !ok {
			return ParsedPhrase{}, false
		}
		h := krHour(m[2], m[3])
		return ParsedPhrase{CronExpression: fmt.Sprintf("0 %d * * %d", h, dowNames[dow])}, true
	}

	return ParsedPhrase{}, false
}

func atoiHM(hs, ms string) (h, m int) {
	h, _ = strconv.Atoi(hs)
	if ms != "" {
		m, _ = strconv.Atoi(ms)
	}
	return h, m
}

// krHour converts a Korean AM/PM marker ("전"/"후") plus a 1-12 hour into 24h.
func krHour(ampm, hs string) int {
	h, _ := strconv.Atoi(hs)
	if ampm == "후" && h != 12 {
		h += 12
	}
	if ampm == "전" && h == 12 {
		h = 0
	}
	return h
}
