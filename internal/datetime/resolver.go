// Package datetime turns spoken Chinese date and time expressions into absolute
// timestamps in a fixed local zone.
package datetime

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jmhodges/clock"
)

// DefaultClock is used when a caller does not name a time of day.
const DefaultClock = "09:00"

var (
	ErrInvalidClock = errors.New("clock must be HH:MM")

	taipei = time.FixedZone("UTC+8", 8*60*60)
)

type relativeDay struct {
	keyword string
	offset  int
}

// Longer keywords first so 大後天 is not read as 後天.
var relativeDays = []relativeDay{
	{keyword: "大後天", offset: 3},
	{keyword: "大后天", offset: 3},
	{keyword: "後天", offset: 2},
	{keyword: "后天", offset: 2},
	{keyword: "明天", offset: 1},
	{keyword: "明日", offset: 1},
	{keyword: "今天", offset: 0},
	{keyword: "今日", offset: 0},
	{keyword: "昨天", offset: -1},
}

var (
	pmHints   = []string{"下午", "晚上", "傍晚", "晚間"}
	amHints   = []string{"上午", "早上", "凌晨", "清晨", "早晨"}
	noonHints = []string{"中午"}
)

const numeralClass = `[0-9零〇一二兩两三四五六七八九十]`

var (
	isoDatePattern     = regexp.MustCompile(`(20\d{2})[-/.](\d{1,2})[-/.](\d{1,2})`)
	monthDayPattern    = regexp.MustCompile(`(\d{1,2})\s*(?:月|/|\.|-)\s*(\d{1,2})\s*(?:日|號|号)?`)
	hanMonthDayPattern = regexp.MustCompile(`([一二三四五六七八九十]{1,3})月([一二三四五六七八九十]{1,3})[日號号]`)
	colonClockPattern  = regexp.MustCompile(`(\d{1,2})[:：](\d{2})`)
	// Chinese minutes without 分 must contain 十 so that 3點一起 is not 3:01.
	pointClockPattern = regexp.MustCompile(`(` + numeralClass + `{1,3})\s*[點点時时]` +
		`(?:\s*(?:(半|整)|(\d{1,2})\s*分?|([一二兩两三四五]?十[一二三四五六七八九]?)\s*分?|[零〇]?([一二兩两三四五六七八九])\s*分))?`)
)

// DefaultLocation is the fixed UTC+8 zone every elder-facing timestamp uses.
func DefaultLocation() *time.Location {
	return taipei
}

type Resolver struct {
	clk clock.Clock
	loc *time.Location
}

func NewResolver(clk clock.Clock, loc *time.Location) *Resolver {
	if clk == nil {
		clk = clock.New()
	}
	if loc == nil {
		loc = taipei
	}
	return &Resolver{clk: clk, loc: loc}
}

func (r *Resolver) Now() time.Time {
	return r.clk.Now().In(r.loc)
}

func (r *Resolver) Location() *time.Location {
	return r.loc
}

// Today returns local midnight of the current day.
func (r *Resolver) Today() time.Time {
	return startOfDay(r.Now())
}

// Parsed holds every temporal signal found in one utterance.
type Parsed struct {
	Date     time.Time
	HasDate  bool
	Clock    string
	HasClock bool
	// Rest is the utterance with the matched temporal phrases cut out.
	Rest string
}

func (r *Resolver) Parse(text string) Parsed {
	parsed := Parsed{Rest: text}
	if date, span, ok := r.resolveDate(text); ok {
		parsed.Date = date
		parsed.HasDate = true
		parsed.Rest = cutSpan(parsed.Rest, span)
	}
	if clockValue, span, ok := resolveClock(parsed.Rest, text); ok {
		parsed.Clock = clockValue
		parsed.HasClock = true
		parsed.Rest = cutSpan(parsed.Rest, span)
	}
	for _, hint := range hintWords() {
		parsed.Rest = strings.ReplaceAll(parsed.Rest, hint, "")
	}
	parsed.Rest = strings.TrimSpace(parsed.Rest)
	return parsed
}

// ResolveDate reports the day named by text. Relative keywords are checked
// before explicit month/day forms and win when both are present.
func (r *Resolver) ResolveDate(text string) (time.Time, bool) {
	date, _, ok := r.resolveDate(text)
	return date, ok
}

// ResolveTime reports the clock time named by text as 24-hour HH:MM.
func ResolveTime(text string) (string, bool) {
	value, _, ok := resolveClock(text, text)
	return value, ok
}

// Resolve returns the absolute instant for text, defaulting to today and to
// fallbackClock (DefaultClock when empty).
func (r *Resolver) Resolve(text, fallbackClock string) (time.Time, Parsed, error) {
	parsed := r.Parse(text)
	date := r.Today()
	if parsed.HasDate {
		date = parsed.Date
	}
	clockValue := strings.TrimSpace(fallbackClock)
	if clockValue == "" {
		clockValue = DefaultClock
	}
	if parsed.HasClock {
		clockValue = parsed.Clock
	}
	at, err := r.Combine(date, clockValue)
	if err != nil {
		return time.Time{}, parsed, err
	}
	return at, parsed, nil
}

// Combine places an HH:MM clock on the given local day.
func (r *Resolver) Combine(date time.Time, clockValue string) (time.Time, error) {
	hour, minute, err := SplitClock(clockValue)
	if err != nil {
		return time.Time{}, err
	}
	local := date.In(r.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, r.loc), nil
}

// Describe renders t for speech: 今天/明天/後天 or M月D日, followed by HH:MM.
func (r *Resolver) Describe(t time.Time) string {
	local := t.In(r.loc)
	day := startOfDay(local)
	today := r.Today()
	label := fmt.Sprintf("%d月%d日", int(local.Month()), local.Day())
	switch int(day.Sub(today).Hours() / 24) {
	case 0:
		label = "今天"
	case 1:
		label = "明天"
	case 2:
		label = "後天"
	}
	return label + " " + local.Format("15:04")
}

// SplitClock parses HH:MM into hour and minute.
func SplitClock(value string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, 0, ErrInvalidClock
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, ErrInvalidClock
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, ErrInvalidClock
	}
	return hour, minute, nil
}

func (r *Resolver) resolveDate(text string) (time.Time, []int, bool) {
	today := r.Today()
	for _, item := range relativeDays {
		if idx := strings.Index(text, item.keyword); idx >= 0 {
			return today.AddDate(0, 0, item.offset), []int{idx, idx + len(item.keyword)}, true
		}
	}

	if match := isoDatePattern.FindStringSubmatchIndex(text); match != nil {
		year, _ := strconv.Atoi(text[match[2]:match[3]])
		month, _ := strconv.Atoi(text[match[4]:match[5]])
		day, _ := strconv.Atoi(text[match[6]:match[7]])
		if value, ok := buildDate(year, month, day, r.loc); ok {
			return value, match[:2], true
		}
	}

	if match := monthDayPattern.FindStringSubmatchIndex(text); match != nil {
		month, _ := strconv.Atoi(text[match[2]:match[3]])
		day, _ := strconv.Atoi(text[match[4]:match[5]])
		if value, ok := r.upcoming(month, day, today); ok {
			return value, match[:2], true
		}
	}

	if match := hanMonthDayPattern.FindStringSubmatchIndex(text); match != nil {
		month, mOK := ParseNumeral(text[match[2]:match[3]])
		day, dOK := ParseNumeral(text[match[4]:match[5]])
		if mOK && dOK {
			if value, ok := r.upcoming(month, day, today); ok {
				return value, match[:2], true
			}
		}
	}

	return time.Time{}, nil, false
}

// upcoming builds month/day in the current year, moving to next year when the
// day has already passed.
func (r *Resolver) upcoming(month, day int, today time.Time) (time.Time, bool) {
	value, ok := buildDate(today.Year(), month, day, r.loc)
	if !ok {
		return time.Time{}, false
	}
	if value.Before(today) {
		return buildDate(today.Year()+1, month, day, r.loc)
	}
	return value, true
}

// resolveClock searches text for a clock expression; hints are read from
// context, which may be wider than text.
func resolveClock(text, context string) (string, []int, bool) {
	hour, minute := -1, 0
	var span []int

	if match := colonClockPattern.FindStringSubmatchIndex(text); match != nil {
		h, _ := strconv.Atoi(text[match[2]:match[3]])
		m, _ := strconv.Atoi(text[match[4]:match[5]])
		hour, minute, span = h, m, match[:2]
	} else {
		for _, match := range pointClockPattern.FindAllStringSubmatchIndex(text, -1) {
			h, ok := ParseNumeral(text[match[2]:match[3]])
			if !ok || isLittleIdiom(text, context, match) {
				continue
			}
			hour, span = h, match[:2]
			switch {
			case match[4] >= 0:
				if text[match[4]:match[5]] == "半" {
					minute = 30
				}
			case match[6] >= 0:
				minute, _ = strconv.Atoi(text[match[6]:match[7]])
			case match[8] >= 0:
				minute, _ = ParseNumeral(text[match[8]:match[9]])
			case match[10] >= 0:
				minute, _ = ParseNumeral(text[match[10]:match[11]])
			}
			if rest := text[span[1]:]; strings.HasPrefix(rest, "鐘") || strings.HasPrefix(rest, "钟") {
				span = []int{span[0], span[1] + len("鐘")}
			}
			break
		}
	}

	if hour < 0 {
		if containsAny(context, noonHints) {
			return "12:00", nil, true
		}
		return "", nil, false
	}

	switch {
	case containsAny(context, pmHints):
		if hour < 12 {
			hour += 12
		}
	case containsAny(context, noonHints):
		if hour < 11 {
			hour += 12
		}
	case containsAny(context, amHints):
		if hour == 12 {
			hour = 0
		}
	}

	if hour > 23 || minute > 59 {
		return "", nil, false
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), span, true
}

// isLittleIdiom reports a bare 一點 that means "a little": no minutes, no
// 鐘 after it, no part-of-day word anywhere in context.
func isLittleIdiom(text, context string, match []int) bool {
	if text[match[2]:match[3]] != "一" {
		return false
	}
	for i := 4; i < len(match); i += 2 {
		if match[i] >= 0 {
			return false
		}
	}
	rest := text[match[1]:]
	if strings.HasPrefix(rest, "鐘") || strings.HasPrefix(rest, "钟") {
		return false
	}
	return !containsAny(context, hintWords())
}

var numeralDigits = map[rune]int{
	'零': 0, '〇': 0,
	'一': 1,
	'二': 2, '兩': 2, '两': 2,
	'三': 3, '四': 4, '五': 5,
	'六': 6, '七': 7, '八': 8, '九': 9,
}

// ParseNumeral reads Arabic digits or Chinese numerals up to 99.
func ParseNumeral(raw string) (int, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n, n >= 0
	}

	runes := []rune(value)
	tenIdx := -1
	for i, r := range runes {
		if r == '十' {
			if tenIdx >= 0 {
				return 0, false
			}
			tenIdx = i
			continue
		}
		if _, ok := numeralDigits[r]; !ok {
			return 0, false
		}
	}

	if tenIdx < 0 {
		if len(runes) != 1 {
			return 0, false
		}
		return numeralDigits[runes[0]], true
	}

	tens := 1
	switch tenIdx {
	case 0:
	case 1:
		tens = numeralDigits[runes[0]]
	default:
		return 0, false
	}
	ones := 0
	switch len(runes) - tenIdx - 1 {
	case 0:
	case 1:
		ones = numeralDigits[runes[tenIdx+1]]
	default:
		return 0, false
	}
	return tens*10 + ones, true
}

func buildDate(year, month, day int, loc *time.Location) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	value := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	if value.Year() != year || int(value.Month()) != month || value.Day() != day {
		return time.Time{}, false
	}
	return value, true
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func containsAny(text string, words []string) bool {
	for _, word := range words {
		if strings.Contains(text, word) {
			return true
		}
	}
	return false
}

func hintWords() []string {
	words := make([]string, 0, len(pmHints)+len(amHints)+len(noonHints))
	words = append(words, pmHints...)
	words = append(words, amHints...)
	return append(words, noonHints...)
}

func cutSpan(text string, span []int) string {
	if len(span) != 2 || span[0] < 0 || span[1] > len(text) || span[0] >= span[1] {
		return text
	}
	return text[:span[0]] + text[span[1]:]
}
