package wizard

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/RoyPeng126/ai-companion-sub000/internal/datetime"
)

type fieldLabel struct {
	prefix string
	field  string
}

// Longer prefixes first so 活動名稱 wins over 名稱.
var fieldLabels = []fieldLabel{
	{prefix: "活動名稱", field: "title"},
	{prefix: "名稱", field: "title"},
	{prefix: "標題", field: "title"},
	{prefix: "主題", field: "title"},
	{prefix: "叫做", field: "title"},
	{prefix: "地點", field: "location"},
	{prefix: "地址", field: "location"},
	{prefix: "說明", field: "description"},
	{prefix: "內容", field: "description"},
	{prefix: "備註", field: "description"},
	{prefix: "描述", field: "description"},
}

var labelJoiners = []string{"是", "為", "在", "：", ":"}

var titleFillers = []string{
	"我們", "我要", "我想", "想要", "一起", "幫我", "然後",
	"時間", "日期", "改成", "改到", "改為", "修改", "更改", "的話",
}

func isClauseSeparator(r rune) bool {
	switch r {
	case '，', ',', '。', '；', ';', '、', '！', '!', '？', '?', '\n':
		return true
	}
	return unicode.IsSpace(r)
}

// extract reads whatever activity fields text carries. Labelled fields and
// temporal phrases always override; an unlabelled title only fills a gap.
// Clause breaks matter: a labelled value runs to the end of its clause.
func extract(resolver *datetime.Resolver, text string, current Details) (Details, bool) {
	next := current
	changed := false
	for _, clause := range strings.FieldsFunc(text, isClauseSeparator) {
		if field, value, ok := labelledField(clause); ok {
			// A temporal phrase inside the value still sets the day or clock.
			if parsed := resolver.Parse(value); parsed.HasDate || parsed.HasClock {
				if parsed.HasDate {
					next.Date = parsed.Date.Format("2006-01-02")
				}
				if parsed.HasClock {
					next.Time = parsed.Clock
				}
				if parsed.Rest != "" {
					value = parsed.Rest
				}
			}
			switch field {
			case "title":
				next.Title = value
			case "location":
				next.Location = value
			case "description":
				next.Description = value
			}
			changed = true
			continue
		}

		parsed := resolver.Parse(clause)
		if parsed.HasDate {
			next.Date = parsed.Date.Format("2006-01-02")
			changed = true
		}
		if parsed.HasClock {
			next.Time = parsed.Clock
			changed = true
		}
		if next.Title == "" {
			if title := cleanTitle(parsed.Rest); utf8.RuneCountInString(title) >= 2 {
				next.Title = title
				changed = true
			}
		}
	}

	// A clock without a day means today.
	if next.Time != "" && next.Date == "" {
		next.Date = resolver.Today().Format("2006-01-02")
		changed = true
	}
	if changed {
		next.StartAt = resolveStart(resolver, next)
	}
	return next, changed
}

func labelledField(clause string) (string, string, bool) {
	for _, label := range fieldLabels {
		idx := strings.Index(clause, label.prefix)
		if idx < 0 {
			continue
		}
		value := clause[idx+len(label.prefix):]
		for _, joiner := range labelJoiners {
			value = strings.TrimPrefix(value, joiner)
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		return label.field, value, true
	}
	return "", "", false
}

func cleanTitle(rest string) string {
	value := strings.TrimSpace(rest)
	for _, filler := range titleFillers {
		value = strings.ReplaceAll(value, filler, "")
	}
	value = strings.TrimSpace(value)
	if containsAny(strings.ToLower(value), confirmKeywords) && utf8.RuneCountInString(value) <= 3 {
		return ""
	}
	return value
}

// resolveStart returns the zero time when the date or clock does not form a
// real instant; confirmation reports that back to the user.
func resolveStart(resolver *datetime.Resolver, d Details) time.Time {
	if d.Date == "" || d.Time == "" {
		return time.Time{}
	}
	day, err := time.ParseInLocation("2006-01-02", d.Date, resolver.Location())
	if err != nil {
		return time.Time{}
	}
	at, err := resolver.Combine(day, d.Time)
	if err != nil {
		return time.Time{}
	}
	return at
}
