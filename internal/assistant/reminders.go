package assistant

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/RoyPeng126/ai-companion-sub000/internal/datetime"
	"github.com/RoyPeng126/ai-companion-sub000/internal/intent"
)

type categoryRule struct {
	category Category
	words    []string
}

// First match wins.
var categoryRules = []categoryRule{
	{category: CategoryMedicine, words: []string{"吃藥", "吃药", "服藥", "藥", "药"}},
	{category: CategoryAppointment, words: []string{"看診", "看醫生", "回診", "醫院", "診所", "复诊"}},
	{category: CategoryExercise, words: []string{"運動", "运动", "散步", "走路", "體操", "太極", "健走", "跳舞"}},
	{category: CategoryChat, words: []string{"聊天", "打電話", "視訊", "電話"}},
}

// CategoryFor picks a category from keywords in text; unknown text is other.
func CategoryFor(text string) Category {
	for _, rule := range categoryRules {
		for _, word := range rule.words {
			if strings.Contains(text, word) {
				return rule.category
			}
		}
	}
	return CategoryOther
}

var reminderTitleFillers = []string{"我要", "我", "要", "記得", "一下", "的時候", "去"}

func reminderTitle(rest string) string {
	value := strings.TrimSpace(rest)
	for _, filler := range reminderTitleFillers {
		value = strings.TrimPrefix(value, filler)
	}
	return strings.TrimSpace(value)
}

func (r *Router) createReminder(ctx context.Context, caller Caller, cmd intent.Intent, _ string) (Outcome, error) {
	at, parsed, err := r.reminderTime(cmd)
	if err != nil {
		return Outcome{Text: "抱歉，我聽不懂提醒的時間，請再說一次，例如「提醒我明天早上9點吃藥」。"}, nil
	}
	title := reminderTitle(parsed.Rest)
	category := CategoryFor(cmd.Payload)

	if r.classifier != nil {
		fields, err := r.classifier.ClassifyReminder(ctx, cmd.Payload)
		if err != nil {
			log.Printf("reminder classifier failed user_id=%s err=%v", caller.UserID, err)
		} else {
			title, category, at = r.supplement(fields, parsed, title, category, at)
		}
	}
	if utf8.RuneCountInString(title) == 0 {
		return Outcome{Text: "要提醒你做什麼呢？請再說一次，例如「提醒我明天早上9點吃藥」。"}, nil
	}

	saved, err := r.repo.CreateReminder(ctx, Reminder{
		UserID:   caller.UserID,
		Title:    title,
		Category: category,
		StartAt:  at,
		RemindAt: at,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("create reminder: %w", err)
	}
	return Outcome{Text: fmt.Sprintf("好的，我會在%s提醒你%s。", r.resolver.Describe(saved.StartAt), saved.Title)}, nil
}

// reminderTime reads the time from the words after the trigger; a day or
// clock they lack is taken from the words before it.
func (r *Router) reminderTime(cmd intent.Intent) (time.Time, datetime.Parsed, error) {
	at, parsed, err := r.resolver.Resolve(cmd.Payload, "")
	if err != nil {
		return time.Time{}, parsed, err
	}
	lead := r.resolver.Parse(cmd.Lead)
	if (parsed.HasDate || !lead.HasDate) && (parsed.HasClock || !lead.HasClock) {
		return at, parsed, nil
	}

	date := at
	if !parsed.HasDate && lead.HasDate {
		date, parsed.Date, parsed.HasDate = lead.Date, lead.Date, true
	}
	clock := at.In(r.resolver.Location()).Format("15:04")
	if !parsed.HasClock && lead.HasClock {
		clock, parsed.Clock, parsed.HasClock = lead.Clock, lead.Clock, true
	}
	at, err = r.resolver.Combine(date, clock)
	return at, parsed, err
}

// supplement lets the extractor fill what the rules could not: the
// category when the rules said other, the title when none was left, and the
// day or clock when the text carried none.
func (r *Router) supplement(fields ReminderFields, parsed datetime.Parsed, title string, category Category, at time.Time) (string, Category, time.Time) {
	if candidate := Category(strings.ToLower(strings.TrimSpace(fields.Category))); category == CategoryOther && candidate.Valid() {
		category = candidate
	}
	if title == "" {
		title = strings.TrimSpace(fields.Title)
	}

	date := at
	if !parsed.HasDate && fields.Date != "" {
		if day, err := time.ParseInLocation("2006-01-02", fields.Date, r.resolver.Location()); err == nil {
			date = day
		}
	}
	clock := at.In(r.resolver.Location()).Format("15:04")
	if !parsed.HasClock && fields.Time != "" {
		if _, _, err := datetime.SplitClock(fields.Time); err == nil {
			clock = fields.Time
		}
	}
	if combined, err := r.resolver.Combine(date, clock); err == nil {
		at = combined
	}
	return title, category, at
}

func (r *Router) todayReminders(ctx context.Context, userID string) ([]Reminder, error) {
	today := r.resolver.Today()
	reminders, err := r.repo.RemindersBetween(ctx, userID, today, today.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("list today reminders: %w", err)
	}
	sort.SliceStable(reminders, func(i, j int) bool {
		return reminders[i].StartAt.Before(reminders[j].StartAt)
	})
	return reminders, nil
}

func pendingOf(reminders []Reminder) []Reminder {
	pending := make([]Reminder, 0, len(reminders))
	for _, reminder := range reminders {
		if !reminder.Completed {
			pending = append(pending, reminder)
		}
	}
	return pending
}

func (r *Router) describeList(reminders []Reminder, showState bool) string {
	parts := make([]string, 0, len(reminders))
	for i, reminder := range reminders {
		line := fmt.Sprintf("%s、%s %s", ordinalWord(i+1), reminder.StartAt.In(r.resolver.Location()).Format("15:04"), reminder.Title)
		if showState && reminder.Completed {
			line += "（已完成）"
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, "；")
}

func (r *Router) viewTodayReminders(ctx context.Context, caller Caller, _ intent.Intent, _ string) (Outcome, error) {
	reminders, err := r.todayReminders(ctx, caller.UserID)
	if err != nil {
		return Outcome{}, err
	}
	if len(reminders) == 0 {
		return Outcome{Text: "今天沒有提醒喔。"}, nil
	}
	return Outcome{Text: fmt.Sprintf("今天有%d個提醒：%s。", len(reminders), r.describeList(reminders, true))}, nil
}

func (r *Router) checkCompletion(ctx context.Context, caller Caller, _ intent.Intent, _ string) (Outcome, error) {
	reminders, err := r.todayReminders(ctx, caller.UserID)
	if err != nil {
		return Outcome{}, err
	}
	if len(reminders) == 0 {
		return Outcome{Text: "今天沒有提醒喔。"}, nil
	}
	pending := pendingOf(reminders)
	if len(pending) == 0 {
		return Outcome{Text: fmt.Sprintf("今天的%d個提醒都完成了，做得很好！", len(reminders))}, nil
	}
	return Outcome{Text: fmt.Sprintf("今天還有%d個提醒沒完成：%s。完成後可以跟我說「完成第一個提醒」。",
		len(pending), r.describeList(pending, false))}, nil
}

// markComplete counts the ordinal among today's pending reminders. When the
// utterance names a category and no ordinal, the first pending reminder of
// that category is chosen.
func (r *Router) markComplete(ctx context.Context, caller Caller, cmd intent.Intent, _ string) (Outcome, error) {
	reminders, err := r.todayReminders(ctx, caller.UserID)
	if err != nil {
		return Outcome{}, err
	}
	pending := pendingOf(reminders)
	if len(pending) == 0 {
		return Outcome{Text: "今天沒有需要完成的提醒喔。"}, nil
	}

	target, ok := pick(pending, cmd.Ordinal)
	if category := CategoryFor(cmd.Payload); cmd.Ordinal == 1 && category != CategoryOther {
		for _, reminder := range pending {
			if reminder.Category == category {
				target, ok = reminder, true
				break
			}
		}
	}
	if !ok {
		return Outcome{Text: fmt.Sprintf("找不到第%s個提醒，今天還有%d個提醒沒完成。", ordinalWord(cmd.Ordinal), len(pending))}, nil
	}

	if err := r.repo.CompleteReminder(ctx, caller.UserID, target.ID, r.resolver.Now()); err != nil {
		return Outcome{}, fmt.Errorf("complete reminder: %w", err)
	}
	left := len(pending) - 1
	if left == 0 {
		return Outcome{Text: fmt.Sprintf("好的，「%s」完成了，今天的提醒都完成了！", target.Title)}, nil
	}
	return Outcome{Text: fmt.Sprintf("好的，「%s」完成了，今天還有%d個提醒。", target.Title, left)}, nil
}
