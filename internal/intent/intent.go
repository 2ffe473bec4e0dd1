// Package intent classifies an elder's spoken command into one of a fixed set
// of actions. Classification is pure: it reads the text and the caller's role
// and never touches storage.
package intent

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/RoyPeng126/ai-companion-sub000/internal/datetime"
)

type Kind string

const (
	KindNone                  Kind = "none"
	KindStartActivity         Kind = "start_activity"
	KindContinueSession       Kind = "continue_session"
	KindAddFriend             Kind = "add_friend"
	KindViewFriendInvites     Kind = "view_friend_invites"
	KindRespondFriendInvite   Kind = "respond_friend_invite"
	KindViewActivityInvites   Kind = "view_activity_invites"
	KindRespondActivityInvite Kind = "respond_activity_invite"
	KindCreateReminder        Kind = "create_reminder"
	KindViewTodayReminders    Kind = "view_today_reminders"
	KindCheckCompletion       Kind = "check_completion"
	KindMarkComplete          Kind = "mark_complete"
)

const RoleElder = "elder"

// Intent is one classified utterance.
type Intent struct {
	Kind Kind
	// Text is the normalized utterance.
	Text string
	// Ordinal is the 1-based list position the command refers to.
	Ordinal int
	// Accept is set for respond_* kinds.
	Accept bool
	// Target is the person named by add_friend.
	Target string
	// Payload is the part of the utterance after the command trigger.
	// start_activity keeps the caller's punctuation so clause breaks survive.
	Payload string
	// Lead is the part of a create_reminder utterance before the trigger.
	Lead string
}

func (i Intent) IsCommand() bool {
	return i.Kind != KindNone
}

// State is what the classifier knows about the caller besides the text.
type State struct {
	Role       string
	HasSession bool
}

type rule struct {
	kind  Kind
	match func(text string, state State) (Intent, bool)
}

// rules is evaluated top to bottom; the first match wins.
var rules = []rule{
	{kind: KindStartActivity, match: matchStartActivity},
	{kind: KindContinueSession, match: matchContinueSession},
	{kind: KindAddFriend, match: matchAddFriend},
	{kind: KindViewFriendInvites, match: matchViewFriendInvites},
	{kind: KindRespondFriendInvite, match: matchRespondFriendInvite},
	{kind: KindViewActivityInvites, match: matchViewActivityInvites},
	{kind: KindRespondActivityInvite, match: matchRespondActivityInvite},
	{kind: KindCreateReminder, match: matchCreateReminder},
	{kind: KindViewTodayReminders, match: matchViewTodayReminders},
	{kind: KindCheckCompletion, match: matchCheckCompletion},
	{kind: KindMarkComplete, match: matchMarkComplete},
}

// Rules lists the command kinds in priority order.
func Rules() []Kind {
	kinds := make([]Kind, 0, len(rules))
	for _, item := range rules {
		kinds = append(kinds, item.kind)
	}
	return kinds
}

// Classify maps text to an Intent. Callers whose role is not elder always get
// KindNone so their message goes to ordinary chat.
func Classify(text string, state State) Intent {
	normalized := Normalize(text)
	none := Intent{Kind: KindNone, Text: normalized, Ordinal: 1}
	if NormalizeRole(state.Role) != RoleElder || normalized == "" {
		return none
	}
	for _, item := range rules {
		if result, ok := item.match(normalized, state); ok {
			result.Kind = item.kind
			result.Text = normalized
			if item.kind == KindStartActivity {
				result.Payload = rawRemainder(startActivityPattern, text, result.Payload)
			}
			if result.Ordinal < 1 {
				result.Ordinal = 1
			}
			return result
		}
	}
	return none
}

var sentencePunctuation = strings.NewReplacer(
	"，", "", "。", "", "！", "", "？", "", "、", "",
	",", "", "!", "", "?", "", "~", "", "～", "",
)

// Normalize removes whitespace and sentence punctuation.
func Normalize(text string) string {
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
	return sentencePunctuation.Replace(stripped)
}

// rawRemainder returns what follows pattern in the unnormalized text, or
// fallback when the trigger only matches once whitespace is gone.
func rawRemainder(pattern *regexp.Regexp, raw, fallback string) string {
	loc := pattern.FindStringIndex(raw)
	if loc == nil {
		return fallback
	}
	return strings.TrimSpace(strings.TrimLeftFunc(raw[loc[1]:], func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	}))
}

// NormalizeRole folds role aliases onto the canonical names.
func NormalizeRole(role string) string {
	value := strings.ToLower(strings.TrimSpace(role))
	switch value {
	case "elder", "elderly", "senior", "長者", "長輩", "老人":
		return RoleElder
	case "family", "家屬", "家人":
		return "family"
	case "caregiver", "照護者", "看護":
		return "caregiver"
	}
	return value
}

const ordinalClass = `[一二兩两三四五六七八九十\d]{1,2}`

const politePrefix = `^(?:我要|我想|請|请|幫我|帮我|麻煩|麻烦)*`

var (
	startActivityPattern = regexp.MustCompile(`(?:發起|建立|新增|舉辦|創建|安排|办|辦)(?:一個|一场|一場|個)?活動`)

	addFriendPrefixPattern = regexp.MustCompile(politePrefix + `(?:加|新增|添加)好友[:：]?(.*)$`)
	addFriendSuffixPattern = regexp.MustCompile(politePrefix + `(?:加|新增|添加)(.+?)(?:為|为|當|当|做|成為|成为)?(?:我的)?好友$`)

	friendInvitePattern   = regexp.MustCompile(`好友(?:邀請|申請|邀请|申请)`)
	activityInvitePattern = regexp.MustCompile(`活動(?:邀請|邀请)|邀請(?:我)?(?:參加|参加)?的活動`)
	activityWordPattern   = regexp.MustCompile(`活動`)

	declineVerbPattern = regexp.MustCompile(`拒絕|拒绝|婉拒|不接受|不參加|不参加|不要參加|不去`)
	acceptVerbPattern  = regexp.MustCompile(`接受|同意|答應|答应|參加|参加|我要去`)

	ordinalPattern = regexp.MustCompile(`第?(` + ordinalClass + `)個?`)

	reminderTriggerPattern = regexp.MustCompile(`提醒我|記得提醒|记得提醒|設定提醒|設個提醒|設一個提醒|新增提醒|加一個提醒`)

	todayRemindersPattern = regexp.MustCompile(`(?:今天|今日)(?:有)?(?:什麼|什么|哪些|的)?(?:提醒|行程|事情|安排|待辦)|(?:查看|看看|念|唸)(?:一下)?(?:今天的)?提醒`)

	checkCompletionPattern = regexp.MustCompile(`(?:完成|做完|吃過|吃了|吃藥|吃药|運動|运动)了?(?:嗎|吗|沒有|没有|沒|没)$|還有(?:什麼|哪些|幾個|几个)?(?:事情?|提醒)?(?:沒|还没|還沒|未)(?:做|完成)`)

	markCompletePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:已經|已经)?(?:完成|做完|搞定)了?(第?` + ordinalClass + `個?)?提醒(第?` + ordinalClass + `個?)?`),
		regexp.MustCompile(`提醒(第?` + ordinalClass + `個?)?(?:已經|已经)?(?:完成|做完|搞定)了?()`),
		regexp.MustCompile(`()(?:吃過藥|吃过药|吃藥了|吃药了|藥吃了|药吃了|運動完了|运动完了|運動過了|看完醫生了|打卡)()`),
	}
)

func matchStartActivity(text string, state State) (Intent, bool) {
	if state.HasSession {
		return Intent{}, false
	}
	loc := startActivityPattern.FindStringIndex(text)
	if loc == nil {
		return Intent{}, false
	}
	return Intent{Payload: text[loc[1]:]}, true
}

// A live wizard session claims every utterance, including a repeated
// start-activity command.
func matchContinueSession(text string, state State) (Intent, bool) {
	if !state.HasSession {
		return Intent{}, false
	}
	return Intent{Payload: text}, true
}

func matchAddFriend(text string, _ State) (Intent, bool) {
	if match := addFriendPrefixPattern.FindStringSubmatch(text); match != nil {
		return Intent{Target: strings.TrimSpace(match[1])}, true
	}
	if match := addFriendSuffixPattern.FindStringSubmatch(text); match != nil {
		return Intent{Target: strings.TrimSpace(match[1])}, true
	}
	return Intent{}, false
}

func matchViewFriendInvites(text string, _ State) (Intent, bool) {
	return matchViewInvites(friendInvitePattern, text)
}

func matchRespondFriendInvite(text string, _ State) (Intent, bool) {
	return matchRespondInvite(friendInvitePattern, text, false)
}

func matchViewActivityInvites(text string, _ State) (Intent, bool) {
	return matchViewInvites(activityInvitePattern, text)
}

func matchRespondActivityInvite(text string, _ State) (Intent, bool) {
	return matchRespondInvite(activityInvitePattern, text, true)
}

// An invite listing mentions the invite word with no accept or decline verb.
func matchViewInvites(word *regexp.Regexp, text string) (Intent, bool) {
	if !word.MatchString(text) {
		return Intent{}, false
	}
	rest := word.ReplaceAllString(text, " ")
	if declineVerbPattern.MatchString(rest) || acceptVerbPattern.MatchString(rest) {
		return Intent{}, false
	}
	return Intent{}, true
}

// looseActivity admits 參加活動二 style answers that omit 邀請 but name an
// ordinal.
func matchRespondInvite(word *regexp.Regexp, text string, looseActivity bool) (Intent, bool) {
	matched := word.MatchString(text)
	rest := word.ReplaceAllString(text, " ")
	if !matched {
		if !looseActivity || !activityWordPattern.MatchString(text) {
			return Intent{}, false
		}
		rest = activityWordPattern.ReplaceAllString(text, " ")
		if ordinalPattern.FindString(rest) == "" {
			return Intent{}, false
		}
	}

	result := Intent{Ordinal: ordinalIn(rest)}
	switch {
	case declineVerbPattern.MatchString(rest):
		result.Accept = false
	case acceptVerbPattern.MatchString(rest):
		result.Accept = true
	default:
		return Intent{}, false
	}
	return result, true
}

func matchCreateReminder(text string, _ State) (Intent, bool) {
	loc := reminderTriggerPattern.FindStringIndex(text)
	if loc == nil {
		return Intent{}, false
	}
	return Intent{Payload: text[loc[1]:], Lead: text[:loc[0]]}, true
}

// Completion questions mention 今天 too; they are left for check_completion.
func matchViewTodayReminders(text string, _ State) (Intent, bool) {
	if !todayRemindersPattern.MatchString(text) || checkCompletionPattern.MatchString(text) {
		return Intent{}, false
	}
	return Intent{}, true
}

func matchCheckCompletion(text string, _ State) (Intent, bool) {
	if !checkCompletionPattern.MatchString(text) {
		return Intent{}, false
	}
	return Intent{}, true
}

func matchMarkComplete(text string, _ State) (Intent, bool) {
	for _, pattern := range markCompletePatterns {
		match := pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		// The ordinal may sit before 提醒 or trail it, as in 完成提醒二.
		return Intent{Ordinal: ordinalIn(match[1] + match[2]), Payload: text}, true
	}
	return Intent{}, false
}

// ParseOrdinal reads 一..十 or digits; anything else is the first item.
func ParseOrdinal(raw string) int {
	value := strings.TrimSpace(raw)
	value = strings.TrimPrefix(value, "第")
	value = strings.TrimSuffix(value, "個")
	n, ok := datetime.ParseNumeral(value)
	if !ok || n < 1 || n > 10 {
		return 1
	}
	return n
}

func ordinalIn(text string) int {
	match := ordinalPattern.FindStringSubmatch(text)
	if match == nil {
		return 1
	}
	return ParseOrdinal(match[1])
}
