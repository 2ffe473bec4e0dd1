package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RoyPeng126/ai-companion-sub000/internal/datetime"
	"github.com/RoyPeng126/ai-companion-sub000/internal/intent"
	"github.com/RoyPeng126/ai-companion-sub000/internal/wizard"
)

var taipei = datetime.DefaultLocation()

type memoryRepo struct {
	mu              sync.Mutex
	users           []Person
	requests        [][2]string
	friendInvites   []FriendInvite
	friendResponses map[string]bool
	activityInvites []ActivityInvite
	activityReplies map[string]bool
	reminders       []Reminder
	failReminders   error
	nextID          int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		friendResponses: make(map[string]bool),
		activityReplies: make(map[string]bool),
	}
}

func (m *memoryRepo) FindUser(_ context.Context, query string) (Person, error) {
	for _, user := range m.users {
		if user.Name == query || user.Phone == query || user.Email == query {
			return user, nil
		}
	}
	return Person{}, ErrNoSuchItem
}

func (m *memoryRepo) RequestFriend(_ context.Context, from, to string) error {
	for _, pair := range m.requests {
		if pair == [2]string{from, to} {
			return ErrAlreadyLinked
		}
	}
	m.requests = append(m.requests, [2]string{from, to})
	return nil
}

func (m *memoryRepo) PendingFriendInvites(context.Context, string) ([]FriendInvite, error) {
	var pending []FriendInvite
	for _, invite := range m.friendInvites {
		if _, done := m.friendResponses[invite.ID]; !done {
			pending = append(pending, invite)
		}
	}
	return pending, nil
}

func (m *memoryRepo) RespondFriendInvite(_ context.Context, _ string, inviteID string, accept bool) error {
	m.friendResponses[inviteID] = accept
	return nil
}

func (m *memoryRepo) PendingActivityInvites(context.Context, string) ([]ActivityInvite, error) {
	var pending []ActivityInvite
	for _, invite := range m.activityInvites {
		if _, done := m.activityReplies[invite.EventID]; !done {
			pending = append(pending, invite)
		}
	}
	return pending, nil
}

func (m *memoryRepo) RespondActivityInvite(_ context.Context, _ string, eventID string, accept bool) error {
	m.activityReplies[eventID] = accept
	return nil
}

func (m *memoryRepo) CreateReminder(_ context.Context, reminder Reminder) (Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReminders != nil {
		return Reminder{}, m.failReminders
	}
	m.nextID++
	reminder.ID = fmt.Sprintf("rem-%d", m.nextID)
	m.reminders = append(m.reminders, reminder)
	return reminder, nil
}

func (m *memoryRepo) RemindersBetween(_ context.Context, userID string, from, to time.Time) ([]Reminder, error) {
	var out []Reminder
	for _, reminder := range m.reminders {
		if reminder.UserID == userID && !reminder.StartAt.Before(from) && reminder.StartAt.Before(to) {
			out = append(out, reminder)
		}
	}
	return out, nil
}

func (m *memoryRepo) CompleteReminder(_ context.Context, _ string, reminderID string, at time.Time) error {
	for i := range m.reminders {
		if m.reminders[i].ID == reminderID {
			m.reminders[i].Completed = true
			m.reminders[i].CompletedAt = &at
			return nil
		}
	}
	return ErrNoSuchItem
}

type activityRepo struct {
	mu      sync.Mutex
	created int
	titles  []string
}

func (a *activityRepo) CreateActivity(_ context.Context, _ string, details wizard.Details) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.created++
	a.titles = append(a.titles, details.Title)
	return fmt.Sprintf("evt-%d", a.created), nil
}

func (a *activityRepo) InviteFriends(context.Context, string, string) (wizard.FanoutResult, error) {
	return wizard.FanoutResult{}, nil
}

func (a *activityRepo) CreateActivityReminder(context.Context, string, wizard.Details) error {
	return nil
}

type stubClassifier struct {
	fields ReminderFields
	err    error
}

func (s stubClassifier) ClassifyReminder(context.Context, string) (ReminderFields, error) {
	return s.fields, s.err
}

type countingObserver struct {
	results map[string]int
}

func (o *countingObserver) IntentHandled(kind intent.Kind, result string) {
	o.results[string(kind)+":"+result]++
}

var elder = Caller{UserID: "elder-1", Role: "elder", Name: "林奶奶"}

func newTestRouter(t *testing.T, repo *memoryRepo, opts ...Option) (*Router, *activityRepo) {
	t.Helper()
	fake := clock.NewFake()
	fake.Set(time.Date(2026, 10, 17, 10, 0, 0, 0, taipei))
	resolver := datetime.NewResolver(fake, taipei)
	activities := &activityRepo{}
	wiz := wizard.New(wizard.NewMemoryStore(8, time.Hour), activities, resolver)
	return NewRouter(repo, wiz, resolver, opts...), activities
}

func handle(t *testing.T, router *Router, caller Caller, text string) Outcome {
	t.Helper()
	outcome, err := router.Handle(context.Background(), caller, text)
	require.NoError(t, err)
	return outcome
}

func TestMedicineReminderEndToEnd(t *testing.T) {
	repo := newMemoryRepo()
	router, _ := newTestRouter(t, repo)

	outcome := handle(t, router, elder, "提醒我明天早上9點吃藥")

	require.True(t, outcome.Handled)
	assert.Equal(t, intent.KindCreateReminder, outcome.Intent.Kind)
	require.Len(t, repo.reminders, 1)
	reminder := repo.reminders[0]
	assert.Equal(t, CategoryMedicine, reminder.Category)
	assert.Equal(t, "吃藥", reminder.Title)
	assert.Equal(t, time.Date(2026, 10, 18, 9, 0, 0, 0, taipei), reminder.StartAt)
	assert.Contains(t, outcome.Text, "吃藥")
	assert.Contains(t, outcome.Text, "明天 09:00")
}

func TestReminderDefaultsToTodayNineOClock(t *testing.T) {
	repo := newMemoryRepo()
	router, _ := newTestRouter(t, repo)

	handle(t, router, elder, "提醒我打電話給女兒")

	require.Len(t, repo.reminders, 1)
	assert.Equal(t, CategoryChat, repo.reminders[0].Category)
	assert.Equal(t, time.Date(2026, 10, 17, 9, 0, 0, 0, taipei), repo.reminders[0].StartAt)
}

func TestReminderTitleIgnoresWordsBeforeTrigger(t *testing.T) {
	repo := newMemoryRepo()
	router, _ := newTestRouter(t, repo)

	outcome := handle(t, router, elder, "我有一點累，提醒我喝水")

	require.Len(t, repo.reminders, 1)
	assert.Equal(t, "喝水", repo.reminders[0].Title)
	assert.Equal(t, time.Date(2026, 10, 17, 9, 0, 0, 0, taipei), repo.reminders[0].StartAt)
	assert.Contains(t, outcome.Text, "今天 09:00")
}

func TestReminderTimeBeforeTrigger(t *testing.T) {
	repo := newMemoryRepo()
	router, _ := newTestRouter(t, repo)

	handle(t, router, elder, "明天早上8點提醒我吃藥")

	require.Len(t, repo.reminders, 1)
	assert.Equal(t, "吃藥", repo.reminders[0].Title)
	assert.Equal(t, time.Date(2026, 10, 18, 8, 0, 0, 0, taipei), repo.reminders[0].StartAt)
}

func TestReminderClassifierSupplementsRules(t *testing.T) {
	repo := newMemoryRepo()
	classifier := stubClassifier{fields: ReminderFields{Title: "量血壓", Category: "appointment", Time: "20:30"}}
	router, _ := newTestRouter(t, repo, WithReminderClassifier(classifier))

	handle(t, router, elder, "提醒我明天量血壓")

	require.Len(t, repo.reminders, 1)
	reminder := repo.reminders[0]
	assert.Equal(t, "量血壓", reminder.Title)
	assert.Equal(t, CategoryAppointment, reminder.Category)
	assert.Equal(t, time.Date(2026, 10, 18, 20, 30, 0, 0, taipei), reminder.StartAt)
}

func TestReminderClassifierNeverOverridesExplicitValues(t *testing.T) {
	repo := newMemoryRepo()
	classifier := stubClassifier{fields: ReminderFields{Category: "chat", Date: "2026-12-01", Time: "20:30"}}
	router, _ := newTestRouter(t, repo, WithReminderClassifier(classifier))

	handle(t, router, elder, "提醒我明天早上9點吃藥")

	require.Len(t, repo.reminders, 1)
	assert.Equal(t, CategoryMedicine, repo.reminders[0].Category)
	assert.Equal(t, time.Date(2026, 10, 18, 9, 0, 0, 0, taipei), repo.reminders[0].StartAt)
}

func TestReminderClassifierFailureIsIgnored(t *testing.T) {
	repo := newMemoryRepo()
	router, _ := newTestRouter(t, repo, WithReminderClassifier(stubClassifier{err: errors.New("timeout")}))

	outcome := handle(t, router, elder, "提醒我明天早上9點吃藥")
	assert.Contains(t, outcome.Text, "吃藥")
	require.Len(t, repo.reminders, 1)
}

func TestPersistenceFailureBecomesApology(t *testing.T) {
	repo := newMemoryRepo()
	repo.failReminders = errors.New("pool closed")
	observer := &countingObserver{results: make(map[string]int)}
	router, _ := newTestRouter(t, repo, WithObserver(observer))

	outcome := handle(t, router, elder, "提醒我明天早上9點吃藥")
	assert.True(t, outcome.Handled)
	assert.Equal(t, replyApology, outcome.Text)
	assert.Equal(t, 1, observer.results["create_reminder:error"])
}

func TestNonElderFallsThroughToChat(t *testing.T) {
	repo := newMemoryRepo()
	router, _ := newTestRouter(t, repo)

	outcome := handle(t, router, Caller{UserID: "family-1", Role: "family"}, "提醒我明天早上9點吃藥")
	assert.False(t, outcome.Handled)
	assert.Empty(t, repo.reminders)

	outcome = handle(t, router, elder, "你今天過得好嗎")
	assert.False(t, outcome.Handled)
	assert.Equal(t, intent.KindNone, outcome.Intent.Kind)
}

func TestTodayRemindersAndCompletion(t *testing.T) {
	repo := newMemoryRepo()
	repo.reminders = []Reminder{
		{ID: "r2", UserID: "elder-1", Title: "散步", Category: CategoryExercise, StartAt: time.Date(2026, 10, 17, 16, 0, 0, 0, taipei)},
		{ID: "r1", UserID: "elder-1", Title: "吃藥", Category: CategoryMedicine, StartAt: time.Date(2026, 10, 17, 8, 0, 0, 0, taipei)},
		{ID: "r3", UserID: "elder-1", Title: "看診", Category: CategoryAppointment, StartAt: time.Date(2026, 10, 18, 9, 0, 0, 0, taipei)},
	}
	router, _ := newTestRouter(t, repo)

	outcome := handle(t, router, elder, "今天有什麼提醒")
	assert.Equal(t, "今天有2個提醒：一、08:00 吃藥；二、16:00 散步。", outcome.Text)

	outcome = handle(t, router, elder, "我吃藥了")
	require.Equal(t, intent.KindMarkComplete, outcome.Intent.Kind)
	assert.Contains(t, outcome.Text, "吃藥")
	assert.True(t, repo.reminders[1].Completed)

	outcome = handle(t, router, elder, "我今天的提醒都完成了嗎")
	require.Equal(t, intent.KindCheckCompletion, outcome.Intent.Kind)
	assert.Contains(t, outcome.Text, "還有1個提醒沒完成")
	assert.Contains(t, outcome.Text, "散步")

	outcome = handle(t, router, elder, "完成第一個提醒")
	assert.Contains(t, outcome.Text, "都完成了")
	assert.True(t, repo.reminders[0].Completed)

	outcome = handle(t, router, elder, "我今天的提醒都完成了嗎")
	assert.Contains(t, outcome.Text, "都完成了")
}

func TestMarkCompleteOrdinalOutOfRange(t *testing.T) {
	repo := newMemoryRepo()
	repo.reminders = []Reminder{
		{ID: "r1", UserID: "elder-1", Title: "吃藥", StartAt: time.Date(2026, 10, 17, 8, 0, 0, 0, taipei)},
	}
	router, _ := newTestRouter(t, repo)

	outcome := handle(t, router, elder, "完成第三個提醒")
	assert.Contains(t, outcome.Text, "找不到第三個提醒")
	assert.False(t, repo.reminders[0].Completed)
}

func TestMarkCompleteTrailingOrdinal(t *testing.T) {
	repo := newMemoryRepo()
	repo.reminders = []Reminder{
		{ID: "r1", UserID: "elder-1", Title: "散步", Category: CategoryExercise, StartAt: time.Date(2026, 10, 17, 8, 0, 0, 0, taipei)},
		{ID: "r2", UserID: "elder-1", Title: "量血壓", Category: CategoryOther, StartAt: time.Date(2026, 10, 17, 16, 0, 0, 0, taipei)},
	}
	router, _ := newTestRouter(t, repo)

	outcome := handle(t, router, elder, "完成提醒二")
	require.Equal(t, intent.KindMarkComplete, outcome.Intent.Kind)
	assert.Contains(t, outcome.Text, "量血壓")
	assert.False(t, repo.reminders[0].Completed)
	assert.True(t, repo.reminders[1].Completed)
}

func TestAddFriend(t *testing.T) {
	repo := newMemoryRepo()
	repo.users = []Person{{ID: "u-2", Name: "王小明", Phone: "0912345678"}, {ID: "elder-1", Name: "林奶奶"}}
	router, _ := newTestRouter(t, repo)

	outcome := handle(t, router, elder, "加好友王小明")
	assert.Equal(t, "好的，已經送出好友邀請給王小明。", outcome.Text)
	assert.Len(t, repo.requests, 1)

	outcome = handle(t, router, elder, "加好友0912345678")
	assert.Contains(t, outcome.Text, "已經是好友")

	outcome = handle(t, router, elder, "加好友陳大同")
	assert.Contains(t, outcome.Text, "找不到")

	outcome = handle(t, router, elder, "加好友林奶奶")
	assert.Contains(t, outcome.Text, "不能把自己")

	outcome = handle(t, router, elder, "我要加好友")
	assert.Contains(t, outcome.Text, "你想加誰")
}

func TestFriendInvitesByOrdinal(t *testing.T) {
	repo := newMemoryRepo()
	repo.friendInvites = []FriendInvite{
		{ID: "f-1", From: Person{ID: "u-2", Name: "王小明"}},
		{ID: "f-2", From: Person{ID: "u-3", Name: "陳阿姨"}},
	}
	router, _ := newTestRouter(t, repo)

	outcome := handle(t, router, elder, "查看好友邀請")
	assert.Contains(t, outcome.Text, "你有2個好友邀請：一、王小明；二、陳阿姨")

	outcome = handle(t, router, elder, "接受好友邀請二")
	assert.Contains(t, outcome.Text, "陳阿姨")
	assert.Equal(t, map[string]bool{"f-2": true}, repo.friendResponses)

	outcome = handle(t, router, elder, "拒絕好友邀請三")
	assert.Contains(t, outcome.Text, "找不到第三個好友邀請")

	handle(t, router, elder, "拒絕好友邀請")
	assert.Equal(t, false, repo.friendResponses["f-1"])

	outcome = handle(t, router, elder, "好友邀請")
	assert.Equal(t, "目前沒有新的好友邀請。", outcome.Text)
}

func TestActivityInvitesByOrdinal(t *testing.T) {
	repo := newMemoryRepo()
	repo.activityInvites = []ActivityInvite{
		{EventID: "e-1", Title: "下午茶", Host: Person{Name: "王小明"}, StartAt: time.Date(2026, 10, 18, 15, 0, 0, 0, taipei), Location: "社區中心"},
		{EventID: "e-2", Title: "合唱團", Host: Person{Name: "陳阿姨"}, StartAt: time.Date(2026, 10, 20, 10, 0, 0, 0, taipei)},
	}
	router, _ := newTestRouter(t, repo)

	outcome := handle(t, router, elder, "查看活動邀請")
	assert.Contains(t, outcome.Text, "一、王小明邀請你明天 15:00參加「下午茶」，地點在社區中心")

	outcome = handle(t, router, elder, "參加活動二")
	assert.Contains(t, outcome.Text, "合唱團")
	assert.True(t, repo.activityReplies["e-2"])

	outcome = handle(t, router, elder, "我不參加活動邀請一")
	assert.Contains(t, outcome.Text, "不參加「下午茶」")
	assert.False(t, repo.activityReplies["e-1"])
}

func TestWizardThroughRouter(t *testing.T) {
	repo := newMemoryRepo()
	router, activities := newTestRouter(t, repo)

	outcome := handle(t, router, elder, "我要發起活動 下午3點去公園散步")
	require.Equal(t, intent.KindStartActivity, outcome.Intent.Kind)
	assert.Equal(t, wizard.StageAwaitConfirm, outcome.Stage)

	// With a session open a reminder request is part of the dialogue.
	outcome = handle(t, router, elder, "提醒我吃藥")
	assert.Equal(t, intent.KindContinueSession, outcome.Intent.Kind)
	assert.Empty(t, repo.reminders)

	outcome = handle(t, router, elder, "確認")
	assert.Equal(t, wizard.StageAwaitReminderChoice, outcome.Stage)
	outcome = handle(t, router, elder, "確認")
	assert.Equal(t, wizard.StageAwaitReminderChoice, outcome.Stage)
	assert.Equal(t, 1, activities.created)

	outcome = handle(t, router, elder, "不要")
	assert.Equal(t, wizard.StageDone, outcome.Stage)

	outcome = handle(t, router, elder, "今天有什麼提醒")
	assert.Equal(t, intent.KindViewTodayReminders, outcome.Intent.Kind)
}

func TestStartActivityWithLabelledTitle(t *testing.T) {
	repo := newMemoryRepo()
	router, activities := newTestRouter(t, repo)

	outcome := handle(t, router, elder, "我要發起活動，活動名稱是散步，明天下午3點")
	require.Equal(t, intent.KindStartActivity, outcome.Intent.Kind)
	assert.Equal(t, wizard.StageAwaitConfirm, outcome.Stage)
	assert.Contains(t, outcome.Text, "明天 15:00")

	outcome = handle(t, router, elder, "確認")
	assert.Equal(t, wizard.StageAwaitReminderChoice, outcome.Stage)
	assert.Equal(t, []string{"散步"}, activities.titles)
}

func TestCategoryFor(t *testing.T) {
	cases := map[string]Category{
		"吃藥":     CategoryMedicine,
		"下午去散步":  CategoryExercise,
		"回診看醫生":  CategoryAppointment,
		"打電話給兒子": CategoryChat,
		"倒垃圾":    CategoryOther,
	}
	for text, want := range cases {
		assert.Equal(t, want, CategoryFor(text), text)
	}
}
