package wizard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/RoyPeng126/ai-companion-sub000/internal/datetime"
)

// FanoutResult counts per-friend invitation outcomes. One failed insert does
// not undo the others.
type FanoutResult struct {
	Invited int
	Failed  int
}

// Repository persists what a confirmed dialogue produces.
type Repository interface {
	// CreateActivity stores the event and marks the creator as going.
	CreateActivity(ctx context.Context, userID string, details Details) (string, error)
	// InviteFriends adds every accepted friend as an invited participant.
	InviteFriends(ctx context.Context, userID, eventID string) (FanoutResult, error)
	// CreateActivityReminder stores the creator's personal reminder.
	CreateActivityReminder(ctx context.Context, userID string, details Details) error
}

// Observer is told about every stage change.
type Observer interface {
	WizardTransition(from, to Stage)
}

type Reply struct {
	Text  string
	Stage Stage
}

type Wizard struct {
	store    Store
	repo     Repository
	resolver *datetime.Resolver
	observer Observer
	locks    userLocks
}

type Option func(*Wizard)

func WithObserver(observer Observer) Option {
	return func(w *Wizard) {
		w.observer = observer
	}
}

func New(store Store, repo Repository, resolver *datetime.Resolver, opts ...Option) *Wizard {
	w := &Wizard{
		store:    store,
		repo:     repo,
		resolver: resolver,
		locks:    userLocks{locks: make(map[string]*userLock)},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

const (
	replyAskAll          = "好的，我們來安排活動。請告訴我活動名稱、日期和時間，也可以說地點。"
	replyCancelled       = "好的，已經取消這次的活動安排。"
	replyPersistFailed   = "抱歉，活動建立時出了點問題，請稍後再試一次。"
	replyReminderFailed  = "抱歉，活動已經建立，但提醒沒有設定成功，請稍後再試。"
	replyNoReminder      = "好的，不設定提醒，活動已經安排好了。"
	replyReminderSet     = "好的，我會在活動開始前30分鐘提醒你。"
	replyAskReminder     = "需要幫你設定活動提醒嗎？請說「要」或「不要」。"
	replyUnresolvedStart = "抱歉，我沒辦法確定活動的日期和時間，請再說一次，例如「明天下午3點」。"
	replyAskChanges      = "好的，請告訴我要修改的地方，例如名稱、日期、時間或地點。"
	replyStoreFailed     = "抱歉，我剛剛沒有記住活動資料，請再說一次。"
)

var (
	cancelKeywords      = []string{"取消", "先不用"}
	modifyKeywords      = []string{"修改", "更改", "改成", "改到", "改為", "改一下", "要改"}
	modifyNegations     = []string{"不用改", "不要改", "不必改", "不需要改", "沒有要改", "不改"}
	confirmKeywords     = []string{"確認", "好", "可以", "沒問題", "ok"}
	confirmNegations    = []string{"不好", "不可以", "不行", "不要", "不確認"}
	reminderNoKeywords  = []string{"不要", "不用", "不需要", "不好", "不加", "不設", "否"}
	reminderYesKeywords = []string{"要", "加"}
)

// Active reports whether userID has a session in progress.
func (w *Wizard) Active(ctx context.Context, userID string) (bool, error) {
	_, ok, err := w.store.Get(ctx, userID)
	return ok, err
}

func (w *Wizard) Session(ctx context.Context, userID string) (Session, bool, error) {
	return w.store.Get(ctx, userID)
}

// Cancel removes the session without a reply; it is a no-op when none exists.
func (w *Wizard) Cancel(ctx context.Context, userID string) error {
	unlock := w.locks.lock(userID)
	defer unlock()

	session, ok, err := w.store.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := w.store.Delete(ctx, userID); err != nil {
		return err
	}
	w.notify(session.Stage, StageDone)
	return nil
}

// Start opens a session from the words that followed the start command. A
// user who already has a session is routed to Continue.
func (w *Wizard) Start(ctx context.Context, userID, text string) (Reply, error) {
	unlock := w.locks.lock(userID)
	defer unlock()

	existing, ok, err := w.store.Get(ctx, userID)
	if err != nil {
		return Reply{}, fmt.Errorf("load wizard session: %w", err)
	}
	if ok {
		return w.advance(ctx, existing, text)
	}

	session := Session{UserID: userID, Stage: StageAwaitDetails}
	details, changed := extract(w.resolver, text, Details{})
	session.Details = details
	if !changed {
		return w.save(ctx, session, "", replyAskAll)
	}
	return w.evaluateDetails(ctx, session, "")
}

// Continue feeds one utterance to the user's session. With no session the
// reply is empty and the stage is StageDone.
func (w *Wizard) Continue(ctx context.Context, userID, text string) (Reply, error) {
	unlock := w.locks.lock(userID)
	defer unlock()

	session, ok, err := w.store.Get(ctx, userID)
	if err != nil {
		return Reply{}, fmt.Errorf("load wizard session: %w", err)
	}
	if !ok {
		return Reply{Stage: StageDone}, nil
	}
	return w.advance(ctx, session, text)
}

func (w *Wizard) advance(ctx context.Context, session Session, text string) (Reply, error) {
	folded := strings.ToLower(strings.TrimSpace(text))
	if containsAny(folded, cancelKeywords) {
		// The activity already exists once a reminder is being offered.
		if session.Stage == StageAwaitReminderChoice {
			return w.finish(ctx, session, replyNoReminder)
		}
		return w.finish(ctx, session, replyCancelled)
	}

	switch session.Stage {
	case StageAwaitConfirm:
		return w.handleConfirm(ctx, session, text, folded)
	case StageAwaitReminderChoice:
		return w.handleReminderChoice(ctx, session, folded)
	default:
		details, changed := extract(w.resolver, text, session.Details)
		if !changed {
			return w.save(ctx, session, session.Stage, askMissing(session.Details))
		}
		session.Details = details
		return w.evaluateDetails(ctx, session, session.Stage)
	}
}

// evaluateDetails moves to await_confirm once the title, day and clock are
// all known and form a real instant.
func (w *Wizard) evaluateDetails(ctx context.Context, session Session, from Stage) (Reply, error) {
	session.Stage = StageAwaitDetails
	if missing := session.Details.missing(); len(missing) > 0 {
		return w.save(ctx, session, from, askMissing(session.Details))
	}
	if session.Details.StartAt.IsZero() {
		return w.save(ctx, session, from, replyUnresolvedStart)
	}
	session.Stage = StageAwaitConfirm
	return w.save(ctx, session, from, w.summary(session.Details)+"確認建立嗎？可以說「確認」或「修改」。")
}

func (w *Wizard) handleConfirm(ctx context.Context, session Session, text, folded string) (Reply, error) {
	if containsAny(folded, modifyKeywords) && !containsAny(folded, modifyNegations) {
		details, changed := extract(w.resolver, stripKeywords(text, modifyKeywords), session.Details)
		session.Stage = StageAwaitDetails
		if !changed {
			return w.save(ctx, session, StageAwaitConfirm, replyAskChanges)
		}
		session.Details = details
		return w.evaluateDetails(ctx, session, StageAwaitConfirm)
	}

	if !containsAny(folded, confirmKeywords) || containsAny(folded, confirmNegations) {
		return w.save(ctx, session, StageAwaitConfirm, "還沒有確認喔。"+w.summary(session.Details)+"要建立請說「確認」，要改請說「修改」。")
	}

	start := resolveStart(w.resolver, session.Details)
	if start.IsZero() {
		return w.save(ctx, session, StageAwaitConfirm, replyUnresolvedStart)
	}
	session.Details.StartAt = start

	// Claim the transition before any insert so a repeated confirmation
	// finds the session already past await_confirm.
	session.Stage = StageAwaitReminderChoice
	claimed, err := w.store.Put(ctx, session)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return Reply{Text: replyAskReminder, Stage: StageAwaitReminderChoice}, nil
		}
		return Reply{}, fmt.Errorf("claim wizard confirmation: %w", err)
	}
	w.notify(StageAwaitConfirm, StageAwaitReminderChoice)

	eventID, err := w.repo.CreateActivity(ctx, session.UserID, claimed.Details)
	if err != nil {
		log.Printf("wizard create activity failed user_id=%s title=%q err=%v", session.UserID, claimed.Details.Title, err)
		return w.finish(ctx, claimed, replyPersistFailed)
	}

	fanout, err := w.repo.InviteFriends(ctx, session.UserID, eventID)
	if err != nil {
		log.Printf("wizard invite friends failed user_id=%s event_id=%s err=%v", session.UserID, eventID, err)
	}
	if fanout.Failed > 0 {
		log.Printf("wizard invite fanout partial user_id=%s event_id=%s invited=%d failed=%d", session.UserID, eventID, fanout.Invited, fanout.Failed)
	}

	claimed.Details.EventID = eventID
	if _, err := w.store.Put(ctx, claimed); err != nil {
		log.Printf("wizard store event id failed user_id=%s event_id=%s err=%v", session.UserID, eventID, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "活動「%s」建立好了，時間是%s。", claimed.Details.Title, w.resolver.Describe(start))
	if fanout.Invited > 0 {
		fmt.Fprintf(&b, "已經邀請%d位好友。", fanout.Invited)
	}
	if fanout.Failed > 0 {
		fmt.Fprintf(&b, "有%d位好友的邀請沒有送出。", fanout.Failed)
	}
	b.WriteString(replyAskReminder)
	return Reply{Text: b.String(), Stage: StageAwaitReminderChoice}, nil
}

// Only 要 or 加 counts as yes here. A bare 好 or 確認 is most likely a
// repeated confirmation and gets the question again.
func (w *Wizard) handleReminderChoice(ctx context.Context, session Session, folded string) (Reply, error) {
	switch {
	case containsAny(folded, reminderNoKeywords):
		return w.finish(ctx, session, replyNoReminder)
	case containsAny(folded, reminderYesKeywords):
		if err := w.repo.CreateActivityReminder(ctx, session.UserID, session.Details); err != nil {
			log.Printf("wizard create reminder failed user_id=%s event_id=%s err=%v", session.UserID, session.Details.EventID, err)
			return w.finish(ctx, session, replyReminderFailed)
		}
		return w.finish(ctx, session, replyReminderSet)
	default:
		return Reply{Text: replyAskReminder, Stage: StageAwaitReminderChoice}, nil
	}
}

func (w *Wizard) save(ctx context.Context, session Session, from Stage, text string) (Reply, error) {
	session.UpdatedAt = w.resolver.Now()
	saved, err := w.store.Put(ctx, session)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			log.Printf("wizard session conflict user_id=%s stage=%s", session.UserID, session.Stage)
			return Reply{Text: replyStoreFailed, Stage: from}, nil
		}
		return Reply{}, fmt.Errorf("save wizard session: %w", err)
	}
	if from != saved.Stage {
		w.notify(from, saved.Stage)
	}
	return Reply{Text: text, Stage: saved.Stage}, nil
}

func (w *Wizard) finish(ctx context.Context, session Session, text string) (Reply, error) {
	if err := w.store.Delete(ctx, session.UserID); err != nil {
		log.Printf("wizard session delete failed user_id=%s err=%v", session.UserID, err)
	}
	w.notify(session.Stage, StageDone)
	return Reply{Text: text, Stage: StageDone}, nil
}

func (w *Wizard) notify(from, to Stage) {
	if w.observer != nil {
		w.observer.WizardTransition(from, to)
	}
}

func (w *Wizard) summary(d Details) string {
	var b strings.Builder
	fmt.Fprintf(&b, "活動名稱：%s，時間：%s", d.Title, w.resolver.Describe(d.StartAt))
	if d.Location != "" {
		fmt.Fprintf(&b, "，地點：%s", d.Location)
	}
	if d.Description != "" {
		fmt.Fprintf(&b, "，說明：%s", d.Description)
	}
	b.WriteString("。")
	return b.String()
}

func askMissing(d Details) string {
	missing := d.missing()
	if len(missing) == 0 {
		return replyUnresolvedStart
	}
	return "還需要告訴我" + strings.Join(missing, "、") + "喔。"
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

func stripKeywords(text string, keywords []string) string {
	for _, keyword := range keywords {
		text = strings.ReplaceAll(text, keyword, " ")
	}
	return text
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// userLocks serializes turns per user within this process.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

func (l *userLocks) lock(userID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[userID]
	if !ok {
		entry = &userLock{}
		l.locks[userID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}
