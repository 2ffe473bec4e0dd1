package assistant

import (
	"context"
	"errors"
	"log"

	"github.com/RoyPeng126/ai-companion-sub000/internal/datetime"
	"github.com/RoyPeng126/ai-companion-sub000/internal/intent"
	"github.com/RoyPeng126/ai-companion-sub000/internal/wizard"
)

const replyApology = "抱歉，我剛剛處理的時候出了點問題，請再說一次。"

// Outcome is the result of one utterance. Handled is false when the text is
// ordinary chat.
type Outcome struct {
	Handled bool
	Intent  intent.Intent
	Text    string
	// Stage is the wizard stage after the turn for activity commands.
	Stage wizard.Stage
}

// Observer is told how each command ended: "ok" or "error".
type Observer interface {
	IntentHandled(kind intent.Kind, result string)
}

type handlerFunc func(ctx context.Context, caller Caller, cmd intent.Intent, transcript string) (Outcome, error)

type Router struct {
	repo       Repository
	wizard     *wizard.Wizard
	resolver   *datetime.Resolver
	classifier ReminderClassifier
	observer   Observer
	handlers   map[intent.Kind]handlerFunc
}

type Option func(*Router)

func WithReminderClassifier(classifier ReminderClassifier) Option {
	return func(r *Router) {
		r.classifier = classifier
	}
}

func WithObserver(observer Observer) Option {
	return func(r *Router) {
		r.observer = observer
	}
}

func NewRouter(repo Repository, wiz *wizard.Wizard, resolver *datetime.Resolver, opts ...Option) *Router {
	r := &Router{repo: repo, wizard: wiz, resolver: resolver}
	for _, opt := range opts {
		opt(r)
	}
	r.handlers = map[intent.Kind]handlerFunc{
		intent.KindStartActivity:         r.startActivity,
		intent.KindContinueSession:       r.continueSession,
		intent.KindAddFriend:             r.addFriend,
		intent.KindViewFriendInvites:     r.viewFriendInvites,
		intent.KindRespondFriendInvite:   r.respondFriendInvite,
		intent.KindViewActivityInvites:   r.viewActivityInvites,
		intent.KindRespondActivityInvite: r.respondActivityInvite,
		intent.KindCreateReminder:        r.createReminder,
		intent.KindViewTodayReminders:    r.viewTodayReminders,
		intent.KindCheckCompletion:       r.checkCompletion,
		intent.KindMarkComplete:          r.markComplete,
	}
	return r
}

// Classify reports what Handle would do with transcript without running it.
func (r *Router) Classify(ctx context.Context, caller Caller, transcript string) intent.Intent {
	return intent.Classify(transcript, intent.State{Role: caller.Role, HasSession: r.hasSession(ctx, caller)})
}

// Handle classifies transcript and runs the matching command. Command
// failures become an apology in Outcome.Text; the error is non-nil only when
// ctx ends first.
func (r *Router) Handle(ctx context.Context, caller Caller, transcript string) (Outcome, error) {
	cmd := r.Classify(ctx, caller, transcript)
	if !cmd.IsCommand() {
		return Outcome{Intent: cmd}, nil
	}
	handler, ok := r.handlers[cmd.Kind]
	if !ok {
		return Outcome{Intent: cmd}, nil
	}

	outcome, err := handler(ctx, caller, cmd, transcript)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return Outcome{}, err
		}
		log.Printf("voice command failed user_id=%s intent=%s err=%v", caller.UserID, cmd.Kind, err)
		r.notify(cmd.Kind, "error")
		return Outcome{Handled: true, Intent: cmd, Text: replyApology}, nil
	}
	r.notify(cmd.Kind, "ok")
	outcome.Handled = true
	outcome.Intent = cmd
	return outcome, nil
}

func (r *Router) hasSession(ctx context.Context, caller Caller) bool {
	if r.wizard == nil || intent.NormalizeRole(caller.Role) != intent.RoleElder {
		return false
	}
	active, err := r.wizard.Active(ctx, caller.UserID)
	if err != nil {
		log.Printf("wizard session lookup failed user_id=%s err=%v", caller.UserID, err)
		return false
	}
	return active
}

func (r *Router) notify(kind intent.Kind, result string) {
	if r.observer != nil {
		r.observer.IntentHandled(kind, result)
	}
}

// The start payload keeps the clause breaks too, so a labelled title does
// not swallow the date and time that follow it.
func (r *Router) startActivity(ctx context.Context, caller Caller, cmd intent.Intent, _ string) (Outcome, error) {
	reply, err := r.wizard.Start(ctx, caller.UserID, cmd.Payload)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Text: reply.Text, Stage: reply.Stage}, nil
}

// The raw transcript keeps the clause breaks the detail extractor uses.
func (r *Router) continueSession(ctx context.Context, caller Caller, _ intent.Intent, transcript string) (Outcome, error) {
	reply, err := r.wizard.Continue(ctx, caller.UserID, transcript)
	if err != nil {
		return Outcome{}, err
	}
	if reply.Text == "" {
		reply.Text = "剛剛的活動安排已經結束了，要重新開始請說「我要發起活動」。"
	}
	return Outcome{Text: reply.Text, Stage: reply.Stage}, nil
}
