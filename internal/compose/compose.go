// Package compose builds the spoken reply: the command or chat answer, a
// proactive note about things waiting for the elder, and synthesized audio.
package compose

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jmhodges/clock"

	"github.com/RoyPeng126/ai-companion-sub000/internal/speech"
)

// Notice counts what is waiting for the user right now.
type Notice struct {
	FriendInvites    int `json:"friendInvites"`
	ActivityInvites  int `json:"activityInvites"`
	OverdueReminders int `json:"overdueReminders"`
}

// NoticeSource counts pending invites and today's reminders that are past
// due and not completed as of now.
type NoticeSource interface {
	Notice(ctx context.Context, userID string, now time.Time) (Notice, error)
}

// ProactiveNote mentions only the non-zero counts; it is empty when nothing
// is waiting.
func ProactiveNote(n Notice) string {
	var parts []string
	if n.FriendInvites > 0 {
		parts = append(parts, fmt.Sprintf("有%d個好友邀請等你回覆", n.FriendInvites))
	}
	if n.ActivityInvites > 0 {
		parts = append(parts, fmt.Sprintf("有%d個活動邀請等你回覆", n.ActivityInvites))
	}
	if n.OverdueReminders > 0 {
		parts = append(parts, fmt.Sprintf("今天有%d個提醒時間到了還沒完成", n.OverdueReminders))
	}
	if len(parts) == 0 {
		return ""
	}
	return "順便提醒你，" + strings.Join(parts, "，") + "。"
}

// Merge joins the primary reply and the note with a newline, skipping
// whichever is empty.
func Merge(primary, note string) string {
	primary = strings.TrimSpace(primary)
	note = strings.TrimSpace(note)
	switch {
	case primary == "":
		return note
	case note == "":
		return primary
	}
	return primary + "\n" + note
}

type Reply struct {
	Text   string
	Note   string
	Notice Notice
	// Audio is nil when synthesis is off or failed.
	Audio *speech.Audio
}

type Composer struct {
	source NoticeSource
	tts    speech.Synthesizer
	clk    clock.Clock
}

// NewComposer accepts a nil source (no notes) and a nil synthesizer (text
// only).
func NewComposer(source NoticeSource, tts speech.Synthesizer, clk clock.Clock) *Composer {
	if clk == nil {
		clk = clock.New()
	}
	return &Composer{source: source, tts: tts, clk: clk}
}

// Compose never fails on a collaborator error: a failed count drops the
// note and a failed synthesis drops the audio. The error is non-nil only
// when ctx has ended.
func (c *Composer) Compose(ctx context.Context, userID, primary string, voice speech.Voice) (Reply, error) {
	reply := Reply{Text: strings.TrimSpace(primary)}

	if c.source != nil && userID != "" {
		notice, err := c.source.Notice(ctx, userID, c.clk.Now())
		if err != nil {
			log.Printf("proactive notice failed user_id=%s err=%v", userID, err)
		} else {
			reply.Notice = notice
			reply.Note = ProactiveNote(notice)
			reply.Text = Merge(reply.Text, reply.Note)
		}
	}
	if err := ctx.Err(); err != nil {
		return Reply{}, err
	}

	if c.tts != nil && reply.Text != "" {
		audio, err := c.tts.Synthesize(ctx, reply.Text, voice)
		if err != nil {
			log.Printf("speech synthesis failed user_id=%s err=%v", userID, err)
		} else {
			reply.Audio = &audio
		}
	}
	return reply, nil
}
