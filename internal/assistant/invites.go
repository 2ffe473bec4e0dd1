package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/RoyPeng126/ai-companion-sub000/internal/intent"
)

var chineseOrdinals = []string{"一", "二", "三", "四", "五", "六", "七", "八", "九", "十"}

func ordinalWord(position int) string {
	if position >= 1 && position <= len(chineseOrdinals) {
		return chineseOrdinals[position-1]
	}
	return fmt.Sprintf("%d", position)
}

// pick returns the 1-based ordinal item.
func pick[T any](items []T, ordinal int) (T, bool) {
	var zero T
	if ordinal < 1 || ordinal > len(items) {
		return zero, false
	}
	return items[ordinal-1], true
}

func (r *Router) addFriend(ctx context.Context, caller Caller, cmd intent.Intent, _ string) (Outcome, error) {
	target := strings.TrimSpace(cmd.Target)
	if target == "" {
		return Outcome{Text: "你想加誰當好友呢？可以說「加好友」再加上對方的名字或電話。"}, nil
	}

	person, err := r.repo.FindUser(ctx, target)
	if errors.Is(err, ErrNoSuchItem) {
		return Outcome{Text: fmt.Sprintf("我找不到「%s」這位使用者，請確認名字或電話。", target)}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("find user: %w", err)
	}
	if person.ID == caller.UserID {
		return Outcome{Text: "不能把自己加為好友喔。"}, nil
	}

	err = r.repo.RequestFriend(ctx, caller.UserID, person.ID)
	if errors.Is(err, ErrAlreadyLinked) {
		return Outcome{Text: fmt.Sprintf("你和%s已經是好友，或是邀請已經送出了。", person.Name)}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("request friend: %w", err)
	}
	return Outcome{Text: fmt.Sprintf("好的，已經送出好友邀請給%s。", person.Name)}, nil
}

func (r *Router) viewFriendInvites(ctx context.Context, caller Caller, _ intent.Intent, _ string) (Outcome, error) {
	invites, err := r.repo.PendingFriendInvites(ctx, caller.UserID)
	if err != nil {
		return Outcome{}, fmt.Errorf("list friend invites: %w", err)
	}
	if len(invites) == 0 {
		return Outcome{Text: "目前沒有新的好友邀請。"}, nil
	}

	parts := make([]string, 0, len(invites))
	for i, invite := range invites {
		parts = append(parts, fmt.Sprintf("%s、%s", ordinalWord(i+1), invite.From.Name))
	}
	return Outcome{Text: fmt.Sprintf("你有%d個好友邀請：%s。可以說「接受好友邀請一」或「拒絕好友邀請一」。",
		len(invites), strings.Join(parts, "；"))}, nil
}

func (r *Router) respondFriendInvite(ctx context.Context, caller Caller, cmd intent.Intent, _ string) (Outcome, error) {
	invites, err := r.repo.PendingFriendInvites(ctx, caller.UserID)
	if err != nil {
		return Outcome{}, fmt.Errorf("list friend invites: %w", err)
	}
	if len(invites) == 0 {
		return Outcome{Text: "目前沒有需要回覆的好友邀請。"}, nil
	}
	invite, ok := pick(invites, cmd.Ordinal)
	if !ok {
		return Outcome{Text: fmt.Sprintf("找不到第%s個好友邀請，你目前有%d個邀請。", ordinalWord(cmd.Ordinal), len(invites))}, nil
	}

	err = r.repo.RespondFriendInvite(ctx, caller.UserID, invite.ID, cmd.Accept)
	if errors.Is(err, ErrNoSuchItem) {
		return Outcome{Text: "這個好友邀請已經處理過了。"}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("respond friend invite: %w", err)
	}
	if cmd.Accept {
		return Outcome{Text: fmt.Sprintf("好的，你和%s現在是好友了。", invite.From.Name)}, nil
	}
	return Outcome{Text: fmt.Sprintf("好的，已經婉拒%s的好友邀請。", invite.From.Name)}, nil
}

func (r *Router) viewActivityInvites(ctx context.Context, caller Caller, _ intent.Intent, _ string) (Outcome, error) {
	invites, err := r.repo.PendingActivityInvites(ctx, caller.UserID)
	if err != nil {
		return Outcome{}, fmt.Errorf("list activity invites: %w", err)
	}
	if len(invites) == 0 {
		return Outcome{Text: "目前沒有新的活動邀請。"}, nil
	}

	parts := make([]string, 0, len(invites))
	for i, invite := range invites {
		line := fmt.Sprintf("%s、%s邀請你%s參加「%s」", ordinalWord(i+1), invite.Host.Name, r.resolver.Describe(invite.StartAt), invite.Title)
		if invite.Location != "" {
			line += "，地點在" + invite.Location
		}
		parts = append(parts, line)
	}
	return Outcome{Text: fmt.Sprintf("你有%d個活動邀請：%s。可以說「參加活動一」或「不參加活動一」。",
		len(invites), strings.Join(parts, "；"))}, nil
}

func (r *Router) respondActivityInvite(ctx context.Context, caller Caller, cmd intent.Intent, _ string) (Outcome, error) {
	invites, err := r.repo.PendingActivityInvites(ctx, caller.UserID)
	if err != nil {
		return Outcome{}, fmt.Errorf("list activity invites: %w", err)
	}
	if len(invites) == 0 {
		return Outcome{Text: "目前沒有需要回覆的活動邀請。"}, nil
	}
	invite, ok := pick(invites, cmd.Ordinal)
	if !ok {
		return Outcome{Text: fmt.Sprintf("找不到第%s個活動邀請，你目前有%d個邀請。", ordinalWord(cmd.Ordinal), len(invites))}, nil
	}

	err = r.repo.RespondActivityInvite(ctx, caller.UserID, invite.EventID, cmd.Accept)
	if errors.Is(err, ErrNoSuchItem) {
		return Outcome{Text: "這個活動邀請已經處理過了。"}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("respond activity invite: %w", err)
	}
	if cmd.Accept {
		return Outcome{Text: fmt.Sprintf("好的，已經幫你報名「%s」，時間是%s。", invite.Title, r.resolver.Describe(invite.StartAt))}, nil
	}
	return Outcome{Text: fmt.Sprintf("好的，已經回覆不參加「%s」。", invite.Title)}, nil
}
