package store

import (
	"context"
	"time"

	"github.com/RoyPeng126/ai-companion-sub000/internal/compose"
)

func (s *Store) Notice(ctx context.Context, userID string, now time.Time) (compose.Notice, error) {
	local := now.In(s.loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)

	var notice compose.Notice
	err := s.db.QueryRow(
		ctx,
		`SELECT
		   (SELECT COUNT(*) FROM friend_links
		    WHERE addressee_id::text = $1 AND status = 'pending'),
		   (SELECT COUNT(*) FROM activity_participants p
		    JOIN activities a ON a.id = p.activity_id
		    WHERE p.user_id::text = $1 AND p.status = 'invited' AND a.start_at >= $2),
		   (SELECT COUNT(*) FROM reminders
		    WHERE user_id::text = $1 AND NOT completed AND start_at >= $3 AND start_at <= $2)`,
		userID,
		now,
		dayStart,
	).Scan(&notice.FriendInvites, &notice.ActivityInvites, &notice.OverdueReminders)
	if err != nil {
		return compose.Notice{}, err
	}
	return notice, nil
}
