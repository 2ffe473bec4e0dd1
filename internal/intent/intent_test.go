package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var elder = State{Role: "elder"}

func TestClassifyIgnoresNonElders(t *testing.T) {
	for _, role := range []string{"family", "caregiver", "", "admin"} {
		got := Classify("提醒我明天早上9點吃藥", State{Role: role})
		assert.Equal(t, KindNone, got.Kind, role)
		assert.False(t, got.IsCommand())
	}
}

func TestClassifyAcceptsRoleAliases(t *testing.T) {
	got := Classify("今天有什麼提醒", State{Role: "長輩"})
	assert.Equal(t, KindViewTodayReminders, got.Kind)
}

func TestClassifyEmptyAndChitchat(t *testing.T) {
	assert.Equal(t, KindNone, Classify("   ", elder).Kind)
	assert.Equal(t, KindNone, Classify("今天天氣真好，我想聊聊天", elder).Kind)
}

func TestClassifyStartActivity(t *testing.T) {
	got := Classify("我要發起活動，明天下午3點去公園散步", elder)
	require.Equal(t, KindStartActivity, got.Kind)
	assert.Equal(t, "明天下午3點去公園散步", got.Payload)
}

func TestClassifyStartActivityKeepsClauseBreaks(t *testing.T) {
	got := Classify("我要發起活動，活動名稱是散步，明天下午3點", elder)
	require.Equal(t, KindStartActivity, got.Kind)
	assert.Equal(t, "活動名稱是散步，明天下午3點", got.Payload)
	assert.Equal(t, "我要發起活動活動名稱是散步明天下午3點", got.Text)

	got = Classify("發起 活動 明天唱歌", elder)
	require.Equal(t, KindStartActivity, got.Kind)
	assert.Equal(t, "明天唱歌", got.Payload)
}

func TestClassifySessionClaimsEveryUtterance(t *testing.T) {
	withSession := State{Role: "elder", HasSession: true}
	for _, text := range []string{"確認", "我要發起活動", "提醒我吃藥", "明天下午三點"} {
		got := Classify(text, withSession)
		assert.Equal(t, KindContinueSession, got.Kind, text)
	}
}

func TestClassifyAddFriend(t *testing.T) {
	cases := map[string]string{
		"加好友王小明":       "王小明",
		"我想加王小明為好友":    "王小明",
		"幫我加陳阿姨當我的好友": "陳阿姨",
		"請加好友：林伯伯":     "林伯伯",
		"我要加好友":        "",
	}
	for text, target := range cases {
		got := Classify(text, elder)
		require.Equal(t, KindAddFriend, got.Kind, text)
		assert.Equal(t, target, got.Target, text)
	}

	assert.NotEqual(t, KindAddFriend, Classify("我想參加好友的聚會", elder).Kind)
}

func TestClassifyFriendInvites(t *testing.T) {
	assert.Equal(t, KindViewFriendInvites, Classify("有沒有好友邀請", elder).Kind)

	got := Classify("接受好友邀請二", elder)
	require.Equal(t, KindRespondFriendInvite, got.Kind)
	assert.True(t, got.Accept)
	assert.Equal(t, 2, got.Ordinal)

	got = Classify("拒絕第一個好友邀請", elder)
	require.Equal(t, KindRespondFriendInvite, got.Kind)
	assert.False(t, got.Accept)
	assert.Equal(t, 1, got.Ordinal)

	got = Classify("同意好友申請", elder)
	require.Equal(t, KindRespondFriendInvite, got.Kind)
	assert.True(t, got.Accept)
	assert.Equal(t, 1, got.Ordinal)
}

func TestClassifyActivityInvites(t *testing.T) {
	assert.Equal(t, KindViewActivityInvites, Classify("查看活動邀請", elder).Kind)
	assert.Equal(t, KindViewActivityInvites, Classify("有人邀請我參加的活動嗎", elder).Kind)

	got := Classify("參加活動二", elder)
	require.Equal(t, KindRespondActivityInvite, got.Kind)
	assert.True(t, got.Accept)
	assert.Equal(t, 2, got.Ordinal)

	got = Classify("我不參加活動邀請三", elder)
	require.Equal(t, KindRespondActivityInvite, got.Kind)
	assert.False(t, got.Accept)
	assert.Equal(t, 3, got.Ordinal)

	assert.Equal(t, KindNone, Classify("我想參加活動", elder).Kind)
}

func TestClassifyCreateReminder(t *testing.T) {
	got := Classify("提醒我明天早上9點吃藥", elder)
	require.Equal(t, KindCreateReminder, got.Kind)
	assert.Equal(t, "明天早上9點吃藥", got.Payload)

	got = Classify("記得提醒我下午散步", elder)
	require.Equal(t, KindCreateReminder, got.Kind)
	assert.Contains(t, got.Payload, "下午散步")
}

func TestClassifyCreateReminderSplitsLeadFromPayload(t *testing.T) {
	got := Classify("我有一點累，提醒我喝水", elder)
	require.Equal(t, KindCreateReminder, got.Kind)
	assert.Equal(t, "喝水", got.Payload)
	assert.Equal(t, "我有一點累", got.Lead)

	got = Classify("明天早上9點提醒我吃藥", elder)
	require.Equal(t, KindCreateReminder, got.Kind)
	assert.Equal(t, "吃藥", got.Payload)
	assert.Equal(t, "明天早上9點", got.Lead)
}

func TestClassifyTodayReminders(t *testing.T) {
	for _, text := range []string{"今天有什麼提醒", "今天的行程", "看看今天的提醒"} {
		assert.Equal(t, KindViewTodayReminders, Classify(text, elder).Kind, text)
	}
}

func TestClassifyCheckCompletion(t *testing.T) {
	for _, text := range []string{"我今天的提醒都完成了嗎？", "我吃藥了沒", "還有哪些提醒還沒完成"} {
		assert.Equal(t, KindCheckCompletion, Classify(text, elder).Kind, text)
	}
}

func TestClassifyMarkComplete(t *testing.T) {
	got := Classify("我完成第二個提醒了", elder)
	require.Equal(t, KindMarkComplete, got.Kind)
	assert.Equal(t, 2, got.Ordinal)

	got = Classify("提醒三完成了", elder)
	require.Equal(t, KindMarkComplete, got.Kind)
	assert.Equal(t, 3, got.Ordinal)

	got = Classify("我吃藥了", elder)
	require.Equal(t, KindMarkComplete, got.Kind)
	assert.Equal(t, 1, got.Ordinal)
}

func TestClassifyMarkCompleteTrailingOrdinal(t *testing.T) {
	cases := map[string]int{
		"完成提醒二":     2,
		"完成提醒第三個":   3,
		"我已經完成提醒2了": 2,
		"完成提醒":      1,
	}
	for text, want := range cases {
		got := Classify(text, elder)
		require.Equal(t, KindMarkComplete, got.Kind, text)
		assert.Equal(t, want, got.Ordinal, text)
	}
}

func TestRulesOrder(t *testing.T) {
	assert.Equal(t, []Kind{
		KindStartActivity,
		KindContinueSession,
		KindAddFriend,
		KindViewFriendInvites,
		KindRespondFriendInvite,
		KindViewActivityInvites,
		KindRespondActivityInvite,
		KindCreateReminder,
		KindViewTodayReminders,
		KindCheckCompletion,
		KindMarkComplete,
	}, Rules())
}

func TestParseOrdinal(t *testing.T) {
	cases := map[string]int{"一": 1, "二": 2, "第三個": 3, "10": 10, "十": 10, "": 1, "十一": 1, "abc": 1}
	for raw, want := range cases {
		assert.Equal(t, want, ParseOrdinal(raw), raw)
	}
}
