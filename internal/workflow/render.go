package workflow

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"uctrader/internal/midas"
	"uctrader/internal/models"
	"uctrader/internal/session"
)

// Menu labels. These are the only texts recognized as top-level actions.
const (
	LabelLookup       = "🎮 Player lookup"
	LabelCheck        = "🧪 Check code"
	LabelActivate     = "⚡ Activate code"
	LabelClan         = "👥 Clan activation"
	LabelLogs         = "📒 My logs"
	LabelAccount      = "👤 My account"
	LabelSubscription = "💳 Subscription"
	LabelTicket       = "📨 Support ticket"
	LabelCancel       = "❌ Cancel"
)

// Callback data
const (
	cbModeSingle  = "mode:single"
	cbModeStack   = "mode:stack"
	cbModeCancel  = "mode:cancel"
	cbBulkConfirm = "bulk:confirm"
	cbBulkCancel  = "bulk:cancel"
	cbSavePrefix  = "save:"
	cbPickPrefix  = "pick:"
	cbLogsPrefix  = "logs:"

	// Telegram limit for callback data
	maxCallbackData = 64
)

const timeLayout = "2006-01-02 15:04"

func mainMenu() *Keyboard {
	return &Keyboard{
		Kind: KeyboardMenu,
		Rows: [][]Button{
			{{Text: LabelLookup}, {Text: LabelCheck}},
			{{Text: LabelActivate}, {Text: LabelClan}},
			{{Text: LabelLogs}, {Text: LabelAccount}},
			{{Text: LabelSubscription}, {Text: LabelTicket}},
		},
	}
}

func cancelMenu() *Keyboard {
	return &Keyboard{
		Kind: KeyboardMenu,
		Rows: [][]Button{{{Text: LabelCancel}}},
	}
}

func selectionKeyboard() *Keyboard {
	return &Keyboard{
		Kind: KeyboardInline,
		Rows: [][]Button{
			{{Text: "1️⃣ Single code", Data: cbModeSingle}, {Text: "📚 Several codes (2-5)", Data: cbModeStack}},
			{{Text: LabelCancel, Data: cbModeCancel}},
		},
	}
}

func confirmKeyboard() *Keyboard {
	return &Keyboard{
		Kind: KeyboardInline,
		Rows: [][]Button{
			{{Text: "✅ Confirm", Data: cbBulkConfirm}, {Text: LabelCancel, Data: cbBulkCancel}},
		},
	}
}

func saveKeyboard(p midas.Player) *Keyboard {
	return &Keyboard{
		Kind: KeyboardInline,
		Rows: [][]Button{{{Text: "💾 Save player", Data: saveCallbackData(p)}}},
	}
}

func logsKeyboard() *Keyboard {
	return &Keyboard{
		Kind: KeyboardInline,
		Rows: [][]Button{{
			{Text: "🎮 Lookups", Data: cbLogsPrefix + string(models.LogPlayer)},
			{Text: "🧪 Checks", Data: cbLogsPrefix + string(models.LogCheck)},
			{Text: "⚡ Activations", Data: cbLogsPrefix + string(models.LogActivate)},
		}},
	}
}

// savedPlayersKeyboard offers quick picks on the activation prompt
func savedPlayersKeyboard(players []models.SavedPlayer) *Keyboard {
	if len(players) == 0 {
		return nil
	}
	kb := &Keyboard{Kind: KeyboardInline}
	for _, p := range players {
		label := p.Name
		if label == "" {
			label = p.ID
		}
		kb.Rows = append(kb.Rows, []Button{{Text: "👤 " + label, Data: cbPickPrefix + p.ID}})
	}
	return kb
}

// saveCallbackData encodes the player into callback data, cutting the
// name to fit the size limit
func saveCallbackData(p midas.Player) string {
	data := cbSavePrefix + p.ID + ":"
	name := p.Name
	for len(data)+len(name) > maxCallbackData && name != "" {
		_, size := utf8.DecodeLastRuneInString(name)
		name = name[:len(name)-size]
	}
	return data + name
}

func parseSaveCallbackData(data string) (models.SavedPlayer, bool) {
	rest := strings.TrimPrefix(data, cbSavePrefix)
	id, name, _ := strings.Cut(rest, ":")
	if !isDigits(id) {
		return models.SavedPlayer{}, false
	}
	return models.SavedPlayer{ID: id, Name: name}, true
}

func reasonText(r Reason) string {
	switch r {
	case ReasonAlreadyUsed:
		return "code already used"
	case ReasonRegion:
		return "region mismatch"
	case ReasonInvalid:
		return "invalid code"
	case ReasonError:
		return "network error or timeout"
	}
	return ""
}

func formatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(loc).Format(timeLayout)
}

func playerCard(p midas.Player) string {
	return fmt.Sprintf("✅ Player found\n\n🆔 ID: %s\n👤 Name: %s", p.ID, p.Name)
}

func checkReport(code string, state CodeState, cs midas.CodeStatus, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🧪 Code: %s\n", code)

	switch state {
	case CodeActivated:
		b.WriteString("🔴 Status: already activated\n")
		if cs.Amount != "" {
			fmt.Fprintf(&b, "💰 Amount: %s UC\n", cs.Amount)
		}
		if cs.ActivatedTo != "" {
			fmt.Fprintf(&b, "👤 Activated to: %s\n", cs.ActivatedTo)
		}
		if cs.ActivatedAt > 0 {
			fmt.Fprintf(&b, "🕒 Activated at: %s\n", formatTime(unixTime(cs.ActivatedAt), loc))
		}
	case CodeFailed:
		b.WriteString("⚠️ Status: invalid code\n")
	default:
		b.WriteString("🟢 Status: not activated, ready to use\n")
		if cs.Amount != "" {
			fmt.Fprintf(&b, "💰 Amount: %s UC\n", cs.Amount)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// unixTime accepts seconds or milliseconds
func unixTime(v int64) time.Time {
	if v > 1e12 {
		return time.UnixMilli(v)
	}
	return time.Unix(v, 0)
}

func stackReport(p session.Player, outcomes []Outcome) string {
	var b strings.Builder
	success := countSuccess(outcomes)

	fmt.Fprintf(&b, "📦 Stack activation report\n👤 %s (%s)\n\n", p.Name, p.ID)
	for i, o := range outcomes {
		fmt.Fprintf(&b, "%d. %s %s\n", i+1, o.Code, outcomeMark(o))
	}
	fmt.Fprintf(&b, "\n✅ Success: %d\n❌ Failed: %d", success, len(outcomes)-success)
	return b.String()
}

func clanReview(entries []session.BulkEntry) string {
	var b strings.Builder
	b.WriteString("📋 Review the clan activation:\n\n")
	for i, e := range entries {
		fmt.Fprintf(&b, "%d. %s (%s) ← %s\n", i+1, e.Player.Name, e.Player.ID, e.Code)
	}
	b.WriteString("\nConfirm to start. Activations run one by one and cannot be stopped once started.")
	return b.String()
}

func clanReport(entries []session.BulkEntry, outcomes []Outcome) string {
	var b strings.Builder
	success := countSuccess(outcomes)

	b.WriteString("👥 Clan activation report\n\n")
	for i, e := range entries {
		fmt.Fprintf(&b, "%d. %s (%s) %s\n", i+1, e.Player.Name, e.Player.ID, outcomeMark(outcomes[i]))
	}
	fmt.Fprintf(&b, "\n✅ Success: %d\n❌ Failed: %d", success, len(outcomes)-success)
	return b.String()
}

func outcomeMark(o Outcome) string {
	if o.Success {
		return "✅"
	}
	return "❌ " + reasonText(o.Reason)
}

func countSuccess(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Success {
			n++
		}
	}
	return n
}

func accountText(p Principal, record models.TraderRecord, found, owner bool, now time.Time, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👤 Account\n\n🆔 ID: %d\n", p.ID)
	if p.Username != "" {
		fmt.Fprintf(&b, "🔗 Username: @%s\n", p.Username)
	}

	switch {
	case owner:
		b.WriteString("👑 Role: owner")
	case !found:
		b.WriteString("🚫 No subscription. Redeem a key with /redeem KEY")
	default:
		status := "✅ active"
		if !record.IsActive(now) {
			status = "⛔ inactive"
		}
		fmt.Fprintf(&b, "📌 Status: %s\n📅 Registered: %s\n⏳ Expires: %s\n💾 Saved players: %d",
			status, formatTime(record.RegisteredAt, loc), formatTime(record.ExpiresAt, loc), len(record.SavedPlayers))
	}
	return b.String()
}

func subscriptionText(contact string) string {
	text := "💳 Trader subscription\n\n" +
		"A subscription unlocks player lookup, code checks, single, stack and clan activation.\n\n" +
		"Have a key? Send /redeem KEY to activate it."
	if contact != "" {
		text += "\nTo buy a subscription contact " + contact + "."
	}
	return text
}

func logsSummary(page models.LogPage) string {
	return fmt.Sprintf("📒 Your operation log\n\n🎮 Player lookups: %d\n🧪 Code checks: %d\n⚡ Activations: %d\n📊 Total: %d\n\nPick a type to see the latest entries.",
		page.Stats.Player, page.Stats.Check, page.Stats.Activate, page.Stats.Total())
}

func logTypeTitle(t models.LogType) string {
	switch t {
	case models.LogPlayer:
		return "🎮 Latest player lookups"
	case models.LogCheck:
		return "🧪 Latest code checks"
	default:
		return "⚡ Latest activations"
	}
}

func logsHistory(t models.LogType, page models.LogPage, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d of %d)\n", logTypeTitle(t), len(page.Items), page.Total)
	for _, e := range page.Items {
		fmt.Fprintf(&b, "\n🕒 %s · %s", formatTime(e.Time, loc), e.Result)
		if e.PlayerID != "" {
			fmt.Fprintf(&b, "\n   👤 %s %s", e.PlayerID, e.PlayerName)
		}
		if e.Code != "" {
			fmt.Fprintf(&b, "\n   🎟 %s", e.Code)
		}
	}
	return b.String()
}

func traderList(traders []models.TraderRecord, now time.Time, loc *time.Location) string {
	if len(traders) == 0 {
		return "No traders yet."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "👥 Traders (%d)\n", len(traders))
	for _, t := range traders {
		mark := "✅"
		if !t.IsActive(now) {
			mark = "⛔"
		}
		name := t.Name
		if t.Username != "" {
			name += " @" + t.Username
		}
		fmt.Fprintf(&b, "\n%s %d %s · until %s", mark, t.UserID, strings.TrimSpace(name), formatTime(t.ExpiresAt, loc))
	}
	return b.String()
}

func ticketHeader(p Principal, record models.TraderRecord, found bool, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("📨 Support ticket\n")
	fmt.Fprintf(&b, "🆔 %d\n", p.ID)
	if name := p.DisplayName(); name != "" {
		fmt.Fprintf(&b, "👤 %s\n", name)
	}
	if p.Username != "" {
		fmt.Fprintf(&b, "🔗 @%s\n", p.Username)
	}
	if found {
		fmt.Fprintf(&b, "⏳ Subscription until %s", formatTime(record.ExpiresAt, loc))
	} else {
		b.WriteString("⏳ No subscription record")
	}
	return b.String()
}
