package workflow

import (
	"context"
	"strings"
	"time"

	"uctrader/internal/midas"
	"uctrader/internal/models"
	"uctrader/internal/ratelimit"
	"uctrader/internal/subscription"
)

// RemoteCodeService is the Midasbuy API as seen by the engine
type RemoteCodeService interface {
	LookupPlayer(ctx context.Context, playerID string) (midas.Player, error)
	CheckCode(ctx context.Context, code string) (midas.CodeStatus, error)
	ActivateSingle(ctx context.Context, playerID, code string) (midas.ActivationResult, error)
	ActivateBatch(ctx context.Context, playerID string, codes []string) ([]midas.ActivationResult, error)
}

// Directory answers authorization questions and mutates trader records
type Directory interface {
	IsOwner(id int64) bool
	IsAuthorized(id int64, now time.Time) bool
	Get(id int64) (models.TraderRecord, bool)
	List() []models.TraderRecord
	AddOrExtend(ctx context.Context, id int64, profile subscription.Profile, days int, now time.Time) (models.TraderRecord, error)
	Remove(ctx context.Context, id int64) error
	SetActive(ctx context.Context, id int64, active bool) (models.TraderRecord, error)
	SavePlayer(ctx context.Context, principal int64, player models.SavedPlayer, now time.Time) (bool, error)
	IssueKey(ctx context.Context, days int, now time.Time) (models.ActivationKey, error)
	RedeemKey(ctx context.Context, principal int64, profile subscription.Profile, key string, now time.Time) (models.TraderRecord, error)
}

// OperationLog records remote API interactions. Append never fails.
type OperationLog interface {
	Append(ctx context.Context, entry models.OperationLogEntry)
	Query(ctx context.Context, principal int64, q models.LogQuery) (models.LogPage, error)
}

// Admitter is the cooldown gate for top-level actions
type Admitter interface {
	Admit(ctx context.Context, principal int64, now time.Time) ratelimit.Decision
}

// Messenger delivers replies to the chat transport. Every method may fail
// independently; failures are logged and never abort event handling.
type Messenger interface {
	Send(ctx context.Context, reply Reply) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, text string, keyboard *Keyboard) error
	Forward(ctx context.Context, toChatID, fromChatID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
	AnswerInline(ctx context.Context, queryID string, results []InlineResult) error
}

// Principal is the user behind an event
type Principal struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// DisplayName returns the full name or the username
func (p Principal) DisplayName() string {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name == "" {
		name = p.Username
	}
	return name
}

func (p Principal) profile() subscription.Profile {
	return subscription.Profile{Username: p.Username, Name: p.DisplayName()}
}

// Event is an inbound chat message
type Event struct {
	ChatID        int64
	MessageID     int
	From          Principal
	Text          string
	HasAttachment bool
	// ReplyTo is the author of the message this one replies to
	ReplyTo *Principal
}

// CallbackEvent is an inline keyboard button press
type CallbackEvent struct {
	ID        string
	ChatID    int64
	MessageID int
	From      Principal
	Data      string
}

// InlineQuery is an inline mode query typed in any chat
type InlineQuery struct {
	ID    string
	From  Principal
	Query string
}

// KeyboardKind selects how a keyboard is attached to a message
type KeyboardKind int

const (
	// KeyboardMenu is a persistent reply keyboard
	KeyboardMenu KeyboardKind = iota
	// KeyboardInline is attached to the message itself
	KeyboardInline
	// KeyboardRemove hides the reply keyboard
	KeyboardRemove
)

// Button is a keyboard button. Data is only used by inline keyboards.
type Button struct {
	Text string
	Data string
}

// Keyboard describes a reply or inline keyboard
type Keyboard struct {
	Kind KeyboardKind
	Rows [][]Button
}

// Reply is an outbound message instruction
type Reply struct {
	ChatID   int64
	Text     string
	Keyboard *Keyboard
}

// InlineResult is one article answer to an inline query
type InlineResult struct {
	ID          string
	Title       string
	Description string
	Text        string
}
