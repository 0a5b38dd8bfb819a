package workflow

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"uctrader/internal/models"
	"uctrader/internal/session"
)

// Options tunes the engine
type Options struct {
	OwnerID        int64
	AdminChannelID int64
	// BulkStepDelay separates consecutive clan activations
	BulkStepDelay time.Duration
	// LookupPause separates consecutive clan player lookups
	LookupPause       time.Duration
	DefaultTraderDays int
	SupportContact    string
	Location          *time.Location
}

// Deps are the collaborators of the engine
type Deps struct {
	Remote    RemoteCodeService
	Directory Directory
	Log       OperationLog
	Gate      Admitter
	Sessions  session.Store
	Messenger Messenger
	Logger    *zap.Logger
}

// Engine drives the per-conversation workflows
type Engine struct {
	remote    RemoteCodeService
	directory Directory
	oplog     OperationLog
	gate      Admitter
	sessions  session.Store
	locks     *session.Locker
	messenger Messenger
	logger    *zap.Logger
	opts      Options

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a workflow engine
func New(deps Deps, opts Options) *Engine {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.DefaultTraderDays <= 0 {
		opts.DefaultTraderDays = 30
	}

	return &Engine{
		remote:    deps.Remote,
		directory: deps.Directory,
		oplog:     deps.Log,
		gate:      deps.Gate,
		sessions:  deps.Sessions,
		locks:     session.NewLocker(),
		messenger: deps.Messenger,
		logger:    deps.Logger,
		opts:      opts,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// HandleMessage processes one chat message. Messages of one conversation
// are handled strictly one at a time.
func (e *Engine) HandleMessage(ctx context.Context, ev Event) {
	unlock := e.locks.Lock(ev.ChatID)
	defer unlock()
	defer e.recoverConversation(ctx, ev.ChatID, ev.From.ID, "message")

	e.routeMessage(ctx, ev)
}

// HandleCallback processes one inline keyboard press
func (e *Engine) HandleCallback(ctx context.Context, cb CallbackEvent) {
	unlock := e.locks.Lock(cb.ChatID)
	defer unlock()
	defer e.recoverConversation(ctx, cb.ChatID, cb.From.ID, "callback")

	if ans := e.routeCallback(ctx, cb); !ans.sent {
		e.answerCallback(ctx, cb.ID, ans)
	}
}

// answer is the reply to a button press. sent is set when the handler
// already answered before doing long work.
type answer struct {
	text  string
	alert bool
	sent  bool
}

func alertAnswer(text string) answer {
	return answer{text: text, alert: true}
}

func (e *Engine) answerCallback(ctx context.Context, callbackID string, ans answer) {
	if err := e.messenger.AnswerCallback(ctx, callbackID, ans.text, ans.alert); err != nil {
		e.logger.Warn("Failed to answer callback", zap.String("callback_id", callbackID), zap.Error(err))
	}
}

// HandleInlineQuery answers an inline query. It never touches sessions.
func (e *Engine) HandleInlineQuery(ctx context.Context, q InlineQuery) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Recovered from panic in inline query",
				zap.Any("panic", r),
				zap.Int64("user_id", q.From.ID),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()

	results := e.inlineResults(ctx, q)
	if err := e.messenger.AnswerInline(ctx, q.ID, results); err != nil {
		e.logger.Warn("Failed to answer inline query", zap.String("query_id", q.ID), zap.Error(err))
	}
}

// recoverConversation turns a panic into a reset session, a reply to the
// user and a report to the owner
func (e *Engine) recoverConversation(ctx context.Context, chatID, userID int64, kind string) {
	r := recover()
	if r == nil {
		return
	}

	mode := e.sessions.Get(chatID).Mode()
	e.sessions.Reset(chatID)

	e.logger.Error("Recovered from panic in "+kind+" handler",
		zap.Any("panic", r),
		zap.Int64("chat_id", chatID),
		zap.Int64("user_id", userID),
		zap.String("mode", string(mode)),
		zap.ByteString("stack", debug.Stack()),
	)

	e.send(ctx, chatID, "An error occurred while processing your request. Please try again.", mainMenu())
	if e.opts.OwnerID != 0 && e.opts.OwnerID != chatID {
		e.send(ctx, e.opts.OwnerID, fmt.Sprintf("⚠️ Handler failure\nUser: %d\nMode: %s\nError: %v", userID, mode, r), nil)
	}
}

// send delivers a message and logs delivery failures
func (e *Engine) send(ctx context.Context, chatID int64, text string, kb *Keyboard) int {
	id, err := e.messenger.Send(ctx, Reply{ChatID: chatID, Text: text, Keyboard: kb})
	if err != nil {
		e.logger.Warn("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	return id
}

func (e *Engine) edit(ctx context.Context, chatID int64, messageID int, text string, kb *Keyboard) {
	if messageID == 0 {
		e.send(ctx, chatID, text, kb)
		return
	}
	if err := e.messenger.Edit(ctx, chatID, messageID, text, kb); err != nil {
		e.logger.Warn("Failed to edit message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// done returns the conversation to idle and replies with the main menu
func (e *Engine) done(ctx context.Context, chatID int64, text string) {
	e.sessions.Reset(chatID)
	e.send(ctx, chatID, text, mainMenu())
}

// finish returns the conversation to idle and re-shows the menu
func (e *Engine) finish(ctx context.Context, chatID int64) {
	e.done(ctx, chatID, "Choose an action from the menu:")
}

func (e *Engine) record(ctx context.Context, entry models.OperationLogEntry) {
	e.oplog.Append(ctx, entry)
}
