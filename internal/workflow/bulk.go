package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"uctrader/internal/midas"
	"uctrader/internal/models"
	"uctrader/internal/session"
)

const (
	minBatch = 2
	maxBatch = 5

	resultStackPrefix = "stack_"
	resultBulkPrefix  = "bulk_"
)

// Task is one queued activation of a clan batch
type Task struct {
	Index int
	Entry session.BulkEntry
}

// Runner executes tasks one at a time with a pause between consecutive
// tasks. There is never more than one task in flight.
type Runner struct {
	Pause time.Duration
	Sleep func(ctx context.Context, d time.Duration) error
}

// Run executes every task in order and returns one outcome per task. A
// failed task does not stop the run.
func (r Runner) Run(ctx context.Context, tasks []Task, exec func(ctx context.Context, t Task) Outcome) []Outcome {
	outcomes := make([]Outcome, len(tasks))
	for i, t := range tasks {
		if i > 0 && r.Sleep != nil {
			// the pause is rate shaping, an interrupted sleep still runs the task
			_ = r.Sleep(ctx, r.Pause)
		}
		outcomes[i] = exec(ctx, t)
	}
	return outcomes
}

// onStackCodes activates 2 to 5 codes for one player in a single batch call
func (e *Engine) onStackCodes(ctx context.Context, ev Event, st session.WaitActivateCodeBulkStack) {
	codes := ParseCodes(ev.Text)
	if len(codes) < minBatch || len(codes) > maxBatch {
		e.send(ctx, ev.ChatID, fmt.Sprintf("⚠️ Send between %d and %d codes, one per line. Got %d.", minBatch, maxBatch, len(codes)), nil)
		return
	}

	e.send(ctx, ev.ChatID, fmt.Sprintf("⚡ Activating %d codes...", len(codes)), nil)
	results, err := e.remote.ActivateBatch(ctx, st.Player.ID, codes)

	outcomes := make([]Outcome, len(codes))
	if err != nil {
		message := "network error or timeout"
		var batchErr *midas.BatchError
		if errors.As(err, &batchErr) && batchErr.Message != "" {
			message = batchErr.Message
		}
		e.logger.Warn("Stack activation failed",
			zap.String("player_id", st.Player.ID),
			zap.Int("codes", len(codes)),
			zap.Error(err),
		)
		for i, code := range codes {
			outcomes[i] = Outcome{Code: code, Reason: ReasonError, Message: message}
		}
	} else {
		for i, res := range results {
			outcomes[i] = ClassifyBatchItem(res)
			outcomes[i].Code = codes[i]
		}
	}

	for _, o := range outcomes {
		e.record(ctx, models.OperationLogEntry{
			PrincipalID: ev.From.ID,
			Type:        models.LogActivate,
			PlayerID:    st.Player.ID,
			PlayerName:  st.Player.Name,
			Code:        o.Code,
			Result:      resultStackPrefix + resultTag(o),
		})
	}

	report := stackReport(st.Player, outcomes)
	if err != nil {
		report = "⚠️ The batch request failed: " + outcomes[0].Message + "\n\n" + report
	}
	e.done(ctx, ev.ChatID, report)
}

// onBulkIDs verifies every clan player. Any failure discards the whole list.
func (e *Engine) onBulkIDs(ctx context.Context, ev Event) {
	ids := ParseIDs(ev.Text)
	if len(ids) < minBatch || len(ids) > maxBatch {
		e.send(ctx, ev.ChatID, fmt.Sprintf("⚠️ Send between %d and %d player IDs, one per line. Got %d.", minBatch, maxBatch, len(ids)), nil)
		return
	}
	if dup, ok := firstDuplicate(ids); ok {
		e.send(ctx, ev.ChatID, "⚠️ Player "+dup+" is listed twice. Each player gets one code.", nil)
		return
	}

	e.send(ctx, ev.ChatID, fmt.Sprintf("⏳ Verifying %d players...", len(ids)), nil)

	players := make([]session.Player, 0, len(ids))
	for i, id := range ids {
		if i > 0 {
			if err := e.sleep(ctx, e.opts.LookupPause); err != nil {
				e.logger.Warn("Clan verification interrupted", zap.Int64("chat_id", ev.ChatID), zap.Error(err))
				e.sessions.Set(ev.ChatID, session.WaitBulkIDs{})
				e.send(ctx, ev.ChatID, "⚠️ Verification was interrupted.\n\nNo players were kept. Send the full list of IDs again.", nil)
				return
			}
		}

		player, err := e.remote.LookupPlayer(ctx, id)
		if err != nil {
			reason := "could not be verified (network error or timeout)"
			if errors.Is(err, midas.ErrPlayerNotFound) {
				reason = "was not found"
			} else {
				e.logger.Warn("Clan player verification failed", zap.String("player_id", id), zap.Error(err))
			}
			e.sessions.Set(ev.ChatID, session.WaitBulkIDs{})
			e.send(ctx, ev.ChatID, "❌ Player "+id+" "+reason+".\n\nNo players were kept. Send the full list of IDs again.", nil)
			return
		}
		players = append(players, session.Player{ID: id, Name: player.Name})
	}

	e.sessions.Set(ev.ChatID, session.WaitBulkCodes{Players: players})

	text := "✅ All players verified:\n"
	for i, p := range players {
		text += fmt.Sprintf("\n%d. %s (%s)", i+1, p.Name, p.ID)
	}
	text += fmt.Sprintf("\n\nNow send %d codes, one per line, in the same order.", len(players))
	e.send(ctx, ev.ChatID, text, nil)
}

// onBulkCodes pairs codes with the verified players by position
func (e *Engine) onBulkCodes(ctx context.Context, ev Event, st session.WaitBulkCodes) {
	codes := ParseCodes(ev.Text)
	if len(codes) != len(st.Players) {
		e.send(ctx, ev.ChatID, fmt.Sprintf("⚠️ Send exactly %d codes, one per line. Got %d.", len(st.Players), len(codes)), nil)
		return
	}

	entries := make([]session.BulkEntry, len(codes))
	for i, code := range codes {
		entries[i] = session.BulkEntry{Player: st.Players[i], Code: code}
	}

	e.sessions.Set(ev.ChatID, session.WaitBulkConfirm{Entries: entries})
	e.send(ctx, ev.ChatID, clanReview(entries), confirmKeyboard())
}

// onBulkConfirm runs the confirmed clan batch to completion
func (e *Engine) onBulkConfirm(ctx context.Context, cb CallbackEvent) answer {
	st, ok := e.sessions.Get(cb.ChatID).(session.WaitBulkConfirm)
	if !ok {
		return alertAnswer(expiredSession)
	}

	// a second confirm press must not start the batch again
	e.sessions.Reset(cb.ChatID)
	e.answerCallback(ctx, cb.ID, answer{text: "Started"})
	e.edit(ctx, cb.ChatID, cb.MessageID, clanReview(st.Entries)+"\n\n🚀 Started. The report follows when every activation is done.", nil)

	tasks := make([]Task, len(st.Entries))
	for i, entry := range st.Entries {
		tasks[i] = Task{Index: i, Entry: entry}
	}

	e.logger.Info("Clan activation started",
		zap.Int64("user_id", cb.From.ID),
		zap.Int("players", len(tasks)),
	)

	// once started the batch cannot be cancelled
	runCtx := context.WithoutCancel(ctx)
	runner := Runner{Pause: e.opts.BulkStepDelay, Sleep: e.sleep}
	outcomes := runner.Run(runCtx, tasks, func(ctx context.Context, t Task) Outcome {
		return e.activateClanEntry(ctx, cb.From.ID, t.Entry)
	})

	e.done(ctx, cb.ChatID, clanReport(st.Entries, outcomes))
	return answer{sent: true}
}

func (e *Engine) activateClanEntry(ctx context.Context, principal int64, entry session.BulkEntry) Outcome {
	log := models.OperationLogEntry{
		PrincipalID: principal,
		Type:        models.LogActivate,
		PlayerID:    entry.Player.ID,
		PlayerName:  entry.Player.Name,
		Code:        entry.Code,
	}

	result, err := e.remote.ActivateSingle(ctx, entry.Player.ID, entry.Code)
	if err != nil {
		e.logger.Warn("Clan activation failed",
			zap.String("player_id", entry.Player.ID),
			zap.Error(err),
		)
		log.Result = resultBulkPrefix + resultError
		e.record(ctx, log)
		return Outcome{Code: entry.Code, Reason: ReasonError, Message: err.Error()}
	}

	outcome := ClassifySingle(result)
	outcome.Code = entry.Code
	log.Result = resultBulkPrefix + resultTag(outcome)
	e.record(ctx, log)
	return outcome
}

func firstDuplicate(ids []string) (string, bool) {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return id, true
		}
		seen[id] = struct{}{}
	}
	return "", false
}
