package support

import (
	"context"
	"errors"
	"log/slog"

	"github.com/m3rciful/claimdesk/core/logger"
	"github.com/m3rciful/claimdesk/core/telegram/state"
	"github.com/m3rciful/claimdesk/internal/claimsbot/ui"
	"github.com/m3rciful/claimdesk/internal/domain"
)

// rollbackTargets lists, per registration step, the earlier steps a user may
// be sent back to.
var rollbackTargets = map[domain.Step][]domain.Step{
	domain.StepCode:        {},
	domain.StepScreenshot:  {domain.StepCode},
	domain.StepPhoneOrCard: {domain.StepCode, domain.StepScreenshot},
	domain.StepCardNumber:  {domain.StepCode, domain.StepScreenshot, domain.StepPhoneOrCard},
	domain.StepPhoneNumber: {domain.StepCode, domain.StepScreenshot, domain.StepPhoneOrCard},
	domain.StepBank:        {domain.StepCode, domain.StepScreenshot, domain.StepPhoneOrCard, domain.StepPhoneNumber},
}

// Target is a step a ticket can be rolled back to.
type Target struct {
	Step  domain.Step `json:"step"`
	State string      `json:"state"`
	Label string      `json:"label"`
}

// Targets returns the steps the ticket's user may be sent back to. A ticket
// opened outside registration has none.
func Targets(sessionState string) []Target {
	step, ok := domain.StepOf(state.State(sessionState))
	if !ok {
		return []Target{}
	}
	out := make([]Target, 0, len(rollbackTargets[step]))
	for _, t := range rollbackTargets[step] {
		st, _ := t.State()
		out = append(out, Target{Step: t, State: string(st), Label: domain.StateLabel(st)})
	}
	return out
}

// AvailableStates returns the rollback targets of a ticket.
func (s *Service) AvailableStates(ctx context.Context, sessionID int64) ([]Target, error) {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return Targets(sess.State), nil
}

// Resolve closes the ticket, records the conversation the user was in and
// resets it.
func (s *Service) Resolve(ctx context.Context, sessionID, adminID int64) (domain.SupportSession, error) {
	sess, u, err := s.closing(ctx, sessionID)
	if err != nil {
		return sess, err
	}
	snap, err := s.states.Snapshot(ctx, u.TgID)
	if err != nil {
		return sess, err
	}
	err = s.repo.Resolve(ctx, domain.SupportResolution{
		SessionID:     sess.ID,
		AdminID:       adminID,
		PreviousState: string(snap.State),
		PreviousData:  domain.JSONMap(snap.Data),
	})
	if err != nil {
		return sess, err
	}
	if !snap.Idle() {
		if err := s.states.Clear(ctx, u.TgID); err != nil {
			logger.LogEvent(ctx, logger.SUPPORT, slog.LevelError, "support.resolve",
				slog.String("status", "fail"),
				slog.Int64("session_id", sess.ID),
				logger.Err(err),
			)
		}
	}
	s.bot.Notify(ctx, u.TgID, ui.SupportResolved, nil)
	logger.LogEvent(ctx, logger.SUPPORT, slog.LevelInfo, "support.resolve",
		slog.Int64("session_id", sess.ID),
		slog.Int64("admin_id", adminID),
		slog.String("previous_state", string(snap.State)),
	)
	return s.repo.Get(ctx, sess.ID)
}

// Rollback puts the user back on an earlier registration step with the data
// that step needs, then closes the ticket. The conversation is written first
// and restored if the ticket cannot be closed.
func (s *Service) Rollback(ctx context.Context, sessionID, adminID int64, target string) (domain.SupportSession, error) {
	sess, u, err := s.closing(ctx, sessionID)
	if err != nil {
		return sess, err
	}
	step, ok := parseTarget(target)
	if !ok || !allowed(sess.State, step) {
		return sess, domain.Invalid("Недопустимое состояние для отката")
	}
	next, _ := step.State()

	current, err := s.states.Snapshot(ctx, u.TgID)
	if err != nil {
		return sess, err
	}
	snap := state.Snapshot{State: next, Data: rebuild(step, current)}
	if err := s.states.Put(ctx, u.TgID, snap); err != nil {
		return sess, err
	}
	err = s.repo.Resolve(ctx, domain.SupportResolution{
		SessionID:     sess.ID,
		AdminID:       adminID,
		PreviousState: string(current.State),
		PreviousData:  domain.JSONMap(current.Data),
		Rollback:      true,
	})
	if err != nil {
		if rerr := s.states.Put(context.WithoutCancel(ctx), u.TgID, current); rerr != nil {
			logger.LogEvent(ctx, logger.SUPPORT, slog.LevelError, "support.rollback_restore",
				slog.String("status", "fail"),
				slog.Int64("session_id", sess.ID),
				logger.Err(rerr),
			)
		}
		return sess, err
	}

	prompt, markup := ui.StepPrompt(next)
	s.bot.Notify(ctx, u.TgID, ui.SupportRolledBack+prompt, markup)
	logger.LogEvent(ctx, logger.SUPPORT, slog.LevelInfo, "support.rollback",
		slog.Int64("session_id", sess.ID),
		slog.Int64("admin_id", adminID),
		slog.String("from", sess.State),
		slog.String("to", string(next)),
	)
	return s.repo.Get(ctx, sess.ID)
}

// closing loads a ticket that can still be resolved together with its user.
func (s *Service) closing(ctx context.Context, sessionID int64) (domain.SupportSession, domain.User, error) {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return sess, domain.User{}, err
	}
	if sess.Resolved {
		return sess, domain.User{}, domain.Invalid("Сессия уже закрыта")
	}
	u, err := s.users.Get(ctx, sess.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return sess, u, domain.NotFound("User not found")
	}
	return sess, u, err
}

// parseTarget accepts a short step name or a full state name.
func parseTarget(target string) (domain.Step, bool) {
	if _, ok := domain.Step(target).State(); ok {
		return domain.Step(target), true
	}
	return domain.StepOf(state.State(target))
}

func allowed(sessionState string, step domain.Step) bool {
	for _, t := range Targets(sessionState) {
		if t.Step == step {
			return true
		}
	}
	return false
}

// rebuild keeps only the data the target step relies on. The conversation
// being replaced is kept under the origin keys.
func rebuild(step domain.Step, current state.Snapshot) state.Data {
	src := current.Data
	out := state.Data{
		domain.DataOriginalState: string(current.State),
		domain.DataOriginalData:  map[string]any(stripOrigin(src)),
	}
	if step == domain.StepCode {
		return out
	}
	copyKeys(out, src, domain.DataClaimID, domain.DataEnteredCode)
	if step == domain.StepScreenshot {
		return out
	}
	copyKeys(out, src, domain.DataPhotoFileIDs, domain.DataReviewText)
	out[domain.DataScreenshotReceived] = true
	if step == domain.StepPhoneOrCard {
		return out
	}
	copyKeys(out, src, domain.DataPhoneCardMessageID)
	return out
}

func copyKeys(dst, src state.Data, keys ...string) {
	for _, k := range keys {
		v, ok := src[k]
		if !ok {
			continue
		}
		if list := src.Strings(k); list != nil && k == domain.DataPhotoFileIDs {
			v = list
		}
		dst[k] = v
	}
}
