package claimsbot

import (
	"context"
	"log/slog"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/claimdesk/core/logger"
	"github.com/m3rciful/claimdesk/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/claimdesk/core/telegram/helpers"
	"github.com/m3rciful/claimdesk/core/telegram/state"
	"github.com/m3rciful/claimdesk/internal/claims"
	"github.com/m3rciful/claimdesk/internal/claimsbot/ui"
	"github.com/m3rciful/claimdesk/internal/domain"
)

func inDialogue(st state.State) bool {
	for _, s := range domain.RegistrationStates {
		if s == st {
			return true
		}
	}
	return false
}

func (b *Bot) onStart(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	uid := c.Sender().ID
	if inDialogue(b.States.State(ctx, uid)) {
		_, _ = b.reply(ctx, c, ui.FinishFirst, nil)
		return nil
	}
	if _, ok, err := b.register(ctx, c); err != nil || !ok {
		return err
	}
	if err := b.States.Put(ctx, uid, state.Snapshot{State: domain.StateWaitingForCode, Data: state.Data{}}); err != nil {
		return err
	}
	_, _ = b.reply(ctx, c, ui.Welcome, nil)
	return nil
}

func (b *Bot) onCode(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	code := strings.TrimSpace(c.Message().Text)
	if code == "" {
		_, _ = b.reply(ctx, c, ui.CodeEmpty, nil)
		return nil
	}

	valid := code == b.Campaign.TestCode
	if !valid {
		ok, err := b.Codes.Consume(ctx, code)
		if err != nil {
			return err
		}
		valid = ok
	}
	logger.LogEvent(ctx, logger.CLAIM, slog.LevelInfo, "claim.code",
		slog.Int64("user_id", c.Sender().ID),
		slog.Bool("valid", valid),
	)
	if !valid {
		_, _ = b.reply(ctx, c, ui.CodeNotFound, ui.SupportMarkup())
		return nil
	}
	_, _ = b.reply(ctx, c, ui.CodeFound, nil)

	if !b.subscribed(ctx, c.Sender().ID) {
		err := b.States.Update(ctx, c.Sender().ID, func(s *state.Snapshot) {
			s.Data[domain.DataEnteredCode] = code
		})
		if err != nil {
			return err
		}
		_, _ = b.reply(ctx, c, ui.NotSubscribed, ui.CheckSubscriptionMarkup(b.Campaign.ChannelURL))
		return nil
	}
	return b.proceedToReview(ctx, c, code)
}

// subscribed reports channel membership. Without a configured channel every
// user passes; lookup failures count as not subscribed.
func (b *Bot) subscribed(ctx context.Context, userID int64) bool {
	if b.Campaign.ChannelID == 0 {
		return true
	}
	ok, err := b.Messenger.IsMember(ctx, b.Campaign.ChannelID, userID)
	if err != nil {
		logger.LogEvent(ctx, logger.TG, slog.LevelWarn, "subscription.check",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			logger.Err(err),
		)
		return false
	}
	return ok
}

func (b *Bot) proceedToReview(ctx context.Context, c tele.Context, code string) error {
	uid := c.Sender().ID
	cl, err := b.Claims.Start(ctx, uid, code)
	if err != nil {
		return err
	}
	err = b.States.Update(ctx, uid, func(s *state.Snapshot) {
		s.Data[domain.DataClaimID] = cl.ClaimID
		s.Data[domain.DataEnteredCode] = code
		s.State = domain.StateWaitingForScreenshot
	})
	if err != nil {
		return err
	}
	_, _ = b.Messenger.SendHTML(ctx, uid, ui.ReviewRequest, ui.SendScreenshotMarkup())
	return nil
}

func (b *Bot) alert(c tele.Context, text string) error {
	return c.Respond(&tele.CallbackResponse{Text: text, ShowAlert: true})
}

func (b *Bot) onRegCallback(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	uid := c.Sender().ID
	snap, err := b.States.Snapshot(ctx, uid)
	if err != nil {
		return err
	}

	step := callbacks.CallbackPayload(c)
	if step == ui.StepCheckSub {
		code := snap.Data.String(domain.DataEnteredCode)
		if code == "" {
			return b.alert(c, ui.SessionExpired)
		}
		if !b.subscribed(ctx, uid) {
			return b.alert(c, ui.StillNotSubscribed)
		}
		return b.proceedToReview(ctx, c, code)
	}

	if snap.Data.String(domain.DataClaimID) == "" {
		return b.alert(c, ui.SessionExpired)
	}
	switch step {
	case ui.StepSendScreenshot:
		if m := c.Message(); m != nil {
			if err := b.Messenger.EditText(ctx, m.Chat.ID, m.ID, ui.ScreenshotRequest, nil); err != nil {
				_, _ = b.reply(ctx, c, ui.ScreenshotRequest, nil)
			}
		}
		return b.States.SetState(ctx, uid, domain.StateWaitingForScreenshot)
	case ui.StepPhone:
		_, _ = b.Messenger.SendHTML(ctx, uid, ui.PhoneFormat, nil)
		return b.States.SetState(ctx, uid, domain.StateWaitingForPhoneNumber)
	case ui.StepCard:
		_, _ = b.Messenger.SendHTML(ctx, uid, ui.CardFormat, nil)
		return b.States.SetState(ctx, uid, domain.StateWaitingForCardNumber)
	}
	return nil
}

// onScreenshot collects review screenshots. Every photo keeps the single
// payout method prompt up to date instead of sending a new one.
func (b *Bot) onScreenshot(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	m := c.Message()
	if m.Photo == nil {
		if b.States.State(ctx, c.Sender().ID) == domain.StateWaitingForPhoneOrCard {
			return nil
		}
		_, _ = b.reply(ctx, c, ui.ScreenshotError, ui.SupportMarkup())
		return nil
	}

	// The conversation lock only covers the state write; Telegram calls run after it.
	var promptID int
	var first bool
	userID, chatID := c.Sender().ID, c.Chat().ID
	err := b.States.Update(ctx, userID, func(s *state.Snapshot) {
		s.Data[domain.DataPhotoFileIDs] = append(s.Data.Strings(domain.DataPhotoFileIDs), m.Photo.FileID)
		if s.Data.String(domain.DataReviewText) == "" {
			s.Data[domain.DataReviewText] = m.Caption
		}
		first = !s.Data.Bool(domain.DataScreenshotReceived)
		promptID = s.Data.Int(domain.DataPhoneCardMessageID)
		s.Data[domain.DataScreenshotReceived] = true
		s.State = domain.StateWaitingForPhoneOrCard
	})
	if err != nil {
		return err
	}

	switch {
	case promptID != 0:
		err := b.Messenger.EditText(ctx, chatID, promptID, ui.PhoneOrCard, ui.PhoneOrCardMarkup())
		if err != nil && !strings.Contains(err.Error(), "message is not modified") {
			logger.LogEvent(ctx, logger.TG, slog.LevelWarn, "screenshot.edit", logger.Err(err))
		}
	case first:
		id, err := b.Messenger.SendHTML(ctx, chatID, ui.PhoneOrCard, ui.PhoneOrCardMarkup())
		if err != nil {
			return nil
		}
		return b.States.Update(ctx, userID, func(s *state.Snapshot) {
			if s.Data.Int(domain.DataPhoneCardMessageID) == 0 {
				s.Data[domain.DataPhoneCardMessageID] = id
			}
		})
	}
	return nil
}

func (b *Bot) onPhone(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	phone := strings.TrimSpace(c.Message().Text)
	if !claims.ValidPhone(phone) {
		_, _ = b.reply(ctx, c, ui.PhoneError, nil)
		return nil
	}
	err := b.States.Update(ctx, c.Sender().ID, func(s *state.Snapshot) {
		s.Data[domain.DataPhone] = phone
		delete(s.Data, domain.DataCard)
		s.State = domain.StateWaitingForBank
	})
	if err != nil {
		return err
	}
	_, _ = b.reply(ctx, c, ui.BankRequest, nil)
	return nil
}

func (b *Bot) onBank(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	bank := strings.TrimSpace(c.Message().Text)
	if bank == "" {
		_, _ = b.reply(ctx, c, ui.BankError, nil)
		return nil
	}
	err := b.States.Update(ctx, c.Sender().ID, func(s *state.Snapshot) {
		s.Data[domain.DataBank] = bank
	})
	if err != nil {
		return err
	}
	return b.finalize(ctx, c)
}

func (b *Bot) onCard(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	card, ok := claims.CleanCard(c.Message().Text)
	if !ok {
		_, _ = b.reply(ctx, c, ui.CardError, nil)
		return nil
	}
	err := b.States.Update(ctx, c.Sender().ID, func(s *state.Snapshot) {
		s.Data[domain.DataCard] = card
		delete(s.Data, domain.DataPhone)
	})
	if err != nil {
		return err
	}
	return b.finalize(ctx, c)
}

// finalize completes the claim from the collected data and ends the dialogue.
func (b *Bot) finalize(ctx context.Context, c tele.Context) error {
	uid := c.Sender().ID
	snap, err := b.States.Snapshot(ctx, uid)
	if err != nil {
		return err
	}
	d := snap.Data
	sub := domain.Submission{
		ClaimID:      d.String(domain.DataClaimID),
		Phone:        d.String(domain.DataPhone),
		Card:         d.String(domain.DataCard),
		Bank:         d.String(domain.DataBank),
		ReviewText:   d.String(domain.DataReviewText),
		PhotoFileIDs: d.Strings(domain.DataPhotoFileIDs),
	}
	if sub.ClaimID == "" {
		_, _ = b.reply(ctx, c, ui.ClaimMissing, nil)
		return nil
	}
	if _, err := b.Claims.Finalize(ctx, sub); err != nil {
		if isNotFound(err) {
			_, _ = b.reply(ctx, c, ui.ClaimMissing, nil)
			return nil
		}
		return err
	}
	_, _ = b.reply(ctx, c, ui.Success, nil)
	return b.States.Clear(ctx, uid)
}
