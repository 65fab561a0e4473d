package claimsbot

import (
	"errors"
	"log/slog"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/claimdesk/core/logger"
	"github.com/m3rciful/claimdesk/core/telegram/format"
	tghelpers "github.com/m3rciful/claimdesk/core/telegram/helpers"
	"github.com/m3rciful/claimdesk/core/telegram/state"
	"github.com/m3rciful/claimdesk/internal/domain"
)

const (
	stateRegLogin    state.State = "admin:waiting_for_login"
	stateRegPassword state.State = "admin:waiting_for_password"

	dataLogin = "login"
)

const (
	regAskLogin    = "Введите логин"
	regAskPassword = "Введите пароль"
	regBadLogin    = "❌ Пожалуйста, отправьте корректный логин."
	regBadPassword = "❌ Пожалуйста, отправьте корректный пароль."
	regDone        = "Регистрация прошла успешно."
	regFailed      = "Ошибка регистрации пользователя."
	regLoginTaken  = "❌ Этот логин уже занят. Введите другой логин."
)

// onReg starts panel account registration. Existing accounts only get their
// login back: passwords are stored hashed.
func (b *Bot) onReg(c tele.Context) error {
	if !tghelpers.IsPrivate(c) {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	uid := c.Sender().ID
	if err := b.States.Clear(ctx, uid); err != nil {
		return err
	}

	acc, err := b.Accounts.Account(ctx, uid)
	switch {
	case err == nil:
		_, _ = b.reply(ctx, c, "Ваши данные для входа:\nЛогин: "+format.Code(acc.Login), nil)
		return nil
	case !isNotFound(err):
		return err
	}
	if err := b.States.SetState(ctx, uid, stateRegLogin); err != nil {
		return err
	}
	_, _ = b.reply(ctx, c, regAskLogin, nil)
	return nil
}

func (b *Bot) onRegLogin(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	login := strings.TrimSpace(c.Message().Text)
	if login == "" {
		_, _ = b.reply(ctx, c, regBadLogin, nil)
		return nil
	}
	err := b.States.Update(ctx, c.Sender().ID, func(s *state.Snapshot) {
		s.Data[dataLogin] = login
		s.State = stateRegPassword
	})
	if err != nil {
		return err
	}
	_, _ = b.reply(ctx, c, regAskPassword, nil)
	return nil
}

func (b *Bot) onRegPassword(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	uid := c.Sender().ID
	password := strings.TrimSpace(c.Message().Text)
	if password == "" {
		_, _ = b.reply(ctx, c, regBadPassword, nil)
		return nil
	}
	snap, err := b.States.Snapshot(ctx, uid)
	if err != nil {
		return err
	}

	_, err = b.Accounts.Register(ctx, uid, snap.Data.String(dataLogin), password)
	switch {
	case errors.Is(err, domain.ErrConflict):
		if err := b.States.Update(ctx, uid, func(s *state.Snapshot) {
			delete(s.Data, dataLogin)
			s.State = stateRegLogin
		}); err != nil {
			return err
		}
		_, _ = b.reply(ctx, c, regLoginTaken, nil)
		return nil
	case err != nil:
		logger.LogEvent(ctx, logger.L, slog.LevelError, "admin.register",
			slog.String("status", "fail"),
			slog.Int64("tg_id", uid),
			logger.Err(err),
		)
		_, _ = b.reply(ctx, c, regFailed, nil)
		return nil
	}
	if err := b.States.Clear(ctx, uid); err != nil {
		return err
	}
	_, _ = b.reply(ctx, c, regDone, nil)
	return nil
}
