package ui

import (
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/claimdesk/core/telegram/keyboard"
)

// Callback keys and payloads of the registration buttons.
const (
	CallbackReg  = "reg"
	CallbackHelp = "send_help_text"

	StepSendScreenshot = "send_screenshot"
	StepPhone          = "phone"
	StepCard           = "card"
	StepCheckSub       = "check_sub"
)

// PhoneOrCardMarkup offers the payout methods and another screenshot.
func PhoneOrCardMarkup() *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{
			{Text: "📱 По номеру телефона (СБП)", Unique: CallbackReg, Data: StepPhone},
			{Text: "💳 По номеру карты", Unique: CallbackReg, Data: StepCard},
		},
		[]keyboard.InlineBtn{{Text: "📸 Добавить скриншот", Unique: CallbackReg, Data: StepSendScreenshot}},
	)
}

// SendScreenshotMarkup asks for the review screenshot.
func SendScreenshotMarkup() *tele.ReplyMarkup {
	return keyboard.InlineButtons(keyboard.InlineBtn{Text: "📸 Отправить скриншот", Unique: CallbackReg, Data: StepSendScreenshot})
}

// SupportMarkup opens a support ticket.
func SupportMarkup() *tele.ReplyMarkup {
	return keyboard.InlineButtons(keyboard.InlineBtn{Text: "🆘 Написать в поддержку", Unique: CallbackHelp, Data: "open"})
}

// CheckSubscriptionMarkup links the channel and re-checks the subscription.
func CheckSubscriptionMarkup(channelURL string) *tele.ReplyMarkup {
	btns := []keyboard.InlineBtn{}
	if channelURL != "" {
		btns = append(btns, keyboard.InlineBtn{Text: "📢 Перейти в канал", URL: channelURL})
	}
	btns = append(btns, keyboard.InlineBtn{Text: "✅ Проверить подписку", Unique: CallbackReg, Data: StepCheckSub})
	return keyboard.InlineButtons(btns...)
}
