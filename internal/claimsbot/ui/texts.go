// Package ui holds the claims bot texts and keyboards.
package ui

import (
	"fmt"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/claimdesk/core/telegram/state"
	"github.com/m3rciful/claimdesk/internal/domain"
)

const (
	Welcome            = "👋 Привет! Введите секретный код, указанный на голограмме."
	CodeEmpty          = "❌ Пожалуйста, отправьте корректный код."
	CodeNotFound       = "❌ Код не найден или уже использован. Проверьте код и попробуйте ещё раз или обратитесь в поддержку."
	CodeFound          = "✅ Код принят!"
	NotSubscribed      = "📢 Чтобы продолжить, подпишитесь на наш канал и нажмите «Проверить подписку»."
	StillNotSubscribed = "Вы всё ещё не подписаны. Попробуйте снова."
	SessionExpired     = "Сессия устарела. Пожалуйста, введите код снова."
	ReviewRequest      = "📝 Оставьте отзыв о товаре и пришлите скриншот опубликованного отзыва."
	ScreenshotRequest  = "📸 Пришлите скриншот отзыва одним или несколькими фото."
	ScreenshotError    = "❌ Нужен скриншот отзыва. Пожалуйста, отправьте фото."
	PhoneOrCard        = "💳 Скриншот получен. Можно добавить ещё фото или выбрать способ получения выплаты:"
	PhoneFormat        = "📱 Укажите номер телефона, привязанный к СБП, в формате +7**********"
	PhoneError         = "Не похоже на номер телефона. Пожалуйста, укажите номер телефона в формате +7**********"
	BankRequest        = "🏦 Напишите название банка, в который нужно отправить выплату."
	BankError          = "❌ Пожалуйста, отправьте название банка текстом."
	CardFormat         = "💳 Укажите номер карты в формате 2222 2222 2222 2222"
	CardError          = "Не похоже на номер карты. Пожалуйста, укажите номер карты в формате 2222 2222 2222 2222"
	Success            = "🎉 Спасибо! Заявка принята и будет рассмотрена в ближайшее время."
	ClaimMissing       = "Ошибка: заявка не найдена."
	ButtonStale        = "Кнопка устарела. Отправьте /start, чтобы продолжить."
	SlowDown           = "⏳ Слишком много сообщений. Подождите немного."
	FinishFirst        = "⏳ Сначала завершите текущий шаг или обратитесь в поддержку командой /help."

	SupportPrompt      = "🆘 <b>Техническая поддержка</b>\n\nОпишите вашу проблему — мы постараемся помочь."
	SupportInWork      = "🆘 <b>Техническая поддержка</b>\n\nВаше обращение уже в работе, Вы можете отправить новое сообщение."
	SupportSent        = "📩 Сообщение отправлено в поддержку."
	SupportPhotoOK     = "📸 Фото получено."
	SupportReplySoon   = "Мы ответим в ближайшее время."
	SupportResolved    = "✅ Ваше обращение в техническую поддержку закрыто. Если у вас возникнут новые вопросы, создайте новое обращение."
	SupportRolledBack  = "🔄 Ваше обращение в поддержку завершено.\n "
	SupportUnsupported = "📎 Отправить можно только:\n• Текст\n• Фото (в сжатом виде)\n• Документ (PDF, DOCX и т.п.)\n\nПожалуйста, попробуйте ещё раз."
	SupportTooLarge    = "⚠️ Файл слишком большой (макс. %d МБ). Пожалуйста, отправьте уменьшенную версию."

	NoChats          = "❌ У вас нет активных чатов с поддержкой."
	ChatUnsupported  = "❌ Поддерживаются только текстовые сообщения, фото и документы."
	ChatClosed       = "🔒 Чат по этой заявке уже завершён. Сообщение не отправлено."
	ChatAmbiguous    = "У вас несколько открытых чатов по заявкам. Ответьте (reply) на сообщение администратора, чтобы мы поняли, о какой заявке речь."
	RelayNoSession   = "❌ Не найдена активная сессия для этой заявки"
	RelaySent        = "✅ Отправлено пользователю"
	RelayFailedFmt   = "❌ Ошибка: %s"
	StateUpdatedText = "🔄 Состояние обновлено. Продолжайте оформление заявки."
)

// SupportDocument confirms a received document.
func SupportDocument(name string, size int64) string {
	return fmt.Sprintf("📄 Документ «%s» (%.1f МБ) получен.", name, float64(size)/(1024*1024))
}

// StepPrompt is what the user sees when put back on a registration step.
func StepPrompt(st state.State) (string, *tele.ReplyMarkup) {
	switch st {
	case domain.StateWaitingForCode:
		return Welcome, nil
	case domain.StateWaitingForScreenshot:
		return ScreenshotRequest, nil
	case domain.StateWaitingForPhoneOrCard:
		return PhoneOrCard, PhoneOrCardMarkup()
	case domain.StateWaitingForBank:
		return BankRequest, nil
	case domain.StateWaitingForPhoneNumber:
		return PhoneFormat, nil
	case domain.StateWaitingForCardNumber:
		return CardFormat, nil
	}
	return StateUpdatedText, nil
}
