package salesbot

import (
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/claimdesk/core/telegram/format"
	"github.com/m3rciful/claimdesk/core/telegram/keyboard"
	"github.com/m3rciful/claimdesk/internal/domain"
)

// Callback keys.
const (
	cbMenu        = "sales_menu"
	cbProductPage = "products_page"
	cbProduct     = "product"
	cbProductEdit = "product_edit"
	cbMailStop    = "mail_stop"
	cbReaction    = "product_reaction"
)

// Menu payloads.
const (
	menuMailing  = "mailing"
	menuProducts = "products"
	menuAdd      = "add"
	menuList     = "list"
	menuBack     = "back"
)

const (
	textWelcome         = "👋 Здравствуйте! Напишите нам, и оператор ответит в ближайшее время."
	textMenu            = "Выберите действие:"
	textMailingPrompt   = "<b>Введите сообщение для рассылки:</b>"
	textNoRecipients    = "❌ Нет активных пользователей для рассылки"
	textRecipientsError = "❌ Ошибка при получении списка пользователей"
	textMailingBusy     = "⏳ Рассылка уже идёт. Дождитесь её завершения или остановите её."
	textProductsMenu    = "🛍️ <b>Управление товарами</b>\n\nВыберите действие:"
	textAskTitle        = "📝 <b>Добавление нового товара</b>\n\nВведите название товара:"
	textAskDescription  = "📝 Теперь введите описание товара:"
	textAskImage        = "🖼️ Теперь отправьте изображение товара:"
	textNeedImage       = "❌ Пожалуйста, отправьте изображение товара"
	textTitleTooLong    = "❌ Название слишком длинное (максимум 100 символов)"
	textDescTooLong     = "❌ Описание слишком длинное (максимум 1000 символов)"
	textNeedText        = "❌ Пожалуйста, отправьте текст."
	textNoProducts      = "❌ Товары не найдены"
	textEditTitle       = "✏️ Введите новое название товара:"
	textEditDescription = "📝 Введите новое описание товара:"
	textEditImage       = "🖼️ Отправьте новое изображение товара:"
	textUpdated         = "✅ Товар обновлён!"
	textProductMissing  = "❌ Товар не найден"
	textReactionThanks  = "Спасибо за ответ!"
)

const (
	maxTitle       = 100
	maxDescription = 1000
	productsPage   = 12
)

func menuMarkup() *tele.ReplyMarkup {
	return keyboard.InlineButtonsNPerRow([]keyboard.InlineBtn{
		{Text: "Создание рассылки", Unique: cbMenu, Data: menuMailing},
		{Text: "Редактировать товар", Unique: cbMenu, Data: menuProducts},
	}, 1)
}

func productsMenuMarkup() *tele.ReplyMarkup {
	return keyboard.InlineButtonsNPerRow([]keyboard.InlineBtn{
		{Text: "➕ Добавить новый товар", Unique: cbMenu, Data: menuAdd},
		{Text: "✏️ Редактировать существующий товар", Unique: cbMenu, Data: menuList},
		{Text: "⬅️ Назад", Unique: cbMenu, Data: menuBack},
	}, 1)
}

func mailStopMarkup() *tele.ReplyMarkup {
	return keyboard.InlineButtons(keyboard.InlineBtn{Text: "⏹ Остановить", Unique: cbMailStop, Data: "stop"})
}

func reactionMarkup(productID int64) *tele.ReplyMarkup {
	id := strconv.FormatInt(productID, 10)
	return keyboard.InlineButtonsNPerRow([]keyboard.InlineBtn{
		{Text: "Готово 👍", Unique: cbReaction, Data: id + "|ready"},
		{Text: "Нет 👎", Unique: cbReaction, Data: id + "|not_ready"},
	}, 2)
}

func pagesOf(total int64) int {
	pages := int((total + productsPage - 1) / productsPage)
	if pages < 1 {
		pages = 1
	}
	return pages
}

// productsMarkup lists one page of products, then the pager, then the way back.
func productsMarkup(products []domain.Product, page, pages int) *tele.ReplyMarkup {
	rows := make([][]keyboard.InlineBtn, 0, len(products)+2)
	for _, p := range products {
		title := format.Truncate(p.Title, 30)
		if title == "" {
			title = "Без названия"
		}
		rows = append(rows, []keyboard.InlineBtn{{Text: title, Unique: cbProduct, Data: strconv.FormatInt(p.ProductID, 10)}})
	}
	var pager []keyboard.InlineBtn
	if page > 1 {
		pager = append(pager, keyboard.InlineBtn{Text: "◀️", Unique: cbProductPage, Data: strconv.Itoa(page - 1)})
	}
	pager = append(pager, keyboard.InlineBtn{Text: fmt.Sprintf("%d/%d", page, pages), Unique: cbProductPage, Data: strconv.Itoa(page)})
	if page < pages {
		pager = append(pager, keyboard.InlineBtn{Text: "▶️", Unique: cbProductPage, Data: strconv.Itoa(page + 1)})
	}
	rows = append(rows, pager)
	rows = append(rows, []keyboard.InlineBtn{{Text: "⬅️ Назад в меню", Unique: cbMenu, Data: menuProducts}})
	return keyboard.InlineButtonsRows(rows...)
}

func productEditMarkup(id int64) *tele.ReplyMarkup {
	s := strconv.FormatInt(id, 10)
	return keyboard.InlineButtonsNPerRow([]keyboard.InlineBtn{
		{Text: "✏️ Изменить название", Unique: cbProductEdit, Data: s + "|title"},
		{Text: "📝 Изменить описание", Unique: cbProductEdit, Data: s + "|description"},
		{Text: "🖼️ Изменить изображение", Unique: cbProductEdit, Data: s + "|image"},
		{Text: "⬅️ Назад к списку", Unique: cbMenu, Data: menuList},
	}, 1)
}

// productCard renders a product for the admin; link is the deep link users open.
func productCard(p domain.Product, link string) string {
	lines := []string{
		"🛍️ " + format.Bold("Товар"),
		"",
		format.Field("ID", strconv.FormatInt(p.ProductID, 10)),
		format.Field("Название", p.Title),
		format.Field("Описание", format.Truncate(p.Description, 200)),
	}
	if link != "" {
		lines = append(lines, "", "🔗 "+format.Bold("Ссылка для пользователей:"), link)
	}
	return format.Lines(lines...)
}

func progressText(sent, total int) string {
	return fmt.Sprintf("📤 Рассылка... %d/%d", sent, total)
}
