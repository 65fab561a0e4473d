package salesbot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/claimdesk/core/logger"
	"github.com/m3rciful/claimdesk/core/telegram"
	"github.com/m3rciful/claimdesk/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/claimdesk/core/telegram/helpers"
	"github.com/m3rciful/claimdesk/core/telegram/state"
	"github.com/m3rciful/claimdesk/internal/domain"
	"github.com/m3rciful/claimdesk/internal/storage/mongostore"
)

const (
	dataTitle       = "title"
	dataDescription = "description"
	dataProductID   = "product_id"
)

func (b *Bot) link(id int64) string {
	if b.Username == "" {
		return ""
	}
	return fmt.Sprintf("https://t.me/%s?start=%d", b.Username, id)
}

// messageText returns trimmed text, or false after asking for text again.
func (b *Bot) messageText(ctx context.Context, c tele.Context, limit int, tooLong string) (string, bool) {
	text := strings.TrimSpace(c.Message().Text)
	if text == "" {
		b.reply(ctx, c, textNeedText, nil)
		return "", false
	}
	if utf8.RuneCountInString(text) > limit {
		b.reply(ctx, c, tooLong, nil)
		return "", false
	}
	return text, true
}

func (b *Bot) onProductTitle(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	title, ok := b.messageText(ctx, c, maxTitle, textTitleTooLong)
	if !ok {
		return nil
	}
	err := b.States.Update(ctx, c.Sender().ID, func(s *state.Snapshot) {
		s.Data[dataTitle] = title
		s.State = stateProductDescription
	})
	if err != nil {
		return err
	}
	b.reply(ctx, c, textAskDescription, nil)
	return nil
}

func (b *Bot) onProductDescription(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	desc, ok := b.messageText(ctx, c, maxDescription, textDescTooLong)
	if !ok {
		return nil
	}
	err := b.States.Update(ctx, c.Sender().ID, func(s *state.Snapshot) {
		s.Data[dataDescription] = desc
		s.State = stateProductImage
	})
	if err != nil {
		return err
	}
	b.reply(ctx, c, textAskImage, nil)
	return nil
}

func (b *Bot) onProductImage(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	m := c.Message()
	if m.Photo == nil {
		b.reply(ctx, c, textNeedImage, nil)
		return nil
	}
	snap, err := b.States.Snapshot(ctx, c.Sender().ID)
	if err != nil {
		return err
	}
	p, err := b.Store.AddProduct(ctx, domain.Product{
		Title:       snap.Data.String(dataTitle),
		Description: snap.Data.String(dataDescription),
		ImageID:     m.Photo.FileID,
	})
	if err != nil {
		b.reply(ctx, c, "❌ Ошибка при сохранении товара", nil)
		_ = b.States.Clear(ctx, c.Sender().ID)
		return err
	}
	logger.LogEvent(ctx, logger.MONGO, slog.LevelInfo, "product.add",
		slog.Int64("product_id", p.ProductID),
		slog.Int64("admin_id", c.Sender().ID),
	)
	if err := b.States.Clear(ctx, c.Sender().ID); err != nil {
		return err
	}
	b.reply(ctx, c, "✅ <b>Товар успешно добавлен!</b>\n\n"+productCard(p, b.link(p.ProductID)), productsMenuMarkup())
	return nil
}

func (b *Bot) showProducts(ctx context.Context, c tele.Context, page int) error {
	products, total, err := b.Store.Products(ctx, page, productsPage)
	if err != nil {
		return err
	}
	if len(products) == 0 {
		b.edit(ctx, c, textNoProducts, productsMenuMarkup())
		return nil
	}
	pages := pagesOf(total)
	text := fmt.Sprintf("📦 <b>Выберите товар для редактирования</b>\n\nСтраница %d/%d", page, pages)
	b.edit(ctx, c, text, productsMarkup(products, page, pages))
	return nil
}

func (b *Bot) onProductsPage(c tele.Context) error {
	page, err := callbacks.PayloadInt(c)
	if err != nil || page < 1 {
		page = 1
	}
	return b.showProducts(tghelpers.BuildContext(c), c, page)
}

func (b *Bot) onProduct(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	id, err := callbacks.PayloadInt64(c)
	if err != nil {
		return nil
	}
	p, err := b.Store.Product(ctx, id)
	if err != nil {
		b.reply(ctx, c, textProductMissing, nil)
		return nil
	}
	return b.sendProductCard(ctx, c.Chat().ID, p)
}

func (b *Bot) sendProductCard(ctx context.Context, chatID int64, p domain.Product) error {
	card := productCard(p, b.link(p.ProductID))
	if p.ImageID != "" {
		if _, err := b.Messenger.SendPhoto(ctx, chatID, telegram.Upload{FileID: p.ImageID}, card); err == nil {
			_, err = b.Messenger.SendHTML(ctx, chatID, textMenu, productEditMarkup(p.ProductID))
			return err
		}
	}
	_, err := b.Messenger.SendHTML(ctx, chatID, card, productEditMarkup(p.ProductID))
	return err
}

var editSteps = map[string]struct {
	state  state.State
	prompt string
}{
	"title":       {stateEditTitle, textEditTitle},
	"description": {stateEditDescription, textEditDescription},
	"image":       {stateEditImage, textEditImage},
}

func (b *Bot) onProductEdit(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	parts, err := callbacks.PayloadParts(c, "|", 2)
	if err != nil {
		return nil
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	step, ok := editSteps[parts[1]]
	if err != nil || !ok {
		return nil
	}
	err = b.States.Put(ctx, c.Sender().ID, state.Snapshot{State: step.state, Data: state.Data{dataProductID: id}})
	if err != nil {
		return err
	}
	b.reply(ctx, c, step.prompt, nil)
	return nil
}

// onEditValue applies the new title, description or image.
func (b *Bot) onEditValue(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	uid := c.Sender().ID
	snap, err := b.States.Snapshot(ctx, uid)
	if err != nil {
		return err
	}
	id, _ := snap.Data.Int64(dataProductID)

	var (
		field mongostore.ProductField
		value string
		ok    bool
	)
	switch snap.State {
	case stateEditTitle:
		field = mongostore.ProductTitle
		value, ok = b.messageText(ctx, c, maxTitle, textTitleTooLong)
	case stateEditDescription:
		field = mongostore.ProductDescription
		value, ok = b.messageText(ctx, c, maxDescription, textDescTooLong)
	case stateEditImage:
		field = mongostore.ProductImage
		if m := c.Message(); m.Photo != nil {
			value, ok = m.Photo.FileID, true
		} else {
			b.reply(ctx, c, textNeedImage, nil)
		}
	}
	if !ok {
		return nil
	}

	if err := b.States.Clear(ctx, uid); err != nil {
		return err
	}
	if err := b.Store.UpdateProduct(ctx, id, field, value); err != nil {
		if isNotFound(err) {
			b.reply(ctx, c, textProductMissing, nil)
			return nil
		}
		return err
	}
	logger.LogEvent(ctx, logger.MONGO, slog.LevelInfo, "product.update",
		slog.Int64("product_id", id),
		slog.String("field", string(field)),
	)
	b.reply(ctx, c, textUpdated, nil)
	p, err := b.Store.Product(ctx, id)
	if err != nil {
		return err
	}
	return b.sendProductCard(ctx, c.Chat().ID, p)
}
