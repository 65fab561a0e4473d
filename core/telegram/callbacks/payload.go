package callbacks

import (
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// PayloadInt64 parses the payload as int64.
func PayloadInt64(c tele.Context) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(CallbackPayload(c)), 10, 64)
}

// PayloadInt parses the payload as int.
func PayloadInt(c tele.Context) (int, error) {
	return strconv.Atoi(strings.TrimSpace(CallbackPayload(c)))
}

// PayloadParts splits the payload on sep and checks the number of parts.
func PayloadParts(c tele.Context, sep string, want int) ([]string, error) {
	p := CallbackPayload(c)
	if p == "" {
		return nil, strconv.ErrSyntax
	}
	parts := strings.Split(p, sep)
	if want > 0 && len(parts) != want {
		return nil, strconv.ErrSyntax
	}
	return parts, nil
}
