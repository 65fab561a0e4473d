package payments

import (
	"strings"

	"github.com/m3rciful/claimdesk/internal/domain"
)

// NormalizePhone brings a Russian mobile number to +7XXXXXXXXXX.
func NormalizePhone(raw string) (string, error) {
	p := strings.NewReplacer(" ", "", "-", "", "+", "", "(", "", ")", "").Replace(strings.TrimSpace(raw))
	if !allDigits(p) {
		return "", domain.Invalid("Неверный формат телефона. Пример: +7 900 123-45-67")
	}
	switch {
	case len(p) == 11 && p[0] == '7':
		return "+" + p, nil
	case len(p) == 11 && p[0] == '8':
		return "+7" + p[1:], nil
	case len(p) == 10:
		return "+7" + p, nil
	}
	return "", domain.Invalid("Неверный формат телефона. Пример: +7 900 123-45-67")
}

// NormalizeCard strips spaces and checks for 16 digits.
func NormalizeCard(raw string) (string, error) {
	c := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	if c == "" {
		return "", domain.Invalid("Не указан номер карты")
	}
	if len(c) != 16 || !allDigits(c) {
		return "", domain.Invalid("Номер карты должен содержать 16 цифр")
	}
	return c, nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
