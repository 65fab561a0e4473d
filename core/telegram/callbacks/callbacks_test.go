package callbacks

import (
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestParseCallbackData(t *testing.T) {
	cases := []struct {
		cb           *tele.Callback
		key, payload string
	}{
		{nil, "", ""},
		{&tele.Callback{Data: "\fproduct_edit|12"}, "product_edit", "12"},
		{&tele.Callback{Data: "\fpay_card"}, "pay_card", ""},
		{&tele.Callback{Unique: "mail", Data: "start"}, "mail", "start"},
		{&tele.Callback{Data: "\fpage|2|next"}, "page", "2|next"},
	}
	for _, tc := range cases {
		key, payload := ParseCallbackData(tc.cb)
		if key != tc.key || payload != tc.payload {
			t.Fatalf("ParseCallbackData(%+v) = %q,%q want %q,%q", tc.cb, key, payload, tc.key, tc.payload)
		}
	}
}
