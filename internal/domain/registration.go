package domain

import "github.com/m3rciful/claimdesk/core/telegram/state"

// Registration dialogue steps of the claims bot.
const (
	StateWaitingForCode           state.State = "registration:waiting_for_code"
	StateWaitingForScreenshot     state.State = "registration:waiting_for_screenshot"
	StateWaitingForPhoneOrCard    state.State = "registration:waiting_for_phone_or_card"
	StateWaitingForPhoneNumber    state.State = "registration:waiting_for_phone_number"
	StateWaitingForBank           state.State = "registration:waiting_for_bank"
	StateWaitingForCardNumber     state.State = "registration:waiting_for_card_number"
	StateSupportWaitingForMessage state.State = "support:waiting_for_message"
)

// Keys of the registration data blob.
const (
	DataClaimID            = "claim_id"
	DataEnteredCode        = "entered_code"
	DataPhotoFileIDs       = "photo_file_ids"
	DataReviewText         = "review_text"
	DataScreenshotReceived = "screenshot_received"
	DataPhoneCardMessageID = "phone_card_message_id"
	DataPhone              = "phone"
	DataCard               = "card"
	DataBank               = "bank"
	DataOriginalState      = "original_state"
	DataOriginalData       = "original_data"
)

// Step is the short name of a registration state used by the admin API.
type Step string

const (
	StepCode        Step = "code"
	StepScreenshot  Step = "screenshot"
	StepPhoneOrCard Step = "phone_or_card"
	StepCardNumber  Step = "card_number"
	StepPhoneNumber Step = "phone_number"
	StepBank        Step = "bank"
)

var stepStates = map[Step]state.State{
	StepCode:        StateWaitingForCode,
	StepScreenshot:  StateWaitingForScreenshot,
	StepPhoneOrCard: StateWaitingForPhoneOrCard,
	StepCardNumber:  StateWaitingForCardNumber,
	StepPhoneNumber: StateWaitingForPhoneNumber,
	StepBank:        StateWaitingForBank,
}

// State returns the dialogue state of the step.
func (s Step) State() (state.State, bool) {
	st, ok := stepStates[s]
	return st, ok
}

// StepOf maps a registration state back to its step.
func StepOf(st state.State) (Step, bool) {
	for step, s := range stepStates {
		if s == st {
			return step, true
		}
	}
	return "", false
}

// RegistrationStates lists every state the registration dialogue and support
// ticket can be in; /start is ignored while the user is in one of them.
var RegistrationStates = []state.State{
	StateWaitingForCode,
	StateWaitingForScreenshot,
	StateWaitingForPhoneOrCard,
	StateWaitingForPhoneNumber,
	StateWaitingForBank,
	StateWaitingForCardNumber,
	StateSupportWaitingForMessage,
}

var stateLabels = map[state.State]string{
	StateWaitingForCode:           "⏳ Ожидание кода",
	StateWaitingForScreenshot:     "📸 Ожидание скриншота",
	StateWaitingForPhoneOrCard:    "💳 Выбор способа оплаты",
	StateWaitingForBank:           "🏦 Ожидание банка",
	StateWaitingForPhoneNumber:    "📱 Ожидание номера телефона",
	StateWaitingForCardNumber:     "💳 Ожидание номера карты",
	StateSupportWaitingForMessage: "💬 Ожидание сообщения поддержки",
}

// StateLabel returns a display label for a state.
func StateLabel(st state.State) string {
	if st == state.StateIdle {
		return "Нет активного шага"
	}
	if l, ok := stateLabels[st]; ok {
		return l
	}
	return string(st)
}
