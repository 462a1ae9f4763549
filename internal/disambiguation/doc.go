// Package disambiguation asks a human which meeting a recording belongs to.
//
// A session is opened per asset when the calendar lookup is ambiguous or
// empty. Its state lives in the queue store (idle → awaiting_choice →
// resolved | cancelled | expired) and every exit from awaiting_choice is a
// single conditional update, so concurrent button presses produce exactly
// one winner and the rest receive ErrAlreadyHandled.
package disambiguation
