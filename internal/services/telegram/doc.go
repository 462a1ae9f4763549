// Package telegram implements messaging.Transport over the Telegram Bot API.
//
// Prompts go to a single configured chat. Choice prompts carry inline
// keyboards, free-text prompts use ForceReply, and inbound callbacks and
// messages arrive through getUpdates long polling.
package telegram
