package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"meetsync/internal/config"
	"meetsync/internal/messaging"
	"meetsync/internal/services"
)

// Client is a Bot API client bound to one chat.
type Client struct {
	baseURL     string
	token       string
	chatID      int64
	pollTimeout int
	httpClient  *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New constructs a client from the telegram section of cfg.
func New(cfg config.Telegram, opts ...Option) *Client {
	pollTimeout := cfg.PollTimeoutSeconds
	if pollTimeout < 0 {
		pollTimeout = 0
	}
	requestTimeout := time.Duration(cfg.RequestTimeout) * time.Second
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}
	client := &Client{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/"),
		token:       strings.TrimSpace(cfg.BotToken),
		chatID:      cfg.ChatID,
		pollTimeout: pollTimeout,
		httpClient:  &http.Client{Timeout: time.Duration(pollTimeout)*time.Second + requestTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

var _ messaging.Transport = (*Client)(nil)

// APIError is a Bot API failure.
type APIError struct {
	StatusCode  int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: http %d: %s", e.StatusCode, e.Description)
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

type sentMessage struct {
	MessageID int64 `json:"message_id"`
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type inlineKeyboard struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type forceReply struct {
	ForceReply bool `json:"force_reply"`
	Selective  bool `json:"selective"`
}

func toInline(keyboard messaging.Keyboard) inlineKeyboard {
	rows := make([][]inlineButton, 0, len(keyboard))
	for _, row := range keyboard {
		buttons := make([]inlineButton, 0, len(row))
		for _, button := range row {
			buttons = append(buttons, inlineButton{Text: button.Text, CallbackData: button.Data})
		}
		if len(buttons) > 0 {
			rows = append(rows, buttons)
		}
	}
	return inlineKeyboard{InlineKeyboard: rows}
}

// SendText posts a plain message.
func (c *Client) SendText(ctx context.Context, text string) (int64, error) {
	return c.sendMessage(ctx, "send text", map[string]any{"chat_id": c.chatID, "text": text})
}

// SendChoicePrompt posts a message with an inline keyboard.
func (c *Client) SendChoicePrompt(ctx context.Context, text string, keyboard messaging.Keyboard) (int64, error) {
	return c.sendMessage(ctx, "send prompt", map[string]any{
		"chat_id":      c.chatID,
		"text":         text,
		"reply_markup": toInline(keyboard),
	})
}

// SendFreeTextPrompt posts a message that asks the client to reply to it.
func (c *Client) SendFreeTextPrompt(ctx context.Context, text string) (int64, error) {
	return c.sendMessage(ctx, "send reply prompt", map[string]any{
		"chat_id":      c.chatID,
		"text":         text,
		"reply_markup": forceReply{ForceReply: true, Selective: true},
	})
}

// SendDocument uploads content as a file attachment.
func (c *Client) SendDocument(ctx context.Context, name string, content []byte, caption string) (int64, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	_ = form.WriteField("chat_id", strconv.FormatInt(c.chatID, 10))
	if caption != "" {
		_ = form.WriteField("caption", caption)
	}
	part, err := form.CreateFormFile("document", name)
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "telegram", "send document", "build form", err)
	}
	if _, err := part.Write(content); err != nil {
		return 0, services.Wrap(services.ErrValidation, "telegram", "send document", "build form", err)
	}
	if err := form.Close(); err != nil {
		return 0, services.Wrap(services.ErrValidation, "telegram", "send document", "build form", err)
	}
	var msg sentMessage
	if err := c.call(ctx, "send document", "sendDocument", form.FormDataContentType(), &body, &msg); err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// EditReplyMarkup replaces the keyboard of a sent message. A nil keyboard
// removes every button.
func (c *Client) EditReplyMarkup(ctx context.Context, messageID int64, keyboard messaging.Keyboard) error {
	payload := map[string]any{
		"chat_id":      c.chatID,
		"message_id":   messageID,
		"reply_markup": toInline(keyboard),
	}
	err := c.callJSON(ctx, "edit markup", "editMessageReplyMarkup", payload, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && strings.Contains(apiErr.Description, "message is not modified") {
		return nil
	}
	return err
}

// AnswerCallback acknowledges a button press so the client stops spinning.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	payload := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		payload["text"] = text
	}
	return c.callJSON(ctx, "answer callback", "answerCallbackQuery", payload, nil)
}

type rawUpdate struct {
	UpdateID      int64 `json:"update_id"`
	CallbackQuery *struct {
		ID   string `json:"id"`
		Data string `json:"data"`
		Message *struct {
			MessageID int64 `json:"message_id"`
			Chat      struct {
				ID int64 `json:"id"`
			} `json:"chat"`
		} `json:"message"`
	} `json:"callback_query"`
	Message *struct {
		MessageID int64  `json:"message_id"`
		Text      string `json:"text"`
		Chat      struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		ReplyToMessage *struct {
			MessageID int64 `json:"message_id"`
		} `json:"reply_to_message"`
	} `json:"message"`
}

// Updates long-polls for callbacks and messages after offset.
func (c *Client) Updates(ctx context.Context, offset int64) ([]messaging.Update, error) {
	payload := map[string]any{
		"offset":          offset,
		"timeout":         c.pollTimeout,
		"allowed_updates": []string{"message", "callback_query"},
	}
	var raw []rawUpdate
	if err := c.callJSON(ctx, "get updates", "getUpdates", payload, &raw); err != nil {
		return nil, err
	}
	updates := make([]messaging.Update, 0, len(raw))
	for _, item := range raw {
		update := messaging.Update{ID: item.UpdateID}
		switch {
		case item.CallbackQuery != nil:
			cb := &messaging.Callback{ID: item.CallbackQuery.ID, Data: item.CallbackQuery.Data}
			if item.CallbackQuery.Message != nil {
				cb.ChatID = item.CallbackQuery.Message.Chat.ID
				cb.MessageID = item.CallbackQuery.Message.MessageID
			}
			update.Callback = cb
		case item.Message != nil && item.Message.Text != "":
			msg := &messaging.Message{
				ChatID:    item.Message.Chat.ID,
				MessageID: item.Message.MessageID,
				Text:      item.Message.Text,
			}
			if item.Message.ReplyToMessage != nil {
				msg.ReplyToMessageID = item.Message.ReplyToMessage.MessageID
			}
			update.Message = msg
		}
		updates = append(updates, update)
	}
	return updates, nil
}

func (c *Client) sendMessage(ctx context.Context, op string, payload map[string]any) (int64, error) {
	var msg sentMessage
	if err := c.callJSON(ctx, op, "sendMessage", payload, &msg); err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

func (c *Client) callJSON(ctx context.Context, op, method string, payload any, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return services.Wrap(services.ErrValidation, "telegram", op, "encode payload", err)
	}
	return c.call(ctx, op, method, "application/json", bytes.NewReader(data), out)
}

func (c *Client) call(ctx context.Context, op, method, contentType string, body io.Reader, out any) error {
	if c.token == "" {
		return services.Wrap(services.ErrConfiguration, "telegram", op, "bot token not configured", nil)
	}
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "telegram", op, "build request", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify(op, err)
	}
	defer resp.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&envelope); err != nil {
		if resp.StatusCode >= 300 {
			return classify(op, &APIError{StatusCode: resp.StatusCode, Description: resp.Status})
		}
		return classify(op, err)
	}
	if !envelope.OK || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Description: envelope.Description}
		if envelope.ErrorCode != 0 {
			apiErr.StatusCode = envelope.ErrorCode
		}
		if envelope.Parameters != nil && envelope.Parameters.RetryAfter > 0 {
			apiErr.RetryAfter = time.Duration(envelope.Parameters.RetryAfter) * time.Second
		}
		return classify(op, apiErr)
	}
	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return services.Wrap(services.ErrExternalTool, "telegram", op, "decode result", err)
	}
	return nil
}

func classify(op string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests,
			apiErr.StatusCode == http.StatusConflict,
			apiErr.StatusCode >= http.StatusInternalServerError:
			return services.Wrap(services.ErrTransient, "telegram", op, "bot api unavailable", err)
		default:
			return services.Wrap(services.ErrExternalTool, "telegram", op, "request rejected", err)
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTransient, "telegram", op, "network failure", err)
	}
	return services.Wrap(services.ErrTransient, "telegram", op, "", err)
}
