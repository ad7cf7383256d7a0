// Package telegram is the Bot API transport behind notify.Dispatcher.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Vortex-technology1/talko-task-manager/internal/notify"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const DefaultAPIBase = "https://api.telegram.org"

// APIError is a response with "ok": false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

type Client struct {
	base  string
	token string
	http  *http.Client
	log   *logrus.Logger
}

// New builds a client. An empty base uses the public Bot API endpoint.
func New(token, base string, log *logrus.Logger) *Client {
	if base == "" {
		base = DefaultAPIBase
	}
	return &Client{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{Timeout: 10 * time.Second},
		log:   log,
	}
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type replyMarkup struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

func keyboard(rows [][]notify.Button) *replyMarkup {
	if len(rows) == 0 {
		return nil
	}
	out := make([][]inlineButton, 0, len(rows))
	for _, r := range rows {
		row := make([]inlineButton, 0, len(r))
		for _, b := range r {
			row = append(row, inlineButton{Text: b.Label, CallbackData: b.Trigger.Payload()})
		}
		out = append(out, row)
	}
	return &replyMarkup{InlineKeyboard: out}
}

type sendMessage struct {
	ChatID                string       `json:"chat_id"`
	Text                  string       `json:"text"`
	ParseMode             string       `json:"parse_mode"`
	DisableWebPagePreview bool         `json:"disable_web_page_preview"`
	ReplyMarkup           *replyMarkup `json:"reply_markup,omitempty"`
}

type editMessageText struct {
	ChatID      string       `json:"chat_id"`
	MessageID   int64        `json:"message_id"`
	Text        string       `json:"text"`
	ParseMode   string       `json:"parse_mode"`
	ReplyMarkup *replyMarkup `json:"reply_markup,omitempty"`
}

type answerCallbackQuery struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
}

func (c *Client) SendText(ctx context.Context, chat notify.ChatRef, text string) (notify.MessageRef, error) {
	return c.SendWithActions(ctx, chat, text, nil)
}

func (c *Client) SendWithActions(ctx context.Context, chat notify.ChatRef, text string, rows [][]notify.Button) (notify.MessageRef, error) {
	res, err := c.call(ctx, "sendMessage", sendMessage{
		ChatID:                string(chat),
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
		ReplyMarkup:           keyboard(rows),
	})
	if err != nil {
		return 0, err
	}
	return notify.MessageRef(res.Get("message_id").Int()), nil
}

func (c *Client) EditMessage(ctx context.Context, chat notify.ChatRef, msg notify.MessageRef, text string, rows [][]notify.Button) error {
	_, err := c.call(ctx, "editMessageText", editMessageText{
		ChatID:      string(chat),
		MessageID:   int64(msg),
		Text:        text,
		ParseMode:   "HTML",
		ReplyMarkup: keyboard(rows),
	})
	var apiErr *APIError
	if errors.As(err, &apiErr) && strings.Contains(apiErr.Description, "message is not modified") {
		return nil
	}
	return err
}

func (c *Client) AcknowledgeAction(ctx context.Context, ref, text string) error {
	_, err := c.call(ctx, "answerCallbackQuery", answerCallbackQuery{CallbackQueryID: ref, Text: text})
	return err
}

func (c *Client) call(ctx context.Context, method string, payload any) (gjson.Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("telegram %s: marshal: %w", method, err)
	}
	url := fmt.Sprintf("%s/bot%s/%s", c.base, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("telegram %s: read body: %w", method, err)
	}
	doc := gjson.ParseBytes(raw)
	if !doc.Get("ok").Bool() {
		code := int(doc.Get("error_code").Int())
		if code == 0 {
			code = resp.StatusCode
		}
		return gjson.Result{}, &APIError{Method: method, Code: code, Description: doc.Get("description").String()}
	}
	c.log.WithField("method", method).Debug("telegram: call ok")
	return doc.Get("result"), nil
}

var _ notify.Dispatcher = (*Client)(nil)
