package telegram

import (
	"errors"
	"strconv"

	"github.com/tidwall/gjson"
)

// ErrUnsupportedUpdate is returned for updates that carry neither a message
// nor a callback query (edited messages, channel posts, ...).
var ErrUnsupportedUpdate = errors.New("telegram: unsupported update")

// Update is the subset of a webhook update the bot acts on.
type Update struct {
	ID       int64
	ChatID   string
	FromID   string
	FromName string

	// Text is set for plain messages.
	Text string

	// Callback fields are set for inline-button presses.
	CallbackID   string
	CallbackData string
	MessageID    int64
}

func (u Update) IsCallback() bool { return u.CallbackID != "" }

// ParseUpdate extracts an Update from a raw webhook body.
func ParseUpdate(body []byte) (Update, error) {
	if !gjson.ValidBytes(body) {
		return Update{}, errors.New("telegram: malformed update")
	}
	doc := gjson.ParseBytes(body)
	u := Update{ID: doc.Get("update_id").Int()}

	if cb := doc.Get("callback_query"); cb.Exists() {
		u.CallbackID = cb.Get("id").String()
		u.CallbackData = cb.Get("data").String()
		u.FromID = idString(cb.Get("from.id"))
		u.FromName = cb.Get("from.first_name").String()
		u.ChatID = idString(cb.Get("message.chat.id"))
		u.MessageID = cb.Get("message.message_id").Int()
		return u, nil
	}
	if msg := doc.Get("message"); msg.Exists() {
		u.ChatID = idString(msg.Get("chat.id"))
		u.FromID = idString(msg.Get("from.id"))
		u.FromName = msg.Get("from.first_name").String()
		u.Text = msg.Get("text").String()
		u.MessageID = msg.Get("message_id").Int()
		return u, nil
	}
	return u, ErrUnsupportedUpdate
}

func idString(r gjson.Result) string {
	if !r.Exists() {
		return ""
	}
	return strconv.FormatInt(r.Int(), 10)
}
