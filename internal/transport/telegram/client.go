package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Client wraps the Bot API with the handful of calls the router and the
// notifier need.
type Client struct {
	api    *tgbotapi.BotAPI
	logger *zap.Logger
}

// NewClient authorizes against the Bot API.
func NewClient(token string, logger *zap.Logger) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	logger.Info("authorized on telegram", zap.String("username", api.Self.UserName))
	return &Client{api: api, logger: logger}, nil
}

// Username is the bot account name.
func (c *Client) Username() string {
	return c.api.Self.UserName
}

// SendText sends a plain text message.
func (c *Client) SendText(chatID int64, text string) error {
	_, err := c.api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// SendTextWithKeyboard sends a text message carrying a reply or inline
// keyboard.
func (c *Client) SendTextWithKeyboard(chatID int64, text string, keyboard interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard
	_, err := c.api.Send(msg)
	return err
}

// EditText rewrites a sent message. The inline keyboard, if any, is
// dropped with the old text.
func (c *Client) EditText(chatID int64, messageID int, text string) error {
	_, err := c.api.Send(tgbotapi.NewEditMessageText(chatID, messageID, text))
	return err
}

// EditKeyboard swaps the inline keyboard under a sent message.
func (c *Client) EditKeyboard(chatID int64, messageID int, markup tgbotapi.InlineKeyboardMarkup) error {
	_, err := c.api.Send(tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, markup))
	return err
}

// EditTextWithKeyboard rewrites a sent message and its inline keyboard
// in one call.
func (c *Client) EditTextWithKeyboard(chatID int64, messageID int, text string, markup tgbotapi.InlineKeyboardMarkup) error {
	_, err := c.api.Send(tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, markup))
	return err
}

// AnswerCallback acknowledges an inline key press, optionally with a
// toast.
func (c *Client) AnswerCallback(callbackID, text string) error {
	_, err := c.api.Request(tgbotapi.NewCallback(callbackID, text))
	return err
}

// SendDocument uploads a file from memory.
func (c *Client) SendDocument(chatID int64, filename string, data []byte, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: filename, Bytes: data})
	doc.Caption = caption
	_, err := c.api.Send(doc)
	return err
}
