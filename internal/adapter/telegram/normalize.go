package telegram

import (
	"encoding/json"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/fairyhunter13/ai-chat-router/internal/domain"
	"github.com/fairyhunter13/ai-chat-router/pkg/textx"
)

// MaxFileBytes is the Bot API download ceiling.
const MaxFileBytes = 20 << 20

const (
	kindPhoto    = "photo"
	kindVideo    = "video"
	kindDocument = "document"
	kindVoice    = "voice"
)

// attachment is a file referenced by an update but not fetched yet.
type attachment struct {
	fileID string
	mime   string
	size   int
	kind   string
}

// inbound is a normalized update plus the files it references.
type inbound struct {
	event domain.ChatEvent
	media *attachment
	voice *attachment
}

// threadProbe reads the forum topic fields the library's Message type lacks.
type threadProbe struct {
	Message *struct {
		ThreadID int64 `json:"message_thread_id"`
		IsTopic  bool  `json:"is_topic_message"`
	} `json:"message"`
}

var supportedDocuments = map[string]bool{
	"application/pdf":          true,
	"application/x-javascript": true,
	"text/javascript":          true,
	"application/x-python":     true,
	"text/x-python":            true,
	"text/plain":               true,
	"text/html":                true,
	"text/css":                 true,
	"text/md":                  true,
	"text/markdown":            true,
	"text/csv":                 true,
	"text/xml":                 true,
	"text/rtf":                 true,
}

func supportedDocument(mime string) bool {
	mime = strings.ToLower(strings.TrimSpace(mime))
	return supportedDocuments[mime] || strings.HasPrefix(mime, "image/")
}

// decodeUpdate parses one raw getUpdates entry.
func decodeUpdate(raw json.RawMessage) (tgbotapi.Update, int64, error) {
	var u tgbotapi.Update
	if err := json.Unmarshal(raw, &u); err != nil {
		return u, 0, err
	}
	var probe threadProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		return u, 0, err
	}
	var thread int64
	if probe.Message != nil && probe.Message.IsTopic {
		thread = probe.Message.ThreadID
	}
	return u, thread, nil
}

// normalize turns a message update into a ChatEvent. Updates without a
// human sender are dropped.
func normalize(u tgbotapi.Update, threadID, botID, adminID int64) (inbound, bool) {
	msg := u.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return inbound{}, false
	}
	ev := domain.ChatEvent{
		ID:         uuid.NewString(),
		ChatID:     msg.Chat.ID,
		ThreadID:   threadID,
		ChatTitle:  chatTitle(msg.Chat),
		ChatType:   domain.ChatType(msg.Chat.Type),
		MessageID:  msg.MessageID,
		UserID:     msg.From.ID,
		FirstName:  msg.From.FirstName,
		Username:   msg.From.UserName,
		Text:       textx.SanitizeText(firstNonEmpty(msg.Text, msg.Caption)),
		ReceivedAt: time.Unix(int64(msg.Date), 0).UTC(),
	}
	if r := msg.ReplyToMessage; r != nil {
		ev.ReplyToBot = r.From != nil && r.From.ID == botID
		ev.ReplyText = firstNonEmpty(r.Text, r.Caption)
	}
	for _, m := range msg.NewChatMembers {
		if m.ID == botID {
			ev.BotAdded = true
		}
	}
	if msg.LeftChatMember != nil && adminID != 0 && msg.LeftChatMember.ID == adminID {
		ev.AdminLeft = true
	}
	if msg.Sticker != nil {
		ev.StickerEmoji = msg.Sticker.Emoji
	}

	in := inbound{event: ev}
	if msg.Voice != nil {
		in.voice = &attachment{fileID: msg.Voice.FileID, mime: firstNonEmpty(msg.Voice.MimeType, "audio/ogg"), size: msg.Voice.FileSize, kind: kindVoice}
	}
	a, reason := pickMedia(msg)
	if a == nil && reason == "" && msg.ReplyToMessage != nil {
		a, reason = pickMedia(msg.ReplyToMessage)
	}
	in.media = a
	in.event.MediaRejected = reason
	return in, true
}

// pickMedia selects the attachment of a message, or a rejection reason.
func pickMedia(msg *tgbotapi.Message) (*attachment, string) {
	switch {
	case len(msg.Photo) > 0:
		best := msg.Photo[0]
		for _, p := range msg.Photo[1:] {
			if p.Width*p.Height > best.Width*best.Height {
				best = p
			}
		}
		return &attachment{fileID: best.FileID, mime: "image/jpeg", size: best.FileSize, kind: kindPhoto}, ""
	case msg.Video != nil:
		if msg.Video.FileSize > MaxFileBytes {
			return nil, domain.MediaRejectedVideoTooLarge
		}
		return &attachment{fileID: msg.Video.FileID, mime: firstNonEmpty(msg.Video.MimeType, "video/mp4"), size: msg.Video.FileSize, kind: kindVideo}, ""
	case msg.Document != nil:
		if msg.Document.FileSize > MaxFileBytes {
			return nil, domain.MediaRejectedDocumentTooLarge
		}
		if msg.Document.MimeType != "" && !supportedDocument(msg.Document.MimeType) {
			return nil, domain.MediaRejectedUnsupported
		}
		return &attachment{fileID: msg.Document.FileID, mime: msg.Document.MimeType, size: msg.Document.FileSize, kind: kindDocument}, ""
	}
	return nil, ""
}

func chatTitle(c *tgbotapi.Chat) string {
	if c.Title != "" {
		return c.Title
	}
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
