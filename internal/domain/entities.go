package domain

import (
	"context"
	"time"
)

//go:generate mockery --name=Storage --filename=storage_mock.go
//go:generate mockery --name=PrimaryClient --filename=clients_mock.go
//go:generate mockery --name=FallbackClient --filename=clients_mock.go
//go:generate mockery --name=SearchProvider --filename=clients_mock.go
//go:generate mockery --name=Notifier --filename=transport_mock.go
//go:generate mockery --name=Messenger --filename=transport_mock.go

// Credential is one fallback provider key. Secrets are loaded once at startup.
type Credential struct {
	Index  int
	Secret string
	Active bool
}

// WindowKind names one of the two per-chat buffer windows.
type WindowKind string

const (
	// WindowProfile feeds per-user profile analysis.
	WindowProfile WindowKind = "profile"
	// WindowTopic feeds per-chat topic analysis.
	WindowTopic WindowKind = "topic"
)

// BufferEntry is one observed message waiting for analysis.
type BufferEntry struct {
	SenderID    int64
	DisplayName string
	Text        string
}

// HistoryEntry is one line of conversation context.
// Role is the sender display name, or BotRole for our own replies.
type HistoryEntry struct {
	Role string
	Text string
}

// BotRole marks history entries produced by the assistant itself.
const BotRole = "Bot"

// Profile is what the assistant remembers about a chat member.
type Profile struct {
	UserID       int64  `json:"user_id"`
	Name         string `json:"name,omitempty"`
	Username     string `json:"username,omitempty"`
	RealName     string `json:"realName,omitempty"`
	Facts        string `json:"facts,omitempty"`
	Attitude     string `json:"attitude,omitempty"`
	Relationship int    `json:"relationship,omitempty"`
}

// ProfileUpdate is a partial update produced by analysis. Empty fields are left untouched.
type ProfileUpdate struct {
	RealName     string `json:"realName,omitempty"`
	Facts        string `json:"facts,omitempty"`
	Attitude     string `json:"attitude,omitempty"`
	Relationship *int   `json:"relationship,omitempty"`
}

// ChatProfile is the assistant's picture of a whole chat.
type ChatProfile struct {
	Topic     string    `json:"topic,omitempty"`
	Facts     string    `json:"facts,omitempty"`
	Style     string    `json:"style,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// ChatProfileUpdate is a partial chat profile update.
type ChatProfileUpdate struct {
	Topic string `json:"topic,omitempty"`
	Facts string `json:"facts,omitempty"`
	Style string `json:"style,omitempty"`
}

// Empty reports whether the update carries nothing to write.
func (u ChatProfileUpdate) Empty() bool { return u.Topic == "" && u.Facts == "" && u.Style == "" }

// Transcription is the result of voice-to-text.
type Transcription struct {
	Text    string `json:"text"`
	Summary string `json:"summary"`
}

// Media is an inline binary payload attached to a request.
type Media struct {
	MIME string
	Data []byte
}

// ChatType mirrors the transport's chat classification.
type ChatType string

const (
	ChatPrivate    ChatType = "private"
	ChatGroup      ChatType = "group"
	ChatSupergroup ChatType = "supergroup"
)

// ChatEvent is a normalized inbound message.
type ChatEvent struct {
	ID         string   `json:"id"`
	ChatID     int64    `json:"chat_id" validate:"required"`
	ThreadID   int64    `json:"thread_id"`
	ChatTitle  string   `json:"chat_title"`
	ChatType   ChatType `json:"chat_type" validate:"omitempty,oneof=private group supergroup"`
	MessageID  int      `json:"message_id"`
	UserID     int64    `json:"user_id" validate:"required"`
	FirstName  string   `json:"first_name" validate:"max=128"`
	Username   string   `json:"username" validate:"max=64"`
	Text       string   `json:"text" validate:"max=16384"`
	ReplyToBot bool     `json:"reply_to_bot"`
	ReplyText  string   `json:"reply_text"`
	BotAdded   bool     `json:"bot_added"`
	AdminLeft  bool     `json:"admin_left"`
	Media      *Media   `json:"-"`
	Voice      *Media   `json:"-"`
	// StickerEmoji is the emoji attached to a sticker message, if any.
	StickerEmoji string `json:"sticker_emoji"`
	// MediaRejected names why an attachment was not downloaded
	// (see the MediaRejected* constants); empty when accepted or absent.
	MediaRejected string    `json:"media_rejected"`
	ReceivedAt    time.Time `json:"received_at"`
}

// Reasons an attachment was dropped by the transport.
const (
	MediaRejectedVideoTooLarge    = "video_too_large"
	MediaRejectedDocumentTooLarge = "document_too_large"
	MediaRejectedUnsupported      = "unsupported_document"
)

// DisplayName renders "First (@user)" or just the first name.
func (e ChatEvent) DisplayName(fallback string) string {
	name := e.FirstName
	if name == "" {
		name = fallback
	}
	if e.Username != "" {
		return name + " (@" + e.Username + ")"
	}
	return name
}

// IsCommand reports whether the text is a slash command.
func (e ChatEvent) IsCommand() bool { return len(e.Text) > 0 && e.Text[0] == '/' }

// CompletionRequest is one call to the primary OpenAI-compatible backend.
type CompletionRequest struct {
	Model       string
	System      string
	User        string
	Media       *Media
	MaxTokens   int
	Temperature float64
	JSON        bool
}

// GenerateRequest is one call to the native fallback backend.
type GenerateRequest struct {
	Model       string
	System      string
	Text        string
	Media       *Media
	Grounding   bool
	JSON        bool
	Temperature float32
	MaxTokens   int32
}

// Citation is a grounding source attached to a native response.
type Citation struct {
	Title string
	URI   string
}

// GenerateResult is a native backend response.
type GenerateResult struct {
	Text      string
	Citations []Citation
}

// Ports

// Storage persists profiles and moderation state.
type Storage interface {
	Profile(ctx Context, chatID, userID int64) (Profile, error)
	ProfilesFor(ctx Context, chatID int64, userIDs []int64) (map[int64]Profile, error)
	BulkUpdateProfiles(ctx Context, chatID int64, updates map[int64]ProfileUpdate) error
	ChatProfile(ctx Context, chatID int64) (ChatProfile, error)
	UpdateChatProfile(ctx Context, chatID int64, update ChatProfileUpdate) error

	TrackUser(ctx Context, chatID int64, userID int64, firstName, username string) error
	HasChat(ctx Context, chatID int64) (bool, error)
	TrackChat(ctx Context, chatID int64, title string) error

	IsBanned(ctx Context, userID int64) (bool, error)
	Ban(ctx Context, userID int64, name string) error
	Unban(ctx Context, userID int64) error
	BannedList(ctx Context) (map[int64]string, error)
	FindUserByUsername(ctx Context, username string) (int64, error)

	ToggleMute(ctx Context, chatID, threadID int64) (bool, error)
	IsMuted(ctx Context, chatID, threadID int64) (bool, error)
}

// PrimaryClient is the OpenAI-compatible backend.
type PrimaryClient interface {
	Complete(ctx Context, req CompletionRequest) (string, error)
}

// FallbackClient is the native backend keyed by a rotating credential.
type FallbackClient interface {
	Generate(ctx Context, cred Credential, req GenerateRequest) (GenerateResult, error)
}

// SearchProvider is one external search service.
type SearchProvider interface {
	Search(ctx Context, query string) (string, error)
}

// Notifier pushes alerts to the operator channel.
type Notifier interface {
	NotifyOperator(ctx Context, text string) error
}

// Messenger is the outbound side of the chat transport.
type Messenger interface {
	SendText(ctx Context, chatID, threadID int64, replyTo int, text string) error
	SendReaction(ctx Context, chatID int64, messageID int, emoji string) error
	SendTyping(ctx Context, chatID, threadID int64) error
	LeaveChat(ctx Context, chatID int64) error
}

// Context aliases the standard context so ports read uniformly.
type Context = context.Context
