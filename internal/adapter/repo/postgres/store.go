// Package postgres persists profiles and moderation state in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/ai-chat-router/internal/domain"
)

// PgxPool is a minimal subset of pgxpool used by the store for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Store implements domain.Storage on PostgreSQL.
type Store struct{ Pool PgxPool }

// NewStore constructs a Store with the given pool.
func NewStore(p PgxPool) *Store { return &Store{Pool: p} }

var _ domain.Storage = (*Store)(nil)

func startSpan(ctx context.Context, name, table, op string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("repo.store").Start(ctx, name)
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", op),
		attribute.String("db.sql.table", table),
	)
	return ctx, span
}

const profileColumns = `user_id, name, username, real_name, facts, attitude, relationship`

// Profile loads a member profile. Unknown members get an empty profile.
func (s *Store) Profile(ctx domain.Context, chatID, userID int64) (domain.Profile, error) {
	ctx, span := startSpan(ctx, "store.Profile", "chat_members", "SELECT")
	defer span.End()
	q := `SELECT ` + profileColumns + ` FROM chat_members WHERE chat_id=$1 AND user_id=$2`
	var p domain.Profile
	err := s.Pool.QueryRow(ctx, q, chatID, userID).
		Scan(&p.UserID, &p.Name, &p.Username, &p.RealName, &p.Facts, &p.Attitude, &p.Relationship)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Profile{UserID: userID}, nil
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("op=store.profile: %w", err)
	}
	return p, nil
}

// ProfilesFor loads the known profiles among userIDs.
func (s *Store) ProfilesFor(ctx domain.Context, chatID int64, userIDs []int64) (map[int64]domain.Profile, error) {
	ctx, span := startSpan(ctx, "store.ProfilesFor", "chat_members", "SELECT")
	defer span.End()
	span.SetAttributes(attribute.Int("profiles.requested", len(userIDs)))
	out := make(map[int64]domain.Profile, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	q := `SELECT ` + profileColumns + ` FROM chat_members WHERE chat_id=$1 AND user_id = ANY($2)`
	rows, err := s.Pool.Query(ctx, q, chatID, userIDs)
	if err != nil {
		return nil, fmt.Errorf("op=store.profiles_for: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p domain.Profile
		if err := rows.Scan(&p.UserID, &p.Name, &p.Username, &p.RealName, &p.Facts, &p.Attitude, &p.Relationship); err != nil {
			return nil, fmt.Errorf("op=store.profiles_for: %w", err)
		}
		out[p.UserID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=store.profiles_for: %w", err)
	}
	return out, nil
}

// BulkUpdateProfiles applies partial updates in one transaction. Empty
// fields keep their stored value.
func (s *Store) BulkUpdateProfiles(ctx domain.Context, chatID int64, updates map[int64]domain.ProfileUpdate) error {
	ctx, span := startSpan(ctx, "store.BulkUpdateProfiles", "chat_members", "UPSERT")
	defer span.End()
	if len(updates) == 0 {
		return nil
	}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("op=store.bulk_update_profiles: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := `INSERT INTO chat_members (chat_id, user_id, real_name, facts, attitude, relationship, updated_at)
VALUES ($1,$2,$3,$4,$5,COALESCE($6, 0),$7)
ON CONFLICT (chat_id, user_id) DO UPDATE SET
  real_name = COALESCE(NULLIF(EXCLUDED.real_name, ''), chat_members.real_name),
  facts = COALESCE(NULLIF(EXCLUDED.facts, ''), chat_members.facts),
  attitude = COALESCE(NULLIF(EXCLUDED.attitude, ''), chat_members.attitude),
  relationship = COALESCE($6, chat_members.relationship),
  updated_at = EXCLUDED.updated_at`
	now := time.Now().UTC()
	for userID, u := range updates {
		if _, err := tx.Exec(ctx, q, chatID, userID, u.RealName, u.Facts, u.Attitude, u.Relationship, now); err != nil {
			return fmt.Errorf("op=store.bulk_update_profiles: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=store.bulk_update_profiles: %w", err)
	}
	return nil
}

// ChatProfile loads the chat's topic, facts and style.
func (s *Store) ChatProfile(ctx domain.Context, chatID int64) (domain.ChatProfile, error) {
	ctx, span := startSpan(ctx, "store.ChatProfile", "chats", "SELECT")
	defer span.End()
	q := `SELECT topic, facts, style, COALESCE(profile_updated_at, created_at) FROM chats WHERE chat_id=$1`
	var p domain.ChatProfile
	err := s.Pool.QueryRow(ctx, q, chatID).Scan(&p.Topic, &p.Facts, &p.Style, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ChatProfile{}, nil
	}
	if err != nil {
		return domain.ChatProfile{}, fmt.Errorf("op=store.chat_profile: %w", err)
	}
	return p, nil
}

// UpdateChatProfile merges a partial chat profile update.
func (s *Store) UpdateChatProfile(ctx domain.Context, chatID int64, u domain.ChatProfileUpdate) error {
	ctx, span := startSpan(ctx, "store.UpdateChatProfile", "chats", "UPSERT")
	defer span.End()
	if u.Empty() {
		return nil
	}
	q := `INSERT INTO chats (chat_id, topic, facts, style, profile_updated_at) VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (chat_id) DO UPDATE SET
  topic = COALESCE(NULLIF(EXCLUDED.topic, ''), chats.topic),
  facts = COALESCE(NULLIF(EXCLUDED.facts, ''), chats.facts),
  style = COALESCE(NULLIF(EXCLUDED.style, ''), chats.style),
  profile_updated_at = EXCLUDED.profile_updated_at`
	if _, err := s.Pool.Exec(ctx, q, chatID, u.Topic, u.Facts, u.Style, time.Now().UTC()); err != nil {
		return fmt.Errorf("op=store.update_chat_profile: %w", err)
	}
	return nil
}

// TrackUser records the member's current name and username.
func (s *Store) TrackUser(ctx domain.Context, chatID, userID int64, firstName, username string) error {
	ctx, span := startSpan(ctx, "store.TrackUser", "chat_members", "UPSERT")
	defer span.End()
	q := `INSERT INTO chat_members (chat_id, user_id, name, username, updated_at) VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (chat_id, user_id) DO UPDATE SET name = EXCLUDED.name, username = EXCLUDED.username, updated_at = EXCLUDED.updated_at`
	if _, err := s.Pool.Exec(ctx, q, chatID, userID, firstName, username, time.Now().UTC()); err != nil {
		return fmt.Errorf("op=store.track_user: %w", err)
	}
	return nil
}

// HasChat reports whether the chat was seen before.
func (s *Store) HasChat(ctx domain.Context, chatID int64) (bool, error) {
	ctx, span := startSpan(ctx, "store.HasChat", "chats", "SELECT")
	defer span.End()
	return s.exists(ctx, "op=store.has_chat", `SELECT EXISTS(SELECT 1 FROM chats WHERE chat_id=$1)`, chatID)
}

// TrackChat records the chat and its display title.
func (s *Store) TrackChat(ctx domain.Context, chatID int64, title string) error {
	ctx, span := startSpan(ctx, "store.TrackChat", "chats", "UPSERT")
	defer span.End()
	q := `INSERT INTO chats (chat_id, title) VALUES ($1,$2) ON CONFLICT (chat_id) DO UPDATE SET title = EXCLUDED.title`
	if _, err := s.Pool.Exec(ctx, q, chatID, title); err != nil {
		return fmt.Errorf("op=store.track_chat: %w", err)
	}
	return nil
}

// IsBanned reports whether the user is on the global block list.
func (s *Store) IsBanned(ctx domain.Context, userID int64) (bool, error) {
	ctx, span := startSpan(ctx, "store.IsBanned", "banned_users", "SELECT")
	defer span.End()
	return s.exists(ctx, "op=store.is_banned", `SELECT EXISTS(SELECT 1 FROM banned_users WHERE user_id=$1)`, userID)
}

// Ban adds the user to the block list.
func (s *Store) Ban(ctx domain.Context, userID int64, name string) error {
	ctx, span := startSpan(ctx, "store.Ban", "banned_users", "UPSERT")
	defer span.End()
	q := `INSERT INTO banned_users (user_id, name) VALUES ($1,$2) ON CONFLICT (user_id) DO UPDATE SET name = EXCLUDED.name`
	if _, err := s.Pool.Exec(ctx, q, userID, name); err != nil {
		return fmt.Errorf("op=store.ban: %w", err)
	}
	return nil
}

// Unban removes the user from the block list.
func (s *Store) Unban(ctx domain.Context, userID int64) error {
	ctx, span := startSpan(ctx, "store.Unban", "banned_users", "DELETE")
	defer span.End()
	if _, err := s.Pool.Exec(ctx, `DELETE FROM banned_users WHERE user_id=$1`, userID); err != nil {
		return fmt.Errorf("op=store.unban: %w", err)
	}
	return nil
}

// BannedList returns banned user ids with the name they were banned under.
func (s *Store) BannedList(ctx domain.Context) (map[int64]string, error) {
	ctx, span := startSpan(ctx, "store.BannedList", "banned_users", "SELECT")
	defer span.End()
	rows, err := s.Pool.Query(ctx, `SELECT user_id, name FROM banned_users ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("op=store.banned_list: %w", err)
	}
	defer rows.Close()
	out := make(map[int64]string)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("op=store.banned_list: %w", err)
		}
		out[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=store.banned_list: %w", err)
	}
	return out, nil
}

// FindUserByUsername resolves a username seen in any chat to a user id.
func (s *Store) FindUserByUsername(ctx domain.Context, username string) (int64, error) {
	ctx, span := startSpan(ctx, "store.FindUserByUsername", "chat_members", "SELECT")
	defer span.End()
	q := `SELECT user_id FROM chat_members WHERE lower(username)=lower($1) ORDER BY updated_at DESC LIMIT 1`
	var id int64
	if err := s.Pool.QueryRow(ctx, q, username).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("op=store.find_user: %w", domain.ErrNotFound)
		}
		return 0, fmt.Errorf("op=store.find_user: %w", err)
	}
	return id, nil
}

// ToggleMute flips the mute flag of a topic and returns the new state.
func (s *Store) ToggleMute(ctx domain.Context, chatID, threadID int64) (bool, error) {
	ctx, span := startSpan(ctx, "store.ToggleMute", "muted_topics", "UPDATE")
	defer span.End()
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("op=store.toggle_mute: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM muted_topics WHERE chat_id=$1 AND thread_id=$2`, chatID, threadID)
	if err != nil {
		return false, fmt.Errorf("op=store.toggle_mute: %w", err)
	}
	muted := tag.RowsAffected() == 0
	if muted {
		if _, err := tx.Exec(ctx, `INSERT INTO muted_topics (chat_id, thread_id) VALUES ($1,$2)`, chatID, threadID); err != nil {
			return false, fmt.Errorf("op=store.toggle_mute: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("op=store.toggle_mute: %w", err)
	}
	return muted, nil
}

// IsMuted reports whether the topic is muted.
func (s *Store) IsMuted(ctx domain.Context, chatID, threadID int64) (bool, error) {
	ctx, span := startSpan(ctx, "store.IsMuted", "muted_topics", "SELECT")
	defer span.End()
	return s.exists(ctx, "op=store.is_muted", `SELECT EXISTS(SELECT 1 FROM muted_topics WHERE chat_id=$1 AND thread_id=$2)`, chatID, threadID)
}

func (s *Store) exists(ctx context.Context, op, q string, args ...any) (bool, error) {
	var ok bool
	if err := s.Pool.QueryRow(ctx, q, args...).Scan(&ok); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return ok, nil
}
