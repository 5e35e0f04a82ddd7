//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fairyhunter13/ai-chat-router/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-chat-router/internal/domain"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16",
		Env:          map[string]string{"POSTGRES_PASSWORD": "postgres", "POSTGRES_USER": "postgres", "POSTGRES_DB": "app"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(90 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })
	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432")
	require.NoError(t, err)
	return "postgres://postgres:postgres@" + host + ":" + port.Port() + "/app?sslmode=disable"
}

func TestStore_Postgres(t *testing.T) {
	ctx := context.Background()
	pool, err := postgres.Connect(ctx, startPostgres(t), 30*time.Second)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.Migrate(ctx, pool))
	require.NoError(t, postgres.Migrate(ctx, pool), "migrations are idempotent")

	s := postgres.NewStore(pool)

	seen, err := s.HasChat(ctx, -100)
	require.NoError(t, err)
	assert.False(t, seen)
	require.NoError(t, s.TrackChat(ctx, -100, "Чат"))
	seen, err = s.HasChat(ctx, -100)
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, s.TrackUser(ctx, -100, 42, "Вася", "Vasya"))
	rel := 55
	require.NoError(t, s.BulkUpdateProfiles(ctx, -100, map[int64]domain.ProfileUpdate{42: {Facts: "рыбак", Relationship: &rel}}))
	require.NoError(t, s.BulkUpdateProfiles(ctx, -100, map[int64]domain.ProfileUpdate{42: {Attitude: "дружелюбный"}}))

	p, err := s.Profile(ctx, -100, 42)
	require.NoError(t, err)
	assert.Equal(t, domain.Profile{UserID: 42, Name: "Вася", Username: "Vasya", Facts: "рыбак", Attitude: "дружелюбный", Relationship: 55}, p)

	id, err := s.FindUserByUsername(ctx, "vasya")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	require.NoError(t, s.UpdateChatProfile(ctx, -100, domain.ChatProfileUpdate{Topic: "рыбалка"}))
	require.NoError(t, s.UpdateChatProfile(ctx, -100, domain.ChatProfileUpdate{Style: "мемы"}))
	cp, err := s.ChatProfile(ctx, -100)
	require.NoError(t, err)
	assert.Equal(t, "рыбалка", cp.Topic)
	assert.Equal(t, "мемы", cp.Style)

	muted, err := s.ToggleMute(ctx, -100, 0)
	require.NoError(t, err)
	assert.True(t, muted)
	muted, err = s.ToggleMute(ctx, -100, 0)
	require.NoError(t, err)
	assert.False(t, muted)

	require.NoError(t, s.Ban(ctx, 7, "spammer"))
	list, err := s.BannedList(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{7: "spammer"}, list)
	require.NoError(t, s.Unban(ctx, 7))
	banned, err := s.IsBanned(ctx, 7)
	require.NoError(t, err)
	assert.False(t, banned)
}
