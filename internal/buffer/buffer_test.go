package buffer_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-chat-router/internal/buffer"
	"github.com/fairyhunter13/ai-chat-router/internal/domain"
	"github.com/fairyhunter13/ai-chat-router/internal/domain/mocks"
)

type mockAnalyzer struct{ mock.Mock }

func (m *mockAnalyzer) AnalyzeBatch(ctx context.Context, entries []domain.BufferEntry, profiles map[int64]domain.Profile) (map[int64]domain.ProfileUpdate, bool) {
	args := m.Called(ctx, entries, profiles)
	var out map[int64]domain.ProfileUpdate
	if v := args.Get(0); v != nil {
		out = v.(map[int64]domain.ProfileUpdate)
	}
	return out, args.Bool(1)
}

func (m *mockAnalyzer) AnalyzeChatProfile(ctx context.Context, entries []domain.BufferEntry, current domain.ChatProfile) (domain.ChatProfileUpdate, bool) {
	args := m.Called(ctx, entries, current)
	return args.Get(0).(domain.ChatProfileUpdate), args.Bool(1)
}

func entry(id int64, text string) domain.BufferEntry {
	return domain.BufferEntry{SenderID: id, DisplayName: fmt.Sprintf("user%d", id), Text: text}
}

func TestAggregator_AppendAndShouldFlush(t *testing.T) {
	a := buffer.New(&mockAnalyzer{}, mocks.NewStorage(t), buffer.Thresholds{Profile: 2, Topic: 3})
	assert.False(t, a.Append(1, domain.WindowProfile, entry(1, "a")))
	assert.False(t, a.ShouldFlush(1, domain.WindowProfile))
	assert.True(t, a.Append(1, domain.WindowProfile, entry(1, "b")))
	assert.True(t, a.ShouldFlush(1, domain.WindowProfile))
	assert.False(t, a.ShouldFlush(1, domain.WindowTopic))
	assert.Equal(t, 0, a.Len(2, domain.WindowProfile), "chats are independent")

	a.Reset(1)
	assert.Equal(t, 0, a.Len(1, domain.WindowProfile))
}

func TestAggregator_ThresholdFlushesExactlyOnce(t *testing.T) {
	analyzer := &mockAnalyzer{}
	store := mocks.NewStorage(t)
	a := buffer.New(analyzer, store, buffer.Thresholds{Profile: 20, Topic: 50})

	store.On("ProfilesFor", mock.Anything, int64(5), []int64{1, 2}).
		Return(map[int64]domain.Profile{1: {UserID: 1}}, nil).Once()
	analyzer.On("AnalyzeBatch", mock.Anything, mock.MatchedBy(func(e []domain.BufferEntry) bool { return len(e) == 20 }), mock.Anything).
		Return(map[int64]domain.ProfileUpdate{1: {Facts: "likes tea"}}, true).Once()
	store.On("BulkUpdateProfiles", mock.Anything, int64(5), map[int64]domain.ProfileUpdate{1: {Facts: "likes tea"}}).
		Return(nil).Once()

	for i := 0; i < 20; i++ {
		a.OnMessage(context.Background(), 5, entry(int64(i%2+1), fmt.Sprint(i)))
	}
	a.Wait()

	analyzer.AssertNumberOfCalls(t, "AnalyzeBatch", 1)
	analyzer.AssertNotCalled(t, "AnalyzeChatProfile", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 0, a.Len(5, domain.WindowProfile))
	assert.Equal(t, 20, a.Len(5, domain.WindowTopic))
}

func TestAggregator_FlushClearsWindowWhateverTheOutcome(t *testing.T) {
	cases := []struct {
		name  string
		setup func(*mockAnalyzer, *mocks.Storage)
	}{
		{"analysis returns nothing", func(an *mockAnalyzer, st *mocks.Storage) {
			st.On("ChatProfile", mock.Anything, int64(1)).Return(domain.ChatProfile{}, nil)
			an.On("AnalyzeChatProfile", mock.Anything, mock.Anything, mock.Anything).Return(domain.ChatProfileUpdate{}, false)
		}},
		{"storage read fails", func(_ *mockAnalyzer, st *mocks.Storage) {
			st.On("ChatProfile", mock.Anything, int64(1)).Return(domain.ChatProfile{}, errors.New("db down"))
		}},
		{"storage write fails", func(an *mockAnalyzer, st *mocks.Storage) {
			st.On("ChatProfile", mock.Anything, int64(1)).Return(domain.ChatProfile{Topic: "old"}, nil)
			an.On("AnalyzeChatProfile", mock.Anything, mock.Anything, domain.ChatProfile{Topic: "old"}).
				Return(domain.ChatProfileUpdate{Topic: "new"}, true)
			st.On("UpdateChatProfile", mock.Anything, int64(1), domain.ChatProfileUpdate{Topic: "new"}).Return(errors.New("db down"))
		}},
		{"analyzer panics", func(an *mockAnalyzer, st *mocks.Storage) {
			st.On("ChatProfile", mock.Anything, int64(1)).Return(domain.ChatProfile{}, nil)
			an.On("AnalyzeChatProfile", mock.Anything, mock.Anything, mock.Anything).Run(func(mock.Arguments) { panic("boom") })
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			analyzer := &mockAnalyzer{}
			store := mocks.NewStorage(t)
			tc.setup(analyzer, store)
			a := buffer.New(analyzer, store, buffer.Thresholds{Profile: 100, Topic: 3})
			for i := 0; i < 3; i++ {
				a.OnMessage(context.Background(), 1, entry(1, "x"))
			}
			a.Wait()
			assert.Equal(t, 0, a.Len(1, domain.WindowTopic))
		})
	}
}

func TestAggregator_AppendDuringAnalysisLandsInNewWindow(t *testing.T) {
	analyzer := &mockAnalyzer{}
	store := mocks.NewStorage(t)
	a := buffer.New(analyzer, store, buffer.Thresholds{Profile: 2, Topic: 100})

	started := make(chan struct{})
	release := make(chan struct{})
	store.On("ProfilesFor", mock.Anything, int64(1), mock.Anything).Return(map[int64]domain.Profile{}, nil)
	analyzer.On("AnalyzeBatch", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(nil, false).Once()

	a.OnMessage(context.Background(), 1, entry(1, "a"))
	a.OnMessage(context.Background(), 1, entry(1, "b"))
	<-started
	a.OnMessage(context.Background(), 1, entry(1, "c"))
	require.Equal(t, 1, a.Len(1, domain.WindowProfile))
	close(release)
	a.Wait()

	assert.Equal(t, 1, a.Len(1, domain.WindowProfile))
	drained := analyzer.Calls[0].Arguments.Get(1).([]domain.BufferEntry)
	assert.Equal(t, []string{"a", "b"}, []string{drained[0].Text, drained[1].Text})
}

func TestAggregator_FlushEmptyIsNoop(t *testing.T) {
	a := buffer.New(&mockAnalyzer{}, mocks.NewStorage(t), buffer.Thresholds{})
	a.Flush(context.Background(), 9, domain.WindowProfile)
	a.Wait()
}

func TestAggregator_CancelledCallerDoesNotAbortAnalysis(t *testing.T) {
	analyzer := &mockAnalyzer{}
	store := mocks.NewStorage(t)
	a := buffer.New(analyzer, store, buffer.Thresholds{Profile: 1, Topic: 100})
	store.On("ProfilesFor", mock.Anything, int64(1), []int64{1}).Return(map[int64]domain.Profile{}, nil)
	analyzer.On("AnalyzeBatch", mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil }), mock.Anything, mock.Anything).
		Return(nil, false).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a.OnMessage(ctx, 1, entry(1, "a"))
	a.Wait()
}
