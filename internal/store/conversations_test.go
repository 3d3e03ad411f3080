// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/heavon/internal/model"
	"github.com/jeranaias/heavon/internal/storage"
)

func newTestStore(t *testing.T) (*ConversationStore, *storage.MemoryDriver) {
	t.Helper()
	drv := storage.NewMemoryDriver()
	return NewConversationStore(drv.Backend(ChatsKey), zerolog.Nop()), drv
}

// =============================================================================
// CREATE / DELETE / ACTIVE
// =============================================================================

func TestCreateChat_NewestFirstAndActive(t *testing.T) {
	s, _ := newTestStore(t)

	var ids []string
	for i := 0; i < 5; i++ {
		id := s.CreateChat("openai/gpt-4-turbo")
		ids = append(ids, id)

		chats := s.Chats()
		require.Len(t, chats, i+1)
		assert.Equal(t, id, chats[0].ID, "most recent chat is first")
		assert.Equal(t, id, s.ActiveChatID(), "most recent chat is active")
	}

	chats := s.Chats()
	for i, c := range chats {
		assert.Equal(t, ids[len(ids)-1-i], c.ID)
		assert.Equal(t, model.DefaultChatTitle, c.Title)
		assert.Equal(t, "openai/gpt-4-turbo", c.Model)
		assert.Empty(t, c.Messages)
	}
}

func TestCreateChat_DefaultModel(t *testing.T) {
	s, _ := newTestStore(t)
	id := s.CreateChat("")
	c, ok := s.Chat(id)
	require.True(t, ok)
	assert.Equal(t, model.DefaultModelID, c.Model)
}

func TestDeleteChat_ActiveClearsPointer(t *testing.T) {
	s, _ := newTestStore(t)
	first := s.CreateChat("")
	second := s.CreateChat("")
	require.Equal(t, second, s.ActiveChatID())

	s.DeleteChat(second)

	assert.Empty(t, s.ActiveChatID())
	_, ok := s.ActiveChat()
	assert.False(t, ok)
	require.Len(t, s.Chats(), 1)
	assert.Equal(t, first, s.Chats()[0].ID)
}

func TestDeleteChat_InactiveKeepsPointer(t *testing.T) {
	s, _ := newTestStore(t)
	first := s.CreateChat("")
	second := s.CreateChat("")

	s.DeleteChat(first)

	assert.Equal(t, second, s.ActiveChatID())
	assert.Len(t, s.Chats(), 1)
}

func TestDeleteChat_UnknownIsNoop(t *testing.T) {
	s, _ := newTestStore(t)
	id := s.CreateChat("")
	before := s.Chats()

	s.DeleteChat("does-not-exist")

	assert.Equal(t, before, s.Chats())
	assert.Equal(t, id, s.ActiveChatID())
}

func TestSetActiveChatID_Unvalidated(t *testing.T) {
	s, _ := newTestStore(t)
	id := s.CreateChat("")

	s.SetActiveChatID("ghost")
	assert.Equal(t, "ghost", s.ActiveChatID())
	_, ok := s.ActiveChat()
	assert.False(t, ok, "nonexistent id yields no active chat")

	s.SetActiveChatID(id)
	c, ok := s.ActiveChat()
	require.True(t, ok)
	assert.Equal(t, id, c.ID)

	s.SetActiveChatID("")
	_, ok = s.ActiveChat()
	assert.False(t, ok)
}

// =============================================================================
// MESSAGE MUTATIONS
// =============================================================================

func TestAppendMessage_PreservesOrder(t *testing.T) {
	s, _ := newTestStore(t)
	id := s.CreateChat("")

	for _, text := range []string{"one", "two", "three"} {
		_, ok := s.AppendMessage(id, model.NewUserMessage(text))
		require.True(t, ok)
	}

	c, _ := s.Chat(id)
	require.Len(t, c.Messages, 3)
	assert.Equal(t, "one", c.Messages[0].Content)
	assert.Equal(t, "three", c.Messages[2].Content)

	_, ok := s.AppendMessage("missing", model.NewUserMessage("x"))
	assert.False(t, ok)
}

func TestUpdateMessageContent_ByID(t *testing.T) {
	s, _ := newTestStore(t)
	id := s.CreateChat("")
	user := model.NewUserMessage("question")
	reply := model.NewAssistantPlaceholder()
	s.AppendMessage(id, user)
	s.AppendMessage(id, reply)

	ok := s.UpdateMessageContent(id, reply.ID, func(c string) string { return c + "ans" })
	require.True(t, ok)
	ok = s.UpdateMessageContent(id, reply.ID, func(c string) string { return c + "wer" })
	require.True(t, ok)

	c, _ := s.Chat(id)
	assert.Equal(t, "question", c.Messages[0].Content)
	assert.Equal(t, "answer", c.Messages[1].Content)

	assert.False(t, s.UpdateMessageContent(id, "missing", strings.ToUpper))
	assert.False(t, s.UpdateMessageContent("missing", reply.ID, strings.ToUpper))
}

func TestMutations_LeaveSnapshotsAndSiblingsUntouched(t *testing.T) {
	s, _ := newTestStore(t)
	other := s.CreateChat("")
	s.AppendMessage(other, model.NewUserMessage("sibling"))
	target := s.CreateChat("")
	reply := model.NewAssistantPlaceholder()
	s.AppendMessage(target, model.NewUserMessage("hi"))
	s.AppendMessage(target, reply)

	before := s.Chats()
	require.Len(t, before, 2)

	s.UpdateMessageContent(target, reply.ID, func(c string) string { return c + "chunk" })
	after := s.Chats()

	// The earlier snapshot still shows the old content.
	assert.Equal(t, "", before[0].Messages[1].Content)
	assert.Equal(t, "chunk", after[0].Messages[1].Content)

	// The untouched chat shares its message storage with the old snapshot.
	assert.Same(t, &before[1].Messages[0], &after[1].Messages[0])
	// So does the untouched message of the changed chat's predecessor value.
	assert.Equal(t, before[0].Messages[0], after[0].Messages[0])
}

func TestAppendMessage_DivergentSnapshotsDoNotAlias(t *testing.T) {
	msgs := make([]model.Message, 1, 4)
	msgs[0] = model.NewUserMessage("base")

	a := WithMessage(msgs, model.NewUserMessage("a"))
	b := WithMessage(msgs, model.NewUserMessage("b"))

	assert.Equal(t, "a", a[1].Content)
	assert.Equal(t, "b", b[1].Content)
}

func TestConcurrentChunkWrites_AcrossChats(t *testing.T) {
	s, _ := newTestStore(t)
	a := s.CreateChat("")
	b := s.CreateChat("")
	ma := model.NewAssistantPlaceholder()
	mb := model.NewAssistantPlaceholder()
	s.AppendMessage(a, ma)
	s.AppendMessage(b, mb)

	var wg sync.WaitGroup
	for _, target := range []struct{ chat, msg, tok string }{{a, ma.ID, "a"}, {b, mb.ID, "b"}} {
		wg.Add(1)
		go func(chat, msg, tok string) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s.UpdateMessageContent(chat, msg, func(c string) string { return c + tok })
			}
		}(target.chat, target.msg, target.tok)
	}
	wg.Wait()

	ca, _ := s.Chat(a)
	cb, _ := s.Chat(b)
	assert.Equal(t, strings.Repeat("a", 100), ca.Messages[0].Content)
	assert.Equal(t, strings.Repeat("b", 100), cb.Messages[0].Content)
}

func TestSubscribe_NotifiedOnChange(t *testing.T) {
	s, _ := newTestStore(t)
	ch, cancel := s.Subscribe()
	defer cancel()

	s.CreateChat("")

	select {
	case <-ch:
	default:
		t.Fatal("expected a change notification")
	}
}

// =============================================================================
// PERSISTENCE
// =============================================================================

func TestPersistence_RoundTrip(t *testing.T) {
	s, drv := newTestStore(t)
	first := s.CreateChat("mistralai/mistral-7b-instruct:free")
	s.AppendMessage(first, model.NewUserMessage("hello"))
	reply := model.NewAssistantPlaceholder()
	s.AppendMessage(first, reply)
	s.UpdateMessageContent(first, reply.ID, func(string) string { return "hi there" })
	s.CreateChat("openai/gpt-4-turbo")

	reloaded := NewConversationStore(drv.Backend(ChatsKey), zerolog.Nop())

	want, got := s.Chats(), reloaded.Chats()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Title, got[i].Title)
		assert.Equal(t, want[i].Model, got[i].Model)
		assert.True(t, want[i].CreatedAt.Equal(got[i].CreatedAt))
		require.Len(t, got[i].Messages, len(want[i].Messages))
		for j := range want[i].Messages {
			assert.Equal(t, want[i].Messages[j].ID, got[i].Messages[j].ID)
			assert.Equal(t, want[i].Messages[j].Role, got[i].Messages[j].Role)
			assert.Equal(t, want[i].Messages[j].Content, got[i].Messages[j].Content)
			assert.True(t, want[i].Messages[j].CreatedAt.Equal(got[i].Messages[j].CreatedAt))
		}
	}
	assert.Empty(t, reloaded.ActiveChatID(), "active pointer is session state")
}

func TestPersistence_EveryMutationIsWritten(t *testing.T) {
	s, drv := newTestStore(t)
	id := s.CreateChat("")
	s.AppendMessage(id, model.NewUserMessage("persist me"))

	var env struct {
		Version int          `json:"version"`
		Chats   []model.Chat `json:"chats"`
	}
	require.NoError(t, json.Unmarshal(drv.Get(ChatsKey), &env))
	assert.Equal(t, SchemaVersion, env.Version)
	require.Len(t, env.Chats, 1)
	assert.Equal(t, "persist me", env.Chats[0].Messages[0].Content)

	s.DeleteChat(id)
	require.NoError(t, json.Unmarshal(drv.Get(ChatsKey), &env))
	assert.Empty(t, env.Chats)
}

func TestHydrate_CorruptDataStartsEmpty(t *testing.T) {
	drv := storage.NewMemoryDriver()
	drv.Put(ChatsKey, []byte(`{"version":1,"chats":[{"id":`))

	s := NewConversationStore(drv.Backend(ChatsKey), zerolog.Nop())
	assert.Empty(t, s.Chats())

	// The store keeps working after the fallback.
	id := s.CreateChat("")
	assert.Equal(t, id, s.Chats()[0].ID)
}

func TestHydrate_LegacyBareArray(t *testing.T) {
	drv := storage.NewMemoryDriver()
	drv.Put(ChatsKey, []byte(`[{"id":"c1","title":"Old chat","messages":null,"createdAt":"2024-05-01T10:00:00Z","model":"openai/gpt-3.5-turbo"}]`))

	s := NewConversationStore(drv.Backend(ChatsKey), zerolog.Nop())
	require.Len(t, s.Chats(), 1)
	c := s.Chats()[0]
	assert.Equal(t, "c1", c.ID)
	assert.Equal(t, "Old chat", c.Title)
	assert.NotNil(t, c.Messages)
}

func TestHydrate_FutureVersionStartsEmpty(t *testing.T) {
	drv := storage.NewMemoryDriver()
	drv.Put(ChatsKey, []byte(`{"version":99,"chats":[{"id":"c1"}]}`))

	s := NewConversationStore(drv.Backend(ChatsKey), zerolog.Nop())
	assert.Empty(t, s.Chats())
}

type failingBackend struct{}

func (failingBackend) Load(context.Context) ([]byte, error) { return nil, assert.AnError }
func (failingBackend) Save(context.Context, []byte) error   { return assert.AnError }

func TestBackendFailures_DoNotBreakState(t *testing.T) {
	s := NewConversationStore(failingBackend{}, zerolog.Nop())
	id := s.CreateChat("")
	_, ok := s.AppendMessage(id, model.NewUserMessage("still here"))
	require.True(t, ok)

	c, _ := s.Chat(id)
	assert.Equal(t, "still here", c.Messages[0].Content)
}
