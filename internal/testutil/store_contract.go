package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentd/core"
)

// Store is the combined surface every session backend implements.
type Store interface {
	core.SessionStore
	core.TaskStore
}

// RunStoreContract exercises the behavior shared by all Store
// implementations. Each subtest receives a fresh store from newStore.
func RunStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()

	t.Run("checkpoint round trip", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		msgs, err := s.LoadMessages(ctx, "unknown")
		require.NoError(t, err)
		assert.Empty(t, msgs)

		history := NewHistoryBuilder().
			Human("create file X").
			Calls("run_shell_command", "write_file").
			Results("", "error [TIMEOUT] in write_file: timed out after 1s").
			Failed().
			Answer("File X created.").
			Build()

		require.NoError(t, s.SaveMessages(ctx, "s1", history))

		loaded, err := s.LoadMessages(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, loaded, len(history))

		for i := range history {
			assert.Equal(t, history[i].Role, loaded[i].Role)
			assert.Equal(t, history[i].Content, loaded[i].Content)
			assert.Equal(t, history[i].ToolCallID, loaded[i].ToolCallID)
			assert.Equal(t, history[i].ToolCalls, loaded[i].ToolCalls)
			assert.Equal(t, history[i].IsError, loaded[i].IsError)
			assert.WithinDuration(t, history[i].Timestamp, loaded[i].Timestamp, time.Millisecond)
		}

		assert.NoError(t, core.ValidateHistory(loaded))
		assert.False(t, loaded[2].IsError)
		assert.True(t, loaded[3].IsError)

		// Saving what was loaded leaves the checkpoint unchanged.
		require.NoError(t, s.SaveMessages(ctx, "s1", loaded))
		again, err := s.LoadMessages(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, loaded, again)

		// Appending extends the sequence.
		extended := append(core.CloneMessages(again), core.NewHumanMessage("next"))
		require.NoError(t, s.SaveMessages(ctx, "s1", extended))
		final, err := s.LoadMessages(ctx, "s1")
		require.NoError(t, err)
		assert.Len(t, final, len(history)+1)
	})

	t.Run("session crud", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		a, err := s.Create(ctx, "a", "")
		require.NoError(t, err)
		assert.Equal(t, core.DefaultSessionTitle, a.Title)
		assert.True(t, a.HasDefaultTitle())

		_, err = s.Create(ctx, "b", "Second")
		require.NoError(t, err)

		dup, err := s.Create(ctx, "b", "Ignored")
		require.NoError(t, err)
		assert.Equal(t, "Second", dup.Title)

		time.Sleep(2 * time.Millisecond)
		require.NoError(t, s.SaveMessages(ctx, "a", []core.Message{core.NewHumanMessage("x")}))

		list, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "a", list[0].ID, "most recently updated first")

		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		require.Len(t, got.Messages, 1)

		require.NoError(t, s.Rename(ctx, "b", "Renamed"))
		got, err = s.Get(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Title)

		require.NoError(t, s.Delete(ctx, "a"))
		_, err = s.Get(ctx, "a")
		assert.ErrorIs(t, err, core.ErrSessionNotFound)

		msgs, err := s.LoadMessages(ctx, "a")
		require.NoError(t, err)
		assert.Empty(t, msgs, "delete cascades to messages")

		assert.ErrorIs(t, s.Delete(ctx, "a"), core.ErrSessionNotFound)
		assert.ErrorIs(t, s.Rename(ctx, "missing", "t"), core.ErrSessionNotFound)
	})

	t.Run("tasks", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		older := &core.Task{ID: "task_1", Name: "one", Description: "first", Task: "list files"}
		require.NoError(t, s.CreateTask(ctx, older))
		assert.False(t, older.CreatedAt.IsZero())

		require.NoError(t, s.CreateTask(ctx, &core.Task{ID: "task_2", Name: "two", Task: "df -h", CreatedAt: older.CreatedAt.Add(time.Second)}))

		list, err := s.ListTasks(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "task_2", list[0].ID, "newest first")

		require.NoError(t, s.SetTaskResult(ctx, "task_1", "3 files"))
		require.NoError(t, s.UpdateTask(ctx, &core.Task{ID: "task_1", Name: "uno", Task: "ls -la"}))

		got, err := s.GetTask(ctx, "task_1")
		require.NoError(t, err)
		assert.Equal(t, "uno", got.Name)
		assert.Empty(t, got.Description)
		assert.Equal(t, "ls -la", got.Task)
		assert.Equal(t, "3 files", got.LastResult)

		require.NoError(t, s.DeleteTask(ctx, "task_1"))
		_, err = s.GetTask(ctx, "task_1")
		assert.ErrorIs(t, err, core.ErrTaskNotFound)
		assert.ErrorIs(t, s.DeleteTask(ctx, "task_1"), core.ErrTaskNotFound)
		assert.ErrorIs(t, s.UpdateTask(ctx, &core.Task{ID: "nope"}), core.ErrTaskNotFound)
		assert.ErrorIs(t, s.SetTaskResult(ctx, "nope", "x"), core.ErrTaskNotFound)
	})
}
