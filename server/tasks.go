package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/agentd/core"
)

// taskResultTimeout bounds recording a task result after the run ended.
const taskResultTimeout = 5 * time.Second

type taskRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Task        string `json:"task"`
}

func (t *taskRequest) validate() error {
	t.Name = strings.TrimSpace(t.Name)
	t.Task = strings.TrimSpace(t.Task)

	if t.Name == "" || t.Task == "" {
		return errors.New("name and task are required")
	}

	return nil
}

// newTaskID keeps the task_<unix millis> shape with a random suffix so ids
// created within the same millisecond do not collide.
func newTaskID() string {
	return fmt.Sprintf("task_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.ListTasks(r.Context())
	if err != nil {
		s.writeStoreError(w, "list tasks", err)
		return
	}

	if tasks == nil {
		tasks = []*core.Task{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if err := req.validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	task := &core.Task{
		ID:          newTaskID(),
		Name:        req.Name,
		Description: req.Description,
		Task:        req.Task,
	}

	if err := s.store.CreateTask(r.Context(), task); err != nil {
		s.writeStoreError(w, "create task", err)
		return
	}

	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.store.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, "get task", err)
		return
	}

	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if err := req.validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := r.PathValue("id")
	if err := s.store.UpdateTask(r.Context(), &core.Task{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Task:        req.Task,
	}); err != nil {
		s.writeStoreError(w, "update task", err)
		return
	}

	task, err := s.store.GetTask(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, "get task", err)
		return
	}

	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteTask(r.Context(), id); err != nil {
		s.writeStoreError(w, "delete task", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": fmt.Sprintf("Task %s deleted", id),
	})
}

// handleRunTask executes a saved task in a fresh session titled after the
// task and records the outcome as the task's last result.
func (s *Server) handleRunTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.store.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, "get task", err)
		return
	}

	sessionID := uuid.NewString()
	if _, err := s.store.Create(r.Context(), sessionID, core.TaskSessionPrefix+task.Name); err != nil {
		s.writeStoreError(w, "create session", err)
		return
	}

	s.streamRun(w, r, sessionID, task.Task, func(ev core.Event) {
		result := ev.Content
		if ev.Type == core.EventError {
			result = "Error: " + ev.Message
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), taskResultTimeout)
		defer cancel()

		if err := s.store.SetTaskResult(ctx, task.ID, result); err != nil {
			s.logger.Warn("server.task.result_failed", "task_id", task.ID, "error", err.Error())
		}
	})
}
