package coordservice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestCreateHashlistSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/hashlists", r.URL.Path)

		var req createHashlistRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "batch-0001", req.Name)
		require.Len(t, req.Hashes, 2)

		json.NewEncoder(w).Encode(createHashlistResponse{HashlistID: "hl-123"})
	}))
	defer server.Close()

	c, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	id, err := c.CreateHashlist(context.Background(), "batch-0001", []string{"AA", "BB"})
	require.NoError(t, err)
	require.Equal(t, "hl-123", id)
}

func TestCreateTaskMintsCorrelationID(t *testing.T) {
	var seen createTaskRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&seen))
		json.NewEncoder(w).Encode(createTaskResponse{TaskID: "task-1"})
	}))
	defer server.Close()

	c, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	taskID, err := c.CreateTask(context.Background(), "hl-123", "hashcat -m 100 -a 3", "", "", "?d?d?d?d")
	require.NoError(t, err)
	require.Equal(t, "task-1", taskID)
	require.NotEmpty(t, seen.CorrelationID)
}

func TestGetTaskStatusRetriesOn5xxThenSucceeds(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(TaskStatus{PercentComplete: 100, IsArchived: false})
	}))
	defer server.Close()

	c, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	status, err := c.GetTaskStatus(context.Background(), "task-1")
	require.NoError(t, err)
	require.Equal(t, 100.0, status.PercentComplete)
	require.Equal(t, 2, attempts)
}

func TestGetTaskStatusDoesNotRetryOn4xx(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = c.GetTaskStatus(context.Background(), "missing")
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestGetCrackedHashes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/hashlists/hl-123/cracked", r.URL.Path)
		json.NewEncoder(w).Encode([]CrackedPair{{Hash: "AA", Plain: "pw1"}, {Hash: "BB", Plain: "pw2"}})
	}))
	defer server.Close()

	c, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	pairs, err := c.GetCrackedHashes(context.Background(), "hl-123")
	require.NoError(t, err)
	require.Len(t, pairs, 2)
}

func TestListTasks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]TaskSummary{{TaskID: "t1", Name: "brute-4"}})
	}))
	defer server.Close()

	c, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	tasks, err := c.ListTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, "brute-4", tasks[0].Name)
}
