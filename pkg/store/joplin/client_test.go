package joplin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/notebridge/pkg/note"
)

// fakeJoplin is a minimal in-memory stand-in for the Joplin data API.
type fakeJoplin struct {
	notes       []map[string]any
	folders     []map[string]any
	pageSize    int
	lastPayload map[string]any
	clockMs     int64
}

// stamp mimics the server assigning user_updated_time on every write.
func (f *fakeJoplin) stamp() int64 {
	if f.clockMs == 0 {
		f.clockMs = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	}
	f.clockMs += 1000
	return f.clockMs
}

func (f *fakeJoplin) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /notes", func(w http.ResponseWriter, r *http.Request) {
		f.servePage(w, r, f.notes)
	})
	mux.HandleFunc("GET /folders", func(w http.ResponseWriter, r *http.Request) {
		f.servePage(w, r, f.folders)
	})
	mux.HandleFunc("GET /notes/{id}", func(w http.ResponseWriter, r *http.Request) {
		for _, n := range f.notes {
			if n["id"] == r.PathValue("id") {
				json.NewEncoder(w).Encode(n)
				return
			}
		}
		http.NotFound(w, r)
	})
	mux.HandleFunc("POST /notes", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		f.lastPayload = payload
		payload["id"] = fmt.Sprintf("note-%d", len(f.notes)+1)
		payload["user_updated_time"] = f.stamp()
		f.notes = append(f.notes, payload)
		json.NewEncoder(w).Encode(payload)
	})
	mux.HandleFunc("PUT /notes/{id}", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		f.lastPayload = payload
		f.lastPayload["id"] = r.PathValue("id")
		f.lastPayload["user_updated_time"] = f.stamp()
		json.NewEncoder(w).Encode(payload)
	})
	mux.HandleFunc("POST /folders", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		payload["id"] = fmt.Sprintf("folder-%d", len(f.folders)+1)
		f.folders = append(f.folders, payload)
		json.NewEncoder(w).Encode(payload)
	})
	return mux
}

func (f *fakeJoplin) servePage(w http.ResponseWriter, r *http.Request, items []map[string]any) {
	size := f.pageSize
	if size == 0 {
		size = 100
	}
	pageNum, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if pageNum < 1 {
		pageNum = 1
	}
	start := (pageNum - 1) * size
	end := start + size
	if start > len(items) {
		start = len(items)
	}
	if end > len(items) {
		end = len(items)
	}
	json.NewEncoder(w).Encode(map[string]any{
		"items":    items[start:end],
		"has_more": end < len(items),
	})
}

func newTestClient(t *testing.T, f *fakeJoplin) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return New(srv.URL, "test-token", nil)
}

func TestListNotesPaginates(t *testing.T) {
	f := &fakeJoplin{pageSize: 2}
	for i := 0; i < 5; i++ {
		f.notes = append(f.notes, map[string]any{
			"id":                fmt.Sprintf("n%d", i),
			"title":             fmt.Sprintf("Note %d", i),
			"body":              "body",
			"parent_id":         "",
			"user_updated_time": 1700000000000,
		})
	}
	c := newTestClient(t, f)

	notes, err := c.ListNotes(context.Background())
	require.NoError(t, err)
	assert.Len(t, notes, 5)
}

func TestListNotesResolvesNestedContainers(t *testing.T) {
	f := &fakeJoplin{
		folders: []map[string]any{
			{"id": "f1", "title": "Work", "parent_id": ""},
			{"id": "f2", "title": "Projects", "parent_id": "f1"},
		},
		notes: []map[string]any{
			{"id": "n1", "title": "Deep", "body": "b", "parent_id": "f2", "user_updated_time": 1700000000000},
			{"id": "n2", "title": "Top", "body": "b", "parent_id": "", "user_updated_time": 1700000000000},
		},
	}
	c := newTestClient(t, f)

	notes, err := c.ListNotes(context.Background())
	require.NoError(t, err)
	require.Len(t, notes, 2)
	byTitle := map[string]note.Note{}
	for _, n := range notes {
		byTitle[n.Title] = n
	}
	assert.Equal(t, "Work/Projects", byTitle["Deep"].Container)
	assert.Equal(t, "", byTitle["Top"].Container)
}

func TestListNotesSurvivesFolderCycle(t *testing.T) {
	f := &fakeJoplin{
		folders: []map[string]any{
			{"id": "f1", "title": "A", "parent_id": "f2"},
			{"id": "f2", "title": "B", "parent_id": "f1"},
		},
		notes: []map[string]any{
			{"id": "n1", "title": "Caught", "body": "b", "parent_id": "f1", "user_updated_time": 1700000000000},
		},
	}
	c := newTestClient(t, f)

	notes, err := c.ListNotes(context.Background())
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "B/A", notes[0].Container)
}

func TestListNotesClampsFutureTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := &fakeJoplin{
		notes: []map[string]any{
			{"id": "n1", "title": "Future", "body": "b", "parent_id": "", "user_updated_time": now.Add(72 * time.Hour).UnixMilli()},
		},
	}
	c := newTestClient(t, f)
	c.Now = func() time.Time { return now }

	notes, err := c.ListNotes(context.Background())
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.True(t, notes[0].UpdatedAt.Equal(now))
}

func TestListNotesExtractsStamp(t *testing.T) {
	body := note.MarkerCodec{}.Embed("content", note.SyncInfo{
		ID:       "11111111-2222-3333-4444-555555555555",
		SyncTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Source:   note.SourceVault,
		Version:  4,
	})
	f := &fakeJoplin{
		notes: []map[string]any{
			{"id": "n1", "title": "Stamped", "body": body, "parent_id": "", "user_updated_time": 1700000000000},
		},
	}
	c := newTestClient(t, f)

	notes, err := c.ListNotes(context.Background())
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", notes[0].ID)
	assert.Equal(t, 4, notes[0].Version)
}

func TestGetNote(t *testing.T) {
	f := &fakeJoplin{
		folders: []map[string]any{
			{"id": "f1", "title": "Work", "parent_id": ""},
		},
		notes: []map[string]any{
			{"id": "n1", "title": "One", "body": "b", "parent_id": "f1", "user_updated_time": 1700000000000},
		},
	}
	c := newTestClient(t, f)

	n, err := c.GetNote(context.Background(), "n1")
	require.NoError(t, err)
	assert.Equal(t, "One", n.Title)
	assert.Equal(t, "Work", n.Container)

	_, err = c.GetNote(context.Background(), "nope")
	require.Error(t, err)
}

func TestCreateNoteBuildsNotebookPath(t *testing.T) {
	f := &fakeJoplin{}
	c := newTestClient(t, f)

	n := &note.Note{Title: "New", Body: "b", Container: "Work/Projects"}
	require.NoError(t, c.CreateNote(context.Background(), n))

	require.Len(t, f.folders, 2)
	assert.Equal(t, "Work", f.folders[0]["title"])
	assert.Equal(t, "Projects", f.folders[1]["title"])
	assert.Equal(t, f.folders[0]["id"], f.folders[1]["parent_id"])
	assert.Equal(t, f.folders[1]["id"], f.lastPayload["parent_id"])
	assert.NotEmpty(t, n.Ref)
	assert.True(t, n.UpdatedAt.Equal(time.UnixMilli(f.clockMs)),
		"creates must report the server-assigned user_updated_time")
}

func TestCreateNoteReusesExistingNotebook(t *testing.T) {
	f := &fakeJoplin{
		folders: []map[string]any{
			{"id": "f1", "title": "Work", "parent_id": ""},
		},
	}
	c := newTestClient(t, f)

	n := &note.Note{Title: "New", Body: "b", Container: "Work"}
	require.NoError(t, c.CreateNote(context.Background(), n))
	assert.Len(t, f.folders, 1)
	assert.Equal(t, "f1", f.lastPayload["parent_id"])
}

func TestUpdateNote(t *testing.T) {
	f := &fakeJoplin{}
	c := newTestClient(t, f)

	n := &note.Note{Title: "Edited", Body: "new body", Ref: "n9"}
	require.NoError(t, c.UpdateNote(context.Background(), n))
	assert.Equal(t, "n9", f.lastPayload["id"])
	assert.Equal(t, "new body", f.lastPayload["body"])
	assert.True(t, n.UpdatedAt.Equal(time.UnixMilli(f.clockMs)),
		"updates must report the server-assigned user_updated_time")
}

func TestDeleteNoteMovesToTrash(t *testing.T) {
	f := &fakeJoplin{}
	c := newTestClient(t, f)

	n := &note.Note{Title: "Doomed", Ref: "n1"}
	require.NoError(t, c.DeleteNote(context.Background(), n))

	require.Len(t, f.folders, 1)
	assert.Equal(t, TrashNotebook, f.folders[0]["title"])
	assert.Equal(t, f.folders[0]["id"], f.lastPayload["parent_id"])
}

func TestAPIErrorSurfacesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)
	c := New(srv.URL, "bad-token", nil)

	_, err := c.ListNotes(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
