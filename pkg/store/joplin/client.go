// Package joplin is an HTTP client for the Joplin data API (the "Web
// Clipper" service on localhost). Identity stamps live as inline HTML
// comment markers inside note bodies.
package joplin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aretw0/notebridge/pkg/note"
)

// TrashNotebook is where soft-deleted notes are moved instead of being
// destroyed.
const TrashNotebook = "Trash"

// Client talks to a running Joplin instance.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
	Logger  *slog.Logger

	// Now is the run clock used to clamp future timestamps; defaults to
	// time.Now.
	Now func() time.Time

	codec note.MarkerCodec
}

// New returns a client for the given API base (e.g. http://localhost:41184).
func New(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Logger:  logger,
		Now:     time.Now,
	}
}

type apiNote struct {
	ID          string `json:"id"`
	ParentID    string `json:"parent_id"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	UserUpdated int64  `json:"user_updated_time"` // epoch milliseconds
}

type apiFolder struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id"`
	Title    string `json:"title"`
}

type page[T any] struct {
	Items   []T  `json:"items"`
	HasMore bool `json:"has_more"`
}

// ListNotes fetches every note and resolves each one's full nested notebook
// path as its container.
func (c *Client) ListNotes(ctx context.Context) ([]note.Note, error) {
	folders, err := c.listFolders(ctx)
	if err != nil {
		return nil, err
	}
	paths := folderPaths(folders)

	raw, err := depaginate[apiNote](ctx, c, "/notes", "id,title,body,parent_id,user_updated_time")
	if err != nil {
		return nil, err
	}

	now := c.Now()
	notes := make([]note.Note, 0, len(raw))
	for _, r := range raw {
		notes = append(notes, c.toNote(r, paths, now))
	}
	return notes, nil
}

// GetNote fetches a single note by its Joplin id.
func (c *Client) GetNote(ctx context.Context, ref string) (note.Note, error) {
	folders, err := c.listFolders(ctx)
	if err != nil {
		return note.Note{}, err
	}

	q := url.Values{}
	q.Set("token", c.Token)
	q.Set("fields", "id,title,body,parent_id,user_updated_time")

	var r apiNote
	if err := c.get(ctx, "/notes/"+ref+"?"+q.Encode(), &r); err != nil {
		return note.Note{}, fmt.Errorf("failed to get note %s: %w", ref, err)
	}
	return c.toNote(r, folderPaths(folders), c.Now()), nil
}

func (c *Client) toNote(r apiNote, paths map[string]string, now time.Time) note.Note {
	updated := time.UnixMilli(r.UserUpdated)
	if updated.After(now) {
		// A future timestamp is a data error, not time travel.
		if c.Logger != nil {
			c.Logger.Warn("clamping future joplin timestamp", "title", r.Title, "updated", updated)
		}
		updated = now
	}

	n := note.Note{
		Title:     r.Title,
		Body:      r.Body,
		Container: paths[r.ParentID],
		UpdatedAt: updated,
		Source:    note.SourceJoplin,
		Version:   1,
		Ref:       r.ID,
	}
	if info, ok := c.codec.Extract(r.Body); ok {
		n.ID = info.ID
		n.Version = info.Version
	}
	return n
}

// CreateNote creates the note inside the notebook named by its container,
// creating the notebook path as needed, and records the new Joplin id in Ref.
func (c *Client) CreateNote(ctx context.Context, n *note.Note) error {
	parentID := ""
	if n.Container != "" {
		id, err := c.GetOrCreateNotebook(ctx, n.Container)
		if err != nil {
			return err
		}
		parentID = id
	}

	// The API echoes the stored note back; user_updated_time is what the
	// next listing will report, so it is recorded on the note here.
	var created apiNote
	payload := map[string]any{"title": n.Title, "body": n.Body, "parent_id": parentID}
	if err := c.do(ctx, http.MethodPost, "/notes", payload, &created); err != nil {
		return fmt.Errorf("failed to create note %q: %w", n.Title, err)
	}
	n.Ref = created.ID
	if created.UserUpdated > 0 {
		n.UpdatedAt = time.UnixMilli(created.UserUpdated)
	}
	return nil
}

// UpdateNote overwrites title and body of an existing note and records the
// server-assigned user_updated_time on the note.
func (c *Client) UpdateNote(ctx context.Context, n *note.Note) error {
	var updated apiNote
	payload := map[string]any{"title": n.Title, "body": n.Body}
	if err := c.do(ctx, http.MethodPut, "/notes/"+n.Ref, payload, &updated); err != nil {
		return fmt.Errorf("failed to update note %q: %w", n.Title, err)
	}
	if updated.UserUpdated > 0 {
		n.UpdatedAt = time.UnixMilli(updated.UserUpdated)
	}
	return nil
}

// DeleteNote moves the note into the trash notebook.
func (c *Client) DeleteNote(ctx context.Context, n *note.Note) error {
	trashID, err := c.GetOrCreateNotebook(ctx, TrashNotebook)
	if err != nil {
		return fmt.Errorf("failed to prepare trash notebook: %w", err)
	}
	payload := map[string]any{"parent_id": trashID}
	if err := c.do(ctx, http.MethodPut, "/notes/"+n.Ref, payload, nil); err != nil {
		return fmt.Errorf("failed to trash note %q: %w", n.Title, err)
	}
	return nil
}

// GetOrCreateNotebook resolves a nested notebook path ("Work/Projects") to
// a folder id, creating missing levels along the way.
func (c *Client) GetOrCreateNotebook(ctx context.Context, path string) (string, error) {
	folders, err := c.listFolders(ctx)
	if err != nil {
		return "", err
	}

	byParentTitle := make(map[string]string) // parentID+"/"+title -> id
	for _, f := range folders {
		byParentTitle[f.ParentID+"/"+f.Title] = f.ID
	}

	parentID := ""
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		if id, ok := byParentTitle[parentID+"/"+part]; ok {
			parentID = id
			continue
		}
		var created struct {
			ID string `json:"id"`
		}
		payload := map[string]any{"title": part, "parent_id": parentID}
		if err := c.do(ctx, http.MethodPost, "/folders", payload, &created); err != nil {
			return "", fmt.Errorf("failed to create notebook %q: %w", part, err)
		}
		byParentTitle[parentID+"/"+part] = created.ID
		parentID = created.ID
	}
	return parentID, nil
}

func (c *Client) listFolders(ctx context.Context) ([]apiFolder, error) {
	return depaginate[apiFolder](ctx, c, "/folders", "id,title,parent_id")
}

// folderPaths builds the full nested path for every folder, guarding
// against parent cycles in corrupted data.
func folderPaths(folders []apiFolder) map[string]string {
	titles := make(map[string]string, len(folders))
	parents := make(map[string]string, len(folders))
	for _, f := range folders {
		titles[f.ID] = f.Title
		parents[f.ID] = f.ParentID
	}

	paths := make(map[string]string, len(folders))
	for _, f := range folders {
		parts := []string{f.Title}
		seen := map[string]bool{f.ID: true}
		cur := f.ParentID
		for cur != "" && !seen[cur] {
			title, ok := titles[cur]
			if !ok {
				break
			}
			seen[cur] = true
			parts = append([]string{title}, parts...)
			cur = parents[cur]
		}
		paths[f.ID] = strings.Join(parts, "/")
	}
	return paths
}

func depaginate[T any](ctx context.Context, c *Client, endpoint, fields string) ([]T, error) {
	var all []T
	for pageNum := 1; ; pageNum++ {
		q := url.Values{}
		q.Set("token", c.Token)
		q.Set("fields", fields)
		q.Set("page", fmt.Sprint(pageNum))

		var p page[T]
		if err := c.get(ctx, endpoint+"?"+q.Encode(), &p); err != nil {
			return nil, fmt.Errorf("failed to list %s page %d: %w", endpoint, pageNum, err)
		}
		all = append(all, p.Items...)
		if !p.HasMore {
			return all, nil
		}
	}
}

func (c *Client) get(ctx context.Context, pathAndQuery string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+pathAndQuery, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("joplin api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload any, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	u := c.BaseURL + endpoint + "?token=" + url.QueryEscape(c.Token)
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("joplin api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
