package note

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// SyncInfo is the sync stamp embedded in a note's persisted representation.
type SyncInfo struct {
	ID       string
	SyncTime time.Time
	Source   Source
	Version  int
}

// NewSyncInfo mints a stamp with a fresh identity for a note first seen on
// the given side.
func NewSyncInfo(src Source, now time.Time) SyncInfo {
	return SyncInfo{
		ID:       uuid.NewString(),
		SyncTime: now,
		Source:   src,
		Version:  1,
	}
}

// Codec embeds and extracts sync stamps in a store-specific encoding.
// The Joplin store uses inline HTML comment markers; the vault store uses
// YAML frontmatter keys.
type Codec interface {
	// Extract returns the stamp found in body, if any. When a body carries
	// more than one stamp the newest one wins.
	Extract(body string) (SyncInfo, bool)

	// Embed returns body with exactly one stamp: any existing stamps are
	// stripped first.
	Embed(body string, info SyncInfo) string

	// Strip returns body with all stamps of this encoding removed.
	Strip(body string) string
}

var (
	reMarkerID      = regexp.MustCompile(`<!-- notebridge_id: ([0-9a-fA-F-]+) -->`)
	reMarkerTime    = regexp.MustCompile(`<!-- notebridge_sync_time: ([^>]+?) -->`)
	reMarkerSource  = regexp.MustCompile(`<!-- notebridge_source: ([^>]+?) -->`)
	reMarkerVersion = regexp.MustCompile(`<!-- notebridge_version: ([^>]+?) -->`)

	reMarkerAny = regexp.MustCompile(`<!-- notebridge_(?:id|sync_time|source|version): [^>]*-->[ \t]*\r?\n?`)
)

// StripSyncMetadata removes every sync stamp field in both encodings from a
// raw body. YAML keys are removed from the parsed frontmatter block only, so
// stamp-shaped lines elsewhere in the content (inside a code fence, say) are
// left alone. A frontmatter block emptied by the removal loses its fences.
func StripSyncMetadata(raw string) string {
	return MarkerCodec{}.Strip(FrontmatterCodec{}.Strip(raw))
}

// MarkerCodec is the Joplin-side encoding: one HTML comment per stamp field
// at the top of the note body.
type MarkerCodec struct{}

func (MarkerCodec) Extract(body string) (SyncInfo, bool) {
	ids := reMarkerID.FindAllStringSubmatch(body, -1)
	if len(ids) == 0 {
		return SyncInfo{}, false
	}
	times := reMarkerTime.FindAllStringSubmatch(body, -1)

	// Duplicated stamps happen when a note was synced twice before repair.
	// Pair ids with times positionally and keep the newest.
	best := 0
	var bestTime time.Time
	for i := range ids {
		var ts time.Time
		if i < len(times) {
			ts, _ = time.Parse(time.RFC3339, strings.TrimSpace(times[i][1]))
		}
		if i == 0 || ts.After(bestTime) {
			best = i
			bestTime = ts
		}
	}

	info := SyncInfo{ID: ids[best][1], SyncTime: bestTime, Source: SourceUnknown, Version: 1}
	if m := reMarkerSource.FindStringSubmatch(body); m != nil {
		info.Source = ParseSource(m[1])
	}
	if m := reMarkerVersion.FindStringSubmatch(body); m != nil {
		if v, err := strconv.Atoi(strings.TrimSpace(m[1])); err == nil && v > 0 {
			info.Version = v
		}
	}
	return info, true
}

func (MarkerCodec) Strip(body string) string {
	return reMarkerAny.ReplaceAllString(body, "")
}

func (c MarkerCodec) Embed(body string, info SyncInfo) string {
	content := strings.TrimLeft(c.Strip(body), "\n")
	header := fmt.Sprintf(
		"<!-- notebridge_id: %s -->\n<!-- notebridge_sync_time: %s -->\n<!-- notebridge_source: %s -->\n<!-- notebridge_version: %d -->\n\n",
		info.ID, info.SyncTime.Format(time.RFC3339), info.Source, info.Version)
	return header + content
}

// FrontmatterCodec is the vault-side encoding: stamp fields live as keys in
// the YAML frontmatter block, alongside whatever user metadata is there.
type FrontmatterCodec struct{}

func (FrontmatterCodec) Extract(body string) (SyncInfo, bool) {
	meta, _, ok := SplitFrontmatter(body)
	if !ok {
		return SyncInfo{}, false
	}
	id, _ := meta["notebridge_id"].(string)
	if id == "" {
		return SyncInfo{}, false
	}

	info := SyncInfo{ID: id, Source: SourceUnknown, Version: 1}
	switch v := meta["notebridge_sync_time"].(type) {
	case string:
		info.SyncTime, _ = time.Parse(time.RFC3339, strings.TrimSpace(v))
	case time.Time:
		// Hand-edited frontmatter may leave the timestamp unquoted, which
		// YAML resolves to a native timestamp.
		info.SyncTime = v
	}
	if raw, ok := meta["notebridge_source"].(string); ok {
		info.Source = ParseSource(raw)
	}
	switch v := meta["notebridge_version"].(type) {
	case int:
		if v > 0 {
			info.Version = v
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			info.Version = n
		}
	}
	return info, true
}

func (FrontmatterCodec) Strip(body string) string {
	meta, content, ok := SplitFrontmatter(body)
	if !ok {
		return body
	}
	for _, k := range []string{"notebridge_id", "notebridge_sync_time", "notebridge_source", "notebridge_version"} {
		delete(meta, k)
	}
	return joinFrontmatter(meta, content)
}

func (c FrontmatterCodec) Embed(body string, info SyncInfo) string {
	meta, content, ok := SplitFrontmatter(body)
	if !ok {
		meta = map[string]any{}
		content = body
	}
	meta["notebridge_id"] = info.ID
	meta["notebridge_sync_time"] = info.SyncTime.Format(time.RFC3339)
	meta["notebridge_source"] = string(info.Source)
	meta["notebridge_version"] = info.Version
	return joinFrontmatter(meta, content)
}

// CodecFor returns the codec for a store side.
func CodecFor(src Source) Codec {
	if src == SourceVault {
		return FrontmatterCodec{}
	}
	return MarkerCodec{}
}

// Repair collapses duplicated stamps across both encodings down to the
// newest one, re-embedded with the given codec. A body without any stamp is
// returned unchanged.
func Repair(body string, codec Codec) string {
	marker, hasMarker := MarkerCodec{}.Extract(body)
	fm, hasFM := FrontmatterCodec{}.Extract(body)

	var newest SyncInfo
	switch {
	case hasMarker && hasFM:
		newest = marker
		if fm.SyncTime.After(marker.SyncTime) {
			newest = fm
		}
	case hasMarker:
		newest = marker
	case hasFM:
		newest = fm
	default:
		return body
	}

	return codec.Embed(FrontmatterCodec{}.Strip(MarkerCodec{}.Strip(body)), newest)
}

// SplitFrontmatter separates a leading YAML frontmatter block from the
// markdown content. ok is false when no well-formed block is present.
func SplitFrontmatter(body string) (map[string]any, string, bool) {
	data := []byte(body)
	if !bytes.HasPrefix(data, []byte("---\n")) && !bytes.HasPrefix(data, []byte("---\r\n")) {
		return nil, "", false
	}
	rest := data[3:]
	idx := bytes.Index(rest, []byte("\n---"))
	if idx < 0 {
		return nil, "", false
	}
	yamlData := rest[:idx]
	content := rest[idx+len("\n---"):]

	meta := map[string]any{}
	if err := yaml.Unmarshal(yamlData, &meta); err != nil {
		return nil, "", false
	}
	out := strings.TrimPrefix(string(content), "\r")
	out = strings.TrimPrefix(out, "\n")
	return meta, out, true
}

func joinFrontmatter(meta map[string]any, content string) string {
	if len(meta) == 0 {
		return content
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(meta); err != nil {
		// Metadata maps built from parsed YAML and string stamps always
		// re-encode; fall back to bare content if one ever does not.
		return content
	}
	enc.Close()
	buf.WriteString("---\n")
	buf.WriteString(content)
	return buf.String()
}
