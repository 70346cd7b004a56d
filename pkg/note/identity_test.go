package note

import (
	"strings"
	"testing"
	"time"
)

const testID = "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"

func testStamp() SyncInfo {
	return SyncInfo{
		ID:       testID,
		SyncTime: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Source:   SourceJoplin,
		Version:  2,
	}
}

func TestMarkerCodecRoundTrip(t *testing.T) {
	c := MarkerCodec{}
	body := c.Embed("# Hello\n\nworld", testStamp())

	info, ok := c.Extract(body)
	if !ok {
		t.Fatal("Extract() found no stamp")
	}
	if info.ID != testID {
		t.Errorf("ID = %q, want %q", info.ID, testID)
	}
	if !info.SyncTime.Equal(testStamp().SyncTime) {
		t.Errorf("SyncTime = %v, want %v", info.SyncTime, testStamp().SyncTime)
	}
	if info.Source != SourceJoplin {
		t.Errorf("Source = %q, want joplin", info.Source)
	}
	if info.Version != 2 {
		t.Errorf("Version = %d, want 2", info.Version)
	}

	if got := c.Strip(body); got != "# Hello\n\nworld" && strings.TrimLeft(got, "\n") != "# Hello\n\nworld" {
		t.Errorf("Strip() = %q", got)
	}
}

func TestMarkerCodecEmbedReplacesExisting(t *testing.T) {
	c := MarkerCodec{}
	body := c.Embed("content", testStamp())
	body = c.Embed(body, testStamp())

	if n := strings.Count(body, "notebridge_id"); n != 1 {
		t.Errorf("embedded twice left %d id markers, want 1", n)
	}
}

func TestMarkerCodecDuplicateStampsNewestWins(t *testing.T) {
	old := "deadbeef-0000-0000-0000-000000000001"
	body := "<!-- notebridge_id: " + old + " -->\n" +
		"<!-- notebridge_sync_time: 2025-01-01T00:00:00Z -->\n" +
		"<!-- notebridge_id: " + testID + " -->\n" +
		"<!-- notebridge_sync_time: 2026-06-01T00:00:00Z -->\n" +
		"body"

	info, ok := MarkerCodec{}.Extract(body)
	if !ok {
		t.Fatal("Extract() found no stamp")
	}
	if info.ID != testID {
		t.Errorf("Extract() kept %q, want newest %q", info.ID, testID)
	}
}

func TestMarkerCodecMissingFieldsDefault(t *testing.T) {
	body := "<!-- notebridge_id: " + testID + " -->\nbody"
	info, ok := MarkerCodec{}.Extract(body)
	if !ok {
		t.Fatal("Extract() found no stamp")
	}
	if info.Version != 1 {
		t.Errorf("missing version defaulted to %d, want 1", info.Version)
	}
	if info.Source != SourceUnknown {
		t.Errorf("missing source defaulted to %q, want unknown", info.Source)
	}
}

func TestFrontmatterCodecRoundTrip(t *testing.T) {
	c := FrontmatterCodec{}
	body := c.Embed("---\ntitle: My Note\ntags:\n  - a\n---\n# Hello", testStamp())

	info, ok := c.Extract(body)
	if !ok {
		t.Fatal("Extract() found no stamp")
	}
	if info.ID != testID {
		t.Errorf("ID = %q, want %q", info.ID, testID)
	}
	if info.Version != 2 {
		t.Errorf("Version = %d, want 2", info.Version)
	}

	// User metadata survives embedding.
	if !strings.Contains(body, "title: My Note") {
		t.Errorf("user frontmatter lost: %q", body)
	}

	stripped := c.Strip(body)
	if strings.Contains(stripped, "notebridge") {
		t.Errorf("Strip() left stamp fields: %q", stripped)
	}
	if !strings.Contains(stripped, "title: My Note") {
		t.Errorf("Strip() removed user metadata: %q", stripped)
	}
}

func TestFrontmatterCodecEmbedWithoutFrontmatter(t *testing.T) {
	c := FrontmatterCodec{}
	body := c.Embed("# Bare note", testStamp())

	if !strings.HasPrefix(body, "---\n") {
		t.Fatalf("Embed() did not create frontmatter: %q", body)
	}
	info, ok := c.Extract(body)
	if !ok || info.ID != testID {
		t.Errorf("Extract() = %+v, %v", info, ok)
	}
	if !strings.Contains(body, "# Bare note") {
		t.Errorf("content lost: %q", body)
	}
}

func TestFrontmatterCodecNoStamp(t *testing.T) {
	if _, ok := (FrontmatterCodec{}).Extract("---\ntitle: X\n---\nbody"); ok {
		t.Error("Extract() reported a stamp where none exists")
	}
	if _, ok := (FrontmatterCodec{}).Extract("no frontmatter at all"); ok {
		t.Error("Extract() reported a stamp in a bare body")
	}
}

func TestStripSyncMetadata(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{
			name: "Marker Block",
			in:   MarkerCodec{}.Embed("body", testStamp()),
		},
		{
			name: "Frontmatter Only Stamp",
			in:   FrontmatterCodec{}.Embed("body", testStamp()),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StripSyncMetadata(tt.in)
			if strings.Contains(got, "notebridge") {
				t.Errorf("stamp fields remain: %q", got)
			}
			if !strings.Contains(got, "body") {
				t.Errorf("content lost: %q", got)
			}
			if strings.Contains(got, "---") {
				t.Errorf("empty frontmatter fence remains: %q", got)
			}
		})
	}
}

func TestStripSyncMetadataLeavesBodyText(t *testing.T) {
	// Stamp-shaped lines outside the frontmatter block are content, not
	// metadata. A note documenting the stamp format must survive stripping.
	in := FrontmatterCodec{}.Embed("Example stamp:\n\n```\nnotebridge_id: not-a-real-stamp\nnotebridge_version: 9\n```\n", testStamp())

	got := StripSyncMetadata(in)
	if !strings.Contains(got, "notebridge_id: not-a-real-stamp") {
		t.Errorf("code fence content was stripped: %q", got)
	}
	if !strings.Contains(got, "notebridge_version: 9") {
		t.Errorf("code fence content was stripped: %q", got)
	}
	if strings.Contains(got, testID) {
		t.Errorf("frontmatter stamp survived: %q", got)
	}
}

func TestStripSyncMetadataKeepsUserFrontmatter(t *testing.T) {
	in := "---\nnotebridge_id: " + testID + "\ntags:\n  - docs\n---\nbody\n"
	got := StripSyncMetadata(in)
	if strings.Contains(got, "notebridge") {
		t.Errorf("stamp fields remain: %q", got)
	}
	if !strings.Contains(got, "tags:") {
		t.Errorf("user frontmatter lost: %q", got)
	}
	if !strings.Contains(got, "body") {
		t.Errorf("content lost: %q", got)
	}
}

func TestRepairCollapsesCrossEncodingStamps(t *testing.T) {
	// A vault note that also carries an inline marker from a previous sync.
	older := testStamp()
	older.SyncTime = older.SyncTime.Add(-24 * time.Hour)
	older.ID = "deadbeef-0000-0000-0000-000000000001"

	body := FrontmatterCodec{}.Embed(MarkerCodec{}.Embed("body", older), testStamp())
	fixed := Repair(body, FrontmatterCodec{})

	if strings.Contains(fixed, "<!-- notebridge_id") {
		t.Errorf("inline marker survived repair: %q", fixed)
	}
	info, ok := (FrontmatterCodec{}).Extract(fixed)
	if !ok {
		t.Fatal("repaired body has no stamp")
	}
	if info.ID != testID {
		t.Errorf("repair kept %q, want newest %q", info.ID, testID)
	}
	if n := strings.Count(fixed, "notebridge_id"); n != 1 {
		t.Errorf("%d id fields after repair, want 1", n)
	}
}

func TestCodecFor(t *testing.T) {
	if _, ok := CodecFor(SourceVault).(FrontmatterCodec); !ok {
		t.Error("vault side should use the frontmatter codec")
	}
	if _, ok := CodecFor(SourceJoplin).(MarkerCodec); !ok {
		t.Error("joplin side should use the marker codec")
	}
}
