package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/notebridge/pkg/note"
)

func vn(ref, title, body string) *note.Note {
	return &note.Note{
		Title: title, Body: body, Source: note.SourceVault, Ref: ref,
		UpdatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), Version: 1,
	}
}

func find(t *testing.T, notes []*note.Note, opts Options) []Group {
	t.Helper()
	d := &Detector{}
	groups, err := d.Find(context.Background(), notes, opts)
	require.NoError(t, err)
	return groups
}

func TestIdentityCollisionAlwaysGroups(t *testing.T) {
	a := vn("a.md", "First Copy", "completely different text about birds")
	b := vn("b.md", "Second Copy", "unrelated text about fish")
	a.ID = "same-id"
	b.ID = "same-id"

	groups := find(t, []*note.Note{a, b}, Options{})
	require.Len(t, groups, 1)
	assert.Equal(t, LayerIdentity, groups[0].Layer)
	assert.Equal(t, 1.0, groups[0].Confidence)
	assert.True(t, groups[0].Exact())
}

func TestFingerprintGroupsDespiteTitles(t *testing.T) {
	a := vn("a.md", "Tuesday Standup", "# Agenda\n\n- item one\n- item two")
	b := vn("b.md", "Totally Unrelated Name", "# Agenda\n\n- item one\n- item two")

	groups := find(t, []*note.Note{a, b}, Options{})
	require.Len(t, groups, 1)
	assert.Equal(t, LayerFingerprint, groups[0].Layer)
	assert.Equal(t, 1.0, groups[0].Confidence)
}

func TestSimilarTitlesDissimilarBodiesNotGrouped(t *testing.T) {
	a := vn("a.md", "Meeting Notes March", "budget review, hiring plan, roadmap discussion for the spring quarter")
	b := vn("b.md", "Meeting Notes April", "sourdough starter instructions: flour, water, patience, and a warm corner")

	groups := find(t, []*note.Note{a, b}, Options{})
	assert.Empty(t, groups)
}

func TestDissimilarTitlesSkipExpensiveLayers(t *testing.T) {
	// Different first tokens land in different buckets, so identical-ish
	// bodies are never compared unless an exact layer catches them first.
	a := vn("a.md", "Alpha", "some shared words here but not exactly equal one")
	b := vn("b.md", "Beta", "some shared words here but not exactly equal two")

	groups := find(t, []*note.Note{a, b}, Options{})
	assert.Empty(t, groups)
}

func TestContentSimilarityGroups(t *testing.T) {
	body := "The quarterly report covers revenue, churn, and the new onboarding flow in detail."
	a := vn("a.md", "Quarterly Report", body)
	b := vn("b.md", "Quarterly Report v2", body+" Minor trailing addendum.")

	groups := find(t, []*note.Note{a, b}, Options{})
	require.Len(t, groups, 1)
	assert.Equal(t, LayerContent, groups[0].Layer)
	assert.False(t, groups[0].Exact())
	assert.Greater(t, groups[0].Confidence, 0.70)
}

func TestStampedTwinGroupsByFingerprint(t *testing.T) {
	// A sync stamp is metadata, not content: a stamped copy fingerprints
	// the same as its bare twin and is caught by the exact layer.
	plain := "milk, eggs"
	stamp := note.MarkerCodec{}.Embed(plain, note.SyncInfo{
		ID:       "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
		SyncTime: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Source:   note.SourceJoplin,
		Version:  1,
	})

	a := vn("a.md", "Meeting Notes", plain)
	b := vn("b.md", "Meeting Notes", stamp)

	groups := find(t, []*note.Note{a, b}, Options{})
	require.Len(t, groups, 1)
	assert.Equal(t, LayerFingerprint, groups[0].Layer)
	assert.True(t, groups[0].Exact())
}

func TestPostStripCatchesStampedNearTwin(t *testing.T) {
	// One copy was stamped and then edited slightly. The stamp text drags
	// the as-stored similarity under the threshold; stripping it first
	// exposes the near-identical bodies.
	stamp := note.MarkerCodec{}.Embed("milk, eggs, bread", note.SyncInfo{
		ID:       "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
		SyncTime: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Source:   note.SourceJoplin,
		Version:  1,
	})

	a := vn("a.md", "Meeting Notes", "milk, eggs")
	b := vn("b.md", "Meeting Notes", stamp)

	groups := find(t, []*note.Note{a, b}, Options{})
	require.Len(t, groups, 1)
	assert.Equal(t, LayerPostStrip, groups[0].Layer)
	assert.False(t, groups[0].Exact())
	assert.Greater(t, groups[0].Confidence, 0.70)
	assert.Less(t, groups[0].Confidence, 1.0)
}

func TestNearIdenticalTitlesReportedDespiteBodies(t *testing.T) {
	// Same title over unrelated bodies is weak evidence, but the original
	// note and a rewrite-from-scratch look exactly like this. Reported on
	// title evidence alone, never as an exact group.
	a := vn("a.md", "Project Kickoff", "alpha beta gamma delta epsilon")
	b := vn("b.md", "Project Kickoff", "completely different words about cooking pasta tonight")

	groups := find(t, []*note.Note{a, b}, Options{})
	require.Len(t, groups, 1)
	assert.Equal(t, LayerTitle, groups[0].Layer)
	assert.False(t, groups[0].Exact())
	assert.GreaterOrEqual(t, groups[0].Confidence, 0.90)
}

func TestTransitiveMergesCollapseToOneGroup(t *testing.T) {
	body := "# Agenda\n\n- item one\n- item two"
	a := vn("a.md", "Standup", body)
	b := vn("b.md", "Standup", body)
	c := vn("c.md", "Standup", body)

	groups := find(t, []*note.Note{a, b, c}, Options{})
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Notes, 3)
}

func TestInvalidNotesExcluded(t *testing.T) {
	a := vn("a.md", "Empty One", "   ")
	b := vn("b.md", "Empty Two", "\n\t")

	groups := find(t, []*note.Note{a, b}, Options{})
	assert.Empty(t, groups)
}

func TestFindHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := &Detector{}
	_, err := d.Find(ctx, []*note.Note{
		vn("a.md", "A", "body a"),
		vn("b.md", "B", "body b"),
	}, Options{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestFindDeterministicOrdering(t *testing.T) {
	body := "# Agenda\n\n- item one\n- item two"
	notes := []*note.Note{
		vn("a.md", "Zed", body),
		vn("b.md", "Zed", body),
		vn("c.md", "Apple", "totally distinct content about orchards and harvests"),
		vn("d.md", "Apple", "totally distinct content about orchards and harvests"),
	}

	first := find(t, notes, Options{})
	second := find(t, notes, Options{})
	require.Equal(t, first, second)
	require.Len(t, first, 2)
	// Same layer: sorted by leading title.
	assert.Equal(t, "Apple", first[0].Notes[0].Title)
}

func TestSimilarityRatio(t *testing.T) {
	assert.Equal(t, 1.0, similarity("same", "same"))
	assert.Equal(t, 0.0, similarity("", "full"))
	r := similarity("the quick brown fox", "the quick brown cat")
	assert.Greater(t, r, 0.7)
	assert.Less(t, r, 1.0)
}
