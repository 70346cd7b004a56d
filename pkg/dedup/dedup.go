// Package dedup finds groups of notes that represent the same content.
// Detection is layered cheapest-first: identity collisions and exact
// fingerprints first, then title-bucketed similarity comparisons, so the
// expensive pairwise work only ever runs on a narrowed candidate set.
package dedup

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/aretw0/notebridge/pkg/note"
)

// Layer identifies which detection criterion produced a match.
type Layer string

const (
	LayerIdentity    Layer = "identity"
	LayerFingerprint Layer = "fingerprint"
	LayerContent     Layer = "content"
	LayerPostStrip   Layer = "post-strip"
	LayerTitle       Layer = "title"
)

// order of layers, cheapest first. A group merged at several layers is
// tagged with the cheapest one that contributed.
var layerRank = map[Layer]int{
	LayerIdentity:    0,
	LayerFingerprint: 1,
	LayerContent:     2,
	LayerPostStrip:   3,
	LayerTitle:       4,
}

// titleOnlyThreshold is the bar for reporting a pair on title evidence
// alone. Deliberately stricter than the candidate threshold: near-identical
// titles are worth a human look even when the bodies diverged.
const titleOnlyThreshold = 0.90

// Group is a set of notes believed to be one real note.
type Group struct {
	Layer      Layer
	Confidence float64
	Notes      []*note.Note
}

// Exact reports whether the group came from an exact layer (identity or
// fingerprint). Only exact groups are ever eligible for auto-resolution;
// similarity groups are report-only.
func (g *Group) Exact() bool {
	return g.Layer == LayerIdentity || g.Layer == LayerFingerprint
}

// Options tunes the similarity layers.
type Options struct {
	// TitleThreshold gates candidate pairs on title similarity. Sensible
	// values live in 0.70-0.90.
	TitleThreshold float64

	// BodyThreshold gates the content and post-strip layers.
	BodyThreshold float64
}

// DefaultOptions returns the thresholds used when the caller passes zeros.
func DefaultOptions() Options {
	return Options{TitleThreshold: 0.80, BodyThreshold: 0.70}
}

// Detector runs the layered scan. A shared Analyzer memoizes normalized
// text and fingerprints across layers and invocations.
type Detector struct {
	Analyzer *note.Analyzer
	Logger   *slog.Logger
}

// Find scans one note set for duplicate groups. Cancellation is checked
// between layers only, so an abort never leaves a layer half-applied.
func (d *Detector) Find(ctx context.Context, notes []*note.Note, opts Options) ([]Group, error) {
	if opts.TitleThreshold == 0 {
		opts.TitleThreshold = DefaultOptions().TitleThreshold
	}
	if opts.BodyThreshold == 0 {
		opts.BodyThreshold = DefaultOptions().BodyThreshold
	}
	an := d.Analyzer
	if an == nil {
		an = note.NewAnalyzer()
	}

	// Invalid notes never participate: an empty note matches everything.
	var valid []*note.Note
	for _, n := range notes {
		if an.Valid(n) {
			valid = append(valid, n)
		}
	}
	n := len(valid)
	if n < 2 {
		return nil, nil
	}

	uf := newUnionFind(n)
	var merges []mergeRecord
	record := func(a, b int, layer Layer, conf float64) {
		uf.union(a, b)
		merges = append(merges, mergeRecord{a, b, layer, conf})
	}

	// Layer 1: two records claiming one identity are always duplicates.
	byID := make(map[string][]int)
	for i, nt := range valid {
		if nt.ID != "" {
			byID[nt.ID] = append(byID[nt.ID], i)
		}
	}
	for _, idxs := range byID {
		for k := 1; k < len(idxs); k++ {
			record(idxs[0], idxs[k], LayerIdentity, 1.0)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Layer 2: exact fingerprint over normalized bodies.
	byFP := make(map[string][]int)
	for i, nt := range valid {
		byFP[an.Fingerprint(nt)] = append(byFP[an.Fingerprint(nt)], i)
	}
	for _, idxs := range byFP {
		for k := 1; k < len(idxs); k++ {
			if !uf.joined(idxs[0], idxs[k]) {
				record(idxs[0], idxs[k], LayerFingerprint, 1.0)
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Layer 3: title similarity as candidate generation. Bucketing on the
	// lowercased first title token keeps this away from a full n^2 sweep.
	type candidate struct {
		a, b       int
		titleRatio float64
	}
	var candidates []candidate
	buckets := make(map[string][]int)
	for i, nt := range valid {
		buckets[titleKey(nt.Title)] = append(buckets[titleKey(nt.Title)], i)
	}
	var keys []string
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		idxs := buckets[k]
		for x := 0; x < len(idxs); x++ {
			for y := x + 1; y < len(idxs); y++ {
				a, b := idxs[x], idxs[y]
				if uf.joined(a, b) {
					continue
				}
				ratio := similarity(titleText(valid[a].Title), titleText(valid[b].Title))
				if ratio >= opts.TitleThreshold {
					candidates = append(candidates, candidate{a, b, ratio})
				}
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Layer 4: body similarity on the surviving candidate pairs, compared
	// as stored. Any sync stamp or frontmatter counts as content here.
	var remaining []candidate
	for _, c := range candidates {
		if uf.joined(c.a, c.b) {
			continue
		}
		ratio := similarity(an.Scrubbed(valid[c.a]), an.Scrubbed(valid[c.b]))
		if ratio >= opts.BodyThreshold {
			record(c.a, c.b, LayerContent, ratio)
		} else {
			remaining = append(remaining, c)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Layer 5: re-run on canonical text, metadata stripped. This catches
	// pairs whose bodies only diverge by an injected sync stamp or by
	// frontmatter one side is missing.
	for _, c := range remaining {
		if uf.joined(c.a, c.b) {
			continue
		}
		ratio := similarity(an.Normalized(valid[c.a]), an.Normalized(valid[c.b]))
		if ratio >= opts.BodyThreshold {
			record(c.a, c.b, LayerPostStrip, ratio)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Title layer: pairs with near-identical titles that failed every body
	// comparison are still reported, on the title evidence alone.
	for _, c := range remaining {
		if uf.joined(c.a, c.b) {
			continue
		}
		if c.titleRatio >= titleOnlyThreshold {
			record(c.a, c.b, LayerTitle, c.titleRatio)
		}
	}

	return d.collect(valid, uf, merges), nil
}

type mergeRecord struct {
	a, b       int
	layer      Layer
	confidence float64
}

type mergeInfo struct {
	layer      Layer
	confidence float64
}

func (d *Detector) collect(valid []*note.Note, uf *unionFind, merges []mergeRecord) []Group {
	// Tag every root with the cheapest contributing layer and that layer's
	// lowest confidence.
	tags := make(map[int]*mergeInfo)
	for _, m := range merges {
		root := uf.find(m.a)
		t, ok := tags[root]
		switch {
		case !ok:
			tags[root] = &mergeInfo{m.layer, m.confidence}
		case layerRank[m.layer] < layerRank[t.layer]:
			t.layer, t.confidence = m.layer, m.confidence
		case m.layer == t.layer && m.confidence < t.confidence:
			t.confidence = m.confidence
		}
	}

	members := make(map[int][]int)
	for i := range valid {
		root := uf.find(i)
		members[root] = append(members[root], i)
	}

	var groups []Group
	for root, idxs := range members {
		if len(idxs) < 2 {
			continue
		}
		sort.Ints(idxs)
		g := Group{Layer: tags[root].layer, Confidence: tags[root].confidence}
		for _, i := range idxs {
			g.Notes = append(g.Notes, valid[i])
		}
		groups = append(groups, g)
	}

	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if layerRank[a.Layer] != layerRank[b.Layer] {
			return layerRank[a.Layer] < layerRank[b.Layer]
		}
		return a.Notes[0].Title < b.Notes[0].Title
	})
	if d.Logger != nil {
		d.Logger.Debug("duplicate scan complete", "notes", len(valid), "groups", len(groups))
	}
	return groups
}

// titleKey buckets titles by their lowercased first token.
func titleKey(title string) string {
	fields := strings.Fields(strings.ToLower(title))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func titleText(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}
