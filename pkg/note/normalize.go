package note

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
)

var (
	reHTMLComment = regexp.MustCompile(`(?s)<!--.*?-->`)
	reImage       = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	reLink        = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	reHTMLTag     = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	reMarkup      = regexp.MustCompile("[*_`~#]+")
	reSpace       = regexp.MustCompile(`\s+`)
)

// Normalize reduces a raw note body to canonical comparison text. The
// frontmatter block and all HTML comments go first, which removes the sync
// stamp in either store encoding along with any user metadata, so the same
// content normalizes identically whichever store it came from. The rest is
// scrubbed of markdown and HTML noise.
func Normalize(raw string) string {
	s := raw
	if _, content, ok := SplitFrontmatter(s); ok {
		s = content
	}
	s = reHTMLComment.ReplaceAllString(s, " ")
	return scrub(s)
}

// scrub strips markdown link/image syntax (text is kept), HTML tags and
// emphasis/heading punctuation, and collapses whitespace to single spaces.
// Comments and frontmatter text are left in place.
func scrub(s string) string {
	s = reImage.ReplaceAllString(s, "$1")
	s = reLink.ReplaceAllString(s, "$1")
	s = reHTMLTag.ReplaceAllString(s, "")
	s = reMarkup.ReplaceAllString(s, "")
	s = reSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Fingerprint hashes canonical text with FNV-1a. The hash is used for
// duplicate pre-filtering only, so a non-cryptographic function is enough.
func Fingerprint(canonical string) string {
	h := fnv.New64a()
	h.Write([]byte(canonical))
	return fmt.Sprintf("%016x", h.Sum64())
}

type analysis struct {
	normalized  string
	fingerprint string
	scrubbed    string // scrubbed raw body, metadata text still present

	hasNorm, hasFP, hasScrubbed bool
}

// Analyzer memoizes per-note normalized text and fingerprints so repeated
// layers (and repeated invocations within one run) do not recompute them.
type Analyzer struct {
	mu    sync.Mutex
	cache map[string]*analysis
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{cache: make(map[string]*analysis)}
}

func (a *Analyzer) entry(n *Note) *analysis {
	key := n.Key()
	e, ok := a.cache[key]
	if !ok {
		e = &analysis{}
		a.cache[key] = e
	}
	return e
}

// Normalized returns the memoized canonical body text.
func (a *Analyzer) Normalized(n *Note) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	e := a.entry(n)
	if !e.hasNorm {
		e.normalized = Normalize(n.Body)
		e.hasNorm = true
	}
	return e.normalized
}

// Fingerprint returns the memoized content fingerprint.
func (a *Analyzer) Fingerprint(n *Note) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	e := a.entry(n)
	if !e.hasFP {
		if !e.hasNorm {
			e.normalized = Normalize(n.Body)
			e.hasNorm = true
		}
		e.fingerprint = Fingerprint(e.normalized)
		e.hasFP = true
	}
	return e.fingerprint
}

// Scrubbed returns the body scrubbed of markdown noise but with embedded
// metadata (sync stamps, user frontmatter) still present as text. Used to
// compare notes as stored, before any metadata removal.
func (a *Analyzer) Scrubbed(n *Note) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	e := a.entry(n)
	if !e.hasScrubbed {
		e.scrubbed = scrub(n.Body)
		e.hasScrubbed = true
	}
	return e.scrubbed
}

// Valid reports note validity using the memoized normalization.
func (a *Analyzer) Valid(n *Note) bool {
	if strings.TrimSpace(n.Title) == "" {
		return false
	}
	return a.Normalized(n) != ""
}
