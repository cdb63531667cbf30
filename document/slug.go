package document

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// anchorMaxLen caps section anchor IDs.
	anchorMaxLen = 60
	// docSlugMaxLen caps article slugs.
	docSlugMaxLen = 80
	// anchorFallback is used when a heading slugifies to nothing.
	anchorFallback = "section"
	// docSlugFallback is used when a title slugifies to nothing.
	docSlugFallback = "article"
)

// asciiFold strips combining marks after NFKD decomposition, mapping
// accented characters to their ASCII base forms.
var asciiFold = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify lowercases s, folds it to ASCII, strips everything but
// letters, digits and hyphens, collapses hyphen runs, and truncates to
// maxLen. The result may be empty; callers choose the fallback.
// Pure function of its input.
func Slugify(s string, maxLen int) string {
	folded, _, err := transform.String(asciiFold, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	prevHyphen := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevHyphen = false
		case r == '-' || r == '_' || r == ' ' || r == '.' || r == '/':
			if !prevHyphen && b.Len() > 0 {
				b.WriteRune('-')
				prevHyphen = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if maxLen > 0 && len(slug) > maxLen {
		slug = strings.Trim(slug[:maxLen], "-")
	}
	return slug
}

// AnchorID derives a section anchor from heading text, falling back to
// "section" for empty or all-symbol headings.
func AnchorID(heading string) string {
	slug := Slugify(heading, anchorMaxLen)
	if slug == "" {
		return anchorFallback
	}
	return slug
}

// DocSlug derives an article slug from its title.
func DocSlug(title string) string {
	slug := Slugify(title, docSlugMaxLen)
	if slug == "" {
		return docSlugFallback
	}
	return slug
}

// AssignAnchorIDs returns a unique anchor for each heading, in order.
// Repeated headings get strictly increasing numeric suffixes: intro,
// intro-2, intro-3. Suffixed forms are never reused.
func AssignAnchorIDs(headings []string) []string {
	ids := make([]string, 0, len(headings))
	used := make(map[string]bool, len(headings))
	counts := make(map[string]int, len(headings))
	for _, h := range headings {
		base := AnchorID(h)
		counts[base]++
		id := base
		if counts[base] > 1 {
			id = fmt.Sprintf("%s-%d", base, counts[base])
		}
		for used[id] {
			counts[base]++
			id = fmt.Sprintf("%s-%d", base, counts[base])
		}
		used[id] = true
		ids = append(ids, id)
	}
	return ids
}

// crockford is the base32 alphabet used for doc UIDs. It omits I, L, O
// and U to avoid transcription mistakes.
const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// NewDocUID returns a 26-character identifier with a millisecond
// timestamp prefix and a random suffix. UIDs created later sort
// lexically after earlier ones.
func NewDocUID() string {
	return newDocUIDAt(time.Now())
}

func newDocUIDAt(t time.Time) string {
	var buf [26]byte

	// 48-bit millisecond timestamp in 10 base32 characters.
	ms := uint64(t.UnixMilli()) & ((1 << 48) - 1)
	for i := 9; i >= 0; i-- {
		buf[i] = crockford[ms&0x1f]
		ms >>= 5
	}

	// 80 random bits in 16 base32 characters.
	var entropy [10]byte
	if _, err := rand.Read(entropy[:]); err != nil {
		// crypto/rand never fails on supported platforms; fall back to
		// the nanosecond clock rather than returning an error.
		ns := uint64(t.UnixNano())
		for i := range entropy {
			entropy[i] = byte(ns >> (uint(i%8) * 8))
		}
	}
	var acc uint64
	bits := 0
	out := 10
	for _, b := range entropy {
		acc = acc<<8 | uint64(b)
		bits += 8
		for bits >= 5 && out < 26 {
			bits -= 5
			buf[out] = crockford[(acc>>uint(bits))&0x1f]
			out++
		}
	}
	return string(buf[:])
}
