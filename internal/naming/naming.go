// Package naming derives filesystem names from user-visible titles and
// captions, and recovers structure from those names during a scan.
//
// Names are half the identity story of the journal tree: an event folder
// is "YYYY-MM-DD Title" and an item file is "slug.md". Slugs are
// deliberately lossy (the original caption lives in frontmatter) but
// deterministic, so the same text always maps to the same name.
package naming

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultSlugLen is the length cap callers pass to Slug for item filenames.
const DefaultSlugLen = 60

// maxTitleLen caps the sanitized title portion of an event folder name.
const maxTitleLen = 80

// FallbackSlug is returned when the input slugifies to nothing (empty,
// all punctuation, or all symbols).
const FallbackSlug = "untitled"

// stripMarks removes combining marks after NFD decomposition, turning
// "Séjour à Paris" into "Sejour a Paris".
var stripMarks = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Slug converts text into a lowercase hyphenated identifier safe for use
// as a filename stem. Diacritics are stripped, characters outside
// [a-z0-9 -] are removed, runs of whitespace and hyphens collapse to a
// single hyphen, and the result is trimmed and truncated to maxLength.
// Unusable input yields FallbackSlug.
func Slug(text string, maxLength int) string {
	folded, _, err := transform.String(stripMarks, text)
	if err != nil {
		// Invalid UTF-8. The character filter below drops anything
		// unusable, so continue with the raw string.
		folded = text
	}

	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))

	lastHyphen := true // suppress leading hyphen

	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)

			lastHyphen = false
		case r == ' ', r == '\t', r == '\n', r == '-':
			if !lastHyphen {
				b.WriteByte('-')

				lastHyphen = true
			}
		}
	}

	slug := strings.TrimRight(b.String(), "-")

	if maxLength > 0 && len(slug) > maxLength {
		slug = strings.TrimRight(slug[:maxLength], "-")
	}

	if slug == "" {
		return FallbackSlug
	}

	return slug
}

// SanitizeTitle makes a title safe to embed in a folder name: characters
// the common filesystems reject (and control characters) become
// underscores, surrounding whitespace is trimmed, and the result is
// length-capped.
func SanitizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))

	for _, r := range title {
		switch {
		case r < 0x20, strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}

	out := strings.TrimSpace(b.String())
	if len(out) > maxTitleLen {
		out = strings.TrimSpace(out[:maxTitleLen])
	}

	return out
}

// EventFolderName builds the canonical folder name for an event. A
// single-day event (endAt zero or on the same calendar day as startAt)
// gets a full date prefix, "2024-03-15 Beach Day". An event spanning
// days gets a month prefix, "2024-03 Spring Trip".
func EventFolderName(title string, startAt, endAt time.Time) string {
	prefix := startAt.Format("2006-01-02")
	if !endAt.IsZero() && !sameDay(startAt, endAt) {
		prefix = startAt.Format("2006-01")
	}

	return prefix + " " + SanitizeTitle(title)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()

	return ay == by && am == bm && ad == bd
}

// Inferred is the result of reverse-engineering an event folder name.
// StartAt is zero when the name carried no date prefix.
type Inferred struct {
	Title   string
	StartAt time.Time
}

// folderPattern matches "YYYY-MM Title" and "YYYY-MM-DD Title",
// capturing year, month, optional day, and the title remainder.
var folderPattern = regexp.MustCompile(`^(\d{4})-(\d{2})(?:-(\d{2}))?\s+(.+)$`)

// InferEventFromFolderName recovers a title and start date from an event
// folder name. A name without a recognizable date prefix still yields the
// whole name as title with a zero StartAt. This fallback is deliberately
// lossy rather than an error: manually created folders stay indexable.
func InferEventFromFolderName(name string) Inferred {
	m := folderPattern.FindStringSubmatch(name)
	if m == nil {
		return Inferred{Title: name}
	}

	day := m[3]
	if day == "" {
		day = "01"
	}

	startAt, err := time.Parse("2006-01-02", m[1]+"-"+m[2]+"-"+day)
	if err != nil {
		return Inferred{Title: name}
	}

	return Inferred{Title: m[4], StartAt: startAt}
}

// YearFolderName returns the top-level folder name for a year.
func YearFolderName(year int) string {
	return fmt.Sprintf("%04d", year)
}

// IsYearFolderName reports whether name is a four-digit year folder and
// returns the year when it is.
func IsYearFolderName(name string) (int, bool) {
	if len(name) != 4 {
		return 0, false
	}

	year, err := strconv.Atoi(name)
	if err != nil || year < 1000 {
		return 0, false
	}

	return year, true
}

// UniqueSlug returns base if exists(base) is false, otherwise the first
// of base-2, base-3, ... that is free. exists is typically a closure over
// a directory listing or an index query.
func UniqueSlug(base string, exists func(string) bool) string {
	if !exists(base) {
		return base
	}

	for i := 2; ; i++ {
		candidate := base + "-" + strconv.Itoa(i)
		if !exists(candidate) {
			return candidate
		}
	}
}
