package journal

import (
	"fmt"
	"time"

	"memorylane/internal/frontmatter"
)

// Frontmatter schemas. The decoders are deliberately strict about shape
// (a non-numeric lat is reported, not defaulted) but forgiving about
// presence: any field may be absent, and unknown keys are preserved by
// the writer rather than rejected here.

// EventKeyOrder is the canonical key order for generated event
// frontmatter.
var EventKeyOrder = []string{
	"id", "type", "title", "description", "startAt", "endAt",
	"location", "featuredPhoto", "tags", "createdAt", "updatedAt",
}

// ItemKeyOrder is the canonical key order for generated item
// frontmatter.
var ItemKeyOrder = []string{
	"id", "type", "caption", "media", "url", "happenedAt",
	"place", "people", "tags", "category", "exif",
	"createdAt", "updatedAt",
}

// dateLayout is the compact form accepted for startAt/endAt/happenedAt.
const dateLayout = "2006-01-02"

// ParseTimestamp accepts the two timestamp shapes the journal writes:
// RFC 3339 and bare YYYY-MM-DD dates.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}

	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// FormatDate renders a date-only timestamp for frontmatter.
func FormatDate(t time.Time) string { return t.Format(dateLayout) }

// FormatTimestamp renders a full timestamp for frontmatter.
func FormatTimestamp(t time.Time) string { return t.UTC().Format(time.RFC3339) }

// DecodeEvent builds an Event from parsed frontmatter. Malformed or
// unusable fields are reported in problems and otherwise skipped; the
// event is still returned so a damaged descriptor degrades instead of
// vanishing from the index. ID and file paths are left for the caller.
func DecodeEvent(fm frontmatter.Frontmatter) (Event, []string) {
	var (
		ev       Event
		problems []string
	)

	ev.ID, _ = fm.GetString("id")

	if raw, ok := fm.GetString("type"); ok {
		if t := EventType(raw); ValidEventType(t) {
			ev.Type = t
		} else {
			problems = append(problems, fmt.Sprintf("type: unknown value %q", raw))
		}
	}

	ev.Title, _ = fm.GetString("title")
	ev.Description, _ = fm.GetString("description")
	ev.FeaturedPhoto, _ = fm.GetString("featuredPhoto")
	ev.Tags, _ = fm.GetList("tags")

	ev.StartAt = decodeTime(fm, "startAt", &problems)
	ev.EndAt = decodeTime(fm, "endAt", &problems)
	ev.CreatedAt = decodeTime(fm, "createdAt", &problems)
	ev.UpdatedAt = decodeTime(fm, "updatedAt", &problems)

	if obj, ok := fm.GetObject("location"); ok {
		loc := &Location{}

		latOK := scalarFloat(obj["lat"], &loc.Lat)
		lngOK := scalarFloat(obj["lng"], &loc.Lng)
		loc.Label = obj["label"].String

		if latOK && lngOK {
			ev.Location = loc
		} else {
			problems = append(problems, "location: lat/lng not numeric")
		}
	}

	return ev, problems
}

// EncodeEvent renders an event's frontmatter. File paths, parent, and ID
// allocation are index concerns and do not round-trip through it except
// for the ID itself.
func EncodeEvent(ev Event) frontmatter.Frontmatter {
	fm := frontmatter.Frontmatter{
		"id":    frontmatter.String(ev.ID),
		"type":  frontmatter.String(string(ev.Type)),
		"title": frontmatter.String(ev.Title),
	}

	if ev.Description != "" {
		fm["description"] = frontmatter.String(ev.Description)
	}

	if !ev.StartAt.IsZero() {
		fm["startAt"] = frontmatter.String(FormatDate(ev.StartAt))
	}

	if !ev.EndAt.IsZero() {
		fm["endAt"] = frontmatter.String(FormatDate(ev.EndAt))
	}

	if ev.Location != nil {
		obj := map[string]frontmatter.Scalar{
			"lat": {Kind: frontmatter.ScalarFloat, Float: ev.Location.Lat},
			"lng": {Kind: frontmatter.ScalarFloat, Float: ev.Location.Lng},
		}
		if ev.Location.Label != "" {
			obj["label"] = frontmatter.Scalar{Kind: frontmatter.ScalarString, String: ev.Location.Label}
		}

		fm["location"] = frontmatter.Object(obj)
	}

	if ev.FeaturedPhoto != "" {
		fm["featuredPhoto"] = frontmatter.String(ev.FeaturedPhoto)
	}

	if len(ev.Tags) > 0 {
		fm["tags"] = frontmatter.List(ev.Tags)
	}

	if !ev.CreatedAt.IsZero() {
		fm["createdAt"] = frontmatter.String(FormatTimestamp(ev.CreatedAt))
	}

	if !ev.UpdatedAt.IsZero() {
		fm["updatedAt"] = frontmatter.String(FormatTimestamp(ev.UpdatedAt))
	}

	return fm
}

// ItemFrontmatter is the decoded metadata of an item markdown file
// before the indexer resolves content addressing. Media holds the raw
// media: field (a sibling filename), not a resolved file reference.
type ItemFrontmatter struct {
	ID         string
	Type       ItemType
	Media      string
	URL        string
	Caption    string
	HappenedAt time.Time
	Place      string
	People     []string
	Tags       []string
	Category   string
	Exif       map[string]string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DecodeItem builds an item's metadata from parsed frontmatter.
// Malformed fields are reported in problems and skipped.
func DecodeItem(fm frontmatter.Frontmatter) (ItemFrontmatter, []string) {
	var (
		it       ItemFrontmatter
		problems []string
	)

	it.ID, _ = fm.GetString("id")

	if raw, ok := fm.GetString("type"); ok {
		if t := ItemType(raw); ValidItemType(t) {
			it.Type = t
		} else {
			problems = append(problems, fmt.Sprintf("type: unknown value %q", raw))
		}
	}

	it.Media, _ = fm.GetString("media")
	it.URL, _ = fm.GetString("url")
	it.Caption, _ = fm.GetString("caption")
	it.Place, _ = fm.GetString("place")
	it.Category, _ = fm.GetString("category")
	it.People, _ = fm.GetList("people")
	it.Tags, _ = fm.GetList("tags")

	it.HappenedAt = decodeTime(fm, "happenedAt", &problems)
	it.CreatedAt = decodeTime(fm, "createdAt", &problems)
	it.UpdatedAt = decodeTime(fm, "updatedAt", &problems)

	if obj, ok := fm.GetObject("exif"); ok {
		it.Exif = make(map[string]string, len(obj))
		for key, scalar := range obj {
			it.Exif[key] = scalarString(scalar)
		}
	}

	return it, problems
}

// EncodeItem renders an item's frontmatter. The body (text content) is
// appended by the caller via frontmatter.Generate.
func EncodeItem(it Item, mediaFilename string) frontmatter.Frontmatter {
	fm := frontmatter.Frontmatter{
		"id":   frontmatter.String(it.ID),
		"type": frontmatter.String(string(it.Type)),
	}

	if it.Caption != "" {
		fm["caption"] = frontmatter.String(it.Caption)
	}

	if mediaFilename != "" {
		fm["media"] = frontmatter.String(mediaFilename)
	}

	if it.Type == ItemLink && it.Content != "" {
		fm["url"] = frontmatter.String(it.Content)
	}

	if !it.HappenedAt.IsZero() {
		fm["happenedAt"] = frontmatter.String(FormatTimestamp(it.HappenedAt))
	}

	if it.Place != "" {
		fm["place"] = frontmatter.String(it.Place)
	}

	if len(it.People) > 0 {
		fm["people"] = frontmatter.List(it.People)
	}

	if len(it.Tags) > 0 {
		fm["tags"] = frontmatter.List(it.Tags)
	}

	if it.Category != "" {
		fm["category"] = frontmatter.String(it.Category)
	}

	if len(it.Exif) > 0 {
		obj := make(map[string]frontmatter.Scalar, len(it.Exif))
		for key, val := range it.Exif {
			obj[key] = frontmatter.Scalar{Kind: frontmatter.ScalarString, String: val}
		}

		fm["exif"] = frontmatter.Object(obj)
	}

	if !it.CreatedAt.IsZero() {
		fm["createdAt"] = frontmatter.String(FormatTimestamp(it.CreatedAt))
	}

	if !it.UpdatedAt.IsZero() {
		fm["updatedAt"] = frontmatter.String(FormatTimestamp(it.UpdatedAt))
	}

	return fm
}

func decodeTime(fm frontmatter.Frontmatter, key string, problems *[]string) time.Time {
	raw, ok := fm.GetString(key)
	if !ok {
		return time.Time{}
	}

	t, err := ParseTimestamp(raw)
	if err != nil {
		*problems = append(*problems, fmt.Sprintf("%s: %v", key, err))

		return time.Time{}
	}

	return t
}

func scalarFloat(s frontmatter.Scalar, out *float64) bool {
	switch s.Kind {
	case frontmatter.ScalarFloat:
		*out = s.Float

		return true
	case frontmatter.ScalarInt:
		*out = float64(s.Int)

		return true
	default:
		return false
	}
}

func scalarString(s frontmatter.Scalar) string {
	switch s.Kind {
	case frontmatter.ScalarInt:
		return fmt.Sprintf("%d", s.Int)
	case frontmatter.ScalarFloat:
		return fmt.Sprintf("%g", s.Float)
	case frontmatter.ScalarBool:
		return fmt.Sprintf("%t", s.Bool)
	default:
		return s.String
	}
}
