package journal

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"memorylane/internal/frontmatter"
)

func TestDecodeEvent(t *testing.T) {
	t.Parallel()

	fm, _ := frontmatter.Parse([]byte(`---
id: 7c9e6679-7425-40de-944b-e07fc1f90ae7
type: event
title: Beach Day
description: A warm afternoon.
startAt: 2024-03-15
endAt: 2024-03-15
location:
  lat: 52.3676
  lng: 4.9041
  label: Amsterdam
featuredPhoto: sunset
tags:
  - family
  - summer
createdAt: 2024-03-15T18:00:00Z
---
`))

	ev, problems := DecodeEvent(fm)

	if len(problems) != 0 {
		t.Fatalf("unexpected problems: %v", problems)
	}

	if ev.ID != "7c9e6679-7425-40de-944b-e07fc1f90ae7" || ev.Type != EventEvent {
		t.Errorf("identity = %q/%q", ev.ID, ev.Type)
	}

	if ev.Title != "Beach Day" || ev.Description != "A warm afternoon." {
		t.Errorf("title/description = %q/%q", ev.Title, ev.Description)
	}

	if got := ev.StartAt.Format("2006-01-02"); got != "2024-03-15" {
		t.Errorf("startAt = %s", got)
	}

	if ev.Location == nil || ev.Location.Lat != 52.3676 || ev.Location.Label != "Amsterdam" {
		t.Errorf("location = %+v", ev.Location)
	}

	if ev.FeaturedPhoto != "sunset" {
		t.Errorf("featuredPhoto = %q", ev.FeaturedPhoto)
	}

	if !cmp.Equal(ev.Tags, []string{"family", "summer"}) {
		t.Errorf("tags = %v", ev.Tags)
	}

	if ev.CreatedAt.IsZero() {
		t.Error("createdAt not parsed")
	}
}

func TestDecodeEventReportsProblems(t *testing.T) {
	t.Parallel()

	fm, _ := frontmatter.Parse([]byte(`---
type: party
startAt: someday
location:
  lat: north
  lng: 4.9
---
`))

	ev, problems := DecodeEvent(fm)

	if len(problems) != 3 {
		t.Fatalf("problems = %v, want 3 entries", problems)
	}

	if ev.Type != "" {
		t.Errorf("unknown type should stay empty, got %q", ev.Type)
	}

	if !ev.StartAt.IsZero() {
		t.Error("unparseable startAt should stay zero")
	}

	if ev.Location != nil {
		t.Error("non-numeric location should be dropped")
	}
}

func TestEventEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	ev := Event{
		ID:            "abc-123",
		Type:          EventEvent,
		Title:         "Trip: the sequel",
		Description:   "Second time around.",
		StartAt:       time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		EndAt:         time.Date(2024, 3, 17, 0, 0, 0, 0, time.UTC),
		Location:      &Location{Lat: 52.3676, Lng: 4.9041, Label: "Amsterdam"},
		FeaturedPhoto: "sunset",
		Tags:          []string{"travel"},
		CreatedAt:     time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC),
		UpdatedAt:     time.Date(2024, 3, 16, 9, 0, 0, 0, time.UTC),
	}

	content := frontmatter.Generate(EncodeEvent(ev), "", EventKeyOrder)

	fm, _ := frontmatter.Parse(content)

	got, problems := DecodeEvent(fm)
	if len(problems) != 0 {
		t.Fatalf("problems: %v", problems)
	}

	if diff := cmp.Diff(ev, got); diff != "" {
		t.Errorf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeItem(t *testing.T) {
	t.Parallel()

	fm, _ := frontmatter.Parse([]byte(`---
id: item-1
type: photo
caption: Sunset at the pier
media: sunset.jpg
happenedAt: 2024-03-15T19:42:00Z
place: Scheveningen
people:
  - Anna
  - Tom
tags:
  - beach
category: holidays
exif:
  camera: X100V
  iso: 400
---
`))

	it, problems := DecodeItem(fm)

	if len(problems) != 0 {
		t.Fatalf("problems: %v", problems)
	}

	if it.Type != ItemPhoto || it.Media != "sunset.jpg" {
		t.Errorf("type/media = %q/%q", it.Type, it.Media)
	}

	if it.Caption != "Sunset at the pier" || it.Place != "Scheveningen" {
		t.Errorf("caption/place = %q/%q", it.Caption, it.Place)
	}

	if !cmp.Equal(it.People, []string{"Anna", "Tom"}) {
		t.Errorf("people = %v", it.People)
	}

	if it.Category != "holidays" {
		t.Errorf("category = %q", it.Category)
	}

	if it.Exif["camera"] != "X100V" || it.Exif["iso"] != "400" {
		t.Errorf("exif = %v", it.Exif)
	}
}

func TestItemEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	it := Item{
		ID:         "item-1",
		Type:       ItemLink,
		Slug:       "go-blog",
		Content:    "https://go.dev/blog",
		Caption:    "Go blog",
		HappenedAt: time.Date(2024, 3, 15, 19, 0, 0, 0, time.UTC),
		Tags:       []string{"reading"},
		CreatedAt:  time.Date(2024, 3, 15, 19, 0, 0, 0, time.UTC),
	}

	content := frontmatter.Generate(EncodeItem(it, ""), "", ItemKeyOrder)

	fm, _ := frontmatter.Parse(content)

	got, problems := DecodeItem(fm)
	if len(problems) != 0 {
		t.Fatalf("problems: %v", problems)
	}

	if got.URL != it.Content {
		t.Errorf("url = %q, want %q", got.URL, it.Content)
	}

	if got.Caption != it.Caption || got.ID != it.ID || got.Type != it.Type {
		t.Errorf("identity fields lost: %+v", got)
	}

	if !got.HappenedAt.Equal(it.HappenedAt) {
		t.Errorf("happenedAt = %v", got.HappenedAt)
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	if got, err := ParseTimestamp("2024-03-15"); err != nil || got.Day() != 15 {
		t.Errorf("date parse = %v, %v", got, err)
	}

	if got, err := ParseTimestamp("2024-03-15T19:42:00Z"); err != nil || got.Hour() != 19 {
		t.Errorf("rfc3339 parse = %v, %v", got, err)
	}

	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Error("expected error for junk timestamp")
	}
}
