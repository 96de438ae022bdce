package indexer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"memorylane/internal/frontmatter"
	"memorylane/internal/journal"
	"memorylane/internal/naming"
)

// Recover repairs the tree before rebuilding: event folders missing
// their descriptor get a minimal _event.md, and media files missing
// their sidecar markdown (a crash or interrupted copy leaves these) get
// one synthesized. Captions are derived mechanically from filenames, so
// this is best-effort repair, not restoration. Ends with a full rebuild.
func (ix *Indexer) Recover(ctx context.Context) (journal.RebuildResult, error) {
	if ix.root == "" {
		return journal.RebuildResult{}, journal.ErrNoRoot
	}

	entries, err := ix.fs.ReadDir(ix.root)
	if err != nil {
		return journal.RebuildResult{}, fmt.Errorf("list journal root: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		if _, ok := naming.IsYearFolderName(entry.Name()); !ok {
			continue
		}

		if err := ix.recoverYear(ctx, entry.Name()); err != nil {
			return journal.RebuildResult{}, err
		}
	}

	return ix.Rebuild(ctx)
}

func (ix *Indexer) recoverYear(_ context.Context, yearName string) error {
	yearAbs := filepath.Join(ix.root, yearName)

	entries, err := ix.fs.ReadDir(yearAbs)
	if err != nil {
		return fmt.Errorf("list year folder %s: %w", yearName, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		if err := ix.recoverEventFolder(filepath.Join(yearName, entry.Name())); err != nil {
			return err
		}
	}

	return nil
}

func (ix *Indexer) recoverEventFolder(folderRel string) error {
	folderAbs := filepath.Join(ix.root, folderRel)

	descriptor := filepath.Join(folderAbs, journal.EventDescriptor)

	exists, err := ix.fs.Exists(descriptor)
	if err != nil {
		return fmt.Errorf("stat %s: %w", descriptor, err)
	}

	if !exists {
		if err := ix.synthesizeEventDescriptor(folderRel); err != nil {
			return err
		}

		ix.log.Info("synthesized event descriptor", "folder", folderRel)
	}

	entries, err := ix.fs.ReadDir(folderAbs)
	if err != nil {
		return fmt.Errorf("list event folder %s: %w", folderRel, err)
	}

	markdown := make(map[string]bool)

	for _, entry := range entries {
		if name := entry.Name(); strings.HasSuffix(name, ".md") {
			markdown[strings.TrimSuffix(name, ".md")] = true
		}
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		ext := filepath.Ext(name)

		kind, ok := journal.MediaKindForExt(ext)
		if !ok {
			continue
		}

		stem := strings.TrimSuffix(name, ext)
		if markdown[stem] {
			continue
		}

		if err := ix.synthesizeItemMarkdown(folderRel, name, stem, kind); err != nil {
			return err
		}

		markdown[stem] = true

		ix.log.Info("synthesized item markdown", "media", filepath.Join(folderRel, name))
	}

	return nil
}

func (ix *Indexer) synthesizeEventDescriptor(folderRel string) error {
	inferred := naming.InferEventFromFolderName(filepath.Base(folderRel))

	ev := journal.Event{
		ID:        ix.ids.New(),
		Type:      journal.EventEvent,
		Title:     inferred.Title,
		StartAt:   inferred.StartAt,
		CreatedAt: ix.clock.Now(),
		UpdatedAt: ix.clock.Now(),
	}

	content := frontmatter.Generate(journal.EncodeEvent(ev), "", journal.EventKeyOrder)

	path := filepath.Join(ix.root, folderRel, journal.EventDescriptor)
	if err := ix.fs.WriteFileAtomic(path, content, 0o644); err != nil {
		return fmt.Errorf("write synthesized descriptor: %w", err)
	}

	return nil
}

func (ix *Indexer) synthesizeItemMarkdown(folderRel, mediaName, stem string, kind journal.ItemType) error {
	it := journal.Item{
		ID:        ix.ids.New(),
		Type:      kind,
		Slug:      stem,
		Caption:   captionFromSlug(stem),
		CreatedAt: ix.clock.Now(),
		UpdatedAt: ix.clock.Now(),
	}

	content := frontmatter.Generate(journal.EncodeItem(it, mediaName), "", journal.ItemKeyOrder)

	path := filepath.Join(ix.root, folderRel, stem+".md")
	if err := ix.fs.WriteFileAtomic(path, content, 0o644); err != nil {
		return fmt.Errorf("write synthesized markdown: %w", err)
	}

	return nil
}

// captionFromSlug turns "beach-sunset-2" into "Beach sunset 2".
func captionFromSlug(slug string) string {
	text := strings.ReplaceAll(slug, "-", " ")
	if text == "" {
		return text
	}

	return strings.ToUpper(text[:1]) + text[1:]
}
