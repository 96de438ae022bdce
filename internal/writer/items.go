package writer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"memorylane/internal/frontmatter"
	"memorylane/internal/journal"
	"memorylane/internal/naming"
)

// RenameStage labels how far a slug rename got before failing. The
// stages form a tiny state machine; a failure at any stage leaves the
// file tree self-consistent enough for a full rebuild to reconcile.
type RenameStage string

const (
	StageRenamingMarkdown   RenameStage = "renaming-markdown"
	StageRenamingMedia      RenameStage = "renaming-media"
	StageRewritingReference RenameStage = "rewriting-reference"
	StageDone               RenameStage = "done"
)

// RenameError reports a partially applied slug rename. The caller should
// schedule a full rebuild; no automatic rollback is attempted because
// the underlying storage offers no multi-file atomicity.
type RenameError struct {
	Stage   RenameStage
	OldSlug string
	NewSlug string
	Err     error
}

func (e *RenameError) Error() string {
	return fmt.Sprintf("rename %s -> %s failed at %s: %v", e.OldSlug, e.NewSlug, e.Stage, e.Err)
}

func (e *RenameError) Unwrap() error { return e.Err }

// CreateItem writes a new item's markdown (and media file, for inline
// binary content) into its event's folder and indexes it.
func (w *Writer) CreateItem(ctx context.Context, draft journal.ItemDraft) (journal.Item, error) {
	if w.root == "" {
		return journal.Item{}, journal.ErrNoRoot
	}

	ev, err := w.store.GetEvent(ctx, draft.EventID)
	if err != nil {
		return journal.Item{}, err
	}

	now := w.clock.Now()

	itemType := draft.Type
	if itemType == "" {
		itemType = journal.ItemText
	}

	base := naming.Slug(draft.Caption, naming.DefaultSlugLen)
	if draft.Caption == "" {
		base = fmt.Sprintf("%s-%d", itemType, now.Unix())
	}

	slug := naming.UniqueSlug(base, func(s string) bool {
		return w.slugExists(ev.FolderPath, s)
	})

	item := journal.Item{
		ID:         w.ids.New(),
		EventID:    ev.ID,
		Type:       itemType,
		Slug:       slug,
		Caption:    draft.Caption,
		HappenedAt: draft.HappenedAt,
		Place:      draft.Place,
		People:     draft.People,
		Tags:       draft.Tags,
		Category:   draft.Category,
		FilePath:   filepath.Join(ev.FolderPath, slug+".md"),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if item.HappenedAt.IsZero() {
		item.HappenedAt = ev.StartAt
	}

	mediaFilename := ""

	switch {
	case journal.IsDataURI(draft.Content):
		data, ext, err := DecodeDataURI(draft.Content)
		if err != nil {
			return journal.Item{}, fmt.Errorf("inline media: %w", err)
		}

		mediaFilename = slug + ext
		mediaRel := filepath.Join(ev.FolderPath, mediaFilename)

		if err := w.fs.WriteFileAtomic(w.abs(mediaRel), data, 0o644); err != nil {
			return journal.Item{}, fmt.Errorf("write media file: %w", err)
		}

		item.Content = journal.NewFileRef(mediaRel)
	case journal.IsFileRef(draft.Content):
		item.Content = draft.Content

		refDir, refName := filepath.Split(journal.FileRefPath(draft.Content))
		if filepath.Clean(refDir) == ev.FolderPath {
			mediaFilename = refName
		}
	default:
		item.Content = draft.Content
	}

	body := ""
	if item.Type == journal.ItemText {
		body = item.Content
	}

	content := frontmatter.Generate(journal.EncodeItem(item, mediaFilename), body, journal.ItemKeyOrder)

	if err := w.fs.WriteFileAtomic(w.abs(item.FilePath), content, 0o644); err != nil {
		return journal.Item{}, fmt.Errorf("write item markdown: %w", err)
	}

	if err := w.store.PutItem(ctx, item); err != nil {
		return journal.Item{}, err
	}

	if err := w.store.AddCategory(ctx, item.Category); err != nil {
		return journal.Item{}, err
	}

	if err := w.trackFile(ctx, item.FilePath, journal.FileItem); err != nil {
		return journal.Item{}, err
	}

	return item, w.store.Flush(ctx)
}

// UpdateItem merges the patch into an item. A caption change whose
// derived slug differs from the current one renames the markdown file,
// the media file, and the stored content reference as one logical unit;
// a partial failure surfaces as a *RenameError.
func (w *Writer) UpdateItem(ctx context.Context, id string, patch journal.ItemPatch) (journal.Item, error) {
	if w.root == "" {
		return journal.Item{}, journal.ErrNoRoot
	}

	item, err := w.store.GetItem(ctx, id)
	if err != nil {
		return journal.Item{}, err
	}

	folderRel := filepath.Dir(item.FilePath)

	body := ""
	extra := frontmatter.Frontmatter{}

	if raw, err := w.fs.ReadFile(w.abs(item.FilePath)); err == nil {
		var fm frontmatter.Frontmatter

		fm, body = frontmatter.Parse(raw)
		extra = unknownKeys(fm, journal.ItemKeyOrder)
	}

	oldSlug := item.Slug
	applyItemPatch(&item, patch)
	item.UpdatedAt = w.clock.Now()

	newSlug := oldSlug

	if patch.Caption != nil {
		derived := naming.Slug(item.Caption, naming.DefaultSlugLen)
		if derived != oldSlug {
			newSlug = naming.UniqueSlug(derived, func(s string) bool {
				return s != oldSlug && w.slugExists(folderRel, s)
			})
		}
	}

	if newSlug != oldSlug {
		if err := w.renameItemFiles(&item, folderRel, oldSlug, newSlug); err != nil {
			return journal.Item{}, err
		}
	}

	mediaFilename := ""

	if journal.IsFileRef(item.Content) {
		refDir, refName := filepath.Split(journal.FileRefPath(item.Content))
		if filepath.Clean(refDir) == folderRel {
			mediaFilename = refName
		}
	}

	if item.Type == journal.ItemText {
		body = item.Content
	}

	fm := journal.EncodeItem(item, mediaFilename)
	for key, val := range extra {
		fm[key] = val
	}

	content := frontmatter.Generate(fm, body, journal.ItemKeyOrder)

	if err := w.fs.WriteFileAtomic(w.abs(item.FilePath), content, 0o644); err != nil {
		if newSlug != oldSlug {
			return journal.Item{}, &RenameError{
				Stage: StageRewritingReference, OldSlug: oldSlug, NewSlug: newSlug, Err: err,
			}
		}

		return journal.Item{}, fmt.Errorf("rewrite item markdown: %w", err)
	}

	if err := w.store.PutItem(ctx, item); err != nil {
		return journal.Item{}, err
	}

	if err := w.store.AddCategory(ctx, item.Category); err != nil {
		return journal.Item{}, err
	}

	if newSlug != oldSlug {
		if err := w.store.DeleteFileEntry(ctx, filepath.Join(folderRel, oldSlug+".md")); err != nil {
			return journal.Item{}, err
		}

		if err := w.renameCanvasEntry(ctx, item, oldSlug, newSlug); err != nil {
			return journal.Item{}, err
		}
	}

	if err := w.trackFile(ctx, item.FilePath, journal.FileItem); err != nil {
		return journal.Item{}, err
	}

	return item, w.store.Flush(ctx)
}

// renameItemFiles advances the rename state machine: markdown first,
// then the media file, then the in-memory content reference. The
// markdown rewrite that persists the reference happens in UpdateItem
// and reports StageRewritingReference on failure.
func (w *Writer) renameItemFiles(item *journal.Item, folderRel, oldSlug, newSlug string) error {
	oldMD := filepath.Join(folderRel, oldSlug+".md")
	newMD := filepath.Join(folderRel, newSlug+".md")

	if err := w.fs.Rename(w.abs(oldMD), w.abs(newMD)); err != nil {
		return &RenameError{Stage: StageRenamingMarkdown, OldSlug: oldSlug, NewSlug: newSlug, Err: err}
	}

	item.Slug = newSlug
	item.FilePath = newMD

	if journal.IsFileRef(item.Content) {
		refPath := journal.FileRefPath(item.Content)
		refDir, refName := filepath.Split(refPath)

		ext := filepath.Ext(refName)
		if filepath.Clean(refDir) == folderRel && strings.TrimSuffix(refName, ext) == oldSlug {
			newMedia := filepath.Join(folderRel, newSlug+ext)

			if err := w.fs.Rename(w.abs(refPath), w.abs(newMedia)); err != nil {
				return &RenameError{Stage: StageRenamingMedia, OldSlug: oldSlug, NewSlug: newSlug, Err: err}
			}

			item.Content = journal.NewFileRef(newMedia)
		}
	}

	return nil
}

// renameCanvasEntry keeps the canvas layer consistent with a slug
// rename: the index row and the slug key inside _canvas.json.
func (w *Writer) renameCanvasEntry(ctx context.Context, item journal.Item, oldSlug, newSlug string) error {
	if err := w.store.UpdateCanvasSlug(ctx, item.ID, newSlug); err != nil {
		return err
	}

	canvasRel := filepath.Join(filepath.Dir(item.FilePath), journal.CanvasFileName)

	raw, err := w.fs.ReadFile(w.abs(canvasRel))
	if err != nil {
		return nil // no canvas file, nothing to rewrite
	}

	cf, err := journal.ParseCanvas(raw)
	if err != nil {
		// A hand-damaged canvas is reconciled by the next rebuild, not
		// by a rename.
		return nil
	}

	changed := false

	for i := range cf.Items {
		if cf.Items[i].ItemSlug == oldSlug {
			cf.Items[i].ItemSlug = newSlug
			changed = true
		}
	}

	if !changed {
		return nil
	}

	data, err := journal.EncodeCanvas(cf)
	if err != nil {
		return err
	}

	if err := w.fs.WriteFileAtomic(w.abs(canvasRel), data, 0o644); err != nil {
		return fmt.Errorf("rewrite canvas after rename: %w", err)
	}

	return w.trackFile(ctx, canvasRel, journal.FileCanvas)
}

// DeleteItem removes the item's markdown and media files, filters its
// placement out of _canvas.json, and deletes its index rows.
func (w *Writer) DeleteItem(ctx context.Context, id string) error {
	if w.root == "" {
		return journal.ErrNoRoot
	}

	item, err := w.store.GetItem(ctx, id)
	if err != nil {
		return err
	}

	folderRel := filepath.Dir(item.FilePath)

	if err := w.fs.Remove(w.abs(item.FilePath)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete item markdown: %w", err)
	}

	if journal.IsFileRef(item.Content) {
		refPath := journal.FileRefPath(item.Content)
		if filepath.Dir(refPath) == folderRel {
			if err := w.fs.Remove(w.abs(refPath)); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("delete media file: %w", err)
			}
		}
	}

	if err := w.removeCanvasEntry(ctx, folderRel, item.Slug); err != nil {
		return err
	}

	if err := w.store.DeleteItem(ctx, id); err != nil {
		return err
	}

	if err := w.store.DeleteFileEntry(ctx, item.FilePath); err != nil {
		return err
	}

	return w.store.Flush(ctx)
}

func (w *Writer) removeCanvasEntry(ctx context.Context, folderRel, slug string) error {
	canvasRel := filepath.Join(folderRel, journal.CanvasFileName)

	raw, err := w.fs.ReadFile(w.abs(canvasRel))
	if err != nil {
		return nil
	}

	cf, err := journal.ParseCanvas(raw)
	if err != nil {
		return nil
	}

	kept := cf.Items[:0]

	for _, p := range cf.Items {
		if p.ItemSlug != slug {
			kept = append(kept, p)
		}
	}

	if len(kept) == len(cf.Items) {
		return nil
	}

	cf.Items = kept

	data, err := journal.EncodeCanvas(cf)
	if err != nil {
		return err
	}

	if err := w.fs.WriteFileAtomic(w.abs(canvasRel), data, 0o644); err != nil {
		return fmt.Errorf("rewrite canvas after delete: %w", err)
	}

	return w.trackFile(ctx, canvasRel, journal.FileCanvas)
}

func applyItemPatch(item *journal.Item, patch journal.ItemPatch) {
	if patch.Caption != nil {
		item.Caption = *patch.Caption
	}

	if patch.Content != nil {
		item.Content = *patch.Content
	}

	if patch.HappenedAt != nil {
		item.HappenedAt = *patch.HappenedAt
	}

	if patch.Place != nil {
		item.Place = *patch.Place
	}

	if patch.People != nil {
		item.People = *patch.People
	}

	if patch.Tags != nil {
		item.Tags = *patch.Tags
	}

	if patch.Category != nil {
		item.Category = *patch.Category
	}
}
