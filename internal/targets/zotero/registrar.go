package zotero

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"paperpost/internal/platforms"
	"paperpost/internal/types"
)

const (
	Name = "zotero"

	dateLayout = "2006-01-02"
)

// Library is the subset of platforms.ZoteroPlatform the registrar needs.
type Library interface {
	FindCollection(ctx context.Context, name string) (string, error)
	CreateItems(ctx context.Context, items []platforms.ZoteroItem) ([]string, error)
}

// Registrar files each paper as a preprint in one collection and links the
// downloaded PDF under it.
type Registrar struct {
	library       Library
	collection    string
	collectionKey string
	logger        *slog.Logger
}

func New(library Library, collection string, logger *slog.Logger) *Registrar {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registrar{
		library:    library,
		collection: collection,
		logger:     logger.With("sink", Name),
	}
}

func (r *Registrar) Name() string {
	return Name
}

func (r *Registrar) Publish(ctx context.Context, item types.Item, enrichment *types.Enrichment) error {
	key, err := r.resolveCollection(ctx)
	if err != nil {
		return err
	}

	keys, err := r.library.CreateItems(ctx, []platforms.ZoteroItem{PreprintItem(item, key)})
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", item.ID, err)
	}
	parent := keys[0]

	if !enrichment.HasContent() {
		r.logger.Warn("No downloaded content, registered without attachment", "item_id", item.ID, "key", parent)
		return nil
	}

	filename := filepath.Base(enrichment.ContentPath)
	if _, err := r.library.CreateItems(ctx, []platforms.ZoteroItem{AttachmentItem(parent, filename)}); err != nil {
		// The parent exists now; retrying the whole publish would duplicate it.
		return types.NonRetryable(fmt.Errorf("failed to attach %s to %s: %w", filename, parent, err))
	}

	r.logger.Info("Registered to zotero", "item_id", item.ID, "key", parent, "title", item.Title)
	return nil
}

func (r *Registrar) resolveCollection(ctx context.Context) (string, error) {
	if r.collectionKey != "" {
		return r.collectionKey, nil
	}
	key, err := r.library.FindCollection(ctx, r.collection)
	if err != nil {
		return "", err
	}
	r.collectionKey = key
	return key, nil
}

// PreprintItem maps an arXiv paper to a Zotero preprint.
func PreprintItem(item types.Item, collectionKey string) platforms.ZoteroItem {
	creators := make([]platforms.ZoteroCreator, 0, len(item.Authors))
	for _, author := range item.Authors {
		first, last := SplitName(author)
		creators = append(creators, platforms.ZoteroCreator{
			CreatorType: "author",
			FirstName:   first,
			LastName:    last,
		})
	}

	zi := platforms.ZoteroItem{
		ItemType:       "preprint",
		Title:          item.Title,
		Creators:       creators,
		AbstractNote:   item.Abstract,
		Repository:     "arXiv",
		ArchiveID:      "arXiv:" + item.CanonicalID(),
		Date:           item.PublishedAt.UTC().Format(dateLayout),
		DOI:            item.DOI,
		URL:            types.StripVersion(item.ExternalRef),
		LibraryCatalog: "arXiv.org",
	}
	if collectionKey != "" {
		zi.Collections = []string{collectionKey}
	}
	return zi
}

func AttachmentItem(parentKey, filename string) platforms.ZoteroItem {
	return platforms.ZoteroItem{
		ItemType:    "attachment",
		Title:       filename,
		ParentItem:  parentKey,
		LinkMode:    "linked_file",
		ContentType: "application/pdf",
		Path:        filename,
	}
}

// SplitName splits on the first run of whitespace. A single-word name is
// returned as the first name.
func SplitName(name string) (string, string) {
	name = norm.NFC.String(strings.TrimSpace(name))
	idx := strings.IndexFunc(name, unicode.IsSpace)
	if idx < 0 {
		return name, ""
	}
	return name[:idx], strings.TrimLeftFunc(name[idx:], unicode.IsSpace)
}
