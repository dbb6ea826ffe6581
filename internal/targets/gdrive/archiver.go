package gdrive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"paperpost/internal/types"
)

const (
	Name = "gdrive"

	pdfMimeType = "application/pdf"
)

// Drive is the subset of platforms.DrivePlatform the archiver needs.
type Drive interface {
	FindFolder(ctx context.Context, name string) (string, error)
	CreateFolder(ctx context.Context, name string) (string, error)
	Upload(ctx context.Context, folderID, name, mimeType string, r io.Reader) (string, error)
}

// Archiver uploads the downloaded full text of each paper into one folder.
type Archiver struct {
	drive        Drive
	folderName   string
	createFolder bool
	folderID     string
	logger       *slog.Logger
}

func New(drive Drive, folderName string, createFolder bool, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		drive:        drive,
		folderName:   folderName,
		createFolder: createFolder,
		logger:       logger.With("sink", Name),
	}
}

func (a *Archiver) Name() string {
	return Name
}

func (a *Archiver) Publish(ctx context.Context, item types.Item, enrichment *types.Enrichment) error {
	if !enrichment.HasContent() {
		a.logger.Warn("No downloaded content to archive, skipping", "item_id", item.ID)
		return nil
	}

	folderID, err := a.folder(ctx)
	if err != nil {
		return err
	}

	f, err := os.Open(enrichment.ContentPath)
	if err != nil {
		return types.NonRetryable(fmt.Errorf("drive: open %s: %w", enrichment.ContentPath, err))
	}
	defer f.Close()

	fileID, err := a.drive.Upload(ctx, folderID, item.FileName(), pdfMimeType, f)
	if err != nil {
		return err
	}

	a.logger.Info("Uploaded to google drive", "item_id", item.ID, "file", item.FileName(), "file_id", fileID)
	return nil
}

// folder resolves the target folder once and remembers it for later items.
func (a *Archiver) folder(ctx context.Context) (string, error) {
	if a.folderID != "" {
		return a.folderID, nil
	}

	id, err := a.drive.FindFolder(ctx, a.folderName)
	if err != nil {
		return "", err
	}

	if id == "" {
		if !a.createFolder {
			return "", types.NonRetryable(fmt.Errorf("drive folder %q not found: %w", a.folderName, types.ErrSinkUnavailable))
		}
		id, err = a.drive.CreateFolder(ctx, a.folderName)
		if err != nil {
			return "", err
		}
		a.logger.Info("Created google drive folder", "folder", a.folderName, "folder_id", id)
	}

	a.folderID = id
	return id, nil
}
