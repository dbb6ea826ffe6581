package platforms

import (
	"context"
	"fmt"
	"io"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"paperpost/internal/types"
)

const folderMimeType = "application/vnd.google-apps.folder"

// DrivePlatform uploads files into Google Drive folders using a service
// account credentials file.
type DrivePlatform struct {
	service *drive.Service
}

func NewDrivePlatform(ctx context.Context, credentialsFile string, opts ...option.ClientOption) (*DrivePlatform, error) {
	if credentialsFile == "" && len(opts) == 0 {
		return nil, types.NewConfigurationError("archive", "archive.credentials_file (GOOGLE_APPLICATION_CREDENTIALS)")
	}

	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile), option.WithScopes(drive.DriveScope))
	}

	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return &DrivePlatform{service: service}, nil
}

// FolderQuery is the Drive search expression for a folder with that name.
func FolderQuery(name string) string {
	escaped := strings.ReplaceAll(name, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `'`, `\'`)
	return fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", escaped, folderMimeType)
}

// FindFolder returns the id of the first folder called name, or "" if there
// is none.
func (p *DrivePlatform) FindFolder(ctx context.Context, name string) (string, error) {
	list, err := p.service.Files.List().
		Q(FolderQuery(name)).
		Fields("files(id, name)").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("drive: failed to list folders: %w: %v", types.ErrSinkUnavailable, err)
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].Id, nil
}

func (p *DrivePlatform) CreateFolder(ctx context.Context, name string) (string, error) {
	folder, err := p.service.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMimeType,
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("drive: failed to create folder %q: %w: %v", name, types.ErrSinkUnavailable, err)
	}
	return folder.Id, nil
}

func (p *DrivePlatform) Upload(ctx context.Context, folderID, name, mimeType string, r io.Reader) (string, error) {
	file, err := p.service.Files.Create(&drive.File{
		Name:     name,
		Parents:  []string{folderID},
		MimeType: mimeType,
	}).Media(r).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("drive: failed to upload %q: %w: %v", name, types.ErrSinkUnavailable, err)
	}
	return file.Id, nil
}
