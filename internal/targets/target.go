package targets

import (
	"io"
	"log/slog"

	"paperpost/internal/platforms"
	discordpkg "paperpost/internal/targets/discord"
	gdrivepkg "paperpost/internal/targets/gdrive"
	zoteropkg "paperpost/internal/targets/zotero"
)

func NewDiscordNotifier(platform *platforms.DiscordPlatform, templatePath string, logger *slog.Logger) (*discordpkg.Notifier, error) {
	return discordpkg.New(platform, templatePath, logger)
}

// NewPreviewNotifier renders messages to out instead of posting them.
func NewPreviewNotifier(out io.Writer, templatePath string, logger *slog.Logger) (*discordpkg.Notifier, error) {
	return discordpkg.NewPreview(out, templatePath, logger)
}

func NewDriveArchiver(platform *platforms.DrivePlatform, folderName string, createFolder bool, logger *slog.Logger) *gdrivepkg.Archiver {
	return gdrivepkg.New(platform, folderName, createFolder, logger)
}

func NewZoteroRegistrar(platform *platforms.ZoteroPlatform, collection string, logger *slog.Logger) *zoteropkg.Registrar {
	return zoteropkg.New(platform, collection, logger)
}
