package discord

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/template"
	"unicode/utf8"

	"paperpost/internal/types"
	"paperpost/internal/utils"
)

const (
	Name = "discord"

	// MaxMessageRunes is the Discord content limit for a single message.
	MaxMessageRunes = 2000
)

//go:embed templates/paper.tmpl
var defaultTemplate string

// Sender delivers one message. platforms.DiscordPlatform implements it.
type Sender interface {
	Send(ctx context.Context, content string) error
}

type messageData struct {
	Item    types.Item
	Summary *types.Summary
}

// Notifier posts one message per paper. When constructed with NewPreview it
// prints messages instead of delivering them.
type Notifier struct {
	sender   Sender
	out      io.Writer
	template *template.Template
	logger   *slog.Logger
}

// New creates a Notifier delivering through sender. An empty templatePath
// selects the built-in template.
func New(sender Sender, templatePath string, logger *slog.Logger) (*Notifier, error) {
	if sender == nil {
		return nil, fmt.Errorf("discord notifier: sender is required")
	}
	return newNotifier(sender, nil, templatePath, logger)
}

// NewPreview creates a Notifier that writes every message to out.
func NewPreview(out io.Writer, templatePath string, logger *slog.Logger) (*Notifier, error) {
	if out == nil {
		return nil, fmt.Errorf("discord notifier: output is required")
	}
	return newNotifier(nil, out, templatePath, logger)
}

func newNotifier(sender Sender, out io.Writer, templatePath string, logger *slog.Logger) (*Notifier, error) {
	var (
		tmpl *template.Template
		err  error
	)
	if templatePath != "" {
		tmpl, err = utils.LoadTemplate(templatePath)
	} else {
		tmpl, err = utils.ParseTemplate("paper", defaultTemplate)
	}
	if err != nil {
		return nil, fmt.Errorf("discord notifier: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Notifier{
		sender:   sender,
		out:      out,
		template: tmpl,
		logger:   logger.With("sink", Name),
	}, nil
}

func (n *Notifier) Name() string {
	return Name
}

func (n *Notifier) Preview() bool {
	return n.sender == nil
}

// Render builds the message for item. A nil enrichment or summary renders
// the short failure notice.
func (n *Notifier) Render(item types.Item, enrichment *types.Enrichment) (string, error) {
	data := messageData{Item: item}
	if enrichment.HasSummary() {
		data.Summary = enrichment.Summary
	}

	var buf bytes.Buffer
	if err := n.template.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render message for %s: %w", item.ID, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func (n *Notifier) Publish(ctx context.Context, item types.Item, enrichment *types.Enrichment) error {
	message, err := n.Render(item, enrichment)
	if err != nil {
		return types.NonRetryable(err)
	}
	return n.Announce(ctx, message)
}

// Announce sends a free-form text, split into chunks Discord accepts. Once a
// chunk has been delivered a later failure is non-retryable: resending would
// post the earlier parts twice.
func (n *Notifier) Announce(ctx context.Context, text string) error {
	if n.Preview() {
		_, err := fmt.Fprintf(n.out, "------------\n%s\n------------\n", text)
		return err
	}

	chunks := SplitMessage(text, MaxMessageRunes)
	for i, chunk := range chunks {
		if err := n.sender.Send(ctx, chunk); err != nil {
			err = fmt.Errorf("failed to send part %d/%d: %w", i+1, len(chunks), err)
			if i > 0 {
				return types.NonRetryable(err)
			}
			return err
		}
	}
	n.logger.Debug("Message sent", "parts", len(chunks))
	return nil
}

// SplitMessage breaks text into chunks of at most limit runes, cutting at
// line boundaries. Lines longer than limit are cut mid-line.
func SplitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		chunks  []string
		current strings.Builder
		size    int
	)
	flush := func() {
		if size > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			size = 0
		}
	}

	for _, line := range strings.Split(text, "\n") {
		for utf8.RuneCountInString(line) > limit {
			flush()
			runes := []rune(line)
			chunks = append(chunks, string(runes[:limit]))
			line = string(runes[limit:])
		}

		n := utf8.RuneCountInString(line)
		sep := 0
		if size > 0 {
			sep = 1
		}
		if size+sep+n > limit {
			flush()
			sep = 0
		}
		if sep == 1 {
			current.WriteByte('\n')
		}
		current.WriteString(line)
		size += sep + n
	}
	flush()

	return chunks
}
