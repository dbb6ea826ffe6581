package platforms

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bwmarrin/discordgo"

	"paperpost/internal/types"
)

// DiscordPlatform posts to a single channel webhook. No gateway connection
// is opened; webhooks need no bot token.
type DiscordPlatform struct {
	webhookID string
	token     string
	username  string
	session   *discordgo.Session
}

func NewDiscordPlatform(webhookURL, username string, client *http.Client) (*DiscordPlatform, error) {
	if webhookURL == "" {
		return nil, types.NewConfigurationError("notify", "discord.webhook_url (DISCORD_WEBHOOK_URL)")
	}

	id, token, err := ParseWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}

	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	if client != nil {
		session.Client = client
	}

	return &DiscordPlatform{
		webhookID: id,
		token:     token,
		username:  username,
		session:   session,
	}, nil
}

// ParseWebhookURL extracts the id and token from
// https://discord.com/api/webhooks/<id>/<token>.
func ParseWebhookURL(raw string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid discord webhook url: %w", err)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", fmt.Errorf("invalid discord webhook url: missing id or token")
}

func (p *DiscordPlatform) Send(ctx context.Context, content string) error {
	params := &discordgo.WebhookParams{
		Content:  content,
		Username: p.username,
	}

	_, err := p.session.WebhookExecute(p.webhookID, p.token, false, params, discordgo.WithContext(ctx))
	if err != nil {
		var restErr *discordgo.RESTError
		if errors.As(err, &restErr) && restErr.Response != nil {
			code := restErr.Response.StatusCode
			if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
				return types.NonRetryable(fmt.Errorf("discord webhook rejected message (%d): %w", code, types.ErrSinkUnavailable))
			}
		}
		return fmt.Errorf("discord webhook: %w: %v", types.ErrSinkUnavailable, err)
	}
	return nil
}

func (p *DiscordPlatform) Session() *discordgo.Session {
	return p.session
}
