package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

type OllamaPlatform struct {
	client *api.Client
	model  string
}

// NewOllamaPlatform talks to host, or to OLLAMA_HOST when host is empty.
func NewOllamaPlatform(model, host string, httpClient *http.Client) (*OllamaPlatform, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama: model cannot be empty")
	}

	var client *api.Client
	if host == "" {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		client = c
	} else {
		base, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
		}
		if httpClient == nil {
			httpClient = http.DefaultClient
		}
		client = api.NewClient(base, httpClient)
	}

	return &OllamaPlatform{
		client: client,
		model:  model,
	}, nil
}

func (o *OllamaPlatform) Name() string {
	return "ollama/" + o.model
}

func (o *OllamaPlatform) Client() *api.Client { return o.client }

func (o *OllamaPlatform) Generate(ctx context.Context, req Request) (string, error) {
	stream := false
	request := &api.GenerateRequest{
		Model:  o.model,
		System: req.System,
		Prompt: req.Prompt,
		Stream: &stream,
	}
	if req.JSON {
		request.Format = json.RawMessage(`"json"`)
	}

	var sb strings.Builder
	err := o.client.Generate(ctx, request, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", o.Name(), err)
	}

	return strings.TrimSpace(sb.String()), nil
}
