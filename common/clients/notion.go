package clients

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/aiwf/engine/common/config"
)

// NotionClient is the contract the act.notion handler expects. A nil client
// puts the handler into fallback mode.
type NotionClient interface {
	// CreatePage creates a page in a database and returns the page id.
	CreatePage(ctx context.Context, databaseID, title, content string) (string, error)
}

// NotionAPIClient implements NotionClient against the Notion REST API.
type NotionAPIClient struct {
	client *resty.Client
}

// NewNotionClient creates a Notion client, or nil when no API token is
// configured.
func NewNotionClient(cfg *config.Config) *NotionAPIClient {
	if cfg.Providers.NotionToken == "" {
		return nil
	}
	client := resty.New().
		SetBaseURL("https://api.notion.com/v1").
		SetAuthToken(cfg.Providers.NotionToken).
		SetHeader("Notion-Version", "2022-06-28").
		SetTimeout(cfg.Providers.RequestTimeout)
	return &NotionAPIClient{client: client}
}

// CreatePage implements NotionClient.
func (c *NotionAPIClient) CreatePage(ctx context.Context, databaseID, title, content string) (string, error) {
	var result struct {
		ID string `json:"id"`
	}

	body := map[string]any{
		"parent": map[string]any{"database_id": databaseID},
		"properties": map[string]any{
			"Name": map[string]any{
				"title": []map[string]any{
					{"text": map[string]any{"content": title}},
				},
			},
		},
		"children": []map[string]any{
			{
				"object": "block",
				"type":   "paragraph",
				"paragraph": map[string]any{
					"rich_text": []map[string]any{
						{"type": "text", "text": map[string]any{"content": content}},
					},
				},
			},
		},
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post("/pages")
	if err != nil {
		return "", fmt.Errorf("notion page create failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("notion page create returned status %d: %s", resp.StatusCode(), resp.String())
	}

	return result.ID, nil
}
