package clients

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/aiwf/engine/common/config"
)

// SheetsClient is the contract the act.sheets handler expects. A nil client
// puts the handler into fallback mode.
type SheetsClient interface {
	// AppendRows appends rows to a sheet and returns the updated range.
	AppendRows(ctx context.Context, spreadsheetID, sheetName string, rows [][]any) (string, error)
}

// SheetsAPIClient implements SheetsClient against the Google Sheets
// values.append endpoint.
type SheetsAPIClient struct {
	client *resty.Client
}

// NewSheetsClient creates a Sheets client, or nil when no API token is
// configured.
func NewSheetsClient(cfg *config.Config) *SheetsAPIClient {
	if cfg.Providers.SheetsToken == "" {
		return nil
	}
	client := resty.New().
		SetBaseURL("https://sheets.googleapis.com/v4").
		SetAuthToken(cfg.Providers.SheetsToken).
		SetTimeout(cfg.Providers.RequestTimeout)
	return &SheetsAPIClient{client: client}
}

// AppendRows implements SheetsClient.
func (c *SheetsAPIClient) AppendRows(ctx context.Context, spreadsheetID, sheetName string, rows [][]any) (string, error) {
	var result struct {
		Updates struct {
			UpdatedRange string `json:"updatedRange"`
		} `json:"updates"`
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("valueInputOption", "USER_ENTERED").
		SetBody(map[string]any{"values": rows}).
		SetResult(&result).
		Post(fmt.Sprintf("/spreadsheets/%s/values/%s:append", spreadsheetID, sheetName))
	if err != nil {
		return "", fmt.Errorf("sheets append failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("sheets append returned status %d: %s", resp.StatusCode(), resp.String())
	}

	return result.Updates.UpdatedRange, nil
}
