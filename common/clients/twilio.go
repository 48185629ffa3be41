package clients

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/aiwf/engine/common/config"
)

// TwilioClient is the contract the act.twilio handler expects. A nil client
// puts the handler into fallback mode.
type TwilioClient interface {
	// SendSMS sends a text message and returns the message SID.
	SendSMS(ctx context.Context, to, body string) (string, error)
}

// TwilioAPIClient implements TwilioClient against the Twilio Messages API.
type TwilioAPIClient struct {
	client *resty.Client
	sid    string
	from   string
}

// NewTwilioClient creates a Twilio client, or nil when credentials are not
// configured.
func NewTwilioClient(cfg *config.Config) *TwilioAPIClient {
	p := cfg.Providers
	if p.TwilioSID == "" || p.TwilioToken == "" {
		return nil
	}
	client := resty.New().
		SetBaseURL("https://api.twilio.com/2010-04-01").
		SetBasicAuth(p.TwilioSID, p.TwilioToken).
		SetTimeout(p.RequestTimeout)
	return &TwilioAPIClient{client: client, sid: p.TwilioSID, from: p.TwilioFrom}
}

// SendSMS implements TwilioClient.
func (c *TwilioAPIClient) SendSMS(ctx context.Context, to, body string) (string, error) {
	var result struct {
		SID string `json:"sid"`
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"To":   to,
			"From": c.from,
			"Body": body,
		}).
		SetResult(&result).
		Post(fmt.Sprintf("/Accounts/%s/Messages.json", c.sid))
	if err != nil {
		return "", fmt.Errorf("twilio send failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("twilio send returned status %d: %s", resp.StatusCode(), resp.String())
	}

	return result.SID, nil
}
