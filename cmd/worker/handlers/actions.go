package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/aiwf/engine/common/clients"
)

// Action handlers deliver content to external services. A missing provider
// credential is not a run failure: the handler completes with a simulated
// result and records the degraded mode in the run log.

// SlackHandler posts the node's message to a Slack channel.
type SlackHandler struct {
	slack clients.SlackClient
	logs  LogStore
}

func NewSlackHandler(slack clients.SlackClient, logs LogStore) *SlackHandler {
	return &SlackHandler{slack: slack, logs: logs}
}

func (h *SlackHandler) Kind() NodeKind { return KindSlack }

func (h *SlackHandler) Execute(ctx context.Context, task *Task) (map[string]any, error) {
	channel := stringConfig(task.Config, "channel")
	if channel == "" {
		return nil, configErr("missing channel")
	}

	message := stringConfig(task.Config, "message")
	if message == "" {
		message = stringInput(task.Inputs, "content", "text", "summary")
	}
	if message == "" {
		return nil, inputErr("no message content")
	}

	var timestamp string
	if h.slack != nil {
		ts, err := h.slack.PostMessage(ctx, channel, message)
		if err != nil {
			return nil, fmt.Errorf("slack post failed: %w", err)
		}
		timestamp = ts
	} else {
		timestamp = simulatedID("")
		logFallback(ctx, h.logs, task, "no Slack token configured, simulating post")
	}

	return map[string]any{
		"timestamp": timestamp,
		"channel":   channel,
		"message":   message,
	}, nil
}

// SheetsHandler appends the node's data as rows to a spreadsheet.
type SheetsHandler struct {
	sheets clients.SheetsClient
	logs   LogStore
}

func NewSheetsHandler(sheets clients.SheetsClient, logs LogStore) *SheetsHandler {
	return &SheetsHandler{sheets: sheets, logs: logs}
}

func (h *SheetsHandler) Kind() NodeKind { return KindSheets }

func (h *SheetsHandler) Execute(ctx context.Context, task *Task) (map[string]any, error) {
	spreadsheetID := stringConfig(task.Config, "spreadsheet_id")
	if spreadsheetID == "" {
		return nil, configErr("missing spreadsheet_id")
	}
	sheetName := stringConfig(task.Config, "sheet_name")
	if sheetName == "" {
		sheetName = "Sheet1"
	}

	rows := sheetRows(task.Inputs)
	if len(rows) == 0 {
		return nil, inputErr("no data to append")
	}

	var updatedRange string
	if h.sheets != nil {
		got, err := h.sheets.AppendRows(ctx, spreadsheetID, sheetName, rows)
		if err != nil {
			return nil, fmt.Errorf("sheets append failed: %w", err)
		}
		updatedRange = got
	} else {
		updatedRange = fmt.Sprintf("%s!A1:B%d", sheetName, len(rows))
		logFallback(ctx, h.logs, task, "no Sheets token configured, simulating append")
	}

	return map[string]any{
		"updated_range": updatedRange,
		"rows_added":    len(rows),
	}, nil
}

// sheetRows shapes the node inputs into spreadsheet rows. A data list
// becomes one row per element; bare content becomes a single row.
func sheetRows(inputs map[string]any) [][]any {
	if data, ok := inputs["data"].([]any); ok {
		rows := make([][]any, 0, len(data))
		for _, item := range data {
			if row, ok := item.([]any); ok {
				rows = append(rows, row)
				continue
			}
			rows = append(rows, []any{item})
		}
		return rows
	}
	if content := stringInput(inputs, "data", "content"); content != "" {
		return [][]any{{content}}
	}
	return nil
}

// EmailHandler sends the node's content as a plain-text email.
type EmailHandler struct {
	mailer clients.EmailClient
	logs   LogStore
}

func NewEmailHandler(mailer clients.EmailClient, logs LogStore) *EmailHandler {
	return &EmailHandler{mailer: mailer, logs: logs}
}

func (h *EmailHandler) Kind() NodeKind { return KindEmail }

func (h *EmailHandler) Execute(ctx context.Context, task *Task) (map[string]any, error) {
	to := stringConfig(task.Config, "to")
	if to == "" {
		return nil, configErr("missing to")
	}
	subject := stringConfig(task.Config, "subject")
	if subject == "" {
		subject = "Workflow notification"
	}

	body := stringConfig(task.Config, "body")
	if body == "" {
		body = stringInput(task.Inputs, "content", "text")
	}
	if body == "" {
		return nil, inputErr("no email content")
	}

	var messageID string
	if h.mailer != nil {
		id, err := h.mailer.Send(ctx, to, subject, body)
		if err != nil {
			return nil, fmt.Errorf("email send failed: %w", err)
		}
		messageID = id
	} else {
		messageID = simulatedID("msg_")
		logFallback(ctx, h.logs, task, "no SMTP host configured, simulating send")
	}

	return map[string]any{
		"message_id": messageID,
		"to":         to,
		"subject":    subject,
	}, nil
}

// NotionHandler creates a page holding the node's content in a Notion
// database.
type NotionHandler struct {
	notion clients.NotionClient
	logs   LogStore
}

func NewNotionHandler(notion clients.NotionClient, logs LogStore) *NotionHandler {
	return &NotionHandler{notion: notion, logs: logs}
}

func (h *NotionHandler) Kind() NodeKind { return KindNotion }

func (h *NotionHandler) Execute(ctx context.Context, task *Task) (map[string]any, error) {
	databaseID := stringConfig(task.Config, "database_id")
	if databaseID == "" {
		return nil, configErr("missing database_id")
	}
	title := stringConfig(task.Config, "title")
	if title == "" {
		title = "Workflow entry"
	}

	content := stringConfig(task.Config, "content")
	if content == "" {
		content = stringInput(task.Inputs, "content", "text")
	}
	if content == "" {
		return nil, inputErr("no content to write")
	}

	var pageID string
	if h.notion != nil {
		id, err := h.notion.CreatePage(ctx, databaseID, title, content)
		if err != nil {
			return nil, fmt.Errorf("notion page create failed: %w", err)
		}
		pageID = id
	} else {
		pageID = simulatedID("page_")
		logFallback(ctx, h.logs, task, "no Notion token configured, simulating page create")
	}

	return map[string]any{
		"page_id":     pageID,
		"database_id": databaseID,
	}, nil
}

// TwilioHandler sends the node's content as an SMS.
type TwilioHandler struct {
	twilio clients.TwilioClient
	logs   LogStore
}

func NewTwilioHandler(twilio clients.TwilioClient, logs LogStore) *TwilioHandler {
	return &TwilioHandler{twilio: twilio, logs: logs}
}

func (h *TwilioHandler) Kind() NodeKind { return KindTwilio }

func (h *TwilioHandler) Execute(ctx context.Context, task *Task) (map[string]any, error) {
	to := stringConfig(task.Config, "to")
	if to == "" {
		return nil, configErr("missing to")
	}

	message := stringConfig(task.Config, "message")
	if message == "" {
		message = stringInput(task.Inputs, "content", "text")
	}
	if message == "" {
		return nil, inputErr("no message content")
	}

	var sid string
	if h.twilio != nil {
		got, err := h.twilio.SendSMS(ctx, to, message)
		if err != nil {
			return nil, fmt.Errorf("sms send failed: %w", err)
		}
		sid = got
	} else {
		sid = simulatedID("SM")
		logFallback(ctx, h.logs, task, "no Twilio credentials configured, simulating send")
	}

	return map[string]any{
		"sid":     sid,
		"to":      to,
		"message": message,
	}, nil
}

func simulatedID(prefix string) string {
	if prefix == "" {
		return fmt.Sprintf("simulated_%d", time.Now().Unix())
	}
	return fmt.Sprintf("%ssimulated_%d", prefix, time.Now().Unix())
}
