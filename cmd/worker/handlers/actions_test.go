package handlers

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSlack struct {
	channel string
	text    string
}

func (s *stubSlack) PostMessage(_ context.Context, channel, text string) (string, error) {
	s.channel = channel
	s.text = text
	return "1234.5678", nil
}

func TestSlack_PostsInputContent(t *testing.T) {
	slack := &stubSlack{}
	h := NewSlackHandler(slack, &fakeLogStore{})

	outputs, err := h.Execute(context.Background(), &Task{
		Config: map[string]any{"channel": "#general"},
		Inputs: map[string]any{"content": "hello team"},
	})
	require.NoError(t, err)
	assert.Equal(t, "1234.5678", outputs["timestamp"])
	assert.Equal(t, "#general", outputs["channel"])
	assert.Equal(t, "hello team", outputs["message"])
	assert.Equal(t, "hello team", slack.text)
}

func TestSlack_InputPreferenceOrder(t *testing.T) {
	h := NewSlackHandler(&stubSlack{}, &fakeLogStore{})

	// content wins over text and summary.
	outputs, err := h.Execute(context.Background(), &Task{
		Config: map[string]any{"channel": "#c"},
		Inputs: map[string]any{"summary": "s", "text": "t", "content": "c"},
	})
	require.NoError(t, err)
	assert.Equal(t, "c", outputs["message"])

	// summary is used when content and text are absent.
	outputs, err = h.Execute(context.Background(), &Task{
		Config: map[string]any{"channel": "#c"},
		Inputs: map[string]any{"summary": "s"},
	})
	require.NoError(t, err)
	assert.Equal(t, "s", outputs["message"])
}

func TestSlack_ConfigMessageOverridesInputs(t *testing.T) {
	h := NewSlackHandler(&stubSlack{}, &fakeLogStore{})
	outputs, err := h.Execute(context.Background(), &Task{
		Config: map[string]any{"channel": "#c", "message": "fixed"},
		Inputs: map[string]any{"content": "ignored"},
	})
	require.NoError(t, err)
	assert.Equal(t, "fixed", outputs["message"])
}

func TestSlack_MissingChannelIsConfigError(t *testing.T) {
	h := NewSlackHandler(&stubSlack{}, &fakeLogStore{})
	_, err := h.Execute(context.Background(), &Task{
		Config: map[string]any{},
		Inputs: map[string]any{"content": "hello"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestSlack_FallbackWithoutClient(t *testing.T) {
	logs := &fakeLogStore{}
	h := NewSlackHandler(nil, logs)

	outputs, err := h.Execute(context.Background(), &Task{
		RunID:  "r1",
		NodeID: "n1",
		Config: map[string]any{"channel": "#c"},
		Inputs: map[string]any{"content": "hello"},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(outputs["timestamp"].(string), "simulated_"))
	require.NotEmpty(t, logs.byLevel("WARN"))
}

func TestSheets_ShapesRows(t *testing.T) {
	h := NewSheetsHandler(nil, &fakeLogStore{})

	outputs, err := h.Execute(context.Background(), &Task{
		Config: map[string]any{"spreadsheet_id": "sheet1"},
		Inputs: map[string]any{"data": []any{"a", "b", "c"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, outputs["rows_added"])
	assert.Equal(t, "Sheet1!A1:B3", outputs["updated_range"])
}

func TestSheets_ContentBecomesSingleRow(t *testing.T) {
	h := NewSheetsHandler(nil, &fakeLogStore{})
	outputs, err := h.Execute(context.Background(), &Task{
		Config: map[string]any{"spreadsheet_id": "sheet1", "sheet_name": "Log"},
		Inputs: map[string]any{"content": "one line"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, outputs["rows_added"])
	assert.Equal(t, "Log!A1:B1", outputs["updated_range"])
}

func TestSheets_MissingSpreadsheetIDIsConfigError(t *testing.T) {
	h := NewSheetsHandler(nil, &fakeLogStore{})
	_, err := h.Execute(context.Background(), &Task{
		Config: map[string]any{},
		Inputs: map[string]any{"content": "x"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
}

type stubMailer struct {
	to, subject, body string
}

func (m *stubMailer) Send(_ context.Context, to, subject, body string) (string, error) {
	m.to, m.subject, m.body = to, subject, body
	return "msg-42", nil
}

func TestEmail_SendsContent(t *testing.T) {
	mailer := &stubMailer{}
	h := NewEmailHandler(mailer, &fakeLogStore{})

	outputs, err := h.Execute(context.Background(), &Task{
		Config: map[string]any{"to": "x@y", "subject": "report"},
		Inputs: map[string]any{"content": "body text"},
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-42", outputs["message_id"])
	assert.Equal(t, "x@y", outputs["to"])
	assert.Equal(t, "report", outputs["subject"])
	assert.Equal(t, "body text", mailer.body)
}

func TestEmail_MissingToIsConfigError(t *testing.T) {
	h := NewEmailHandler(nil, &fakeLogStore{})
	_, err := h.Execute(context.Background(), &Task{
		Config: map[string]any{"subject": "s"},
		Inputs: map[string]any{"content": "x"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestNotion_MissingDatabaseIDIsConfigError(t *testing.T) {
	h := NewNotionHandler(nil, &fakeLogStore{})
	_, err := h.Execute(context.Background(), &Task{
		Config: map[string]any{},
		Inputs: map[string]any{"content": "x"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestNotion_FallbackWithoutClient(t *testing.T) {
	h := NewNotionHandler(nil, &fakeLogStore{})
	outputs, err := h.Execute(context.Background(), &Task{
		Config: map[string]any{"database_id": "db1"},
		Inputs: map[string]any{"content": "note"},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(outputs["page_id"].(string), "page_"))
	assert.Equal(t, "db1", outputs["database_id"])
}

func TestTwilio_MissingToIsConfigError(t *testing.T) {
	h := NewTwilioHandler(nil, &fakeLogStore{})
	_, err := h.Execute(context.Background(), &Task{
		Config: map[string]any{},
		Inputs: map[string]any{"content": "x"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestTwilio_FallbackWithoutClient(t *testing.T) {
	h := NewTwilioHandler(nil, &fakeLogStore{})
	outputs, err := h.Execute(context.Background(), &Task{
		Config: map[string]any{"to": "+15550100"},
		Inputs: map[string]any{"content": "ping"},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(outputs["sid"].(string), "SM"))
	assert.Equal(t, "ping", outputs["message"])
}
