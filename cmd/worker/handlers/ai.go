package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/aiwf/engine/common/clients"
	"github.com/aiwf/engine/common/models"
)

// contentLimit caps how much document text is sent to the model.
const contentLimit = 4000

// RAGHandler answers a question against ingested document content. When
// the model provider is unconfigured or errors it degrades to a
// deterministic excerpt answer instead of failing the run.
type RAGHandler struct {
	ai   clients.AIClient
	docs DocumentStore
	logs LogStore
}

func NewRAGHandler(ai clients.AIClient, docs DocumentStore, logs LogStore) *RAGHandler {
	return &RAGHandler{ai: ai, docs: docs, logs: logs}
}

func (h *RAGHandler) Kind() NodeKind { return KindRAGQA }

func (h *RAGHandler) Execute(ctx context.Context, task *Task) (map[string]any, error) {
	query := stringConfig(task.Config, "query")
	if query == "" {
		query = stringInput(task.Inputs, "query")
	}
	if query == "" {
		query = "What is this document about?"
	}

	content := stringInput(task.Inputs, "content")
	if content == "" {
		if docID := stringInput(task.Inputs, "document_id"); docID != "" {
			doc, err := h.docs.GetDocument(ctx, docID)
			if err != nil {
				return nil, inputErr("document %s not found", docID)
			}
			content = doc.Content
		}
	}
	if content == "" {
		return nil, inputErr("no document content available for query")
	}

	var answer string
	var citations []string
	degraded := h.ai == nil
	if !degraded {
		prompt := fmt.Sprintf("Based on the following document content, answer the question: %q\n\nDocument content:\n%s\n\nIf the answer cannot be found in the document, say so.",
			query, truncate(content, contentLimit))
		got, err := h.ai.Complete(ctx,
			"You are an assistant that answers questions based on provided document content. Be accurate and cite relevant parts of the document.",
			prompt, 500)
		if err != nil {
			// A provider outage degrades the answer, it never fails the node.
			degraded = true
			h.logFallback(ctx, task, fmt.Sprintf("model request failed, answering with document excerpt: %v", err))
		} else {
			answer = got
			citations = []string{"model response based on document content"}
		}
	} else {
		h.logFallback(ctx, task, "no AI provider configured, answering with document excerpt")
	}
	if degraded {
		answer = fmt.Sprintf("Regarding %q: %s", query, truncate(content, 500))
		citations = []string{"document excerpt"}
	}

	return map[string]any{
		"answer":    answer,
		"citations": citations,
		"query":     query,
	}, nil
}

func (h *RAGHandler) logFallback(ctx context.Context, task *Task, msg string) {
	logFallback(ctx, h.logs, task, msg)
}

// SummarizeHandler produces a summary of the input content. Without a
// working model provider it truncates to the word budget
// deterministically.
type SummarizeHandler struct {
	ai   clients.AIClient
	logs LogStore
}

func NewSummarizeHandler(ai clients.AIClient, logs LogStore) *SummarizeHandler {
	return &SummarizeHandler{ai: ai, logs: logs}
}

func (h *SummarizeHandler) Kind() NodeKind { return KindSummarize }

func (h *SummarizeHandler) Execute(ctx context.Context, task *Task) (map[string]any, error) {
	content := stringInput(task.Inputs, "content")
	if content == "" {
		return nil, inputErr("no content provided for summarization")
	}

	maxLength := intConfig(task.Config, "max_length", 150)
	if maxLength <= 0 {
		return nil, configErr("max_length must be positive, got %d", maxLength)
	}
	summaryType := stringConfig(task.Config, "type")
	if summaryType == "" {
		summaryType = "brief"
	}
	switch summaryType {
	case "brief", "detailed", "bullet_points":
	default:
		return nil, configErr("unknown summary type: %s", summaryType)
	}

	var summary string
	degraded := h.ai == nil
	if !degraded {
		var instruction string
		switch summaryType {
		case "bullet_points":
			instruction = "Summarize the following text in bullet points."
		case "detailed":
			instruction = "Provide a detailed summary of the following text."
		default:
			instruction = "Provide a brief summary of the following text."
		}
		prompt := fmt.Sprintf("%s\n\nText to summarize:\n%s\n\nSummary (at most %d words):",
			instruction, truncate(content, contentLimit), maxLength)
		got, err := h.ai.Complete(ctx,
			fmt.Sprintf("You create %s summaries. Never exceed %d words.", summaryType, maxLength),
			prompt, maxLength*2)
		if err != nil {
			degraded = true
			logFallback(ctx, h.logs, task, fmt.Sprintf("model request failed, truncating content to word budget: %v", err))
		} else {
			summary = clampWords(got, maxLength)
		}
	} else {
		logFallback(ctx, h.logs, task, "no AI provider configured, truncating content to word budget")
	}
	if degraded {
		summary = clampWords(content, maxLength)
	}

	return map[string]any{
		"summary":         summary,
		"original_length": len(content),
		"summary_length":  len(summary),
		"summary_type":    summaryType,
	}, nil
}

// ClassifyHandler assigns the content to one of the configured categories.
// The fallback scores each category by case-insensitive occurrence count
// in the content, breaking ties in favour of the earlier category.
type ClassifyHandler struct {
	ai   clients.AIClient
	logs LogStore
}

func NewClassifyHandler(ai clients.AIClient, logs LogStore) *ClassifyHandler {
	return &ClassifyHandler{ai: ai, logs: logs}
}

func (h *ClassifyHandler) Kind() NodeKind { return KindClassify }

func (h *ClassifyHandler) Execute(ctx context.Context, task *Task) (map[string]any, error) {
	content := stringInput(task.Inputs, "content")
	if content == "" {
		return nil, inputErr("no content provided for classification")
	}

	categories := stringSliceConfig(task.Config, "categories")
	if len(categories) == 0 {
		return nil, configErr("categories must be a non-empty list")
	}

	var category string
	var confidence float64
	allScores := make(map[string]float64, len(categories))

	degraded := h.ai == nil
	if !degraded {
		prompt := fmt.Sprintf("Classify the following text into exactly one of these categories: %s.\nRespond with the category name only.\n\nText:\n%s",
			strings.Join(categories, ", "), truncate(content, contentLimit))
		got, err := h.ai.Complete(ctx, "You are a text classifier. Respond with a single category name.", prompt, 20)
		if err != nil {
			degraded = true
			logFallback(ctx, h.logs, task, fmt.Sprintf("model request failed, classifying by keyword frequency: %v", err))
		} else {
			category = matchCategory(got, categories)
			confidence = 0.9
			if len(categories) == 1 {
				confidence = 1.0
			}
			for _, c := range categories {
				if c == category {
					allScores[c] = confidence
				} else {
					allScores[c] = (1 - confidence) / float64(len(categories)-1)
				}
			}
		}
	} else {
		logFallback(ctx, h.logs, task, "no AI provider configured, classifying by keyword frequency")
	}
	if degraded {
		lower := strings.ToLower(content)
		best := -1
		for _, c := range categories {
			count := strings.Count(lower, strings.ToLower(c))
			allScores[c] = float64(count)
			if count > best {
				best = count
				category = c
			}
		}
		total := 0.0
		for _, s := range allScores {
			total += s
		}
		if total > 0 {
			for c, s := range allScores {
				allScores[c] = s / total
			}
			confidence = allScores[category]
		} else {
			// No category appears in the text; fall back to a uniform
			// distribution with the first category selected.
			for _, c := range categories {
				allScores[c] = 1 / float64(len(categories))
			}
			category = categories[0]
			confidence = allScores[category]
		}
	}

	return map[string]any{
		"category":       category,
		"confidence":     confidence,
		"all_categories": allScores,
	}, nil
}

// matchCategory maps a model reply onto the configured category list,
// tolerating case and surrounding punctuation. Unrecognized replies fall
// back to the first category.
func matchCategory(reply string, categories []string) string {
	cleaned := strings.ToLower(strings.Trim(strings.TrimSpace(reply), ".\"'"))
	for _, c := range categories {
		if strings.EqualFold(c, cleaned) {
			return c
		}
	}
	for _, c := range categories {
		if strings.Contains(cleaned, strings.ToLower(c)) {
			return c
		}
	}
	return categories[0]
}

// clampWords truncates text to at most max whitespace-separated words,
// marking truncation by appending "..." to the final word.
func clampWords(text string, max int) string {
	words := strings.Fields(text)
	if len(words) <= max {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:max], " ") + "..."
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func stringSliceConfig(config map[string]any, key string) []string {
	raw, ok := config[key].([]any)
	if !ok {
		if direct, ok := config[key].([]string); ok {
			return direct
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok || s == "" {
			return nil
		}
		out = append(out, s)
	}
	return out
}

// logFallback records in the run log that a handler ran in degraded mode.
// The flag lives in logs, not outputs, so output schemas stay closed.
func logFallback(ctx context.Context, logs LogStore, task *Task, msg string) {
	if logs == nil {
		return
	}
	_ = logs.Append(ctx, task.RunID, &task.NodeID, models.LogWarn, msg, map[string]any{"fallback": true})
}
