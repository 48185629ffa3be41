package handlers

import (
	"fmt"
	"strings"

	"github.com/aiwf/engine/common/queue"
)

// NodeKind enumerates the closed set of node types the engine dispatches
// on. Adding a node type means adding a constant here, a handler for it,
// and a registry entry; the dispatch switch is compile-checked.
type NodeKind string

const (
	KindIngestPDF     NodeKind = "ingest.pdf"
	KindIngestURL     NodeKind = "ingest.url"
	KindIngestWebhook NodeKind = "ingest.webhook"
	KindRAGQA         NodeKind = "ai.rag_qa"
	KindSummarize     NodeKind = "ai.summarize"
	KindClassify      NodeKind = "ai.classify"
	KindTransform     NodeKind = "text.transform"
	KindSlack         NodeKind = "act.slack"
	KindSheets        NodeKind = "act.sheets"
	KindEmail         NodeKind = "act.email"
	KindNotion        NodeKind = "act.notion"
	KindTwilio        NodeKind = "act.twilio"
)

// AllKinds lists every node kind the engine knows.
var AllKinds = []NodeKind{
	KindIngestPDF, KindIngestURL, KindIngestWebhook,
	KindRAGQA, KindSummarize, KindClassify, KindTransform,
	KindSlack, KindSheets, KindEmail, KindNotion, KindTwilio,
}

// ParseKind validates a node type string.
func ParseKind(s string) (NodeKind, error) {
	for _, k := range AllKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown node type: %s", s)
}

// Queue returns the work queue for the kind's category.
func (k NodeKind) Queue() string {
	switch {
	case strings.HasPrefix(string(k), "ingest."):
		return queue.QueueIngest
	case strings.HasPrefix(string(k), "ai."), strings.HasPrefix(string(k), "text."):
		return queue.QueueAI
	default:
		return queue.QueueActions
	}
}

// ContentKey returns the output key holding the kind's primary textual
// result. During input resolution that value is also surfaced to
// dependents under "content", so a transform's text flows into an action
// node without the workflow author renaming keys. Kinds whose primary
// output is already "content" or that have no textual result return "".
func (k NodeKind) ContentKey() string {
	switch k {
	case KindRAGQA:
		return "answer"
	case KindSummarize:
		return "summary"
	case KindTransform:
		return "transformed_text"
	}
	return ""
}

// ConsumedInputs returns the input keys the kind contractually reads.
// Run-scoped inputs handed to frontier nodes are filtered to this set.
func (k NodeKind) ConsumedInputs() []string {
	switch k {
	case KindIngestPDF, KindIngestURL:
		return nil
	case KindIngestWebhook:
		return []string{"data"}
	case KindRAGQA:
		return []string{"content", "document_id", "query"}
	case KindSummarize, KindClassify, KindTransform:
		return []string{"content"}
	case KindSlack:
		return []string{"content", "text", "summary"}
	case KindSheets:
		return []string{"data", "content"}
	case KindEmail, KindNotion, KindTwilio:
		return []string{"content", "text"}
	}
	return nil
}
