package handlers

import (
	"context"
	"strings"
	"unicode"
)

// TransformHandler applies a pure text operation to the input content. It
// never touches a provider, so it has no fallback mode.
type TransformHandler struct{}

func NewTransformHandler() *TransformHandler {
	return &TransformHandler{}
}

func (h *TransformHandler) Kind() NodeKind { return KindTransform }

func (h *TransformHandler) Execute(_ context.Context, task *Task) (map[string]any, error) {
	content := stringInput(task.Inputs, "content")
	if content == "" {
		return nil, inputErr("no content provided for transformation")
	}

	op := stringConfig(task.Config, "operation")
	var transformed string
	switch op {
	case "uppercase":
		transformed = strings.ToUpper(content)
	case "lowercase":
		transformed = strings.ToLower(content)
	case "title_case":
		transformed = titleCase(content)
	case "reverse":
		transformed = reverse(content)
	default:
		return nil, configErr("unknown operation: %q", op)
	}

	return map[string]any{
		"transformed_text": transformed,
		"operation":        op,
	}, nil
}

// titleCase upcases the first letter of each whitespace-separated word and
// lowercases the rest.
func titleCase(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	prev := ' '
	for _, r := range s {
		if unicode.IsSpace(prev) {
			sb.WriteRune(unicode.ToUpper(r))
		} else {
			sb.WriteRune(unicode.ToLower(r))
		}
		prev = r
	}
	return sb.String()
}

func reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
