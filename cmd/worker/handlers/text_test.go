package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transformTask(op, content string) *Task {
	return &Task{
		RunID:  "r1",
		NodeID: "n1",
		Config: map[string]any{"operation": op},
		Inputs: map[string]any{"content": content},
	}
}

func TestTransform_Operations(t *testing.T) {
	h := NewTransformHandler()

	cases := []struct {
		op      string
		in      string
		want    string
	}{
		{"uppercase", "hello World", "HELLO WORLD"},
		{"lowercase", "Hello World", "hello world"},
		{"title_case", "hello wORLD", "Hello World"},
		{"reverse", "abc", "cba"},
		{"reverse", "héllo", "olléh"}, // rune-safe
	}
	for _, tc := range cases {
		outputs, err := h.Execute(context.Background(), transformTask(tc.op, tc.in))
		require.NoError(t, err, tc.op)
		assert.Equal(t, tc.want, outputs["transformed_text"], tc.op)
		assert.Equal(t, tc.op, outputs["operation"])
	}
}

func TestTransform_UnknownOperationIsConfigError(t *testing.T) {
	h := NewTransformHandler()
	_, err := h.Execute(context.Background(), transformTask("rot13", "x"))
	require.Error(t, err)
	assert.True(t, permanent(err))
	assert.ErrorIs(t, err, ErrConfig)
}

func TestTransform_NoContentIsInputError(t *testing.T) {
	h := NewTransformHandler()
	_, err := h.Execute(context.Background(), &Task{
		Config: map[string]any{"operation": "uppercase"},
		Inputs: map[string]any{},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInput)
}
