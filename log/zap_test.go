package log

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(buf *bytes.Buffer) []string {
	s := strings.TrimSpace(buf.String())
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func TestLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, WarnLevel)
	l.Info("hidden")
	l.Warn("shown", String("source", "rig1"))
	out := lines(&buf)
	require.Len(t, out, 1)
	assert.Contains(t, out[0], `"msg":"shown"`)
	assert.Contains(t, out[0], `"source":"rig1"`)

	l.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, l.Level())
	l.Debug("now visible")
	assert.Len(t, lines(&buf), 2)
}

func TestWithFilter(t *testing.T) {
	tests := []struct {
		name  string
		rules string
		want  []string
	}{
		{"no filter", "", []string{"gateway info", "viewer info", "viewer debug"}},
		{"gateway only", "*:gateway", []string{"gateway info"}},
		{"info for all", "info+:*", []string{"gateway info", "viewer info"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l, err := New(&buf, DebugLevel).WithFilter(tt.rules)
			require.NoError(t, err)
			l.Named("gateway").Info("gateway info")
			l.Named("viewer").Info("viewer info")
			l.Named("viewer").Debug("viewer debug")
			got := lines(&buf)
			require.Len(t, got, len(tt.want))
			for i, w := range tt.want {
				assert.Contains(t, got[i], w)
			}
		})
	}
}

func TestContext(t *testing.T) {
	assert.Same(t, Default(), GetFromContext(context.Background()))
	l := New(nil, InfoLevel).Named("ctx")
	ctx := AddToContext(context.Background(), l)
	assert.Same(t, l, GetFromContext(ctx))
}
