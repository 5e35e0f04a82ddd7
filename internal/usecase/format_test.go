package usecase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/ai-chat-router/pkg/textx"
)

func TestFormatReply(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"header", "## Итоги дня\nтекст", "\n*ИТОГИ ДНЯ*\nтекст"},
		{"bold", "это **важно** и __тоже__", "это *важно* и *тоже*"},
		{"list", "* раз\n  - два\nтри", "• раз\n  • два\nтри"},
		{"newlines", "a\n\n\n\nb", "a\n\nb"},
		{"plain", "просто текст", "просто текст"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatReply(tt.in))
		})
	}
}

func TestReplyChunking(t *testing.T) {
	long := strings.Repeat("я", maxReplyRunes)
	chunks := textx.Chunk(long, chunkRunes)
	assert.Len(t, chunks, 3)
	assert.Equal(t, chunkRunes, len([]rune(chunks[0])))
	assert.Equal(t, 500, len([]rune(chunks[2])))
}
