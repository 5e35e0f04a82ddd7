package persona

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_LoadsAndRenders(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)
	assert.Equal(t, "Сыч", p.BotName())
	assert.Contains(t, p.Reactions(), "👍")
	assert.NotEmpty(t, p.Text("prompts.system", nil))

	out := p.Text("prompts.main_chat", map[string]any{
		"Time":           "Пн, 02.03.2026, 10:00",
		"History":        "Вася: привет",
		"Message":        "как дела",
		"Sender":         "Вася",
		"SearchResults":  "[1] A (https://a)",
		"SearchProvider": "TAVILY",
		"HasProfile":     true,
		"Relation":       p.Relation(90),
	})
	assert.Contains(t, out, "Вася: привет")
	assert.Contains(t, out, "ДАННЫЕ ИЗ ПОИСКА")
	assert.Contains(t, out, "БРАТАН")
	assert.NotContains(t, out, "<no value>")

	assert.Equal(t, "Версия: `1.2.3`", p.Text("commands.version", map[string]any{"Version": "1.2.3"}))
}

func TestText_UnknownKey(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)
	assert.Equal(t, "", p.Text("nope.nothing", nil))
}

func TestRelation(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)
	assert.Contains(t, p.Relation(10), "ВРАГ")
	assert.Contains(t, p.Relation(0), "НЕЙТРАЛЬНО")
	assert.Contains(t, p.Relation(55), "НЕЙТРАЛЬНО")
	assert.Contains(t, p.Relation(80), "БРАТАН")
}

func TestErrorReply_IsDeterministicAndCategorized(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "quota", ErrorCategory("googleapi: Error 429: Quota exceeded"))
	assert.Equal(t, "quota", ErrorCategory("all credentials exhausted"))
	assert.Equal(t, "overload", ErrorCategory("503 overloaded"))
	assert.Equal(t, "safety", ErrorCategory("response blocked by SAFETY"))
	assert.Equal(t, "default", ErrorCategory("EOF"))

	a := p.ErrorReply("503 overloaded")
	assert.Equal(t, a, p.ErrorReply("503 overloaded"))
	assert.Contains(t, p.file.Errors["overload"], a)
	assert.Contains(t, p.file.Errors["default"], p.ErrorReply("weird"))
}

func TestLoad_FromFileAndValidation(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "persona.yaml")
	require.NoError(t, os.WriteFile(good, defaultYAML, 0o600))
	p, err := Load(good)
	require.NoError(t, err)
	assert.NotEmpty(t, p.Keys())

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("bot_name: x\nprompts:\n  system: hi\n"), 0o600))
	_, err = Load(bad)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "missing keys"))

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("prompts: [unclosed"), 0o600))
	_, err = Load(broken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")

	p, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "Сыч", p.BotName())
}
