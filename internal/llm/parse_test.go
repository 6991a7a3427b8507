package llm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTranslations_Envelope(t *testing.T) {
	raw := `{"translations":[{"id":1,"translatedTitle":"你好"},{"id":2,"translatedTitle":"世界"}]}`
	entries := parseTranslations(raw)
	require.Len(t, entries, 2)
	require.Equal(t, int64(1), entries[0].ID)
	require.Equal(t, "你好", entries[0].text())
}

func TestParseTranslations_BareArray(t *testing.T) {
	raw := `[{"id":7,"translatedText":"评论"}]`
	entries := parseTranslations(raw)
	require.Len(t, entries, 1)
	require.Equal(t, "评论", entries[0].text())
}

func TestParseTranslations_CodeFence(t *testing.T) {
	raw := "```json\n{\"translations\":[{\"id\":3,\"translatedTitle\":\"标题\"}]}\n```"
	entries := parseTranslations(raw)
	require.Len(t, entries, 1)
	require.Equal(t, int64(3), entries[0].ID)
}

func TestParseTranslations_ThinkingPrefix(t *testing.T) {
	raw := "<think>let me translate these…</think>\n[{\"id\":4,\"translatedTitle\":\"想法\"}]"
	entries := parseTranslations(raw)
	require.Len(t, entries, 1)
	require.Equal(t, "想法", entries[0].text())
}

func TestParseTranslations_DropsIncompleteEntries(t *testing.T) {
	raw := `{"translations":[{"id":1,"translatedTitle":"好"},{"id":2},{"translatedTitle":"无编号"}]}`
	entries := parseTranslations(raw)
	require.Len(t, entries, 1)
	require.Equal(t, int64(1), entries[0].ID)
}

func TestParseTranslations_Garbage(t *testing.T) {
	require.Empty(t, parseTranslations("sorry, I cannot help with that"))
	require.Empty(t, parseTranslations(""))
}

func TestPromptHash_TrimsWhitespace(t *testing.T) {
	require.Equal(t, PromptHash("translate this"), PromptHash("  translate this \n"))
	require.NotEqual(t, PromptHash("translate this"), PromptHash("translate that"))
	require.Len(t, PromptHash("x"), 64)
}
