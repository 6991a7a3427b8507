package llm

import (
	"encoding/json"
	"strings"
)

// translationEntry is one entry of a batch response. Title and comment
// batches use different field names; both are accepted.
type translationEntry struct {
	ID              int64  `json:"id"`
	TranslatedTitle string `json:"translatedTitle"`
	TranslatedText  string `json:"translatedText"`
}

func (e translationEntry) text() string {
	if e.TranslatedTitle != "" {
		return e.TranslatedTitle
	}
	return e.TranslatedText
}

// parseTranslations extracts batch entries from a raw model response.
// Models wrap output in code fences or an object envelope at their whim;
// entries missing an id or a translation are dropped.
func parseTranslations(raw string) []translationEntry {
	cleaned := stripCodeFence(stripThinking(raw))
	if cleaned == "" {
		return nil
	}

	var envelope struct {
		Translations []translationEntry `json:"translations"`
	}
	if err := json.Unmarshal([]byte(cleaned), &envelope); err == nil && envelope.Translations != nil {
		return filterEntries(envelope.Translations)
	}

	var bare []translationEntry
	if err := json.Unmarshal([]byte(cleaned), &bare); err == nil {
		return filterEntries(bare)
	}
	return nil
}

func filterEntries(entries []translationEntry) []translationEntry {
	out := make([]translationEntry, 0, len(entries))
	for _, e := range entries {
		if e.ID == 0 || e.text() == "" {
			continue
		}
		out = append(out, e)
	}
	return out
}

// stripThinking removes a leading <think>…</think> block emitted by
// reasoning models that do not separate their scratch work.
func stripThinking(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "<think>") {
		return trimmed
	}
	end := strings.Index(trimmed, "</think>")
	if end < 0 {
		return trimmed
	}
	return strings.TrimSpace(trimmed[end+len("</think>"):])
}

// stripCodeFence unwraps a response fenced as ```json … ``` or ``` … ```.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// Drop the language tag line, e.g. "json".
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
