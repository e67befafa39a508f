package assistant

import "strings"

// Recognizer выделяет обращения к ассистенту в тексте сообщения.
// Маркер настраивается: исходные поверхности использовали разные префиксы,
// канонического токена нет.
type Recognizer struct {
	Mention string
}

// Match сообщает, адресовано ли сообщение ассистенту, и возвращает текст
// запроса без маркера.
func (r Recognizer) Match(content string) (string, bool) {
	if r.Mention == "" {
		return "", false
	}
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, r.Mention) {
		return "", false
	}
	return strings.TrimSpace(trimmed[len(r.Mention):]), true
}
