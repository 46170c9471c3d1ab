package enhance

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// legalTitles maps lowercase phrases to their proper courtroom casing.
// Longer phrases are listed before their prefixes so they win.
var legalTitles = []struct{ lower, proper string }{
	{"su señoría", "Su Señoría"},
	{"señoría", "Señoría"},
	{"ministerio público", "Ministerio Público"},
	{"código procesal penal", "Código Procesal Penal"},
	{"código penal", "Código Penal"},
	{"fiscalía", "Fiscalía"},
	{"defensa técnica", "Defensa Técnica"},
	{"sala penal", "Sala Penal"},
	{"juzgado", "Juzgado"},
	{"corte suprema", "Corte Suprema"},
}

// interrogatives are accented question openers. The accent marks the
// interrogative reading, so a sentence starting with one is a question
// even without closing punctuation.
var interrogatives = map[string]bool{
	"qué": true, "quién": true, "quiénes": true, "cómo": true,
	"cuándo": true, "dónde": true, "adónde": true, "cuál": true,
	"cuáles": true, "cuánto": true, "cuánta": true, "cuántos": true,
	"cuántas": true, "por qué": true,
}

// Cleanup normalizes recognized Spanish text for display: collapsed
// whitespace, sentence capitalization, proper casing for legal titles
// and balanced ¿? pairs on questions.
func Cleanup(text string) string {
	s := normalizeSpacing(text)
	if s == "" {
		return s
	}
	s = applyTitles(s)

	var out []string
	for _, sent := range splitSentences(s) {
		sent = capitalizeFirst(sent)
		sent = balanceQuestion(sent)
		out = append(out, sent)
	}
	return strings.Join(out, " ")
}

// IsQuestion reports whether a sentence reads as a question.
func IsQuestion(sentence string) bool {
	t := strings.TrimSpace(sentence)
	if t == "" {
		return false
	}
	if strings.HasSuffix(t, "?") || strings.HasPrefix(t, "¿") {
		return true
	}
	lower := strings.ToLower(t)
	if strings.HasPrefix(lower, "por qué") {
		return true
	}
	first, _, _ := strings.Cut(lower, " ")
	first = strings.Trim(first, ",.;:")
	return interrogatives[first]
}

func normalizeSpacing(s string) string {
	joined := strings.Join(strings.Fields(s), " ")
	for _, p := range []string{",", ".", ";", ":", "?", "!"} {
		joined = strings.ReplaceAll(joined, " "+p, p)
	}
	return joined
}

func applyTitles(s string) string {
	lower := strings.ToLower(s)
	for _, t := range legalTitles {
		for i := 0; ; {
			j := strings.Index(lower[i:], t.lower)
			if j < 0 {
				break
			}
			start := i + j
			end := start + len(t.lower)
			if wordBoundary(lower, start, end) {
				s = s[:start] + t.proper + s[end:]
				lower = lower[:start] + t.lower + lower[end:]
			}
			i = end
		}
	}
	return s
}

func wordBoundary(s string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:start])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	if end < len(s) {
		r, _ := utf8.DecodeRuneInString(s[end:])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// splitSentences keeps each chunk's terminal punctuation attached.
func splitSentences(s string) []string {
	var out []string
	var cur strings.Builder
	for _, r := range s {
		cur.WriteRune(r)
		if r == '.' || r == '?' || r == '!' {
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}

func capitalizeFirst(sent string) string {
	for i, r := range sent {
		if unicode.IsLetter(r) {
			return sent[:i] + string(unicode.ToUpper(r)) + sent[i+len(string(r)):]
		}
		if r != '¿' && r != '¡' && r != '"' && r != '\'' && !unicode.IsSpace(r) {
			break
		}
	}
	return sent
}

func balanceQuestion(sent string) string {
	if !IsQuestion(sent) {
		return sent
	}
	if !strings.HasSuffix(sent, "?") {
		sent = strings.TrimRight(sent, ".") + "?"
	}
	if !strings.HasPrefix(sent, "¿") {
		sent = "¿" + sent
	}
	return sent
}
