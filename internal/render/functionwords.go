package render

import "strings"

// Spanish function words excluded from low-confidence flagging. Short
// grammatical words are recognized unreliably but corrections to them
// are never worth the editor's attention.
var spanishFunctionWords = map[string]struct{}{
	"el": {}, "la": {}, "los": {}, "las": {}, "un": {}, "una": {},
	"unos": {}, "unas": {}, "de": {}, "del": {}, "al": {}, "a": {},
	"en": {}, "con": {}, "por": {}, "para": {}, "sin": {}, "sobre": {},
	"entre": {}, "hasta": {}, "desde": {}, "ante": {}, "bajo": {},
	"y": {}, "e": {}, "o": {}, "u": {}, "ni": {}, "que": {}, "si": {},
	"no": {}, "se": {}, "su": {}, "sus": {}, "mi": {}, "tu": {},
	"lo": {}, "le": {}, "les": {}, "me": {}, "te": {}, "nos": {},
	"es": {}, "son": {}, "ha": {}, "han": {}, "fue": {}, "era": {},
	"muy": {}, "mas": {}, "más": {}, "ya": {}, "así": {}, "como": {},
	"este": {}, "esta": {}, "ese": {}, "esa": {}, "eso": {}, "esto": {},
}

func isFunctionWord(word string) bool {
	normalized := strings.ToLower(strings.Trim(word, ".,;:¿?¡!\"'"))
	_, ok := spanishFunctionWords[normalized]
	return ok
}
