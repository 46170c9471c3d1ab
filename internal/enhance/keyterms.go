package enhance

// legalKeyterms bias recognition toward courtroom vocabulary. Ordered
// by how often they are misrecognized in hearings.
var legalKeyterms = []string{
	"señoría",
	"ministerio público",
	"fiscalía",
	"imputado",
	"agraviado",
	"flagrancia",
	"prisión preventiva",
	"medida cautelar",
	"código penal",
	"código procesal penal",
	"expediente",
	"audiencia",
	"defensa técnica",
	"sobreseimiento",
	"acusación",
	"apelación",
	"casación",
	"alegatos",
	"perito",
	"careo",
	"juzgado",
	"sala penal",
	"sentencia",
	"oralidad",
}

// Keyterms returns up to limit terms for the recognizer's start
// command. A non-positive limit returns the full list.
func Keyterms(limit int) []string {
	if limit <= 0 || limit >= len(legalKeyterms) {
		out := make([]string, len(legalKeyterms))
		copy(out, legalKeyterms)
		return out
	}
	out := make([]string, limit)
	copy(out, legalKeyterms[:limit])
	return out
}
