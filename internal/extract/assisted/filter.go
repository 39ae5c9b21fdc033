package assisted

import "strings"

// MaxPromptChars caps the text sent to the completion service.
const MaxPromptChars = 10000

// relevantKeywords anchor the windows kept when shrinking the prompt.
var relevantKeywords = []string{
	"dados gerais",
	"chave de acesso",
	"competência",
	"data/hora",
	"dados da dps",
	"emitente",
	"prestador",
	"tomador",
	"serviço prestado",
	"tributação",
	"iss",
	"pis",
	"cofins",
	"dps",
	"regime especial",
	"reten",
	"valor do serviço",
	"informações complementares",
}

// FilterRelevant keeps only lines within a two-line window around domain
// keywords, deduplicated in order. The reduction is applied only when it
// actually shrinks the text below 60% of the original; the result is then
// hard-truncated to MaxPromptChars.
func FilterRelevant(text string) string {
	reduced := windowLines(text)
	if len(reduced) > MaxPromptChars {
		return reduced[:MaxPromptChars]
	}
	return reduced
}

func windowLines(text string) string {
	lines := strings.Split(text, "\n")
	keep := make([]bool, len(lines))
	any := false
	for idx, line := range lines {
		lower := strings.ToLower(line)
		for _, kw := range relevantKeywords {
			if strings.Contains(lower, kw) {
				for i := max(0, idx-2); i < min(len(lines), idx+3); i++ {
					keep[i] = true
				}
				any = true
				break
			}
		}
	}
	if !any {
		return text
	}

	seen := make(map[string]struct{})
	var deduped []string
	for i, line := range lines {
		if !keep[i] {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		deduped = append(deduped, line)
	}

	reduced := strings.Join(deduped, "\n")
	if len(reduced) < len(text)*6/10 {
		return reduced
	}
	return text
}
