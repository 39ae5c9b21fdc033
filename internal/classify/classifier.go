// Package classify decides whether extracted text represents an NFS-e
// service invoice using keyword density over a fixed domain vocabulary.
package classify

import "strings"

// serviceKeywords is the vocabulary of service-invoice domain terms. A
// document counts one hit per distinct keyword present.
var serviceKeywords = []string{
	"nota fiscal de serviços",
	"nota fiscal de serviço",
	"nota fiscal de serviços eletrônica",
	"nfse",
	"nfs-e",
	"dps",
	"prestador do serviço",
	"tomador do serviço",
	"tomador de serviço",
	"iss",
	"issqn",
	"município de incidência",
	"regime especial",
	"código tributação",
	"serviço prestado",
}

// billingKeywords marks billing/boleto documents. Diagnostic only: a
// positive keyword match always wins, so missed invoices stay recoverable
// while false positives never silently drop a document.
var billingKeywords = []string{
	"fatura",
	"faturamento",
	"boleto",
	"vencimento",
	"código de barras",
	"linha digitável",
}

// MinMatches is the minimum number of distinct keyword hits for a document
// to classify as a service invoice.
const MinMatches = 2

// IsServiceInvoice reports whether normalized text looks like an NFS-e.
func IsServiceInvoice(text string) bool {
	return MatchCount(text) >= MinMatches
}

// MatchCount returns the number of distinct service keywords present.
func MatchCount(text string) int {
	lowered := strings.ToLower(text)
	count := 0
	for _, kw := range serviceKeywords {
		if strings.Contains(lowered, kw) {
			count++
		}
	}
	return count
}

// HasBillingMarkers reports whether the text carries billing vocabulary.
// Used to enrich the message on ignored files, never to veto a match.
func HasBillingMarkers(text string) bool {
	lowered := strings.ToLower(text)
	if lowered == "" {
		return false
	}
	for _, kw := range billingKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}
