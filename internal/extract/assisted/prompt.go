package assisted

import "strings"

const systemPrompt = "Você extrai dados estruturados de notas fiscais de serviço do Brasil. " +
	"Responda somente com JSON válido, sem comentários e sem markdown."

// buildUserPrompt instructs the completion service to return the fixed
// invoice JSON shape for the given document text.
func buildUserPrompt(text, fileName string) string {
	var b strings.Builder
	b.WriteString("Leia o texto bruto de uma NFSe em português e devolva um JSON com o seguinte formato ")
	b.WriteString("(obrigatoriamente em JSON válido e com datas ISO):\n")
	b.WriteString(`{
  "file_name": "...",
  "municipality": "...",
  "access_key": "...",
  "number": "...",
  "competence": "AAAA-MM-DD",
  "emission_datetime": "AAAA-MM-DDTHH:MM:SS",
  "dps_number": "...",
  "dps_series": "...",
  "dps_emission_datetime": "AAAA-MM-DDTHH:MM:SS",
  "emitter_name": "...",
  "emitter_cnpj": "...",
  "emitter_inscription": "...",
  "emitter_phone": "...",
  "emitter_email": "...",
  "emitter_address": "...",
  "emitter_zipcode": "...",
  "emitter_optante_simples": true,
  "emitter_regime_especial": "...",
  "taker_name": "...",
  "taker_cnpj": "...",
  "taker_phone": "...",
  "taker_email": "...",
  "taker_address": "...",
  "taker_zipcode": "...",
  "service_national_code": "...",
  "service_municipal_code": "...",
  "service_location": "...",
  "service_description": "...",
  "service_value": 0,
  "service_base_calculo": 0,
  "service_iss_rate": 0,
  "service_iss_value": 0,
  "service_iss_retido": false,
  "municipal_regime": "...",
  "municipal_incidence_city": "...",
  "municipal_taxation": "...",
  "tax_comment": "...",
  "federal_tax_comment": "...",
  "totals_service_value": 0,
  "totals_iss_retido": false,
  "totals_retained_value": 0,
  "totals_net_value": 0,
  "complementary_info": "..."
}
`)
	b.WriteString("Retorne apenas o JSON. Texto da nota:\n")
	b.WriteString("Arquivo: ")
	b.WriteString(fileName)
	b.WriteString("\n")
	b.WriteString(text)
	return b.String()
}

// stripFences removes a surrounding markdown code fence some models insist
// on emitting despite the instructions.
func stripFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
