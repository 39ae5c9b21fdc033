package assisted

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildInvoiceJSONSchema returns the schema (draft 2020-12 subset) the
// completion service must satisfy: monetary fields as numbers, dates in ISO
// form, withholding flags as booleans.
func BuildInvoiceJSONSchema() map[string]any {
	str := func() map[string]any { return map[string]any{"type": []string{"string", "null"}} }
	num := func() map[string]any { return map[string]any{"type": []string{"number", "null"}} }
	boolean := func() map[string]any { return map[string]any{"type": []string{"boolean", "null"}} }

	props := map[string]any{
		"file_name":              str(),
		"municipality":           str(),
		"access_key":             map[string]any{"type": "string", "minLength": 1},
		"number":                 str(),
		"competence":             str(),
		"emission_datetime":      str(),
		"dps_number":             str(),
		"dps_series":             str(),
		"dps_emission_datetime":  str(),
		"emitter_name":           str(),
		"emitter_cnpj":           str(),
		"emitter_inscription":    str(),
		"emitter_phone":          str(),
		"emitter_email":          str(),
		"emitter_address":        str(),
		"emitter_zipcode":        str(),
		"emitter_optante_simples": boolean(),
		"emitter_regime_especial": str(),
		"taker_name":             str(),
		"taker_cnpj":             str(),
		"taker_phone":            str(),
		"taker_email":            str(),
		"taker_address":          str(),
		"taker_zipcode":          str(),
		"service_national_code":  str(),
		"service_municipal_code": str(),
		"service_location":       str(),
		"service_description":    str(),
		"service_value":          num(),
		"service_base_calculo":   num(),
		"service_iss_rate":       num(),
		"service_iss_value":      num(),
		"service_iss_retido":     boolean(),
		"municipal_regime":       str(),
		"municipal_incidence_city": str(),
		"municipal_taxation":     str(),
		"tax_comment":            str(),
		"federal_tax_comment":    str(),
		"totals_service_value":   num(),
		"totals_iss_retido":      boolean(),
		"totals_retained_value":  num(),
		"totals_net_value":       num(),
		"complementary_info":     str(),
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             []string{"access_key"},
	}
}

// ValidateJSONAgainstSchema validates raw JSON content against the schema
// map before it is trusted for persistence.
func ValidateJSONAgainstSchema(schema map[string]any, content []byte) error {
	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", bytes.NewReader(schemaBytes)); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(content, &doc); err != nil {
		return fmt.Errorf("decode content: %w", err)
	}
	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	return nil
}
