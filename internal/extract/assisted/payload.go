package assisted

import (
	"fmt"
	"strings"

	"github.com/painel-fiscal/nfse-importer/internal/common"
	"github.com/painel-fiscal/nfse-importer/internal/entity"
	"github.com/painel-fiscal/nfse-importer/internal/extract"
)

// invoicePayload mirrors the JSON shape the completion service is asked to
// produce. Every field except access_key is optional; missing values come
// back as null and turn into zero values on the entity.
type invoicePayload struct {
	FileName             *string  `json:"file_name"`
	Municipality         *string  `json:"municipality"`
	AccessKey            string   `json:"access_key"`
	Number               *string  `json:"number"`
	Competence           *string  `json:"competence"`
	EmissionDatetime     *string  `json:"emission_datetime"`
	DPSNumber            *string  `json:"dps_number"`
	DPSSeries            *string  `json:"dps_series"`
	DPSEmissionDatetime  *string  `json:"dps_emission_datetime"`
	EmitterName          *string  `json:"emitter_name"`
	EmitterCNPJ          *string  `json:"emitter_cnpj"`
	EmitterInscription   *string  `json:"emitter_inscription"`
	EmitterPhone         *string  `json:"emitter_phone"`
	EmitterEmail         *string  `json:"emitter_email"`
	EmitterAddress       *string  `json:"emitter_address"`
	EmitterZipcode       *string  `json:"emitter_zipcode"`
	EmitterOptante       *bool    `json:"emitter_optante_simples"`
	EmitterRegime        *string  `json:"emitter_regime_especial"`
	TakerName            *string  `json:"taker_name"`
	TakerCNPJ            *string  `json:"taker_cnpj"`
	TakerPhone           *string  `json:"taker_phone"`
	TakerEmail           *string  `json:"taker_email"`
	TakerAddress         *string  `json:"taker_address"`
	TakerZipcode         *string  `json:"taker_zipcode"`
	ServiceNationalCode  *string  `json:"service_national_code"`
	ServiceMunicipalCode *string  `json:"service_municipal_code"`
	ServiceLocation      *string  `json:"service_location"`
	ServiceDescription   *string  `json:"service_description"`
	ServiceValue         *float64 `json:"service_value"`
	ServiceBaseCalculo   *float64 `json:"service_base_calculo"`
	ServiceISSRate       *float64 `json:"service_iss_rate"`
	ServiceISSValue      *float64 `json:"service_iss_value"`
	ServiceISSRetido     *bool    `json:"service_iss_retido"`
	MunicipalRegime      *string  `json:"municipal_regime"`
	MunicipalIncidence   *string  `json:"municipal_incidence_city"`
	MunicipalTaxation    *string  `json:"municipal_taxation"`
	TaxComment           *string  `json:"tax_comment"`
	FederalTaxComment    *string  `json:"federal_tax_comment"`
	TotalsServiceValue   *float64 `json:"totals_service_value"`
	TotalsISSRetido      *bool    `json:"totals_iss_retido"`
	TotalsRetainedValue  *float64 `json:"totals_retained_value"`
	TotalsNetValue       *float64 `json:"totals_net_value"`
	ComplementaryInfo    *string  `json:"complementary_info"`
}

func strOf(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

func boolOf(p *bool) bool {
	return p != nil && *p
}

func centsOf(p *float64) int64 {
	if p == nil {
		return 0
	}
	return extract.NumberCents(*p)
}

// toInvoice converts the completion payload into the domain entity. The
// access key is normalized to digits; an empty key after normalization is a
// hard failure because the key drives idempotent persistence.
func (p *invoicePayload) toInvoice(fileName string) (*entity.Invoice, error) {
	key := extract.DigitsOnly(p.AccessKey)
	if key == "" {
		return nil, fmt.Errorf("completion payload for %s: %w", fileName, common.ErrMissingAccessKey)
	}

	inv := &entity.Invoice{
		FileName:     fileName,
		Municipality: strOf(p.Municipality),
		AccessKey:    key,
		Number:       strOf(p.Number),

		DPSNumber: strOf(p.DPSNumber),
		DPSSeries: strOf(p.DPSSeries),

		EmitterName:           strOf(p.EmitterName),
		EmitterCNPJ:           strOf(p.EmitterCNPJ),
		EmitterInscription:    strOf(p.EmitterInscription),
		EmitterPhone:          strOf(p.EmitterPhone),
		EmitterEmail:          strOf(p.EmitterEmail),
		EmitterAddress:        strOf(p.EmitterAddress),
		EmitterZipcode:        strOf(p.EmitterZipcode),
		EmitterOptanteSimples: boolOf(p.EmitterOptante),
		EmitterRegimeEspecial: strOf(p.EmitterRegime),

		TakerName:    strOf(p.TakerName),
		TakerCNPJ:    strOf(p.TakerCNPJ),
		TakerPhone:   strOf(p.TakerPhone),
		TakerEmail:   strOf(p.TakerEmail),
		TakerAddress: strOf(p.TakerAddress),
		TakerZipcode: strOf(p.TakerZipcode),

		ServiceNationalCode:  strOf(p.ServiceNationalCode),
		ServiceMunicipalCode: strOf(p.ServiceMunicipalCode),
		ServiceLocation:      strOf(p.ServiceLocation),
		ServiceDescription:   strOf(p.ServiceDescription),
		ServiceValueCents:    centsOf(p.ServiceValue),
		ServiceISSBaseCents:  centsOf(p.ServiceBaseCalculo),
		ServiceISSRateCents:  centsOf(p.ServiceISSRate),
		ServiceISSValueCents: centsOf(p.ServiceISSValue),
		ServiceISSRetido:     boolOf(p.ServiceISSRetido),

		MunicipalRegime:        strOf(p.MunicipalRegime),
		MunicipalIncidenceCity: strOf(p.MunicipalIncidence),
		MunicipalTaxation:      strOf(p.MunicipalTaxation),

		TaxComment:        strOf(p.TaxComment),
		FederalTaxComment: strOf(p.FederalTaxComment),

		TotalsServiceValueCents:  centsOf(p.TotalsServiceValue),
		TotalsISSRetido:          boolOf(p.TotalsISSRetido),
		TotalsRetainedValueCents: centsOf(p.TotalsRetainedValue),
		TotalsNetValueCents:      centsOf(p.TotalsNetValue),

		ComplementaryInfo: strOf(p.ComplementaryInfo),
	}

	inv.Competence = extract.ParseISODate(strOf(p.Competence))
	inv.EmissionAt = extract.ParseISODateTime(strOf(p.EmissionDatetime))
	inv.DPSEmissionAt = extract.ParseISODateTime(strOf(p.DPSEmissionDatetime))
	return inv, nil
}
