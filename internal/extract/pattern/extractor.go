// Package pattern implements the deterministic extraction strategy: ordered
// regular-expression candidates per field, block captures for long free-text
// sections, and digit-run fallbacks for the access key. Fully local, no
// external services.
package pattern

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"

	"github.com/painel-fiscal/nfse-importer/internal/common"
	"github.com/painel-fiscal/nfse-importer/internal/entity"
	"github.com/painel-fiscal/nfse-importer/internal/extract"
	"github.com/painel-fiscal/nfse-importer/internal/textextract"
)

// field candidates are tried in order; first match wins.
var (
	reMunicipality = candidates(
		`(?i)nfse\s+\d+\s+[—-]\s+([^\n]+)`,
		`(?i)município(?: de incidência)?:\s*([^\n]+)`,
		`(?i)local da prestação:\s*([^\n]+)`,
	)
	reAccessKey = candidates(
		`(?i)chave de acesso[:\- ]*([\d\s]+)`,
		`(?i)chave[:\- ]*([\d\s]{30,})`,
	)
	reNumber = candidates(
		`(?i)Número[:\- ]+([\d\.]+)`,
		`(?i)Número da dps[:\- ]+([\d\.]+)`,
	)
	reCompetence  = candidates(`(?i)Compet[êe]ncia[:\- ]+(\d{2}/\d{2}/\d{4})`)
	reEmissionAt  = candidates(`(?i)Data/Hora da emissão[:\- ]+(\d{2}/\d{2}/\d{4}\s+\d{2}:\d{2}:\d{2})`)
	reDPSNumber   = candidates(`(?i)Número da DPS[:\- ]+([\w\d]+)`)
	reDPSSeries   = candidates(`(?i)Série da DPS[:\- ]+([\w\d]+)`)
	reDPSEmission = candidates(
		`(?i)Data/Hora da emissão da DPS[:\- ]+(\d{2}/\d{2}/\d{4}\s+\d{2}:\d{2}:\d{2})`,
		`(?i)Data/Hora da emiss[aã]o da DPS[:\- ]+(\d{2}/\d{2}/\d{4}\s+\d{2}:\d{2}:\d{2})`,
	)
	reEmitterName        = candidates(`(?i)Raz[aã]o Social[:\- ]+(.+)`)
	reEmitterCNPJ        = candidates(`(?i)CNPJ[:\- ]+([\d\./-]+)`)
	reEmitterInscription = candidates(`(?i)Inscriç[aã]o Municipal[:\- ]+([\w\d]+)`)
	rePhone              = candidates(`(?i)Telefone[:\- ]+([^\n]+)`)
	reEmail              = candidates(`(?i)E-mail[:\- ]+([^\s]+)`)
	reAddress            = candidates(`(?i)Endere[cç]o[:\- ]+(.+)`)
	reZipcode            = candidates(`(?i)CEP[:\- ]+([\d\.-]+)`)
	reOptanteSimples     = candidates(`(?i)Optante Simples Nacional[:\- ]+([^\n]+)`)
	reRegimeEspecial     = candidates(`(?i)Regime especial[:\- ]+([^\n]+)`)
	reTakerName          = candidates(`(?i)Nome/Raz[aã]o Social[:\- ]+(.+)`)
	reTakerCNPJ          = candidates(`(?i)(?:CPF|CNPJ)[:\- ]+([\d\./-]+)`)
	reNationalCode       = candidates(`(?i)Código Tributação Nacional[:\- ]+([\w\.\-]+)`)
	reMunicipalCode      = candidates(`(?i)Código Tributação Municipal[:\- ]+([\w\.\-]+)`)
	reServiceLocation    = candidates(`(?i)Local da prestação[:\- ]+([^\n]+)`)
	reServiceValue       = candidates(`(?i)Valor do serviço[:\- ]+R?\$?\s*([\d\.,]+)`)
	reISSBase            = candidates(`(?i)Base de c[aá]lculo ISS[:\- ]+R?\$?\s*([\d\.,]+)`)
	reISSRate            = candidates(`(?i)Alíquota[:\- ]+([\d,\.]+)%`)
	reISSValue           = candidates(`(?i)ISS apurado[:\- ]+R?\$?\s*([\d\.,]+)`)
	reISSRetido          = candidates(`(?i)ISS\s+retido[:\- ]+([^\n]+)`)
	reIncidenceCity      = candidates(`(?i)Município de incidência[:\- ]+([^\n]+)`)
	reTaxation           = candidates(`(?i)Tributa[cç][aã]o[:\- ]+([^\n]+)`)
	reRetainedValue      = candidates(`(?i)IRRF.*retidos[:\- ]+R?\$?\s*([\d\.,]+)`)
	reNetValue           = candidates(`(?i)Valor Líquido da NFSe[:\- ]+R?\$?\s*([\d\.,]+)`)

	reDigitRun     = regexp.MustCompile(`\d{30,}`)
	reNameDigitRun = regexp.MustCompile(`\d+`)
)

func candidates(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

type Extractor struct {
	logger *slog.Logger
}

func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Extract parses normalized invoice text with regex heuristics only.
func (e *Extractor) Extract(_ context.Context, text, fileName string) (*entity.Invoice, error) {
	accessKey := extract.DigitsOnly(search(text, reAccessKey))
	if accessKey == "" {
		var err error
		accessKey, err = fallbackAccessKey(text, fileName)
		if err != nil {
			return nil, err
		}
		e.logger.Debug("access key resolved by fallback", "file", fileName, "key", accessKey)
	}

	inv := &entity.Invoice{
		FileName:         fileName,
		Municipality:     search(text, reMunicipality),
		AccessKey:        accessKey,
		Number:           search(text, reNumber),
		Competence:       extract.ParseBRDate(search(text, reCompetence)),
		EmissionAt:       extract.ParseBRDateTime(search(text, reEmissionAt)),
		DPSNumber:        search(text, reDPSNumber),
		DPSSeries:        search(text, reDPSSeries),
		DPSEmissionAt:    extract.ParseBRDateTime(search(text, reDPSEmission)),

		EmitterName:           search(text, reEmitterName),
		EmitterCNPJ:           search(text, reEmitterCNPJ),
		EmitterInscription:    search(text, reEmitterInscription),
		EmitterPhone:          search(text, rePhone),
		EmitterEmail:          search(text, reEmail),
		EmitterAddress:        search(text, reAddress),
		EmitterZipcode:        search(text, reZipcode),
		EmitterOptanteSimples: extract.ParseBoolToken(search(text, reOptanteSimples), false),
		EmitterRegimeEspecial: search(text, reRegimeEspecial),

		TakerName:    search(text, reTakerName),
		TakerCNPJ:    search(text, reTakerCNPJ),
		TakerPhone:   search(text, rePhone),
		TakerEmail:   search(text, reEmail),
		TakerAddress: search(text, reAddress),
		TakerZipcode: search(text, reZipcode),

		ServiceNationalCode:  search(text, reNationalCode),
		ServiceMunicipalCode: search(text, reMunicipalCode),
		ServiceLocation:      search(text, reServiceLocation),
		ServiceDescription:   searchBlock(text, `Descrição do serviço`),
		ServiceValueCents:    extract.ParseBRDecimalCents(search(text, reServiceValue)),
		ServiceISSBaseCents:  extract.ParseBRDecimalCents(search(text, reISSBase)),
		ServiceISSRateCents:  extract.ParseBRDecimalCents(search(text, reISSRate)),
		ServiceISSValueCents: extract.ParseBRDecimalCents(search(text, reISSValue)),
		ServiceISSRetido:     extract.ParseBoolToken(search(text, reISSRetido), false),

		MunicipalRegime:        search(text, reRegimeEspecial),
		MunicipalIncidenceCity: search(text, reIncidenceCity),
		MunicipalTaxation:      search(text, reTaxation),

		TaxComment:        searchBlock(text, `Tributos aproximados`),
		FederalTaxComment: searchBlock(text, `Tributa[cç][aã]o Federal`),

		TotalsServiceValueCents:  extract.ParseBRDecimalCents(search(text, reServiceValue)),
		TotalsISSRetido:          extract.ParseBoolToken(search(text, reISSRetido), false),
		TotalsRetainedValueCents: extract.ParseBRDecimalCents(search(text, reRetainedValue)),
		TotalsNetValueCents:      extract.ParseBRDecimalCents(search(text, reNetValue)),

		ComplementaryInfo: searchBlock(text, `Informações Complementares`),
	}
	return inv, nil
}

// search tries each candidate in order and returns the first capture.
func search(text string, res []*regexp.Regexp) string {
	for _, re := range res {
		if m := re.FindStringSubmatch(text); m != nil {
			return trimSpaces(m[1])
		}
	}
	return ""
}

// searchBlock captures free text after a label up to the next numbered
// heading or recognizable "Section:" header.
func searchBlock(text, label string) string {
	re := regexp.MustCompile(`(?is)` + label + `[:\-–]*\s*(.+?)(?:\n\d+\.\s|\n[A-Z][^\n]{0,40}:|$)`)
	if m := re.FindStringSubmatch(text); m != nil {
		return textextract.Normalize(m[1])
	}
	return ""
}

// fallbackAccessKey recovers the key from the longest digit run of at least
// 30 digits anywhere in the text (truncated to 44), or, failing that, from
// digit runs of at least 20 characters in the file name.
func fallbackAccessKey(text, fileName string) (string, error) {
	runs := reDigitRun.FindAllString(text, -1)
	if len(runs) == 0 {
		for _, run := range reNameDigitRun.FindAllString(fileName, -1) {
			if len(run) >= 20 {
				runs = append(runs, run)
			}
		}
	}
	if len(runs) == 0 {
		return "", fmt.Errorf("%w: no digit run in text or file name %q", common.ErrMissingAccessKey, fileName)
	}
	sort.Slice(runs, func(i, j int) bool { return len(runs[i]) > len(runs[j]) })
	key := runs[0]
	if len(key) > 44 {
		key = key[:44]
	}
	return key, nil
}

func trimSpaces(s string) string {
	return textextract.Normalize(s)
}
