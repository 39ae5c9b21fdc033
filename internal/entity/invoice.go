package entity

import "time"

// Invoice is the structured projection of one NFS-e document. AccessKey is
// the natural idempotency key: re-ingesting the same document updates the
// existing row. Monetary values are integer hundredths (cents) to keep the
// fixed-point semantics of the source documents.
type Invoice struct {
	ID               int64
	FileName         string
	Municipality     string
	CompanyCode      string
	AccessKey        string
	Number           string
	Competence       *time.Time
	CompetencePeriod string
	EmissionAt       *time.Time

	DPSNumber     string
	DPSSeries     string
	DPSEmissionAt *time.Time

	EmitterName           string
	EmitterCNPJ           string
	EmitterInscription    string
	EmitterPhone          string
	EmitterEmail          string
	EmitterAddress        string
	EmitterZipcode        string
	EmitterOptanteSimples bool
	EmitterRegimeEspecial string

	TakerName    string
	TakerCNPJ    string
	TakerPhone   string
	TakerEmail   string
	TakerAddress string
	TakerZipcode string

	ServiceNationalCode  string
	ServiceMunicipalCode string
	ServiceLocation      string
	ServiceDescription   string
	ServiceValueCents    int64
	ServiceISSBaseCents  int64
	ServiceISSRateCents  int64
	ServiceISSValueCents int64
	ServiceISSRetido     bool

	MunicipalRegime        string
	MunicipalIncidenceCity string
	MunicipalTaxation      string

	TaxComment        string
	FederalTaxComment string

	TotalsServiceValueCents  int64
	TotalsISSRetido          bool
	TotalsRetainedValueCents int64
	TotalsNetValueCents      int64

	ComplementaryInfo string

	CreatedAt time.Time
	UpdatedAt time.Time
}
