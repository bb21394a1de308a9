package document

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"
)

// LOINC section codes used in C-CDA structured bodies
const (
	sectionProblems    = "11450-4"
	sectionMedications = "10160-0"
)

// CCDSummary is the extraction output for a Continuity of Care Document
type CCDSummary struct {
	FirstName   string          `json:"first_name"`
	LastName    string          `json:"last_name"`
	Gender      string          `json:"gender,omitempty"`
	DateOfBirth string          `json:"date_of_birth,omitempty"`
	Problems    []CCDProblem    `json:"problems"`
	Medications []CCDMedication `json:"medications"`
}

// CCDProblem is a coded condition from the problems section
type CCDProblem struct {
	Code string `json:"code,omitempty"`
	Name string `json:"name"`
}

// CCDMedication is a medication from the medications section
type CCDMedication struct {
	Name string `json:"name"`
	Dose string `json:"dose,omitempty"`
}

type ccdCode struct {
	Code        string `xml:"code,attr"`
	DisplayName string `xml:"displayName,attr"`
}

type ccdEntry struct {
	Act struct {
		EntryRelationships []struct {
			Observation struct {
				Values []ccdCode `xml:"value"`
			} `xml:"observation"`
		} `xml:"entryRelationship"`
	} `xml:"act"`
	Observation struct {
		Values []ccdCode `xml:"value"`
	} `xml:"observation"`
	SubstanceAdministration struct {
		DoseQuantity struct {
			Value string `xml:"value,attr"`
			Unit  string `xml:"unit,attr"`
		} `xml:"doseQuantity"`
		Consumable struct {
			ManufacturedProduct struct {
				ManufacturedMaterial struct {
					Code ccdCode `xml:"code"`
					Name string  `xml:"name"`
				} `xml:"manufacturedMaterial"`
			} `xml:"manufacturedProduct"`
		} `xml:"consumable"`
	} `xml:"substanceAdministration"`
}

type ccdSection struct {
	Code    ccdCode    `xml:"code"`
	Entries []ccdEntry `xml:"entry"`
}

type clinicalDocument struct {
	XMLName      xml.Name `xml:"ClinicalDocument"`
	RecordTarget struct {
		PatientRole struct {
			Patient struct {
				Name struct {
					Given  []string `xml:"given"`
					Family string   `xml:"family"`
				} `xml:"name"`
				Gender struct {
					Code string `xml:"code,attr"`
				} `xml:"administrativeGenderCode"`
				BirthTime struct {
					Value string `xml:"value,attr"`
				} `xml:"birthTime"`
			} `xml:"patient"`
		} `xml:"patientRole"`
	} `xml:"recordTarget"`
	Component struct {
		StructuredBody struct {
			Components []struct {
				Section ccdSection `xml:"section"`
			} `xml:"component"`
		} `xml:"structuredBody"`
	} `xml:"component"`
}

// ParseCCD extracts patient demographics, problems and medications from a
// C-CDA XML document
func ParseCCD(r io.Reader) (*CCDSummary, error) {
	var doc clinicalDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse CCD XML: %w", err)
	}

	patient := doc.RecordTarget.PatientRole.Patient
	summary := &CCDSummary{
		FirstName:   strings.Join(patient.Name.Given, " "),
		LastName:    patient.Name.Family,
		Gender:      mapGenderCode(patient.Gender.Code),
		Problems:    []CCDProblem{},
		Medications: []CCDMedication{},
	}

	if dob := parseHL7Date(patient.BirthTime.Value); !dob.IsZero() {
		summary.DateOfBirth = dob.Format("2006-01-02")
	}

	for _, comp := range doc.Component.StructuredBody.Components {
		section := comp.Section
		switch section.Code.Code {
		case sectionProblems:
			summary.Problems = append(summary.Problems, extractProblems(section.Entries)...)
		case sectionMedications:
			summary.Medications = append(summary.Medications, extractMedications(section.Entries)...)
		}
	}

	return summary, nil
}

func extractProblems(entries []ccdEntry) []CCDProblem {
	problems := []CCDProblem{}

	addValue := func(v ccdCode) {
		if v.DisplayName == "" && v.Code == "" {
			return
		}
		name := v.DisplayName
		if name == "" {
			name = v.Code
		}
		problems = append(problems, CCDProblem{Code: v.Code, Name: name})
	}

	for _, e := range entries {
		for _, v := range e.Observation.Values {
			addValue(v)
		}
		// Problem concern acts wrap the observation one level down
		for _, rel := range e.Act.EntryRelationships {
			for _, v := range rel.Observation.Values {
				addValue(v)
			}
		}
	}

	return problems
}

func extractMedications(entries []ccdEntry) []CCDMedication {
	medications := []CCDMedication{}

	for _, e := range entries {
		material := e.SubstanceAdministration.Consumable.ManufacturedProduct.ManufacturedMaterial
		name := material.Code.DisplayName
		if name == "" {
			name = strings.TrimSpace(material.Name)
		}
		if name == "" {
			continue
		}

		med := CCDMedication{Name: name}
		dose := e.SubstanceAdministration.DoseQuantity
		if dose.Value != "" {
			med.Dose = strings.TrimSpace(dose.Value + " " + dose.Unit)
		}
		medications = append(medications, med)
	}

	return medications
}

// parseHL7Date reads the leading YYYYMMDD of an HL7 TS value
func parseHL7Date(value string) time.Time {
	if len(value) < 8 {
		return time.Time{}
	}
	t, err := time.Parse("20060102", value[:8])
	if err != nil {
		return time.Time{}
	}
	return t
}

func mapGenderCode(code string) string {
	switch code {
	case "M":
		return "male"
	case "F":
		return "female"
	case "UN":
		return "other"
	default:
		return ""
	}
}
