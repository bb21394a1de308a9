package document

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/harborhealth/platform/internal/shared/types"
)

func TestNewDocument(t *testing.T) {
	uploader := types.NewID()

	d, err := NewDocument(TypeReferralPacket, "Referral packet", "from Mercy General", uploader, nil, nil)
	if err != nil {
		t.Fatalf("NewDocument: %v", err)
	}

	if d.ProcessingStatus != ProcessingPending {
		t.Errorf("ProcessingStatus = %s, want pending", d.ProcessingStatus)
	}
	if d.CurrentVersion != 0 {
		t.Errorf("CurrentVersion = %d, want 0", d.CurrentVersion)
	}
	if !strings.HasPrefix(d.DocumentNumber, "REF-") {
		t.Errorf("DocumentNumber = %s, want REF- prefix", d.DocumentNumber)
	}

	if _, err := NewDocument(TypeLab, "", "", uploader, nil, nil); err == nil {
		t.Error("expected error for empty title")
	}
	if _, err := NewDocument(DocumentType("memo"), "Memo", "", uploader, nil, nil); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestAddVersion(t *testing.T) {
	uploader := types.NewID()
	d, err := NewDocument(TypeLab, "CBC results", "", uploader, nil, nil)
	if err != nil {
		t.Fatalf("NewDocument: %v", err)
	}

	content := []byte("lab result content")
	v, err := d.AddVersion("", "application/pdf", int64(len(content)), bytes.NewReader(content), uploader)
	if err != nil {
		t.Fatalf("AddVersion: %v", err)
	}

	sum := sha256.Sum256(content)
	if v.FileHash != hex.EncodeToString(sum[:]) {
		t.Errorf("FileHash = %s, want sha256 of content", v.FileHash)
	}
	if d.CurrentVersion != 1 || v.Version != 1 {
		t.Errorf("version = %d/%d, want 1/1", d.CurrentVersion, v.Version)
	}

	d.ProcessingStatus = ProcessingProcessed
	d.ExtractedData = []byte(`{"x":1}`)

	if _, err := d.AddVersion("", "application/pdf", 4, bytes.NewReader([]byte("next")), uploader); err != nil {
		t.Fatalf("AddVersion second: %v", err)
	}
	if d.ProcessingStatus != ProcessingPending {
		t.Error("new version should reset processing status to pending")
	}
	if d.ExtractedData != nil {
		t.Error("new version should clear extracted data")
	}
	if got := d.LatestVersion(); got == nil || got.Version != 2 {
		t.Errorf("LatestVersion = %+v, want version 2", got)
	}
}

const sampleCCD = `<?xml version="1.0"?>
<ClinicalDocument xmlns="urn:hl7-org:v3">
  <recordTarget>
    <patientRole>
      <patient>
        <name><given>Eleanor</given><given>M</given><family>Vance</family></name>
        <administrativeGenderCode code="F"/>
        <birthTime value="19470312"/>
      </patient>
    </patientRole>
  </recordTarget>
  <component>
    <structuredBody>
      <component>
        <section>
          <code code="11450-4"/>
          <entry>
            <act>
              <entryRelationship>
                <observation>
                  <value code="I50.9" displayName="Heart failure, unspecified"/>
                </observation>
              </entryRelationship>
            </act>
          </entry>
          <entry>
            <observation>
              <value code="E11.9" displayName="Type 2 diabetes mellitus"/>
            </observation>
          </entry>
        </section>
      </component>
      <component>
        <section>
          <code code="10160-0"/>
          <entry>
            <substanceAdministration>
              <doseQuantity value="10" unit="mg"/>
              <consumable>
                <manufacturedProduct>
                  <manufacturedMaterial>
                    <code code="314076" displayName="Lisinopril 10mg tablet"/>
                  </manufacturedMaterial>
                </manufacturedProduct>
              </consumable>
            </substanceAdministration>
          </entry>
        </section>
      </component>
    </structuredBody>
  </component>
</ClinicalDocument>`

func TestParseCCD(t *testing.T) {
	summary, err := ParseCCD(strings.NewReader(sampleCCD))
	if err != nil {
		t.Fatalf("ParseCCD: %v", err)
	}

	if summary.FirstName != "Eleanor M" || summary.LastName != "Vance" {
		t.Errorf("name = %s %s, want Eleanor M Vance", summary.FirstName, summary.LastName)
	}
	if summary.Gender != "female" {
		t.Errorf("gender = %s, want female", summary.Gender)
	}
	if summary.DateOfBirth != "1947-03-12" {
		t.Errorf("dob = %s, want 1947-03-12", summary.DateOfBirth)
	}

	if len(summary.Problems) != 2 {
		t.Fatalf("problems = %d, want 2", len(summary.Problems))
	}
	if summary.Problems[0].Code != "I50.9" || summary.Problems[0].Name != "Heart failure, unspecified" {
		t.Errorf("problem[0] = %+v", summary.Problems[0])
	}

	if len(summary.Medications) != 1 {
		t.Fatalf("medications = %d, want 1", len(summary.Medications))
	}
	med := summary.Medications[0]
	if med.Name != "Lisinopril 10mg tablet" || med.Dose != "10 mg" {
		t.Errorf("medication = %+v", med)
	}
}

func TestParseCCDRejectsInvalidXML(t *testing.T) {
	if _, err := ParseCCD(strings.NewReader("not xml at all")); err == nil {
		t.Error("expected error for invalid XML")
	}
}

func TestParseHL7Date(t *testing.T) {
	if got := parseHL7Date("194703121030"); got.Format("2006-01-02") != "1947-03-12" {
		t.Errorf("parseHL7Date with time component = %v", got)
	}
	if got := parseHL7Date("1947"); !got.IsZero() {
		t.Errorf("short value should yield zero time, got %v", got)
	}
	if got := parseHL7Date("1947AB12"); !got.IsZero() {
		t.Errorf("garbage value should yield zero time, got %v", got)
	}
}
