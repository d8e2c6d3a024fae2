package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"datacore/pkg/domain"
)

// Format identifies a rendition of version metadata.
type Format string

const (
	// FormatJSON is the full version record as indented JSON.
	FormatJSON Format = "json"
	// FormatCSV is a flat single-row summary.
	FormatCSV Format = "csv"
	// FormatDataCite is a DataCite-style citation document.
	FormatDataCite Format = "datacite"
)

type renderer func(v domain.DatasetVersion) ([]byte, string, error)

var renderers = map[Format]renderer{
	FormatJSON:     renderJSON,
	FormatCSV:      renderCSV,
	FormatDataCite: renderDataCite,
}

func render(format Format, v domain.DatasetVersion) ([]byte, string, error) {
	fn, ok := renderers[format]
	if !ok {
		return nil, "", fmt.Errorf("unknown export format %s", format)
	}
	return fn(v)
}

// extensionOf must be unique per format: artifact keys derive their only
// format discriminator from it and the blob store refuses overwrites.
func extensionOf(format Format) string {
	switch format {
	case FormatCSV:
		return "csv"
	case FormatDataCite:
		return "datacite.json"
	default:
		return "json"
	}
}

func renderJSON(v domain.DatasetVersion) ([]byte, string, error) {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("marshal json: %w", err)
	}
	return payload, "application/json", nil
}

var csvHeader = []string{"dataset_id", "version", "state", "title", "doi", "authors", "created_at"}

func renderCSV(v domain.DatasetVersion) ([]byte, string, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(csvHeader); err != nil {
		return nil, "", fmt.Errorf("write csv header: %w", err)
	}
	row := []string{
		v.DatasetID,
		strconv.Itoa(v.VersionNumber),
		string(v.State),
		v.Metadata.Title,
		v.Metadata.DOI,
		strings.Join(authorNames(v.Metadata.Authors), "; "),
		v.CreatedAt.Format(time.RFC3339),
	}
	if err := writer.Write(row); err != nil {
		return nil, "", fmt.Errorf("write csv row: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), "text/csv", nil
}

// Minimal DataCite kernel shapes; only the attributes the metadata block can
// fill are emitted.
type dataCiteDoc struct {
	Identifier      dataCiteIdentifier `json:"identifier"`
	Titles          []dataCiteTitle    `json:"titles"`
	Creators        []dataCiteCreator  `json:"creators,omitempty"`
	PublicationYear string             `json:"publicationYear,omitempty"`
	Dates           []dataCiteDate     `json:"dates,omitempty"`
	Version         string             `json:"version"`
	Descriptions    []dataCiteDesc     `json:"descriptions,omitempty"`
}

type dataCiteIdentifier struct {
	Identifier     string `json:"identifier"`
	IdentifierType string `json:"identifierType"`
}

type dataCiteTitle struct {
	Title string `json:"title"`
}

type dataCiteCreator struct {
	Name         string   `json:"name"`
	GivenName    string   `json:"givenName,omitempty"`
	FamilyName   string   `json:"familyName,omitempty"`
	ORCID        string   `json:"nameIdentifier,omitempty"`
	Affiliations []string `json:"affiliation,omitempty"`
}

type dataCiteDate struct {
	Date     string `json:"date"`
	DateType string `json:"dateType"`
}

type dataCiteDesc struct {
	Description     string `json:"description"`
	DescriptionType string `json:"descriptionType"`
}

func renderDataCite(v domain.DatasetVersion) ([]byte, string, error) {
	doc := dataCiteDoc{
		Identifier: dataCiteIdentifier{Identifier: v.Metadata.DOI, IdentifierType: "DOI"},
		Titles:     []dataCiteTitle{{Title: v.Metadata.Title}},
		Version:    strconv.Itoa(v.VersionNumber),
	}
	if !v.CreatedAt.IsZero() {
		doc.PublicationYear = strconv.Itoa(v.CreatedAt.Year())
	}
	if v.Metadata.Description != "" {
		doc.Descriptions = []dataCiteDesc{{Description: v.Metadata.Description, DescriptionType: "Abstract"}}
	}
	for _, person := range v.Metadata.Authors {
		creator := dataCiteCreator{
			Name:       displayName(person),
			GivenName:  person.GivenName,
			FamilyName: person.FamilyName,
			ORCID:      person.ORCID,
		}
		for _, aff := range person.Affiliations {
			creator.Affiliations = append(creator.Affiliations, aff.Organization)
		}
		doc.Creators = append(doc.Creators, creator)
	}
	for _, date := range v.Metadata.Dates {
		doc.Dates = append(doc.Dates, dataCiteDate{
			Date:     date.Date.Format("2006-01-02"),
			DateType: date.Category,
		})
	}
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("marshal datacite: %w", err)
	}
	return payload, "application/vnd.datacite.datacite+json", nil
}

func authorNames(people []domain.Person) []string {
	names := make([]string, 0, len(people))
	for _, p := range people {
		names = append(names, displayName(p))
	}
	return names
}

func displayName(p domain.Person) string {
	if p.GivenName == "" {
		return p.FamilyName
	}
	return p.FamilyName + ", " + p.GivenName
}
