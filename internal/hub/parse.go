package hub

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ogdch/harvester/internal"
)

// XML namespaces used by the DCAT serialization of the harvest feed.
const (
	nsDCT  = "http://purl.org/dc/terms/"
	nsDCAT = "http://www.w3.org/ns/dcat#"
	nsFOAF = "http://xmlns.com/foaf/0.1/"
	nsSPDX = "http://spdx.org/rdf/terms#"
)

type xmlLiteral struct {
	Lang  string `xml:"lang,attr"`
	Value string `xml:",chardata"`
}

type xmlResource struct {
	Resource string `xml:"resource,attr"`
	Value    string `xml:",chardata"`
}

// ref prefers an rdf:resource reference over inline character data.
func (r xmlResource) ref() string {
	if r.Resource != "" {
		return r.Resource
	}
	return strings.TrimSpace(r.Value)
}

type xmlAgent struct {
	Names []xmlLiteral `xml:"http://xmlns.com/foaf/0.1/ name"`
}

type xmlPublisher struct {
	Resource     string   `xml:"resource,attr"`
	Value        string   `xml:",chardata"`
	Organization xmlAgent `xml:"http://xmlns.com/foaf/0.1/ Organization"`
	Agent        xmlAgent `xml:"http://xmlns.com/foaf/0.1/ Agent"`
}

func (p xmlPublisher) identifier() string {
	if p.Resource != "" {
		return p.Resource
	}
	for _, agent := range []xmlAgent{p.Organization, p.Agent} {
		for _, n := range agent.Names {
			if v := strings.TrimSpace(n.Value); v != "" {
				return v
			}
		}
	}
	return strings.TrimSpace(p.Value)
}

type xmlChecksum struct {
	Checksum struct {
		Value string `xml:"http://spdx.org/rdf/terms# checksumValue"`
	} `xml:"http://spdx.org/rdf/terms# Checksum"`
}

type xmlDistribution struct {
	AccessURL   xmlResource  `xml:"http://www.w3.org/ns/dcat# accessURL"`
	DownloadURL xmlResource  `xml:"http://www.w3.org/ns/dcat# downloadURL"`
	MediaType   xmlResource  `xml:"http://www.w3.org/ns/dcat# mediaType"`
	Format      xmlResource  `xml:"http://purl.org/dc/terms/ format"`
	Title       []xmlLiteral `xml:"http://purl.org/dc/terms/ title"`
	Description []xmlLiteral `xml:"http://purl.org/dc/terms/ description"`
	ByteSize    string       `xml:"http://www.w3.org/ns/dcat# byteSize"`
	Checksum    xmlChecksum  `xml:"http://spdx.org/rdf/terms# checksum"`
}

type xmlDistributionRef struct {
	Distribution *xmlDistribution `xml:"http://www.w3.org/ns/dcat# Distribution"`
}

type xmlDataset struct {
	Identifiers   []string             `xml:"http://purl.org/dc/terms/ identifier"`
	Title         []xmlLiteral         `xml:"http://purl.org/dc/terms/ title"`
	Description   []xmlLiteral         `xml:"http://purl.org/dc/terms/ description"`
	AccessRights  xmlResource          `xml:"http://purl.org/dc/terms/ accessRights"`
	Publisher     xmlPublisher         `xml:"http://purl.org/dc/terms/ publisher"`
	Issued        string               `xml:"http://purl.org/dc/terms/ issued"`
	Modified      string               `xml:"http://purl.org/dc/terms/ modified"`
	LandingPage   xmlResource          `xml:"http://www.w3.org/ns/dcat# landingPage"`
	Themes        []xmlResource        `xml:"http://www.w3.org/ns/dcat# theme"`
	Keywords      []xmlLiteral         `xml:"http://www.w3.org/ns/dcat# keyword"`
	Languages     []xmlResource        `xml:"http://purl.org/dc/terms/ language"`
	Distributions []xmlDistributionRef `xml:"http://www.w3.org/ns/dcat# distribution"`
}

type xmlCatalogue struct {
	XMLName  xml.Name     `xml:"RDF"`
	Datasets []xmlDataset `xml:"http://www.w3.org/ns/dcat# Dataset"`
}

// ParseCatalogue decodes one DCAT RDF/XML page into dataset records.
// Datasets without an identifier are dropped; everything else passes
// through unvalidated, validation happens at payload building.
func ParseCatalogue(r io.Reader) ([]Dataset, error) {
	var doc xmlCatalogue
	dec := xml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("hub: decoding catalogue: %w", err)
	}

	var datasets []Dataset
	for _, xds := range doc.Datasets {
		ds := convertDataset(xds)
		if ds.Identifier == "" {
			continue
		}
		datasets = append(datasets, ds)
	}

	return datasets, nil
}

func convertDataset(xds xmlDataset) Dataset {
	ds := Dataset{
		Title:        literalsToText(xds.Title),
		Description:  literalsToText(xds.Description),
		AccessRights: xds.AccessRights.ref(),
		Publisher:    xds.Publisher.identifier(),
		LandingPage:  xds.LandingPage.ref(),
		Issued:       strings.TrimSpace(xds.Issued),
		Modified:     strings.TrimSpace(xds.Modified),
	}

	if len(xds.Identifiers) > 0 {
		ds.Identifier = strings.TrimSpace(xds.Identifiers[0])
	}

	for _, theme := range xds.Themes {
		if v := theme.ref(); v != "" {
			ds.Themes = append(ds.Themes, v)
		}
	}

	for _, kw := range xds.Keywords {
		if v := strings.TrimSpace(kw.Value); v != "" {
			ds.Keywords = append(ds.Keywords, v)
		}
	}

	for _, lang := range xds.Languages {
		if v := lang.ref(); v != "" {
			ds.Languages = append(ds.Languages, v)
		}
	}

	for _, ref := range xds.Distributions {
		if ref.Distribution == nil {
			continue
		}
		ds.Distributions = append(ds.Distributions, convertDistribution(*ref.Distribution))
	}

	return ds
}

func convertDistribution(xd xmlDistribution) Distribution {
	d := Distribution{
		AccessURL:   xd.AccessURL.ref(),
		DownloadURL: xd.DownloadURL.ref(),
		MediaType:   mediaTypeCode(xd.MediaType.ref()),
		Format:      lastSegment(xd.Format.ref()),
		Title:       literalsToText(xd.Title),
		Description: literalsToText(xd.Description),
		Checksum:    strings.TrimSpace(xd.Checksum.Checksum.Value),
	}

	if size := strings.TrimSpace(xd.ByteSize); size != "" {
		if n, err := strconv.ParseInt(size, 10, 64); err == nil {
			d.ByteSize = n
		}
	}

	return d
}

func literalsToText(literals []xmlLiteral) internal.Text {
	text := internal.Text{}
	for _, lit := range literals {
		v := strings.TrimSpace(lit.Value)
		if v == "" {
			continue
		}
		lang := lit.Lang
		if lang == "" {
			lang = "de"
		}
		if _, ok := text[lang]; !ok {
			text[lang] = v
		}
	}
	if len(text) == 0 {
		return nil
	}
	return text
}

// mediaTypeCode collapses IANA registry URIs to their bare media type.
func mediaTypeCode(raw string) string {
	const marker = "media-types/"
	if i := strings.Index(raw, marker); i >= 0 {
		return raw[i+len(marker):]
	}
	return raw
}

func lastSegment(uri string) string {
	if uri == "" {
		return ""
	}
	return uri[strings.LastIndex(uri, "/")+1:]
}
