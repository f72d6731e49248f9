package structure

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ogdch/harvester/internal"
	"github.com/ogdch/harvester/internal/structure/formats"
)

const shapeNamespace = "https://www.i14y.admin.ch/resources/datasets/structure/"

// XSD datatypes per inferred property datatype; anything unknown falls
// back to string.
var xsdDatatypes = map[string]string{
	"string":  "xsd:string",
	"integer": "xsd:integer",
	"decimal": "xsd:decimal",
	"gYear":   "xsd:gYear",
	"date":    "xsd:date",
	"boolean": "xsd:boolean",
}

// Turtle renders a structure document as a SHACL node shape with one
// property shape per column, in document order. Output is
// deterministic: languages are emitted sorted.
func Turtle(doc *formats.Document, now time.Time) []byte {
	var buf bytes.Buffer

	buf.WriteString("@prefix sh: <http://www.w3.org/ns/shacl#> .\n")
	buf.WriteString("@prefix dcterms: <http://purl.org/dc/terms/> .\n")
	buf.WriteString("@prefix rdfs: <http://www.w3.org/2000/01/rdf-schema#> .\n")
	buf.WriteString("@prefix xsd: <http://www.w3.org/2001/XMLSchema#> .\n")
	fmt.Fprintf(&buf, "@prefix i14y: <%s> .\n\n", shapeNamespace)

	shapeName := doc.Identifier + "Shape"
	timestamp := now.UTC().Format("2006-01-02T15:04:05")

	fmt.Fprintf(&buf, "i14y:%s a sh:NodeShape ;\n", shapeName)
	writeLangLiterals(&buf, "rdfs:label", doc.Title)
	writeLangLiterals(&buf, "dcterms:description", doc.Description)
	fmt.Fprintf(&buf, "    dcterms:created \"%s\"^^xsd:dateTime ;\n", timestamp)
	fmt.Fprintf(&buf, "    dcterms:modified \"%s\"^^xsd:dateTime ;\n", timestamp)

	for _, prop := range doc.Properties {
		fmt.Fprintf(&buf, "    sh:property i14y:%s\\/%s ;\n", shapeName, prop.Name)
	}

	buf.WriteString("    sh:closed true .\n")

	for i, prop := range doc.Properties {
		propURI := fmt.Sprintf("i14y:%s\\/%s", shapeName, prop.Name)

		fmt.Fprintf(&buf, "\n%s a sh:PropertyShape ;\n", propURI)
		fmt.Fprintf(&buf, "    sh:path %s ;\n", propURI)
		fmt.Fprintf(&buf, "    sh:order %d ;\n", i)
		buf.WriteString("    sh:minCount 1 ;\n")
		buf.WriteString("    sh:maxCount 1 ;\n")

		datatype, ok := xsdDatatypes[prop.Datatype]
		if !ok {
			datatype = "xsd:string"
		}
		fmt.Fprintf(&buf, "    sh:datatype %s ;\n", datatype)

		writeLangLiterals(&buf, "sh:name", prop.Labels)
		// Replace the trailing semicolon of the last emitted line
		// with the closing dot.
		closeStatement(&buf)
	}

	return buf.Bytes()
}

func writeLangLiterals(buf *bytes.Buffer, predicate string, text internal.Text) {
	for _, lang := range sortedLanguages(text) {
		fmt.Fprintf(buf, "    %s %s@%s ;\n", predicate, turtleString(text[lang]), lang)
	}
}

func sortedLanguages(text internal.Text) []string {
	langs := make([]string, 0, len(text))
	for lang := range text {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// turtleString quotes and escapes a literal for turtle output.
func turtleString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func closeStatement(buf *bytes.Buffer) {
	bs := buf.Bytes()
	if i := bytes.LastIndexByte(bs, ';'); i >= 0 {
		buf.Truncate(i)
		buf.WriteString(".\n")
	}
}
