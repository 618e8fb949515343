package sra

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/JakeFAU/scqc/internal/pipeline"
)

// ParseExperimentPackages extracts one MetadataRecord per EXPERIMENT_PACKAGE in
// an efetch document. Missing optional text (protocol, title, abstract) is
// recorded as an empty string. Malformed XML is an error.
func ParseExperimentPackages(doc []byte) ([]pipeline.MetadataRecord, error) {
	if len(bytes.TrimSpace(doc)) == 0 {
		return nil, ErrEmptyDocument
	}
	root, err := xmlquery.Parse(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse experiment packages: %w", err)
	}
	if xmlquery.FindOne(root, "/*") == nil {
		return nil, ErrEmptyDocument
	}

	packages := xmlquery.Find(root, "//EXPERIMENT_PACKAGE")
	records := make([]pipeline.MetadataRecord, 0, len(packages))
	for i, pkg := range packages {
		rec := parsePackage(pkg)
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("experiment package %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parsePackage(pkg *xmlquery.Node) pipeline.MetadataRecord {
	rec := pipeline.MetadataRecord{
		Attributes: map[string]string{},
	}

	if exp := xmlquery.FindOne(pkg, "./EXPERIMENT"); exp != nil {
		rec.Experiment = exp.SelectAttr("accession")
		rec.Alias = exp.SelectAttr("alias")
		rec.Protocol = text(xmlquery.FindOne(exp, ".//LIBRARY_CONSTRUCTION_PROTOCOL"))
	}
	if sub := xmlquery.FindOne(pkg, "./SUBMISSION"); sub != nil {
		rec.Submission = sub.SelectAttr("accession")
	}
	if study := xmlquery.FindOne(pkg, "./STUDY"); study != nil {
		rec.Project = study.SelectAttr("accession")
		rec.Title = text(xmlquery.FindOne(study, ".//STUDY_TITLE"))
		rec.Abstract = text(xmlquery.FindOne(study, ".//STUDY_ABSTRACT"))
	}

	for _, run := range xmlquery.Find(pkg, ".//RUN") {
		rec.Runs = append(rec.Runs, run.SelectAttr("accession"))
		rec.Dates = append(rec.Dates, run.SelectAttr("published"))
		for _, member := range xmlquery.Find(run, ".//Member") {
			rec.TaxonIDs = append(rec.TaxonIDs, member.SelectAttr("tax_id"))
			rec.Organisms = append(rec.Organisms, member.SelectAttr("organism"))
		}
	}

	for _, attr := range xmlquery.Find(pkg, ".//SAMPLE_ATTRIBUTE") {
		tag := text(xmlquery.FindOne(attr, "./TAG"))
		if tag == "" {
			continue
		}
		if _, dup := rec.Attributes[tag]; dup {
			continue
		}
		rec.Attributes[tag] = text(xmlquery.FindOne(attr, "./VALUE"))
	}
	return rec
}

func text(n *xmlquery.Node) string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.InnerText())
}
