// Package scanner implements the ImageScanner port (§4.1, §4.6.1) by
// invoking the `trivy` CLI against a filesystem path or an image reference
// and parsing its JSON report. The report shape is validated against a fixed
// JSON Schema with xeipuuv/gojsonschema before any field is trusted, since a
// scanner binary upgrade changing its output shape must fail loudly rather
// than silently under-count vulnerabilities.
package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"deployctl/internal/model"
)

// Trivy is a ports.ImageScanner backed by the trivy binary.
type Trivy struct {
	schema *gojsonschema.Schema
}

func New() (*Trivy, error) {
	loader := gojsonschema.NewStringLoader(reportSchema)
	schema, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return nil, fmt.Errorf("compiling trivy report schema: %w", err)
	}
	return &Trivy{schema: schema}, nil
}

// reportSchema constrains the subset of trivy's JSON output this package
// depends on: a top-level Results array whose entries carry Vulnerabilities
// with a Severity field.
const reportSchema = `{
	"type": "object",
	"properties": {
		"Results": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"Vulnerabilities": {
						"type": "array",
						"items": {
							"type": "object",
							"properties": {
								"Severity": {"type": "string"}
							}
						}
					}
				}
			}
		}
	}
}`

type trivyReport struct {
	Results []struct {
		Vulnerabilities []struct {
			Severity string `json:"Severity"`
		} `json:"Vulnerabilities"`
	} `json:"Results"`
}

func (t *Trivy) ScanFilesystem(ctx context.Context, path, policy string, timeout time.Duration) (model.ScanReport, error) {
	return t.scan(ctx, []string{"fs", "--format", "json", path}, timeout)
}

func (t *Trivy) ScanImage(ctx context.Context, ref, policy string, timeout time.Duration) (model.ScanReport, error) {
	return t.scan(ctx, []string{"image", "--format", "json", ref}, timeout)
}

func (t *Trivy) scan(ctx context.Context, args []string, timeout time.Duration) (model.ScanReport, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "trivy", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		// timed out: report what we have as partial rather than failing the
		// whole phase, per §4.6.1's partial-scan tolerance.
		return model.ScanReport{Partial: true, ScanTime: time.Now()}, nil
	}
	if err != nil {
		return model.ScanReport{}, fmt.Errorf("trivy: %w: %s", err, stderr.String())
	}

	result, schemaErr := t.schema.Validate(gojsonschema.NewBytesLoader(stdout.Bytes()))
	if schemaErr != nil {
		return model.ScanReport{}, fmt.Errorf("validating trivy report: %w", schemaErr)
	}
	if !result.Valid() {
		return model.ScanReport{}, fmt.Errorf("trivy report does not match expected shape: %v", result.Errors())
	}

	var report trivyReport
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		return model.ScanReport{}, fmt.Errorf("decoding trivy report: %w", err)
	}

	out := model.ScanReport{ScanTime: time.Now()}
	for _, r := range report.Results {
		for _, v := range r.Vulnerabilities {
			switch v.Severity {
			case "CRITICAL":
				out.Critical++
			case "HIGH":
				out.High++
			case "MEDIUM":
				out.Medium++
			case "LOW":
				out.Low++
			}
		}
	}
	return out, nil
}
