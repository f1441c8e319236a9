// Package validation checks persisted session artifacts against both the
// typed Go validators and the published JSON schema, so the two never drift.
package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	apibackend "github.com/tesseramedia/clipguard/api/backend"
	"github.com/tesseramedia/clipguard/internal/session"
)

// ArtifactValidationSummary reports fixture validation totals.
type ArtifactValidationSummary struct {
	Total    int
	Failed   int
	Failures []string
}

// ValidateSessionFixtures validates valid/invalid fixture sets for the
// persisted session artifacts.
func ValidateSessionFixtures(root string) (ArtifactValidationSummary, error) {
	return ValidateSessionFixturesWithSchema(filepath.Join("docs", "SessionArtifacts.schema.json"), root)
}

// fixtureKind pairs an artifact directory with its typed validator.
type fixtureKind struct {
	name     string
	validate func([]byte) error
}

// ValidateSessionFixturesWithSchema validates fixture sets using the typed
// validators and the JSON schema. A fixture under valid/ must pass both; a
// fixture under invalid/ must fail both.
func ValidateSessionFixturesWithSchema(schemaPath, root string) (ArtifactValidationSummary, error) {
	summary := ArtifactValidationSummary{}
	compiled, err := compileSchema(schemaPath)
	if err != nil {
		return summary, err
	}

	kinds := []fixtureKind{
		{name: "session_snapshot", validate: validateSessionSnapshot},
		{name: "finding", validate: validateFinding},
		{name: "job_status", validate: validateJobStatus},
	}
	for _, kind := range kinds {
		for _, dir := range []string{"valid", "invalid"} {
			if err := checkFixtureDir(compiled, kind, filepath.Join(root, kind.name, dir), dir == "valid", &summary); err != nil {
				return summary, err
			}
		}
	}
	return summary, nil
}

func checkFixtureDir(schema *jsonschema.Schema, kind fixtureKind, dir string, wantValid bool, summary *ArtifactValidationSummary) error {
	names, err := fixtureFiles(dir)
	if err != nil {
		return err
	}
	for _, name := range names {
		summary.Total++
		path := filepath.Join(dir, name)

		raw, err := os.ReadFile(path)
		if err != nil {
			summary.fail("%s: read error: %v", path, err)
			continue
		}
		typedErr := kind.validate(raw)
		schemaErr := validateAgainstSchema(schema, raw)

		switch {
		case wantValid && (typedErr != nil || schemaErr != nil):
			summary.fail("%s: expected valid, typed_err=%v schema_err=%v", path, typedErr, schemaErr)
		case !wantValid && (typedErr == nil || schemaErr == nil):
			summary.fail("%s: expected invalid by both validators, typed_err=%v schema_err=%v", path, typedErr, schemaErr)
		}
	}
	return nil
}

func fixtureFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read fixtures %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *ArtifactValidationSummary) fail(format string, args ...any) {
	s.Failed++
	s.Failures = append(s.Failures, fmt.Sprintf(format, args...))
}

func compileSchema(schemaPath string) (*jsonschema.Schema, error) {
	absSchemaPath, err := filepath.Abs(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("resolve schema path: %w", err)
	}
	if _, err := os.Stat(absSchemaPath); err != nil {
		return nil, fmt.Errorf("schema file unavailable at %s: %w", absSchemaPath, err)
	}

	compiler := jsonschema.NewCompiler()
	f, err := os.Open(absSchemaPath)
	if err != nil {
		return nil, fmt.Errorf("open schema file: %w", err)
	}
	defer f.Close()
	if err := compiler.AddResource(absSchemaPath, f); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(absSchemaPath)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

func validateAgainstSchema(schema *jsonschema.Schema, raw []byte) error {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	return schema.Validate(payload)
}

func RenderSummary(summary ArtifactValidationSummary) string {
	lines := []string{fmt.Sprintf("session fixtures: total=%d failed=%d", summary.Total, summary.Failed)}
	if len(summary.Failures) > 0 {
		lines = append(lines, "failures:")
		for _, f := range summary.Failures {
			lines = append(lines, "- "+f)
		}
	}
	return strings.Join(lines, "\n")
}

func validateSessionSnapshot(data []byte) error {
	var snapshot session.Snapshot
	if err := strictUnmarshal(data, &snapshot); err != nil {
		return err
	}
	return snapshot.Validate()
}

func validateFinding(data []byte) error {
	var finding apibackend.Finding
	if err := strictUnmarshal(data, &finding); err != nil {
		return err
	}
	return finding.Validate()
}

func validateJobStatus(data []byte) error {
	var status apibackend.StatusResponse
	if err := strictUnmarshal(data, &status); err != nil {
		return err
	}
	return status.Validate()
}

func strictUnmarshal(data []byte, target any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return err
	}
	var extra any
	if err := dec.Decode(&extra); err != io.EOF {
		return fmt.Errorf("unexpected trailing JSON payload")
	}
	return nil
}
