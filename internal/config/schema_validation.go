package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	procschema "github.com/Paintersrp/procspawn/schema"
)

var (
	schemaOnce    sync.Once
	profileSchema *jsonschema.Schema
	schemaErr     error
)

func loadProfileSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource("profile.v1.json", bytes.NewReader(procschema.ProfileV1Schema)); err != nil {
			schemaErr = fmt.Errorf("add profile schema resource: %w", err)
			return
		}
		profileSchema, schemaErr = compiler.Compile("profile.v1.json")
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile profile schema: %w", schemaErr)
		}
	})
	if schemaErr != nil {
		return nil, schemaErr
	}
	return profileSchema, nil
}

func validateAgainstSchema(doc map[string]any) error {
	schema, err := loadProfileSchema()
	if err != nil {
		return fmt.Errorf("load profile schema: %w", err)
	}

	normalized, err := normalizeForSchema(doc)
	if err != nil {
		return fmt.Errorf("prepare profile file for schema validation: %w", err)
	}

	if err := schema.Validate(normalized); err != nil {
		if vErr, ok := err.(*jsonschema.ValidationError); ok {
			return fmt.Errorf("schema validation failed:\n%s", formatValidationError(vErr))
		}
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// normalizeForSchema round-trips doc through JSON so numbers arrive as
// json.Number, the representation the validator expects.
func normalizeForSchema(doc map[string]any) (any, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(doc); err != nil {
		return nil, err
	}
	decoder := json.NewDecoder(bytes.NewReader(buf.Bytes()))
	decoder.UseNumber()
	var out any
	if err := decoder.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// schemaViolation is one leaf failure of the schema, keyed by the dotted
// field path used by Validate.
type schemaViolation struct {
	field   string
	message string
}

// formatValidationError flattens the validator's cause tree into one line
// per leaf failure, sorted by field so a profile's problems stay together.
func formatValidationError(err *jsonschema.ValidationError) string {
	violations := collectViolations(err, nil)
	sort.SliceStable(violations, func(i, j int) bool {
		return violations[i].field < violations[j].field
	})

	var b strings.Builder
	seen := make(map[schemaViolation]struct{}, len(violations))
	for _, v := range violations {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		fmt.Fprintf(&b, "- %s: %s\n", v.field, v.message)
	}
	return strings.TrimRight(b.String(), "\n")
}

func collectViolations(err *jsonschema.ValidationError, out []schemaViolation) []schemaViolation {
	if len(err.Causes) == 0 {
		return append(out, schemaViolation{field: schemaField(err.InstanceLocation), message: err.Message})
	}
	for _, cause := range err.Causes {
		out = collectViolations(cause, out)
	}
	return out
}

// schemaField turns a JSON pointer into the field path Validate reports:
// profiles.<name>.<field>, with array indices as [n].
func schemaField(ptr string) string {
	if ptr == "" || ptr == "/" {
		return "file"
	}
	var parts []string
	for _, segment := range strings.Split(ptr, "/")[1:] {
		segment = strings.ReplaceAll(strings.ReplaceAll(segment, "~1", "/"), "~0", "~")
		if _, err := strconv.Atoi(segment); err == nil && len(parts) > 2 {
			parts[len(parts)-1] += "[" + segment + "]"
			continue
		}
		parts = append(parts, segment)
	}
	if len(parts) >= 2 && parts[0] == "profiles" {
		return profileField(parts[1], parts[2:]...)
	}
	return fieldPath(parts...)
}
