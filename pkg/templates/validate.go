// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package templates

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/mcpruntime/pkg/errors"
)

// ValidationResult distinguishes hard structural errors from advisory
// placeholder warnings. A template with warnings but no errors is usable.
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

// Valid reports whether the template can be used for rendering.
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Err returns a template error summarizing the structural problems, or nil
// when the template is valid.
func (r *ValidationResult) Err() error {
	if r.Valid() {
		return nil
	}
	return errors.NewTemplateError(fmt.Sprintf("invalid deployment template: %v", r.Errors), nil)
}

// Validate checks a raw override template before placeholder substitution.
// Structural requirements (parseability, apiVersion, kind, metadata, at
// least one container) produce errors; placeholder problems only produce
// warnings because unknown tokens pass through rendering harmlessly.
func Validate(rawTemplate string) *ValidationResult {
	result := &ValidationResult{}

	var doc map[string]any
	if err := yaml.Unmarshal([]byte(rawTemplate), &doc); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("template is not valid YAML: %v", err))
		return result
	}
	if doc == nil {
		result.Errors = append(result.Errors, "template is empty")
		return result
	}

	if v, _ := doc["apiVersion"].(string); v != ExpectedAPIVersion {
		result.Errors = append(result.Errors,
			fmt.Sprintf("apiVersion must be %q, got %q", ExpectedAPIVersion, v))
	}
	if k, _ := doc["kind"].(string); k != ExpectedKind {
		result.Errors = append(result.Errors,
			fmt.Sprintf("kind must be %q, got %q", ExpectedKind, k))
	}
	if _, ok := doc["metadata"].(map[string]any); !ok {
		result.Errors = append(result.Errors, "metadata section is missing")
	}

	if !hasContainers(doc) {
		result.Errors = append(result.Errors,
			"spec.template.spec.containers must declare at least one container")
	}

	for _, token := range ScanTokens(rawTemplate) {
		if warning := token.Validate(); warning != "" {
			result.Warnings = append(result.Warnings, warning)
		}
	}

	return result
}

// hasContainers walks the raw document down to
// spec.template.spec.containers and reports a non-empty list.
func hasContainers(doc map[string]any) bool {
	node := doc
	for _, key := range []string{"spec", "template", "spec"} {
		next, ok := node[key].(map[string]any)
		if !ok {
			return false
		}
		node = next
	}
	containers, ok := node["containers"].([]any)
	return ok && len(containers) > 0
}
