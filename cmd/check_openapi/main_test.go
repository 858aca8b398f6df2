package main

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestRepositorySpecPasses(t *testing.T) {
	doc, err := loadDoc("../../api/openapi.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := check(doc); err != nil {
		t.Fatalf("check: %v", err)
	}
}

func TestCheckReportsDrift(t *testing.T) {
	const raw = `
paths:
  /:
    get: {}
components:
  schemas:
    ErrorResponse:
      type: object
      required: [error]
      properties:
        error: {type: string}
        code: {type: string}
        requestId: {type: string}
    FileRecord:
      type: object
      properties:
        id: {type: string}
`
	var doc openAPIDoc
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("parse: %v", err)
	}
	err := check(doc)
	if err == nil {
		t.Fatalf("expected drift errors")
	}
	for _, want := range []string{
		`path "/healthz" missing`,
		`ErrorResponse.required must include "code"`,
		"FileRecord.createdAt missing",
		`schema "FileList" missing`,
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestValidateErrorResponseRequiresEveryCode(t *testing.T) {
	s := schema{
		Type:     "object",
		Required: []string{"error", "code"},
		Properties: map[string]schema{
			"error":     {Type: "string"},
			"code":      {Type: "string", Enum: errorCodes[1:]},
			"requestId": {Type: "string"},
		},
	}
	err := validateErrorResponse(s)
	if err == nil || !strings.Contains(err.Error(), errorCodes[0]) {
		t.Fatalf("expected missing %s, got %v", errorCodes[0], err)
	}
}
