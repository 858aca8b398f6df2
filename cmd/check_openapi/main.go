package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type openAPIDoc struct {
	Paths      map[string]map[string]yaml.Node `yaml:"paths"`
	Components struct {
		Schemas map[string]schema `yaml:"schemas"`
	} `yaml:"components"`
}

type schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Properties map[string]schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *schema           `yaml:"items"`
	Enum       []string          `yaml:"enum"`
}

// routes served by the drive API; each must be documented.
var routes = []string{
	"GET /",
	"GET /healthz",
	"POST /api/auth/google",
	"POST /api/auth/logout",
	"GET /api/users/me",
	"POST /api/files/upload",
	"GET /api/files",
	"GET /api/files/trash",
	"GET /api/files/{id}",
	"DELETE /api/files/{id}",
	"GET /api/files/{id}/content",
	"PATCH /api/files/{id}/rename",
	"PATCH /api/files/{id}/star",
	"POST /api/files/{id}/trash",
	"POST /api/files/{id}/restore",
	"GET /uploads/{key}",
}

// errorCodes are the values the server writes into ErrorResponse.code.
var errorCodes = []string{
	"AUTH_INVALID_TOKEN",
	"AUTH_INVALID_IDENTITY",
	"FILE_REQUIRED",
	"FILE_INVALID_TYPE",
	"FILE_TOO_LARGE",
	"FILE_NAME_REQUIRED",
	"FILE_NAME_TOO_LONG",
	"FILE_NOT_FOUND",
	"USER_NOT_FOUND",
	"REQUEST_INVALID_JSON",
	"REQUEST_INVALID",
	"REQUEST_ERROR",
	"SYSTEM_RATE_LIMITED",
	"SYSTEM_NOT_FOUND",
	"SYSTEM_INTERNAL_ERROR",
}

// fileFields mirrors the JSON shape of a file record.
var fileFields = map[string]string{
	"id":             "string",
	"userId":         "string",
	"fileName":       "string",
	"fileType":       "string",
	"fileSize":       "integer",
	"filePath":       "string",
	"parentFolderId": "string",
	"isFolder":       "boolean",
	"isStarred":      "boolean",
	"isTrashed":      "boolean",
	"trashedAt":      "string",
	"createdAt":      "string",
	"updatedAt":      "string",
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <openapi.yaml>\n", os.Args[0])
		os.Exit(2)
	}
	doc, err := loadDoc(os.Args[1])
	if err != nil {
		exitErr(err)
	}
	if err := check(doc); err != nil {
		exitErr(err)
	}
	fmt.Println("OpenAPI consistency check passed.")
}

func check(doc openAPIDoc) error {
	var errs []error
	errs = append(errs, checkRoutes(doc)...)

	errResp, err := getSchema(doc, "ErrorResponse")
	if err != nil {
		errs = append(errs, err)
	} else if err := validateErrorResponse(errResp); err != nil {
		errs = append(errs, err)
	}

	file, err := getSchema(doc, "FileRecord")
	if err != nil {
		errs = append(errs, err)
	} else if err := validateFileRecord(file); err != nil {
		errs = append(errs, err)
	}

	list, err := getSchema(doc, "FileList")
	if err != nil {
		errs = append(errs, err)
	} else if err := validateFileList(list); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func loadDoc(path string) (openAPIDoc, error) {
	var doc openAPIDoc
	raw, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func checkRoutes(doc openAPIDoc) []error {
	var errs []error
	for _, route := range routes {
		method, path, _ := strings.Cut(route, " ")
		ops, ok := doc.Paths[path]
		if !ok {
			errs = append(errs, fmt.Errorf("path %q missing", path))
			continue
		}
		if _, ok := ops[strings.ToLower(method)]; !ok {
			errs = append(errs, fmt.Errorf("operation %s missing", route))
		}
	}
	return errs
}

func getSchema(doc openAPIDoc, name string) (schema, error) {
	if doc.Components.Schemas == nil {
		return schema{}, errors.New("components.schemas missing")
	}
	s, ok := doc.Components.Schemas[name]
	if !ok {
		return schema{}, fmt.Errorf("schema %q missing", name)
	}
	return s, nil
}

func validateErrorResponse(s schema) error {
	if s.Type != "object" {
		return errors.New("ErrorResponse must be object")
	}
	required := makeSet(s.Required)
	for _, field := range []string{"error", "code"} {
		if !required[field] {
			return fmt.Errorf("ErrorResponse.required must include %q", field)
		}
	}
	for _, field := range []string{"error", "code", "requestId"} {
		if prop, ok := s.Properties[field]; !ok || prop.Type != "string" {
			return fmt.Errorf("ErrorResponse.%s must be string", field)
		}
	}
	documented := makeSet(s.Properties["code"].Enum)
	var missing []string
	for _, code := range errorCodes {
		if !documented[code] {
			missing = append(missing, code)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("ErrorResponse.code enum missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func validateFileRecord(s schema) error {
	if s.Type != "object" {
		return errors.New("FileRecord must be object")
	}
	names := make([]string, 0, len(fileFields))
	for name := range fileFields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		prop, ok := s.Properties[name]
		if !ok {
			return fmt.Errorf("FileRecord.%s missing", name)
		}
		if prop.Type != fileFields[name] {
			return fmt.Errorf("FileRecord.%s must be %s, got %q", name, fileFields[name], prop.Type)
		}
	}
	for name := range s.Properties {
		if _, ok := fileFields[name]; !ok {
			return fmt.Errorf("FileRecord.%s is not part of the file record", name)
		}
	}
	return nil
}

func validateFileList(s schema) error {
	items, ok := s.Properties["items"]
	if !ok || items.Type != "array" || items.Items == nil || strings.TrimSpace(items.Items.Ref) != "#/components/schemas/FileRecord" {
		return errors.New("FileList.items must be an array of FileRecord")
	}
	if count, ok := s.Properties["count"]; !ok || count.Type != "integer" {
		return errors.New("FileList.count must be integer")
	}
	return nil
}

func makeSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out[item] = true
	}
	return out
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
