package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	os.Chdir(tmpDir)
	t.Cleanup(func() { os.Chdir(oldWd) })
	return tmpDir
}

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "recordlink.yml"), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
}

const minimalConfig = `
parent:
  entity: vendors
child:
  entity: products
relationship:
  lookup_field: vendor_ext_id
  parent_field_name: vendor
  parent_fields: [name]
`

func TestLoadWithoutConfigFileFailsValidation(t *testing.T) {
	chdirTemp(t)

	// Defaults alone carry no entities, so validation must reject them.
	if _, err := Load(); err == nil {
		t.Fatal("expected validation error with no config file")
	}
}

func TestLoadMinimalConfig(t *testing.T) {
	tmpDir := chdirTemp(t)
	writeConfig(t, tmpDir, minimalConfig)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Defaults fill in what the file omits.
	if cfg.Parent.Kind != "memory" {
		t.Errorf("expected default parent kind 'memory', got %q", cfg.Parent.Kind)
	}
	if cfg.Parent.KeyField != "external_id" {
		t.Errorf("expected default key field 'external_id', got %q", cfg.Parent.KeyField)
	}
	if cfg.Child.LocalKeyField != "id" {
		t.Errorf("expected default local key field 'id', got %q", cfg.Child.LocalKeyField)
	}
	if cfg.Relationship.LookupField != "vendor_ext_id" {
		t.Errorf("expected lookup field 'vendor_ext_id', got %q", cfg.Relationship.LookupField)
	}
	if len(cfg.Relationship.ParentFields) != 1 || cfg.Relationship.ParentFields[0] != "name" {
		t.Errorf("unexpected parent fields: %v", cfg.Relationship.ParentFields)
	}
}

func TestLoadFullConfig(t *testing.T) {
	tmpDir := chdirTemp(t)
	writeConfig(t, tmpDir, `
parent:
  kind: postgres
  entity: vendors
  url: postgres://localhost/sync
child:
  kind: redis
  entity: products
  addr: localhost:6379
relationship:
  lookup_field: vendor_ext_id
  parent_field_name: vendor
  parent_fields: [name, region]
  related_list_name: products
  related_list_fields: [name]
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Parent.Kind != "postgres" {
		t.Errorf("expected parent kind 'postgres', got %q", cfg.Parent.Kind)
	}
	if cfg.Child.Addr != "localhost:6379" {
		t.Errorf("expected child addr 'localhost:6379', got %q", cfg.Child.Addr)
	}
	if cfg.Relationship.RelatedListName != "products" {
		t.Errorf("expected related list 'products', got %q", cfg.Relationship.RelatedListName)
	}
}

func TestLoadRejectsUnknownBackendKind(t *testing.T) {
	tmpDir := chdirTemp(t)
	writeConfig(t, tmpDir, `
parent:
  kind: mongodb
  entity: vendors
child:
  entity: products
relationship:
  lookup_field: fk
  parent_field_name: vendor
`)

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "kind") {
		t.Fatalf("expected backend kind error, got %v", err)
	}
}

func TestLoadRejectsPostgresWithoutURL(t *testing.T) {
	tmpDir := chdirTemp(t)
	writeConfig(t, tmpDir, `
parent:
  kind: postgres
  entity: vendors
child:
  entity: products
relationship:
  lookup_field: fk
  parent_field_name: vendor
`)

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "url") {
		t.Fatalf("expected missing url error, got %v", err)
	}
}

func TestLoadRejectsRelatedListWithoutFields(t *testing.T) {
	tmpDir := chdirTemp(t)
	writeConfig(t, tmpDir, `
parent:
  entity: vendors
child:
  entity: products
relationship:
  lookup_field: fk
  parent_field_name: vendor
  related_list_name: products
`)

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "related_list_fields") {
		t.Fatalf("expected related list error, got %v", err)
	}
}
