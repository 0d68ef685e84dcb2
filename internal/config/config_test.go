package config

import "testing"

func TestParseSources(t *testing.T) {
	sources, err := parseSources("a=Kho1, b=Kho Thuoc")
	if err != nil {
		t.Fatalf("parseSources failed: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("Expected 2 sources, got %d", len(sources))
	}
	if sources[0].Name != "a" || sources[0].SheetName != "Kho1" {
		t.Errorf("First source wrong: %+v", sources[0])
	}
	if sources[1].Name != "b" || sources[1].SheetName != "Kho Thuoc" {
		t.Errorf("Second source wrong: %+v", sources[1])
	}
	if sources[0].HeaderRow != 1 || sources[0].Aliases == nil {
		t.Errorf("Source defaults missing: %+v", sources[0])
	}
}

func TestParseSourcesErrors(t *testing.T) {
	bad := []string{
		"",
		"a",
		"=Kho1",
		"a=",
		"a=Kho1,a=Kho2",
	}
	for _, raw := range bad {
		if _, err := parseSources(raw); err == nil {
			t.Errorf("parseSources(%q) should fail", raw)
		}
	}
}

func TestLoadRequiresSecrets(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("SPREADSHEET_ID", "")
	if _, err := Load(); err == nil {
		t.Error("Load should fail without JWT_SECRET")
	}

	t.Setenv("JWT_SECRET", "test-secret")
	if _, err := Load(); err == nil {
		t.Error("Load should fail without SPREADSHEET_ID")
	}

	t.Setenv("SPREADSHEET_ID", "sheet-id")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "3002" {
		t.Errorf("Default port should be 3002, got %s", cfg.Port)
	}
	if len(cfg.Sheets.Sources) != 2 {
		t.Errorf("Default sources should parse, got %+v", cfg.Sheets.Sources)
	}
}
