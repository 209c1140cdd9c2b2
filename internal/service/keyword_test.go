package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/serpwatch/serpwatch/internal/repository"
)

func TestKeywordCreateAndDuplicate(t *testing.T) {
	svc := NewKeywordService(repository.NewKeywordRepository(setupDB(t)))

	keyword, err := svc.Create("  Best Coffee Maker  ")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if keyword.Text != "Best Coffee Maker" {
		t.Fatalf("text not trimmed: %q", keyword.Text)
	}
	if keyword.Slug != "best_coffee_maker" {
		t.Fatalf("unexpected slug: %q", keyword.Slug)
	}
	if !keyword.Active {
		t.Fatalf("new keyword should be active")
	}

	if _, err := svc.Create("Best Coffee Maker"); err == nil {
		t.Fatalf("duplicate create should fail")
	}

	if _, err := svc.Create("   "); err == nil {
		t.Fatalf("blank keyword should fail")
	}
}

func TestKeywordUpsertReactivates(t *testing.T) {
	svc := NewKeywordService(repository.NewKeywordRepository(setupDB(t)))

	keyword, err := svc.Create("standing desk")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if _, err := svc.SetActive(keyword.ID, false); err != nil {
		t.Fatalf("SetActive error: %v", err)
	}

	upserted, isNew, err := svc.Upsert("standing desk")
	if err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	if isNew {
		t.Fatalf("existing keyword should not be reported as new")
	}
	if !upserted.Active {
		t.Fatalf("upsert should reactivate the keyword")
	}
}

func TestImportFile(t *testing.T) {
	svc := NewKeywordService(repository.NewKeywordRepository(setupDB(t)))

	path := filepath.Join(t.TempDir(), "keywords.txt")
	content := "coffee maker\n\n# comment line\nstanding desk\ncoffee maker\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write file error: %v", err)
	}

	created, err := svc.ImportFile(path)
	if err != nil {
		t.Fatalf("ImportFile error: %v", err)
	}
	if created != 2 {
		t.Fatalf("expected 2 new keywords, got %d", created)
	}

	keywords, err := svc.List()
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(keywords) != 2 {
		t.Fatalf("expected 2 keywords, got %d", len(keywords))
	}
}
