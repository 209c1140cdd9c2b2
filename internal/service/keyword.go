package service

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"k8s.io/klog/v2"

	"github.com/serpwatch/serpwatch/internal/model"
	"github.com/serpwatch/serpwatch/internal/pkg/textclean"
	"github.com/serpwatch/serpwatch/internal/repository"
)

type KeywordService struct {
	repo repository.KeywordRepository
}

func NewKeywordService(repo repository.KeywordRepository) *KeywordService {
	return &KeywordService{repo: repo}
}

// Create adds a new keyword. The text is trimmed and must be unique.
func (s *KeywordService) Create(text string) (*model.Keyword, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("keyword text is empty")
	}

	if existing, err := s.repo.GetByText(text); err == nil && existing != nil {
		return nil, fmt.Errorf("keyword %q already exists", text)
	}

	keyword := &model.Keyword{
		Text:   text,
		Slug:   textclean.Slug(text),
		Active: true,
	}
	if err := s.repo.Create(keyword); err != nil {
		return nil, fmt.Errorf("failed to create keyword: %w", err)
	}
	return keyword, nil
}

// Upsert returns the existing keyword for text, reactivating it when needed,
// or creates a new one.
func (s *KeywordService) Upsert(text string) (*model.Keyword, bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false, fmt.Errorf("keyword text is empty")
	}

	if existing, err := s.repo.GetByText(text); err == nil && existing != nil {
		if !existing.Active {
			existing.Active = true
			if err := s.repo.Save(existing); err != nil {
				return nil, false, err
			}
		}
		return existing, false, nil
	}

	keyword := &model.Keyword{
		Text:   text,
		Slug:   textclean.Slug(text),
		Active: true,
	}
	if err := s.repo.Create(keyword); err != nil {
		return nil, false, fmt.Errorf("failed to create keyword: %w", err)
	}
	return keyword, true, nil
}

func (s *KeywordService) Get(id uint) (*model.Keyword, error) {
	return s.repo.Get(id)
}

func (s *KeywordService) List() ([]model.Keyword, error) {
	return s.repo.List()
}

func (s *KeywordService) ListActive() ([]model.Keyword, error) {
	return s.repo.ListActive()
}

// SetActive toggles whether a keyword participates in runs.
func (s *KeywordService) SetActive(id uint, active bool) (*model.Keyword, error) {
	keyword, err := s.repo.Get(id)
	if err != nil {
		return nil, err
	}
	keyword.Active = active
	if err := s.repo.Save(keyword); err != nil {
		return nil, err
	}
	return keyword, nil
}

func (s *KeywordService) Delete(id uint) error {
	return s.repo.Delete(id)
}

// ImportFile loads keywords from a text file, one per line. Blank lines and
// lines starting with # are skipped. Returns how many keywords were new.
func (s *KeywordService) ImportFile(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open keywords file: %w", err)
	}
	defer file.Close()

	created := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		_, isNew, err := s.Upsert(line)
		if err != nil {
			klog.Warningf("skipping keyword %q: %v", line, err)
			continue
		}
		if isNew {
			created++
		}
	}
	if err := scanner.Err(); err != nil {
		return created, fmt.Errorf("failed to read keywords file: %w", err)
	}

	klog.V(6).Infof("imported keywords from %s: %d new", path, created)
	return created, nil
}
