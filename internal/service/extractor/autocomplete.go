package extractor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/corpix/uarand"
	"github.com/tidwall/gjson"
	"k8s.io/klog/v2"

	"github.com/serpwatch/serpwatch/internal/pkg/textclean"
)

// fetchAutocomplete queries the suggestion endpoint with the firefox client,
// which returns a plain JSON array instead of the protobuf-ish default.
func (s *Service) fetchAutocomplete(ctx context.Context, keyword string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/complete/search?client=firefox&hl=en-US&gl=%s&q=%s",
		s.opts.SuggestBaseURL, strings.ToUpper(s.opts.Country), url.QueryEscape(keyword))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build autocomplete request: %w", err)
	}
	req.Header.Set("User-Agent", uarand.GetRandom())

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("autocomplete request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("autocomplete returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read autocomplete response: %w", err)
	}

	// Response shape is ["<query>", ["suggestion", ...], ...].
	var suggestions []string
	for _, item := range gjson.GetBytes(body, "1").Array() {
		if text := strings.TrimSpace(item.String()); text != "" {
			suggestions = append(suggestions, text)
		}
	}
	return suggestions, nil
}

// fallbackAutocomplete types the keyword into the search box and reads the
// suggestion dropdown, for when the suggest endpoint yields nothing.
func (s *Service) fallbackAutocomplete(ctx context.Context, keyword string) []string {
	page, err := s.browser.NewPage("https://www.google.com", uarand.GetRandom())
	if err != nil {
		klog.Warningf("autocomplete fallback failed to open page for %q: %v", keyword, err)
		return nil
	}
	defer page.Close()
	page = page.Timeout(s.opts.WaitTime)

	s.dismissConsent(ctx, page)

	box, err := page.Element("textarea[name='q'], input[name='q']")
	if err != nil {
		klog.V(6).Infof("search box not found for %q: %v", keyword, err)
		return nil
	}
	if err := box.Input(keyword); err != nil {
		klog.V(6).Infof("search box input failed for %q: %v", keyword, err)
		return nil
	}
	sleep(ctx, 2*time.Second)

	elements, err := page.Elements("li.sbct")
	if err != nil {
		return nil
	}
	texts := make([]string, 0, len(elements))
	for _, element := range elements {
		if text, err := element.Text(); err == nil {
			texts = append(texts, text)
		}
	}
	return filterSuggestions(texts, keyword)
}

// filterSuggestions drops blanks, the query itself and duplicates from the
// scraped dropdown entries.
func filterSuggestions(texts []string, keyword string) []string {
	var out []string
	for _, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" || strings.EqualFold(text, keyword) {
			continue
		}
		out = append(out, text)
	}
	return textclean.Dedupe(out)
}
