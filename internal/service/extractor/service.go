// Package extractor harvests search data for a keyword from three sources:
// the autocomplete endpoint, the People Also Ask box, and the People Also
// Search For section of the result page.
package extractor

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/corpix/uarand"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"k8s.io/klog/v2"

	"github.com/serpwatch/serpwatch/internal/pkg/browser"
	"github.com/serpwatch/serpwatch/internal/pkg/textclean"
)

// Result layout matches the JSON artifacts committed to the data repository.
type Result struct {
	Keyword             string   `json:"keyword"`
	Timestamp           string   `json:"timestamp"`
	Autocomplete        []string `json:"autocomplete"`
	PeopleAlsoAsk       []string `json:"people_also_ask"`
	PeopleAlsoSearchFor []string `json:"people_also_search_for"`
}

// Result page markup churns, so each source carries a list of candidate
// selectors; every one that matches contributes.
var paaSelectors = []string{
	"div[jsname='Cpkphb']",
	"div.related-question-pair",
	"div.g9WsWb",
	"div.wQiwMc div.JCzEY",
	"div.wQiwMc div.JlqpRe",
	"div.iDjcJe",
	"div.related-question-pair div.d8lLbf",
	"div.ULSxyf",
	"div.JlqpRe",
}

var paaExpandSelectors = []string{
	"div.iDjcJe",
	"div.wQiwMc",
	"div.g9WsWb",
}

var pasfSelectors = []string{
	"div.k8XOCe",
	"a.k8XOCe",
	"div.s75CSd",
	"div.zVvuGd",
	"div.JjtOHd",
	"a.klitem",
	"div.AJLUJb > div > a",
	"div.s6JM6d a",
	"a.gL9Hy",
	"a.s75CSd",
	"div.s6JM6d > a",
}

var pasfBottomSelectors = []string{
	"div.card-section a",
	"div.s75CSd",
	"a.JjtOHd",
	"div.AJLUJb a",
	"div.tF2Cxc a",
}

// Phrases that mark navigation chrome rather than related keywords.
var pasfSkipPhrases = []string{
	"more", "view all", "see more", "shop now", "curbside", "view all posts",
}

var consentLabels = []string{"Accept all", "I agree", "Accept"}

const defaultSuggestBaseURL = "http://suggestqueries.google.com"

type Options struct {
	Country  string
	Headless bool
	WaitTime time.Duration // element wait budget per page
	MinDelay time.Duration // inter-keyword pause lower bound
	MaxDelay time.Duration // inter-keyword pause upper bound

	// SuggestBaseURL overrides the autocomplete endpoint, used by tests.
	SuggestBaseURL string
}

type Service struct {
	opts    Options
	client  *http.Client
	browser *browser.Browser
}

func New(opts Options) *Service {
	if opts.Country == "" {
		opts.Country = "us"
	}
	if opts.WaitTime <= 0 {
		opts.WaitTime = 10 * time.Second
	}
	if opts.MinDelay <= 0 {
		opts.MinDelay = 3 * time.Second
	}
	if opts.MaxDelay < opts.MinDelay {
		opts.MaxDelay = opts.MinDelay + 2*time.Second
	}
	if opts.SuggestBaseURL == "" {
		opts.SuggestBaseURL = defaultSuggestBaseURL
	}
	return &Service{
		opts:   opts,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Start launches the shared browser. Must be called before Extract.
func (s *Service) Start() error {
	b, err := browser.New(browser.Options{
		Headless: s.opts.Headless,
		Lang:     "en-US",
	})
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	s.browser = b
	return nil
}

func (s *Service) Close() error {
	if s.browser == nil {
		return nil
	}
	err := s.browser.Close()
	s.browser = nil
	return err
}

// Extract harvests all three sources for one keyword. When the suggest
// endpoint fails or comes back empty the search box itself is scraped as a
// fallback; a result page that cannot be opened fails the whole keyword.
func (s *Service) Extract(ctx context.Context, keyword string) (*Result, error) {
	suggestions, err := s.fetchAutocomplete(ctx, keyword)
	if err != nil {
		klog.Warningf("autocomplete failed for %q: %v", keyword, err)
		suggestions = nil
	}
	if len(suggestions) == 0 && s.browser != nil {
		klog.V(6).Infof("autocomplete empty for %q, falling back to the search box", keyword)
		suggestions = s.fallbackAutocomplete(ctx, keyword)
	}

	questions, related, err := s.harvestSearchPage(ctx, keyword)
	if err != nil {
		return nil, err
	}

	if len(questions) == 0 && len(related) == 0 {
		klog.Warningf("no PAA or related searches found for %q", keyword)
	}

	return &Result{
		Keyword:             keyword,
		Timestamp:           time.Now().Format(time.RFC3339),
		Autocomplete:        suggestions,
		PeopleAlsoAsk:       questions,
		PeopleAlsoSearchFor: related,
	}, nil
}

// Throttle pauses for a random duration between MinDelay and MaxDelay.
func (s *Service) Throttle(ctx context.Context) {
	span := s.opts.MaxDelay - s.opts.MinDelay
	delay := s.opts.MinDelay
	if span > 0 {
		delay += time.Duration(rand.Int63n(int64(span)))
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

func (s *Service) harvestSearchPage(ctx context.Context, keyword string) ([]string, []string, error) {
	if s.browser == nil {
		return nil, nil, fmt.Errorf("browser not started")
	}

	searchURL := fmt.Sprintf("https://www.google.com/search?q=%s&gl=%s&hl=en-US",
		url.QueryEscape(keyword), s.opts.Country)

	page, err := s.browser.NewPage(searchURL, uarand.GetRandom())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open search page for %q: %w", keyword, err)
	}
	defer page.Close()
	page = page.Timeout(s.opts.WaitTime)

	s.dismissConsent(ctx, page)

	questions := s.collectPeopleAlsoAsk(ctx, page)
	if len(questions) == 0 {
		klog.V(6).Infof("retrying PAA for %q", keyword)
		sleep(ctx, 2*time.Second)
		if err := page.Navigate(searchURL); err == nil {
			_ = page.WaitLoad()
			questions = s.collectPeopleAlsoAsk(ctx, page)
		}
	}

	related := s.collectPeopleAlsoSearchFor(ctx, page)
	if len(related) == 0 {
		klog.V(6).Infof("retrying related searches for %q", keyword)
		sleep(ctx, 2*time.Second)
		related = s.collectPeopleAlsoSearchFor(ctx, page)
	}

	return questions, related, nil
}

// dismissConsent clicks the cookie consent button when one is shown.
func (s *Service) dismissConsent(ctx context.Context, page *rod.Page) {
	buttons, err := page.Elements("button")
	if err != nil {
		return
	}
	for _, button := range buttons {
		text, err := button.Text()
		if err != nil {
			continue
		}
		for _, label := range consentLabels {
			if strings.Contains(text, label) {
				if err := button.Click(proto.InputMouseButtonLeft, 1); err == nil {
					sleep(ctx, time.Second)
				}
				return
			}
		}
	}
}

func (s *Service) collectPeopleAlsoAsk(ctx context.Context, page *rod.Page) []string {
	sleep(ctx, 2*time.Second)

	questions := s.collectBySelectors(page, paaSelectors, 5, nil)

	// Expanding the first question loads additional ones.
	if len(questions) > 0 {
		for _, selector := range paaExpandSelectors {
			elements, err := page.Elements(selector)
			if err != nil || len(elements) == 0 {
				continue
			}
			if err := elements[0].Click(proto.InputMouseButtonLeft, 1); err != nil {
				break
			}
			sleep(ctx, 2*time.Second)
			questions = append(questions, s.collectBySelectors(page, paaSelectors, 5, nil)...)
			break
		}
	}

	return textclean.DedupeExact(questions)
}

func (s *Service) collectPeopleAlsoSearchFor(ctx context.Context, page *rod.Page) []string {
	sleep(ctx, 2*time.Second)

	related := s.collectBySelectors(page, pasfSelectors, 3, pasfSkipPhrases)

	// Related searches also live at the bottom of the page.
	if _, err := page.Eval(`() => window.scrollTo(0, document.body.scrollHeight)`); err == nil {
		sleep(ctx, 1500*time.Millisecond)
		related = append(related, s.collectBySelectors(page, pasfBottomSelectors, 3, pasfSkipPhrases)...)
	}

	return textclean.Dedupe(related)
}

// collectBySelectors gathers cleaned text from every element matched by any
// of the selectors, keeping strings longer than minLen and free of the skip
// phrases.
func (s *Service) collectBySelectors(page *rod.Page, selectors []string, minLen int, skipPhrases []string) []string {
	var out []string
	for _, selector := range selectors {
		elements, err := page.Elements(selector)
		if err != nil {
			klog.V(6).Infof("selector %q failed: %v", selector, err)
			continue
		}
		for _, element := range elements {
			text, err := element.Text()
			if err != nil {
				continue
			}
			cleaned := textclean.Clean(strings.TrimSpace(text))
			if cleaned == "" || len(cleaned) <= minLen {
				continue
			}
			if matchesAny(cleaned, skipPhrases) {
				continue
			}
			out = append(out, cleaned)
		}
	}
	return out
}

func matchesAny(text string, phrases []string) bool {
	if len(phrases) == 0 {
		return false
	}
	lower := strings.ToLower(text)
	for _, phrase := range phrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
