package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/bookshelf-etl/config"
	"github.com/aluiziolira/bookshelf-etl/models"
	"github.com/aluiziolira/bookshelf-etl/parser"
	"github.com/gocolly/colly/v2"
)

// Recorder receives extraction measurements. A nil Recorder is allowed.
type Recorder interface {
	ObserveFetch(status string, d time.Duration)
	AddExtracted(n int)
}

// Request describes one catalog page fetch.
type Request struct {
	URL          string
	Headers      map[string]string
	Timeout      time.Duration
	MaxItems     int
	ItemSelector string
}

// Extractor issues the catalog request and selects listing items.
type Extractor struct {
	transport http.RoundTripper
	recorder  Recorder
}

// NewExtractor builds an extractor. recorder may be nil.
func NewExtractor(recorder Recorder) *Extractor {
	return &Extractor{recorder: recorder}
}

// WithTransport replaces the HTTP transport used for every request.
func (e *Extractor) WithTransport(rt http.RoundTripper) *Extractor {
	e.transport = rt
	return e
}

// Extract fetches req.URL once and returns at most req.MaxItems listing
// fragments in document order. Failures are returned as ErrTransport,
// ErrHTTPStatus or ErrParse and are not retried here.
func (e *Extractor) Extract(ctx context.Context, req Request) ([]*goquery.Selection, error) {
	if err := ctx.Err(); err != nil {
		return nil, ErrTransport{URL: req.URL, Err: err}
	}

	collector := colly.NewCollector()
	collector.IgnoreRobotsTxt = true
	collector.ParseHTTPErrorResponse = true
	collector.SetRequestTimeout(req.Timeout)
	if e.transport != nil {
		collector.WithTransport(e.transport)
	}

	var response *colly.Response
	collector.OnResponse(func(r *colly.Response) {
		response = r
	})

	hdr := http.Header{}
	for k, v := range req.Headers {
		hdr.Set(k, v)
	}

	start := time.Now()
	err := collector.Request(http.MethodGet, req.URL, nil, nil, hdr)
	elapsed := time.Since(start)
	if err != nil {
		e.observe("error", elapsed)
		return nil, ErrTransport{URL: req.URL, Err: err}
	}
	if response == nil {
		e.observe("error", elapsed)
		return nil, ErrTransport{URL: req.URL, Err: errors.New("no response received")}
	}
	e.observe(strconv.Itoa(response.StatusCode), elapsed)

	slog.Debug("catalog fetched",
		slog.String("url", req.URL),
		slog.Int("status", response.StatusCode),
		slog.Int("bytes", len(response.Body)),
		slog.Duration("duration", elapsed),
	)

	if response.StatusCode >= http.StatusBadRequest {
		return nil, ErrHTTPStatus{URL: req.URL, StatusCode: response.StatusCode}
	}

	if response.Headers != nil {
		if err := checkMarkup(response.Headers.Get("Content-Type")); err != nil {
			return nil, ErrParse{Err: err}
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(response.Body))
	if err != nil {
		return nil, ErrParse{Err: err}
	}

	fragments := selectItems(doc.Selection, req.ItemSelector, req.MaxItems)
	if e.recorder != nil {
		e.recorder.AddExtracted(len(fragments))
	}
	return fragments, nil
}

// Fetch runs Extract with the configured request and normalizes every
// fragment into a book record.
func (e *Extractor) Fetch(ctx context.Context, cfg *config.Config) (models.Batch, error) {
	origin, err := parser.Origin(cfg.SourceURL)
	if err != nil {
		return nil, fmt.Errorf("source origin: %w", err)
	}

	fragments, err := e.Extract(ctx, RequestFromConfig(cfg))
	if err != nil {
		return nil, err
	}
	return parser.NormalizeAll(fragments, origin, cfg.Selectors), nil
}

// RequestFromConfig builds the fetch request described by cfg.
func RequestFromConfig(cfg *config.Config) Request {
	headers := make(map[string]string, len(cfg.Headers)+1)
	headers["User-Agent"] = cfg.UserAgent
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	return Request{
		URL:          cfg.SourceURL,
		Headers:      headers,
		Timeout:      cfg.Timeout,
		MaxItems:     cfg.MaxItems,
		ItemSelector: cfg.Selectors.Item,
	}
}

func selectItems(root *goquery.Selection, selector string, maxItems int) []*goquery.Selection {
	if maxItems <= 0 {
		return nil
	}
	fragments := make([]*goquery.Selection, 0, maxItems)
	root.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		fragments = append(fragments, s)
		return len(fragments) < maxItems
	})
	return fragments
}

// checkMarkup rejects declared content types that are not HTML or XML.
// An absent header is accepted.
func checkMarkup(contentType string) error {
	if contentType == "" {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return fmt.Errorf("content type %q: %w", contentType, err)
	}
	if strings.Contains(mediaType, "html") || strings.Contains(mediaType, "xml") {
		return nil
	}
	return fmt.Errorf("unexpected content type %q", mediaType)
}

func (e *Extractor) observe(status string, d time.Duration) {
	if e.recorder == nil {
		return
	}
	e.recorder.ObserveFetch(status, d)
}
