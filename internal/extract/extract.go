// Package extract turns a rendered DOM snapshot into structured records.
package extract

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/dropwatch/dropwatch/internal/engine"
)

// DefaultWindowSize is how many trailing items a snapshot pass considers.
// Older items have already been seen in previous passes.
const DefaultWindowSize = 10

// Selectors is an ordered fallback chain for one field. The first selector
// that matches anything wins, so a markup change in the source only needs a
// new entry at the front.
type Selectors []string

// SelectorSet maps each extracted field to its fallback chain. Zero-value
// fields simply yield empty output for that field.
type SelectorSet struct {
	Item        Selectors
	Author      Selectors
	Content     Selectors
	Timestamp   Selectors
	EmbedTitle  Selectors
	EmbedDesc   Selectors
	EmbedField  Selectors
	FieldName   Selectors
	FieldValue  Selectors
	Thumbnail   Selectors
	EmbedFooter Selectors
}

// DefaultSelectorSet covers the chat-style listing layout the engine was
// built against, with class-prefix fallbacks for hashed class names.
func DefaultSelectorSet() SelectorSet {
	return SelectorSet{
		Item:        Selectors{"li[id^='chat-messages-']", "li[class*='messageListItem']", "article[data-list-item-id]"},
		Author:      Selectors{"[class*='username']", "h3 [class*='author']", "[data-author]"},
		Content:     Selectors{"div[id^='message-content-']", "[class*='messageContent']"},
		Timestamp:   Selectors{"time[datetime]"},
		EmbedTitle:  Selectors{"[class*='embedTitle']", "[class*='embed'] [class*='title']"},
		EmbedDesc:   Selectors{"[class*='embedDescription']", "[class*='embed'] [class*='description']"},
		EmbedField:  Selectors{"[class*='embedField']"},
		FieldName:   Selectors{"[class*='embedFieldName']", "[class*='fieldName']"},
		FieldValue:  Selectors{"[class*='embedFieldValue']", "[class*='fieldValue']"},
		Thumbnail:   Selectors{"[class*='embedThumbnail'] img", "[class*='embedImage'] img"},
		EmbedFooter: Selectors{"[class*='embedFooterText']", "[class*='embedFooter']"},
	}
}

// Extractor parses snapshots into records. It never mutates dedup state:
// the caller decides when an emitted record counts as seen.
type Extractor struct {
	selectors  SelectorSet
	windowSize int
	hasher     engine.Hasher
	clock      engine.Clock
	logger     *zap.Logger
}

// New builds an Extractor. windowSize <= 0 means DefaultWindowSize.
func New(selectors SelectorSet, windowSize int, hasher engine.Hasher, clock engine.Clock, logger *zap.Logger) *Extractor {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		selectors:  selectors,
		windowSize: windowSize,
		hasher:     hasher,
		clock:      clock,
		logger:     logger,
	}
}

// Extract parses the snapshot and returns the unseen records from the
// trailing window, in page order, along with how many list items the snapshot
// held before windowing. seen may be nil, meaning nothing is seen.
func (e *Extractor) Extract(sourceID, snapshot string, seen func(id string) bool) ([]engine.ExtractedRecord, int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snapshot))
	if err != nil {
		return nil, 0, fmt.Errorf("parsing snapshot for source %s: %w", sourceID, err)
	}

	items := firstMatch(doc.Selection, e.selectors.Item)
	if items == nil || items.Length() == 0 {
		return nil, 0, nil
	}
	matched := items.Length()

	if items.Length() > e.windowSize {
		items = items.Slice(items.Length()-e.windowSize, items.Length())
	}

	capturedAt := e.clock.Now()
	records := make([]engine.ExtractedRecord, 0, items.Length())
	items.Each(func(_ int, item *goquery.Selection) {
		rec := e.extractOne(sourceID, item, capturedAt)
		if rec.RawText == "" && rec.Payload.Title == "" && rec.Payload.Description == "" {
			return
		}
		// An item re-rendered under a fresh page id still collides on its
		// fingerprint alias.
		if seen != nil && (seen(rec.ID) || seen(engine.FingerprintID(rec.ContentFingerprint))) {
			return
		}
		records = append(records, rec)
	})
	return records, matched, nil
}

func (e *Extractor) extractOne(sourceID string, item *goquery.Selection, capturedAt time.Time) engine.ExtractedRecord {
	content := engine.NormalizeText(textOf(item, e.selectors.Content))
	title := engine.NormalizeText(textOf(item, e.selectors.EmbedTitle))
	desc := engine.NormalizeText(textOf(item, e.selectors.EmbedDesc))

	fingerprint := e.hasher.Hash([]byte(strings.Join([]string{content, title, desc}, "\x1f")))

	id := itemID(item)
	if id == "" {
		id = engine.FingerprintID(fingerprint)
	}

	rec := engine.ExtractedRecord{
		ID:       id,
		SourceID: sourceID,
		Author: engine.Author{
			Name: engine.NormalizeText(textOf(item, e.selectors.Author)),
		},
		RawText: content,
		Payload: engine.StructuredPayload{
			Title:       title,
			Description: desc,
			Thumbnail:   attrOf(item, e.selectors.Thumbnail, "src"),
			Footer:      engine.NormalizeText(textOf(item, e.selectors.EmbedFooter)),
		},
		PostedAt:           postedAt(item, e.selectors.Timestamp),
		CapturedAt:         capturedAt,
		ContentFingerprint: fingerprint,
	}

	fields := firstMatch(item, e.selectors.EmbedField)
	if fields != nil {
		fields.Each(func(_ int, f *goquery.Selection) {
			name := engine.NormalizeText(textOf(f, e.selectors.FieldName))
			value := engine.NormalizeText(textOf(f, e.selectors.FieldValue))
			if name == "" && value == "" {
				return
			}
			rec.Payload.Fields = append(rec.Payload.Fields, engine.EmbedField{Name: name, Value: value})
		})
	}

	item.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !strings.HasPrefix(href, "http") {
			return
		}
		rec.Payload.Links = append(rec.Payload.Links, engine.Link{
			URL:  href,
			Text: engine.NormalizeText(a.Text()),
		})
	})

	item.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		if !strings.HasPrefix(src, "http") || src == rec.Payload.Thumbnail {
			return
		}
		rec.Payload.Images = append(rec.Payload.Images, src)
	})

	return rec
}

// itemID pulls the stable numeric id from the item's id attribute. Chat-style
// DOMs suffix the element id with a long numeric message id.
func itemID(item *goquery.Selection) string {
	raw, ok := item.Attr("id")
	if !ok {
		raw, ok = item.Attr("data-list-item-id")
	}
	if !ok {
		return ""
	}
	digits := trailingDigits(raw)
	if len(digits) >= 8 {
		return digits
	}
	return ""
}

func trailingDigits(s string) string {
	end := len(s)
	start := end
	for start > 0 && unicode.IsDigit(rune(s[start-1])) {
		start--
	}
	return s[start:end]
}

func postedAt(item *goquery.Selection, sel Selectors) time.Time {
	node := firstMatch(item, sel)
	if node == nil {
		return time.Time{}
	}
	raw, ok := node.First().Attr("datetime")
	if !ok {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

func textOf(root *goquery.Selection, sel Selectors) string {
	node := firstMatch(root, sel)
	if node == nil {
		return ""
	}
	return node.First().Text()
}

func attrOf(root *goquery.Selection, sel Selectors, attr string) string {
	node := firstMatch(root, sel)
	if node == nil {
		return ""
	}
	val, _ := node.First().Attr(attr)
	return val
}

// firstMatch walks the fallback chain and returns the first non-empty match.
func firstMatch(root *goquery.Selection, sel Selectors) *goquery.Selection {
	for _, s := range sel {
		if found := root.Find(s); found.Length() > 0 {
			return found
		}
	}
	return nil
}
