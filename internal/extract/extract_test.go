package extract

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropwatch/dropwatch/internal/engine"
	sha256hash "github.com/dropwatch/dropwatch/internal/hash/sha256"
)

type frozenClock struct{ t time.Time }

func (c frozenClock) Now() time.Time { return c.t }

func newExtractor(windowSize int) *Extractor {
	return New(DefaultSelectorSet(), windowSize, sha256hash.New(), frozenClock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}, nil)
}

func itemHTML(id int, content string) string {
	return fmt.Sprintf(`<li id="chat-messages-1234-%010d">
		<h3><span class="username-x1">dropbot</span></h3>
		<time datetime="2026-08-01T11:59:00Z"></time>
		<div id="message-content-%010d">%s</div>
	</li>`, id, id, content)
}

func page(items ...string) string {
	return "<html><body><ol>" + strings.Join(items, "\n") + "</ol></body></html>"
}

func TestExtractBasicRecord(t *testing.T) {
	ex := newExtractor(10)
	records, matched, err := ex.Extract("src-a", page(itemHTML(1, "New drop: Alpha sneakers $120")), nil)
	require.NoError(t, err)
	require.Equal(t, 1, matched)
	require.Len(t, records, 1)

	rec := records[0]
	require.Equal(t, "0000000001", rec.ID)
	require.Equal(t, "src-a", rec.SourceID)
	require.Equal(t, "dropbot", rec.Author.Name)
	require.Equal(t, "New drop: Alpha sneakers $120", rec.RawText)
	require.Equal(t, time.Date(2026, 8, 1, 11, 59, 0, 0, time.UTC), rec.PostedAt)
	require.Equal(t, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC), rec.CapturedAt)
	require.Len(t, rec.ContentFingerprint, 64)
}

func TestExtractWindowKeepsTrailingItems(t *testing.T) {
	items := make([]string, 0, 15)
	for i := 1; i <= 15; i++ {
		items = append(items, itemHTML(i, fmt.Sprintf("drop %d", i)))
	}

	ex := newExtractor(10)
	records, matched, err := ex.Extract("src-a", page(items...), nil)
	require.NoError(t, err)
	require.Equal(t, 15, matched, "matched counts items before windowing")
	require.Len(t, records, 10)
	require.Equal(t, "drop 6", records[0].RawText, "oldest five fall outside the window")
	require.Equal(t, "drop 15", records[9].RawText, "page order preserved")
}

func TestExtractSkipsSeen(t *testing.T) {
	ex := newExtractor(10)
	seen := func(id string) bool { return id == "0000000001" }

	records, matched, err := ex.Extract("src-a", page(itemHTML(1, "old drop"), itemHTML(2, "new drop")), seen)
	require.NoError(t, err)
	require.Equal(t, 2, matched, "suppressed items still count as matched")
	require.Len(t, records, 1)
	require.Equal(t, "new drop", records[0].RawText)
}

func TestExtractSuppressesChangedPageID(t *testing.T) {
	ex := newExtractor(10)

	first, _, err := ex.Extract("src-a", page(itemHTML(1, "restock: alpha $120")), nil)
	require.NoError(t, err)
	require.Len(t, first, 1)

	window := make(map[string]bool)
	for _, id := range first[0].DedupIDs() {
		window[id] = true
	}
	seen := func(id string) bool { return window[id] }

	// The same item re-rendered under a fresh numeric id collides on the
	// fingerprint alias and stays suppressed.
	again, matched, err := ex.Extract("src-a", page(itemHTML(2, "restock: alpha $120")), seen)
	require.NoError(t, err)
	require.Equal(t, 1, matched)
	require.Empty(t, again)

	// Different content under the same treatment still comes through.
	fresh, _, err := ex.Extract("src-a", page(itemHTML(3, "restock: bravo $90")), seen)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
}

func TestExtractEmbed(t *testing.T) {
	html := page(`<li id="chat-messages-1234-0000000009">
		<div id="message-content-0000000009">restock alert</div>
		<div class="embed-a">
			<div class="embedTitle-x">Alpha Restock</div>
			<div class="embedDescription-x">Limited run, 200 units</div>
			<div class="embedField-x">
				<div class="embedFieldName-x">Price</div>
				<div class="embedFieldValue-x">$120</div>
			</div>
			<div class="embedThumbnail-x"><img src="https://cdn.example.com/thumb.jpg"></div>
			<div class="embedFooterText-x">store.example.com</div>
			<a href="https://store.example.com/alpha">Buy now</a>
			<img src="https://cdn.example.com/full.jpg">
		</div>
	</li>`)

	ex := newExtractor(10)
	records, _, err := ex.Extract("src-a", html, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)

	p := records[0].Payload
	require.Equal(t, "Alpha Restock", p.Title)
	require.Equal(t, "Limited run, 200 units", p.Description)
	require.Equal(t, []engine.EmbedField{{Name: "Price", Value: "$120"}}, p.Fields)
	require.Equal(t, "https://cdn.example.com/thumb.jpg", p.Thumbnail)
	require.Equal(t, "store.example.com", p.Footer)
	require.Len(t, p.Links, 1)
	require.Equal(t, "https://store.example.com/alpha", p.Links[0].URL)
	require.Equal(t, "Buy now", p.Links[0].Text)
	require.Equal(t, []string{"https://cdn.example.com/full.jpg"}, p.Images)
}

func TestExtractFallbackID(t *testing.T) {
	html := page(`<li class="messageListItem-x">
		<div class="messageContent-x">no stable id here</div>
	</li>`)

	ex := newExtractor(10)
	records, _, err := ex.Extract("src-a", html, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.True(t, strings.HasPrefix(records[0].ID, "fp-"))
	require.Len(t, records[0].ID, 19)
}

func TestExtractSkipsEmptyItems(t *testing.T) {
	html := page(`<li id="chat-messages-1234-0000000001"><div id="message-content-0000000001">   </div></li>`,
		itemHTML(2, "real drop"))

	ex := newExtractor(10)
	records, matched, err := ex.Extract("src-a", html, nil)
	require.NoError(t, err)
	require.Equal(t, 2, matched)
	require.Len(t, records, 1)
	require.Equal(t, "real drop", records[0].RawText)
}

func TestExtractNoItemsMatch(t *testing.T) {
	ex := newExtractor(10)
	records, matched, err := ex.Extract("src-a", "<html><body><p>maintenance page</p></body></html>", nil)
	require.NoError(t, err)
	require.Zero(t, matched)
	require.Empty(t, records)
}

func TestFingerprintIgnoresVolatileParts(t *testing.T) {
	ex := newExtractor(10)
	a, _, err := ex.Extract("src-a", page(itemHTML(1, "drop alpha")), nil)
	require.NoError(t, err)
	b, _, err := ex.Extract("src-a", page(itemHTML(2, "drop alpha")), nil)
	require.NoError(t, err)
	require.Equal(t, a[0].ContentFingerprint, b[0].ContentFingerprint)
	require.NotEqual(t, a[0].ID, b[0].ID)
}
