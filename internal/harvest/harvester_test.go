package harvest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/filmvault/movie-harvester/internal/media"
)

const topicBase = "https://forum.example/index.php?/forums/topic/"

// fakeFetcher maps URLs to canned pages; unknown URLs fail.
type fakeFetcher struct {
	pages map[string][]byte
	calls []string
}

func (f *fakeFetcher) Get(_ context.Context, url string) ([]byte, error) {
	f.calls = append(f.calls, url)
	body, ok := f.pages[url]
	if !ok {
		return nil, errors.New("no such page")
	}
	return body, nil
}

func topicAnchor(id int, title string) string {
	return fmt.Sprintf(`<a href="%s%d-t/">%s</a>`, topicBase, id, title)
}

func indexPage(anchors ...string) []byte {
	var b []byte
	b = append(b, []byte("<html><body>")...)
	for _, a := range anchors {
		b = append(b, []byte(a)...)
	}
	return append(b, []byte("</body></html>")...)
}

var testCategory = media.CategorySource{
	Tag:     "Tamil",
	ForumID: 11,
	Path:    "index.php?/forums/forum/11-web-hd/",
}

func newTestHarvester(f media.Fetcher, maxPages int) *Harvester {
	return New(f, Config{
		BaseURL:  "https://forum.example/",
		MaxPages: maxPages,
	}, zap.NewNop())
}

func TestHarvestAllPaginatesUntilEmptyPage(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string][]byte{
		"https://forum.example/index.php?/forums/forum/11-web-hd/": indexPage(
			topicAnchor(1, "Ghilli (2004) Tamil TRUE WEB-DL - [1080p - 12.2GB]"),
			topicAnchor(2, "Vada Chennai (2018) Tamil BluRay - [720p - 1.4GB]"),
			`<a href="https://forum.example/index.php?/profile/99-user/">some profile</a>`,
		),
		"https://forum.example/index.php?/forums/forum/11-web-hd/page/2/": indexPage(
			topicAnchor(3, "Asuran (2019) Tamil HDRip - [720p - 1.2GB]"),
		),
		// page 3 has only already-seen and non-qualifying links
		"https://forum.example/index.php?/forums/forum/11-web-hd/page/3/": indexPage(
			topicAnchor(3, "Asuran (2019) Tamil HDRip - [720p - 1.2GB]"),
			topicAnchor(4, "Asuran (2019) Official Trailer 1080p"),
		),
	}}

	topics := newTestHarvester(f, 10).HarvestAll(context.Background(), []media.CategorySource{testCategory})

	require.Len(t, topics, 3)
	assert.Equal(t, topicBase+"1-t/", topics[0].Locator)
	assert.Equal(t, "Ghilli (2004) Tamil TRUE WEB-DL - [1080p - 12.2GB]", topics[0].RawTitle)
	assert.Equal(t, "Tamil", topics[0].CategoryTag)
	assert.Len(t, f.calls, 3)
}

func TestHarvestAllStopsAtMaxPages(t *testing.T) {
	t.Parallel()

	pages := map[string][]byte{
		"https://forum.example/index.php?/forums/forum/11-web-hd/": indexPage(
			topicAnchor(1, "Movie One (2020) Tamil HDRip - [720p - 1.2GB]"),
		),
	}
	for p := 2; p <= 5; p++ {
		pages[fmt.Sprintf("https://forum.example/index.php?/forums/forum/11-web-hd/page/%d/", p)] = indexPage(
			topicAnchor(p, fmt.Sprintf("Movie %d (2020) Tamil HDRip - [720p - 1.2GB]", p)),
		)
	}
	f := &fakeFetcher{pages: pages}

	topics := newTestHarvester(f, 2).HarvestAll(context.Background(), []media.CategorySource{testCategory})
	assert.Len(t, topics, 2)
	assert.Len(t, f.calls, 2)
}

func TestHarvestAllPageErrorEndsCategoryOnly(t *testing.T) {
	t.Parallel()

	other := media.CategorySource{Tag: "Tamil", ForumID: 12, Path: "index.php?/forums/forum/12-rips/"}
	f := &fakeFetcher{pages: map[string][]byte{
		// forum 11 page 1 missing entirely -> category yields nothing
		"https://forum.example/index.php?/forums/forum/12-rips/": indexPage(
			topicAnchor(7, "Karnan (2021) Tamil BluRay - [1080p - 2.4GB]"),
		),
	}}

	topics := newTestHarvester(f, 3).HarvestAll(context.Background(), []media.CategorySource{testCategory, other})
	require.Len(t, topics, 1)
	assert.Equal(t, topicBase+"7-t/", topics[0].Locator)
}

func TestHarvestAllZeroQualifyingLinksTerminates(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string][]byte{
		"https://forum.example/index.php?/forums/forum/11-web-hd/": indexPage(
			`<a href="https://forum.example/index.php?/profile/1-x/">profile link</a>`,
			topicAnchor(9, "Movie (2022) Official Trailer 1080p HD"),
		),
	}}

	topics := newTestHarvester(f, 10).HarvestAll(context.Background(), []media.CategorySource{testCategory})
	assert.Empty(t, topics)
	assert.Len(t, f.calls, 1)
}

func TestFirstPageStopsAtKnownLocator(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string][]byte{
		"https://forum.example/index.php?/forums/forum/11-web-hd/": indexPage(
			topicAnchor(30, "Newest Movie (2026) Tamil HQ PreDVD - [1080p - 2.6GB]"),
			topicAnchor(29, "Second Movie (2025) Tamil WEB-DL - [720p - 1.4GB]"),
			topicAnchor(28, "Known Movie (2025) Tamil BluRay - [1080p - 2.2GB]"),
			topicAnchor(27, "Older Movie (2024) Tamil BluRay - [1080p - 2.0GB]"),
		),
	}}
	known := map[string]struct{}{topicBase + "28-t/": {}}

	topics, err := newTestHarvester(f, 1).FirstPage(context.Background(), testCategory, known)
	require.NoError(t, err)
	require.Len(t, topics, 2)
	assert.Equal(t, topicBase+"30-t/", topics[0].Locator)
	assert.Equal(t, topicBase+"29-t/", topics[1].Locator)
}

func TestFirstPageSkipsShortTitles(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string][]byte{
		"https://forum.example/index.php?/forums/forum/11-web-hd/": indexPage(
			topicAnchor(1, "1080p short"),
			topicAnchor(2, "Long Enough Movie (2025) Tamil - [1080p - 2.6GB]"),
		),
	}}

	topics, err := newTestHarvester(f, 1).FirstPage(context.Background(), testCategory, nil)
	require.NoError(t, err)
	require.Len(t, topics, 1)
	assert.Equal(t, topicBase+"2-t/", topics[0].Locator)
}

func TestFirstPageRequiresSizeToken(t *testing.T) {
	t.Parallel()

	// Release tokens but no file size or rip marker: an announcement
	// thread with no downloads yet.
	f := &fakeFetcher{pages: map[string][]byte{
		"https://forum.example/index.php?/forums/forum/11-web-hd/": indexPage(
			topicAnchor(1, "Kanguva (2024) Tamil HDRip - [720p x264 HQ Clean Audio]"),
			topicAnchor(2, "Kanguva (2024) Tamil HDRip - [720p x264 - 1.4GB]"),
		),
	}}

	topics, err := newTestHarvester(f, 1).FirstPage(context.Background(), testCategory, nil)
	require.NoError(t, err)
	require.Len(t, topics, 1)
	assert.Equal(t, topicBase+"2-t/", topics[0].Locator)
}

func TestHarvestAllKeepsTitlesWithoutSizeToken(t *testing.T) {
	t.Parallel()

	// Bulk mode walks the full archive where older topics often omit
	// sizes; the size gate applies to incremental scans only.
	f := &fakeFetcher{pages: map[string][]byte{
		"https://forum.example/index.php?/forums/forum/11-web-hd/": indexPage(
			topicAnchor(1, "Kanguva (2024) Tamil HDRip - [720p x264 HQ Clean Audio]"),
		),
	}}

	topics := newTestHarvester(f, 1).HarvestAll(context.Background(), []media.CategorySource{testCategory})
	require.Len(t, topics, 1)
	assert.Equal(t, topicBase+"1-t/", topics[0].Locator)
}

func TestHarvestUntilKnownSkipsFailedCategories(t *testing.T) {
	t.Parallel()

	other := media.CategorySource{Tag: "Tamil", ForumID: 12, Path: "index.php?/forums/forum/12-rips/"}
	f := &fakeFetcher{pages: map[string][]byte{
		"https://forum.example/index.php?/forums/forum/12-rips/": indexPage(
			topicAnchor(5, "Survivor Movie (2024) Tamil HDRip - [720p - 1.1GB]"),
		),
	}}

	topics := newTestHarvester(f, 1).HarvestUntilKnown(
		context.Background(),
		[]media.CategorySource{testCategory, other},
		nil,
	)
	require.Len(t, topics, 1)
	assert.Equal(t, topicBase+"5-t/", topics[0].Locator)
}
