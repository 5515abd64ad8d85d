package pipeline

import (
	"strings"
	"testing"
	"unicode/utf8"

	"NewsDesk/internal/domain"
)

func TestComposePost(t *testing.T) {
	t.Parallel()

	post := composePost(domain.NewsItem{
		Title: "Central Bank Holds Interest Rates Steady",
		URL:   "https://news.example/rates",
	}, "Rates stay put this quarter.", "https://img.example/1.png")

	if !strings.HasPrefix(post.Text, "Rates stay put this quarter.") {
		t.Fatalf("summary should lead the post: %q", post.Text)
	}
	if !strings.Contains(post.Text, "Source: https://news.example/rates") {
		t.Fatalf("attribution line missing: %q", post.Text)
	}
	if !strings.Contains(post.Text, "#Central") || !strings.Contains(post.Text, "#Interest") {
		t.Fatalf("hashtag footer missing: %q", post.Text)
	}
	if post.ImageRef != "https://img.example/1.png" {
		t.Fatalf("image ref lost: %q", post.ImageRef)
	}
}

func TestHashtags(t *testing.T) {
	t.Parallel()

	tags := hashtags("Major Merger: Alpha, alpha and Beta-Gamma join forces today")
	if len(tags) != 3 {
		t.Fatalf("expected 3 tags, got %v", tags)
	}
	if tags[0] != "#Major" || tags[1] != "#Merger" || tags[2] != "#Alpha" {
		t.Fatalf("unexpected tags: %v", tags)
	}

	if got := hashtags("up and down"); len(got) != 0 {
		t.Fatalf("short words should yield no tags, got %v", got)
	}
}

func TestCleanGenerated(t *testing.T) {
	t.Parallel()

	got := cleanGenerated("```text\nThe summary.\n```")
	if got != "The summary." {
		t.Fatalf("fences not stripped: %q", got)
	}

	if got := cleanGenerated("  plain output  "); got != "plain output" {
		t.Fatalf("whitespace not trimmed: %q", got)
	}
}

func TestSummaryRequestCapsBody(t *testing.T) {
	t.Parallel()

	req := summaryRequest(domain.NewsItem{
		Title: "Long read",
		Body:  strings.Repeat("x", maxBodyChars+500),
	})
	if len(req.Prompt) > maxBodyChars+200 {
		t.Fatalf("prompt not capped, len=%d", len(req.Prompt))
	}
	if req.MaxTokens == 0 || req.System == "" {
		t.Fatal("request defaults missing")
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	t.Parallel()

	// Cyrillic is two bytes per rune, so odd limits land mid-rune.
	s := strings.Repeat("ы", 100)
	for _, limit := range []int{0, 1, 2, 3, 99, 199, 200, 500} {
		got := truncate(s, limit)
		if len(got) > limit {
			t.Fatalf("limit %d exceeded: %d bytes", limit, len(got))
		}
		if !utf8.ValidString(got) {
			t.Fatalf("limit %d split a rune: %q", limit, got)
		}
	}

	if got := truncate("short", 100); got != "short" {
		t.Fatalf("under-limit string must pass through, got %q", got)
	}
}

func TestSummaryRequestBodyStaysValidUTF8(t *testing.T) {
	t.Parallel()

	req := summaryRequest(domain.NewsItem{
		Title: "Рынки",
		Body:  strings.Repeat("ё", maxBodyChars),
	})
	if !utf8.ValidString(req.Prompt) {
		t.Fatal("capped body left invalid UTF-8 in the prompt")
	}
}

func TestImagePromptCapsSubjectAtRuneBoundary(t *testing.T) {
	t.Parallel()

	prompt := imagePrompt(domain.NewsItem{}, strings.Repeat("€", 400))
	if !utf8.ValidString(prompt) {
		t.Fatalf("subject cap split a rune: %q", prompt[len(prompt)-6:])
	}
}
