package pipeline

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"NewsDesk/internal/domain"
)

const summarySystem = `You are a social media editor for a financial news page.
Write a short, factual post summarizing the article you are given.
Keep it under 120 words, neutral tone, no emojis, no clickbait.
Do not invent numbers or quotes that are not in the article.`

const maxBodyChars = 4000

func summaryRequest(item domain.NewsItem) domain.TextRequest {
	body := truncate(item.Body, maxBodyChars)
	return domain.TextRequest{
		System:    summarySystem,
		Prompt:    fmt.Sprintf("Title: %s\nSource: %s\n\n%s", item.Title, item.SourceID, body),
		MaxTokens: 512,
	}
}

// imagePrompt derives the illustration brief from the generated summary
// rather than the raw article, so the image matches what the post says.
func imagePrompt(item domain.NewsItem, summary string) string {
	subject := summary
	if subject == "" {
		subject = item.Title
	}
	subject = truncate(subject, 600)
	return "Clean editorial illustration, no text or logos, for a news post about: " + subject
}

// truncate caps s at limit bytes without splitting a multi-byte rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

// composePost builds the final publishable text: summary, attribution line,
// and a small hashtag footer.
func composePost(item domain.NewsItem, summary, imageRef string) domain.Post {
	var b strings.Builder
	b.WriteString(summary)
	b.WriteString("\n\n")
	b.WriteString("Source: ")
	b.WriteString(item.URL)

	if tags := hashtags(item.Title); len(tags) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(tags, " "))
	}

	return domain.Post{Text: b.String(), ImageRef: imageRef}
}

// hashtags picks up to three significant title words.
func hashtags(title string) []string {
	seen := map[string]bool{}
	var tags []string
	for _, word := range strings.Fields(title) {
		cleaned := strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len(cleaned) < 5 || seen[strings.ToLower(cleaned)] {
			continue
		}
		seen[strings.ToLower(cleaned)] = true
		tags = append(tags, "#"+capitalize(cleaned))
		if len(tags) == 3 {
			break
		}
	}
	return tags
}

func capitalize(word string) string {
	runes := []rune(strings.ToLower(word))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// cleanGenerated strips markdown code fences some models wrap output in.
func cleanGenerated(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```text")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
