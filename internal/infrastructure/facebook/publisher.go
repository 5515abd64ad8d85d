package facebook

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"NewsDesk/internal/config"
	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
	"NewsDesk/pkg/logger"
)

// Publisher drives a browser session against the page composer. One
// headless instance is reused across posts; the profile directory keeps
// the login session between runs.
type Publisher struct {
	browserCtx  context.Context
	cancelAlloc context.CancelFunc
	cancelCtx   context.CancelFunc

	pageURL     string
	retries     int
	stepTimeout time.Duration
	log         *log.Logger
}

var _ ports.Publisher = (*Publisher)(nil)

// ErrNotLoggedIn means the stored browser profile no longer holds a valid
// session. Posting cannot proceed until a human logs in again.
var ErrNotLoggedIn = errors.New("facebook session expired, manual login required")

// New starts the browser. Call Close when done.
func New(cfg config.FacebookConfig) (*Publisher, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.UserDataDir(cfg.UserDataDir),
		chromedp.Flag("disable-notifications", true),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelCtx := chromedp.NewContext(allocCtx)

	// Warm up so the first post does not pay browser startup cost.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelCtx()
		cancelAlloc()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	retries := cfg.Retries
	if retries <= 0 {
		retries = 2
	}
	stepTimeout := cfg.StepTimeout.Std()
	if stepTimeout <= 0 {
		stepTimeout = 45 * time.Second
	}

	return &Publisher{
		browserCtx:  browserCtx,
		cancelAlloc: cancelAlloc,
		cancelCtx:   cancelCtx,
		pageURL:     cfg.PageURL,
		retries:     retries,
		stepTimeout: stepTimeout,
		log:         logger.New("facebook"),
	}, nil
}

// Close shuts the browser down.
func (p *Publisher) Close() {
	p.cancelCtx()
	p.cancelAlloc()
}

// Publish posts to the page. Transient browser failures are retried a few
// times in place; a lost login session is reported as fatal so the caller
// stops retrying.
func (p *Publisher) Publish(ctx context.Context, post domain.Post) (domain.PublishedRef, error) {
	var lastErr error
	for attempt := 1; attempt <= p.retries; attempt++ {
		ref, err := p.publishOnce(ctx, post)
		if err == nil {
			return ref, nil
		}
		if errors.Is(err, ErrNotLoggedIn) {
			return domain.PublishedRef{}, &domain.PublishFailure{Fatal: true, Err: err}
		}
		if ctx.Err() != nil {
			return domain.PublishedRef{}, ctx.Err()
		}
		p.log.Printf("publish attempt %d/%d failed: %v", attempt, p.retries, err)
		lastErr = err
	}
	return domain.PublishedRef{}, &domain.PublishFailure{Err: lastErr}
}

func (p *Publisher) publishOnce(parent context.Context, post domain.Post) (domain.PublishedRef, error) {
	ctx, cancel := context.WithTimeout(p.browserCtx, p.stepTimeout)
	defer cancel()
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	var currentURL string
	err := chromedp.Run(ctx,
		chromedp.Navigate(p.pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&currentURL),
	)
	if err != nil {
		return domain.PublishedRef{}, fmt.Errorf("open page: %w", err)
	}
	if strings.Contains(currentURL, "/login") || strings.Contains(currentURL, "/checkpoint") {
		return domain.PublishedRef{}, ErrNotLoggedIn
	}

	// The composer opens from the "create post" prompt; the editable area
	// is a contenteditable div inside the dialog.
	err = chromedp.Run(ctx,
		chromedp.Click(`div[role="main"] div[role="button"][aria-label]`, chromedp.ByQuery),
		chromedp.WaitVisible(`div[role="dialog"] div[contenteditable="true"]`, chromedp.ByQuery),
		chromedp.SendKeys(`div[role="dialog"] div[contenteditable="true"]`, post.Text, chromedp.ByQuery),
	)
	if err != nil {
		return domain.PublishedRef{}, fmt.Errorf("fill composer: %w", err)
	}

	if post.ImageRef != "" {
		if err := p.attachImage(ctx, post.ImageRef); err != nil {
			// Image attachment is best effort; the text still goes out.
			p.log.Printf("attach image failed, posting text only: %v", err)
		}
	}

	err = chromedp.Run(ctx,
		chromedp.Click(`div[role="dialog"] div[aria-label="Post"][role="button"]`, chromedp.ByQuery),
		chromedp.WaitNotPresent(`div[role="dialog"] div[contenteditable="true"]`, chromedp.ByQuery),
	)
	if err != nil {
		return domain.PublishedRef{}, fmt.Errorf("submit post: %w", err)
	}

	ref := domain.PublishedRef{PostedAt: time.Now()}

	// Best effort permalink of the newest post on the page.
	var permalink string
	linkErr := chromedp.Run(ctx,
		chromedp.WaitReady(`div[role="main"]`, chromedp.ByQuery),
		chromedp.Evaluate(latestPermalinkJS, &permalink),
	)
	if linkErr == nil && permalink != "" {
		ref.URL = permalink
		ref.PostID = permalinkID(permalink)
	} else {
		ref.URL = p.pageURL
	}

	return ref, nil
}

func (p *Publisher) attachImage(ctx context.Context, imageURL string) error {
	// The composer accepts a pasted image URL and unfurls it into an
	// attachment preview.
	return chromedp.Run(ctx,
		chromedp.SendKeys(`div[role="dialog"] div[contenteditable="true"]`, "\n"+imageURL, chromedp.ByQuery),
		chromedp.Sleep(3*time.Second),
	)
}

// permalinkID pulls the numeric post id out of a permalink URL.
func permalinkID(link string) string {
	for _, marker := range []string{"/posts/", "story_fbid="} {
		idx := strings.Index(link, marker)
		if idx < 0 {
			continue
		}
		id := link[idx+len(marker):]
		for i, r := range id {
			if r < '0' || r > '9' {
				id = id[:i]
				break
			}
		}
		if id != "" {
			return id
		}
	}
	return ""
}

const latestPermalinkJS = `(function () {
  var links = document.querySelectorAll('div[role="main"] a[href*="/posts/"]');
  return links.length > 0 ? links[0].href.split("?")[0] : "";
})()`
