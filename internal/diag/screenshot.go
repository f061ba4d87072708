package diag

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
)

// chromeShooter renders pages through headless Chrome. Each capture runs in a
// fresh browser context so a flagged session never leaks into the next one.
type chromeShooter struct{}

func (s *chromeShooter) Capture(ctx context.Context, url string) ([]byte, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
		)...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var png []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.FullScreenshot(&png, 80),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", url, err)
	}
	return png, nil
}
