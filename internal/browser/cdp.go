package browser

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// CDPDriver drives a headless Chromium through chromedp. Each recording
// context gets its own browser process with the session directory as its
// profile, so captures from concurrent sessions cannot mix.
type CDPDriver struct {
	width  int
	height int
}

func NewCDPDriver(width, height int) *CDPDriver {
	return &CDPDriver{width: width, height: height}
}

func (d *CDPDriver) NewRecordingContext(dir string) (RecordingContext, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("use-fake-ui-for-media-stream", true),
		chromedp.Flag("allow-running-insecure-content", true),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(d.width, d.height),
		chromedp.UserDataDir(dir),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &cdpContext{allocCtx: allocCtx, cancel: cancel, dir: dir}, nil
}

type cdpContext struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	dir      string
}

func (c *cdpContext) OpenPage(url string, readyTimeout time.Duration) (Page, error) {
	tabCtx, cancel := chromedp.NewContext(c.allocCtx)
	runCtx, done := context.WithTimeout(tabCtx, readyTimeout)
	defer done()
	if err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		cancel()
		return nil, fmt.Errorf("open page %s: %w", url, err)
	}
	return &cdpPage{ctx: tabCtx, cancel: cancel, dir: c.dir}, nil
}

func (c *cdpContext) Close() error {
	c.cancel()
	return nil
}

type cdpPage struct {
	ctx    context.Context
	cancel context.CancelFunc
	dir    string
}

func (p *cdpPage) Evaluate(script string) error {
	return chromedp.Run(p.ctx, chromedp.Evaluate(script, nil))
}

func (p *cdpPage) WaitFor(expr string, timeout time.Duration) error {
	return chromedp.Run(p.ctx, chromedp.Poll(expr, nil, chromedp.WithPollingTimeout(timeout)))
}

// VideoPath locates the newest webm the capture client saved into the
// context directory. An empty path with nil error means no recording was
// produced.
func (p *cdpPage) VideoPath() (string, error) {
	var newest string
	var newestMod time.Time
	err := filepath.WalkDir(p.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".webm") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(newestMod) {
			newest, newestMod = path, info.ModTime()
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return "", err
	}
	return newest, nil
}

func (p *cdpPage) Close() error {
	err := chromedp.Cancel(p.ctx)
	p.cancel()
	return err
}
