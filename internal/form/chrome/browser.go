package chrome

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"

	"github.com/iWorld-y/gnc_reports/internal/form"
)

// Options 浏览器启动参数
type Options struct {
	RemoteURL      string // 非空时连接已有浏览器 (CDP websocket 地址)
	ExecPath       string
	Headless       bool
	UserAgent      string
	WindowWidth    int
	WindowHeight   int
	DownloadDir    string
	ElementTimeout time.Duration
}

// Browser 基于 chromedp 的 form.Automation 实现
type Browser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	timeout     time.Duration
	closeOnce   sync.Once
}

// Ensure Browser implements form.Automation
var _ form.Automation = (*Browser)(nil)

// New 启动（或连接）浏览器并把下载目录指向 opts.DownloadDir
func New(ctx context.Context, opts Options) (*Browser, error) {
	downloadDir, err := filepath.Abs(opts.DownloadDir)
	if err != nil {
		return nil, fmt.Errorf("resolve download dir: %w", err)
	}

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if opts.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, opts.RemoteURL)
	} else {
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, execOptions(opts)...)
	}

	browserCtx, cancel := chromedp.NewContext(allocCtx)

	timeout := opts.ElementTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	b := &Browser{
		ctx:         browserCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
		timeout:     timeout,
	}

	// 无头模式下必须显式允许下载，否则文件不会落盘
	err = chromedp.Run(browserCtx,
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(downloadDir).
			WithEventsEnabled(true),
	)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	return b, nil
}

func execOptions(opts Options) []chromedp.ExecAllocatorOption {
	width, height := opts.WindowWidth, opts.WindowHeight
	if width <= 0 || height <= 0 {
		width, height = 1920, 1080
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(width, height),
	)
	if opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", "new"))
	} else {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	return allocOpts
}

// Navigate 打开页面并等待 body 就绪
func (b *Browser) Navigate(ctx context.Context, url string) error {
	return b.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery))
}

// WaitReady 等待控件出现在 DOM 中
func (b *Browser) WaitReady(ctx context.Context, loc form.Locator) error {
	q := loc.Query()
	if err := b.run(ctx, chromedp.WaitReady(selector(q), by(q))); err != nil {
		return fmt.Errorf("wait %s: %w", loc, err)
	}
	return nil
}

// SelectOption 选中下拉框中 value 对应的选项并触发 change 事件
func (b *Browser) SelectOption(ctx context.Context, loc form.Locator, value string) error {
	q := loc.Query()
	script := fmt.Sprintf(`(() => {
	const el = %s;
	if (!el || !el.options) return false;
	const opt = Array.from(el.options).find(o => o.value === %s);
	if (!opt) return false;
	el.value = opt.value;
	opt.selected = true;
	el.dispatchEvent(new Event('input', {bubbles: true}));
	el.dispatchEvent(new Event('change', {bubbles: true}));
	return true;
})()`, elementExpr(q), jsString(value))

	var ok bool
	if err := b.run(ctx, chromedp.WaitReady(selector(q), by(q)), chromedp.Evaluate(script, &ok)); err != nil {
		return fmt.Errorf("select %q in %s: %w", value, loc, err)
	}
	if !ok {
		return fmt.Errorf("select %q in %s: option not present", value, loc)
	}
	return nil
}

// Click 在页面脚本中点击控件，避免被遮挡时原生点击失败
func (b *Browser) Click(ctx context.Context, loc form.Locator) error {
	q := loc.Query()
	script := fmt.Sprintf(`(() => {
	const el = %s;
	if (!el) return false;
	el.click();
	return true;
})()`, elementExpr(q))

	var ok bool
	if err := b.run(ctx, chromedp.WaitVisible(selector(q), by(q)), chromedp.Evaluate(script, &ok)); err != nil {
		return fmt.Errorf("click %s: %w", loc, err)
	}
	if !ok {
		return fmt.Errorf("click %s: %w", loc, form.ErrLocatorNotFound)
	}
	return nil
}

// ScrollIntoView 把控件滚动到可视区域
func (b *Browser) ScrollIntoView(ctx context.Context, loc form.Locator) error {
	q := loc.Query()
	if err := b.run(ctx, chromedp.ScrollIntoView(selector(q), by(q))); err != nil {
		return fmt.Errorf("scroll %s: %w", loc, err)
	}
	return nil
}

// Close 关闭浏览器，可重复调用
func (b *Browser) Close() error {
	var err error
	b.closeOnce.Do(func() {
		err = chromedp.Cancel(b.ctx)
		b.cancel()
		b.allocCancel()
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// run 在限定时间内执行动作；调用方 ctx 取消时同样中止
func (b *Browser) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(b.ctx, b.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(opCtx, actions...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(opCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %v", form.ErrLocatorNotFound, b.timeout, err)
	}
	return err
}

func by(q form.Query) chromedp.QueryOption {
	if q.Strategy == form.StrategyXPath {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

// selector id 里可能有 CSS 特殊字符，统一用属性选择器
func selector(q form.Query) string {
	if q.Strategy == form.StrategyXPath {
		return q.Expr
	}
	return fmt.Sprintf("[id=%s]", jsString(q.Expr))
}

func elementExpr(q form.Query) string {
	if q.Strategy == form.StrategyXPath {
		return fmt.Sprintf("document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue", jsString(q.Expr))
	}
	return fmt.Sprintf("document.getElementById(%s)", jsString(q.Expr))
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
