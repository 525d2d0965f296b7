// Package formtest 提供 form.Automation 的内存实现，供测试使用
package formtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/iWorld-y/gnc_reports/internal/form"
)

// Fake 记录所有调用，并按配置的钩子返回错误
type Fake struct {
	mu        sync.Mutex
	calls     []string
	values    map[string]string
	navigated int
	closed    int

	NavigateErr func(n int) error
	WaitErr     func(loc form.Locator) error
	SelectErr   func(loc form.Locator, value string) error
	ClickErr    func(loc form.Locator) error
	ScrollErr   func(loc form.Locator) error
	// OnClick 在成功点击后调用（不持有锁），用于模拟下载
	OnClick func(loc form.Locator)
}

var _ form.Automation = (*Fake)(nil)

// New 创建 Fake
func New() *Fake {
	return &Fake{values: make(map[string]string)}
}

func (f *Fake) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *Fake) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigated++
	f.record("navigate %s", url)
	if f.NavigateErr != nil {
		if err := f.NavigateErr(f.navigated); err != nil {
			return err
		}
	}
	// 重新打开页面后所有下拉框回到初始状态
	f.values = make(map[string]string)
	return ctx.Err()
}

func (f *Fake) WaitReady(ctx context.Context, loc form.Locator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("wait %s", loc)
	if f.WaitErr != nil {
		if err := f.WaitErr(loc); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (f *Fake) SelectOption(ctx context.Context, loc form.Locator, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("select %s=%s", loc, value)
	if f.SelectErr != nil {
		if err := f.SelectErr(loc, value); err != nil {
			return err
		}
	}
	f.values[loc.String()] = value
	return ctx.Err()
}

func (f *Fake) Click(ctx context.Context, loc form.Locator) error {
	f.mu.Lock()
	f.record("click %s", loc)
	if f.ClickErr != nil {
		if err := f.ClickErr(loc); err != nil {
			f.mu.Unlock()
			return err
		}
	}
	onClick := f.OnClick
	f.mu.Unlock()

	if onClick != nil {
		onClick(loc)
	}
	return ctx.Err()
}

func (f *Fake) ScrollIntoView(ctx context.Context, loc form.Locator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("scroll %s", loc)
	if f.ScrollErr != nil {
		if err := f.ScrollErr(loc); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

// Calls 按顺序返回所有调用记录
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Value 返回控件当前选中的值
func (f *Fake) Value(loc form.Locator) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[loc.String()]
}

// Navigations 返回打开页面的次数
func (f *Fake) Navigations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.navigated
}

// Closed 返回 Close 被调用的次数
func (f *Fake) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
