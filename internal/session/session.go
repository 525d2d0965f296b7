package session

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/iWorld-y/gnc_reports/internal/form"
	"github.com/iWorld-y/gnc_reports/internal/logger"
	"github.com/iWorld-y/gnc_reports/internal/model"
)

// Filter 页面级筛选条件
type Filter struct {
	Name    string
	Control form.Locator
	Value   string
}

// Options 会话参数
type Options struct {
	StartURL      string
	Filters       []Filter      // 按顺序应用
	Settle        time.Duration // 每次设置筛选后等待页面联动完成
	MaxAttempts   int           // 建立会话的最大尝试次数，至少 1
	RetryInterval time.Duration // 首次重试前的等待，之后指数增长
}

// Bootstrapper 打开起始页并设置筛选条件，也用于失败后的恢复
type Bootstrapper struct {
	form  form.Automation
	opts  Options
	sleep func(ctx context.Context, d time.Duration) error
}

// New 创建会话引导器
func New(f form.Automation, opts Options) *Bootstrapper {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 2 * time.Second
	}
	return &Bootstrapper{form: f, opts: opts, sleep: Sleep}
}

// Establish 打开起始页并依次应用筛选条件，可重复调用
//
// 失败时返回包裹 model.ErrNavigation 的错误。
func (b *Bootstrapper) Establish(ctx context.Context) error {
	attempt := 0
	op := func() error {
		attempt++
		err := b.establishOnce(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if attempt < b.opts.MaxAttempts {
			logger.Log.Warnf("建立会话失败 (%d/%d): %v", attempt, b.opts.MaxAttempts, err)
		}
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(b.newBackOff(), ctx))
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrNavigation, err)
	}
	return nil
}

// newBackOff BackOff 有状态，每次都返回新实例
func (b *Bootstrapper) newBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.opts.RetryInterval
	bo.MaxInterval = 15 * b.opts.RetryInterval
	bo.MaxElapsedTime = 0
	return backoff.WithMaxRetries(bo, uint64(b.opts.MaxAttempts-1))
}

func (b *Bootstrapper) establishOnce(ctx context.Context) error {
	logger.Log.Infof("访问: %s", b.opts.StartURL)
	if err := b.form.Navigate(ctx, b.opts.StartURL); err != nil {
		return fmt.Errorf("open %s: %w", b.opts.StartURL, err)
	}

	for _, f := range b.opts.Filters {
		logger.Log.Infof("设置筛选条件 %s = %s", f.Name, f.Value)
		if err := b.form.WaitReady(ctx, f.Control); err != nil {
			return fmt.Errorf("filter %s: %w", f.Name, err)
		}
		if err := b.form.SelectOption(ctx, f.Control, f.Value); err != nil {
			return fmt.Errorf("filter %s: %w", f.Name, err)
		}
		// 下一个下拉框的选项由页面异步刷新，没有可观察的完成事件
		if err := b.sleep(ctx, b.opts.Settle); err != nil {
			return err
		}
	}
	return nil
}

// Sleep 可被 ctx 打断的等待
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
