package factory

import (
	"context"
	"fmt"

	"github.com/iWorld-y/gnc_reports/internal/config"
	"github.com/iWorld-y/gnc_reports/internal/form"
	"github.com/iWorld-y/gnc_reports/internal/form/chrome"
)

// NewAutomation 根据配置启动本地浏览器或连接远程浏览器
func NewAutomation(ctx context.Context, cfg *config.Config) (form.Automation, error) {
	opts, err := BrowserOptions(cfg)
	if err != nil {
		return nil, err
	}
	return chrome.New(ctx, opts)
}

// BrowserOptions 把配置转换为 chrome.Options
func BrowserOptions(cfg *config.Config) (chrome.Options, error) {
	dir, err := cfg.DownloadDir()
	if err != nil {
		return chrome.Options{}, fmt.Errorf("resolve download dir: %w", err)
	}

	opts := chrome.Options{
		UserAgent:      cfg.Browser.UserAgent,
		WindowWidth:    cfg.Browser.WindowWidth,
		WindowHeight:   cfg.Browser.WindowHeight,
		DownloadDir:    dir,
		ElementTimeout: cfg.Timing.ElementTimeout,
	}

	switch cfg.Browser.Mode {
	case config.BrowserLocal, "":
		opts.ExecPath = cfg.Browser.ExecPath
		opts.Headless = cfg.Browser.Headless
	case config.BrowserRemote:
		if cfg.Browser.RemoteURL == "" {
			return chrome.Options{}, fmt.Errorf("remote browser url is missing")
		}
		opts.RemoteURL = cfg.Browser.RemoteURL
	default:
		return chrome.Options{}, fmt.Errorf("unknown browser mode: %s", cfg.Browser.Mode)
	}
	return opts, nil
}
