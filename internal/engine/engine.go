package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/iWorld-y/gnc_reports/internal/config"
	"github.com/iWorld-y/gnc_reports/internal/form"
	"github.com/iWorld-y/gnc_reports/internal/logger"
	"github.com/iWorld-y/gnc_reports/internal/metrics"
	"github.com/iWorld-y/gnc_reports/internal/model"
	"github.com/iWorld-y/gnc_reports/internal/poller"
	"github.com/iWorld-y/gnc_reports/internal/session"
)

// Recorder 持久化运行结果
type Recorder interface {
	SaveRun(ctx context.Context, report *model.BatchReport) error
}

// Archiver 把下载的文件归档到别处
type Archiver interface {
	Archive(ctx context.Context, report *model.BatchReport) error
}

// Deps 可选依赖，nil 表示跳过
type Deps struct {
	Store    Recorder
	Archiver Archiver
	Metrics  *metrics.Metrics
}

// Engine 核心处理引擎：逐个下载报表，失败时重建会话后继续
type Engine struct {
	cfg          *config.Config
	dir          string
	form         form.Automation
	session      *session.Bootstrapper
	poller       *poller.Poller
	limiter      *rate.Limiter
	deps         Deps
	sleep        func(ctx context.Context, d time.Duration) error
	itemControl  form.Locator
	exportButton form.Locator
}

// NewEngine 创建引擎实例
func NewEngine(cfg *config.Config, automation form.Automation, deps Deps) (*Engine, error) {
	dir, err := cfg.DownloadDir()
	if err != nil {
		return nil, fmt.Errorf("resolve download dir: %w", err)
	}

	filters := make([]session.Filter, 0, len(cfg.Portal.Filters))
	for _, f := range cfg.Portal.Filters {
		filters = append(filters, session.Filter{
			Name:    f.Name,
			Control: form.ByID{ID: f.ControlID},
			Value:   f.Value,
		})
	}
	sess := session.New(automation, session.Options{
		StartURL:    cfg.Portal.StartURL,
		Filters:     filters,
		Settle:      cfg.Timing.FilterSettle,
		MaxAttempts: cfg.Session.MaxAttempts,
	})

	p := poller.New(poller.Options{
		FinalExt:          cfg.Download.FinalExt,
		InProgressMarkers: cfg.Download.InProgressMarkers,
		Interval:          cfg.Download.PollInterval,
		ProgressEvery:     cfg.Download.ProgressEvery,
	})

	// 限制导出按钮的点击频率，0 表示不限制
	limiter := rate.NewLimiter(rate.Inf, 1)
	if n := cfg.Throttle.TriggersPerMinute; n > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
	}

	return &Engine{
		cfg:          cfg,
		dir:          dir,
		form:         automation,
		session:      sess,
		poller:       p,
		limiter:      limiter,
		deps:         deps,
		sleep:        session.Sleep,
		itemControl:  form.ByOptionText{Contains: cfg.Portal.ItemControlMarker},
		exportButton: form.ByID{ID: cfg.Portal.ExportButtonID},
	}, nil
}

// RunOptions 运行选项
type RunOptions struct {
	Items            []model.ReportItem // 为空时使用配置中的列表
	ProgressCallback func(status string, progress int)
}

// Run 执行一次批量下载
//
// 单个报表的失败不会中断运行；只有循环之外的错误（建立目录、首次建立会话）
// 以 *model.SessionFatalError 返回。ctx 在报表之间检查，取消后停止处理剩余报表。
// 返回的报告总是非 nil。
func (e *Engine) Run(ctx context.Context, opts RunOptions) (*model.BatchReport, error) {
	items := opts.Items
	if len(items) == 0 {
		items = e.cfg.Items
	}
	progress := func(status string, pct int) {
		if opts.ProgressCallback != nil {
			opts.ProgressCallback(status, pct)
		}
	}

	report := &model.BatchReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Dir:       e.dir,
	}
	logger.Log.Infof("开始批量下载 [%s]，共 %d 个报表，目录: %s", report.RunID, len(items), e.dir)
	progress("starting", 0)

	state, err := e.prepare(ctx)
	if err != nil {
		e.finish(ctx, report, &model.BatchState{})
		return report, &model.SessionFatalError{Err: err}
	}
	progress("session established", 5)

	var runErr error
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			logger.Log.Warnf("运行被取消，跳过剩余 %d 个报表", len(items)-i)
			runErr = err
			break
		}

		logger.Log.Infof("--- 处理: %s ---", item.Name)
		res := e.processItem(ctx, state, item)

		switch res.Status {
		case model.StatusSucceeded:
			if i < len(items)-1 && e.cfg.Download.Cooldown > 0 {
				logger.Log.Infof("冷却 %s...", e.cfg.Download.Cooldown)
				_ = e.sleep(ctx, e.cfg.Download.Cooldown)
			}
		case model.StatusFailed:
			logger.Log.Errorf("报表 [%s] 处理失败 (%s): %v", item.Name, res.Stage, res.Err)
			if ctx.Err() == nil {
				res.Recovered = e.recover(ctx, report)
			}
		}

		state.Record(res)
		e.deps.Metrics.ObserveItem(res)
		progress(fmt.Sprintf("processed item: %s (%s)", item.Name, res.Status), 5+(i+1)*90/len(items))
	}

	e.finish(ctx, report, state)
	progress("completed", 100)
	return report, runErr
}

// prepare 创建下载目录、记录已有文件并建立会话
func (e *Engine) prepare(ctx context.Context) (*model.BatchState, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	snap, err := e.poller.Inspect(e.dir, 0)
	if err != nil {
		return nil, err
	}
	if snap.Finished > 0 {
		logger.Log.Infof("目录中已有 %d 个文件，将在此基础上计数", snap.Finished)
	}

	if err := e.session.Establish(ctx); err != nil {
		return nil, err
	}
	return &model.BatchState{Baseline: snap.Finished}, nil
}

// processItem 处理单个报表：选择 -> 导出 -> 等待下载
//
// ExpectedCount 在等待前加一，失败时最多减一次。
func (e *Engine) processItem(ctx context.Context, state *model.BatchState, item model.ReportItem) (res model.ItemResult) {
	res = model.ItemResult{
		Item:      item,
		Status:    model.StatusPending,
		Stage:     model.StagePending,
		StartedAt: time.Now(),
	}
	incremented := false
	defer func() {
		res.Duration = time.Since(res.StartedAt)
		if res.Status == model.StatusSucceeded {
			return
		}
		res.Status = model.StatusFailed
		if incremented {
			state.ExpectedCount--
		}
	}()

	res.Stage = model.StageSelecting
	if err := e.selectItem(ctx, item); err != nil {
		res.Err = fmt.Errorf("%w: %w", model.ErrSelection, err)
		return res
	}

	res.Stage = model.StageTriggering
	if err := e.trigger(ctx); err != nil {
		res.Err = fmt.Errorf("%w: %w", model.ErrTrigger, err)
		return res
	}

	res.Stage = model.StageAwaiting
	state.ExpectedCount++
	incremented = true
	timeout := e.cfg.Download.PollTimeout
	outcome, err := e.poller.Await(ctx, e.dir, state.Target(), timeout)
	if err != nil {
		res.Err = err
		return res
	}
	if outcome != poller.Complete {
		res.Err = fmt.Errorf("%w after %s", model.ErrDownloadTimeout, timeout)
		return res
	}

	res.Stage = model.StageDone
	res.Status = model.StatusSucceeded
	return res
}

// selectItem 在报表下拉框中选中 item
func (e *Engine) selectItem(ctx context.Context, item model.ReportItem) error {
	// 下拉框的 id 不稳定，每次都按“包含已知选项”重新定位
	if err := e.form.WaitReady(ctx, e.itemControl); err != nil {
		return err
	}
	if err := e.form.ScrollIntoView(ctx, e.itemControl); err != nil {
		return err
	}
	if err := e.sleep(ctx, e.cfg.Timing.ScrollSettle); err != nil {
		return err
	}
	if err := e.form.SelectOption(ctx, e.itemControl, item.ID); err != nil {
		return err
	}
	return e.sleep(ctx, e.cfg.Timing.SelectSettle)
}

// trigger 点击导出按钮
func (e *Engine) trigger(ctx context.Context) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}
	logger.Log.Info("点击导出按钮...")
	if err := e.form.WaitReady(ctx, e.exportButton); err != nil {
		return err
	}
	return e.form.Click(ctx, e.exportButton)
}

// recover 重新打开页面并设置筛选条件，丢弃可能已损坏的页面状态
func (e *Engine) recover(ctx context.Context, report *model.BatchReport) bool {
	logger.Log.Warn("正在重建会话后继续下一个报表...")
	report.Recoveries++
	e.deps.Metrics.ObserveRecovery()

	if err := e.session.Establish(ctx); err != nil {
		logger.Log.Errorf("重建会话失败，继续尝试下一个报表: %v", err)
		return false
	}
	return true
}

// finish 汇总目录中的文件并保存结果
func (e *Engine) finish(ctx context.Context, report *model.BatchReport, state *model.BatchState) {
	report.Results = state.Processed
	report.ExpectedCount = state.ExpectedCount

	entries, err := os.ReadDir(e.dir)
	if err != nil {
		logger.Log.Errorf("无法读取下载目录: %v", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			report.Artifacts = append(report.Artifacts, entry.Name())
		}
	}
	report.SortArtifacts()
	report.FinishedAt = time.Now()

	logger.Log.Infof("处理完成: 成功 %d，失败 %d，目录中共 %d 个文件",
		report.Succeeded(), len(report.Failed()), len(report.Artifacts))

	e.deps.Metrics.ObserveRun(report)

	// 取消运行后仍要保存已有结果
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()

	if e.deps.Store != nil {
		if err := e.deps.Store.SaveRun(saveCtx, report); err != nil {
			logger.Log.Errorf("保存运行记录失败: %v", err)
		} else {
			logger.Log.Info("运行记录已保存到数据库")
		}
	}
	if e.deps.Archiver != nil && report.Succeeded() > 0 {
		if err := e.deps.Archiver.Archive(saveCtx, report); err != nil {
			logger.Log.Errorf("归档失败: %v", err)
		}
	}
	if path := e.cfg.Metrics.Textfile; path != "" {
		if err := e.deps.Metrics.WriteTextfile(path); err != nil {
			logger.Log.Errorf("写入指标失败: %v", err)
		}
	}
}
