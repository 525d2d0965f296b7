package poller

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/iWorld-y/gnc_reports/internal/logger"
)

// Outcome 一次轮询的结论
type Outcome int

const (
	InProgress Outcome = iota
	Complete
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case InProgress:
		return "in_progress"
	case Complete:
		return "complete"
	case TimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Options 轮询参数
type Options struct {
	FinalExt          string        // 成品文件扩展名，例如 .xls
	InProgressMarkers []string      // 下载中的临时文件后缀，例如 .crdownload
	Interval          time.Duration // 轮询间隔
	ProgressEvery     time.Duration // 等待期间打印进度的间隔，0 表示不打印
	DisableWatch      bool          // 只按间隔轮询，不监听目录事件
}

// Snapshot 一次目录检查的结果
type Snapshot struct {
	Outcome    Outcome
	Finished   int // 成品文件数
	InProgress int // 下载中的文件数
}

// Poller 观察下载目录，判断下载是否完成
type Poller struct {
	opts Options
}

// New 创建轮询器
func New(opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	opts.FinalExt = strings.ToLower(opts.FinalExt)
	markers := make([]string, 0, len(opts.InProgressMarkers))
	for _, m := range opts.InProgressMarkers {
		markers = append(markers, strings.ToLower(m))
	}
	opts.InProgressMarkers = markers
	return &Poller{opts: opts}
}

// Inspect 检查一次目录
//
// 只要存在下载中的临时文件就视为 InProgress，不看成品数量；
// 否则成品文件数达到 expected 即为 Complete。
func (p *Poller) Inspect(dir string, expected int) (Snapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read download dir: %w", err)
	}

	var snap Snapshot
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.ToLower(e.Name())
		switch {
		case p.inProgress(name):
			snap.InProgress++
		case strings.HasSuffix(name, p.opts.FinalExt):
			snap.Finished++
		}
	}

	if snap.InProgress == 0 && snap.Finished >= expected {
		snap.Outcome = Complete
	}
	return snap, nil
}

func (p *Poller) inProgress(name string) bool {
	for _, m := range p.opts.InProgressMarkers {
		if strings.HasSuffix(name, m) {
			return true
		}
	}
	return false
}

// Await 等待目录中至少有 expected 个成品文件且没有下载中的文件
//
// 超时返回 TimedOut 且 error 为 nil；最多比 timeout 多阻塞一个轮询间隔。
// ctx 取消时返回 ctx.Err()。
func (p *Poller) Await(ctx context.Context, dir string, expected int, timeout time.Duration) (Outcome, error) {
	logger.Log.Infof("等待下载完成 (目标 %d 个文件, 超时 %s)...", expected, timeout)

	start := time.Now()
	deadline := start.Add(timeout)

	events := p.watch(dir)
	if events != nil {
		defer events.Close()
	}

	lastProgress := start
	for {
		snap, err := p.Inspect(dir, expected)
		if err != nil {
			return InProgress, err
		}
		if snap.Outcome == Complete {
			logger.Log.Infof("下载完成，当前文件数: %d", snap.Finished)
			return Complete, nil
		}

		now := time.Now()
		remaining := deadline.Sub(now)
		if remaining <= 0 {
			logger.Log.Warnf("等待下载超时 (已有 %d/%d 个文件, %d 个下载中)", snap.Finished, expected, snap.InProgress)
			return TimedOut, nil
		}
		if p.opts.ProgressEvery > 0 && now.Sub(lastProgress) >= p.opts.ProgressEvery {
			logger.Log.Infof("仍在等待下载... 已等待 %s (已有 %d/%d 个文件, %d 个下载中)",
				now.Sub(start).Truncate(time.Second), snap.Finished, expected, snap.InProgress)
			lastProgress = now
		}

		wait := p.opts.Interval
		if remaining < wait {
			wait = remaining
		}
		if err := p.sleep(ctx, wait, events); err != nil {
			return InProgress, err
		}
	}
}

// sleep 等待一个间隔，目录发生变化时提前返回
func (p *Poller) sleep(ctx context.Context, d time.Duration, events *watcher) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	var changed <-chan struct{}
	if events != nil {
		changed = events.changed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	case <-changed:
	}
	return nil
}

// watcher 把 fsnotify 事件压缩成“目录有变化”信号
type watcher struct {
	w       *fsnotify.Watcher
	changed chan struct{}
	done    chan struct{}
}

func (p *Poller) watch(dir string) *watcher {
	if p.opts.DisableWatch {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Log.Debugf("无法创建目录监听，仅按间隔轮询: %v", err)
		return nil
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		logger.Log.Debugf("无法监听下载目录，仅按间隔轮询: %v", err)
		return nil
	}

	ew := &watcher{w: w, changed: make(chan struct{}, 1), done: make(chan struct{})}
	go ew.loop()
	return ew
}

func (ew *watcher) loop() {
	defer close(ew.done)
	for {
		select {
		case event, ok := <-ew.w.Events:
			if !ok {
				return
			}
			// 只关心文件出现、改名和删除，写入事件太频繁
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				select {
				case ew.changed <- struct{}{}:
				default:
				}
			}
		case err, ok := <-ew.w.Errors:
			if !ok {
				return
			}
			logger.Log.Debugf("目录监听错误: %v", err)
		}
	}
}

func (ew *watcher) Close() {
	_ = ew.w.Close()
	<-ew.done
}
