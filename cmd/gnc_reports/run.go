package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iWorld-y/gnc_reports/internal/archive"
	"github.com/iWorld-y/gnc_reports/internal/config"
	"github.com/iWorld-y/gnc_reports/internal/engine"
	"github.com/iWorld-y/gnc_reports/internal/form/factory"
	"github.com/iWorld-y/gnc_reports/internal/logger"
	"github.com/iWorld-y/gnc_reports/internal/metrics"
	"github.com/iWorld-y/gnc_reports/internal/model"
	"github.com/iWorld-y/gnc_reports/internal/storage"
)

var (
	_ engine.Recorder = (*storage.Storage)(nil)
	_ engine.Archiver = (*archive.Archiver)(nil)
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Download every configured report into the download directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := logger.InitLogger(cfg.Log.Level, cfg.Log.File); err != nil {
			return fmt.Errorf("无法初始化日志: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runBatch(ctx, cfg, cmd.OutOrStdout())
	},
}

func runBatch(ctx context.Context, cfg *config.Config, out io.Writer) error {
	logger.Log.Info("启动 GNC 报表下载...")

	deps := engine.Deps{}
	if cfg.DB.Host != "" {
		s, err := storage.NewStorage(cfg.DB)
		if err != nil {
			logger.Log.Errorf("无法连接数据库: %v. 将不记录运行结果。", err)
		} else {
			defer s.Close()
			deps.Store = s
			logger.Log.Info("已成功连接到数据库")
		}
	} else {
		logger.Log.Info("未配置数据库信息，跳过数据库连接")
	}

	if cfg.Archive.Endpoint != "" {
		client, err := archive.NewClient(cfg.Archive)
		if err == nil {
			err = client.EnsureBucket(ctx)
		}
		if err != nil {
			logger.Log.Errorf("无法连接对象存储: %v. 将不归档。", err)
		} else {
			deps.Archiver = archive.NewArchiver(client, cfg.Archive.Prefix)
		}
	}

	if cfg.Metrics.Textfile != "" {
		deps.Metrics = metrics.New("gnc_reports")
	}

	dir, err := cfg.DownloadDir()
	if err != nil {
		return err
	}
	// 浏览器启动前目录必须存在，下载行为要指向它
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}

	automation, err := factory.NewAutomation(ctx, cfg)
	if err != nil {
		return &model.SessionFatalError{Err: err}
	}
	defer func() {
		if err := automation.Close(); err != nil {
			logger.Log.Warnf("关闭浏览器失败: %v", err)
		}
		logger.Log.Info("浏览器已关闭")
	}()

	eng, err := engine.NewEngine(cfg, automation, deps)
	if err != nil {
		return err
	}

	report, runErr := eng.Run(ctx, engine.RunOptions{
		ProgressCallback: func(status string, progress int) {
			logger.Log.Debugf("[%3d%%] %s", progress, status)
		},
	})
	printReport(out, report)

	if model.IsFatal(runErr) {
		logger.Log.Errorf("运行中止: %v", runErr)
	}
	return runErr
}

func printReport(out io.Writer, report *model.BatchReport) {
	if report == nil {
		return
	}
	fmt.Fprintf(out, "\n下载目录: %s\n", report.Dir)
	fmt.Fprintf(out, "成功 %d / %d，会话恢复 %d 次\n", report.Succeeded(), len(report.Results), report.Recoveries)
	if len(report.Artifacts) == 0 {
		fmt.Fprintln(out, "目录中没有文件")
	}
	for _, name := range report.Artifacts {
		fmt.Fprintf(out, "- %s\n", name)
	}
	if failed := report.Failed(); len(failed) > 0 {
		fmt.Fprintln(out, "\n失败的报表:")
		for _, res := range failed {
			fmt.Fprintf(out, "- %s (%s): %v\n", res.Item.Name, res.Stage, res.Err)
		}
	}
}
