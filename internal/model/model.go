package model

import (
	"sort"
	"time"
)

// ReportItem 一个可导出的报表（下拉框中的一项）
type ReportItem struct {
	ID   string `yaml:"id"`   // 下拉框 option 的 value
	Name string `yaml:"name"` // 展示名称
}

// Status 单个报表的处理结果
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Stage 单个报表的处理阶段
type Stage string

const (
	StagePending    Stage = "pending"
	StageSelecting  Stage = "selecting"
	StageTriggering Stage = "triggering"
	StageAwaiting   Stage = "awaiting"
	StageDone       Stage = "done"
)

// ItemResult 单个报表的处理记录
type ItemResult struct {
	Item      ReportItem
	Status    Status
	Stage     Stage // 失败时停留的阶段
	Err       error
	StartedAt time.Time
	Duration  time.Duration
	Recovered bool // 失败后会话是否已成功恢复
}

// Succeeded 是否成功
func (r ItemResult) Succeeded() bool {
	return r.Status == StatusSucceeded
}

// BatchState 一次批量运行的内部状态
type BatchState struct {
	// ExpectedCount 本次运行预计新增的文件数，只是估计值，以目录为准
	ExpectedCount int
	// Baseline 运行开始时目录里已有的成品文件数
	Baseline  int
	Processed []ItemResult
}

// Target 轮询时应达到的成品文件总数
func (s *BatchState) Target() int {
	return s.Baseline + s.ExpectedCount
}

// Record 追加一条处理记录
func (s *BatchState) Record(r ItemResult) {
	s.Processed = append(s.Processed, r)
}

// BatchReport 一次批量运行的最终报告
type BatchReport struct {
	RunID         string
	StartedAt     time.Time
	FinishedAt    time.Time
	Dir           string
	Results       []ItemResult
	Artifacts     []string // 运行结束时目录中的文件（以文件系统为准）
	Recoveries    int
	ExpectedCount int
}

// Succeeded 成功的报表数量
func (r *BatchReport) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.Succeeded() {
			n++
		}
	}
	return n
}

// Failed 失败的报表
func (r *BatchReport) Failed() []ItemResult {
	var failed []ItemResult
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			failed = append(failed, res)
		}
	}
	return failed
}

// SortArtifacts 按文件名排序
func (r *BatchReport) SortArtifacts() {
	sort.Strings(r.Artifacts)
}
