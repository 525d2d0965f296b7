package model

import (
	"errors"
	"fmt"
)

// 单个报表级别的错误，均可恢复：记录失败、重建会话后继续下一个报表
var (
	ErrNavigation      = errors.New("navigation failed")
	ErrSelection       = errors.New("item selection failed")
	ErrTrigger         = errors.New("export trigger failed")
	ErrDownloadTimeout = errors.New("download timed out")
)

// SessionFatalError 发生在报表循环之外的错误（例如首次建立会话），不可恢复
type SessionFatalError struct {
	Err error
}

func (e *SessionFatalError) Error() string {
	return fmt.Sprintf("session fatal: %v", e.Err)
}

func (e *SessionFatalError) Unwrap() error {
	return e.Err
}

// IsFatal 判断错误是否需要终止整个运行
func IsFatal(err error) bool {
	var fatal *SessionFatalError
	return errors.As(err, &fatal)
}
