package task

import (
	"strings"

	xerrors "tasks-api/internal/errors"
)

// Task 是服务管理的唯一实体。
type Task struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

const (
	CodeTaskNotFound   xerrors.Code = "TASK_NOT_FOUND"
	CodeTaskValidation xerrors.Code = "TASK_VALIDATION_FAILED"
)

var (
	// ErrTaskNotFound 表示指定的任务不存在。
	ErrTaskNotFound = xerrors.New(CodeTaskNotFound, "task not found")
	// ErrEmptyTitle 表示标题为空或只包含空白字符。
	ErrEmptyTitle = xerrors.New(CodeTaskValidation, "title must not be empty")
	// ErrInvalidID 表示任务 ID 不是正整数。
	ErrInvalidID = xerrors.New(CodeTaskValidation, "task id must be a positive integer")
)

func init() {
	xerrors.Register(CodeTaskNotFound, xerrors.Attributes{
		Message:  "task not found",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeTaskValidation, xerrors.Attributes{
		Message:  "task validation failed",
		Severity: xerrors.SeverityInfo,
	})
}

// NormalizeTitle 去除首尾空白，结果为空时返回校验错误。
func NormalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", ErrEmptyTitle
	}
	return title, nil
}
