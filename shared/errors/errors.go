package errors

import (
	"errors"
	"fmt"
)

// AppError 应用错误类型
// 用于统一管理客户端同步错误，包含错误码和错误消息
type AppError struct {
	Code    int    // 错误码
	Message string // 用户可见的错误消息
	Err     error  // 原始错误（可选，用于调试）
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 支持 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewError 创建新错误
func NewError(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装原始错误
func (e *AppError) Wrap(err error) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
	}
}

// Is 判断是否为指定错误
func Is(err error, target *AppError) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

// GetCode 获取错误码，如果不是 AppError 返回默认错误码
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeServerError
}

// GetMessage 获取错误消息
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "客户端内部错误"
}

// ============== 错误码定义 ==============

const (
	CodeSuccess = 0

	// 参数相关 11000-11999
	CodeInvalidParams = 11002

	// 会话相关 20000-20999
	CodeConversationNotFound = 20001
	CodeNoActiveConversation = 20002
	CodeEmptyContent         = 20003

	// 传输相关 30000-30999
	CodeTransportUnavailable = 30001
	CodeTransportError       = 30002
	CodeSubscribeFailed      = 30003

	// 系统错误 50000-50999
	CodeServerError    = 50001
	CodeDBError        = 50002
	CodeListingFailed  = 50004
	CodeHistoryFailed  = 50005
	CodeControllerDown = 50006
)

// ============== 预定义错误 ==============

// 参数相关
var (
	ErrInvalidParams = NewError(CodeInvalidParams, "参数校验失败")
)

// 会话相关
var (
	ErrConversationNotFound = NewError(CodeConversationNotFound, "会话不存在，请先刷新会话列表")
	ErrNoActiveConversation = NewError(CodeNoActiveConversation, "当前没有打开的会话")
	ErrEmptyContent         = NewError(CodeEmptyContent, "消息内容不能为空")
)

// 传输相关
var (
	ErrTransportUnavailable = NewError(CodeTransportUnavailable, "连接不可用，请稍后重试")
	ErrTransport            = NewError(CodeTransportError, "传输错误")
	ErrSubscribeFailed      = NewError(CodeSubscribeFailed, "订阅失败")
)

// 系统相关
var (
	ErrServerError    = NewError(CodeServerError, "客户端内部错误")
	ErrDBError        = NewError(CodeDBError, "数据库错误")
	ErrListingFailed  = NewError(CodeListingFailed, "获取会话列表失败")
	ErrHistoryFailed  = NewError(CodeHistoryFailed, "获取历史消息失败")
	ErrControllerDown = NewError(CodeControllerDown, "同步控制器已停止")
)
