package errs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// 错误码分段：1xxx 为网关核心错误
const (
	ValidationCode        = 1001 // 参数非法（坐标越界/自聊/空内容）
	UnauthorizedCode      = 1002 // 非参与者/未认证
	NotFoundCode          = 1003 // 房间/消息不存在
	TransientDeliveryCode = 1004 // 收端瞬时投递失败（不回传给发送方）
)

var (
	ErrValidation        = NewCodeError(ValidationCode, "invalid argument")
	ErrUnauthorized      = NewCodeError(UnauthorizedCode, "unauthorized")
	ErrNotFound          = NewCodeError(NotFoundCode, "not found")
	ErrTransientDelivery = NewCodeError(TransientDeliveryCode, "transient delivery failure")
)

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

func (e *CodeError) Error() string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(e.Code))
	sb.WriteString(" ")
	sb.WriteString(e.Msg)
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	return sb.String()
}

func (e *CodeError) clone() *CodeError {
	return &CodeError{Code: e.Code, Msg: e.Msg, Detail: e.Detail}
}

// WithDetail 返回带附加明细的副本，原错误不变
func (e *CodeError) WithDetail(detail string) *CodeError {
	out := e.clone()
	if out.Detail == "" {
		out.Detail = detail
	} else {
		out.Detail += ", " + detail
	}
	return out
}

func (e *CodeError) WrapMsg(format string, args ...any) *CodeError {
	return e.WithDetail(fmt.Sprintf(format, args...))
}

// Is 对齐 errors.Is：同码即同错
func (e *CodeError) Is(target error) bool {
	var ce *CodeError
	if !errors.As(target, &ce) {
		return false
	}
	return ce.Code == e.Code
}

// CodeOf 取出错误码；非 CodeError 返回 0
func CodeOf(err error) int {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return 0
}

func IsCode(err error, code int) bool { return CodeOf(err) == code }

func New(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
