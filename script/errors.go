package script

import (
	"errors"
	"fmt"
)

// SyntaxError 词法或语法错误
type SyntaxError struct {
	Pos Position
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d, col %d: %s", e.Pos.Line, e.Pos.Col, e.Msg)
}

// ErrorKind 运行时错误类别
type ErrorKind int

const (
	KindRuntime ErrorKind = iota
	// KindCancelled 执行被外部中断（截止时间到达）
	KindCancelled
	// KindStepLimit 超出步数预算
	KindStepLimit
)

func (k ErrorKind) String() string {
	switch k {
	case KindCancelled:
		return "cancelled"
	case KindStepLimit:
		return "step_limit"
	default:
		return "runtime"
	}
}

// EvalError 脚本执行期错误
type EvalError struct {
	Pos   Position
	Msg   string
	Kind  ErrorKind
	Cause error
}

func (e *EvalError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("line %d: %s", e.Pos.Line, e.Msg)
	}
	return e.Msg
}

func (e *EvalError) Unwrap() error { return e.Cause }

// IsCancelled 判断错误是否由中断引起
func IsCancelled(err error) bool {
	var ee *EvalError
	return errors.As(err, &ee) && ee.Kind == KindCancelled
}

// IsStepLimit 判断错误是否由步数预算耗尽引起
func IsStepLimit(err error) bool {
	var ee *EvalError
	return errors.As(err, &ee) && ee.Kind == KindStepLimit
}

// Errorf 构造运行时错误，供内置函数和宿主对象使用
func Errorf(format string, args ...any) error {
	return &EvalError{Msg: fmt.Sprintf(format, args...)}
}

// atPos 为缺少位置的错误补充位置
func atPos(err error, pos Position) error {
	if err == nil {
		return nil
	}
	var ee *EvalError
	if errors.As(err, &ee) {
		if !ee.Pos.IsValid() {
			ee.Pos = pos
		}
		return ee
	}
	return &EvalError{Pos: pos, Msg: err.Error(), Cause: err}
}
