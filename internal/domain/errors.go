package domain

import (
	"errors"
	"fmt"
)

// InvalidInputError 表示核心计算的前置条件被违反（负数量、非正的最小起订量等）。
type InvalidInputError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("无效输入 %s：%s", e.Field, e.Reason)
	}
	return fmt.Sprintf("无效输入 %s=%q：%s", e.Field, e.Value, e.Reason)
}

// NotFoundError 表示没有任何候选商品可供选择。
type NotFoundError struct {
	Term string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("未找到商品：%q", e.Term)
}

// LookupError 表示查询协作方（目录搜索）失败：网络、解析或无结果。
// 核心组件从不返回它，只由 provider 层产生。
type LookupError struct {
	Term string
	Err  error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("查询 %q 失败：%v", e.Term, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// IsNotFound 判断 err 链中是否含 NotFoundError。
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsInvalidInput 判断 err 链中是否含 InvalidInputError。
func IsInvalidInput(err error) bool {
	var e *InvalidInputError
	return errors.As(err, &e)
}
