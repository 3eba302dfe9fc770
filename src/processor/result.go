package processor

// Result 统计结果: 要么可用, 要么带原因的"不适用"
// 不适用不是错误, 展示时需要和 0 区分开
type Result[T any] struct {
	value  T
	ok     bool
	reason string
}

// Applicable 可用结果
func Applicable[T any](v T) Result[T] {
	return Result[T]{value: v, ok: true}
}

// NotApplicable 数据不足等原因导致无法计算
func NotApplicable[T any](reason string) Result[T] {
	return Result[T]{reason: reason}
}

func (r Result[T]) Ok() bool { return r.ok }

// Value 不适用时返回零值和false
func (r Result[T]) Value() (T, bool) {
	return r.value, r.ok
}

// Reason 不适用的原因
func (r Result[T]) Reason() string { return r.reason }

// Optional 可缺省的数值, 如 SStot=0 时的 R², 或无法计算的 p 值
type Optional struct {
	Value float64
	Valid bool
}

func Some(v float64) Optional { return Optional{Value: v, Valid: true} }

// None 缺省值
func None() Optional { return Optional{} }
