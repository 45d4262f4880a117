package journal

import "fmt"

// ValidationError 表示一条成交记录未通过入账校验。
// 带此错误的记录不会对账本产生任何影响。
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid trade event: %s %s", e.Field, e.Reason)
}

// SymbolError 把处理/持久化失败隔离到单个标的。
type SymbolError struct {
	Symbol string
	Err    error
}

func (e *SymbolError) Error() string {
	return fmt.Sprintf("symbol %s: %v", e.Symbol, e.Err)
}

func (e *SymbolError) Unwrap() error { return e.Err }
