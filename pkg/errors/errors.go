package errors

import "errors"

// ErrStatusConflict 剂量状态条件更新未命中：状态已被其他操作变更
var ErrStatusConflict = errors.New("剂量状态已被其他操作修改，请刷新后重试")
