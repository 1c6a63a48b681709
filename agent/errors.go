package agent

import "errors"

var (
	// ErrMissingToken 上下文中没有认证令牌
	ErrMissingToken = errors.New("auth token missing from context")

	// ErrCapabilityDenied 令牌未授予该能力
	ErrCapabilityDenied = errors.New("capability not granted")
)
