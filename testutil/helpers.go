// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 引擎、调用管理器与编排器测试共用的上下文与断言
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	testutil.AssertErrorCode(t, err, types.ErrCyclicGraph)
//	testutil.AssertEventuallyTrue(t, func() bool { return mgr.Stats().Active == 0 }, time.Second)
// =============================================================================
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/flowengine/types"
)

// DefaultTestTimeout 是 TestContext 的截止时间
const DefaultTestTimeout = 30 * time.Second

// pollInterval 是 AssertEventuallyTrue 的轮询间隔
const pollInterval = 5 * time.Millisecond

// TestContext 返回在测试结束时取消的上下文，最长存活 DefaultTestTimeout
func TestContext(t testing.TB) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTestTimeout)
	t.Cleanup(cancel)
	return ctx
}

// AssertErrorCode 断言 err 非空且错误链中最外层的 *types.Error 携带 code
func AssertErrorCode(t testing.TB, err error, code types.ErrorCode) bool {
	t.Helper()
	if !assert.Error(t, err) {
		return false
	}
	return assert.Equal(t, code, types.GetErrorCode(err), "error: %v", err)
}

// AssertEventuallyTrue 在 timeout 内轮询 condition，超时则立即终止测试
func AssertEventuallyTrue(t testing.TB, condition func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s", timeout)
		}
		time.Sleep(pollInterval)
	}
}
