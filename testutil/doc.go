// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 FlowEngine 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext，自动注册 Cleanup 防止泄漏
  - 断言工具: AssertErrorCode 按类型化错误码断言
  - 异步断言: AssertEventuallyTrue 轮询等待异步状态收敛

# 子包

  - testutil/mocks: ScriptedAgent，可按能力预置结果、错误与延迟，
    并记录每次调用
  - testutil/fixtures: 预置工作流定义（线性、条件分支、并行、扇出汇合）

# 使用示例

	ctx := testutil.TestContext(t)
	a := mocks.NewScriptedAgent("reviewer").WithResult("review", "ok")
	def := fixtures.LinearWorkflow("reviewer", "review")
*/
package testutil
