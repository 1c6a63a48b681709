// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package invocation 提供有界并发的异步调用管理器。

# 概述

Manager 是全系统唯一的准入控制点：处于 pending / running 状态的调用数
达到 MaxConcurrent 时，新的调用以 CAPACITY_EXCEEDED 拒绝。Invoke 立即
返回调用 ID，实际工作由内部 goroutine 池执行。

# 核心接口与类型

  - Target：被调用的工作（通常是某个 Agent 能力）
  - Invocation：调用记录快照（状态、结果、错误、起止时间）
  - Manager：Invoke / GetStatus / Wait / Cancel / Clear / ListActive
  - Recorder：指标回调，*metrics.Collector 即可满足

# 语义约定

  - Wait 不在等待期间持有锁；超时后调用被强制标记为 failed
    （INVOCATION_TIMEOUT）并取消其 context
  - 首次终态写入生效，之后的写入被忽略
  - Cancel 对未知或已终止的调用返回 false
  - Clear 只删除记录，不会停止仍在运行的工作
  - 可选令牌桶限流，超限返回 RATE_LIMITED
*/
package invocation
