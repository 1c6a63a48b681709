// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 flowengine 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 workflow、invocation、
agent、store 等上层模块提供统一的错误码与 Context 传播约定，以避免循环依赖。

# 核心接口与类型

  - Error / ErrorCode：结构化错误体系，携带节点 ID、调用 ID、Details 与 Retryable 标记
  - 注册表错误码：INVALID_DESCRIPTION、DUPLICATE_TYPE
  - 校验错误码：UNKNOWN_NODE_TYPE、MISSING_PARAMETER、TYPE_MISMATCH、
    INVALID_CONNECTION、CYCLIC_GRAPH、NO_START_NODE
  - 调用错误码：CAPACITY_EXCEEDED、INVOCATION_TIMEOUT、INVOCATION_NOT_FOUND
  - 运行错误码：NODE_EXECUTION_FAILED

# 主要能力

  - Context 传播：WithTraceID / WithExecutionID / WithNodeID / WithAuthToken 等
  - 错误工具链：WrapError / AsError / IsErrorCode / IsRetryable（基于 errors.As，支持包装链）
*/
package types
