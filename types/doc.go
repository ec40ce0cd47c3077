// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 arpublish 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 exporter、codec、publish、
workflow、relay 与 api 等上层模块提供统一的类型契约。跨包共享的格式、
主体元数据与错误码均定义于此，以避免循环依赖。

# 核心类型

  - Format            - 导出格式（glb / usdz），含扩展名与 Content-Type
  - Subject           - 已加载的结构主体（分子模型）元数据
  - Error / ErrorCode - 结构化错误体系，含 HTTP 状态码、Retryable、Strategy 标记

# 主要能力

  - 错误工具链：NewError / WithCause / GetErrorCode / IsCode
  - Context 传播：WithRequestID / RequestID
*/
package types
