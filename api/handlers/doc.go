// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 arpublish HTTP API 的请求处理器实现。

# 概述

handlers 包实现服务端模式下的全部 HTTP 端点：触发导出发布周期、
查询状态、管理已加载主体、通过 WebSocket 推送呈现事件、
本地 AR 预览以及健康检查。所有 Handler 均遵循标准 net/http 接口。

# 核心类型

  - PublishHandler   - 触发周期（POST /api/v1/publish）、状态与主体管理
  - EventHub         - 将 workflow.Event 扇出到 WebSocket 订阅者
  - PreviewHandler   - 按请求方设备能力生成预览句柄并托管字节
  - HealthHandler    - 服务健康检查（/health, /healthz, /ready）
  - Response         - 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        - 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter   - 包装 http.ResponseWriter 以捕获状态码

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteErrorFrom / WriteJSON
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码自动映射：BUSY → 409，UNSUPPORTED → 422，PUBLISH_FAILURE → 502
  - 客户端能力：ClientCapability 读取 User-Agent 与 X-Max-Touch-Points
  - 健康检查：RegisterCheck 注册关键检查（失败即 503），RegisterOptionalCheck
    注册非关键检查（失败降级为 degraded），SetInfo 附带控制器状态
*/
package handlers
