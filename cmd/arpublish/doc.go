// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 arpublish 程序入口。

# 概述

cmd/arpublish 把导出 → 编码 → 发布的工作流包装成命令行与 HTTP 服务：
serve 启动发布 API（可同进程运行 relay），relay 单独启动参考发布服务，
publish 以本地文件跑一次完整周期并写出二维码 PNG。
程序支持 YAML 配置文件加环境变量覆盖、结构化日志（zap）、
Prometheus 指标与 OpenTelemetry 追踪。

# 核心类型

  - apiApp           - 发布 API 的组件集合：控制器、主体注册表、事件推送、预览
  - Middleware       - HTTP 中间件函数签名 func(http.Handler) http.Handler
  - cliPresenter     - 把呈现回调输出到终端

# 主要能力

  - 子命令：serve、relay、publish、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、RequestLogger、
    Metrics、CORS、RateLimiter（基于 IP）、APIKeyAuth
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号取消 ctx → server.Group 依次关闭 → 等待进行中的周期
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
