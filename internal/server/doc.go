// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP 服务器生命周期管理，支持非阻塞启动与优雅关闭。

# 概述

Manager 封装 net/http.Server，统一管理监听、服务、关闭与错误传播。
Group 把 API、relay 与指标服务器编排在一起：任一服务器异常退出
或 ctx 结束时统一优雅关闭。

# 核心类型

  - Manager：单个服务器，提供 Start/Shutdown/Errors/Addr。
  - Config：监听地址、读写超时、空闲超时、最大请求头与关闭超时。
  - Group：多服务器编排，Run 阻塞到 ctx 结束或出错。
*/
package server
