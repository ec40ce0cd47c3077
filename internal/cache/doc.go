// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理能力，为 relay 的分享索引与
一次性令牌记录提供存储。

# 概述

本包封装 go-redis 客户端，Manager 负责连接生命周期管理，包括初始化、
后台健康检查与优雅关闭。所有键统一加上配置中的 KeyPrefix。

# 核心类型

  - Manager：缓存管理器，提供 Get/Set/SetNX/Delete/Ping 等基础操作，
    以及 GetJSON/SetJSON 便捷序列化方法。
  - Options：重试次数与健康检查间隔。

# 主要能力

  - 键值读写：支持字符串与 JSON 两种模式的缓存存取。
  - 原子占位：SetNX 用于一次性令牌的消费记录。
  - 健康检查：后台定时 Ping 检测，异常时通过 zap 日志告警。
  - 错误语义：提供 ErrCacheMiss / ErrClosed 哨兵错误。
*/
package cache
