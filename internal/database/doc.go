// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库打开与连接池管理，供 relay 的
SQL 分享索引使用。

# 概述

Open 按配置驱动选择 postgres（gorm.io/driver/postgres）或纯 Go 的
sqlite（github.com/glebarez/sqlite）。PoolManager 封装连接池参数、
后台健康检查与事务执行，并把连接数与事务耗时写入 metrics.Collector。

# 核心类型

  - PoolManager：连接池管理器，提供 DB()、Ping()、Stats()、Close()。
  - PoolConfig：连接池配置，可由 config.DatabaseConfig 派生。
  - PoolStats：友好格式的连接池统计信息。
  - TransactionFunc：事务回调函数类型。
*/
package database
