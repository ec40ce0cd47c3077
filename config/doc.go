// Package config 提供 arpublish 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（ARPUBLISH_ 前缀）的顺序叠加，
// 最后运行注册的验证器。
package config
