// Package tlsutil 集中提供出站 HTTP 客户端的 TLS 配置，
// 供导出器、发布策略与 relay 使用（TLS 1.2+，仅 AEAD 密码套件，可选私有 CA）。
package tlsutil
