// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package relay 是发布端的参考实现：签发一次性上传令牌、接收模型上传、
保存模型文件并生成可分享的 AR 查看页面。

# 接口

  - GET  /api/token        签发 HS256 短期令牌（单次有效）
  - POST /api/upload       接收 JSON(base64) 或 multipart 上传，返回 arLink 与 qrCodeUrl
  - GET  /models/{name}    按 Content-Type 返回已保存的模型
  - GET  /ar/{shareId}     AR 查看页，GLB 走 model-viewer，USDZ 走 Quick Look

# 组件

  - TokenIssuer   jwt/v5 签发与校验，jti 通过 ShareIndex 记录防重放
  - ModelStore    LocalStore（本地目录）或 S3Store（aws-sdk-go-v2）
  - ShareIndex    MemoryIndex、RedisIndex（go-redis）或 SQLIndex（gorm）
  - Server        HTTP 处理器，分享 ID 由 rs/xid 生成
*/
package relay
