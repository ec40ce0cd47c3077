// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package publish 将编码后的模型产物上传到远端发布服务，并返回 AR 链接与二维码。

# 策略

  - dispatch: 静态凭证触发仓库分发事件，链接由模板拼出
  - proxy: 直接 POST JSON 到代理，链接与二维码来自响应
  - token: 先取短期令牌，再携带 Bearer 上传（默认）
  - multipart: multipart/form-data 上传文件字段

同一配置只启用一种策略，由 New 按配置选择。所有失败统一为
PUBLISH_FAILURE，原因码（NETWORK、UPLOAD_STATUS、TOKEN_STATUS、
INVALID_RESPONSE）放在 Cause 中。发布不做自动重试。
*/
package publish
