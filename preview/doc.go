// Package preview 提供本地 AR 预览：检测设备是否支持 Quick Look，
// 导出 AR 格式后以临时句柄托管字节，交给 Viewer 打开，并在延迟后释放。
// 预览不经过发布传输。
package preview
