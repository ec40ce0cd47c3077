package preview

import (
	"strings"
)

// Capability 本地 AR 能力
type Capability struct {
	// QuickLook 为 true 表示可以直接打开 USDZ
	QuickLook bool   `json:"quickLook"`
	Platform  string `json:"platform"`
}

// ARSupported reports whether any local AR viewer is available.
func (c Capability) ARSupported() bool {
	return c.QuickLook
}

// Prober 探测本地 AR 能力
type Prober interface {
	Probe() Capability
}

// ProberFunc adapts a function to Prober.
type ProberFunc func() Capability

// Probe calls f.
func (f ProberFunc) Probe() Capability { return f() }

// Static returns a prober that always reports c.
func Static(c Capability) Prober {
	return ProberFunc(func() Capability { return c })
}

// UserAgentProber 依据 User-Agent 判断 Quick Look 支持
type UserAgentProber struct {
	UserAgent string
	// MaxTouchPoints 来自客户端提示；iPadOS 桌面模式下 UA 与 Mac 相同
	MaxTouchPoints int
}

// Probe inspects the user agent.
func (p UserAgentProber) Probe() Capability {
	return DetectCapability(p.UserAgent, p.MaxTouchPoints)
}

// DetectCapability reports Quick Look support for iOS and iPadOS browsers.
func DetectCapability(userAgent string, maxTouchPoints int) Capability {
	ua := userAgent
	switch {
	case strings.Contains(ua, "iPhone"):
		return Capability{QuickLook: true, Platform: "ios"}
	case strings.Contains(ua, "iPad"):
		return Capability{QuickLook: true, Platform: "ipados"}
	case strings.Contains(ua, "Macintosh") && maxTouchPoints > 1:
		return Capability{QuickLook: true, Platform: "ipados"}
	case strings.Contains(ua, "Android"):
		return Capability{Platform: "android"}
	case ua == "":
		return Capability{Platform: "unknown"}
	default:
		return Capability{Platform: "desktop"}
	}
}
