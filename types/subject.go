package types

// Subject 已加载的结构主体（例如一个 PDB 条目）。
// 渲染平台负责加载，这里只引用其元数据。
type Subject struct {
	// ID 主体标识，例如 PDB ID "1CRN"
	ID string `json:"id,omitempty" yaml:"id"`
	// Title 可选的显示名称
	Title string `json:"title,omitempty" yaml:"title"`
	// Source 来源描述（文件路径、URL 等）
	Source string `json:"source,omitempty" yaml:"source"`
}
