// Package policy 管理内置的系统提示词版本。
package policy

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed assets/*.md
var assets embed.FS

// KnowledgeMarker 是提示词模板中知识上下文的占位符。
const KnowledgeMarker = "{{knowledge}}"

// Variant 标识一套系统提示词。
type Variant string

const (
	// Clinical 以 CBT 与轻度症状范围为核心，附带自动升级的安全协议。
	Clinical Variant = "clinical"
	// Graded 按急性痛苦分级调整回应强度。
	Graded Variant = "graded"
)

// Variants 返回所有内置版本。
func Variants() []Variant {
	return []Variant{Clinical, Graded}
}

// ParseVariant 解析配置值，空值回落到 Clinical。
func ParseVariant(raw string) (Variant, error) {
	v := Variant(strings.ToLower(strings.TrimSpace(raw)))
	if v == "" {
		return Clinical, nil
	}
	for _, known := range Variants() {
		if v == known {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown policy variant: %q", raw)
}

// Policy 绑定一个已加载的提示词模板。
type Policy struct {
	variant  Variant
	template string
}

// New 加载指定版本的模板。
func New(variant Variant) (*Policy, error) {
	raw, err := assets.ReadFile("assets/" + string(variant) + ".md")
	if err != nil {
		return nil, fmt.Errorf("policy template not found for variant %q: %w", variant, err)
	}

	template := strings.TrimSpace(string(raw))
	if !strings.Contains(template, KnowledgeMarker) {
		return nil, fmt.Errorf("policy template %q has no knowledge marker", variant)
	}

	return &Policy{variant: variant, template: template}, nil
}

// Variant 返回模板版本。
func (p *Policy) Variant() Variant {
	return p.variant
}

// Compose 将知识上下文填入模板，得到最终的系统指令。
func (p *Policy) Compose(knowledge string) string {
	return strings.Replace(p.template, KnowledgeMarker, knowledge, 1)
}

// Compose 加载 variant 并填入知识上下文。
func Compose(variant Variant, knowledge string) (string, error) {
	p, err := New(variant)
	if err != nil {
		return "", err
	}
	return p.Compose(knowledge), nil
}
