package processor

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Capabilities 启动时探测一次的可选能力
type Capabilities struct {
	// PValue 为 true 时 ANOVA 计算 F 分布右尾概率
	PValue bool
}

// DetectCapabilities 探测F分布是否可用
// enabled=false 时直接关闭, 用于配置中禁用p值
func DetectCapabilities(enabled bool) (caps Capabilities) {
	if !enabled {
		return Capabilities{}
	}
	defer func() {
		if r := recover(); r != nil {
			caps = Capabilities{}
		}
	}()

	// F(2,2) 的 CDF(1) = 0.5
	cdf := distuv.F{D1: 2, D2: 2}.CDF(1)
	return Capabilities{PValue: math.Abs(cdf-0.5) < 1e-6}
}
