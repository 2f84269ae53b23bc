// Package timeout defines centralized timeout constants for forecast operations.
// Package timeout 定义预测流程的集中式超时常量。
package timeout

import "time"

// Forecast operation timeout constants.
// 预测流程超时常量。
const (
	// RequestTimeout bounds one full prediction, including every collaborator call.
	// RequestTimeout 是单次预测的总超时时间。
	RequestTimeout = 20 * time.Second

	// EmbeddingTimeout is the timeout for embedding generation.
	// EmbeddingTimeout 是向量生成的超时时间。
	EmbeddingTimeout = 5 * time.Second

	// SearchTimeout is the timeout for one pattern similarity search.
	// SearchTimeout 是相似模式检索的超时时间。
	SearchTimeout = 3 * time.Second

	// GenerationTimeout is the timeout for LLM explanation generation.
	// GenerationTimeout 是 LLM 生成解释的超时时间。
	GenerationTimeout = 10 * time.Second

	// BreakerOpenTimeout is how long an open circuit rejects calls before probing again.
	// BreakerOpenTimeout 是熔断器打开后再次探测前的等待时间。
	BreakerOpenTimeout = 30 * time.Second

	// MaxTruncateLength is the maximum length for truncating strings in logs.
	// MaxTruncateLength 是日志中字符串截断的最大长度。
	MaxTruncateLength = 200
)
