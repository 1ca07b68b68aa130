// Package utils 提供 ID 生成、哈希、JSON 与字符串辅助工具
package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"
)

// SnowflakeID 雪花算法 ID 生成器
type SnowflakeID struct {
	mu        sync.Mutex
	nodeID    int64
	lastStamp int64
	sequence  int64
}

const (
	nodeBits     = 10
	sequenceBits = 12
	maxSequence  = -1 ^ (-1 << sequenceBits)
	// 2020-01-01 00:00:00 UTC
	epochMilli = 1577836800000
)

// NewSnowflakeID 创建 ID 生成器
func NewSnowflakeID(nodeID int64) *SnowflakeID {
	return &SnowflakeID{nodeID: nodeID & (-1 ^ (-1 << nodeBits))}
}

// Generate 生成一个递增的唯一 ID
func (s *SnowflakeID) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	if now == s.lastStamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			for now <= s.lastStamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}
	s.lastStamp = now

	return (now-epochMilli)<<(nodeBits+sequenceBits) | s.nodeID<<sequenceBits | s.sequence
}

// SHA256Hash 计算字符串的 SHA-256 摘要（十六进制）
func SHA256Hash(data string) string {
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:])
}

// ToJSON 序列化为 JSON 字符串，失败时返回空串
func ToJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// FromJSON 从 JSON 字符串反序列化
func FromJSON(data string, v interface{}) error {
	return json.Unmarshal([]byte(data), v)
}

// TruncateString 按 rune 截断字符串
func TruncateString(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}

// TimeNow 当前毫秒时间戳
func TimeNow() int64 {
	return time.Now().UnixMilli()
}

// FormatDate 按交易日格式化日期
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// ParseDate 解析交易日字符串
func ParseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}
