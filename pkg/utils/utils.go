// Package utils 提供雪花 ID、随机串与分页等通用工具
package utils

import (
	"math/rand"
	"sync"
	"time"
)

// SnowflakeID 雪花算法 ID 生成器
type SnowflakeID struct {
	mu        sync.Mutex
	timestamp int64
	sequence  int64
	nodeID    int64
}

// NewSnowflakeID 创建雪花 ID 生成器
func NewSnowflakeID(nodeID int64) *SnowflakeID {
	return &SnowflakeID{
		nodeID: nodeID & 0x3FF, // 10 bits
	}
}

// Generate 生成雪花 ID
func (s *SnowflakeID) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & 0xFFF // 12 bits
		if s.sequence == 0 {
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	// timestamp(41 bits) + nodeID(10 bits) + sequence(12 bits)
	return (now << 22) | (s.nodeID << 12) | s.sequence
}

var defaultGen = NewSnowflakeID(1)

// GenID 使用默认生成器生成 ID
func GenID() int64 {
	return defaultGen.Generate()
}

// RandString 生成随机字符串
func RandString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}

// Pagination 分页信息
type Pagination struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
	Pages    int64 `json:"pages"`
}

// NewPagination 创建分页信息
func NewPagination(page, pageSize int, total int64) *Pagination {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > 1000 {
		pageSize = 1000
	}

	pages := (total + int64(pageSize) - 1) / int64(pageSize)

	return &Pagination{
		Page:     page,
		PageSize: pageSize,
		Total:    total,
		Pages:    pages,
	}
}

// Offset 获取数据库查询偏移量
func (p *Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Limit 获取数据库查询限制
func (p *Pagination) Limit() int {
	return p.PageSize
}
