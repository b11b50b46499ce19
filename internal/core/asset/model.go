package asset

import "github.com/ixugo/goddd/pkg/orm"

// Asset 内容寻址的不可变存储视频
// 多个逻辑片段上传的字节内容哈希一致时共享同一资产，仅递增引用计数
type Asset struct {
	ID       string `gorm:"primaryKey" json:"id"`
	Hash     string `gorm:"uniqueIndex" json:"hash"`
	Path     string `json:"path"` // 相对存储根目录的路径
	Size     int64  `json:"size"`
	RefCount int    `json:"ref_count"`

	CreatedAt orm.Time `json:"created_at"`
	UpdatedAt orm.Time `json:"updated_at"`
}

func (*Asset) TableName() string {
	return "assets"
}

// StoreResult 上传去重结果
type StoreResult struct {
	Asset        *Asset `json:"asset"`
	Deduplicated bool   `json:"deduplicated"`
}
