package asset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/reason"
	"gorm.io/gorm"
)

// AssetStorer Instantiation interface
type AssetStorer interface {
	Get(context.Context, *Asset, ...orm.QueryOption) error
	Add(context.Context, *Asset) error
	Edit(context.Context, *Asset, func(*Asset), ...orm.QueryOption) error
	Del(context.Context, *Asset, ...orm.QueryOption) error

	Session(context.Context, ...func(*gorm.DB) error) error
}

// Storer data persistence
type Storer interface {
	Asset() AssetStorer
}

// IDGenerator 业务前缀唯一 ID
type IDGenerator interface {
	UniqueID(prefix string) string
}

// IDPrefixAsset 资产 ID 前缀
const IDPrefixAsset = "ast"

// Core business domain
type Core struct {
	store Storer
	uni   IDGenerator
	root  string
	// m 串行化"查哈希-写字节-插记录"序列，
	// 避免两个相同新内容的上传同时决定落盘
	m sync.Mutex
}

// NewCore create business domain
func NewCore(store Storer, uni IDGenerator, root string) *Core {
	if err := os.MkdirAll(root, 0o755); err != nil {
		slog.Error("mkdir asset root", "root", root, "err", err)
	}
	return &Core{store: store, uni: uni, root: root}
}

// Store 哈希输入内容并去重落盘
// 命中已有哈希时递增引用计数并返回 Deduplicated=true，不写入新字节；
// 否则按哈希派生路径落盘并以 RefCount=1 注册新资产
func (c *Core) Store(ctx context.Context, r io.Reader) (*StoreResult, error) {
	tmp, err := os.CreateTemp(c.root, "upload-*")
	if err != nil {
		return nil, reason.ErrServer.Withf("create temp err[%s]", err.Error())
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), r)
	closeErr := tmp.Close()
	if err != nil {
		return nil, reason.ErrServer.Withf("write upload err[%s]", err.Error())
	}
	if closeErr != nil {
		return nil, reason.ErrServer.Withf("close upload err[%s]", closeErr.Error())
	}
	sum := hex.EncodeToString(h.Sum(nil))

	c.m.Lock()
	defer c.m.Unlock()

	// 查哈希-写字节-插记录在同一事务内完成，
	// 与互斥锁一起保证相同新内容并发上传只落盘一次
	var res *StoreResult
	err = c.store.Asset().Session(ctx, func(tx *gorm.DB) error {
		var existing Asset
		err := tx.Where("hash=?", sum).First(&existing).Error
		if err == nil {
			if err := tx.Model(&existing).Update("ref_count", existing.RefCount+1).Error; err != nil {
				return reason.ErrDB.Withf("bump refcount hash[%s] err[%s]", sum, err.Error())
			}
			existing.RefCount++
			res = &StoreResult{Asset: &existing, Deduplicated: true}
			return nil
		}
		if !orm.IsErrRecordNotFound(err) {
			return reason.ErrDB.Withf("lookup hash[%s] err[%s]", sum, err.Error())
		}

		rel := filepath.Join(sum[:2], sum)
		dst := filepath.Join(c.root, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return reason.ErrServer.Withf("mkdir err[%s]", err.Error())
		}
		if err := os.Rename(tmpName, dst); err != nil {
			return reason.ErrServer.Withf("persist bytes err[%s]", err.Error())
		}

		out := Asset{
			ID:       c.uni.UniqueID(IDPrefixAsset),
			Hash:     sum,
			Path:     rel,
			Size:     size,
			RefCount: 1,
		}
		if err := tx.Create(&out).Error; err != nil {
			// 记录插入失败时回收已落盘的字节，保持存储与库一致
			_ = os.Remove(dst)
			return reason.ErrDB.Withf("register asset err[%s]", err.Error())
		}
		res = &StoreResult{Asset: &out, Deduplicated: false}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// StoreFile 将本地文件纳入去重存储，渲染产物入库用
func (c *Core) StoreFile(ctx context.Context, path string) (*StoreResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, reason.ErrServer.Withf("open file[%s] err[%s]", path, err.Error())
	}
	defer f.Close()
	return c.Store(ctx, f)
}

// GetAsset Query a single object
func (c *Core) GetAsset(ctx context.Context, id string) (*Asset, error) {
	out := Asset{ID: id}
	if err := c.store.Asset().Get(ctx, &out, orm.Where("id=?", id)); err != nil {
		if orm.IsErrRecordNotFound(err) {
			return nil, reason.ErrNotFound.Withf(`Get id[%v] err[%s]`, id, err.Error())
		}
		return nil, reason.ErrDB.Withf(`Get id[%v] err[%s]`, id, err.Error())
	}
	return &out, nil
}

// Release 递减引用计数，归零时删除记录并回收字节
func (c *Core) Release(ctx context.Context, id string) error {
	c.m.Lock()
	defer c.m.Unlock()

	var out Asset
	if err := c.store.Asset().Edit(ctx, &out, func(a *Asset) {
		a.RefCount--
	}, orm.Where("id=?", id)); err != nil {
		if orm.IsErrRecordNotFound(err) {
			return reason.ErrNotFound.Withf("Release id[%v]", id)
		}
		return reason.ErrDB.Withf("Release id[%v] err[%s]", id, err.Error())
	}
	if out.RefCount > 0 {
		return nil
	}
	if err := c.store.Asset().Del(ctx, &out, orm.Where("id=?", id)); err != nil {
		return reason.ErrDB.Withf("Release del id[%v] err[%s]", id, err.Error())
	}
	full := filepath.Join(c.root, out.Path)
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		slog.Warn("reclaim asset bytes", "path", full, "err", err)
	}
	return nil
}

// FullPath 资产文件的完整路径
func (c *Core) FullPath(a *Asset) string {
	return filepath.Join(c.root, a.Path)
}

// Open 打开资产内容，调用方负责 Close
func (c *Core) Open(ctx context.Context, id string) (*os.File, *Asset, error) {
	a, err := c.GetAsset(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(c.FullPath(a))
	if err != nil {
		return nil, nil, reason.ErrServer.Withf("open asset id[%s] err[%s]", id, err.Error())
	}
	return f, a, nil
}

// Exists 资产字节是否已落盘
func (c *Core) Exists(a *Asset) bool {
	if a == nil {
		return false
	}
	_, err := os.Stat(c.FullPath(a))
	return err == nil
}
