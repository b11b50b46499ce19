package assetdb

import (
	"context"

	"github.com/clipworks/reframe/internal/core/asset"
	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/gorm"
)

var _ asset.Storer = DB{}

type DB struct {
	db *gorm.DB
}

func NewDB(db *gorm.DB) DB {
	return DB{db: db}
}

// AutoMigrate 按全局开关执行建表
func (d DB) AutoMigrate(enabled bool) DB {
	if enabled {
		_ = d.db.AutoMigrate(&asset.Asset{})
	}
	return d
}

func (d DB) Asset() asset.AssetStorer {
	return Asset{db: d.db}
}

type Asset struct {
	db *gorm.DB
}

func (a Asset) apply(ctx context.Context, opts []orm.QueryOption) *gorm.DB {
	db := a.db.WithContext(ctx)
	for _, opt := range opts {
		db = opt(db)
	}
	return db
}

// Get implements asset.AssetStorer.
func (a Asset) Get(ctx context.Context, out *asset.Asset, opts ...orm.QueryOption) error {
	return a.apply(ctx, opts).First(out).Error
}

// Add implements asset.AssetStorer.
func (a Asset) Add(ctx context.Context, in *asset.Asset) error {
	return a.db.WithContext(ctx).Create(in).Error
}

// Edit implements asset.AssetStorer.
func (a Asset) Edit(ctx context.Context, out *asset.Asset, changeFn func(*asset.Asset), opts ...orm.QueryOption) error {
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		db := tx
		for _, opt := range opts {
			db = opt(db)
		}
		if err := db.First(out).Error; err != nil {
			return err
		}
		changeFn(out)
		return tx.Save(out).Error
	})
}

// Del implements asset.AssetStorer.
func (a Asset) Del(ctx context.Context, out *asset.Asset, opts ...orm.QueryOption) error {
	db := a.apply(ctx, opts)
	if err := db.First(out).Error; err != nil {
		return err
	}
	return db.Delete(out).Error
}

// Session implements asset.AssetStorer.
func (a Asset) Session(ctx context.Context, changeFns ...func(*gorm.DB) error) error {
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, fn := range changeFns {
			if err := fn(tx); err != nil {
				return err
			}
		}
		return nil
	})
}
