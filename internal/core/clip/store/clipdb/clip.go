package clipdb

import (
	"context"

	"github.com/clipworks/reframe/internal/core/clip"
	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/gorm"
)

var _ clip.Storer = DB{}

type DB struct {
	db *gorm.DB
}

func NewDB(db *gorm.DB) DB {
	return DB{db: db}
}

// AutoMigrate 按全局开关执行建表
func (d DB) AutoMigrate(enabled bool) DB {
	if enabled {
		_ = d.db.AutoMigrate(&clip.WorkingClip{})
	}
	return d
}

func (d DB) Clip() clip.ClipStorer {
	return Clip{db: d.db}
}

type Clip struct {
	db *gorm.DB
}

func (c Clip) apply(ctx context.Context, opts []orm.QueryOption) *gorm.DB {
	db := c.db.WithContext(ctx)
	for _, opt := range opts {
		db = opt(db)
	}
	return db
}

// Find implements clip.ClipStorer.
func (c Clip) Find(ctx context.Context, items *[]*clip.WorkingClip, pager orm.Pager, opts ...orm.QueryOption) (int64, error) {
	db := c.apply(ctx, opts).Model(&clip.WorkingClip{})
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return 0, err
	}
	if err := db.Offset(pager.Offset()).Limit(pager.Limit()).Find(items).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// Get implements clip.ClipStorer.
func (c Clip) Get(ctx context.Context, out *clip.WorkingClip, opts ...orm.QueryOption) error {
	return c.apply(ctx, opts).First(out).Error
}

// Add implements clip.ClipStorer.
func (c Clip) Add(ctx context.Context, w *clip.WorkingClip) error {
	return c.db.WithContext(ctx).Create(w).Error
}

// Edit implements clip.ClipStorer.
func (c Clip) Edit(ctx context.Context, out *clip.WorkingClip, changeFn func(*clip.WorkingClip), opts ...orm.QueryOption) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
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

// Del implements clip.ClipStorer.
func (c Clip) Del(ctx context.Context, out *clip.WorkingClip, opts ...orm.QueryOption) error {
	db := c.apply(ctx, opts)
	if err := db.First(out).Error; err != nil {
		return err
	}
	return db.Delete(out).Error
}
