package renderdb

import (
	"context"

	"github.com/clipworks/reframe/internal/core/render"
	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/gorm"
)

var _ render.Storer = DB{}

type DB struct {
	db *gorm.DB
}

func NewDB(db *gorm.DB) DB {
	return DB{db: db}
}

// AutoMigrate 按全局开关执行建表
func (d DB) AutoMigrate(enabled bool) DB {
	if enabled {
		_ = d.db.AutoMigrate(&render.Job{})
	}
	return d
}

func (d DB) Job() render.JobStorer {
	return Job{db: d.db}
}

type Job struct {
	db *gorm.DB
}

func (j Job) apply(ctx context.Context, opts []orm.QueryOption) *gorm.DB {
	db := j.db.WithContext(ctx)
	for _, opt := range opts {
		db = opt(db)
	}
	return db
}

// Find implements render.JobStorer.
func (j Job) Find(ctx context.Context, items *[]*render.Job, pager orm.Pager, opts ...orm.QueryOption) (int64, error) {
	db := j.apply(ctx, opts).Model(&render.Job{})
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return 0, err
	}
	if err := db.Offset(pager.Offset()).Limit(pager.Limit()).Find(items).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// Get implements render.JobStorer.
func (j Job) Get(ctx context.Context, out *render.Job, opts ...orm.QueryOption) error {
	return j.apply(ctx, opts).First(out).Error
}

// Add implements render.JobStorer.
func (j Job) Add(ctx context.Context, job *render.Job) error {
	return j.db.WithContext(ctx).Create(job).Error
}

// Edit implements render.JobStorer.
func (j Job) Edit(ctx context.Context, out *render.Job, changeFn func(*render.Job), opts ...orm.QueryOption) error {
	return j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
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
