package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/ragdesk/internal/model"
	"github.com/xxxsen/ragdesk/internal/pkg/dbutil"
	appErr "github.com/xxxsen/ragdesk/internal/pkg/errors"
)

var tenantFields = []string{"id", "name", "active", "ctime", "mtime"}

type TenantRepo struct {
	db *sql.DB
}

func NewTenantRepo(db *sql.DB) *TenantRepo {
	return &TenantRepo{db: db}
}

func (r *TenantRepo) Create(ctx context.Context, tenant *model.Tenant) error {
	data := map[string]interface{}{
		"id":     tenant.ID,
		"name":   tenant.Name,
		"active": tenant.Active,
		"ctime":  tenant.Ctime,
		"mtime":  tenant.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("tenants", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *TenantRepo) GetByID(ctx context.Context, tenantID string) (*model.Tenant, error) {
	where := map[string]interface{}{"id": tenantID}
	sqlStr, args, err := builder.BuildSelect("tenants", where, tenantFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var t model.Tenant
	err = r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&t.ID, &t.Name, &t.Active, &t.Ctime, &t.Mtime)
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, dbutil.Classify(err)
	}
	return &t, nil
}

func (r *TenantRepo) SetActive(ctx context.Context, tenantID string, active bool, mtime int64) error {
	where := map[string]interface{}{"id": tenantID}
	update := map[string]interface{}{"active": active, "mtime": mtime}
	sqlStr, args, err := builder.BuildUpdate("tenants", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, appErr.ErrNotFound)
}
