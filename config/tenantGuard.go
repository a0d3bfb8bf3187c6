package config

import (
	"context"
	"errors"
	"reflect"
	"strings"

	"github.com/mmdatafocus/salon_backend/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrCrossTenantWrite = errors.New("cross-tenant write rejected")

// TenantGuardPlugin enforces multi-tenant isolation by automatically scoping
// queries/updates/deletes to the request's business_id when the model has a business_id column,
// and by rejecting inserts whose business_id differs from the request's.
//
// NOTE:
// - This does NOT apply to Raw SQL queries. Those must include business_id manually.
// - Internal bypass is explicit via appctx.ContextKeySkipTenantScope.
type TenantGuardPlugin struct{}

func NewTenantGuardPlugin() *TenantGuardPlugin { return &TenantGuardPlugin{} }

func (p *TenantGuardPlugin) Name() string { return "tenant_guard" }

func (p *TenantGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("tenant_guard:query", tenantGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("tenant_guard:row", tenantGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("tenant_guard:update", tenantGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("tenant_guard:delete", tenantGuardCallback); err != nil {
		return err
	}
	return db.Callback().Create().Before("gorm:create").Register("tenant_guard:create", tenantCreateCallback)
}

func tenantGuardCallback(db *gorm.DB) {
	businessID, ok := guardedBusinessId(db)
	if !ok {
		return
	}
	// Don't duplicate an explicit tenant filter.
	if whereHasBusinessID(db.Statement.Clauses["WHERE"]) {
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: "business_id"},
				Value:  businessID,
			},
		},
	})
}

func tenantCreateCallback(db *gorm.DB) {
	businessID, ok := guardedBusinessId(db)
	if !ok {
		return
	}
	field := db.Statement.Schema.LookUpField("business_id")
	if field == nil {
		return
	}
	rv := db.Statement.ReflectValue
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if !rowBelongsTo(db.Statement.Context, field.ValueOf, reflect.Indirect(rv.Index(i)), businessID) {
				_ = db.AddError(ErrCrossTenantWrite)
				return
			}
		}
	case reflect.Struct:
		if !rowBelongsTo(db.Statement.Context, field.ValueOf, rv, businessID) {
			_ = db.AddError(ErrCrossTenantWrite)
		}
	}
}

func rowBelongsTo(ctx context.Context, valueOf func(context.Context, reflect.Value) (interface{}, bool), row reflect.Value, businessID string) bool {
	v, zero := valueOf(ctx, row)
	if zero {
		// Unset business_id is caught by NOT NULL constraints, not here.
		return true
	}
	s, ok := v.(string)
	return !ok || s == businessID
}

// guardedBusinessId returns the request's business id when the statement's
// model carries a business_id column and scoping is not bypassed.
func guardedBusinessId(db *gorm.DB) (string, bool) {
	if db == nil || db.Statement == nil {
		return "", false
	}
	ctx := db.Statement.Context
	if ctx == nil {
		return "", false
	}
	if v, ok := appctx.GetBool(ctx, appctx.ContextKeySkipTenantScope); ok && v {
		return "", false
	}
	businessID, ok := appctx.GetString(ctx, appctx.ContextKeyBusinessId)
	if !ok || businessID == "" {
		return "", false
	}
	if db.Statement.Schema == nil {
		return "", false
	}
	for _, f := range db.Statement.Schema.Fields {
		if strings.EqualFold(f.DBName, "business_id") {
			return businessID, true
		}
	}
	return "", false
}

func whereHasBusinessID(c clause.Clause) bool {
	if c.Expression == nil {
		return false
	}
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasBusinessID(e) {
			return true
		}
	}
	return false
}

func exprHasBusinessID(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colIsBusinessID(v.Column)
	case clause.IN:
		return colIsBusinessID(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasBusinessID(x) {
				return true
			}
		}
		return false
	case clause.Expr:
		// Best-effort for raw expressions.
		return strings.Contains(strings.ToLower(v.SQL), "business_id")
	default:
		return false
	}
}

func colIsBusinessID(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, "business_id")
	case clause.Column:
		return strings.EqualFold(c.Name, "business_id")
	default:
		return false
	}
}
