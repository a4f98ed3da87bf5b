package transform

import (
	"time"

	"github.com/ugdata/mysql2mongo/internal/schema"
)

// FieldSpec declares one field of an allow-list rule. Default fills in a
// value when the source field is null; Stringify forces the value to its
// string form.
type FieldSpec struct {
	Name      string
	Default   any
	Stringify bool
}

// FieldRule transforms rows using an explicit allow-list of fields.
// Fields absent from the list are dropped; null fields without a default
// are dropped too.
type FieldRule struct {
	Fields []FieldSpec
}

// Transform implements Rule.
func (r FieldRule) Transform(unit schema.Unit, rows []schema.Row, migratedAt time.Time) []schema.Document {
	docs := make([]schema.Document, 0, len(rows))
	for _, row := range rows {
		doc := make(schema.Document, len(r.Fields)+3)
		if id, ok := row[unit.IdentityField]; ok && id != nil {
			doc[schema.FieldID] = schema.StringifyIdentity(id)
		}
		for _, spec := range r.Fields {
			value, ok := row[spec.Name]
			if !ok || value == nil {
				value = spec.Default
			}
			if value == nil {
				continue
			}
			if spec.Stringify {
				doc[spec.Name] = schema.StringifyIdentity(value)
				continue
			}
			if coerced := CoerceValue(value); coerced != nil {
				doc[spec.Name] = coerced
			}
		}
		addProvenance(doc, migratedAt)
		docs = append(docs, doc)
	}
	return docs
}

// registerBuiltinRules installs the dedicated rules shipped with the
// migrator.
func registerBuiltinRules(r *Registry) {
	r.Register("ug_order", FieldRule{Fields: []FieldSpec{
		{Name: "uid", Stringify: true},
		{Name: "appID", Default: 0},
		{Name: "channelID", Default: 0},
		{Name: "payType", Default: 0},
		{Name: "orderType", Default: 0},
		{Name: "status", Default: 0},
		{Name: "notifyStatus", Default: 0},
		{Name: "notifyContent"},
		{Name: "refundStatus", Default: 0},
		{Name: "refundType", Default: 0},
		{Name: "refundDesc"},
		{Name: "cpOrderID"},
		{Name: "extra"},
		{Name: "payNotifyUrl"},
		{Name: "price", Default: 0},
		{Name: "realPrice", Default: 0},
		{Name: "coinPrice", Default: 0},
		{Name: "costCoinNum", Default: 0},
		{Name: "currency"},
		{Name: "platformOrderID"},
		{Name: "platformUserID"},
		{Name: "platformPrice"},
		{Name: "productID"},
		{Name: "productName"},
		{Name: "productDesc"},
		{Name: "roleID"},
		{Name: "roleName"},
		{Name: "roleLevel"},
		{Name: "serverID"},
		{Name: "serverName"},
		{Name: "vip"},
		{Name: "ip"},
		{Name: "deviceID"},
		{Name: "userCreateTime"},
		{Name: "createTime"},
		{Name: "finishTime"},
		{Name: "updateTime"},
	}})

	r.Register("ug_user", FieldRule{Fields: []FieldSpec{
		{Name: "name", Default: ""},
		{Name: "phoneNum", Default: ""},
		{Name: "loginName", Default: ""},
		{Name: "password", Default: ""},
		{Name: "lastLoginTime"},
		{Name: "createTime"},
		{Name: "updateTime"},
		{Name: "appID", Default: 0},
		{Name: "accountType", Default: 0},
		{Name: "deviceID"},
		{Name: "ip"},
		{Name: "channelID", Default: 0},
		{Name: "realName"},
		{Name: "idCard"},
		{Name: "coinNum", Default: 0},
	}})

	// ug_id_card_config keys on appID instead of id; schema.UnitFor
	// carries the matching built-in identity field.
	r.Register("ug_id_card_config", FieldRule{Fields: []FieldSpec{
		{Name: "appID", Default: 0},
		{Name: "rnAppID", Default: ""},
		{Name: "rnSecretKey", Default: ""},
		{Name: "rnBizID", Default: ""},
		{Name: "rnState", Default: 0},
		{Name: "rnVerifyType", Default: 0},
	}})
}
