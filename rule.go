package ruleadapter

import (
	"fmt"
	"strings"
)

const defaultTableName = "casbin_rule"

// maxRuleFields is the number of value columns in the rule table.
const maxRuleFields = 6

// CasbinRule represents a row in the policy rule table.
//
// An empty string in V0..V5 marks an unused slot. Rule tuples are built by
// positional append, so a non-empty Vi implies V0..Vi-1 are non-empty too;
// reading the non-empty prefix of a row reconstructs the original tuple.
type CasbinRule struct {
	ID    uint   `gorm:"primaryKey;autoIncrement"`
	Ptype string `gorm:"size:100;index"`
	V0    string `gorm:"size:100"`
	V1    string `gorm:"size:100"`
	V2    string `gorm:"size:100"`
	V3    string `gorm:"size:100"`
	V4    string `gorm:"size:100"`
	V5    string `gorm:"size:100"`
}

// TableName binds the model to the default table. Adapters constructed with
// WithTableName query their own table and ignore this binding.
func (CasbinRule) TableName() string {
	return defaultTableName
}

// newCasbinRule encodes a rule tuple positionally: rule[i] goes to column Vi.
// Fields must be non-empty: an empty string marks an unused slot, so a tuple
// with an empty middle field would read back truncated at that field.
func newCasbinRule(ptype string, rule []string) (CasbinRule, error) {
	if len(rule) > maxRuleFields {
		return CasbinRule{}, fmt.Errorf("%w: ptype %s with %d fields", ErrTooManyFields, ptype, len(rule))
	}
	row := CasbinRule{Ptype: ptype}
	for i, v := range rule {
		row.setValue(i, v)
	}
	return row, nil
}

// setValue assigns a rule field to its value column. Callers guarantee
// 0 <= i < maxRuleFields.
func (r *CasbinRule) setValue(i int, v string) {
	switch i {
	case 0:
		r.V0 = v
	case 1:
		r.V1 = v
	case 2:
		r.V2 = v
	case 3:
		r.V3 = v
	case 4:
		r.V4 = v
	case 5:
		r.V5 = v
	}
}

// values returns the non-empty prefix of the value columns as a rule tuple.
func (r *CasbinRule) values() []string {
	tuple := make([]string, 0, maxRuleFields)
	for _, v := range []string{r.V0, r.V1, r.V2, r.V3, r.V4, r.V5} {
		if v == "" {
			break
		}
		tuple = append(tuple, v)
	}
	return tuple
}

// policyLine renders the row as a Casbin policy line, quoting each value so
// that embedded commas survive the enforcer's CSV parsing:
//
//	p, "alice", "data1", "read"
func (r *CasbinRule) policyLine() string {
	var b strings.Builder
	b.WriteString(r.Ptype)
	for _, v := range r.values() {
		b.WriteString(`, "`)
		b.WriteString(v)
		b.WriteString(`"`)
	}
	return b.String()
}

// columns lists every writable column, including cleared value slots, so an
// update can overwrite a longer tuple with a shorter one.
func (r *CasbinRule) columns() map[string]interface{} {
	return map[string]interface{}{
		"ptype": r.Ptype,
		"v0":    r.V0,
		"v1":    r.V1,
		"v2":    r.V2,
		"v3":    r.V3,
		"v4":    r.V4,
		"v5":    r.V5,
	}
}
