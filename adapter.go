// Package ruleadapter persists Casbin policy rules through GORM.
//
// The adapter translates between the enforcer's in-memory rule tuples and
// rows of a fixed-shape rule table. It owns no authorization logic and no
// schema management: the table must already exist (see CasbinRule for the
// shape to migrate), and every failure from the database layer propagates
// to the caller unchanged.
package ruleadapter

import (
	"errors"
	"fmt"

	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
	"gorm.io/gorm"
)

var (
	// ErrTooManyFields reports a rule tuple or field index that reaches past
	// the six value columns of the rule table.
	ErrTooManyFields = errors.New("rule exceeds six value fields")

	// ErrInvalidFilter reports a LoadFilteredPolicy filter of the wrong type.
	ErrInvalidFilter = errors.New("filter must be a *ruleadapter.Filter")
)

// Adapter stores Casbin policy rules in a relational table through an
// already-connected GORM handle.
//
// Adapter implements the FilteredAdapter, BatchAdapter and UpdatableAdapter
// capability sets. It performs no locking of its own; concurrent callers rely
// on the isolation guarantees of the underlying database.
type Adapter struct {
	db        *gorm.DB
	tableName string
	filtered  bool
}

var (
	_ persist.FilteredAdapter  = (*Adapter)(nil)
	_ persist.BatchAdapter     = (*Adapter)(nil)
	_ persist.UpdatableAdapter = (*Adapter)(nil)
)

// Option configures an Adapter during construction.
type Option func(*Adapter)

// WithTableName binds the adapter to a rule table other than casbin_rule.
func WithTableName(name string) Option {
	return func(a *Adapter) {
		a.tableName = name
	}
}

// NewAdapterByDB wraps an already-connected GORM handle. Construction issues
// no queries: the rule table must exist before the first operation, and the
// adapter never migrates it.
func NewAdapterByDB(db *gorm.DB, opts ...Option) (*Adapter, error) {
	if db == nil {
		return nil, errors.New("nil gorm handle")
	}
	a := &Adapter{db: db, tableName: defaultTableName}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// table starts a new statement against the adapter's rule table.
func (a *Adapter) table() *gorm.DB {
	return a.db.Table(a.tableName)
}

// LoadPolicy reads every rule row and installs it into the model. It does
// not mark the adapter filtered.
func (a *Adapter) LoadPolicy(m model.Model) error {
	var rules []CasbinRule
	if err := a.table().Order("id").Find(&rules).Error; err != nil {
		return err
	}
	for _, rule := range rules {
		if err := persist.LoadPolicyLine(rule.policyLine(), m); err != nil {
			return err
		}
	}
	return nil
}

// LoadFilteredPolicy reads only the rows matching the filter's set fields
// and installs them into the model. An empty filter matches every row.
//
// Any call to this method marks the adapter filtered, regardless of the
// filter's content or whether it matched anything; the flag never reverts
// for the lifetime of the adapter.
func (a *Adapter) LoadFilteredPolicy(m model.Model, filter interface{}) error {
	var f *Filter
	switch v := filter.(type) {
	case nil:
		f = &Filter{}
	case Filter:
		f = &v
	case *Filter:
		f = v
	default:
		return fmt.Errorf("%w, got %T", ErrInvalidFilter, filter)
	}

	where := f.asRule()
	var rules []CasbinRule
	if err := a.table().Where(&where).Order("id").Find(&rules).Error; err != nil {
		return err
	}
	for _, rule := range rules {
		if err := persist.LoadPolicyLine(rule.policyLine(), m); err != nil {
			return err
		}
	}
	a.filtered = true
	return nil
}

// IsFiltered reports whether the in-memory policy set was populated through
// a constrained read. No I/O.
func (a *Adapter) IsFiltered() bool {
	return a.filtered
}

// SavePolicy replaces the whole table with the model's current rule set,
// covering both the policy and the grouping sections. An empty model leaves
// the table empty.
//
// The delete and the bulk insert run in one transaction. That is stronger
// than adapters which issue the two statements back to back and can be
// observed half-replaced; callers here see either the old rule set or the
// new one.
func (a *Adapter) SavePolicy(m model.Model) error {
	var rows []CasbinRule
	for _, sec := range []string{"p", "g"} {
		for ptype, ast := range m[sec] {
			for _, rule := range ast.Policy {
				row, err := newCasbinRule(ptype, rule)
				if err != nil {
					return err
				}
				rows = append(rows, row)
			}
		}
	}

	return a.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Table(a.tableName).
			Session(&gorm.Session{AllowGlobalUpdate: true}).
			Delete(&CasbinRule{}).Error
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Table(a.tableName).CreateInBatches(rows, 500).Error
	})
}

// AddPolicy inserts one rule row.
func (a *Adapter) AddPolicy(sec string, ptype string, rule []string) error {
	row, err := newCasbinRule(ptype, rule)
	if err != nil {
		return err
	}
	return a.table().Create(&row).Error
}

// AddPolicies inserts the rules as a single batched statement.
func (a *Adapter) AddPolicies(sec string, ptype string, rules [][]string) error {
	if len(rules) == 0 {
		return nil
	}
	rows := make([]CasbinRule, 0, len(rules))
	for _, rule := range rules {
		row, err := newCasbinRule(ptype, rule)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	return a.table().Create(&rows).Error
}

// RemovePolicy deletes the rows whose ptype and set value columns equal the
// rule's positional encoding. Matching zero rows is not an error.
func (a *Adapter) RemovePolicy(sec string, ptype string, rule []string) error {
	row, err := newCasbinRule(ptype, rule)
	if err != nil {
		return err
	}
	return a.table().Where(&row).Delete(&CasbinRule{}).Error
}

// RemovePolicies removes the rules one by one in list order, inside a single
// transaction so a failure part way through rolls the earlier deletes back.
func (a *Adapter) RemovePolicies(sec string, ptype string, rules [][]string) error {
	return a.db.Transaction(func(tx *gorm.DB) error {
		for _, rule := range rules {
			row, err := newCasbinRule(ptype, rule)
			if err != nil {
				return err
			}
			if err := tx.Table(a.tableName).Where(&row).Delete(&CasbinRule{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveFilteredPolicy deletes the rows matching ptype (when non-empty) and
// an equality constraint on column v(fieldIndex+i) for each non-empty value.
// If nothing ends up constrained the call is a no-op: it never degenerates
// into an unconditional delete of the whole table.
func (a *Adapter) RemoveFilteredPolicy(sec string, ptype string, fieldIndex int, fieldValues ...string) error {
	where, constrained, err := filteredRule(ptype, fieldIndex, fieldValues)
	if err != nil {
		return err
	}
	if !constrained {
		return nil
	}
	return a.table().Where(&where).Delete(&CasbinRule{}).Error
}

// filteredRule builds the positional predicate shared by the filtered remove
// and filtered update paths. Empty values impose no constraint, like unset
// filter fields. Indices reaching past v5 are rejected rather than dropped:
// dropping a constraint would widen the match beyond what the caller asked.
func filteredRule(ptype string, fieldIndex int, fieldValues []string) (CasbinRule, bool, error) {
	if fieldIndex < 0 || fieldIndex+len(fieldValues) > maxRuleFields {
		return CasbinRule{}, false, fmt.Errorf("%w: index %d with %d values", ErrTooManyFields, fieldIndex, len(fieldValues))
	}
	row := CasbinRule{Ptype: ptype}
	constrained := ptype != ""
	for i, v := range fieldValues {
		if v == "" {
			continue
		}
		row.setValue(fieldIndex+i, v)
		constrained = true
	}
	return row, constrained, nil
}

// UpdatePolicy overwrites the row matching the old rule's set fields with the
// new rule's encoding. All seven columns are written so that a shorter new
// rule clears the slots the old one used. Matching zero rows is a no-op.
func (a *Adapter) UpdatePolicy(sec string, ptype string, oldRule, newRule []string) error {
	return a.updatePolicy(a.db, ptype, oldRule, newRule)
}

func (a *Adapter) updatePolicy(db *gorm.DB, ptype string, oldRule, newRule []string) error {
	oldRow, err := newCasbinRule(ptype, oldRule)
	if err != nil {
		return err
	}
	newRow, err := newCasbinRule(ptype, newRule)
	if err != nil {
		return err
	}
	return db.Table(a.tableName).Where(&oldRow).Updates(newRow.columns()).Error
}

// UpdatePolicies applies UpdatePolicy pairwise over the two lists inside a
// single transaction.
func (a *Adapter) UpdatePolicies(sec string, ptype string, oldRules, newRules [][]string) error {
	if len(oldRules) != len(newRules) {
		return fmt.Errorf("update expects matching rule counts, got %d old and %d new", len(oldRules), len(newRules))
	}
	return a.db.Transaction(func(tx *gorm.DB) error {
		for i := range oldRules {
			if err := a.updatePolicy(tx, ptype, oldRules[i], newRules[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateFilteredPolicies replaces every row matching the positional predicate
// with the given rules, transactionally, and returns the displaced rule
// tuples. Unlike RemoveFilteredPolicy, an empty predicate here means "match
// everything": that is the replace-by-filter contract, not a degenerate
// delete.
func (a *Adapter) UpdateFilteredPolicies(sec string, ptype string, newRules [][]string, fieldIndex int, fieldValues ...string) ([][]string, error) {
	where, _, err := filteredRule(ptype, fieldIndex, fieldValues)
	if err != nil {
		return nil, err
	}
	rows := make([]CasbinRule, 0, len(newRules))
	for _, rule := range newRules {
		row, err := newCasbinRule(ptype, rule)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	var displaced []CasbinRule
	err = a.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(a.tableName).Where(&where).Order("id").Find(&displaced).Error; err != nil {
			return err
		}
		if len(displaced) > 0 {
			ids := make([]uint, 0, len(displaced))
			for _, r := range displaced {
				ids = append(ids, r.ID)
			}
			if err := tx.Table(a.tableName).Where("id IN ?", ids).Delete(&CasbinRule{}).Error; err != nil {
				return err
			}
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Table(a.tableName).Create(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	oldRules := make([][]string, 0, len(displaced))
	for _, r := range displaced {
		oldRules = append(oldRules, r.values())
	}
	return oldRules, nil
}
