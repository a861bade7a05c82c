package ruleadapter

// Filter restricts which rows LoadFilteredPolicy reads. Fields left empty
// impose no constraint; set fields are combined with AND.
type Filter struct {
	Ptype string
	V0    string
	V1    string
	V2    string
	V3    string
	V4    string
	V5    string
}

// asRule carries the filter into a struct-valued GORM Where clause, which
// skips zero-valued fields and so matches exactly the set fields.
func (f *Filter) asRule() CasbinRule {
	return CasbinRule{
		Ptype: f.Ptype,
		V0:    f.V0,
		V1:    f.V1,
		V2:    f.V2,
		V3:    f.V3,
		V4:    f.V4,
		V5:    f.V5,
	}
}
