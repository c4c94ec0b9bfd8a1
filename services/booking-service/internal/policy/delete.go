package policy

type Entity string

const (
	EntityAppointment Entity = "appointment"
	EntityProvider    Entity = "provider"
	EntityPatient     Entity = "patient"
	EntityLocation    Entity = "location"
)

type DeleteMode int

const (
	// HardDelete removes the row.
	HardDelete DeleteMode = iota
	// SoftDelete keeps the row and sets status to 'deleted'.
	SoftDelete
)

func (m DeleteMode) String() string {
	if m == SoftDelete {
		return "soft"
	}
	return "hard"
}

var deletePolicies = map[Entity]DeleteMode{
	EntityAppointment: HardDelete,
	EntityProvider:    SoftDelete,
	EntityPatient:     SoftDelete,
	EntityLocation:    SoftDelete,
}

// DeletePolicyFor returns how e is deleted. Unknown entities are soft deleted.
func DeletePolicyFor(e Entity) DeleteMode {
	if m, ok := deletePolicies[e]; ok {
		return m
	}
	return SoftDelete
}
