package feature

// Region is a storage location. The empty identifier is the unknown region.
type Region struct {
	ID string
}

// UnknownRegion is reported when a backend cannot tell where data lives.
var UnknownRegion = Region{}

func (r Region) IsUnknown() bool { return r.ID == "" }

func (r Region) String() string {
	if r.IsUnknown() {
		return "Unknown"
	}
	return r.ID
}
