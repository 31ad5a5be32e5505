package identity

// Static is a fixed user-to-roles map, used by tests and single-binary
// development setups
type Static struct {
	Roles map[string][]string
}

func NewStatic(roles map[string][]string) *Static {
	return &Static{Roles: roles}
}

func (p *Static) GetRoles(userId string) ([]string, error) {
	roles, ok := p.Roles[userId]
	if !ok {
		return nil, nil
	}
	return roles, nil
}

var _ RoleProvider = (*Static)(nil)
