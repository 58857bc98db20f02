package model

type Role string

const (
	RoleAdmin    Role = "admin"
	RolePreparer Role = "preparateur"
)

type Principal struct {
	UserID    string
	Email     string
	Role      Role
	AgencyIDs []string
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

func (p Principal) IsPreparer() bool {
	return p.Role == RolePreparer
}

// HasAgency reports whether the principal may act on behalf of the agency.
// Admins are not restricted to a list.
func (p Principal) HasAgency(agencyID string) bool {
	if p.IsAdmin() {
		return true
	}
	for _, id := range p.AgencyIDs {
		if id == agencyID {
			return true
		}
	}
	return false
}

// Session carries everything a request needs to talk to the backend on behalf of a user.
type Session struct {
	Principal Principal
	Token     string
	AgencyID  string
}

func (s Session) HasAgency() bool {
	return s.AgencyID != ""
}
