package domain

const (
	RoleAdmin      = "admin"
	RoleBackoffice = "backoffice"
	RoleClient     = "client"
	RolePartner    = "partner"
)

// Principal is the authenticated caller attached to a request.
type Principal struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
}

// Elevated reports whether the principal may read other users' documents.
func (p Principal) Elevated() bool {
	return p.Role == RoleAdmin || p.Role == RoleBackoffice
}

func (p Principal) CanAccess(doc *Document) bool {
	if doc == nil {
		return false
	}
	return doc.OwnerID == p.UserID || p.Elevated()
}
