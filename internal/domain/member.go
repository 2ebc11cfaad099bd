package domain

// Member attribute keys produced by the directory.
const (
	AttrUsername    = "username"
	AttrEmail       = "email"
	AttrFirstName   = "first_name"
	AttrLastName    = "last_name"
	AttrDisplayName = "display_name"
)

// Member is a directory-resolved identity.
type Member struct {
	ExternalID string            `json:"external_id"`
	Attributes map[string]string `json:"attributes"`
}

// Username returns the member's username attribute.
func (m Member) Username() string {
	return m.Attributes[AttrUsername]
}

// Attr returns an attribute value or "" when unset.
func (m Member) Attr(key string) string {
	return m.Attributes[key]
}

// RemoteUser is a user account on the platform.
type RemoteUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}
