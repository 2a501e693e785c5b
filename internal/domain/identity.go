package domain

// Identity is the verified caller resolved once at the boundary. The core
// never reads identity fields from request bodies.
type Identity struct {
	Subject        string
	OrganizationID string
	Admin          bool
}

func (i Identity) Anonymous() bool {
	return i.Subject == ""
}

// Admin-capable or owning identities may manage a document.
func (i Identity) CanManage(doc Document) bool {
	if i.Anonymous() {
		return false
	}
	return i.Admin || doc.OwnedBy(i)
}

// OwnerKey is the owner id a listing of i's own documents is keyed on.
func (i Identity) OwnerKey() (string, OwnerKind) {
	if i.OrganizationID != "" {
		return i.OrganizationID, OwnerOrganization
	}
	return i.Subject, OwnerPersonal
}
