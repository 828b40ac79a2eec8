package auth

// Can reports whether the principal may exercise perm. Inactive principals hold nothing.
func (p Principal) Can(perm Permission) bool {
	return p.Active && Allows(p.Role, perm)
}
