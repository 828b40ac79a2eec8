package auth

import "sort"

// Permission names one capability an admin endpoint may require.
type Permission string

const (
	PermViewProducts   Permission = "VIEW_PRODUCTS"
	PermCreateProducts Permission = "CREATE_PRODUCTS"
	PermEditProducts   Permission = "EDIT_PRODUCTS"
	PermDeleteProducts Permission = "DELETE_PRODUCTS"
	PermViewOrders     Permission = "VIEW_ORDERS"
	PermEditOrders     Permission = "EDIT_ORDERS"
	PermViewSettings   Permission = "VIEW_SETTINGS"
	PermEditSettings   Permission = "EDIT_SETTINGS"
	PermViewAuditLogs  Permission = "VIEW_AUDIT_LOGS"
	PermViewMedia      Permission = "VIEW_MEDIA"
	PermUploadMedia    Permission = "UPLOAD_MEDIA"
	PermDeleteMedia    Permission = "DELETE_MEDIA"
	PermViewGiftCards  Permission = "VIEW_GIFT_CARDS"
	PermEditGiftCards  Permission = "EDIT_GIFT_CARDS"
	PermManageUsers    Permission = "MANAGE_USERS"
)

// AllPermissions is the closed permission vocabulary.
var AllPermissions = []Permission{
	PermViewProducts, PermCreateProducts, PermEditProducts, PermDeleteProducts,
	PermViewOrders, PermEditOrders,
	PermViewSettings, PermEditSettings,
	PermViewAuditLogs,
	PermViewMedia, PermUploadMedia, PermDeleteMedia,
	PermViewGiftCards, PermEditGiftCards,
	PermManageUsers,
}

var (
	orderViewerPerms = []Permission{
		PermViewOrders,
		PermViewProducts,
	}
	businessProcessingPerms = append(append([]Permission{}, orderViewerPerms...),
		PermEditOrders,
		PermCreateProducts,
		PermEditProducts,
		PermViewSettings,
		PermViewMedia,
		PermUploadMedia,
		PermViewGiftCards,
	)
	websiteAdminPerms = append(append([]Permission{}, businessProcessingPerms...),
		PermDeleteProducts,
		PermEditSettings,
		PermViewAuditLogs,
		PermDeleteMedia,
		PermEditGiftCards,
		PermManageUsers,
	)

	rolePermissions = map[Role]map[Permission]struct{}{
		RoleOrderViewer:        setOf(orderViewerPerms),
		RoleBusinessProcessing: setOf(businessProcessingPerms),
		RoleWebsiteAdmin:       setOf(websiteAdminPerms),
	}
)

func setOf(perms []Permission) map[Permission]struct{} {
	set := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Allows reports whether role holds perm. Unknown roles and permissions deny.
func Allows(role Role, perm Permission) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	_, ok = perms[perm]
	return ok
}

// PermissionsFor returns the sorted permissions granted to role.
func PermissionsFor(role Role) []Permission {
	perms := rolePermissions[role]
	out := make([]Permission, 0, len(perms))
	for p := range perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
