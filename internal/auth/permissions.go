package auth

// Capability tokens carried on user records. Route gates match on these
// with RequirePermission; every listed permission must be present.
const (
	PermPerksWrite  = "perks:write"
	PermBlogWrite   = "blog:write"
	PermBlogPublish = "blog:publish"
	PermPagesWrite  = "pages:write"
	PermLeadsManage = "leads:manage"
	PermMediaUpload = "media:upload"
)

func AllPermissions() []string {
	return []string{
		PermPerksWrite,
		PermBlogWrite,
		PermBlogPublish,
		PermPagesWrite,
		PermLeadsManage,
		PermMediaUpload,
	}
}

// EditorPermissions is the default grant for the content_editor role.
func EditorPermissions() []string {
	return []string{
		PermPerksWrite,
		PermBlogWrite,
		PermPagesWrite,
		PermMediaUpload,
	}
}
