// internal/orphan/registry.go
package orphan

// TableDescriptor declares one tenant-owned table. The registry below is
// the single source of truth for which tables carry a tenant id; a table
// missing here is never scanned, remediated, or migrated, so adding a new
// tenant-owned entity requires a registry entry.
//
// All identifiers used to build SQL come from these fixed descriptors,
// never from request input.
type TableDescriptor struct {
	Name          string
	IDColumn      string
	TenantColumn  string
	DisplayColumn string
}

// UsersTable gets special handling everywhere: super users are allowed a
// null tenant id, and ordinary users with one are reported, never fixed.
const UsersTable = "users"

var registry = []TableDescriptor{
	{Name: "workspaces", IDColumn: "id", TenantColumn: "tenant_id", DisplayColumn: "name"},
	{Name: "teams", IDColumn: "id", TenantColumn: "tenant_id", DisplayColumn: "name"},
	{Name: "clients", IDColumn: "id", TenantColumn: "tenant_id", DisplayColumn: "name"},
	{Name: "projects", IDColumn: "id", TenantColumn: "tenant_id", DisplayColumn: "name"},
	{Name: "sections", IDColumn: "id", TenantColumn: "tenant_id", DisplayColumn: "name"},
	{Name: "tasks", IDColumn: "id", TenantColumn: "tenant_id", DisplayColumn: "title"},
	{Name: "task_assignees", IDColumn: "id", TenantColumn: "tenant_id", DisplayColumn: "task_id"},
	{Name: "comments", IDColumn: "id", TenantColumn: "tenant_id", DisplayColumn: "body"},
	{Name: "time_entries", IDColumn: "id", TenantColumn: "tenant_id", DisplayColumn: "description"},
	{Name: UsersTable, IDColumn: "id", TenantColumn: "tenant_id", DisplayColumn: "email"},
}

// Registry returns the tenant-owned tables in scan order.
func Registry() []TableDescriptor {
	out := make([]TableDescriptor, len(registry))
	copy(out, registry)
	return out
}

// Descriptor looks a table up by name.
func Descriptor(name string) (TableDescriptor, bool) {
	for _, d := range registry {
		if d.Name == name {
			return d, true
		}
	}
	return TableDescriptor{}, false
}

// Relation declares how a child table infers its tenant: copy the tenant id
// of the parent row reached through JoinColumn. One generic set-based update
// interprets these; there is no per-relation SQL.
type Relation struct {
	Child      string
	Parent     string
	JoinColumn string
}

// relations lists every resolvable table. workspaces is the root of the
// hierarchy and has no parent; its orphans can only go to quarantine. users
// are deliberately absent (see UsersTable).
var relations = []Relation{
	{Child: "teams", Parent: "workspaces", JoinColumn: "workspace_id"},
	{Child: "clients", Parent: "workspaces", JoinColumn: "workspace_id"},
	{Child: "projects", Parent: "workspaces", JoinColumn: "workspace_id"},
	{Child: "sections", Parent: "projects", JoinColumn: "project_id"},
	{Child: "tasks", Parent: "projects", JoinColumn: "project_id"},
	{Child: "task_assignees", Parent: "tasks", JoinColumn: "task_id"},
	{Child: "comments", Parent: "tasks", JoinColumn: "task_id"},
	{Child: "time_entries", Parent: "users", JoinColumn: "user_id"},
}

// Relations returns the relation table in resolution order. Parents appear
// before children where it matters (projects before tasks), so one pass
// propagates tenants down the hierarchy.
func Relations() []Relation {
	out := make([]Relation, len(relations))
	copy(out, relations)
	return out
}
