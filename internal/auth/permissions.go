package auth

// ResourceKind identifies the four kinds of CRM resources the permission
// matrix governs.
type ResourceKind string

const (
	ResourceUser     ResourceKind = "user"
	ResourceClient   ResourceKind = "client"
	ResourceContract ResourceKind = "contract"
	ResourceEvent    ResourceKind = "event"
)

// Action is an operation on a resource kind.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionList   Action = "list"
	ActionAssign Action = "assign"
)

// Scope qualifies a granted permission. ScopeAny is decided by department
// alone; ScopeOwner and ScopeAssignee additionally require the acting identity
// to match the resource's owning commercial or assigned support.
type Scope string

const (
	ScopeAny      Scope = "any"
	ScopeOwner    Scope = "owner"
	ScopeAssignee Scope = "assignee"
)

type rule struct {
	Department Department
	Resource   ResourceKind
	Action     Action
}

// permissionMatrix is the single source of permission decisions. Adding a
// resource kind or relaxing a rule is a table edit, not new control flow.
// Absent key means denied.
var permissionMatrix = map[rule]Scope{
	// Users exist only for the management department.
	{DepartmentManagement, ResourceUser, ActionCreate}: ScopeAny,
	{DepartmentManagement, ResourceUser, ActionRead}:   ScopeAny,
	{DepartmentManagement, ResourceUser, ActionUpdate}: ScopeAny,
	{DepartmentManagement, ResourceUser, ActionDelete}: ScopeAny,
	{DepartmentManagement, ResourceUser, ActionList}:   ScopeAny,

	// Clients: created and maintained by their owning commercial,
	// management can correct any record, everyone can read.
	{DepartmentCommercial, ResourceClient, ActionCreate}: ScopeAny,
	{DepartmentCommercial, ResourceClient, ActionRead}:   ScopeAny,
	{DepartmentCommercial, ResourceClient, ActionList}:   ScopeAny,
	{DepartmentCommercial, ResourceClient, ActionUpdate}: ScopeOwner,
	{DepartmentCommercial, ResourceClient, ActionDelete}: ScopeOwner,
	{DepartmentSupport, ResourceClient, ActionRead}:      ScopeAny,
	{DepartmentSupport, ResourceClient, ActionList}:      ScopeAny,
	{DepartmentManagement, ResourceClient, ActionRead}:   ScopeAny,
	{DepartmentManagement, ResourceClient, ActionList}:   ScopeAny,
	{DepartmentManagement, ResourceClient, ActionUpdate}: ScopeAny,
	{DepartmentManagement, ResourceClient, ActionDelete}: ScopeAny,

	// Contracts: management owns the lifecycle, a commercial may update
	// contracts belonging to its own clients.
	{DepartmentCommercial, ResourceContract, ActionRead}:   ScopeAny,
	{DepartmentCommercial, ResourceContract, ActionList}:   ScopeAny,
	{DepartmentCommercial, ResourceContract, ActionUpdate}: ScopeOwner,
	{DepartmentSupport, ResourceContract, ActionRead}:      ScopeAny,
	{DepartmentSupport, ResourceContract, ActionList}:      ScopeAny,
	{DepartmentManagement, ResourceContract, ActionCreate}: ScopeAny,
	{DepartmentManagement, ResourceContract, ActionRead}:   ScopeAny,
	{DepartmentManagement, ResourceContract, ActionList}:   ScopeAny,
	{DepartmentManagement, ResourceContract, ActionUpdate}: ScopeAny,
	{DepartmentManagement, ResourceContract, ActionDelete}: ScopeAny,

	// Events: a commercial creates them and full-updates only its own,
	// support updates (notes) only events it is assigned to, management
	// assigns the support contact and may delete.
	{DepartmentCommercial, ResourceEvent, ActionCreate}: ScopeAny,
	{DepartmentCommercial, ResourceEvent, ActionRead}:   ScopeAny,
	{DepartmentCommercial, ResourceEvent, ActionList}:   ScopeAny,
	{DepartmentCommercial, ResourceEvent, ActionUpdate}: ScopeOwner,
	{DepartmentSupport, ResourceEvent, ActionRead}:      ScopeAny,
	{DepartmentSupport, ResourceEvent, ActionList}:      ScopeAny,
	{DepartmentSupport, ResourceEvent, ActionUpdate}:    ScopeAssignee,
	{DepartmentManagement, ResourceEvent, ActionRead}:   ScopeAny,
	{DepartmentManagement, ResourceEvent, ActionList}:   ScopeAny,
	{DepartmentManagement, ResourceEvent, ActionAssign}: ScopeAny,
	{DepartmentManagement, ResourceEvent, ActionDelete}: ScopeAny,
}

// LookupPermission returns the scope granted to department for action on a
// resource kind. The second result is false when the action is denied.
func LookupPermission(d Department, r ResourceKind, a Action) (Scope, bool) {
	scope, ok := permissionMatrix[rule{d, r, a}]
	return scope, ok
}
