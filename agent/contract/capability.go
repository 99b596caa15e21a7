package contract

// capabilityTable declares, per role, the closed set of task kinds the role
// accepts. The router validates plans against it before dispatch and the
// messenger enforces it again on delivery, so an unresolvable target is a
// planning error rather than a runtime surprise.
var capabilityTable = map[AgentRole][]TaskKind{
	RoleData: {
		TaskGetCustomer,
		TaskListCustomers,
		TaskUpdateCustomer,
		TaskCreateTicket,
		TaskCustomerHistory,
	},
	RoleSupport: {
		TaskTriage,
		TaskFormatReport,
	},
}

// Accepts reports whether role handles kind.
func Accepts(role AgentRole, kind TaskKind) bool {
	for _, k := range capabilityTable[role] {
		if k == kind {
			return true
		}
	}
	return false
}

// ResolveRole returns the owning role for kind.
func ResolveRole(kind TaskKind) (AgentRole, bool) {
	for role, kinds := range capabilityTable {
		for _, k := range kinds {
			if k == kind {
				return role, true
			}
		}
	}
	return "", false
}

// Capabilities returns a copy of role's accepted kinds.
func Capabilities(role AgentRole) []TaskKind {
	kinds := capabilityTable[role]
	out := make([]TaskKind, len(kinds))
	copy(out, kinds)
	return out
}
