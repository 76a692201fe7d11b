package domain

// Permission is a bitset of capabilities a room member holds. The host
// additionally owns the room secret, which overrides any permission check.
type Permission uint8

const (
	PermissionHost Permission = 1 << iota
	PermissionPlaybackControl
	PermissionQueueControl
)

// DefaultMemberPermission is granted to non-host joiners unless the room's
// default set was edited by the host.
const DefaultMemberPermission = PermissionPlaybackControl | PermissionQueueControl

func (p Permission) Has(required Permission) bool {
	return p&required == required
}
