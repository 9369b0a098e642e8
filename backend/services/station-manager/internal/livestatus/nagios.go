package livestatus

// Host states as reported in the hosts table.
const (
	HostUp          = 0
	HostDown        = 1
	HostUnreachable = 2
)

// Service states as reported in the services table.
const (
	ServiceOK       = 0
	ServiceWarning  = 1
	ServiceCritical = 2
	ServiceUnknown  = 3
)

// State types.
const (
	StateTypeSoft = 0
	StateTypeHard = 1
)
