package config

// PortState is one row of the per port status table.
type PortState struct {
	Port          uint32
	Name          string
	Appl          Application
	Enable        bool
	Periodic      bool
	Timers        Timers
	Registrations int
	PeerMac       string
	PointToPoint  bool

	PktsRx              uint64
	PktsTx              uint64
	PktsDroppedRx       uint64
	ParseErrors         uint64
	FailedRegistrations uint64
}

// Registration is the state of one managed VLAN on one port.
type Registration struct {
	Vid       uint16
	Applicant string
	Registrar string
	Admin     RegistrarAdmin
}
