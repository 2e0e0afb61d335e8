package platform

// StaticStp stands in for a spanning tree module: every port forwards in
// the CIST and every VLAN maps to it.
type StaticStp struct{}

func (StaticStp) PortForwarding(port uint32, msti uint8) bool { return msti == 0 }
func (StaticStp) MstiOf(vid uint16) uint8                     { return 0 }
