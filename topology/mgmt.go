package topology

import (
	"fmt"

	"inet.af/netaddr"
)

// Well-known identifiers for the out-of-band management network.
const (
	MgmtServer = "oob-mgmt-server"
	MgmtSwitch = "oob-mgmt-switch"
)

const defaultMgmtPrefix = "192.168.200.254/24"

// setupAutoMgmtNetwork augments g with an out-of-band management
// server and switch and wires every eligible node to the switch.
// Nodes without an explicit mgmt_ip attribute get one allocated from
// the server's prefix.
func setupAutoMgmtNetwork(g *Graph) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("setup mgmt network: %w", err)
		}
	}()

	server, err := g.AddNode(MgmtServer, nil)
	if err != nil {
		return err
	}
	if server.Attr("function") == "" {
		g.AddNode(MgmtServer, Attributes{"function": "oob-server"})
	}
	if server.Attr("mgmt_ip") == "" {
		g.AddNode(MgmtServer, Attributes{"mgmt_ip": defaultMgmtPrefix})
	}
	if _, err := g.AddNode(MgmtSwitch, Attributes{
		"function": "oob-switch",
	}); err != nil {
		return err
	}

	mgmtPrefix, err := netaddr.ParseIPPrefix(server.Attr("mgmt_ip"))
	if err != nil {
		return err
	}
	a := newIPAllocator(mgmtPrefix)
	a.reserve(mgmtPrefix.IP) // remove mgmtServer's own address

	// reserve addresses configured with explicit node attrs
	for _, n := range g.Nodes() {
		if !wantsMgmt(n) {
			continue
		}
		ipStr := n.Attr("mgmt_ip")
		if ipStr == "" {
			continue
		}
		ip, err := netaddr.ParseIP(ipStr)
		if err != nil {
			return fmt.Errorf("node %s: parse ip: %v (mgmt_ip: %s)",
				n.Identifier(), err, ipStr)
		}
		if ok := a.reserve(ip); !ok {
			return fmt.Errorf("node %s: unable to reserve ip %s",
				n.Identifier(), ip)
		}
	}

	// Wire up the server and all eligible nodes to the OOB switch.
	if _, err := g.AddPort(MgmtServer, "eth1", nil); err != nil {
		return err
	}
	if _, err := g.AddPort(MgmtSwitch, "swp1", nil); err != nil {
		return err
	}
	if _, err := g.AddLink("", MgmtServer, "eth1", MgmtSwitch, "swp1", nil); err != nil {
		return err
	}
	ifIndex := 2
	for _, n := range g.Nodes() {
		if !wantsMgmt(n) {
			continue
		}
		swp := fmt.Sprintf("swp%d", ifIndex)
		if _, err := g.AddPort(MgmtSwitch, swp, nil); err != nil {
			return err
		}
		if _, err := g.AddPort(n.Identifier(), "eth0", nil); err != nil {
			return err
		}
		if _, err := g.AddLink("", MgmtSwitch, swp,
			n.Identifier(), "eth0", nil); err != nil {
			return err
		}
		ifIndex++

		if n.Attr("mgmt_ip") != "" {
			// explicit attr, address reserved above
			continue
		}
		ip, ok := a.allocate()
		if !ok {
			return fmt.Errorf(
				"node %s: mgmt ip range exhausted (prefix: %s)",
				n.Identifier(), mgmtPrefix)
		}
		g.AddNode(n.Identifier(), Attributes{"mgmt_ip": ip.String()})
	}

	return nil
}

func wantsMgmt(n *Node) bool {
	switch n.Attr("function") {
	case "oob-server", "oob-switch", "fake":
		return false
	}
	return n.Attr("no_mgmt") == ""
}
