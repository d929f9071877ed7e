package models

// HardwareRecord is a single hardware profile keyed by its caller-supplied
// identifier. Version is store-assigned on every successful push; values
// supplied by callers are overwritten.
type HardwareRecord struct {
	ID       string       `json:"id"`
	Version  uint64       `json:"version"`
	Network  []*Interface `json:"network,omitempty"`
	Metadata string       `json:"metadata,omitempty"`
}

// Interface describes one network interface of a hardware profile. The DHCP
// and Netboot blocks are optional; a nil pointer means the block is absent,
// which is distinct from a present-but-empty block.
type Interface struct {
	DHCP    *DHCP    `json:"dhcp,omitempty"`
	Netboot *Netboot `json:"netboot,omitempty"`
}

// DHCP holds the DHCP configuration for an interface.
type DHCP struct {
	MAC         string   `json:"mac,omitempty"`
	Hostname    string   `json:"hostname,omitempty"`
	LeaseTime   int64    `json:"lease_time,omitempty"`
	NameServers []string `json:"name_servers,omitempty"`
	TimeServers []string `json:"time_servers,omitempty"`
	Arch        string   `json:"arch,omitempty"`
	UEFI        bool     `json:"uefi,omitempty"`
	IfaceName   string   `json:"iface_name,omitempty"`
	IP          *IP      `json:"ip,omitempty"`
}

// IP is a static address assignment.
type IP struct {
	Address string `json:"address,omitempty"`
	Netmask string `json:"netmask,omitempty"`
	Gateway string `json:"gateway,omitempty"`
	Family  int32  `json:"family,omitempty"`
}

// Netboot holds the network-boot configuration for an interface.
type Netboot struct {
	AllowPXE      bool  `json:"allow_pxe,omitempty"`
	AllowWorkflow bool  `json:"allow_workflow,omitempty"`
	IPXE          *IPXE `json:"ipxe,omitempty"`
	OSIE          *OSIE `json:"osie,omitempty"`
}

// IPXE points a machine at its iPXE script, either by URL or inline.
type IPXE struct {
	URL      string `json:"url,omitempty"`
	Contents string `json:"contents,omitempty"`
}

// OSIE describes the operating system installation environment artifacts.
type OSIE struct {
	BaseURL string `json:"base_url,omitempty"`
	Kernel  string `json:"kernel,omitempty"`
	Initrd  string `json:"initrd,omitempty"`
}

// Clone returns a deep copy of the record. The store and the broadcaster hand
// out copies so callers can never mutate shared state.
func (r *HardwareRecord) Clone() *HardwareRecord {
	if r == nil {
		return nil
	}

	out := &HardwareRecord{
		ID:       r.ID,
		Version:  r.Version,
		Metadata: r.Metadata,
	}

	if r.Network != nil {
		out.Network = make([]*Interface, len(r.Network))
		for i, iface := range r.Network {
			out.Network[i] = iface.clone()
		}
	}

	return out
}

func (i *Interface) clone() *Interface {
	if i == nil {
		return nil
	}

	out := &Interface{}

	if i.DHCP != nil {
		d := *i.DHCP
		if i.DHCP.NameServers != nil {
			d.NameServers = append([]string(nil), i.DHCP.NameServers...)
		}

		if i.DHCP.TimeServers != nil {
			d.TimeServers = append([]string(nil), i.DHCP.TimeServers...)
		}

		if i.DHCP.IP != nil {
			ip := *i.DHCP.IP
			d.IP = &ip
		}

		out.DHCP = &d
	}

	if i.Netboot != nil {
		n := *i.Netboot
		if i.Netboot.IPXE != nil {
			x := *i.Netboot.IPXE
			n.IPXE = &x
		}

		if i.Netboot.OSIE != nil {
			o := *i.Netboot.OSIE
			n.OSIE = &o
		}

		out.Netboot = &n
	}

	return out
}
