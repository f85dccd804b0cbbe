package models

// PrefixType tags a dynamic key with a traffic disguise and a recommended
// port set for the underlying service type.
type PrefixType string

const (
	// PrefixNone disables prefixing
	PrefixNone PrefixType = ""
	// PrefixHTTP disguises the first packet as an HTTP request
	PrefixHTTP PrefixType = "http"
	// PrefixTLS disguises the first packet as a TLS ClientHello
	PrefixTLS PrefixType = "tls"
	// PrefixTLSData disguises the first packet as TLS application data
	PrefixTLSData PrefixType = "tls_data"
	// PrefixDNS disguises the first packet as a DNS-over-TCP query
	PrefixDNS PrefixType = "dns"
	// PrefixSSH disguises the first packet as an SSH banner
	PrefixSSH PrefixType = "ssh"
)

// PrefixInfo describes one catalog entry: the wire bytes sent ahead of the
// protocol handshake, the ports the disguise is plausible on, and a
// human-readable description for the dashboard.
type PrefixInfo struct {
	Type             PrefixType `json:"type"`
	Bytes            string     `json:"bytes"`
	RecommendedPorts []int      `json:"recommended_ports"`
	Description      string     `json:"description"`
}

// prefixCatalog is static reference data; it is never mutated at runtime.
var prefixCatalog = map[PrefixType]PrefixInfo{
	PrefixHTTP: {
		Type:             PrefixHTTP,
		Bytes:            "POST ",
		RecommendedPorts: []int{80, 8080},
		Description:      "HTTP POST request",
	},
	PrefixTLS: {
		Type:             PrefixTLS,
		Bytes:            "\x16\x03\x01\x00\xc2\xa8\x01\x01",
		RecommendedPorts: []int{443},
		Description:      "TLS ClientHello",
	},
	PrefixTLSData: {
		Type:             PrefixTLSData,
		Bytes:            "\x17\x03\x03\x3f",
		RecommendedPorts: []int{443},
		Description:      "TLS application data",
	},
	PrefixDNS: {
		Type:             PrefixDNS,
		Bytes:            "\x05\xdc\x5f\xe0\x01\x20",
		RecommendedPorts: []int{53},
		Description:      "DNS-over-TCP query",
	},
	PrefixSSH: {
		Type:             PrefixSSH,
		Bytes:            "SSH-2.0\r\n",
		RecommendedPorts: []int{22},
		Description:      "SSH banner",
	},
}

// catalogOrder fixes the order the dashboard shows entries in
var catalogOrder = []PrefixType{PrefixHTTP, PrefixTLS, PrefixTLSData, PrefixDNS, PrefixSSH}

// Valid reports whether the prefix type is empty or a known catalog entry
func (p PrefixType) Valid() bool {
	if p == PrefixNone {
		return true
	}
	_, ok := prefixCatalog[p]
	return ok
}

// LookupPrefix returns the catalog entry for a prefix type
func LookupPrefix(p PrefixType) (PrefixInfo, bool) {
	info, ok := prefixCatalog[p]
	return info, ok
}

// PrefixCatalog returns all catalog entries in display order
func PrefixCatalog() []PrefixInfo {
	out := make([]PrefixInfo, 0, len(catalogOrder))
	for _, p := range catalogOrder {
		out = append(out, prefixCatalog[p])
	}
	return out
}
