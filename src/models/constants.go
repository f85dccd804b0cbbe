package models

// Algorithm is the load-balancer policy selecting which upstream key
// serves a given connection.
type Algorithm string

const (
	// AlgorithmRandomKey picks a uniformly random member key per connection
	AlgorithmRandomKey Algorithm = "random_key"
	// AlgorithmRandomServerKey picks a random server first, then a random key on it
	AlgorithmRandomServerKey Algorithm = "random_server_key"
	// AlgorithmClientIPHash pins a client IP to the same member key
	AlgorithmClientIPHash Algorithm = "client_ip_hash"
)

// Valid reports whether the algorithm is one of the supported policies
func (a Algorithm) Valid() bool {
	switch a {
	case AlgorithmRandomKey, AlgorithmRandomServerKey, AlgorithmClientIPHash:
		return true
	}
	return false
}

// Algorithms lists all supported load-balancer policies
func Algorithms() []Algorithm {
	return []Algorithm{AlgorithmRandomKey, AlgorithmRandomServerKey, AlgorithmClientIPHash}
}

// KeyStatus represents the activation status of a key or server
type KeyStatus string

const (
	// KeyStatusActive indicates the record can serve connections
	KeyStatusActive KeyStatus = "active"
	// KeyStatusInactive indicates the record is deactivated
	KeyStatusInactive KeyStatus = "inactive"
)
