package services

import "errors"

// Sentinel errors for explicit error handling
// These errors allow callers to distinguish between different failure modes
// using errors.Is() instead of string matching

var (
	// ErrKeyNotFound indicates the requested dynamic key does not exist
	ErrKeyNotFound = errors.New("dynamic key not found")

	// ErrKeyInactive indicates the dynamic key is deactivated
	ErrKeyInactive = errors.New("dynamic key inactive")

	// ErrKeyExpired indicates the dynamic key's expiration has passed
	ErrKeyExpired = errors.New("dynamic key expired")

	// ErrNoEligibleMembers indicates no member key can currently serve connections
	ErrNoEligibleMembers = errors.New("no eligible member keys")

	// ErrPathTaken indicates the requested path slug is already in use
	ErrPathTaken = errors.New("path already in use")

	// ErrInvalidAlgorithm indicates an unknown load-balancer algorithm
	ErrInvalidAlgorithm = errors.New("invalid load-balancer algorithm")

	// ErrInvalidPrefix indicates an unknown prefix type
	ErrInvalidPrefix = errors.New("invalid prefix type")

	// ErrServerNotFound indicates the requested server does not exist
	ErrServerNotFound = errors.New("server not found")

	// ErrUpstreamKeyNotFound indicates the requested upstream key does not exist
	ErrUpstreamKeyNotFound = errors.New("upstream key not found")

	// ErrInvalidCredentials indicates authentication failed
	ErrInvalidCredentials = errors.New("invalid credentials")
)
