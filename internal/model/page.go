package model

// Page bounds shared by the service and every store implementation.
const (
	DefaultPageSize = 50
	MaxPageSize     = 100

	DefaultClickLimit = 100
	MaxClickLimit     = 1000

	DefaultPopularLimit = 100
	MaxPopularLimit     = 10000
)
