// Package test provides fixtures shared by the package tests.
package test

import (
	"fmt"

	"github.com/cloakwork/conclave/pkg/party"
)

// Addresses returns n distinct well formed participant addresses.
func Addresses(n int) []party.ID {
	ids := make([]party.ID, n)
	for i := range ids {
		ids[i] = party.ID(fmt.Sprintf("0x%040x", i+1))
	}
	return ids
}
