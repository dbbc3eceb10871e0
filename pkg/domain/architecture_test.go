package domain

import (
	"testing"

	"microerp/testutil"
)

// Backends implement the store contract; the contract never depends on them.
func TestDomainDoesNotImportInternal(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", func(ip string) bool {
		return testutil.InternalImportForbidden(ip) || testutil.DriverImportForbidden(ip)
	}, "pkg/domain must stay free of internal and driver packages")
}
