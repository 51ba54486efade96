package domain

import (
	"testing"

	"rollcall/testutil"
)

func TestDomainImportsNoModulePackages(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.ModuleImport, "domain is the bottom layer")
}
