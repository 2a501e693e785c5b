package policyopa

import "github.com/open-policy-agent/opa/ast"

// Access rules only compare booleans and strings taken from the input.
// Builtins that reach outside the input (http.send, time, crypto, rand)
// are not part of the compiler's capabilities.
var permittedBuiltins = []string{
	// comparison and boolean
	"eq", "equal", "neq", "and", "or", "assign",
	// strings, for policy names and reasons
	"lower", "upper", "trim_space", "startswith", "endswith", "concat",
	// lookups
	"count", "object.get",
}

var allowedBuiltins = func() map[string]struct{} {
	set := make(map[string]struct{}, len(permittedBuiltins))
	for _, name := range permittedBuiltins {
		set[name] = struct{}{}
	}
	return set
}()

// accessCapabilities restricts this OPA version's capabilities to the
// permitted builtins.
func accessCapabilities() *ast.Capabilities {
	caps := ast.CapabilitiesForThisVersion()
	kept := caps.Builtins[:0:0]
	for _, builtin := range caps.Builtins {
		if _, ok := allowedBuiltins[builtin.Name]; ok {
			kept = append(kept, builtin)
		}
	}
	caps.Builtins = kept
	return caps
}
