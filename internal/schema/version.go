package schema

// Versions lists every HL7 version MSH.12 may declare. Grounded on the
// same fixed-list-plus-predicate shape as a national language identifier
// table: a closed set checked by membership, not parsed.
var Versions = []string{
	"2.1", "2.2", "2.3", "2.3.1", "2.4", "2.5", "2.5.1",
	"2.6", "2.7", "2.7.1", "2.8", "2.8.1", "2.9",
}

// DefaultVersion names HL7 version 2.7.1. Schema lookups do not read it
// or MSH.12: the standard catalogue holds one unversioned set of
// definitions.
const DefaultVersion = "2.7.1"

// IsValidVersion reports whether version is one of the HL7 versions this
// server understands.
func IsValidVersion(version string) bool {
	for _, v := range Versions {
		if v == version {
			return true
		}
	}
	return false
}
