// Package marc holds the domain MARC record value type and the
// field/subfield mutation helpers the fixup passes build on. Wire codecs
// (ISO2709, MARCXML) are out of scope; records enter and leave as the
// structural form defined here.
package marc
