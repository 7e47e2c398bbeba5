package docengine

// Reserved top-level document field names.
const (
	FieldID              = "jacsId"
	FieldVersion         = "jacsVersion"
	FieldVersionDate     = "jacsVersionDate"
	FieldPreviousVersion = "jacsPreviousVersion"
	FieldOriginalVersion = "jacsOriginalVersion"
	FieldOriginalDate    = "jacsOriginalDate"
	FieldType            = "jacsType"
	FieldLevel           = "jacsLevel"
	FieldSha256          = "jacsSha256"
	FieldSignature       = "jacsSignature"
	FieldAgreement       = "jacsAgreement"
	FieldAgreementHash   = "jacsAgreementHash"
	FieldFiles           = "jacsFiles"
	FieldSchemaURL       = "$schema"
)

// DefaultLevel is assigned to documents that don't declare jacsLevel.
const DefaultLevel = "raw"

// EditableLevels are the only jacsLevel values Update will mutate in place
// (as a new version); anything else must be recreated instead.
var EditableLevels = []string{"config", "artifact"}

func isEditableLevel(level string) bool {
	for _, l := range EditableLevels {
		if l == level {
			return true
		}
	}
	return false
}
