package judge

import "github.com/dailyjudge/apiserver/types"

// Judge status ids.
const (
	StatusInQueue         = 1
	StatusProcessing      = 2
	StatusAccepted        = 3
	StatusWrongAnswer     = 4
	StatusTimeLimit       = 5
	StatusCompilation     = 6
	StatusRuntimeSIGSEGV  = 7
	StatusRuntimeSIGXFSZ  = 8
	StatusRuntimeSIGFPE   = 9
	StatusRuntimeSIGABRT  = 10
	StatusRuntimeNZEC     = 11
	StatusRuntimeOther    = 12
	StatusInternalError   = 13
	StatusExecFormatError = 14
)

type statusEntry struct {
	description string
	verdict     types.Verdict
}

var statusTable = map[int]statusEntry{
	StatusInQueue:         {"In Queue", types.VerdictPending},
	StatusProcessing:      {"Processing", types.VerdictPending},
	StatusAccepted:        {"Accepted", types.VerdictAccepted},
	StatusWrongAnswer:     {"Wrong Answer", types.VerdictWrongAnswer},
	StatusTimeLimit:       {"Time Limit Exceeded", types.VerdictTimeLimitExceeded},
	StatusCompilation:     {"Compilation Error", types.VerdictCompilationError},
	StatusRuntimeSIGSEGV:  {"Runtime Error (SIGSEGV)", types.VerdictRuntimeError},
	StatusRuntimeSIGXFSZ:  {"Runtime Error (SIGXFSZ)", types.VerdictRuntimeError},
	StatusRuntimeSIGFPE:   {"Runtime Error (SIGFPE)", types.VerdictRuntimeError},
	StatusRuntimeSIGABRT:  {"Runtime Error (SIGABRT)", types.VerdictRuntimeError},
	StatusRuntimeNZEC:     {"Runtime Error (NZEC)", types.VerdictRuntimeError},
	StatusRuntimeOther:    {"Runtime Error (Other)", types.VerdictRuntimeError},
	StatusInternalError:   {"Internal Error", types.VerdictInternalError},
	StatusExecFormatError: {"Exec Format Error", types.VerdictInternalError},
}

// Describe returns the human verdict string for a judge status id,
// or "Unknown" when the id is outside the table.
func Describe(statusID int) string {
	if entry, ok := statusTable[statusID]; ok {
		return entry.description
	}
	return "Unknown"
}

// InProgress reports whether the judge is still working on the submission.
func InProgress(statusID int) bool {
	return statusID == StatusInQueue || statusID == StatusProcessing
}

// Known reports whether statusID is in the status table.
func Known(statusID int) bool {
	_, ok := statusTable[statusID]
	return ok
}

// VerdictFor maps a terminal judge status to a verdict. The second result is
// false for in-progress and unknown statuses.
func VerdictFor(statusID int) (types.Verdict, bool) {
	entry, ok := statusTable[statusID]
	if !ok || InProgress(statusID) {
		return types.VerdictPending, false
	}
	return entry.verdict, true
}

var languageIDs = map[types.Language]int{
	types.LanguageJavaScript: 63,
	types.LanguagePython:     71,
	types.LanguageJava:       62,
	types.LanguageCPP:        54,
	types.LanguageC:          50,
	types.LanguageTypeScript: 74,
	types.LanguageCSharp:     51,
	types.LanguageGo:         60,
}

// LanguageID returns the judge language id for lang.
func LanguageID(lang types.Language) (int, bool) {
	id, ok := languageIDs[lang]
	return id, ok
}

// Supported reports whether lang can be sent to the judge.
func Supported(lang types.Language) bool {
	_, ok := languageIDs[lang]
	return ok
}
