package types

import "strings"

// Language is the identifier of a programming language accepted for submissions.
type Language string

// Languages understood by the judge service.
const (
	LanguageJavaScript Language = "javascript"
	LanguagePython     Language = "python"
	LanguageJava       Language = "java"
	LanguageCPP        Language = "c++"
	LanguageC          Language = "c"
	LanguageTypeScript Language = "typescript"
	LanguageCSharp     Language = "csharp"
	LanguageGo         Language = "go"
)

// NormalizeLanguage lowercases and trims a user-supplied language name.
func NormalizeLanguage(raw string) Language {
	return Language(strings.ToLower(strings.TrimSpace(raw)))
}
