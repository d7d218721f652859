package chunk

import (
	"path/filepath"
	"strings"
)

// language describes the comment syntax used to classify chunk content.
type language struct {
	Name       string
	LineMarker string
	BlockStart string
	BlockEnd   string
}

var languagesByExt = map[string]language{
	".go":    {Name: "go", LineMarker: "//", BlockStart: "/*", BlockEnd: "*/"},
	".ts":    {Name: "typescript", LineMarker: "//", BlockStart: "/*", BlockEnd: "*/"},
	".tsx":   {Name: "typescript", LineMarker: "//", BlockStart: "/*", BlockEnd: "*/"},
	".js":    {Name: "javascript", LineMarker: "//", BlockStart: "/*", BlockEnd: "*/"},
	".jsx":   {Name: "javascript", LineMarker: "//", BlockStart: "/*", BlockEnd: "*/"},
	".java":  {Name: "java", LineMarker: "//", BlockStart: "/*", BlockEnd: "*/"},
	".c":     {Name: "c", LineMarker: "//", BlockStart: "/*", BlockEnd: "*/"},
	".h":     {Name: "c", LineMarker: "//", BlockStart: "/*", BlockEnd: "*/"},
	".cpp":   {Name: "cpp", LineMarker: "//", BlockStart: "/*", BlockEnd: "*/"},
	".hpp":   {Name: "cpp", LineMarker: "//", BlockStart: "/*", BlockEnd: "*/"},
	".rs":    {Name: "rust", LineMarker: "//", BlockStart: "/*", BlockEnd: "*/"},
	".py":    {Name: "python", LineMarker: "#", BlockStart: `"""`, BlockEnd: `"""`},
	".rb":    {Name: "ruby", LineMarker: "#", BlockStart: "=begin", BlockEnd: "=end"},
	".sh":    {Name: "shell", LineMarker: "#"},
	".yaml":  {Name: "yaml", LineMarker: "#"},
	".yml":   {Name: "yaml", LineMarker: "#"},
	".toml":  {Name: "toml", LineMarker: "#"},
	".sql":   {Name: "sql", LineMarker: "--", BlockStart: "/*", BlockEnd: "*/"},
	".lua":   {Name: "lua", LineMarker: "--"},
	".swift": {Name: "swift", LineMarker: "//", BlockStart: "/*", BlockEnd: "*/"},
	".kt":    {Name: "kotlin", LineMarker: "//", BlockStart: "/*", BlockEnd: "*/"},
	".scala": {Name: "scala", LineMarker: "//", BlockStart: "/*", BlockEnd: "*/"},
	".css":   {Name: "css", BlockStart: "/*", BlockEnd: "*/"},
	".html":  {Name: "html", BlockStart: "<!--", BlockEnd: "-->"},
	".md":    {Name: "markdown"},
	".txt":   {Name: "text"},
	".json":  {Name: "json"},
}

// languageFor looks up the comment syntax for a file path. Unknown
// extensions classify everything as code.
func languageFor(path string) language {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := languagesByExt[ext]; ok {
		return lang
	}
	return language{Name: "unknown"}
}
