package tree

// DefaultFileName is the file every fresh room starts with.
const DefaultFileName = "main.js"

// DefaultFileContent is the body of the starter file.
const DefaultFileContent = "// start typing..."

// fallbackTemplate is used for extensions without a dedicated template.
const fallbackTemplate = "// New file\n"

// templates maps file extensions to starter content for newly created files.
var templates = map[string]string{
	"js":   "console.log(\"Hello, World!\");\n",
	"jsx":  "export default function App() {\n  return <div>Hello, World!</div>;\n}\n",
	"ts":   "const message: string = \"Hello, World!\";\nconsole.log(message);\n",
	"tsx":  "export default function App(): JSX.Element {\n  return <div>Hello, World!</div>;\n}\n",
	"py":   "print(\"Hello, World!\")\n",
	"html": "<!DOCTYPE html>\n<html>\n<head>\n  <title>New Page</title>\n</head>\n<body>\n\n</body>\n</html>\n",
	"css":  "body {\n  margin: 0;\n}\n",
	"json": "{}\n",
	"md":   "# New Document\n",
	"txt":  "",
}

// TemplateFor returns the starter content for a new file at the given path.
func TemplateFor(path string) string {
	if content, ok := templates[ExtensionOf(path)]; ok {
		return content
	}
	return fallbackTemplate
}
