package plan

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
)

// Resolve reads a showplan document from a file, stdin ("-") or an
// interactive paste ("") and parses it with opts.
func Resolve(input string, label string, opts ParserOptions) (PlanAnalysis, error) {
	if input != "" && input != "-" {
		if t := typeFromExtension(input); t != "" && t != "xml" {
			return PlanAnalysis{}, unsupportedInput(t, label)
		}
		return ParseExecutionPlan(input, opts)
	}

	data, err := readInput(input, label)
	if err != nil {
		return PlanAnalysis{}, err
	}

	if t := detectType(data, input); t != "xml" {
		return PlanAnalysis{}, unsupportedInput(t, label)
	}

	name := "stdin"
	if label != "" {
		name = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(label), ":"))
	}
	return ParseXMLPlan(data, name, opts)
}

func unsupportedInput(inputType, label string) error {
	switch inputType {
	case "sql":
		return fmt.Errorf(`%sinput is a SQL query - capture its plan first:

showplan capture <query.sql> --profile <name> --out plan.sqlplan`, label)
	case "json":
		return fmt.Errorf("%sinput is JSON - provide the showplan XML (.sqlplan) instead", label)
	default:
		return fmt.Errorf("unable to detect %sinput type: expected showplan XML or a .sqlplan/.xml file", label)
	}
}

func readInput(input string, label string) ([]byte, error) {
	switch input {
	case "":
		return readInteractive(label)
	case "-":
		return io.ReadAll(os.Stdin)
	default:
		return os.ReadFile(input)
	}
}

func readInteractive(label string) ([]byte, error) {
	fmt.Printf("Paste %sshowplan XML", label)
	if runtime.GOOS == "windows" {
		fmt.Print(" (Ctrl+Z, Enter to submit)\n")
	} else {
		fmt.Print(" (Ctrl+D to submit)\n")
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "<") && !strings.HasSuffix(trimmed, ">") {
		return nil, fmt.Errorf("input appears truncated; for large inputs use: showplan analyze <file>")
	}

	return data, nil
}

func typeFromExtension(filename string) string {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".sqlplan"), strings.HasSuffix(lower, ".xml"):
		return "xml"
	case strings.HasSuffix(lower, ".sql"):
		return "sql"
	case strings.HasSuffix(lower, ".json"):
		return "json"
	}
	return ""
}

func detectType(data []byte, filename string) string {
	if t := typeFromExtension(filename); t != "" {
		return t
	}

	// UTF-16 documents start with a byte order mark.
	if bytes.HasPrefix(data, []byte{0xFF, 0xFE}) || bytes.HasPrefix(data, []byte{0xFE, 0xFF}) {
		return "xml"
	}

	trimmed := strings.TrimSpace(strings.TrimPrefix(string(data), "\uFEFF"))

	if strings.HasPrefix(trimmed, "<") {
		return "xml"
	}

	if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
		return "json"
	}

	upper := strings.ToUpper(trimmed)
	for _, kw := range []string{"SELECT", "WITH", "INSERT", "UPDATE", "DELETE", "MERGE", "EXEC", "SET"} {
		if strings.HasPrefix(upper, kw) {
			return "sql"
		}
	}

	return "unknown"
}
