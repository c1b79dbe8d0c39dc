package plan

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestDetectType_SqlplanExtension(t *testing.T) {
	result := detectType([]byte("anything"), "plan.sqlplan")
	if result != "xml" {
		t.Errorf("got %q, want xml", result)
	}
}

func TestDetectType_SQLExtension(t *testing.T) {
	result := detectType([]byte("anything"), "query.sql")
	if result != "sql" {
		t.Errorf("got %q, want sql", result)
	}
}

func TestDetectType_JSONExtension(t *testing.T) {
	result := detectType([]byte("anything"), "plans.json")
	if result != "json" {
		t.Errorf("got %q, want json", result)
	}
}

func TestDetectType_XMLContent(t *testing.T) {
	data := []byte(`  <?xml version="1.0"?><ShowPlanXML/>`)
	result := detectType(data, "")
	if result != "xml" {
		t.Errorf("got %q, want xml", result)
	}
}

func TestDetectType_UTF16Content(t *testing.T) {
	data := []byte{0xFF, 0xFE, '<', 0x00}
	result := detectType(data, "-")
	if result != "xml" {
		t.Errorf("got %q, want xml", result)
	}
}

func TestDetectType_UTF8BOMContent(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("  <ShowPlanXML/>")...)
	result := detectType(data, "-")
	if result != "xml" {
		t.Errorf("got %q, want xml", result)
	}
}

func TestDetectType_UTF8BOMSQL(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("SELECT 1")...)
	result := detectType(data, "-")
	if result != "sql" {
		t.Errorf("got %q, want sql", result)
	}
}

func TestDetectType_SQLContent(t *testing.T) {
	data := []byte("select * from dbo.Orders where id = 1")
	result := detectType(data, "")
	if result != "sql" {
		t.Errorf("got %q, want sql", result)
	}
}

func TestDetectType_ExtensionOverridesContent(t *testing.T) {
	data := []byte(`<ShowPlanXML/>`)
	result := detectType(data, "queries.sql")
	if result != "sql" {
		t.Errorf("got %q, want sql (extension takes priority)", result)
	}
}

func TestDetectType_Unknown(t *testing.T) {
	result := detectType([]byte("plan goes here"), "")
	if result != "unknown" {
		t.Errorf("got %q, want unknown", result)
	}
}

func TestReadInput_File(t *testing.T) {
	path := writePlan(t, "test.sqlplan", []byte(`<ShowPlanXML/>`))

	data, err := readInput(path, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `<ShowPlanXML/>` {
		t.Errorf("content mismatch")
	}
}

func TestReadInput_MissingFile(t *testing.T) {
	_, err := readInput("/nonexistent/file.sqlplan", "")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestResolve_SqlplanFile(t *testing.T) {
	path := writePlan(t, "orders.sqlplan", []byte(ordersPlan))

	a, err := Resolve(path, "", SingleProfile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.PlanName != "orders" {
		t.Errorf("PlanName = %q, want orders", a.PlanName)
	}
	if a.Summary.TotalStatements != 2 {
		t.Errorf("TotalStatements = %d, want 2", a.Summary.TotalStatements)
	}
}

func TestResolve_SQLFile(t *testing.T) {
	path := writePlan(t, "query.sql", []byte("SELECT 1"))

	_, err := Resolve(path, "", SingleProfile)
	if err == nil {
		t.Fatal("expected error for SQL input")
	}
	if !strings.Contains(err.Error(), "showplan capture") {
		t.Errorf("error = %q, want a hint to use capture", err)
	}
}

func TestResolve_JSONFile(t *testing.T) {
	path := writePlan(t, "plans.json", []byte(`[{"Plan": {}}]`))

	_, err := Resolve(path, "", SingleProfile)
	if err == nil {
		t.Fatal("expected error for JSON input")
	}
}

func TestResolve_UnknownExtensionParsesAsXML(t *testing.T) {
	path := writePlan(t, "plan.txt", []byte(ordersPlan))

	a, err := Resolve(path, "", CompareProfile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.PlanName != "plan" {
		t.Errorf("PlanName = %q, want plan", a.PlanName)
	}
}

func TestResolve_TruncatedXML(t *testing.T) {
	path := writePlan(t, "truncated.sqlplan", []byte(`<ShowPlanXML xmlns="http://schemas.microsoft.com/sqlserver/2004/07/showplan"><BatchSeq`))

	_, err := Resolve(path, "", CompareProfile)
	if err == nil {
		t.Fatal("expected error for truncated XML")
	}
}

func TestResolve_MissingFile(t *testing.T) {
	_, err := Resolve(filepath.Join(t.TempDir(), "gone.sqlplan"), "", CompareProfile)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
