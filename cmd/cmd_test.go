package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command. Flags keep their values between runs, so
// every test passes the flags it depends on.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeSQL(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.sql")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestCheckText(t *testing.T) {
	path := writeSQL(t, "CREATE TEMP TABLE t (a int);\nSELECT 1;\n")

	out, err := execute(t, "check", path, "--dsn", "", "--schema", "", "--output", "text", "--fail-on-reject=false")
	require.NoError(t, err)
	assert.Contains(t, out, "[REJECTED] line 1: temporary tables are unsupported")
	assert.Contains(t, out, "[OK] line 2: other")
	assert.Contains(t, out, "1 forwarded, 1 rejected")

	_, err = execute(t, "check", path, "--dsn", "", "--schema", "", "--output", "text", "--fail-on-reject=true")
	assert.ErrorIs(t, err, ErrRejected)
}

func TestCheckJSONWithSchema(t *testing.T) {
	dir := t.TempDir()
	schema := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(schema, []byte("name: app\nschemas:\n  - name: public\n    tables:\n      - name: t\n        rowCount: 4\n"), 0o600))
	path := writeSQL(t, "CREATE INDEX ON t (a);")

	out, err := execute(t, "check", path, "--dsn", "", "--schema", schema, "--output", "json", "--fail-on-reject=false")
	require.NoError(t, err)

	var decoded struct {
		Outcomes []map[string]any `json:"outcomes"`
		Summary  map[string]int   `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded.Outcomes, 1)
	assert.Equal(t, "create_index", decoded.Outcomes[0]["kind"])
	assert.Equal(t, "rejected", decoded.Outcomes[0]["status"])
	assert.Equal(t, `CREATE INDEX on table "t" with existing data is unsupported`, decoded.Outcomes[0]["message"])
	assert.Equal(t, 1, decoded.Summary["rejected"])
}

func TestExecSQLite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "exec.db")
	path := writeSQL(t, "CREATE TABLE t (a int);\nINSERT INTO t VALUES (1);\nCREATE INDEX t_a ON t (a);\nSELECT 1;\n")

	out, err := execute(t, "exec", path, "--driver", "sqlite", "--dsn", dsn)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, out, "[OK] line 1: CREATE TABLE")
	assert.Contains(t, out, "[OK] line 2: INSERT 1")
	assert.Contains(t, out, "[REJECTED] line 3: CREATE INDEX on table \"t\" with existing data is unsupported")
	assert.NotContains(t, out, "line 4")

	_, err = execute(t, "exec", path, "--driver", "postgres", "--dsn", "")
	assert.Error(t, err)
}

func TestRulesCommand(t *testing.T) {
	out, err := execute(t, "rules")
	require.NoError(t, err)
	assert.Contains(t, out, "CREATE VIEW")
	assert.Contains(t, out, "ALTER SYSTEM")
	assert.Contains(t, out, "create_index")
	assert.Contains(t, out, "Allowed function language: sql")
}

func TestExecMetrics(t *testing.T) {
	t.Cleanup(func() { _ = rootCmd.PersistentFlags().Set("metrics", "false") })
	dsn := filepath.Join(t.TempDir(), "metrics.db")
	path := writeSQL(t, "CREATE TABLE t (a int);\nCREATE VIEW v AS SELECT 1;\n")

	out, err := execute(t, "exec", path, "--driver", "sqlite", "--dsn", dsn, "--metrics")
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, out, `ddlguard_decisions_total{kind="create_table",result="forwarded"} 1`)
	assert.Contains(t, out, `ddlguard_decisions_total{kind="create_view",result="rejected"} 1`)
	assert.Contains(t, out, `ddlguard_rejections_total{rule="statement.disallow.create_view"} 1`)
}
