package hook_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	_ "modernc.org/sqlite"

	"github.com/nsxbet/ddlguard/pkg/executor"
	"github.com/nsxbet/ddlguard/pkg/hook"
	"github.com/nsxbet/ddlguard/pkg/metrics"
	"github.com/nsxbet/ddlguard/pkg/probe"
	"github.com/nsxbet/ddlguard/pkg/rules"
	"github.com/nsxbet/ddlguard/pkg/statement"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recorder is a delegate that remembers every call it receives.
type recorder struct {
	mu    sync.Mutex
	calls []*hook.Call
	err   error
}

func (r *recorder) ProcessUtility(_ context.Context, call *hook.Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newCall(t *testing.T, query string) *hook.Call {
	t.Helper()
	stmts, err := statement.Parse(query)
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	return &hook.Call{
		Statement:  stmts[0],
		Query:      query,
		TopLevel:   true,
		Context:    hook.ContextTopLevel,
		Completion: &hook.Completion{},
	}
}

func TestCatalogKindsNeverReachDelegate(t *testing.T) {
	statements := map[statement.Kind]string{
		statement.KindCreateView:       "CREATE VIEW v AS SELECT 1",
		statement.KindTruncate:         "TRUNCATE t",
		statement.KindCreateSequence:   "CREATE SEQUENCE s",
		statement.KindCreateTableAs:    "CREATE MATERIALIZED VIEW mv AS SELECT 1",
		statement.KindCreateTablespace: "CREATE TABLESPACE ts LOCATION '/tmp/ts'",
		statement.KindCreateTrigger:    "CREATE TRIGGER tr AFTER INSERT ON t FOR EACH ROW EXECUTE FUNCTION f()",
		statement.KindCreateType:       "CREATE TYPE pair AS (a int, b int)",
		statement.KindCreateDatabase:   "CREATE DATABASE d",
		statement.KindVacuum:           "VACUUM",
		statement.KindCreateExtension:  "CREATE EXTENSION hstore",
		statement.KindAlterSystem:      "ALTER SYSTEM SET work_mem = '4MB'",
	}

	next := &recorder{}
	d := hook.NewDispatcher(next)

	for _, entry := range rules.Entries() {
		query, ok := statements[entry.Kind]
		require.True(t, ok, "missing statement for %s", entry.Kind)

		t.Run(entry.Label, func(t *testing.T) {
			err := d.ProcessUtility(context.Background(), newCall(t, query))
			var violation *hook.PolicyViolation
			require.ErrorAs(t, err, &violation)
			assert.Contains(t, violation.Message, entry.Label)
			assert.Equal(t, entry.Kind, violation.Kind)
		})
	}
	assert.Zero(t, next.count())
}

func TestTemporaryTableRejected(t *testing.T) {
	next := &recorder{}
	d := hook.NewDispatcher(next)

	err := d.ProcessUtility(context.Background(), newCall(t, "CREATE TEMP TABLE t(a int)"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "temporary tables")
	assert.True(t, hook.IsPolicyViolation(err))
	assert.True(t, errors.Is(err, hook.ErrPolicyViolation))
	assert.Zero(t, next.count())
}

func TestInheritanceRejected(t *testing.T) {
	next := &recorder{}
	d := hook.NewDispatcher(next)

	err := d.ProcessUtility(context.Background(), newCall(t, "CREATE TABLE c (b int) INHERITS (p)"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inheritance")
	assert.Zero(t, next.count())
}

func TestSchemaElementsAreInspected(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantKind statement.Kind
		wantMsg  string
	}{
		{
			name:     "view",
			query:    "CREATE SCHEMA s CREATE VIEW v AS SELECT 1",
			wantKind: statement.KindCreateView,
			wantMsg:  "CREATE VIEW statements are unsupported",
		},
		{
			name:     "sequence after table",
			query:    "CREATE SCHEMA s CREATE TABLE t (a int) CREATE SEQUENCE q",
			wantKind: statement.KindCreateSequence,
			wantMsg:  "CREATE SEQUENCE statements are unsupported",
		},
		{
			name:     "temporary table",
			query:    "CREATE SCHEMA s CREATE TEMP TABLE t (a int)",
			wantKind: statement.KindCreateTable,
			wantMsg:  "temporary tables are unsupported",
		},
		{
			name:     "trigger",
			query:    "CREATE SCHEMA AUTHORIZATION app CREATE TRIGGER tr AFTER INSERT ON t FOR EACH ROW EXECUTE FUNCTION f()",
			wantKind: statement.KindCreateTrigger,
			wantMsg:  "CREATE TRIGGER statements are unsupported",
		},
		{
			name:     "index ordering",
			query:    "CREATE SCHEMA s CREATE INDEX i ON t (a DESC)",
			wantKind: statement.KindCreateIndex,
			wantMsg:  `index column ordering is unsupported, column "a" is DESC`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := &recorder{}
			d := hook.NewDispatcher(next)
			call := newCall(t, tt.query)

			err := d.ProcessUtility(context.Background(), call)
			var violation *hook.PolicyViolation
			require.ErrorAs(t, err, &violation)
			assert.Equal(t, tt.wantKind, violation.Kind)
			assert.Equal(t, tt.wantMsg, violation.Message)
			assert.Equal(t, tt.query, violation.Query)
			assert.Zero(t, next.count())
		})
	}
}

func TestSchemaElementsForwarded(t *testing.T) {
	var asked []statement.QualifiedName
	hasRows := probe.ProberFunc(func(_ context.Context, table statement.QualifiedName) (bool, error) {
		asked = append(asked, table)
		return true, nil
	})
	next := &recorder{}
	d := hook.NewDispatcher(next, hook.WithProber(hasRows), hook.WithProbeFailure(probe.FailClosed))

	// The index targets a table created by the same statement, so it is empty.
	call := newCall(t, "CREATE SCHEMA s CREATE TABLE t (a int) CREATE INDEX t_a ON t (a)")
	require.NoError(t, d.ProcessUtility(context.Background(), call))
	require.Equal(t, 1, next.count())
	assert.Same(t, call, next.calls[0])
	assert.Empty(t, asked)

	// An index on a table that already exists in the schema is checked.
	err := d.ProcessUtility(context.Background(), newCall(t, "CREATE SCHEMA s CREATE INDEX u_a ON u (a)"))
	require.True(t, hook.IsPolicyViolation(err))
	assert.Contains(t, err.Error(), `CREATE INDEX on table "s.u" with existing data is unsupported`)
	assert.Equal(t, []statement.QualifiedName{{Schema: "s", Name: "u"}}, asked)
	assert.Equal(t, 1, next.count())
}

func TestIndexOnTableWithData(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "hook.db"))
	require.NoError(t, err)
	defer db.Close()

	// Index creation is recorded rather than executed: sqlite needs a name
	// for every index.
	exec := executor.New(db)
	indexes := &recorder{}
	delegate := hook.HandlerFunc(func(ctx context.Context, call *hook.Call) error {
		if call.Statement.Kind() == statement.KindCreateIndex {
			return indexes.ProcessUtility(ctx, call)
		}
		return exec.ProcessUtility(ctx, call)
	})
	d := hook.NewDispatcher(delegate, hook.WithProber(probe.NewSQL(db)))

	require.NoError(t, d.ProcessUtility(ctx, newCall(t, "CREATE TABLE t(a int)")))

	first := newCall(t, "CREATE INDEX ON t(a)")
	require.NoError(t, d.ProcessUtility(ctx, first))
	require.Equal(t, 1, indexes.count())
	assert.Same(t, first, indexes.calls[0])

	insert := newCall(t, "INSERT INTO t VALUES (1)")
	require.NoError(t, d.ProcessUtility(ctx, insert))
	assert.Equal(t, int64(1), insert.Completion.Rows)

	err = d.ProcessUtility(ctx, newCall(t, "CREATE INDEX ON t(a)"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "existing data")
	assert.Equal(t, 1, indexes.count())
}

func TestFunctionLanguage(t *testing.T) {
	next := &recorder{}
	d := hook.NewDispatcher(next)
	ctx := context.Background()

	err := d.ProcessUtility(ctx, newCall(t, "CREATE FUNCTION f() RETURNS int LANGUAGE plpgsql AS $$ BEGIN RETURN 1; END $$"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plpgsql")
	assert.Zero(t, next.count())

	call := newCall(t, "CREATE FUNCTION f() RETURNS int LANGUAGE sql AS $$ SELECT 1 $$")
	require.NoError(t, d.ProcessUtility(ctx, call))
	require.Equal(t, 1, next.count())
	assert.Same(t, call, next.calls[0])
}

func TestForwardsIdenticalCall(t *testing.T) {
	next := &recorder{}
	d := hook.NewDispatcher(next)

	call := newCall(t, "SELECT 1")
	call.Params = []any{1, "x"}
	call.QueryEnv = struct{ name string }{name: "env"}
	call.Context = hook.ContextSubcommand

	require.NoError(t, d.ProcessUtility(context.Background(), call))
	require.Equal(t, 1, next.count())
	got := next.calls[0]
	assert.Same(t, call, got)
	assert.Equal(t, []any{1, "x"}, got.Params)
	assert.Equal(t, hook.ContextSubcommand, got.Context)
}

func TestDelegateErrorUnaltered(t *testing.T) {
	downstream := errors.New("relation already exists")
	d := hook.NewDispatcher(&recorder{err: downstream})

	err := d.ProcessUtility(context.Background(), newCall(t, "CREATE TABLE t (a int)"))
	assert.Equal(t, downstream, err)
	assert.False(t, hook.IsPolicyViolation(err))
}

func TestProbeFailurePolicy(t *testing.T) {
	failing := probe.ProberFunc(func(context.Context, statement.QualifiedName) (bool, error) {
		return false, errors.Wrap(probe.ErrProbe, "permission denied")
	})
	ctx := context.Background()

	next := &recorder{}
	open := hook.NewDispatcher(next, hook.WithProber(failing))
	require.NoError(t, open.ProcessUtility(ctx, newCall(t, "CREATE INDEX ON t (a)")))
	assert.Equal(t, 1, next.count())

	closed := hook.NewDispatcher(next, hook.WithProber(failing), hook.WithProbeFailure(probe.FailClosed))
	err := closed.ProcessUtility(ctx, newCall(t, "CREATE INDEX ON t (a)"))
	var violation *hook.PolicyViolation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, rules.RuleIndexProbeFailure, violation.Rule)
	assert.Equal(t, 1, next.count())
}

func TestPolicyViolation(t *testing.T) {
	d := hook.NewDispatcher(hook.Discard)
	err := d.ProcessUtility(context.Background(), newCall(t, "TRUNCATE t"))

	var violation *hook.PolicyViolation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "TRUNCATE TABLE statements are unsupported", violation.Error())
	assert.Equal(t, "0A000", violation.SQLState())
	assert.Equal(t, "TRUNCATE t", violation.Query)
	assert.Equal(t, rules.RuleCatalogPrefix+"truncate", violation.Rule)
}

func TestDispatcherMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	hasRows := probe.ProberFunc(func(context.Context, statement.QualifiedName) (bool, error) {
		return true, nil
	})
	d := hook.NewDispatcher(hook.Discard, hook.WithMetrics(m), hook.WithProber(hasRows))
	ctx := context.Background()

	_ = d.ProcessUtility(ctx, newCall(t, "CREATE VIEW v AS SELECT 1"))
	_ = d.ProcessUtility(ctx, newCall(t, "SELECT 1"))
	_ = d.ProcessUtility(ctx, newCall(t, "CREATE INDEX ON t (a)"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("create_view", metrics.ResultRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("other", metrics.ResultForwarded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejections.WithLabelValues(rules.RuleIndexExistingData)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Probes.WithLabelValues(metrics.ProbeHasRows)))
}

func TestNewDispatcherNilNext(t *testing.T) {
	assert.Panics(t, func() { hook.NewDispatcher(nil) })
}

func TestNilCall(t *testing.T) {
	assert.Error(t, hook.NewDispatcher(hook.Discard).ProcessUtility(context.Background(), nil))
}

func TestConcurrentDispatch(t *testing.T) {
	next := &recorder{}
	d := hook.NewDispatcher(next)
	ctx := context.Background()

	selectCall := newCall(t, "SELECT 1")
	viewCall := newCall(t, "CREATE VIEW v AS SELECT 1")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.ProcessUtility(ctx, selectCall)
			_ = d.ProcessUtility(ctx, viewCall)
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, next.count())
}

func TestInstallUninstall(t *testing.T) {
	t.Run("empty slot", func(t *testing.T) {
		slot := &hook.Slot{}
		standard := &recorder{}
		ext := hook.NewExtension(slot, standard)

		ext.Install()
		require.True(t, ext.Installed())
		assert.Same(t, ext.Dispatcher(), slot.Load())

		require.NoError(t, hook.Run(context.Background(), slot, standard, newCall(t, "SELECT 1")))
		assert.Equal(t, 1, standard.count())

		ext.Uninstall()
		assert.Nil(t, slot.Load())
		assert.False(t, ext.Installed())
	})

	t.Run("chains to previous handler", func(t *testing.T) {
		previous := &recorder{}
		standard := &recorder{}
		slot := &hook.Slot{}
		slot.Store(previous)

		ext := hook.NewExtension(slot, standard)
		ext.Install()

		ctx := context.Background()
		require.NoError(t, hook.Run(ctx, slot, standard, newCall(t, "CREATE TABLE t (a int)")))
		assert.Equal(t, 1, previous.count())
		assert.Zero(t, standard.count())

		err := hook.Run(ctx, slot, standard, newCall(t, "CREATE TEMP TABLE t (a int)"))
		assert.True(t, hook.IsPolicyViolation(err))
		assert.Equal(t, 1, previous.count())

		ext.Uninstall()
		assert.Equal(t, hook.Handler(previous), slot.Load())
	})

	t.Run("uninstall is idempotent", func(t *testing.T) {
		previous := &recorder{}
		slot := &hook.Slot{}
		slot.Store(previous)
		ext := hook.NewExtension(slot, hook.Discard)

		ext.Uninstall()
		assert.Equal(t, hook.Handler(previous), slot.Load())

		ext.Install()
		ext.Install()
		ext.Uninstall()
		ext.Uninstall()
		assert.Equal(t, hook.Handler(previous), slot.Load())
	})

	t.Run("stacked extensions", func(t *testing.T) {
		standard := &recorder{}
		slot := &hook.Slot{}
		outer := hook.NewExtension(slot, standard)
		inner := hook.NewExtension(slot, standard)

		inner.Install()
		outer.Install()
		assert.Same(t, outer.Dispatcher(), slot.Load())

		require.NoError(t, hook.Run(context.Background(), slot, standard, newCall(t, "SELECT 1")))
		assert.Equal(t, 1, standard.count())

		outer.Uninstall()
		assert.Same(t, inner.Dispatcher(), slot.Load())
		inner.Uninstall()
		assert.Nil(t, slot.Load())
	})
}

func TestUtilityContextString(t *testing.T) {
	assert.Equal(t, "toplevel", hook.ContextTopLevel.String())
	assert.Equal(t, "subcommand", hook.ContextSubcommand.String())
	assert.Equal(t, "unknown", hook.UtilityContext(42).String())
}
