package params_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/pseudomuto/dbchores/pkg/facts"
	"github.com/pseudomuto/dbchores/pkg/params"
	"github.com/stretchr/testify/require"
)

func TestResolve_Positional(t *testing.T) {
	bound, err := params.Resolve("SELECT x FROM t LIMIT %s", []any{1}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "SELECT x FROM t LIMIT %s", bound.SQL)
	require.Equal(t, []any{1}, bound.Positional)
	require.Equal(t, []any{1}, bound.Args())

	sql, args, err := bound.Native(params.Dollar)
	require.NoError(t, err)
	require.Equal(t, "SELECT x FROM t LIMIT $1", sql)
	require.Equal(t, []any{1}, args)
}

func TestResolve_NamedPrefersArgsOverFacts(t *testing.T) {
	store := facts.New(map[string]any{
		"owner": "from-facts",
		"limit": facts.Rows{{"n": int64(5)}},
	})

	bound, err := params.Resolve(
		"SELECT * FROM t WHERE owner = %(owner)s LIMIT %(limit)s",
		nil,
		map[string]any{"owner": "from-args"},
		store,
	)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"owner": "from-args", "limit": int64(5)}, bound.Named)
	require.Nil(t, bound.Positional)
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name       string
		sql        string
		positional []any
		named      map[string]any
		check      func(*testing.T, error)
	}{
		{
			name: "unresolved named",
			sql:  "SELECT %(missing)s",
			check: func(t *testing.T, err error) {
				var target *params.UnresolvedParameterError
				require.True(t, errors.As(err, &target))
				require.Equal(t, "missing", target.Name)
			},
		},
		{
			name:       "too many positional args",
			sql:        "SELECT %s",
			positional: []any{1, 2},
			check: func(t *testing.T, err error) {
				var target *params.ArityError
				require.True(t, errors.As(err, &target))
				require.Equal(t, 1, target.Placeholders)
				require.Equal(t, 2, target.Args)
			},
		},
		{
			name: "too few positional args",
			sql:  "SELECT %s, %s",
			check: func(t *testing.T, err error) {
				var target *params.ArityError
				require.True(t, errors.As(err, &target))
				require.Equal(t, 2, target.Placeholders)
				require.Equal(t, 0, target.Args)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := params.Resolve(tt.sql, tt.positional, tt.named, facts.New(nil))
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestBound_Native(t *testing.T) {
	bound, err := params.Resolve(
		"UPDATE t SET a = %(v)s, b = %s WHERE c = %(v)s AND d = %s",
		[]any{"b", "d"},
		map[string]any{"v": 9},
		nil,
	)
	require.NoError(t, err)

	t.Run("dollar", func(t *testing.T) {
		sql, args, err := bound.Native(params.Dollar)
		require.NoError(t, err)
		require.Equal(t, "UPDATE t SET a = $1, b = $2 WHERE c = $1 AND d = $3", sql)
		require.Equal(t, []any{9, "b", "d"}, args)
	})

	t.Run("question", func(t *testing.T) {
		sql, args, err := bound.Native(params.Question)
		require.NoError(t, err)
		require.Equal(t, "UPDATE t SET a = ?, b = ? WHERE c = ? AND d = ?", sql)
		require.Equal(t, []any{9, "b", 9, "d"}, args)
	})
}

func TestBound_NativeWithoutPlaceholders(t *testing.T) {
	bound, err := params.Resolve("SELECT 10 %% 3", nil, nil, nil)
	require.NoError(t, err)

	sql, args, err := bound.Native(params.Question)
	require.NoError(t, err)
	require.Equal(t, "SELECT 10 %% 3", sql)
	require.Empty(t, args)
}

func TestBound_StringHidesValues(t *testing.T) {
	bound, err := params.Resolve("SELECT %(password)s, %s", []any{"x"}, map[string]any{"password": "hunter2"}, nil)
	require.NoError(t, err)
	require.Equal(t, "positional=1 named=[password]", bound.String())
	require.NotContains(t, bound.String(), "hunter2")
}
