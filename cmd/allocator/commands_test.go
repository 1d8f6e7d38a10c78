package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/allocator/internal/modules/historical"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/modules/returns"
)

const pricesCSV = `date,AAA,BBB,CCC
2024-01-01,100,50,20
2024-01-02,101,50.5,20.4
2024-01-03,99,50.2,20.1
2024-01-04,102,50.1,20.8
2024-01-05,104,50.9,20.6
2024-01-08,103,51.3,21.0
2024-01-09,105,51,21.3
2024-01-10,107,51.4,21.1
`

func writePrices(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prices.csv")
	require.NoError(t, os.WriteFile(path, []byte(pricesCSV), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMetricsCommand(t *testing.T) {
	path := writePrices(t)

	out, err := run(t, "metrics", "--prices", path, "--weights", "0.5,0.3,0.2", "--json")
	require.NoError(t, err)

	var got returns.Metrics
	require.NoError(t, json.Unmarshal([]byte(out), &got))

	series, err := historical.ReadWideCSV(strings.NewReader(pricesCSV))
	require.NoError(t, err)
	table, err := returns.Align(series...)
	require.NoError(t, err)
	m, err := returns.DailyReturns(table)
	require.NoError(t, err)
	want, err := returns.RiskMetrics(m, []float64{0.5, 0.3, 0.2})
	require.NoError(t, err)

	assert.Equal(t, want.Round(4), got)
}

func TestMetricsCommand_Table(t *testing.T) {
	out, err := run(t, "metrics", "--prices", writePrices(t), "--weights", "0.5,0.3,0.2")
	require.NoError(t, err)
	assert.Contains(t, out, "annual return")
	assert.Contains(t, out, "sharpe ratio")
}

func TestMetricsCommand_Errors(t *testing.T) {
	path := writePrices(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing weights flag", []string{"metrics", "--prices", path}},
		{"bad weights", []string{"metrics", "--prices", path, "--weights", "a,b,c"}},
		{"wrong weight count", []string{"metrics", "--prices", path, "--weights", "1"}},
		{"missing prices", []string{"metrics", "--weights", "1"}},
		{"bad trading days", []string{"metrics", "--prices", path, "--weights", "0.5,0.3,0.2", "--trading-days", "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestOptimizeCommand(t *testing.T) {
	out, err := run(t, "optimize", "--prices", writePrices(t), "--objective", "min_vol", "--json")
	require.NoError(t, err)

	var result optimization.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, optimization.MinVolatility, result.Objective)
	require.Len(t, result.Weights, 3)

	sum := 0.0
	for _, w := range result.Weights {
		assert.GreaterOrEqual(t, w.Weight, 0.0)
		sum += w.Weight
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestOptimizeCommand_InvalidObjective(t *testing.T) {
	_, err := run(t, "optimize", "--prices", writePrices(t), "--objective", "returns")
	assert.ErrorIs(t, err, optimization.ErrInvalidObjective)
}

func TestOptimizeCommand_ObjectiveCaseInsensitive(t *testing.T) {
	out, err := run(t, "optimize", "--prices", writePrices(t), "--objective", "SHARPE", "--json")
	require.NoError(t, err)

	var result optimization.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, optimization.MaxSharpe, result.Objective)
}

func TestImportCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")

	out, err := run(t, "import", "--prices", writePrices(t), "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 24 prices")

	// Importing twice upserts.
	out, err = run(t, "import", "--prices", writePrices(t), "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 24 prices")
}
