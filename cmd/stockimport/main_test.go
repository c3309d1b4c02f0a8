package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/inventory/internal/core"
)

func offline(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_URL", "")
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestTemplate_CSVToStdout(t *testing.T) {
	offline(t)

	out, _, err := execute(t, "template", "--mode", "product", "--stock", "Boutique", "--stock", "Réserve")
	require.NoError(t, err)

	header := strings.SplitN(out, "\n", 2)[0]
	assert.True(t, strings.HasSuffix(header, "stock_boutique,stock_réserve"), header)
	assert.Contains(t, out, "# Stocks valides")
}

func TestTemplate_XLSXNeedsOut(t *testing.T) {
	offline(t)

	_, _, err := execute(t, "template", "--format", "xlsx")
	require.Error(t, err)
	assert.Equal(t, exitUsage, exitCode(err))

	path := filepath.Join(t.TempDir(), "modele.xlsx")
	_, _, err = execute(t, "template", "--mode", "serial", "--format", "xlsx", "--out", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("PK")))
}

func TestTemplate_UnknownMode(t *testing.T) {
	offline(t)

	_, _, err := execute(t, "template", "--mode", "bundle")
	require.Error(t, err)
	assert.Equal(t, exitUsage, exitCode(err))
}

func TestRun_RequiresDatabaseUnlessDryRun(t *testing.T) {
	offline(t)
	path := writeFile(t, "stock.csv", "sku\nABC\n")

	_, _, err := execute(t, "run", "--file", path)
	require.Error(t, err)
	assert.Equal(t, exitUsage, exitCode(err))
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestRun_OfflineDryRun(t *testing.T) {
	offline(t)

	tmpl, _, err := execute(t, "template", "--stock", "Boutique", "--stock", "Réserve")
	require.NoError(t, err)
	path := writeFile(t, "produits.csv", tmpl)

	out, _, err := execute(t, "run", "--file", path, "--dry-run", "--json",
		"--stock", "Boutique", "--stock", "Réserve")
	require.NoError(t, err)

	var result core.ImportResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, core.StatusSuccess, result.Status)
	assert.Equal(t, "produits.csv", result.FileName)
	assert.Equal(t, 2, result.Processed)
}

func TestRun_ReportsRowErrors(t *testing.T) {
	offline(t)

	tmpl, _, err := execute(t, "template", "--stock", "Boutique")
	require.NoError(t, err)
	tmpl = strings.ReplaceAll(tmpl, "3760000000017", "")
	path := writeFile(t, "produits.csv", tmpl)

	out, stderr, err := execute(t, "run", "-f", path, "--dry-run", "--stock", "Boutique")
	require.Error(t, err)
	assert.Equal(t, exitImportError, exitCode(err))
	assert.Contains(t, out, "[simulation]")
	assert.Contains(t, out, "Ligne 2 (SKU COQ-IP15-NOIR)")
	assert.Contains(t, stderr, "100%")
}

func TestRun_StructuralError(t *testing.T) {
	offline(t)
	path := writeFile(t, "vide.csv", "")

	out, _, err := execute(t, "run", "--file", path, "--dry-run", "--quiet")
	require.Error(t, err)
	assert.Equal(t, exitImportError, exitCode(err))
	assert.Contains(t, out, "Import refusé")
}

func TestStocks_RequiresDatabase(t *testing.T) {
	offline(t)

	_, _, err := execute(t, "stocks")
	require.Error(t, err)
	assert.Equal(t, exitUsage, exitCode(err))
}
