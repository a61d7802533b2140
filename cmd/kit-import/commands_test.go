package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"lambari-service/internal/config"
	"lambari-service/internal/repository"
	"lambari-service/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const kitsCSV = "nome;marca;preco;custo;categoria;estoque_P\n" +
	"Kit Verão;Pimpolho;89,90;50,00;Verão;10\n" +
	"Kit Inverno;Pimpolho;129,90;80,00;Inverno;4\n" +
	"Kit Erro;Pimpolho;abc;60,00;;\n"

func setupCLI(t *testing.T) (func(args ...string) (string, error), string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "catalog.db")
	csvPath := filepath.Join(dir, "kits.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(kitsCSV), 0o600))

	cfg := &config.Config{Workers: 1, DefaultBrand: "Sem Marca"}
	openDB := func(*config.Config) (*gorm.DB, error) {
		return testutil.OpenSQLiteFile(t, dbPath), nil
	}

	run := func(args ...string) (string, error) {
		var out bytes.Buffer
		cmd := newRootCmd(cfg, openDB)
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(args)
		err := cmd.ExecuteContext(context.Background())
		return out.String(), err
	}
	return run, csvPath
}

func TestValidateCommand(t *testing.T) {
	run, csvPath := setupCLI(t)

	out, err := run("validate", "--file", csvPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Kit Verão")
	assert.Contains(t, out, "3 rows: 0 valid, 2 with warnings, 1 with errors")
	assert.Contains(t, out, `price "abc" is not a valid number`)
}

func TestValidateCommand_RequiresFile(t *testing.T) {
	run, _ := setupCLI(t)

	_, err := run("validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"file" not set`)
}

func TestValidateCommand_MissingFile(t *testing.T) {
	run, _ := setupCLI(t)

	_, err := run("validate", "-f", filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
}

func TestCommitCommand(t *testing.T) {
	run, csvPath := setupCLI(t)
	dbPath := filepath.Join(filepath.Dir(csvPath), "catalog.db")

	out, err := run("commit", "--file", csvPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Re-run with --yes")

	check := testutil.OpenSQLiteFile(t, dbPath)
	brands, err := repository.NewBrandsRepository(check, nil).FindAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, brands)

	out, err = run("commit", "--file", csvPath, "--yes", "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "=== Import Report ===")
	assert.Contains(t, out, "Created:            2")
	assert.Contains(t, out, "Brands created:     1")
	assert.Contains(t, out, "Categories created: 2")

	brands, err = repository.NewBrandsRepository(check, nil).FindAll(context.Background())
	require.NoError(t, err)
	require.Len(t, brands, 1)
	assert.Equal(t, "Pimpolho", brands[0].Name)
}
