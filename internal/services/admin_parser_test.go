package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestParser() *AdminParser {
	return NewAdminParser(testConfig(), quietLogger())
}

func TestParseAdminsFromJSONArray(t *testing.T) {
	p := newTestParser()

	entries, err := p.Parse(map[string]interface{}{
		"admins_json": `[
			{"email":" Admin@Acme.com ","nome":"Ana","telefone":"11999990000","cargo":"Diretora","senha":"Secret123","confirm_senha":"Secret123"},
			{"email":"b@acme.com","ativo":false}
		]`,
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "admin@acme.com", entries[0].Email)
	assert.Equal(t, "Ana", entries[0].Nome)
	assert.Equal(t, "Secret123", entries[0].Senha)
	assert.True(t, entries[0].Ativo)
	assert.False(t, entries[0].PasswordGenerated)

	assert.False(t, entries[1].Ativo)
	assert.Empty(t, entries[1].Senha)
}

func TestParseAdminsAcceptsMainNesting(t *testing.T) {
	p := newTestParser()

	entries, err := p.Parse(map[string]interface{}{
		"main": map[string]interface{}{
			"admins_json": `[{"email":"a@acme.com"}]`,
		},
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a@acme.com", entries[0].Email)
}

func TestParseAdminsSingleRowFallback(t *testing.T) {
	p := newTestParser()

	entries, err := p.Parse(map[string]interface{}{
		"email": "solo@acme.com",
		"nome":  "Solo",
		"senha": "Secret123",
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "solo@acme.com", entries[0].Email)
	assert.Equal(t, "Secret123", entries[0].Senha)
}

func TestParseAdminsPasswordResolutionOrder(t *testing.T) {
	p := newTestParser()

	entries, err := p.Parse(map[string]interface{}{
		"admins_json": `[
			{"email":"own@acme.com","senha":"OwnPass123"},
			{"email":"bulk@acme.com"},
			{"email":"short@acme.com","senha":"tiny"}
		]`,
		"bulk_admin_password": "Xyz12345",
	})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "OwnPass123", entries[0].Senha)
	assert.Equal(t, "Xyz12345", entries[1].Senha)
	// a too-short row password falls through to the bulk password
	assert.Equal(t, "Xyz12345", entries[2].Senha)
}

func TestParseAdminsAutoGenerate(t *testing.T) {
	p := newTestParser()

	entries, err := p.Parse(map[string]interface{}{
		"admins_json":      `[{"email":"a@acme.com"},{"email":"b@acme.com"}]`,
		"gerar_senha_auto": true,
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Len(t, entries[0].Senha, 12)
	assert.Len(t, entries[1].Senha, 12)
	assert.NotEqual(t, entries[0].Senha, entries[1].Senha)
	assert.True(t, entries[0].PasswordGenerated)
}

func TestParseAdminsSkipsRowsWithoutUsableEmail(t *testing.T) {
	p := newTestParser()

	entries, err := p.Parse(map[string]interface{}{
		"admins_json": `[{"nome":"No Email"},{"email":"bad"},{"email":"ok@acme.com"}]`,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ok@acme.com", entries[0].Email)
}

func TestParseAdminsTruncatesToMax(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAdmins = 2
	p := NewAdminParser(cfg, quietLogger())

	entries, err := p.Parse(map[string]interface{}{
		"admins_json": `[{"email":"a@x.com"},{"email":"b@x.com"},{"email":"c@x.com"}]`,
	})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestParseAdminsMalformedJSONTreatedAsEmpty(t *testing.T) {
	p := newTestParser()

	entries, err := p.Parse(map[string]interface{}{
		"admins_json": `[{"email":`,
	})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGeneratePasswordCharacterClasses(t *testing.T) {
	for i := 0; i < 20; i++ {
		pw, err := GeneratePassword(12)
		require.NoError(t, err)
		require.Len(t, pw, 12)

		assert.True(t, strings.ContainsAny(pw, passwordUpper), pw)
		assert.True(t, strings.ContainsAny(pw, passwordLower), pw)
		assert.True(t, strings.ContainsAny(pw, passwordDigits), pw)
		assert.True(t, strings.ContainsAny(pw, passwordSymbols), pw)
	}
}

func TestGeneratePasswordMinimumLength(t *testing.T) {
	pw, err := GeneratePassword(3)
	require.NoError(t, err)
	assert.Len(t, pw, 8)
}
