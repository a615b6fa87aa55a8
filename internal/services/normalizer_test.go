package services

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestNormalizeEnabledModulesShapes(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
		want  []string
	}{
		{"list with duplicates", []string{"a", "b", "a"}, []string{"a", "b"}},
		{"interface list", []interface{}{"clientes", "estoque", "clientes"}, []string{"clientes", "estoque"}},
		{"csv string", "clientes, estoque,financeiro", []string{"clientes", "estoque", "financeiro"}},
		{"json string", `["clientes","estoque"]`, []string{"clientes", "estoque"}},
		{"dict with modules key", map[string]interface{}{"modules": []interface{}{"clientes"}}, []string{"clientes"}},
		{"dict with modulos key", map[string]interface{}{"modulos": []interface{}{"agenda"}}, []string{"agenda"}},
		{"nil", nil, []string{}},
		{"empty string", "   ", []string{}},
		{"mixed case and spaces", []string{" Clientes ", "CLIENTES"}, []string{"clientes"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeEnabledModules(tt.input)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeEnabledModulesIdempotent(t *testing.T) {
	inputs := []interface{}{
		[]string{"a", "b", "a"},
		"clientes,agenda, clientes",
		`["agendamentos","financeiro"]`,
		map[string]interface{}{"modules": []interface{}{"agenda", "agendamento"}},
	}
	for _, input := range inputs {
		once := NormalizeEnabledModules(input)
		asInterface := make([]interface{}, len(once))
		for i, m := range once {
			asInterface[i] = m
		}
		twice := NormalizeEnabledModules(asInterface)
		assert.Equal(t, once, twice)
	}
}

func TestNormalizeEnabledModulesAliasCollapse(t *testing.T) {
	got := NormalizeEnabledModules([]string{
		"clientes", "agendamentos", "financeiro", "agendamento", "agenda", "estoque",
	})
	assert.Equal(t, []string{"clientes", "agenda", "financeiro", "estoque"}, got)
}

func TestParseSocialLinksLastWins(t *testing.T) {
	got := ParseSocialLinks(`[{"nome":"a","link":"1"},{"nome":"a","link":"2"}]`, 50, quietLogger())
	assert.Equal(t, map[string]string{"a": "https://2"}, got)
}

func TestParseSocialLinksSchemePrefix(t *testing.T) {
	got := ParseSocialLinks(`[
		{"nome":"site","link":"acme.com.br"},
		{"nome":"blog","link":"http://blog.acme.com.br"}
	]`, 50, quietLogger())
	assert.Equal(t, "https://acme.com.br", got["site"])
	assert.Equal(t, "http://blog.acme.com.br", got["blog"])
}

func TestParseSocialLinksSkipsIncompleteAndCaps(t *testing.T) {
	got := ParseSocialLinks(`[
		{"nome":"a","link":""},
		{"nome":"","link":"x"},
		{"nome":"b","link":"b.com"},
		{"nome":"c","link":"c.com"}
	]`, 3, quietLogger())
	// cap counts input rows, so the fourth row is never read
	assert.Equal(t, map[string]string{"b": "https://b.com"}, got)
}

func TestParseAddressListValidation(t *testing.T) {
	got := ParseAddressList(`[
		{"logradouro":"Rua A","numero":"1","bairro":"Centro","cidade":"SP","uf":"sp","cep":"01000-000","tipo":"ent"},
		{"logradouro":"Rua B","numero":"2","bairro":"Sul","cidade":"SP","uf":"SP","cep":"02000-000","tipo":"invalid"},
		{"logradouro":"","numero":"3","bairro":"Norte","cidade":"SP","uf":"SP","cep":"03000-000"}
	]`, 50, quietLogger())

	require.Len(t, got, 2)
	assert.Equal(t, "SP", got[0].UF)
	assert.Equal(t, "ENT", got[0].Tipo)
	assert.Equal(t, "Brasil", got[0].Pais)
	// unknown tipo falls back to OUTRO
	assert.Equal(t, "OUTRO", got[1].Tipo)
}

func TestParseAddressListCap(t *testing.T) {
	row := `{"logradouro":"Rua","numero":"1","bairro":"B","cidade":"C","uf":"SP","cep":"01000-000"}`
	got := ParseAddressList("["+row+","+row+","+row+"]", 2, quietLogger())
	assert.Len(t, got, 2)
}

func TestParseContactListRequiresOneIdentifier(t *testing.T) {
	got := ParseContactList(`[
		{"nome":"João"},
		{"email":"X@Acme.com"},
		{"telefone":"11999990000"},
		{"cargo":"Gerente"}
	]`, 100, quietLogger())

	require.Len(t, got, 3)
	assert.Equal(t, "x@acme.com", got[1].Email)
}

func TestMalformedJSONCollectionsTreatedAsEmpty(t *testing.T) {
	assert.Empty(t, ParseAddressList(`{not json`, 50, quietLogger()))
	assert.Empty(t, ParseContactList(`[{"nome":`, 100, quietLogger()))
	assert.Empty(t, ParseSocialLinks(`oops`, 50, quietLogger()))
	assert.Empty(t, ParseSocialLinks(12345, 50, quietLogger()))
}
