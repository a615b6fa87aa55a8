package services

import (
	"encoding/json"
	"strings"

	"github.com/sirupsen/logrus"

	"empresa-service/internal/models"
)

// moduleAliases collapses legacy module names onto their canonical key
var moduleAliases = map[string]string{
	"agendamentos":   "agenda",
	"agendamento":    "agenda",
	"portal-cliente": "portal_cliente",
	"portalcliente":  "portal_cliente",
}

// NormalizeEnabledModules coerces the many historical shapes of the enabled
// modules field (list, CSV string, JSON string, map with "modules" or
// "modulos" key) into a deduplicated list of canonical module keys,
// preserving first-occurrence order. Applying it to its own output is a
// no-op.
func NormalizeEnabledModules(input interface{}) []string {
	raw := collectModuleTokens(input)

	seen := make(map[string]bool)
	result := make([]string, 0, len(raw))
	for _, token := range raw {
		name := strings.ToLower(strings.TrimSpace(token))
		if name == "" {
			continue
		}
		if canonical, ok := moduleAliases[name]; ok {
			name = canonical
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		result = append(result, name)
	}
	return result
}

func collectModuleTokens(input interface{}) []string {
	switch v := input.(type) {
	case nil:
		return nil
	case []string:
		return v
	case []interface{}:
		tokens := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				tokens = append(tokens, s)
			}
		}
		return tokens
	case map[string]interface{}:
		for _, key := range []string{"modules", "modulos", "legacy"} {
			if nested, ok := v[key]; ok {
				return collectModuleTokens(nested)
			}
		}
		return nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil
		}
		if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
			var decoded interface{}
			if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
				return collectModuleTokens(decoded)
			}
		}
		return strings.Split(trimmed, ",")
	default:
		return nil
	}
}

// AddressEntry is a parsed additional-address row
type AddressEntry struct {
	Logradouro      string
	Numero          string
	Complemento     string
	Bairro          string
	Cidade          string
	UF              string
	CEP             string
	Pais            string
	PontoReferencia string
	Tipo            string
	Principal       bool
}

// ContactEntry is a parsed contact row
type ContactEntry struct {
	Nome       string
	Email      string
	Telefone   string
	Cargo      string
	Observacao string
}

var validAddressTipos = map[string]bool{
	models.EnderecoTipoCobranca: true,
	models.EnderecoTipoEntrega:  true,
	models.EnderecoTipoFiscal:   true,
	models.EnderecoTipoOutro:    true,
}

// ParseAddressList decodes the additional-addresses JSON collection. Entries
// missing any required field are skipped with a warning; the result is capped
// at max entries. Malformed JSON yields an empty list.
func ParseAddressList(raw interface{}, max int, logger *logrus.Logger) []AddressEntry {
	rows := decodeJSONList(raw, "enderecos_adicionais_json", logger)
	entries := make([]AddressEntry, 0, len(rows))

	for _, row := range rows {
		if len(entries) >= max {
			break
		}
		entry := AddressEntry{
			Logradouro:      strField(row, "logradouro"),
			Numero:          strField(row, "numero"),
			Complemento:     strField(row, "complemento"),
			Bairro:          strField(row, "bairro"),
			Cidade:          strField(row, "cidade"),
			UF:              strings.ToUpper(strField(row, "uf")),
			CEP:             strField(row, "cep"),
			Pais:            strField(row, "pais"),
			PontoReferencia: strField(row, "ponto_referencia"),
			Tipo:            strings.ToUpper(strField(row, "tipo")),
			Principal:       boolField(row, "principal"),
		}
		if entry.Logradouro == "" || entry.Numero == "" || entry.Bairro == "" ||
			entry.Cidade == "" || entry.UF == "" || entry.CEP == "" {
			logger.WithField("row", row).Warn("skipping incomplete additional address")
			continue
		}
		if !validAddressTipos[entry.Tipo] {
			entry.Tipo = models.EnderecoTipoOutro
		}
		if entry.Pais == "" {
			entry.Pais = "Brasil"
		}
		entries = append(entries, entry)
	}
	return entries
}

// ParseContactList decodes the contacts JSON collection. Each row must carry
// at least one of nome/email/telefone; fields are length-capped. Malformed
// JSON yields an empty list.
func ParseContactList(raw interface{}, max int, logger *logrus.Logger) []ContactEntry {
	rows := decodeJSONList(raw, "contatos_json", logger)
	entries := make([]ContactEntry, 0, len(rows))

	for _, row := range rows {
		if len(entries) >= max {
			break
		}
		entry := ContactEntry{
			Nome:       truncate(strField(row, "nome"), 100),
			Email:      truncate(strings.ToLower(strField(row, "email")), 254),
			Telefone:   truncate(strField(row, "telefone"), 20),
			Cargo:      truncate(strField(row, "cargo"), 100),
			Observacao: truncate(strField(row, "observacao"), 500),
		}
		if entry.Nome == "" && entry.Email == "" && entry.Telefone == "" {
			logger.WithField("row", row).Warn("skipping empty contact row")
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

// ParseSocialLinks decodes the social-links JSON collection into a name to
// URL mapping. Rows need both nome and link; links without a scheme get
// https:// prefixed; duplicate names resolve last-value-wins. Capped at max
// input rows.
func ParseSocialLinks(raw interface{}, max int, logger *logrus.Logger) map[string]string {
	rows := decodeJSONList(raw, "redes_sociais_json", logger)
	links := make(map[string]string)

	count := 0
	for _, row := range rows {
		if count >= max {
			break
		}
		count++

		nome := strings.ToLower(strField(row, "nome"))
		link := strField(row, "link")
		if nome == "" || link == "" {
			continue
		}
		if !strings.Contains(link, "://") {
			link = "https://" + link
		}
		links[nome] = link
	}
	return links
}

// decodeJSONList accepts an already-decoded list or a JSON string and returns
// object rows. Malformed input is treated as empty: wizard navigation must
// never be blocked by a broken hidden field.
func decodeJSONList(raw interface{}, field string, logger *logrus.Logger) []map[string]interface{} {
	var items []interface{}

	switch v := raw.(type) {
	case nil:
		return nil
	case []interface{}:
		items = v
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil
		}
		if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
			logger.WithFields(logrus.Fields{
				"field": field,
				"error": err.Error(),
			}).Warn("malformed JSON collection treated as empty")
			return nil
		}
	default:
		logger.WithField("field", field).Warn("unsupported JSON collection type treated as empty")
		return nil
	}

	rows := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		if row, ok := item.(map[string]interface{}); ok {
			rows = append(rows, row)
		}
	}
	return rows
}

func strField(row map[string]interface{}, key string) string {
	if v, ok := row[key]; ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func boolField(row map[string]interface{}, key string) bool {
	switch v := row[key].(type) {
	case bool:
		return v
	case string:
		lower := strings.ToLower(strings.TrimSpace(v))
		return lower == "true" || lower == "1" || lower == "sim"
	default:
		return false
	}
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
