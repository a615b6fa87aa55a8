package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"empresa-service/internal/config"
	"empresa-service/internal/models"
)

// Step identifies one wizard stage. The set is closed: dispatch over steps is
// an exhaustive switch, never a map lookup that can miss.
type Step int

const (
	StepIdentificacao Step = 1
	StepEndereco      Step = 2
	StepContato       Step = 3
	StepDocumentos    Step = 4
	StepConfiguracao  Step = 5
	StepAdmins        Step = 6
	StepConfirmacao   Step = 7
)

const (
	FirstStep = StepIdentificacao
	LastStep  = StepConfirmacao
)

// StepFromInt converts a raw step number, rejecting anything outside the registry
func StepFromInt(n int) (Step, bool) {
	if n < int(FirstStep) || n > int(LastStep) {
		return 0, false
	}
	return Step(n), true
}

// Name returns the step's stable identifier used in logs and responses
func (s Step) Name() string {
	switch s {
	case StepIdentificacao:
		return "identificacao"
	case StepEndereco:
		return "endereco"
	case StepContato:
		return "contato"
	case StepDocumentos:
		return "documentos"
	case StepConfiguracao:
		return "configuracao"
	case StepAdmins:
		return "admins"
	case StepConfirmacao:
		return "confirmacao"
	default:
		return "unknown"
	}
}

// SessionKey returns the canonical step_data key for this step
func (s Step) SessionKey() string {
	return fmt.Sprintf("step_%d", int(s))
}

// Next advances by one step, capped at the last step
func (s Step) Next() Step {
	if s >= LastStep {
		return LastStep
	}
	return s + 1
}

// Prev goes back one step, floored at the first step
func (s Step) Prev() Step {
	if s <= FirstStep {
		return FirstStep
	}
	return s - 1
}

var cepPattern = regexp.MustCompile(`^\d{5}-?\d{3}$`)

// StepValidator validates posted payloads for each wizard step and produces
// the canonical cleaned data merged into session state. Payloads may arrive
// flat or nested under a "main" sub-key; the validator flattens at this
// boundary so everything downstream sees one shape.
type StepValidator struct {
	cfg    config.WizardConfig
	logger *logrus.Logger
}

// NewStepValidator creates a step validator
func NewStepValidator(cfg config.WizardConfig, logger *logrus.Logger) *StepValidator {
	return &StepValidator{cfg: cfg, logger: logger}
}

// Validate runs the step-specific rules over the posted payload. On success
// the cleaned, canonically-shaped data is returned; on failure the field
// errors are returned and nothing should be merged into session state.
func (v *StepValidator) Validate(step Step, payload map[string]interface{}) (map[string]interface{}, []*ValidationError) {
	data := flattenPayload(payload)

	switch step {
	case StepIdentificacao:
		return v.validateIdentificacao(payload, data)
	case StepEndereco:
		return v.validateEndereco(data)
	case StepContato:
		return v.validateContato(data)
	case StepDocumentos:
		return v.validateDocumentos(data)
	case StepConfiguracao:
		return v.validateConfiguracao(data)
	case StepAdmins:
		return v.validateAdmins(data)
	case StepConfirmacao:
		return data, nil
	default:
		return nil, []*ValidationError{NewValidationError("step", "etapa desconhecida")}
	}
}

// flattenPayload merges a "main" sub-object over the top-level fields,
// producing the canonical flat shape stored in session state
func flattenPayload(payload map[string]interface{}) map[string]interface{} {
	data := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		if k == "main" || k == "pj" || k == "pf" {
			continue
		}
		data[k] = v
	}
	if main, ok := payload["main"].(map[string]interface{}); ok {
		for k, v := range main {
			data[k] = v
		}
	}
	return data
}

// validateIdentificacao validates exactly one of the mutually exclusive PJ/PF
// forms, selected by tipo_pessoa. The unselected form's content is discarded,
// errors included.
func (v *StepValidator) validateIdentificacao(payload, data map[string]interface{}) (map[string]interface{}, []*ValidationError) {
	tipo := strings.ToUpper(getString(data, "tipo_pessoa"))
	if tipo != models.TipoPessoaJuridica && tipo != models.TipoPessoaFisica {
		return nil, []*ValidationError{
			NewStepValidationError(int(StepIdentificacao), "tipo_pessoa", "selecione Pessoa Jurídica ou Pessoa Física"),
		}
	}

	// fields may come nested under the selected form's own key
	form := data
	formKey := strings.ToLower(tipo)
	if nested, ok := payload[formKey].(map[string]interface{}); ok {
		form = mergeMaps(data, nested)
	}

	cleaned := map[string]interface{}{"tipo_pessoa": tipo}
	var errs []*ValidationError

	if tipo == models.TipoPessoaJuridica {
		razao := getString(form, "razao_social")
		if razao == "" {
			errs = append(errs, NewStepValidationError(int(StepIdentificacao), "razao_social", "razão social é obrigatória"))
		}
		cnpj := digitsOnly(getString(form, "cnpj"))
		if len(cnpj) != 14 {
			errs = append(errs, NewStepValidationError(int(StepIdentificacao), "cnpj", "CNPJ deve ter 14 dígitos"))
		}
		cleaned["razao_social"] = razao
		cleaned["nome_fantasia"] = getString(form, "nome_fantasia")
		cleaned["cnpj"] = cnpj
	} else {
		nome := getString(form, "nome")
		if nome == "" {
			errs = append(errs, NewStepValidationError(int(StepIdentificacao), "nome", "nome é obrigatório"))
		}
		cpf := digitsOnly(getString(form, "cpf"))
		if len(cpf) != 11 {
			errs = append(errs, NewStepValidationError(int(StepIdentificacao), "cpf", "CPF deve ter 11 dígitos"))
		}
		cleaned["nome"] = nome
		cleaned["cpf"] = cpf
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return cleaned, nil
}

func (v *StepValidator) validateEndereco(data map[string]interface{}) (map[string]interface{}, []*ValidationError) {
	var errs []*ValidationError

	required := []struct{ field, message string }{
		{"logradouro", "logradouro é obrigatório"},
		{"numero", "número é obrigatório"},
		{"bairro", "bairro é obrigatório"},
		{"cidade", "cidade é obrigatória"},
		{"uf", "UF é obrigatória"},
		{"cep", "CEP é obrigatório"},
	}
	cleaned := make(map[string]interface{})
	for _, r := range required {
		value := getString(data, r.field)
		if value == "" {
			errs = append(errs, NewStepValidationError(int(StepEndereco), r.field, r.message))
		}
		cleaned[r.field] = value
	}

	uf := strings.ToUpper(getString(data, "uf"))
	if uf != "" && len(uf) != 2 {
		errs = append(errs, NewStepValidationError(int(StepEndereco), "uf", "UF deve ter 2 letras"))
	}
	cleaned["uf"] = uf

	cep := getString(data, "cep")
	if cep != "" && !cepPattern.MatchString(cep) {
		errs = append(errs, NewStepValidationError(int(StepEndereco), "cep", "CEP inválido"))
	}

	cleaned["complemento"] = getString(data, "complemento")
	cleaned["pais"] = getString(data, "pais")
	cleaned["ponto_referencia"] = getString(data, "ponto_referencia")
	if raw, ok := data["enderecos_adicionais_json"]; ok {
		cleaned["enderecos_adicionais_json"] = raw
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return cleaned, nil
}

func (v *StepValidator) validateContato(data map[string]interface{}) (map[string]interface{}, []*ValidationError) {
	var errs []*ValidationError
	cleaned := make(map[string]interface{})

	email := getString(data, "email_principal")
	if email != "" && !ValidEmail(email) {
		errs = append(errs, NewStepValidationError(int(StepContato), "email_principal", "e-mail inválido"))
	}
	cleaned["email_principal"] = NormalizeEmail(email)
	cleaned["telefone_principal"] = getString(data, "telefone_principal")
	cleaned["website"] = getString(data, "website")

	for _, key := range []string{"contatos_json", "redes_sociais_json"} {
		if raw, ok := data[key]; ok {
			cleaned[key] = raw
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return cleaned, nil
}

// validateDocumentos: the documents step carries no validated fields; uploads
// live in the document subsystem keyed by a temp token consolidated at finish
func (v *StepValidator) validateDocumentos(data map[string]interface{}) (map[string]interface{}, []*ValidationError) {
	cleaned := make(map[string]interface{})
	if token := getString(data, "temp_upload_token"); token != "" {
		cleaned["temp_upload_token"] = token
	}
	return cleaned, nil
}

func (v *StepValidator) validateConfiguracao(data map[string]interface{}) (map[string]interface{}, []*ValidationError) {
	var errs []*ValidationError
	cleaned := make(map[string]interface{})

	result := ValidateSubdomainFormat(getString(data, "subdominio"))
	if !result.Ok() {
		errs = append(errs, NewStepValidationError(int(StepConfiguracao), "subdominio", result.Message))
	}
	cleaned["subdominio"] = result.Normalized

	status := strings.ToUpper(getString(data, "status"))
	switch status {
	case "":
		status = models.EmpresaStatusAtiva
	case models.EmpresaStatusAtiva, models.EmpresaStatusInativa, models.EmpresaStatusSuspensa:
	default:
		errs = append(errs, NewStepValidationError(int(StepConfiguracao), "status", "status inválido"))
	}
	cleaned["status"] = status

	if raw, ok := data["modulos_habilitados"]; ok {
		cleaned["modulos_habilitados"] = NormalizeEnabledModules(raw)
	}
	if plano := getString(data, "plano"); plano != "" {
		cleaned["plano"] = plano
	}
	if n, ok := intField(data, "max_usuarios"); ok {
		if n < 1 {
			errs = append(errs, NewStepValidationError(int(StepConfiguracao), "max_usuarios", "deve ser maior que zero"))
		}
		cleaned["max_usuarios"] = n
	}
	if n, ok := intField(data, "max_armazenamento_mb"); ok {
		if n < 1 {
			errs = append(errs, NewStepValidationError(int(StepConfiguracao), "max_armazenamento_mb", "deve ser maior que zero"))
		}
		cleaned["max_armazenamento_mb"] = n
	}
	if _, ok := data["portal_ativo"]; ok {
		cleaned["portal_ativo"] = boolField(data, "portal_ativo")
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return cleaned, nil
}

// fullConfigFields beyond subdominio/status mark a full configuration submit
var fullConfigFields = []string{"modulos_habilitados", "plano", "max_usuarios", "max_armazenamento_mb", "portal_ativo"}

// IsLightConfigPayload reports whether a configuration submit carries only
// the minimal subdomain/status subset. Light submits get an early duplicate
// check for immediate feedback; full submits defer uniqueness to finish.
func IsLightConfigPayload(payload map[string]interface{}) bool {
	data := flattenPayload(payload)
	for _, field := range fullConfigFields {
		if _, ok := data[field]; ok {
			return false
		}
	}
	return true
}

func (v *StepValidator) validateAdmins(data map[string]interface{}) (map[string]interface{}, []*ValidationError) {
	var errs []*ValidationError
	cleaned := make(map[string]interface{})

	if bulk := getString(data, "bulk_admin_password"); bulk != "" {
		if len(bulk) < 8 {
			errs = append(errs, NewStepValidationError(int(StepAdmins), "bulk_admin_password", "senha deve ter pelo menos 8 caracteres"))
		}
		cleaned["bulk_admin_password"] = bulk
	}
	if _, ok := data["gerar_senha_auto"]; ok {
		cleaned["gerar_senha_auto"] = boolField(data, "gerar_senha_auto")
	}

	raw, ok := data["admins_json"]
	if !ok {
		if len(errs) > 0 {
			return nil, errs
		}
		return cleaned, nil
	}
	cleaned["admins_json"] = raw

	rows := decodeJSONList(raw, "admins_json", v.logger)
	if len(rows) > v.cfg.MaxAdmins {
		errs = append(errs, NewStepValidationError(int(StepAdmins), "admins_json",
			fmt.Sprintf("máximo de %d administradores", v.cfg.MaxAdmins)))
		rows = rows[:v.cfg.MaxAdmins]
	}

	// all rows validated, all errors surfaced together
	seen := make(map[string]int)
	for i, row := range rows {
		prefix := fmt.Sprintf("admins_json[%d]", i)

		email := NormalizeEmail(strField(row, "email"))
		if email == "" {
			errs = append(errs, NewStepValidationError(int(StepAdmins), prefix+".email", "e-mail é obrigatório"))
		} else if !ValidEmail(email) {
			errs = append(errs, NewStepValidationError(int(StepAdmins), prefix+".email", "e-mail inválido"))
		} else if first, dup := seen[email]; dup {
			errs = append(errs, NewStepValidationError(int(StepAdmins), prefix+".email",
				fmt.Sprintf("e-mail duplicado (linha %d)", first+1)))
		} else {
			seen[email] = i
		}

		senha := strField(row, "senha")
		if senha != "" {
			if len(senha) < 8 {
				errs = append(errs, NewStepValidationError(int(StepAdmins), prefix+".senha", "senha deve ter pelo menos 8 caracteres"))
			}
			if senha != strField(row, "confirm_senha") {
				errs = append(errs, NewStepValidationError(int(StepAdmins), prefix+".confirm_senha", "senhas não conferem"))
			}
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return cleaned, nil
}

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key]; ok {
		switch s := v.(type) {
		case string:
			return strings.TrimSpace(s)
		case float64:
			return strconv.FormatFloat(s, 'f', -1, 64)
		}
	}
	return ""
}

func intField(data map[string]interface{}, key string) (int, bool) {
	switch v := data[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n, true
		}
	}
	return 0, false
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func mergeMaps(base, overlay map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}
