package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"empresa-service/internal/config"
	"empresa-service/internal/metrics"
	"empresa-service/internal/models"
	"empresa-service/internal/redis"
	"empresa-service/internal/repository"
)

// Finish outcomes
const (
	FinishOutcomeSuccess   = "success"
	FinishOutcomeDuplicate = "duplicate_subdomain"
	FinishOutcomeInvalid   = "invalid"
	FinishOutcomeException = "exception"
)

// DocumentConsolidator moves temp uploads under the finished tenant
type DocumentConsolidator interface {
	ConsolidateTempUploads(ctx context.Context, tempToken string, empresaID uuid.UUID) error
}

// WelcomeEmail is one queued welcome notification
type WelcomeEmail struct {
	Email             string
	Nome              string
	Password          string
	PasswordGenerated bool
}

// WelcomeMailer delivers the batched welcome emails after a successful finish
type WelcomeMailer interface {
	SendWelcomeBatch(ctx context.Context, empresa *models.Empresa, recipients []WelcomeEmail) error
}

// EventPublisher emits domain events after a successful finish
type EventPublisher interface {
	PublishEmpresaCreated(empresa *models.Empresa) error
	PublishWizardFinished(sessionKey string, empresaID uuid.UUID, outcome string, durationSeconds float64) error
}

// StepView is the render model for the current wizard step
type StepView struct {
	SessionKey       string                 `json:"session_key"`
	CurrentStep      int                    `json:"current_step"`
	StepName         string                 `json:"step_name"`
	TotalSteps       int                    `json:"total_steps"`
	Data             map[string]interface{} `json:"data"`
	EditingEmpresaID *uuid.UUID             `json:"editing_empresa_id,omitempty"`
}

// FinishResult describes the outcome of a finish attempt. Business failures
// are expressed here, never as errors: the finish path converts everything
// into a user-routable result.
type FinishResult struct {
	Outcome       string             `json:"outcome"`
	EmpresaID     *uuid.UUID         `json:"empresa_id,omitempty"`
	Subdominio    string             `json:"subdominio,omitempty"`
	RedirectTo    string             `json:"redirect_to"`
	ReturnStep    int                `json:"return_step,omitempty"`
	Message       string             `json:"message,omitempty"`
	FieldErrors   []*ValidationError `json:"field_errors,omitempty"`
	Warnings      []string           `json:"warnings,omitempty"`
	CorrelationID string             `json:"correlation_id"`
}

// Succeeded reports whether the tenant was materialized
func (r *FinishResult) Succeeded() bool {
	return r.Outcome == FinishOutcomeSuccess
}

// WizardService orchestrates the onboarding wizard: session lifecycle, step
// transitions, and the finish-time consolidation transaction.
type WizardService struct {
	sessions    redis.SessionStore
	empresas    repository.EmpresaStore
	validator   *StepValidator
	adminParser *AdminParser
	metrics     *metrics.Store
	documents   DocumentConsolidator
	mailer      WelcomeMailer
	events      EventPublisher
	cfg         config.WizardConfig
	logger      *logrus.Logger
}

// NewWizardService creates the wizard controller. documents, mailer, and
// events are optional collaborators; nil disables the corresponding side
// effect.
func NewWizardService(
	sessions redis.SessionStore,
	empresas repository.EmpresaStore,
	metricsStore *metrics.Store,
	documents DocumentConsolidator,
	mailer WelcomeMailer,
	events EventPublisher,
	cfg config.WizardConfig,
	logger *logrus.Logger,
) *WizardService {
	return &WizardService{
		sessions:    sessions,
		empresas:    empresas,
		validator:   NewStepValidator(cfg, logger),
		adminParser: NewAdminParser(cfg, logger),
		metrics:     metricsStore,
		documents:   documents,
		mailer:      mailer,
		events:      events,
		cfg:         cfg,
		logger:      logger,
	}
}

// StartSession creates a new wizard session. When editingID is given the
// wizard runs in edit mode and the session is seeded from the stored tenant.
func (s *WizardService) StartSession(ctx context.Context, editingID *uuid.UUID) (*StepView, error) {
	state := &redis.WizardState{
		SessionKey:  uuid.New().String(),
		CurrentStep: int(FirstStep),
		StepData:    make(map[string]map[string]interface{}),
		CreatedAt:   time.Now(),
	}

	if editingID != nil {
		empresa, err := s.empresas.GetByID(ctx, *editingID)
		if err != nil {
			return nil, fmt.Errorf("failed to load empresa for editing: %w", err)
		}
		state.EditingEmpresaID = editingID
		state.StepData = seedStepData(empresa)
	}

	if err := s.sessions.SaveState(ctx, state, s.cfg.SessionTTL()); err != nil {
		return nil, fmt.Errorf("failed to persist wizard session: %w", err)
	}

	s.metrics.TouchActivity(state.SessionKey)
	return s.viewFor(state), nil
}

// GetStep returns the current step and its accumulated data
func (s *WizardService) GetStep(ctx context.Context, sessionKey string) (*StepView, error) {
	state, err := s.loadState(ctx, sessionKey)
	if err != nil {
		return nil, err
	}
	s.metrics.TouchActivity(sessionKey)
	return s.viewFor(state), nil
}

// SubmitStep handles a step POST with one of the navigation actions. It
// returns the updated view, or field errors when validation rejected the
// payload (in which case nothing was merged into the session).
func (s *WizardService) SubmitStep(ctx context.Context, sessionKey, action string, payload map[string]interface{}) (*StepView, []*ValidationError, error) {
	state, err := s.loadState(ctx, sessionKey)
	if err != nil {
		return nil, nil, err
	}
	s.metrics.TouchActivity(sessionKey)

	step, ok := StepFromInt(state.CurrentStep)
	if !ok {
		// corrupted session; restart at the first step
		step = FirstStep
		state.CurrentStep = int(FirstStep)
	}

	switch action {
	case "go_back":
		state.CurrentStep = int(step.Prev())
		if err := s.sessions.SaveState(ctx, state, s.cfg.SessionTTL()); err != nil {
			return nil, nil, fmt.Errorf("failed to persist wizard session: %w", err)
		}
		return s.viewFor(state), nil, nil

	case "", "advance", "save_draft":
		cleaned, fieldErrs := s.validator.Validate(step, payload)
		if len(fieldErrs) > 0 {
			return s.viewFor(state), fieldErrs, nil
		}

		if fieldErrs := s.checkEditingInvariant(state, step, cleaned); len(fieldErrs) > 0 {
			return s.viewFor(state), fieldErrs, nil
		}

		// early duplicate feedback on minimal subdomain submits; full
		// configuration submits defer uniqueness to finish
		if step == StepConfiguracao && IsLightConfigPayload(payload) {
			result, err := ValidateSubdomain(ctx, s.empresas, getString(cleaned, "subdominio"), state.EditingEmpresaID)
			if err != nil {
				return nil, nil, err
			}
			if result.Status == SubdomainDuplicate {
				return s.viewFor(state), []*ValidationError{
					NewStepValidationError(int(step), "subdominio", result.Message),
				}, nil
			}
		}

		key := step.SessionKey()
		if state.StepData[key] == nil {
			state.StepData[key] = make(map[string]interface{})
		}
		for k, v := range cleaned {
			state.StepData[key][k] = v
		}
		if action != "save_draft" {
			state.CurrentStep = int(step.Next())
		}
		if err := s.sessions.SaveState(ctx, state, s.cfg.SessionTTL()); err != nil {
			return nil, nil, fmt.Errorf("failed to persist wizard session: %w", err)
		}
		return s.viewFor(state), nil, nil

	default:
		return nil, nil, NewValidationError("action", fmt.Sprintf("ação desconhecida: %s", action))
	}
}

// Heartbeat marks the session as still attended without touching its data.
// Frontends call this while the user sits on a step, so idle-but-open wizards
// are not counted as abandoned.
func (s *WizardService) Heartbeat(ctx context.Context, sessionKey string) error {
	state, err := s.loadState(ctx, sessionKey)
	if err != nil {
		return err
	}
	if err := s.sessions.UpdateHeartbeat(ctx, state.SessionKey, s.cfg.SessionTTL()); err != nil {
		return fmt.Errorf("failed to update session heartbeat: %w", err)
	}
	s.metrics.TouchActivity(sessionKey)
	return nil
}

// Cancel destroys the wizard session
func (s *WizardService) Cancel(ctx context.Context, sessionKey string) error {
	if err := s.sessions.DeleteState(ctx, sessionKey); err != nil {
		return fmt.Errorf("failed to delete wizard session: %w", err)
	}
	s.metrics.ForgetSession(sessionKey)
	return nil
}

// checkEditingInvariant blocks changing tipo_pessoa while editing an
// existing tenant
func (s *WizardService) checkEditingInvariant(state *redis.WizardState, step Step, cleaned map[string]interface{}) []*ValidationError {
	if step != StepIdentificacao || state.EditingEmpresaID == nil {
		return nil
	}
	existing := state.StepData[StepIdentificacao.SessionKey()]
	if existing == nil {
		return nil
	}
	previous := getString(existing, "tipo_pessoa")
	next := getString(cleaned, "tipo_pessoa")
	if previous != "" && next != "" && previous != next {
		return []*ValidationError{
			NewStepValidationError(int(step), "tipo_pessoa", "tipo de pessoa não pode ser alterado durante a edição"),
		}
	}
	return nil
}

// Finish runs the holistic validation and, when it passes, the atomic
// consolidation transaction. Business failures (duplicate subdomain, invalid
// data, unexpected exception) are all expressed in the FinishResult; the
// returned error is reserved for a missing session or session-store failure.
func (s *WizardService) Finish(ctx context.Context, sessionKey, correlationID string) (*FinishResult, error) {
	state, err := s.loadState(ctx, sessionKey)
	if err != nil {
		return nil, err
	}

	s.metrics.RegisterActiveSession(sessionKey)
	defer s.metrics.UnregisterActiveSession(sessionKey)
	s.metrics.SetLastCorrelationID(correlationID)

	start := time.Now()
	result, empresa, welcome := s.runFinish(ctx, state, correlationID)
	duration := time.Since(start).Seconds()

	switch result.Outcome {
	case FinishOutcomeSuccess:
		s.recordOutcome(ctx, metrics.CounterFinishSuccess, duration, metrics.OutcomeSuccess)
	case FinishOutcomeDuplicate:
		s.recordOutcome(ctx, metrics.CounterFinishDuplicate, duration, metrics.OutcomeDuplicate)
	case FinishOutcomeException:
		s.recordOutcome(ctx, metrics.CounterFinishException, duration, metrics.OutcomeException)
	default:
		s.recordOutcome(ctx, "finish_invalid", duration, "")
	}

	if result.Succeeded() {
		s.afterSuccess(ctx, state, result, empresa, welcome)
		if err := s.sessions.DeleteState(ctx, sessionKey); err != nil {
			s.logger.WithError(err).WithField("correlation_id", correlationID).
				Warn("failed to clear wizard session after finish")
		}
		s.metrics.ForgetSession(sessionKey)
	} else if result.Outcome == FinishOutcomeException && !s.cfg.PreserveSessionOnError {
		if err := s.sessions.DeleteState(ctx, sessionKey); err != nil {
			s.logger.WithError(err).Warn("failed to clear wizard session after exception")
		}
		s.metrics.ForgetSession(sessionKey)
	}

	if s.events != nil {
		if err := s.events.PublishWizardFinished(sessionKey, derefID(result.EmpresaID), result.Outcome, duration); err != nil {
			s.logger.WithError(err).Warn("failed to publish wizard finished event")
		}
	}

	return result, nil
}

// runFinish is the guarded core of Finish. Panics anywhere inside become an
// exception outcome; nothing escapes to the caller.
func (s *WizardService) runFinish(ctx context.Context, state *redis.WizardState, correlationID string) (result *FinishResult, empresaOut *models.Empresa, welcomeOut []WelcomeEmail) {
	result = &FinishResult{CorrelationID: correlationID}

	defer func() {
		if rv := recover(); rv != nil {
			s.logger.WithFields(logrus.Fields{
				"correlation_id": correlationID,
				"panic":          fmt.Sprintf("%v", rv),
			}).Error("panic during wizard finish")
			s.metrics.RegisterError("exception", fmt.Sprintf("panic: %v", rv))
			*result = s.exceptionResult(state, correlationID)
		}
	}()

	identificacao := state.StepData[StepIdentificacao.SessionKey()]
	configuracao := state.StepData[StepConfiguracao.SessionKey()]

	// holistic integrity validation
	tipo := getString(identificacao, "tipo_pessoa")
	if tipo != models.TipoPessoaJuridica && tipo != models.TipoPessoaFisica {
		return s.invalidResult(state, correlationID, "tipo de pessoa não informado"), nil, nil
	}
	if tipo == models.TipoPessoaJuridica {
		if getString(identificacao, "razao_social") == "" || getString(identificacao, "cnpj") == "" {
			return s.invalidResult(state, correlationID, "identificação incompleta: razão social e CNPJ são obrigatórios"), nil, nil
		}
	} else {
		if getString(identificacao, "nome") == "" || getString(identificacao, "cpf") == "" {
			return s.invalidResult(state, correlationID, "identificação incompleta: nome e CPF são obrigatórios"), nil, nil
		}
	}

	subdomainResult, err := ValidateSubdomain(ctx, s.empresas, getString(configuracao, "subdominio"), state.EditingEmpresaID)
	if err != nil {
		s.logger.WithError(err).WithField("correlation_id", correlationID).
			Error("subdomain uniqueness check failed")
		s.metrics.RegisterError("exception", err.Error())
		return ptrResult(s.exceptionResult(state, correlationID)), nil, nil
	}
	switch subdomainResult.Status {
	case SubdomainDuplicate:
		s.metrics.RegisterError("duplicate_subdomain", subdomainResult.Message)
		s.logger.WithFields(logrus.Fields{
			"correlation_id": correlationID,
			"subdominio":     subdomainResult.Normalized,
		}).Warn("wizard finish rejected: duplicate subdomain")
		return ptrResult(s.validationFailure(state, correlationID, FinishOutcomeDuplicate, subdomainResult.Message)), nil, nil
	case SubdomainInvalid:
		return s.invalidResult(state, correlationID, subdomainResult.Message), nil, nil
	}

	// load or create the target tenant
	var empresa *models.Empresa
	if state.EditingEmpresaID != nil {
		empresa, err = s.empresas.GetByID(ctx, *state.EditingEmpresaID)
		if err != nil {
			s.logger.WithError(err).WithField("correlation_id", correlationID).
				Error("failed to load empresa being edited")
			s.metrics.RegisterError("exception", err.Error())
			return ptrResult(s.exceptionResult(state, correlationID)), nil, nil
		}
	} else {
		empresa = &models.Empresa{}
	}

	var warnings []string
	var welcome []WelcomeEmail

	txErr := s.consolidate(ctx, state, empresa, subdomainResult.Normalized, &warnings, &welcome)
	if txErr != nil {
		s.logger.WithFields(logrus.Fields{
			"correlation_id": correlationID,
			"error":          txErr.Error(),
		}).Error("wizard consolidation failed")
		s.metrics.RegisterError("exception", txErr.Error())
		return ptrResult(s.exceptionResult(state, correlationID)), nil, nil
	}

	result.Outcome = FinishOutcomeSuccess
	result.EmpresaID = &empresa.ID
	result.Subdominio = empresa.Subdominio
	result.Warnings = warnings
	result.RedirectTo = s.successRedirect(state, empresa.ID)
	return result, empresa, welcome
}

// consolidate executes the order-sensitive tenant materialization inside one
// transaction. A panic inside is converted to an error after rollback.
func (s *WizardService) consolidate(
	ctx context.Context,
	state *redis.WizardState,
	empresa *models.Empresa,
	subdominio string,
	warnings *[]string,
	welcome *[]WelcomeEmail,
) (err error) {
	defer func() {
		if rv := recover(); rv != nil {
			err = fmt.Errorf("panic during consolidation: %v", rv)
		}
	}()

	return s.empresas.WithTransaction(ctx, func(tx repository.EmpresaTx) error {
		identificacao := state.StepData[StepIdentificacao.SessionKey()]
		endereco := state.StepData[StepEndereco.SessionKey()]
		contato := state.StepData[StepContato.SessionKey()]
		configuracao := state.StepData[StepConfiguracao.SessionKey()]
		admins := state.StepData[StepAdmins.SessionKey()]

		// identification first, unsaved
		s.assignIdentificacao(empresa, identificacao)

		// subdomain and status must be right before the first write
		empresa.Subdominio = subdominio
		status := getString(configuracao, "status")
		if status == "" {
			status = models.EmpresaStatusAtiva
		}
		empresa.Status = status

		// first save; a new tenant gets its identifier here
		if err := tx.SaveEmpresa(ctx, empresa); err != nil {
			return err
		}

		if err := s.consolidateEnderecos(ctx, tx, empresa, endereco); err != nil {
			return err
		}
		if err := s.consolidateContatos(ctx, tx, empresa, contato); err != nil {
			return err
		}
		if err := s.consolidateConfiguracao(ctx, tx, empresa, configuracao, warnings); err != nil {
			return err
		}
		return s.consolidateAdmins(ctx, tx, empresa, admins, welcome)
	})
}

func (s *WizardService) assignIdentificacao(empresa *models.Empresa, data map[string]interface{}) {
	tipo := getString(data, "tipo_pessoa")
	empresa.TipoPessoa = tipo
	if tipo == models.TipoPessoaJuridica {
		empresa.RazaoSocial = getString(data, "razao_social")
		empresa.NomeFantasia = getString(data, "nome_fantasia")
		empresa.CNPJ = getString(data, "cnpj")
		empresa.Nome = ""
		empresa.CPF = ""
	} else {
		empresa.Nome = getString(data, "nome")
		empresa.CPF = getString(data, "cpf")
		empresa.RazaoSocial = ""
		empresa.NomeFantasia = ""
		empresa.CNPJ = ""
	}
}

func (s *WizardService) consolidateEnderecos(ctx context.Context, tx repository.EmpresaTx, empresa *models.Empresa, data map[string]interface{}) error {
	if len(data) == 0 {
		return nil
	}

	principal := &models.EmpresaEndereco{
		EmpresaID:       empresa.ID,
		Logradouro:      getString(data, "logradouro"),
		Numero:          getString(data, "numero"),
		Complemento:     getString(data, "complemento"),
		Bairro:          getString(data, "bairro"),
		Cidade:          getString(data, "cidade"),
		UF:              getString(data, "uf"),
		CEP:             getString(data, "cep"),
		PontoReferencia: getString(data, "ponto_referencia"),
	}
	if pais := getString(data, "pais"); pais != "" {
		principal.Pais = pais
	}
	if principal.Logradouro != "" {
		if err := tx.UpsertEnderecoPrincipal(ctx, principal); err != nil {
			return err
		}
	}

	entries := ParseAddressList(data["enderecos_adicionais_json"], s.cfg.MaxExtraAddresses, s.logger)
	adicionais := make([]models.EmpresaEndereco, 0, len(entries))
	for _, e := range entries {
		adicionais = append(adicionais, models.EmpresaEndereco{
			EmpresaID:       empresa.ID,
			Tipo:            e.Tipo,
			Logradouro:      e.Logradouro,
			Numero:          e.Numero,
			Complemento:     e.Complemento,
			Bairro:          e.Bairro,
			Cidade:          e.Cidade,
			UF:              e.UF,
			CEP:             e.CEP,
			Pais:            e.Pais,
			PontoReferencia: e.PontoReferencia,
			Principal:       false,
		})
	}
	return tx.ReplaceEnderecosAdicionais(ctx, empresa.ID, adicionais)
}

func (s *WizardService) consolidateContatos(ctx context.Context, tx repository.EmpresaTx, empresa *models.Empresa, data map[string]interface{}) error {
	if len(data) == 0 {
		return nil
	}

	empresa.EmailPrincipal = getString(data, "email_principal")
	empresa.TelefonePrincipal = getString(data, "telefone_principal")
	empresa.Website = getString(data, "website")

	entries := ParseContactList(data["contatos_json"], s.cfg.MaxContacts, s.logger)
	contatos := make([]models.EmpresaContato, 0, len(entries))
	for _, e := range entries {
		contatos = append(contatos, models.EmpresaContato{
			EmpresaID:  empresa.ID,
			Nome:       e.Nome,
			Email:      e.Email,
			Telefone:   e.Telefone,
			Cargo:      e.Cargo,
			Observacao: e.Observacao,
		})
	}
	if err := tx.ReplaceContatos(ctx, empresa.ID, contatos); err != nil {
		return err
	}

	socials := ParseSocialLinks(data["redes_sociais_json"], s.cfg.MaxSocialLinks, s.logger)
	if len(socials) > 0 {
		asMap := make(map[string]interface{}, len(socials))
		for k, v := range socials {
			asMap[k] = v
		}
		empresa.RedesSociais = models.JSONB(asMap)
	}
	return tx.SaveEmpresa(ctx, empresa)
}

func (s *WizardService) consolidateConfiguracao(ctx context.Context, tx repository.EmpresaTx, empresa *models.Empresa, data map[string]interface{}, warnings *[]string) error {
	if len(data) == 0 {
		return nil
	}

	modules := NormalizeEnabledModules(data["modulos_habilitados"])
	moduleList := make([]interface{}, len(modules))
	moduleSet := make(map[string]bool, len(modules))
	for i, m := range modules {
		moduleList[i] = m
		moduleSet[m] = true
	}
	empresa.ModulosHabilitados = models.JSONB{"modules": moduleList}

	if plano := getString(data, "plano"); plano != "" {
		empresa.Plano = plano
	}
	if n, ok := intField(data, "max_usuarios"); ok {
		empresa.MaxUsuarios = n
	}
	if n, ok := intField(data, "max_armazenamento_mb"); ok {
		empresa.MaxArmazenamentoMB = n
	}

	if _, ok := data["portal_ativo"]; ok {
		empresa.PortalAtivo = boolField(data, "portal_ativo")
	}
	// portal requires its module; force-disable and tell the user
	if empresa.PortalAtivo && !moduleSet["portal_cliente"] {
		empresa.PortalAtivo = false
		*warnings = append(*warnings, "portal do cliente desativado: módulo 'portal_cliente' não está habilitado")
	}

	return tx.SaveEmpresa(ctx, empresa)
}

func (s *WizardService) consolidateAdmins(ctx context.Context, tx repository.EmpresaTx, empresa *models.Empresa, data map[string]interface{}, welcome *[]WelcomeEmail) error {
	if len(data) == 0 {
		return nil
	}

	entries, err := s.adminParser.Parse(data)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	emails := make([]string, len(entries))
	for i, e := range entries {
		emails[i] = e.Email
	}

	existing, err := tx.FindUsuariosByEmails(ctx, emails)
	if err != nil {
		return err
	}
	byEmail := make(map[string]*models.Usuario, len(existing))
	for i := range existing {
		byEmail[NormalizeEmail(existing[i].Email)] = &existing[i]
	}

	var toCreate []models.Usuario
	for _, entry := range entries {
		if usuario, ok := byEmail[entry.Email]; ok {
			if entry.Nome != "" {
				usuario.Nome = entry.Nome
			}
			if entry.Telefone != "" {
				usuario.Telefone = entry.Telefone
			}
			usuario.Ativo = entry.Ativo
			if entry.Senha != "" {
				hash, err := hashPassword(entry.Senha)
				if err != nil {
					return err
				}
				usuario.SenhaHash = hash
				*welcome = append(*welcome, WelcomeEmail{
					Email:             entry.Email,
					Nome:              entry.Nome,
					Password:          entry.Senha,
					PasswordGenerated: entry.PasswordGenerated,
				})
			}
			if err := tx.SaveUsuario(ctx, usuario); err != nil {
				return err
			}
			continue
		}

		usuario := models.Usuario{
			Email:    entry.Email,
			Nome:     entry.Nome,
			Telefone: entry.Telefone,
			Ativo:    entry.Ativo,
		}
		if entry.Senha != "" {
			hash, err := hashPassword(entry.Senha)
			if err != nil {
				return err
			}
			usuario.SenhaHash = hash
		}
		toCreate = append(toCreate, usuario)
		*welcome = append(*welcome, WelcomeEmail{
			Email:             entry.Email,
			Nome:              entry.Nome,
			Password:          entry.Senha,
			PasswordGenerated: entry.PasswordGenerated,
		})
	}

	if len(toCreate) > 0 {
		if err := tx.BulkCreateUsuarios(ctx, toCreate); err != nil {
			return err
		}
	}

	// re-fetch by email: conflict-ignore bulk inserts do not reliably echo
	// back identifiers, so association rows need a fresh read
	persisted, err := tx.FindUsuariosByEmails(ctx, emails)
	if err != nil {
		return err
	}
	persistedByEmail := make(map[string]*models.Usuario, len(persisted))
	for i := range persisted {
		persistedByEmail[NormalizeEmail(persisted[i].Email)] = &persisted[i]
	}

	for _, entry := range entries {
		usuario, ok := persistedByEmail[entry.Email]
		if !ok {
			return fmt.Errorf("user %s missing after bulk create", entry.Email)
		}
		assoc := &models.EmpresaUsuario{
			EmpresaID: empresa.ID,
			UsuarioID: usuario.ID,
			Admin:     true,
			Cargo:     entry.Cargo,
		}
		if err := tx.UpsertEmpresaUsuario(ctx, assoc); err != nil {
			return err
		}
	}
	return nil
}

// afterSuccess runs the post-commit best-effort side effects: document
// consolidation, welcome emails, domain event. None of them can undo the
// committed tenant.
func (s *WizardService) afterSuccess(ctx context.Context, state *redis.WizardState, result *FinishResult, empresa *models.Empresa, welcome []WelcomeEmail) {
	if empresa == nil {
		return
	}

	if s.documents != nil {
		documentos := state.StepData[StepDocumentos.SessionKey()]
		if token := getString(documentos, "temp_upload_token"); token != "" {
			if err := s.documents.ConsolidateTempUploads(ctx, token, empresa.ID); err != nil {
				s.logger.WithError(err).WithField("correlation_id", result.CorrelationID).
					Warn("document consolidation failed after finish")
			}
		}
	}

	if s.mailer != nil && len(welcome) > 0 {
		if err := s.mailer.SendWelcomeBatch(ctx, empresa, welcome); err != nil {
			s.logger.WithError(err).WithField("correlation_id", result.CorrelationID).
				Warn("welcome email batch failed")
		}
	}

	if s.events != nil && state.EditingEmpresaID == nil {
		if err := s.events.PublishEmpresaCreated(empresa); err != nil {
			s.logger.WithError(err).Warn("failed to publish empresa created event")
		}
	}
}

// recordOutcome updates the in-memory counter, the Redis-mirrored durable
// counter, and the latency windows. Counter mirroring is best-effort.
func (s *WizardService) recordOutcome(ctx context.Context, counter string, duration float64, outcome string) {
	s.metrics.Increment(counter)
	s.metrics.RecordLatency(duration, outcome)
	if err := s.sessions.IncrementCounter(ctx, counter); err != nil {
		s.logger.WithError(err).WithField("counter", counter).
			Warn("failed to mirror counter in redis")
	}
}

func (s *WizardService) invalidResult(state *redis.WizardState, correlationID, message string) *FinishResult {
	s.metrics.RegisterError("validation", message)
	s.logger.WithFields(logrus.Fields{
		"correlation_id": correlationID,
		"message":        message,
	}).Warn("wizard finish rejected: invalid data")
	r := s.validationFailure(state, correlationID, FinishOutcomeInvalid, message)
	return &r
}

// validationFailure routes the user back to the configuration step with the
// session intact
func (s *WizardService) validationFailure(state *redis.WizardState, correlationID, outcome, message string) FinishResult {
	state.CurrentStep = int(StepConfiguracao)
	if err := s.sessions.SaveState(context.Background(), state, s.cfg.SessionTTL()); err != nil {
		s.logger.WithError(err).Warn("failed to persist wizard session after validation failure")
	}
	return FinishResult{
		Outcome:       outcome,
		ReturnStep:    int(StepConfiguracao),
		Message:       message,
		RedirectTo:    s.failureRedirect(state),
		CorrelationID: correlationID,
	}
}

func (s *WizardService) exceptionResult(state *redis.WizardState, correlationID string) FinishResult {
	return FinishResult{
		Outcome:       FinishOutcomeException,
		ReturnStep:    state.CurrentStep,
		Message:       "não foi possível concluir o cadastro; tente novamente",
		RedirectTo:    s.failureRedirect(state),
		CorrelationID: correlationID,
	}
}

func (s *WizardService) successRedirect(state *redis.WizardState, empresaID uuid.UUID) string {
	if state.EditingEmpresaID != nil {
		return fmt.Sprintf("/empresas/%s", empresaID)
	}
	return "/empresas"
}

func (s *WizardService) failureRedirect(state *redis.WizardState) string {
	if state.EditingEmpresaID != nil {
		return fmt.Sprintf("/empresas/%s/editar", *state.EditingEmpresaID)
	}
	return "/empresas/novo"
}

func (s *WizardService) loadState(ctx context.Context, sessionKey string) (*redis.WizardState, error) {
	state, err := s.sessions.GetState(ctx, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load wizard session: %w", err)
	}
	if state == nil {
		return nil, NewSessionError(sessionKey, "sessão não encontrada ou expirada")
	}
	return state, nil
}

func (s *WizardService) viewFor(state *redis.WizardState) *StepView {
	step, ok := StepFromInt(state.CurrentStep)
	if !ok {
		step = FirstStep
	}
	data := state.StepData[step.SessionKey()]
	if data == nil {
		data = make(map[string]interface{})
	}
	return &StepView{
		SessionKey:       state.SessionKey,
		CurrentStep:      int(step),
		StepName:         step.Name(),
		TotalSteps:       int(LastStep),
		Data:             data,
		EditingEmpresaID: state.EditingEmpresaID,
	}
}

// seedStepData prefills session data from a stored tenant for edit mode
func seedStepData(empresa *models.Empresa) map[string]map[string]interface{} {
	data := make(map[string]map[string]interface{})

	identificacao := map[string]interface{}{"tipo_pessoa": empresa.TipoPessoa}
	if empresa.TipoPessoa == models.TipoPessoaJuridica {
		identificacao["razao_social"] = empresa.RazaoSocial
		identificacao["nome_fantasia"] = empresa.NomeFantasia
		identificacao["cnpj"] = empresa.CNPJ
	} else {
		identificacao["nome"] = empresa.Nome
		identificacao["cpf"] = empresa.CPF
	}
	data[StepIdentificacao.SessionKey()] = identificacao

	for _, endereco := range empresa.Enderecos {
		if endereco.Tipo == models.EnderecoTipoPrincipal {
			data[StepEndereco.SessionKey()] = map[string]interface{}{
				"logradouro":       endereco.Logradouro,
				"numero":           endereco.Numero,
				"complemento":      endereco.Complemento,
				"bairro":           endereco.Bairro,
				"cidade":           endereco.Cidade,
				"uf":               endereco.UF,
				"cep":              endereco.CEP,
				"pais":             endereco.Pais,
				"ponto_referencia": endereco.PontoReferencia,
			}
			break
		}
	}

	data[StepContato.SessionKey()] = map[string]interface{}{
		"email_principal":    empresa.EmailPrincipal,
		"telefone_principal": empresa.TelefonePrincipal,
		"website":            empresa.Website,
	}

	configuracao := map[string]interface{}{
		"subdominio":   empresa.Subdominio,
		"status":       empresa.Status,
		"portal_ativo": empresa.PortalAtivo,
	}
	if empresa.Plano != "" {
		configuracao["plano"] = empresa.Plano
	}
	if empresa.MaxUsuarios > 0 {
		configuracao["max_usuarios"] = empresa.MaxUsuarios
	}
	if empresa.MaxArmazenamentoMB > 0 {
		configuracao["max_armazenamento_mb"] = empresa.MaxArmazenamentoMB
	}
	if modules, ok := empresa.ModulosHabilitados["modules"]; ok {
		configuracao["modulos_habilitados"] = modules
	}
	data[StepConfiguracao.SessionKey()] = configuracao

	return data
}

func hashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func derefID(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}

func ptrResult(r FinishResult) *FinishResult {
	return &r
}
