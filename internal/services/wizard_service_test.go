package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"empresa-service/internal/config"
	"empresa-service/internal/metrics"
	"empresa-service/internal/models"
	"empresa-service/internal/redis"
	"empresa-service/internal/repository"
)

// fakeSessionStore keeps wizard state in memory, isolated by JSON round-trips
type fakeSessionStore struct {
	states     map[string][]byte
	counters   map[string]int64
	heartbeats int
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		states:   make(map[string][]byte),
		counters: make(map[string]int64),
	}
}

func (f *fakeSessionStore) SaveState(ctx context.Context, state *redis.WizardState, ttl time.Duration) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	f.states[state.SessionKey] = data
	return nil
}

func (f *fakeSessionStore) GetState(ctx context.Context, sessionKey string) (*redis.WizardState, error) {
	data, ok := f.states[sessionKey]
	if !ok {
		return nil, nil
	}
	var state redis.WizardState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (f *fakeSessionStore) DeleteState(ctx context.Context, sessionKey string) error {
	delete(f.states, sessionKey)
	return nil
}

func (f *fakeSessionStore) UpdateHeartbeat(ctx context.Context, sessionKey string, ttl time.Duration) error {
	f.heartbeats++
	return nil
}

func (f *fakeSessionStore) IncrementCounter(ctx context.Context, name string) error {
	f.counters[name]++
	return nil
}

// fakeData is the committed state of the fake tenant store
type fakeData struct {
	empresas  map[uuid.UUID]models.Empresa
	enderecos map[uuid.UUID][]models.EmpresaEndereco
	contatos  map[uuid.UUID][]models.EmpresaContato
	usuarios  map[uuid.UUID]models.Usuario
	assocs    map[string]models.EmpresaUsuario
}

func newFakeData() *fakeData {
	return &fakeData{
		empresas:  make(map[uuid.UUID]models.Empresa),
		enderecos: make(map[uuid.UUID][]models.EmpresaEndereco),
		contatos:  make(map[uuid.UUID][]models.EmpresaContato),
		usuarios:  make(map[uuid.UUID]models.Usuario),
		assocs:    make(map[string]models.EmpresaUsuario),
	}
}

func (d *fakeData) clone() *fakeData {
	c := newFakeData()
	for k, v := range d.empresas {
		c.empresas[k] = v
	}
	for k, v := range d.enderecos {
		c.enderecos[k] = append([]models.EmpresaEndereco(nil), v...)
	}
	for k, v := range d.contatos {
		c.contatos[k] = append([]models.EmpresaContato(nil), v...)
	}
	for k, v := range d.usuarios {
		c.usuarios[k] = v
	}
	for k, v := range d.assocs {
		c.assocs[k] = v
	}
	return c
}

// fakeEmpresaStore implements repository.EmpresaStore with transaction
// staging: writes go to a clone and only replace the committed state when
// the transaction function returns nil.
type fakeEmpresaStore struct {
	data           *fakeData
	failBulkCreate bool
}

func newFakeEmpresaStore() *fakeEmpresaStore {
	return &fakeEmpresaStore{data: newFakeData()}
}

func (f *fakeEmpresaStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Empresa, error) {
	empresa, ok := f.data.empresas[id]
	if !ok {
		return nil, errors.New("empresa not found")
	}
	empresa.Enderecos = append([]models.EmpresaEndereco(nil), f.data.enderecos[id]...)
	empresa.Contatos = append([]models.EmpresaContato(nil), f.data.contatos[id]...)
	return &empresa, nil
}

func (f *fakeEmpresaStore) GetBySubdomain(ctx context.Context, subdominio string) (*models.Empresa, error) {
	for _, empresa := range f.data.empresas {
		if strings.EqualFold(empresa.Subdominio, subdominio) {
			e := empresa
			return &e, nil
		}
	}
	return nil, errors.New("empresa not found")
}

func (f *fakeEmpresaStore) SubdomainExists(ctx context.Context, subdominio string, excludeID *uuid.UUID) (bool, error) {
	for id, empresa := range f.data.empresas {
		if excludeID != nil && id == *excludeID {
			continue
		}
		if strings.EqualFold(empresa.Subdominio, subdominio) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeEmpresaStore) WithTransaction(ctx context.Context, fn func(tx repository.EmpresaTx) error) error {
	staged := f.data.clone()
	if err := fn(&fakeTx{data: staged, store: f}); err != nil {
		return err
	}
	f.data = staged
	return nil
}

type fakeTx struct {
	data  *fakeData
	store *fakeEmpresaStore
}

func (t *fakeTx) SaveEmpresa(ctx context.Context, empresa *models.Empresa) error {
	if empresa.ID == uuid.Nil {
		empresa.ID = uuid.New()
	}
	t.data.empresas[empresa.ID] = *empresa
	return nil
}

func (t *fakeTx) UpsertEnderecoPrincipal(ctx context.Context, endereco *models.EmpresaEndereco) error {
	endereco.Tipo = models.EnderecoTipoPrincipal
	endereco.Principal = true
	list := t.data.enderecos[endereco.EmpresaID]
	for i, existing := range list {
		if existing.Tipo == models.EnderecoTipoPrincipal {
			endereco.ID = existing.ID
			list[i] = *endereco
			t.data.enderecos[endereco.EmpresaID] = list
			return nil
		}
	}
	endereco.ID = uuid.New()
	t.data.enderecos[endereco.EmpresaID] = append(list, *endereco)
	return nil
}

func (t *fakeTx) ReplaceEnderecosAdicionais(ctx context.Context, empresaID uuid.UUID, enderecos []models.EmpresaEndereco) error {
	var kept []models.EmpresaEndereco
	for _, existing := range t.data.enderecos[empresaID] {
		if existing.Tipo == models.EnderecoTipoPrincipal {
			kept = append(kept, existing)
		}
	}
	for _, e := range enderecos {
		e.ID = uuid.New()
		kept = append(kept, e)
	}
	t.data.enderecos[empresaID] = kept
	return nil
}

func (t *fakeTx) ReplaceContatos(ctx context.Context, empresaID uuid.UUID, contatos []models.EmpresaContato) error {
	replaced := make([]models.EmpresaContato, 0, len(contatos))
	for _, c := range contatos {
		c.ID = uuid.New()
		replaced = append(replaced, c)
	}
	t.data.contatos[empresaID] = replaced
	return nil
}

func (t *fakeTx) FindUsuariosByEmails(ctx context.Context, emails []string) ([]models.Usuario, error) {
	var found []models.Usuario
	for _, email := range emails {
		for _, usuario := range t.data.usuarios {
			if strings.EqualFold(usuario.Email, email) {
				found = append(found, usuario)
			}
		}
	}
	return found, nil
}

func (t *fakeTx) BulkCreateUsuarios(ctx context.Context, usuarios []models.Usuario) error {
	if t.store.failBulkCreate {
		return errors.New("bulk create failed")
	}
	for _, usuario := range usuarios {
		exists := false
		for _, existing := range t.data.usuarios {
			if strings.EqualFold(existing.Email, usuario.Email) {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		usuario.ID = uuid.New()
		t.data.usuarios[usuario.ID] = usuario
	}
	return nil
}

func (t *fakeTx) SaveUsuario(ctx context.Context, usuario *models.Usuario) error {
	if usuario.ID == uuid.Nil {
		usuario.ID = uuid.New()
	}
	t.data.usuarios[usuario.ID] = *usuario
	return nil
}

func (t *fakeTx) UpsertEmpresaUsuario(ctx context.Context, assoc *models.EmpresaUsuario) error {
	key := assoc.EmpresaID.String() + ":" + assoc.UsuarioID.String()
	if existing, ok := t.data.assocs[key]; ok {
		assoc.ID = existing.ID
	} else {
		assoc.ID = uuid.New()
	}
	t.data.assocs[key] = *assoc
	return nil
}

type captureMailer struct {
	batches [][]WelcomeEmail
	fail    bool
}

func (m *captureMailer) SendWelcomeBatch(ctx context.Context, empresa *models.Empresa, recipients []WelcomeEmail) error {
	if m.fail {
		return errors.New("smtp down")
	}
	m.batches = append(m.batches, recipients)
	return nil
}

func testConfig() config.WizardConfig {
	return config.WizardConfig{
		SessionTTLHours:         48,
		PreserveSessionOnError:  true,
		MaxExtraAddresses:       50,
		MaxContacts:             100,
		MaxSocialLinks:          50,
		MaxAdmins:               50,
		GeneratedPasswordLength: 12,
	}
}

func newTestWizard(t *testing.T) (*WizardService, *fakeSessionStore, *fakeEmpresaStore, *metrics.Store, *captureMailer) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	sessions := newFakeSessionStore()
	store := newFakeEmpresaStore()
	metricsStore := metrics.NewStore(metrics.Settings{}, logger)
	mailer := &captureMailer{}

	svc := NewWizardService(sessions, store, metricsStore, nil, mailer, nil, testConfig(), logger)
	return svc, sessions, store, metricsStore, mailer
}

func validPJPayload() map[string]interface{} {
	return map[string]interface{}{
		"tipo_pessoa":  "PJ",
		"razao_social": "Acme Ltda",
		"cnpj":         "12.345.678/0001-99",
	}
}

func TestStartSessionCreateMode(t *testing.T) {
	svc, _, _, _, _ := newTestWizard(t)

	view, err := svc.StartSession(context.Background(), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, view.SessionKey)
	assert.Equal(t, 1, view.CurrentStep)
	assert.Equal(t, "identificacao", view.StepName)
}

func TestSubmitStepAdvanceAndDraft(t *testing.T) {
	svc, _, _, _, _ := newTestWizard(t)
	ctx := context.Background()

	view, err := svc.StartSession(ctx, nil)
	require.NoError(t, err)
	key := view.SessionKey

	// draft does not advance
	view, fieldErrs, err := svc.SubmitStep(ctx, key, "save_draft", validPJPayload())
	require.NoError(t, err)
	require.Empty(t, fieldErrs)
	assert.Equal(t, 1, view.CurrentStep)
	assert.Equal(t, "12345678000199", view.Data["cnpj"])

	// advance moves to step 2
	view, fieldErrs, err = svc.SubmitStep(ctx, key, "advance", validPJPayload())
	require.NoError(t, err)
	require.Empty(t, fieldErrs)
	assert.Equal(t, 2, view.CurrentStep)
}

func TestSubmitStepGoBackFloorsAtFirstStep(t *testing.T) {
	svc, _, _, _, _ := newTestWizard(t)
	ctx := context.Background()

	view, err := svc.StartSession(ctx, nil)
	require.NoError(t, err)

	view, fieldErrs, err := svc.SubmitStep(ctx, view.SessionKey, "go_back", nil)
	require.NoError(t, err)
	require.Empty(t, fieldErrs)
	assert.Equal(t, 1, view.CurrentStep)
}

func TestStep1ExclusiveValidation(t *testing.T) {
	svc, _, _, _, _ := newTestWizard(t)
	ctx := context.Background()

	view, err := svc.StartSession(ctx, nil)
	require.NoError(t, err)
	key := view.SessionKey

	// PJ selected but only PF fields present
	_, fieldErrs, err := svc.SubmitStep(ctx, key, "advance", map[string]interface{}{
		"tipo_pessoa": "PJ",
		"pf":          map[string]interface{}{"nome": "Maria", "cpf": "123.456.789-09"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, fieldErrs)

	// no type at all: single non-field error
	_, fieldErrs, err = svc.SubmitStep(ctx, key, "advance", map[string]interface{}{
		"razao_social": "Acme",
	})
	require.NoError(t, err)
	require.Len(t, fieldErrs, 1)
	assert.Equal(t, "tipo_pessoa", fieldErrs[0].Field)

	// valid PJ succeeds even with garbage in the PF form
	_, fieldErrs, err = svc.SubmitStep(ctx, key, "advance", map[string]interface{}{
		"tipo_pessoa": "PJ",
		"pj": map[string]interface{}{
			"razao_social": "Acme Ltda",
			"cnpj":         "12.345.678/0001-99",
		},
		"pf": map[string]interface{}{"cpf": "not-a-cpf"},
	})
	require.NoError(t, err)
	assert.Empty(t, fieldErrs)
}

func TestEditingCannotChangeTipoPessoa(t *testing.T) {
	svc, _, store, _, _ := newTestWizard(t)
	ctx := context.Background()

	empresaID := uuid.New()
	store.data.empresas[empresaID] = models.Empresa{
		ID:          empresaID,
		TipoPessoa:  models.TipoPessoaJuridica,
		RazaoSocial: "Acme Ltda",
		CNPJ:        "12345678000199",
		Subdominio:  "acme",
		Status:      models.EmpresaStatusAtiva,
	}

	view, err := svc.StartSession(ctx, &empresaID)
	require.NoError(t, err)

	_, fieldErrs, err := svc.SubmitStep(ctx, view.SessionKey, "advance", map[string]interface{}{
		"tipo_pessoa": "PF",
		"nome":        "Maria",
		"cpf":         "123.456.789-09",
	})
	require.NoError(t, err)
	require.Len(t, fieldErrs, 1)
	assert.Equal(t, "tipo_pessoa", fieldErrs[0].Field)
}

func TestConfigLightPayloadEarlyDuplicateCheck(t *testing.T) {
	svc, sessions, store, _, _ := newTestWizard(t)
	ctx := context.Background()

	taken := uuid.New()
	store.data.empresas[taken] = models.Empresa{ID: taken, Subdominio: "acme"}

	view, err := svc.StartSession(ctx, nil)
	require.NoError(t, err)
	key := view.SessionKey

	// jump the session to the configuration step
	state, err := sessions.GetState(ctx, key)
	require.NoError(t, err)
	state.CurrentStep = int(StepConfiguracao)
	require.NoError(t, sessions.SaveState(ctx, state, time.Hour))

	// light submit (subdomain only) gets immediate duplicate feedback
	_, fieldErrs, err := svc.SubmitStep(ctx, key, "save_draft", map[string]interface{}{
		"subdominio": "ACME",
	})
	require.NoError(t, err)
	require.Len(t, fieldErrs, 1)
	assert.Equal(t, "subdominio", fieldErrs[0].Field)

	// full submit defers the uniqueness check to finish
	_, fieldErrs, err = svc.SubmitStep(ctx, key, "save_draft", map[string]interface{}{
		"subdominio": "ACME",
		"plano":      "pro",
	})
	require.NoError(t, err)
	assert.Empty(t, fieldErrs)
}

// seedFinishableSession walks a session through steps 1 and 5 the way a
// browser would, leaving it ready for finish
func seedFinishableSession(t *testing.T, svc *WizardService, subdominio string, extra map[string]map[string]interface{}) string {
	t.Helper()
	ctx := context.Background()

	view, err := svc.StartSession(ctx, nil)
	require.NoError(t, err)
	key := view.SessionKey

	_, fieldErrs, err := svc.SubmitStep(ctx, key, "advance", validPJPayload())
	require.NoError(t, err)
	require.Empty(t, fieldErrs)

	state, err := svc.sessions.GetState(ctx, key)
	require.NoError(t, err)
	state.StepData[StepConfiguracao.SessionKey()] = map[string]interface{}{
		"subdominio": subdominio,
		"status":     models.EmpresaStatusAtiva,
	}
	for stepKey, data := range extra {
		state.StepData[stepKey] = data
	}
	require.NoError(t, svc.sessions.SaveState(ctx, state, time.Hour))
	return key
}

func TestFinishSuccessEndToEnd(t *testing.T) {
	svc, sessions, store, metricsStore, _ := newTestWizard(t)
	ctx := context.Background()

	key := seedFinishableSession(t, svc, "acme", nil)

	result, err := svc.Finish(ctx, key, "abc123def456")
	require.NoError(t, err)
	require.True(t, result.Succeeded())
	assert.Equal(t, "acme", result.Subdominio)
	assert.Equal(t, "/empresas", result.RedirectTo)

	empresa, err := store.GetBySubdomain(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, models.TipoPessoaJuridica, empresa.TipoPessoa)
	assert.Equal(t, "Acme Ltda", empresa.RazaoSocial)

	snap := metricsStore.Snapshot()
	counters := snap["counters"].(map[string]int64)
	assert.Equal(t, int64(1), counters[metrics.CounterFinishSuccess])
	assert.Equal(t, "abc123def456", snap["last_finish_correlation_id"])
	assert.Equal(t, int64(1), sessions.counters[metrics.CounterFinishSuccess])

	// session destroyed on success
	state, err := sessions.GetState(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestFinishDuplicateSubdomain(t *testing.T) {
	svc, sessions, store, metricsStore, _ := newTestWizard(t)
	ctx := context.Background()

	taken := uuid.New()
	store.data.empresas[taken] = models.Empresa{ID: taken, Subdominio: "acme", RazaoSocial: "Other"}

	key := seedFinishableSession(t, svc, "ACME", nil)

	result, err := svc.Finish(ctx, key, "dup123dup456")
	require.NoError(t, err)
	assert.Equal(t, FinishOutcomeDuplicate, result.Outcome)
	assert.Equal(t, int(StepConfiguracao), result.ReturnStep)

	// no tenant created or modified
	assert.Len(t, store.data.empresas, 1)
	assert.Equal(t, "Other", store.data.empresas[taken].RazaoSocial)

	counters := metricsStore.Snapshot()["counters"].(map[string]int64)
	assert.Equal(t, int64(1), counters[metrics.CounterFinishDuplicate])
	assert.Equal(t, int64(0), counters[metrics.CounterFinishSuccess])

	// session preserved, user routed back to configuration
	state, err := sessions.GetState(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, int(StepConfiguracao), state.CurrentStep)
}

func TestFinishInvalidWithoutTipoPessoa(t *testing.T) {
	svc, _, store, metricsStore, _ := newTestWizard(t)
	ctx := context.Background()

	view, err := svc.StartSession(ctx, nil)
	require.NoError(t, err)

	result, err := svc.Finish(ctx, view.SessionKey, "inv123inv456")
	require.NoError(t, err)
	assert.Equal(t, FinishOutcomeInvalid, result.Outcome)
	assert.Empty(t, store.data.empresas)

	counters := metricsStore.Snapshot()["counters"].(map[string]int64)
	assert.Equal(t, int64(0), counters[metrics.CounterFinishException])
}

func TestFinishAtomicityOnAdminFailure(t *testing.T) {
	svc, _, store, metricsStore, _ := newTestWizard(t)
	ctx := context.Background()
	store.failBulkCreate = true

	key := seedFinishableSession(t, svc, "acme", map[string]map[string]interface{}{
		StepEndereco.SessionKey(): {
			"logradouro": "Rua A", "numero": "10", "bairro": "Centro",
			"cidade": "São Paulo", "uf": "SP", "cep": "01000-000",
		},
		StepAdmins.SessionKey(): {
			"admins_json": `[{"email":"admin@acme.com","senha":"Secret123","confirm_senha":"Secret123"}]`,
		},
	})

	result, err := svc.Finish(ctx, key, "atom12atom34")
	require.NoError(t, err)
	assert.Equal(t, FinishOutcomeException, result.Outcome)

	// nothing from the failed attempt persisted
	assert.Empty(t, store.data.empresas)
	assert.Empty(t, store.data.usuarios)
	for _, list := range store.data.enderecos {
		assert.Empty(t, list)
	}

	counters := metricsStore.Snapshot()["counters"].(map[string]int64)
	assert.Equal(t, int64(1), counters[metrics.CounterFinishException])
}

func TestFinishExceptionPreservesSessionByDefault(t *testing.T) {
	svc, sessions, store, _, _ := newTestWizard(t)
	ctx := context.Background()
	store.failBulkCreate = true

	key := seedFinishableSession(t, svc, "acme", map[string]map[string]interface{}{
		StepAdmins.SessionKey(): {
			"admins_json": `[{"email":"admin@acme.com","senha":"Secret123","confirm_senha":"Secret123"}]`,
		},
	})

	result, err := svc.Finish(ctx, key, "keep12keep34")
	require.NoError(t, err)
	assert.Equal(t, FinishOutcomeException, result.Outcome)

	state, err := sessions.GetState(ctx, key)
	require.NoError(t, err)
	assert.NotNil(t, state)
}

func TestFinishRetryAfterExceptionUpdatesNotDuplicates(t *testing.T) {
	svc, _, store, _, _ := newTestWizard(t)
	ctx := context.Background()

	key := seedFinishableSession(t, svc, "acme", map[string]map[string]interface{}{
		StepAdmins.SessionKey(): {
			"admins_json": `[{"email":"admin@acme.com","senha":"Secret123","confirm_senha":"Secret123"}]`,
		},
	})

	// first attempt fails after everything was staged
	store.failBulkCreate = true
	result, err := svc.Finish(ctx, key, "try111try111")
	require.NoError(t, err)
	require.Equal(t, FinishOutcomeException, result.Outcome)

	// retry with the preserved session succeeds and creates exactly one user
	store.failBulkCreate = false
	result, err = svc.Finish(ctx, key, "try222try222")
	require.NoError(t, err)
	require.True(t, result.Succeeded())
	assert.Len(t, store.data.usuarios, 1)
	assert.Len(t, store.data.empresas, 1)
}

func TestAdminPasswordResolutionThroughFinish(t *testing.T) {
	svc, _, store, _, mailer := newTestWizard(t)
	ctx := context.Background()

	key := seedFinishableSession(t, svc, "acme", map[string]map[string]interface{}{
		StepAdmins.SessionKey(): {
			"admins_json":         `[{"email":"a@acme.com"},{"email":"b@acme.com"}]`,
			"bulk_admin_password": "Xyz12345",
		},
	})

	result, err := svc.Finish(ctx, key, "pwd123pwd456")
	require.NoError(t, err)
	require.True(t, result.Succeeded())

	require.Len(t, store.data.usuarios, 2)
	for _, usuario := range store.data.usuarios {
		require.NotEmpty(t, usuario.SenhaHash)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(usuario.SenhaHash), []byte("Xyz12345")))
	}

	// welcome batch sent once, after commit
	require.Len(t, mailer.batches, 1)
	assert.Len(t, mailer.batches[0], 2)
}

func TestAdminAutoGeneratedPasswordsDistinct(t *testing.T) {
	svc, _, store, _, _ := newTestWizard(t)
	ctx := context.Background()

	key := seedFinishableSession(t, svc, "acme", map[string]map[string]interface{}{
		StepAdmins.SessionKey(): {
			"admins_json":      `[{"email":"a@acme.com"},{"email":"b@acme.com"}]`,
			"gerar_senha_auto": true,
		},
	})

	result, err := svc.Finish(ctx, key, "gen123gen456")
	require.NoError(t, err)
	require.True(t, result.Succeeded())

	hashes := make([]string, 0, 2)
	for _, usuario := range store.data.usuarios {
		require.NotEmpty(t, usuario.SenhaHash)
		hashes = append(hashes, usuario.SenhaHash)
	}
	require.Len(t, hashes, 2)
	assert.NotEqual(t, hashes[0], hashes[1])
}

func TestPortalClienteForcedOffWithoutModule(t *testing.T) {
	svc, _, store, _, _ := newTestWizard(t)
	ctx := context.Background()

	key := seedFinishableSession(t, svc, "acme", map[string]map[string]interface{}{
		StepConfiguracao.SessionKey(): {
			"subdominio":          "acme",
			"status":              models.EmpresaStatusAtiva,
			"portal_ativo":        true,
			"modulos_habilitados": []interface{}{"clientes", "agenda"},
		},
	})

	result, err := svc.Finish(ctx, key, "pcl123pcl456")
	require.NoError(t, err)
	require.True(t, result.Succeeded())
	require.Len(t, result.Warnings, 1)

	empresa, err := store.GetBySubdomain(ctx, "acme")
	require.NoError(t, err)
	assert.False(t, empresa.PortalAtivo)
}

func TestConsolidationOfCollections(t *testing.T) {
	svc, _, store, _, _ := newTestWizard(t)
	ctx := context.Background()

	key := seedFinishableSession(t, svc, "acme", map[string]map[string]interface{}{
		StepEndereco.SessionKey(): {
			"logradouro": "Rua A", "numero": "10", "bairro": "Centro",
			"cidade": "São Paulo", "uf": "SP", "cep": "01000-000",
			"enderecos_adicionais_json": `[
				{"logradouro":"Rua B","numero":"20","bairro":"Sul","cidade":"Campinas","uf":"sp","cep":"13000-000","tipo":"cob"},
				{"logradouro":"Rua C","numero":"30","bairro":"Norte","cidade":"Santos","uf":"SP"}
			]`,
		},
		StepContato.SessionKey(): {
			"email_principal": "contato@acme.com",
			"contatos_json":   `[{"nome":"João","email":"joao@acme.com"},{"telefone":"11999990000"}]`,
			"redes_sociais_json": `[
				{"nome":"instagram","link":"instagram.com/acme"},
				{"nome":"instagram","link":"instagram.com/acme_oficial"}
			]`,
		},
	})

	result, err := svc.Finish(ctx, key, "col123col456")
	require.NoError(t, err)
	require.True(t, result.Succeeded())

	empresa, err := store.GetBySubdomain(ctx, "acme")
	require.NoError(t, err)

	enderecos := store.data.enderecos[empresa.ID]
	// principal + one valid additional; the incomplete Rua C row is skipped
	require.Len(t, enderecos, 2)
	assert.Equal(t, models.EnderecoTipoPrincipal, enderecos[0].Tipo)
	assert.Equal(t, models.EnderecoTipoCobranca, enderecos[1].Tipo)

	assert.Len(t, store.data.contatos[empresa.ID], 2)
	assert.Equal(t, "contato@acme.com", empresa.EmailPrincipal)

	// last-wins on duplicate social names, scheme auto-prefixed
	assert.Equal(t, "https://instagram.com/acme_oficial", empresa.RedesSociais["instagram"])
}

func TestCancelDestroysSession(t *testing.T) {
	svc, sessions, _, _, _ := newTestWizard(t)
	ctx := context.Background()

	view, err := svc.StartSession(ctx, nil)
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, view.SessionKey))

	state, err := sessions.GetState(ctx, view.SessionKey)
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestHeartbeatKeepsSessionAttended(t *testing.T) {
	svc, sessions, _, _, _ := newTestWizard(t)
	ctx := context.Background()

	view, err := svc.StartSession(ctx, nil)
	require.NoError(t, err)

	require.NoError(t, svc.Heartbeat(ctx, view.SessionKey))
	assert.Equal(t, 1, sessions.heartbeats)

	err = svc.Heartbeat(ctx, "does-not-exist")
	require.Error(t, err)
	_, ok := IsSessionError(err)
	assert.True(t, ok)
}

func TestFinishMissingSessionReturnsSessionError(t *testing.T) {
	svc, _, _, _, _ := newTestWizard(t)

	_, err := svc.Finish(context.Background(), "does-not-exist", "cid123cid456")
	require.Error(t, err)
	_, ok := IsSessionError(err)
	assert.True(t, ok)
}

func TestMailerFailureDoesNotFailFinish(t *testing.T) {
	svc, _, _, metricsStore, mailer := newTestWizard(t)
	ctx := context.Background()
	mailer.fail = true

	key := seedFinishableSession(t, svc, "acme", map[string]map[string]interface{}{
		StepAdmins.SessionKey(): {
			"admins_json":         `[{"email":"a@acme.com"}]`,
			"bulk_admin_password": "Xyz12345",
		},
	})

	result, err := svc.Finish(ctx, key, "mail12mail34")
	require.NoError(t, err)
	assert.True(t, result.Succeeded())

	counters := metricsStore.Snapshot()["counters"].(map[string]int64)
	assert.Equal(t, int64(1), counters[metrics.CounterFinishSuccess])
}
