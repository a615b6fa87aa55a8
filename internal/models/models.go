package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JSONB represents a JSONB field in PostgreSQL
type JSONB map[string]interface{}

// Value returns the JSON-encoded value for database storage
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan reads a JSON-encoded value from the database
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// TipoPessoa constants: legal entity vs natural person identification
const (
	TipoPessoaJuridica = "PJ"
	TipoPessoaFisica   = "PF"
)

// Empresa status constants
const (
	EmpresaStatusAtiva    = "ATIVA"
	EmpresaStatusInativa  = "INATIVA"
	EmpresaStatusSuspensa = "SUSPENSA"
)

// Address type constants. Every empresa has exactly one PRINCIPAL address;
// the remaining types classify additional addresses.
const (
	EnderecoTipoPrincipal = "PRINCIPAL"
	EnderecoTipoCobranca  = "COB"
	EnderecoTipoEntrega   = "ENT"
	EnderecoTipoFiscal    = "FISCAL"
	EnderecoTipoOutro     = "OUTRO"
)

// Empresa represents a tenant company in the multi-tenant system.
// Created or updated only through the onboarding wizard's consolidation step.
type Empresa struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	TipoPessoa string    `json:"tipo_pessoa" gorm:"size:2;not null" validate:"required,oneof=PJ PF"`

	// PJ identification
	RazaoSocial  string `json:"razao_social" gorm:"size:255"`
	NomeFantasia string `json:"nome_fantasia" gorm:"size:255"`
	CNPJ         string `json:"cnpj" gorm:"size:18;index"`

	// PF identification
	Nome string `json:"nome" gorm:"size:255"`
	CPF  string `json:"cpf" gorm:"size:14;index"`

	// Routing: unique per tenant, case-insensitive, stored lowercase
	Subdominio string `json:"subdominio" gorm:"unique;not null;size:50" validate:"required,min=3,max=50"`
	Status     string `json:"status" gorm:"size:20;default:'ATIVA';index" validate:"oneof=ATIVA INATIVA SUSPENSA"`

	// Configuration
	ModulosHabilitados JSONB  `json:"modulos_habilitados" gorm:"type:jsonb;default:'{}'"`
	Plano              string `json:"plano" gorm:"size:50;default:'basico'"`
	PortalAtivo        bool   `json:"portal_ativo" gorm:"default:false"`
	MaxUsuarios        int    `json:"max_usuarios" gorm:"default:10"`
	MaxArmazenamentoMB int    `json:"max_armazenamento_mb" gorm:"default:1024"`

	// Scalar contact fields (the multi-contact collection lives in EmpresaContato)
	EmailPrincipal    string `json:"email_principal" gorm:"size:255"`
	TelefonePrincipal string `json:"telefone_principal" gorm:"size:30"`
	Website           string `json:"website" gorm:"size:255"`
	RedesSociais      JSONB  `json:"redes_sociais" gorm:"type:jsonb;default:'{}'"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Enderecos []EmpresaEndereco `json:"enderecos,omitempty" gorm:"foreignKey:EmpresaID"`
	Contatos  []EmpresaContato  `json:"contatos,omitempty" gorm:"foreignKey:EmpresaID"`
	Usuarios  []EmpresaUsuario  `json:"usuarios,omitempty" gorm:"foreignKey:EmpresaID"`
}

// TableName specifies the table name for Empresa
func (Empresa) TableName() string {
	return "empresas"
}

func (e *Empresa) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// DisplayName returns the human-facing name regardless of person type
func (e *Empresa) DisplayName() string {
	if e.TipoPessoa == TipoPessoaFisica {
		return e.Nome
	}
	if e.NomeFantasia != "" {
		return e.NomeFantasia
	}
	return e.RazaoSocial
}

// EmpresaEndereco represents an address attached to a tenant
type EmpresaEndereco struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	EmpresaID uuid.UUID `json:"empresa_id" gorm:"type:uuid;not null;index:idx_endereco_empresa_tipo"`
	Tipo      string    `json:"tipo" gorm:"size:10;not null;default:'OUTRO';index:idx_endereco_empresa_tipo" validate:"oneof=PRINCIPAL COB ENT FISCAL OUTRO"`

	Logradouro     string `json:"logradouro" gorm:"size:255;not null" validate:"required"`
	Numero         string `json:"numero" gorm:"size:20;not null" validate:"required"`
	Complemento    string `json:"complemento" gorm:"size:100"`
	Bairro         string `json:"bairro" gorm:"size:100;not null" validate:"required"`
	Cidade         string `json:"cidade" gorm:"size:100;not null" validate:"required"`
	UF             string `json:"uf" gorm:"size:2;not null" validate:"required"`
	CEP            string `json:"cep" gorm:"size:10;not null" validate:"required"`
	Pais           string `json:"pais" gorm:"size:60;default:'Brasil'"`
	PontoReferencia string `json:"ponto_referencia" gorm:"size:255"`
	Principal      bool   `json:"principal" gorm:"default:false"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for EmpresaEndereco
func (EmpresaEndereco) TableName() string {
	return "empresa_enderecos"
}

func (e *EmpresaEndereco) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// EmpresaContato represents one entry of a tenant's contact collection
type EmpresaContato struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	EmpresaID uuid.UUID `json:"empresa_id" gorm:"type:uuid;not null;index"`

	Nome       string `json:"nome" gorm:"size:150"`
	Email      string `json:"email" gorm:"size:255"`
	Telefone   string `json:"telefone" gorm:"size:30"`
	Cargo      string `json:"cargo" gorm:"size:100"`
	Observacao string `json:"observacao" gorm:"size:500"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for EmpresaContato
func (EmpresaContato) TableName() string {
	return "empresa_contatos"
}

func (c *EmpresaContato) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Usuario represents a global user account, matched by normalized email.
// One user can administrate multiple tenants via EmpresaUsuario rows.
type Usuario struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	Email    string    `json:"email" gorm:"unique;not null;index" validate:"required,email"`
	Nome     string    `json:"nome" gorm:"size:150"`
	Telefone string    `json:"telefone" gorm:"size:30"`
	Ativo    bool      `json:"ativo" gorm:"default:true"`

	// bcrypt hash, never serialized
	SenhaHash string `json:"-" gorm:"size:255;not null"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Usuario
func (Usuario) TableName() string {
	return "usuarios"
}

func (u *Usuario) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// EmpresaUsuario associates a user with a tenant, optionally as administrator
type EmpresaUsuario struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	EmpresaID uuid.UUID `json:"empresa_id" gorm:"type:uuid;not null;index:idx_empresa_usuario,unique"`
	UsuarioID uuid.UUID `json:"usuario_id" gorm:"type:uuid;not null;index:idx_empresa_usuario,unique"`

	Admin        bool   `json:"admin" gorm:"default:false"`
	Cargo        string `json:"cargo" gorm:"size:100"`
	Departamento string `json:"departamento" gorm:"size:100"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Usuario *Usuario `json:"usuario,omitempty" gorm:"foreignKey:UsuarioID"`
}

// TableName specifies the table name for EmpresaUsuario
func (EmpresaUsuario) TableName() string {
	return "empresa_usuarios"
}

func (m *EmpresaUsuario) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
