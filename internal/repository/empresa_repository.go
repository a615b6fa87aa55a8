package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"empresa-service/internal/models"
)

// EmpresaStore is the persistence surface the wizard controller depends on.
// The GORM-backed EmpresaRepository implements it; service tests substitute
// mocks.
type EmpresaStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Empresa, error)
	GetBySubdomain(ctx context.Context, subdominio string) (*models.Empresa, error)
	SubdomainExists(ctx context.Context, subdominio string, excludeID *uuid.UUID) (bool, error)
	WithTransaction(ctx context.Context, fn func(tx EmpresaTx) error) error
}

// EmpresaTx is the write surface available inside a consolidation
// transaction. Every write of one finish attempt goes through a single
// EmpresaTx so a failure rolls back all of them.
type EmpresaTx interface {
	SaveEmpresa(ctx context.Context, empresa *models.Empresa) error
	UpsertEnderecoPrincipal(ctx context.Context, endereco *models.EmpresaEndereco) error
	ReplaceEnderecosAdicionais(ctx context.Context, empresaID uuid.UUID, enderecos []models.EmpresaEndereco) error
	ReplaceContatos(ctx context.Context, empresaID uuid.UUID, contatos []models.EmpresaContato) error
	FindUsuariosByEmails(ctx context.Context, emails []string) ([]models.Usuario, error)
	BulkCreateUsuarios(ctx context.Context, usuarios []models.Usuario) error
	SaveUsuario(ctx context.Context, usuario *models.Usuario) error
	UpsertEmpresaUsuario(ctx context.Context, assoc *models.EmpresaUsuario) error
}

// EmpresaRepository handles tenant persistence
type EmpresaRepository struct {
	db *gorm.DB
}

// NewEmpresaRepository creates a new tenant repository
func NewEmpresaRepository(db *gorm.DB) *EmpresaRepository {
	return &EmpresaRepository{db: db}
}

// GetByID retrieves a tenant with its addresses and contacts
func (r *EmpresaRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Empresa, error) {
	var empresa models.Empresa
	err := r.db.WithContext(ctx).
		Preload("Enderecos").
		Preload("Contatos").
		First(&empresa, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("empresa not found")
		}
		return nil, fmt.Errorf("failed to get empresa: %w", err)
	}
	return &empresa, nil
}

// GetBySubdomain retrieves a tenant by subdomain (case-insensitive)
func (r *EmpresaRepository) GetBySubdomain(ctx context.Context, subdominio string) (*models.Empresa, error) {
	var empresa models.Empresa
	err := r.db.WithContext(ctx).
		Where("LOWER(subdominio) = ?", strings.ToLower(subdominio)).
		First(&empresa).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("empresa not found")
		}
		return nil, fmt.Errorf("failed to get empresa by subdomain: %w", err)
	}
	return &empresa, nil
}

// SubdomainExists checks case-insensitive subdomain uniqueness, optionally
// excluding the tenant being edited
func (r *EmpresaRepository) SubdomainExists(ctx context.Context, subdominio string, excludeID *uuid.UUID) (bool, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.Empresa{}).
		Where("LOWER(subdominio) = ?", strings.ToLower(subdominio))
	if excludeID != nil {
		query = query.Where("id != ?", *excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check subdomain: %w", err)
	}
	return count > 0, nil
}

// WithTransaction runs fn inside a single database transaction. Any error or
// panic from fn rolls back every write made through the transaction handle.
func (r *EmpresaRepository) WithTransaction(ctx context.Context, fn func(tx EmpresaTx) error) error {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	defer func() {
		if rv := recover(); rv != nil {
			tx.Rollback()
			panic(rv)
		}
	}()

	if err := fn(&empresaTx{db: tx}); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type empresaTx struct {
	db *gorm.DB
}

func (t *empresaTx) SaveEmpresa(ctx context.Context, empresa *models.Empresa) error {
	if err := t.db.WithContext(ctx).Save(empresa).Error; err != nil {
		return fmt.Errorf("failed to save empresa: %w", err)
	}
	return nil
}

// UpsertEnderecoPrincipal updates the PRINCIPAL address in place or creates
// it, keyed by (empresa, tipo)
func (t *empresaTx) UpsertEnderecoPrincipal(ctx context.Context, endereco *models.EmpresaEndereco) error {
	var existing models.EmpresaEndereco
	err := t.db.WithContext(ctx).
		Where("empresa_id = ? AND tipo = ?", endereco.EmpresaID, models.EnderecoTipoPrincipal).
		First(&existing).Error

	if err == gorm.ErrRecordNotFound {
		endereco.Tipo = models.EnderecoTipoPrincipal
		endereco.Principal = true
		if err := t.db.WithContext(ctx).Create(endereco).Error; err != nil {
			return fmt.Errorf("failed to create principal address: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up principal address: %w", err)
	}

	endereco.ID = existing.ID
	endereco.Tipo = models.EnderecoTipoPrincipal
	endereco.Principal = true
	endereco.CreatedAt = existing.CreatedAt
	if err := t.db.WithContext(ctx).Save(endereco).Error; err != nil {
		return fmt.Errorf("failed to update principal address: %w", err)
	}
	return nil
}

// ReplaceEnderecosAdicionais swaps the full non-principal address set
func (t *empresaTx) ReplaceEnderecosAdicionais(ctx context.Context, empresaID uuid.UUID, enderecos []models.EmpresaEndereco) error {
	err := t.db.WithContext(ctx).
		Where("empresa_id = ? AND tipo != ?", empresaID, models.EnderecoTipoPrincipal).
		Delete(&models.EmpresaEndereco{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete additional addresses: %w", err)
	}
	if len(enderecos) == 0 {
		return nil
	}
	if err := t.db.WithContext(ctx).Create(&enderecos).Error; err != nil {
		return fmt.Errorf("failed to create additional addresses: %w", err)
	}
	return nil
}

// ReplaceContatos swaps the full contact collection
func (t *empresaTx) ReplaceContatos(ctx context.Context, empresaID uuid.UUID, contatos []models.EmpresaContato) error {
	err := t.db.WithContext(ctx).
		Where("empresa_id = ?", empresaID).
		Delete(&models.EmpresaContato{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete contacts: %w", err)
	}
	if len(contatos) == 0 {
		return nil
	}
	if err := t.db.WithContext(ctx).Create(&contatos).Error; err != nil {
		return fmt.Errorf("failed to create contacts: %w", err)
	}
	return nil
}

// FindUsuariosByEmails fetches users matching the normalized emails
func (t *empresaTx) FindUsuariosByEmails(ctx context.Context, emails []string) ([]models.Usuario, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	lowered := make([]string, len(emails))
	for i, e := range emails {
		lowered[i] = strings.ToLower(e)
	}

	var usuarios []models.Usuario
	err := t.db.WithContext(ctx).
		Where("LOWER(email) IN ?", lowered).
		Find(&usuarios).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find users by email: %w", err)
	}
	return usuarios, nil
}

// BulkCreateUsuarios inserts users ignoring email conflicts. Callers must
// re-fetch by email afterwards: conflict-ignore inserts do not reliably echo
// back identifiers on every backend.
func (t *empresaTx) BulkCreateUsuarios(ctx context.Context, usuarios []models.Usuario) error {
	if len(usuarios) == 0 {
		return nil
	}
	err := t.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "email"}}, DoNothing: true}).
		Create(&usuarios).Error
	if err != nil {
		return fmt.Errorf("failed to bulk create users: %w", err)
	}
	return nil
}

func (t *empresaTx) SaveUsuario(ctx context.Context, usuario *models.Usuario) error {
	if err := t.db.WithContext(ctx).Save(usuario).Error; err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// UpsertEmpresaUsuario creates or updates the tenant-user association
func (t *empresaTx) UpsertEmpresaUsuario(ctx context.Context, assoc *models.EmpresaUsuario) error {
	var existing models.EmpresaUsuario
	err := t.db.WithContext(ctx).
		Where("empresa_id = ? AND usuario_id = ?", assoc.EmpresaID, assoc.UsuarioID).
		First(&existing).Error

	if err == gorm.ErrRecordNotFound {
		if err := t.db.WithContext(ctx).Create(assoc).Error; err != nil {
			return fmt.Errorf("failed to create empresa-usuario association: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up empresa-usuario association: %w", err)
	}

	assoc.ID = existing.ID
	assoc.CreatedAt = existing.CreatedAt
	if err := t.db.WithContext(ctx).Save(assoc).Error; err != nil {
		return fmt.Errorf("failed to update empresa-usuario association: %w", err)
	}
	return nil
}
