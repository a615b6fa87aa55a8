package services

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/sirupsen/logrus"

	"empresa-service/internal/config"
)

// AdminEntry is one parsed administrator row ready for user processing
type AdminEntry struct {
	Email             string
	Nome              string
	Telefone          string
	Senha             string
	Cargo             string
	Ativo             bool
	PasswordGenerated bool
}

// AdminParser extracts and normalizes the administrator list from the Admins
// step data and resolves each row's password.
type AdminParser struct {
	cfg    config.WizardConfig
	logger *logrus.Logger
}

// NewAdminParser creates an admin payload parser
func NewAdminParser(cfg config.WizardConfig, logger *logrus.Logger) *AdminParser {
	return &AdminParser{cfg: cfg, logger: logger}
}

// Parse reads the Admins step data block. The block may be flat or nested
// under "main" (older clients). Rows come from admins_json, capped at the
// configured maximum; when no JSON array is present but the block itself
// carries an email field, the block is treated as a single admin row.
//
// Password resolution per row: the row's own password when it meets the
// minimum length, else the bulk password, else a generated one when the
// auto-generate flag is set. Rows without a usable email are dropped.
func (p *AdminParser) Parse(block map[string]interface{}) ([]AdminEntry, error) {
	data := flattenPayload(block)

	bulkPassword := getString(data, "bulk_admin_password")
	autoGenerate := boolField(data, "gerar_senha_auto")

	rows := decodeJSONList(data["admins_json"], "admins_json", p.logger)
	if len(rows) > p.cfg.MaxAdmins {
		p.logger.WithFields(logrus.Fields{
			"rows": len(rows),
			"max":  p.cfg.MaxAdmins,
		}).Warn("admin list truncated to maximum")
		rows = rows[:p.cfg.MaxAdmins]
	}

	// single-row fallback: the block itself is the admin
	if len(rows) == 0 && getString(data, "email") != "" {
		rows = []map[string]interface{}{data}
	}

	entries := make([]AdminEntry, 0, len(rows))
	for _, row := range rows {
		email := NormalizeEmail(strField(row, "email"))
		if email == "" || !ValidEmail(email) {
			p.logger.WithField("email", strField(row, "email")).Warn("skipping admin row without usable email")
			continue
		}

		entry := AdminEntry{
			Email:    email,
			Nome:     strField(row, "nome"),
			Telefone: strField(row, "telefone"),
			Cargo:    strField(row, "cargo"),
			Ativo:    true,
		}
		if _, ok := row["ativo"]; ok {
			entry.Ativo = boolField(row, "ativo")
		}

		senha := strField(row, "senha")
		switch {
		case len(senha) >= 8:
			entry.Senha = senha
		case bulkPassword != "":
			entry.Senha = bulkPassword
		case autoGenerate:
			generated, err := GeneratePassword(p.cfg.GeneratedPasswordLength)
			if err != nil {
				return nil, fmt.Errorf("failed to generate admin password: %w", err)
			}
			entry.Senha = generated
			entry.PasswordGenerated = true
		}

		entries = append(entries, entry)
	}
	return entries, nil
}

const (
	passwordUpper   = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	passwordLower   = "abcdefghijkmnpqrstuvwxyz"
	passwordDigits  = "23456789"
	passwordSymbols = "!@#$%&*"
)

// GeneratePassword produces a cryptographically random password containing at
// least one uppercase letter, one lowercase letter, one digit, and one symbol
func GeneratePassword(length int) (string, error) {
	if length < 8 {
		length = 8
	}

	all := passwordUpper + passwordLower + passwordDigits + passwordSymbols
	chars := make([]byte, 0, length)

	for _, set := range []string{passwordUpper, passwordLower, passwordDigits, passwordSymbols} {
		c, err := randomChar(set)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}
	for len(chars) < length {
		c, err := randomChar(all)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}

	// Fisher-Yates so the guaranteed classes are not always in front
	for i := len(chars) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		chars[i], chars[j.Int64()] = chars[j.Int64()], chars[i]
	}

	return string(chars), nil
}

func randomChar(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, err
	}
	return set[n.Int64()], nil
}
