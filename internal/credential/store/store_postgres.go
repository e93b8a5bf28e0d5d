package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"attestor/internal/credential/models"
	id "attestor/pkg/domain"
)

// PostgresStore persists credential records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed credential store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

const recordColumns = `id, fingerprint, issuer_did, holder_did, payload, sealed,
	claim_text, skills, file_url, ledger_receipt, status, visible, off_platform, created_at`

func (s *PostgresStore) Insert(ctx context.Context, record models.Record) error {
	skillsBytes, err := json.Marshal(record.Skills)
	if err != nil {
		return fmt.Errorf("marshal record skills: %w", err)
	}
	query := `
		INSERT INTO credentials (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = s.db.ExecContext(ctx, query,
		record.ID.String(),
		record.Fingerprint.String(),
		record.IssuerDID.String(),
		record.HolderDID.String(),
		record.Payload,
		record.Sealed,
		record.ClaimText,
		skillsBytes,
		record.FileURL,
		record.LedgerReceipt,
		string(record.Status),
		record.Visible,
		record.OffPlatform,
		record.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateFingerprint
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByFingerprint(ctx context.Context, fingerprint id.Fingerprint) (models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM credentials WHERE fingerprint = $1`
	record, err := scanRecord(s.db.QueryRowContext(ctx, query, fingerprint.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Record{}, ErrNotFound
		}
		return models.Record{}, fmt.Errorf("find credential by fingerprint: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) ListByIssuer(ctx context.Context, issuer id.DID) ([]models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM credentials WHERE issuer_did = $1 ORDER BY created_at DESC`
	return s.list(ctx, query, issuer.String())
}

func (s *PostgresStore) ListByHolder(ctx context.Context, holder id.DID) ([]models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM credentials WHERE holder_did = $1 ORDER BY created_at DESC`
	return s.list(ctx, query, holder.String())
}

func (s *PostgresStore) list(ctx context.Context, query string, arg any) ([]models.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var out []models.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) MarkRevoked(ctx context.Context, fingerprint id.Fingerprint) error {
	query := `UPDATE credentials SET status = $1 WHERE fingerprint = $2`
	result, err := s.db.ExecContext(ctx, query, string(models.StatusRevoked), fingerprint.String())
	if err != nil {
		return fmt.Errorf("mark credential revoked: %w", err)
	}
	return requireRowAffected(result)
}

func (s *PostgresStore) SetVisibility(ctx context.Context, fingerprint id.Fingerprint, visible bool) error {
	query := `UPDATE credentials SET visible = $1 WHERE fingerprint = $2`
	result, err := s.db.ExecContext(ctx, query, visible, fingerprint.String())
	if err != nil {
		return fmt.Errorf("set credential visibility: %w", err)
	}
	return requireRowAffected(result)
}

func requireRowAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type recordRow interface {
	Scan(dest ...any) error
}

func scanRecord(row recordRow) (models.Record, error) {
	var record models.Record
	var recordID, fingerprint, issuerDID, holderDID, status string
	var skillsBytes []byte
	var receipt sql.NullString

	err := row.Scan(
		&recordID,
		&fingerprint,
		&issuerDID,
		&holderDID,
		&record.Payload,
		&record.Sealed,
		&record.ClaimText,
		&skillsBytes,
		&record.FileURL,
		&receipt,
		&status,
		&record.Visible,
		&record.OffPlatform,
		&record.CreatedAt,
	)
	if err != nil {
		return models.Record{}, err
	}

	parsedID, err := id.ParseRecordID(recordID)
	if err != nil {
		return models.Record{}, fmt.Errorf("parse record id: %w", err)
	}
	record.ID = parsedID

	// CHAR(64) columns come back space-padded from some drivers.
	parsedFingerprint, err := id.ParseFingerprint(strings.TrimSpace(fingerprint))
	if err != nil {
		return models.Record{}, fmt.Errorf("parse record fingerprint: %w", err)
	}
	record.Fingerprint = parsedFingerprint

	// Off-platform stubs created by reconciliation carry no party
	// identities; their DID columns are empty, not invalid.
	if issuerDID != "" {
		if record.IssuerDID, err = id.ParseDID(issuerDID); err != nil {
			return models.Record{}, fmt.Errorf("parse issuer did: %w", err)
		}
	}
	if holderDID != "" {
		if record.HolderDID, err = id.ParseDID(holderDID); err != nil {
			return models.Record{}, fmt.Errorf("parse holder did: %w", err)
		}
	}

	if len(skillsBytes) > 0 {
		if err := json.Unmarshal(skillsBytes, &record.Skills); err != nil {
			return models.Record{}, fmt.Errorf("unmarshal record skills: %w", err)
		}
	}
	if record.Skills == nil {
		record.Skills = []string{}
	}

	if receipt.Valid {
		record.LedgerReceipt = &receipt.String
	}

	parsedStatus, err := models.ParseStatus(status)
	if err != nil {
		return models.Record{}, fmt.Errorf("parse record status: %w", err)
	}
	record.Status = parsedStatus

	record.CreatedAt = record.CreatedAt.UTC()
	return record, nil
}

// isUniqueViolation reports whether the error is Postgres error 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
