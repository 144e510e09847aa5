/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package sqlstore implements mediator persistence on SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/mediator"
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	auth_pubkey     TEXT PRIMARY KEY,
	id              TEXT NOT NULL UNIQUE,
	our_signing_key TEXT NOT NULL,
	did_doc         BLOB
);
CREATE TABLE IF NOT EXISTS recipients (
	recipient_key TEXT PRIMARY KEY,
	auth_pubkey   TEXT NOT NULL REFERENCES accounts(auth_pubkey)
);
CREATE INDEX IF NOT EXISTS idx_recipients_auth ON recipients(auth_pubkey);
CREATE TABLE IF NOT EXISTS messages (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	id            TEXT NOT NULL UNIQUE,
	recipient_key TEXT NOT NULL,
	owner         TEXT NOT NULL DEFAULT '',
	data          BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages(recipient_key, seq);
`

// Store is a mediator.Persistence on a SQL database.
type Store struct {
	db *sql.DB
}

// Open opens the SQLite database at dsn and creates the schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// every connection to :memory: is a database of its own, and sqlite serializes writers anyway
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000", schema} {
		if _, err = db.Exec(stmt); err != nil {
			_ = db.Close() //nolint:errcheck

			return nil, fmt.Errorf("init sqlite: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateAccount creates the account of authPubKey.
func (s *Store) CreateAccount(ctx context.Context, authPubKey, ourSigningKey string, didDoc json.RawMessage) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO accounts (auth_pubkey, id, our_signing_key, did_doc) VALUES (?, ?, ?, ?)`,
		authPubKey, uuid.New().String(), ourSigningKey, []byte(didDoc))
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}

	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("%w: %s", mediator.ErrAccountExists, authPubKey)
	}

	return nil
}

// GetAccountID returns the id of the account of authPubKey.
func (s *Store) GetAccountID(ctx context.Context, authPubKey string) (string, error) {
	details, err := s.GetAccountDetails(ctx, authPubKey)
	if err != nil {
		return "", err
	}

	return details.ID, nil
}

// GetAccountDetails returns the account of authPubKey.
func (s *Store) GetAccountDetails(ctx context.Context, authPubKey string) (*mediator.AccountDetails, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, auth_pubkey, our_signing_key, did_doc FROM accounts WHERE auth_pubkey = ?`, authPubKey)

	details, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", mediator.ErrAccountNotFound, authPubKey)
	} else if err != nil {
		return nil, fmt.Errorf("select account: %w", err)
	}

	return details, nil
}

// ListAccounts returns every account, ordered by auth key.
func (s *Store) ListAccounts(ctx context.Context) ([]mediator.AccountDetails, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, auth_pubkey, our_signing_key, did_doc FROM accounts ORDER BY auth_pubkey`)
	if err != nil {
		return nil, fmt.Errorf("select accounts: %w", err)
	}

	defer rows.Close() //nolint:errcheck

	var accounts []mediator.AccountDetails

	for rows.Next() {
		details, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}

		accounts = append(accounts, *details)
	}

	return accounts, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row scanner) (*mediator.AccountDetails, error) {
	var (
		details mediator.AccountDetails
		doc     []byte
	)

	if err := row.Scan(&details.ID, &details.AuthPubKey, &details.OurSigningKey, &doc); err != nil {
		return nil, err
	}

	if len(doc) > 0 {
		details.DIDDoc = doc
	}

	return &details, nil
}

// AddRecipient registers key for the account of authPubKey.
func (s *Store) AddRecipient(ctx context.Context, authPubKey, key string) (bool, error) {
	var added bool

	err := s.inTx(ctx, authPubKey, func(tx *sql.Tx) error {
		owner, err := owner(ctx, tx, key)
		if err != nil {
			return err
		}

		switch owner {
		case authPubKey:
			return nil
		case "":
		default:
			return fmt.Errorf("%w: %s", mediator.ErrRecipientTaken, key)
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO recipients (recipient_key, auth_pubkey) VALUES (?, ?)`,
			key, authPubKey)
		if err != nil {
			return fmt.Errorf("insert recipient: %w", err)
		}

		added = true

		return nil
	})

	return added, err
}

// RemoveRecipient unregisters key from the account of authPubKey. Queued messages stay.
func (s *Store) RemoveRecipient(ctx context.Context, authPubKey, key string) (bool, error) {
	var removed bool

	err := s.inTx(ctx, authPubKey, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM recipients WHERE recipient_key = ? AND auth_pubkey = ?`,
			key, authPubKey)
		if err != nil {
			return fmt.Errorf("delete recipient: %w", err)
		}

		n, err := res.RowsAffected()
		removed = n > 0

		return err
	})

	return removed, err
}

// ListRecipientKeys returns the keys registered to authPubKey in lexical order.
func (s *Store) ListRecipientKeys(ctx context.Context, authPubKey string) ([]string, error) {
	if _, err := s.GetAccountDetails(ctx, authPubKey); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT recipient_key FROM recipients WHERE auth_pubkey = ? ORDER BY recipient_key`, authPubKey)
	if err != nil {
		return nil, fmt.Errorf("select recipients: %w", err)
	}

	defer rows.Close() //nolint:errcheck

	keys := []string{}

	for rows.Next() {
		var key string
		if err = rows.Scan(&key); err != nil {
			return nil, err
		}

		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// GetRecipientAccount returns the auth key of the account key is registered to.
func (s *Store) GetRecipientAccount(ctx context.Context, key string) (string, error) {
	var authPubKey string

	err := s.db.QueryRowContext(ctx, `SELECT auth_pubkey FROM recipients WHERE recipient_key = ?`, key).
		Scan(&authPubKey)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: recipient %s", mediator.ErrAccountNotFound, key)
	}

	return authPubKey, err
}

// PersistForwardMessage queues msg for recipientKey. The message is owned by the account the key is
// registered to now, if any.
func (s *Store) PersistForwardMessage(ctx context.Context, recipientKey string, msg []byte) (*mediator.Message, error) {
	id := uuid.New().String()

	_, err := s.db.ExecContext(ctx, `INSERT INTO messages (id, recipient_key, owner, data) VALUES
		(?, ?, COALESCE((SELECT auth_pubkey FROM recipients WHERE recipient_key = ?), ''), ?)`,
		id, recipientKey, recipientKey, msg)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	return &mediator.Message{ID: id, RecipientKey: recipientKey, Data: msg}, nil
}

// RetrievePendingMessageCount counts the messages queued for authPubKey, or for one of its keys.
func (s *Store) RetrievePendingMessageCount(ctx context.Context, authPubKey string, recipientKey *string) (int, error) {
	if _, err := s.GetAccountDetails(ctx, authPubKey); err != nil {
		return 0, err
	}

	query, args := pendingQuery("COUNT(*)", authPubKey, recipientKey)

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}

	return count, nil
}

// RetrievePendingMessages returns up to limit queued messages, oldest first. A limit below one returns
// every message.
func (s *Store) RetrievePendingMessages(ctx context.Context, authPubKey string, limit int,
	recipientKey *string) ([]mediator.Message, error) {
	if _, err := s.GetAccountDetails(ctx, authPubKey); err != nil {
		return nil, err
	}

	query, args := pendingQuery("m.id, m.recipient_key, m.data", authPubKey, recipientKey)
	query += " ORDER BY m.seq"

	if limit > 0 {
		query += " LIMIT ?"

		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}

	defer rows.Close() //nolint:errcheck

	msgs := []mediator.Message{}

	for rows.Next() {
		var m mediator.Message
		if err = rows.Scan(&m.ID, &m.RecipientKey, &m.Data); err != nil {
			return nil, err
		}

		msgs = append(msgs, m)
	}

	return msgs, rows.Err()
}

func pendingQuery(columns, authPubKey string, recipientKey *string) (string, []interface{}) {
	var sb strings.Builder

	sb.WriteString("SELECT " + columns + " FROM messages m JOIN recipients r ON r.recipient_key = m.recipient_key")
	sb.WriteString(" WHERE r.auth_pubkey = ? AND (m.owner = '' OR m.owner = r.auth_pubkey)")

	args := []interface{}{authPubKey}

	if recipientKey != nil {
		sb.WriteString(" AND m.recipient_key = ?")

		args = append(args, *recipientKey)
	}

	return sb.String(), args
}

// DeleteMessages removes the messages with the given ids that belong to authPubKey. Unknown ids are
// ignored.
func (s *Store) DeleteMessages(ctx context.Context, authPubKey string, ids []string) error {
	return s.inTx(ctx, authPubKey, func(tx *sql.Tx) error {
		for _, id := range ids {
			_, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = ? AND (owner = '' OR owner = ?)
				AND recipient_key IN (SELECT recipient_key FROM recipients WHERE auth_pubkey = ?)`,
				id, authPubKey, authPubKey)
			if err != nil {
				return fmt.Errorf("delete message %s: %w", id, err)
			}
		}

		return nil
	})
}

// inTx runs fn in a transaction after checking that authPubKey has an account.
func (s *Store) inTx(ctx context.Context, authPubKey string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	var exists int

	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE auth_pubkey = ?`, authPubKey).Scan(&exists)
	if err == nil && exists == 0 {
		err = fmt.Errorf("%w: %s", mediator.ErrAccountNotFound, authPubKey)
	}

	if err == nil {
		err = fn(tx)
	}

	if err != nil {
		_ = tx.Rollback() //nolint:errcheck

		return err
	}

	return tx.Commit()
}

func owner(ctx context.Context, tx *sql.Tx, key string) (string, error) {
	var authPubKey string

	err := tx.QueryRowContext(ctx, `SELECT auth_pubkey FROM recipients WHERE recipient_key = ?`, key).
		Scan(&authPubKey)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}

	return authPubKey, err
}
