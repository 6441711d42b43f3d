package wallet

import (
	"context"
	"database/sql"
	"errors"

	"classbook/internal/db"

	"github.com/jmoiron/sqlx"
)

const walletColumns = `id, member_id, balance_cents, currency, created_at, updated_at`

type Repository interface {
	GetOrCreateWallet(ctx context.Context, memberID int) (*Wallet, error)
	AddTransaction(ctx context.Context, memberID int, amountCents int64, txType, reference string) (*Transaction, error)
	GetTransactions(ctx context.Context, memberID int, limit, offset int) ([]Transaction, error)
}

type repository struct {
	db       *sqlx.DB
	tx       db.Transactor
	currency string
}

func NewRepository(conn *sqlx.DB, currency string) Repository {
	return &repository{db: conn, tx: db.NewTxManager(conn), currency: currency}
}

func (r *repository) GetOrCreateWallet(ctx context.Context, memberID int) (*Wallet, error) {
	q := db.Conn(ctx, r.db)

	w := &Wallet{}
	err := q.GetContext(ctx, w, `SELECT `+walletColumns+` FROM wallets WHERE member_id = $1`, memberID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	if err := r.insertWallet(ctx, q, memberID, w); err != nil {
		return nil, err
	}
	return w, nil
}

func (r *repository) insertWallet(ctx context.Context, q db.Querier, memberID int, w *Wallet) error {
	return q.QueryRowxContext(ctx,
		`INSERT INTO wallets (member_id, currency)
		 VALUES ($1, $2)
		 RETURNING `+walletColumns,
		memberID, r.currency,
	).StructScan(w)
}

// AddTransaction applies a signed amount to the member's wallet under a row
// lock and appends the ledger entry. It joins the caller's transaction if any.
func (r *repository) AddTransaction(ctx context.Context, memberID int, amountCents int64, txType, reference string) (*Transaction, error) {
	var entry Transaction

	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		q := db.Conn(ctx, r.db)

		var w Wallet
		err := q.QueryRowxContext(ctx,
			`SELECT `+walletColumns+`
			 FROM wallets
			 WHERE member_id = $1
			 FOR UPDATE`,
			memberID,
		).StructScan(&w)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
			if err := r.insertWallet(ctx, q, memberID, &w); err != nil {
				return err
			}
		}

		newBalance := w.BalanceCents + amountCents
		if newBalance < 0 {
			return ErrInsufficientBalance
		}

		_, err = q.ExecContext(ctx,
			`UPDATE wallets
			 SET balance_cents = $1, updated_at = NOW()
			 WHERE id = $2`,
			newBalance, w.ID,
		)
		if err != nil {
			return err
		}

		return q.QueryRowxContext(ctx,
			`INSERT INTO wallet_transactions (wallet_id, amount_cents, type, reference, balance_after)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id, wallet_id, amount_cents, type, reference, balance_after, created_at`,
			w.ID, amountCents, txType, reference, newBalance,
		).StructScan(&entry)
	})
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

func (r *repository) GetTransactions(ctx context.Context, memberID int, limit, offset int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}

	q := db.Conn(ctx, r.db)

	var walletID int
	err := q.GetContext(ctx, &walletID, `SELECT id FROM wallets WHERE member_id = $1`, memberID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []Transaction{}, nil
		}
		return nil, err
	}

	txs := []Transaction{}
	err = q.SelectContext(ctx, &txs, `
		SELECT id, wallet_id, amount_cents, type, reference, balance_after, created_at
		FROM wallet_transactions
		WHERE wallet_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, walletID, limit, offset)
	if err != nil {
		return nil, err
	}

	return txs, nil
}
