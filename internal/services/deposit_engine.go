package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ffgcu/backend/internal/config"
	"github.com/ffgcu/backend/internal/mailer"
	"github.com/ffgcu/backend/internal/models"
)

var (
	// ErrAccountNotFound is returned when no account row exists for the id.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidDepositState is returned when the persisted schedule data is
	// unusable (missing timestamps, reversed window, unknown status). The
	// engine makes no transition in that case.
	ErrInvalidDepositState = errors.New("invalid deposit state data")

	// ErrLedgerIntegrity is returned when the account reached POSTED but no
	// PENDING ledger entry was found to complete.
	ErrLedgerIntegrity = errors.New("no pending ledger entry for account")
)

// DepositTransition records a single applied state change.
type DepositTransition struct {
	From models.DepositStatus `json:"from"`
	To   models.DepositStatus `json:"to"`
}

// DepositEngine advances member deposits through their time-gated lifecycle:
// SCHEDULED -> PENDING once pending_at elapses, PENDING -> POSTED once
// available_at elapses. It is invoked lazily on account reads; there is no
// background scheduler. Each call applies every transition whose threshold
// has passed, so a long-dormant account lands on POSTED in one pass.
type DepositEngine struct {
	db     *sql.DB
	mailer mailer.Mailer
	config *config.DepositConfig
	now    func() time.Time
}

func NewDepositEngine(db *sql.DB, m mailer.Mailer) *DepositEngine {
	return &DepositEngine{
		db:     db,
		mailer: m,
		config: config.LoadDepositConfig(),
		now:    time.Now,
	}
}

// depositDecision is the outcome of evaluating an account against the clock.
type depositDecision struct {
	status         models.DepositStatus
	notified       bool
	transitions    []DepositTransition
	sendNotice     bool
	completeLedger bool
}

// evaluateDeposit is the pure transition function. It consults nothing but
// the account fields and now. Status never moves backward; if now is before
// pending_at nothing happens regardless of clock skew.
func evaluateDeposit(acct *models.Account, now time.Time) (depositDecision, error) {
	if !acct.DepositStatus.Valid() || acct.PendingAt.IsZero() || acct.AvailableAt.IsZero() ||
		!acct.PendingAt.Before(acct.AvailableAt) {
		return depositDecision{}, ErrInvalidDepositState
	}

	d := depositDecision{status: acct.DepositStatus, notified: acct.Notified}

	if d.status == models.DepositScheduled && !now.Before(acct.PendingAt) {
		d.transitions = append(d.transitions, DepositTransition{From: models.DepositScheduled, To: models.DepositPending})
		d.status = models.DepositPending
		if !d.notified {
			// The flag commits with the transition, before any send attempt:
			// at most one notification per account lifetime.
			d.notified = true
			d.sendNotice = true
		}
	}

	if d.status == models.DepositPending && !now.Before(acct.AvailableAt) {
		d.transitions = append(d.transitions, DepositTransition{From: models.DepositPending, To: models.DepositPosted})
		d.status = models.DepositPosted
		d.completeLedger = true
	}

	return d, nil
}

// Advance loads the account, applies any elapsed transitions inside a single
// transaction, and returns the up-to-date record. Already-POSTED accounts are
// a no-op. The pending-deposit notification is dispatched after commit and is
// best-effort: a failed send is logged, never retried.
func (e *DepositEngine) Advance(ctx context.Context, accountID int) (*models.Account, []DepositTransition, error) {
	now := e.now().UTC()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin deposit transaction: %w", err)
	}
	defer tx.Rollback()

	acct, err := lockAccount(tx, accountID)
	if err != nil {
		return nil, nil, err
	}

	decision, err := evaluateDeposit(acct, now)
	if err != nil {
		return nil, nil, err
	}

	if len(decision.transitions) == 0 {
		return acct, nil, nil
	}

	result, err := tx.Exec(`
		UPDATE accounts
		SET deposit_status = $1, notified = $2, updated_at = $3
		WHERE id = $4 AND deposit_status = $5`,
		string(decision.status), decision.notified, now, acct.ID, string(acct.DepositStatus))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update deposit status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, nil, err
	}
	if rows == 0 {
		// Guarded compare-and-set lost to a concurrent advance. The row is
		// locked FOR UPDATE so this should not happen, but fail rather than
		// commit a second copy of the same transition.
		return nil, nil, fmt.Errorf("concurrent deposit advance for account %d", acct.ID)
	}

	if decision.completeLedger {
		if err := markLedgerCompleted(tx, acct.ID, now); err != nil {
			return nil, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit deposit transaction: %w", err)
	}

	log.Printf("[DEPOSIT] Account %d advanced %s -> %s", acct.ID, acct.DepositStatus, decision.status)

	acct.DepositStatus = decision.status
	acct.Notified = decision.notified
	acct.UpdatedAt = now

	if decision.sendNotice {
		e.sendPendingNotice(ctx, acct)
	}

	return acct, decision.transitions, nil
}

// loadAccount reads the last committed account state without advancing it.
func (e *DepositEngine) loadAccount(ctx context.Context, accountID int) (*models.Account, error) {
	var acct models.Account
	var status string
	err := e.db.QueryRowContext(ctx, `
		SELECT id, full_name, email, dob, address, ssn_last4, grant_amount,
		       account_last4, application_number, deposit_status, pending_at,
		       available_at, notified, created_at, updated_at
		FROM accounts
		WHERE id = $1`, accountID).Scan(
		&acct.ID, &acct.FullName, &acct.Email, &acct.DOB, &acct.Address, &acct.SSNLast4,
		&acct.GrantAmount, &acct.AccountLast4, &acct.ApplicationNumber, &status,
		&acct.PendingAt, &acct.AvailableAt, &acct.Notified, &acct.CreatedAt, &acct.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account %d: %w", accountID, err)
	}
	acct.DepositStatus = models.DepositStatus(status)
	return &acct, nil
}

func lockAccount(tx *sql.Tx, accountID int) (*models.Account, error) {
	var acct models.Account
	var status string
	err := tx.QueryRow(`
		SELECT id, full_name, email, grant_amount, account_last4, application_number,
		       deposit_status, pending_at, available_at, notified, created_at, updated_at
		FROM accounts
		WHERE id = $1
		FOR UPDATE`, accountID).Scan(
		&acct.ID, &acct.FullName, &acct.Email, &acct.GrantAmount, &acct.AccountLast4,
		&acct.ApplicationNumber, &status, &acct.PendingAt, &acct.AvailableAt,
		&acct.Notified, &acct.CreatedAt, &acct.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account %d: %w", accountID, err)
	}
	acct.DepositStatus = models.DepositStatus(status)
	return &acct, nil
}

func markLedgerCompleted(tx *sql.Tx, accountID int, now time.Time) error {
	result, err := tx.Exec(`
		UPDATE ledger_entries
		SET status = 'COMPLETED', completed_at = $1
		WHERE account_id = $2 AND status = 'PENDING'`,
		now, accountID)
	if err != nil {
		return fmt.Errorf("failed to complete ledger entry: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: account %d", ErrLedgerIntegrity, accountID)
	}
	return nil
}

func (e *DepositEngine) sendPendingNotice(ctx context.Context, acct *models.Account) {
	if e.mailer == nil {
		log.Printf("[DEPOSIT] No mailer configured, skipping pending notice for account %d", acct.ID)
		return
	}

	subject := "Your deposit is on its way"
	body := fmt.Sprintf(
		"Hi %s,\n\nYour deposit of $%s is now pending and will be available in your account on %s.\n\nThank you,\n%s",
		acct.FullName,
		acct.GrantAmount.StringFixed(2),
		acct.AvailableAt.Format("Jan 02, 2006 15:04 MST"),
		e.config.SenderName,
	)

	if err := e.mailer.Send(ctx, acct.Email, subject, body); err != nil {
		log.Printf("[DEPOSIT] Pending notice failed for account %d: %v", acct.ID, err)
	}
}
