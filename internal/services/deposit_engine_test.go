package services

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffgcu/backend/internal/mailer"
	"github.com/ffgcu/backend/internal/models"
)

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (f *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, Body: body})
	return f.err
}

func (f *fakeMailer) SendWithAttachments(ctx context.Context, to, subject, body string, _ []mailer.Attachment) error {
	return f.Send(ctx, to, subject, body)
}

func testAccount(status models.DepositStatus, notified bool, signup time.Time) *models.Account {
	return &models.Account{
		ID:                1,
		FullName:          "Jane Member",
		Email:             "jane@example.com",
		GrantAmount:       decimal.RequireFromString("500.00"),
		AccountLast4:      "4821",
		ApplicationNumber: "APP-2231",
		DepositStatus:     status,
		PendingAt:         signup.Add(15 * time.Minute),
		AvailableAt:       signup.Add(24 * time.Hour),
		Notified:          notified,
		CreatedAt:         signup,
		UpdatedAt:         signup,
	}
}

func TestEvaluateDeposit(t *testing.T) {
	signup := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("before pending threshold nothing happens", func(t *testing.T) {
		acct := testAccount(models.DepositScheduled, false, signup)

		d, err := evaluateDeposit(acct, signup.Add(10*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, models.DepositScheduled, d.status)
		assert.Empty(t, d.transitions)
		assert.False(t, d.sendNotice)
		assert.False(t, d.completeLedger)
	})

	t.Run("crossing pending threshold notifies once", func(t *testing.T) {
		acct := testAccount(models.DepositScheduled, false, signup)

		d, err := evaluateDeposit(acct, signup.Add(20*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, models.DepositPending, d.status)
		assert.Equal(t, []DepositTransition{{From: models.DepositScheduled, To: models.DepositPending}}, d.transitions)
		assert.True(t, d.sendNotice)
		assert.True(t, d.notified)
		assert.False(t, d.completeLedger)
	})

	t.Run("already notified crossing pending does not resend", func(t *testing.T) {
		acct := testAccount(models.DepositScheduled, true, signup)

		d, err := evaluateDeposit(acct, signup.Add(20*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, models.DepositPending, d.status)
		assert.False(t, d.sendNotice)
		assert.True(t, d.notified)
	})

	t.Run("single pass catch-up applies both transitions", func(t *testing.T) {
		acct := testAccount(models.DepositScheduled, false, signup)

		d, err := evaluateDeposit(acct, signup.Add(48*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, models.DepositPosted, d.status)
		assert.Equal(t, []DepositTransition{
			{From: models.DepositScheduled, To: models.DepositPending},
			{From: models.DepositPending, To: models.DepositPosted},
		}, d.transitions)
		assert.True(t, d.sendNotice)
		assert.True(t, d.completeLedger)
	})

	t.Run("pending to posted completes ledger", func(t *testing.T) {
		acct := testAccount(models.DepositPending, true, signup)

		d, err := evaluateDeposit(acct, signup.Add(25*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, models.DepositPosted, d.status)
		assert.False(t, d.sendNotice)
		assert.True(t, d.completeLedger)
	})

	t.Run("posted account is a no-op", func(t *testing.T) {
		acct := testAccount(models.DepositPosted, true, signup)

		d, err := evaluateDeposit(acct, signup.Add(1000*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, models.DepositPosted, d.status)
		assert.Empty(t, d.transitions)
	})

	t.Run("backdated clock never regresses status", func(t *testing.T) {
		acct := testAccount(models.DepositPending, true, signup)

		d, err := evaluateDeposit(acct, signup.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, models.DepositPending, d.status)
		assert.Empty(t, d.transitions)
	})

	t.Run("monotonic under repeated evaluation", func(t *testing.T) {
		acct := testAccount(models.DepositScheduled, false, signup)
		prevRank := acct.DepositStatus.Rank()

		for _, offset := range []time.Duration{
			5 * time.Minute, 16 * time.Minute, 16 * time.Minute, 12 * time.Hour, 25 * time.Hour, 48 * time.Hour,
		} {
			d, err := evaluateDeposit(acct, signup.Add(offset))
			require.NoError(t, err)
			assert.GreaterOrEqual(t, d.status.Rank(), prevRank)
			prevRank = d.status.Rank()
			acct.DepositStatus = d.status
			acct.Notified = d.notified
		}
		assert.Equal(t, models.DepositPosted, acct.DepositStatus)
	})

	t.Run("invalid state data fails closed", func(t *testing.T) {
		missing := testAccount(models.DepositScheduled, false, signup)
		missing.PendingAt = time.Time{}
		_, err := evaluateDeposit(missing, signup)
		assert.ErrorIs(t, err, ErrInvalidDepositState)

		reversed := testAccount(models.DepositScheduled, false, signup)
		reversed.AvailableAt = reversed.PendingAt.Add(-time.Hour)
		_, err = evaluateDeposit(reversed, signup)
		assert.ErrorIs(t, err, ErrInvalidDepositState)

		unknown := testAccount("SETTLED", false, signup)
		_, err = evaluateDeposit(unknown, signup)
		assert.ErrorIs(t, err, ErrInvalidDepositState)
	})
}

func accountRows(acct *models.Account) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "full_name", "email", "grant_amount", "account_last4", "application_number",
		"deposit_status", "pending_at", "available_at", "notified", "created_at", "updated_at",
	}).AddRow(
		acct.ID, acct.FullName, acct.Email, acct.GrantAmount.StringFixed(2), acct.AccountLast4,
		acct.ApplicationNumber, string(acct.DepositStatus), acct.PendingAt, acct.AvailableAt,
		acct.Notified, acct.CreatedAt, acct.UpdatedAt,
	)
}

func TestDepositEngine_Advance(t *testing.T) {
	signup := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	setup := func(t *testing.T, now time.Time) (*DepositEngine, sqlmock.Sqlmock, *fakeMailer) {
		t.Helper()
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })

		fm := &fakeMailer{}
		engine := NewDepositEngine(db, fm)
		engine.now = func() time.Time { return now }
		return engine, mock, fm
	}

	t.Run("no transition before threshold", func(t *testing.T) {
		engine, mock, fm := setup(t, signup.Add(10*time.Minute))
		acct := testAccount(models.DepositScheduled, false, signup)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, full_name, email, grant_amount").
			WithArgs(1).
			WillReturnRows(accountRows(acct))
		mock.ExpectRollback()

		got, transitions, err := engine.Advance(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, models.DepositScheduled, got.DepositStatus)
		assert.Empty(t, transitions)
		assert.Empty(t, fm.sent)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("scheduled to pending sends one notification", func(t *testing.T) {
		engine, mock, fm := setup(t, signup.Add(20*time.Minute))
		acct := testAccount(models.DepositScheduled, false, signup)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, full_name, email, grant_amount").
			WithArgs(1).
			WillReturnRows(accountRows(acct))
		mock.ExpectExec("UPDATE accounts").
			WithArgs("PENDING", true, sqlmock.AnyArg(), 1, "SCHEDULED").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		got, transitions, err := engine.Advance(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, models.DepositPending, got.DepositStatus)
		assert.True(t, got.Notified)
		assert.Len(t, transitions, 1)
		require.Len(t, fm.sent, 1)
		assert.Equal(t, "jane@example.com", fm.sent[0].To)
		assert.Contains(t, fm.sent[0].Body, "500.00")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("single pass catch-up lands on posted and completes ledger", func(t *testing.T) {
		engine, mock, fm := setup(t, signup.Add(48*time.Hour))
		acct := testAccount(models.DepositScheduled, false, signup)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, full_name, email, grant_amount").
			WithArgs(1).
			WillReturnRows(accountRows(acct))
		mock.ExpectExec("UPDATE accounts").
			WithArgs("POSTED", true, sqlmock.AnyArg(), 1, "SCHEDULED").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE ledger_entries").
			WithArgs(sqlmock.AnyArg(), 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		got, transitions, err := engine.Advance(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, models.DepositPosted, got.DepositStatus)
		assert.Len(t, transitions, 2)
		assert.Len(t, fm.sent, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("pending to posted without resending notification", func(t *testing.T) {
		engine, mock, fm := setup(t, signup.Add(30*time.Hour))
		acct := testAccount(models.DepositPending, true, signup)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, full_name, email, grant_amount").
			WithArgs(1).
			WillReturnRows(accountRows(acct))
		mock.ExpectExec("UPDATE accounts").
			WithArgs("POSTED", true, sqlmock.AnyArg(), 1, "PENDING").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE ledger_entries").
			WithArgs(sqlmock.AnyArg(), 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		got, _, err := engine.Advance(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, models.DepositPosted, got.DepositStatus)
		assert.Empty(t, fm.sent)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("posted account is idempotent", func(t *testing.T) {
		engine, mock, fm := setup(t, signup.Add(1000*time.Hour))
		acct := testAccount(models.DepositPosted, true, signup)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, full_name, email, grant_amount").
			WithArgs(1).
			WillReturnRows(accountRows(acct))
		mock.ExpectRollback()

		got, transitions, err := engine.Advance(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, models.DepositPosted, got.DepositStatus)
		assert.Empty(t, transitions)
		assert.Empty(t, fm.sent)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing pending ledger entry fails the advance", func(t *testing.T) {
		engine, mock, fm := setup(t, signup.Add(30*time.Hour))
		acct := testAccount(models.DepositPending, true, signup)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, full_name, email, grant_amount").
			WithArgs(1).
			WillReturnRows(accountRows(acct))
		mock.ExpectExec("UPDATE accounts").
			WithArgs("POSTED", true, sqlmock.AnyArg(), 1, "PENDING").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE ledger_entries").
			WithArgs(sqlmock.AnyArg(), 1).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, _, err := engine.Advance(context.Background(), 1)
		assert.ErrorIs(t, err, ErrLedgerIntegrity)
		assert.Empty(t, fm.sent)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("store failure rolls back and sends nothing", func(t *testing.T) {
		engine, mock, fm := setup(t, signup.Add(20*time.Minute))
		acct := testAccount(models.DepositScheduled, false, signup)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, full_name, email, grant_amount").
			WithArgs(1).
			WillReturnRows(accountRows(acct))
		mock.ExpectExec("UPDATE accounts").
			WithArgs("PENDING", true, sqlmock.AnyArg(), 1, "SCHEDULED").
			WillReturnError(fmt.Errorf("connection reset"))
		mock.ExpectRollback()

		_, _, err := engine.Advance(context.Background(), 1)
		assert.Error(t, err)
		assert.Empty(t, fm.sent)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("mailer failure does not fail the advance", func(t *testing.T) {
		engine, mock, fm := setup(t, signup.Add(20*time.Minute))
		fm.err = fmt.Errorf("smtp timeout")
		acct := testAccount(models.DepositScheduled, false, signup)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, full_name, email, grant_amount").
			WithArgs(1).
			WillReturnRows(accountRows(acct))
		mock.ExpectExec("UPDATE accounts").
			WithArgs("PENDING", true, sqlmock.AnyArg(), 1, "SCHEDULED").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		got, _, err := engine.Advance(context.Background(), 1)
		require.NoError(t, err)
		assert.True(t, got.Notified)
		assert.Len(t, fm.sent, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown account", func(t *testing.T) {
		engine, mock, _ := setup(t, signup)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, full_name, email, grant_amount").
			WithArgs(42).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, _, err := engine.Advance(context.Background(), 42)
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})
}

// TestDepositLifecycle walks the documented member journey: signup at T0 with
// a 500.00 grant, observed at T0+10m, T0+20m (twice), then T0+2d.
func TestDepositLifecycle(t *testing.T) {
	signup := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	acct := testAccount(models.DepositScheduled, false, signup)
	grant := acct.GrantAmount

	apply := func(now time.Time) depositDecision {
		d, err := evaluateDeposit(acct, now)
		require.NoError(t, err)
		acct.DepositStatus = d.status
		acct.Notified = d.notified
		return d
	}

	d := apply(signup.Add(10 * time.Minute))
	assert.Equal(t, models.DepositScheduled, acct.DepositStatus)
	assert.False(t, d.sendNotice)
	p := ProjectBalances(acct.DepositStatus, grant)
	assert.True(t, p.Available.IsZero())
	assert.True(t, p.Current.IsZero())

	d = apply(signup.Add(20 * time.Minute))
	assert.Equal(t, models.DepositPending, acct.DepositStatus)
	assert.True(t, d.sendNotice)
	p = ProjectBalances(acct.DepositStatus, grant)
	assert.True(t, p.Available.IsZero())
	assert.True(t, p.Current.Equal(grant))

	d = apply(signup.Add(20 * time.Minute))
	assert.Equal(t, models.DepositPending, acct.DepositStatus)
	assert.False(t, d.sendNotice)
	assert.Empty(t, d.transitions)

	d = apply(signup.Add(48 * time.Hour))
	assert.Equal(t, models.DepositPosted, acct.DepositStatus)
	assert.False(t, d.sendNotice)
	assert.True(t, d.completeLedger)
	p = ProjectBalances(acct.DepositStatus, grant)
	assert.True(t, p.Available.Equal(grant))
	assert.True(t, p.Current.Equal(grant))
}
