package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffgcu/backend/internal/models"
)

func dashboardRequest(accountID int) *http.Request {
	r := httptest.NewRequest("GET", "/account/dashboard", nil)
	ctx := context.WithValue(r.Context(), "userID", accountID)
	return r.WithContext(ctx)
}

func TestAccountService_GetDashboard(t *testing.T) {
	signup := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("dashboard advances the deposit before rendering", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		fm := &fakeMailer{}
		engine := NewDepositEngine(db, fm)
		engine.now = func() time.Time { return signup.Add(20 * time.Minute) }
		service := NewAccountService(engine)

		acct := testAccount(models.DepositScheduled, false, signup)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, full_name, email, grant_amount").
			WithArgs(1).
			WillReturnRows(accountRows(acct))
		mock.ExpectExec("UPDATE accounts").
			WithArgs("PENDING", true, sqlmock.AnyArg(), 1, "SCHEDULED").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		w := httptest.NewRecorder()
		service.GetDashboard(w, dashboardRequest(1))

		assert.Equal(t, http.StatusOK, w.Code)

		var response DashboardResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, models.DepositPending, response.Account.DepositStatus)
		assert.True(t, response.Balances.Available.IsZero())
		assert.True(t, response.Balances.Current.Equal(acct.GrantAmount))
		assert.Len(t, fm.sent, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("store failure degrades to last committed state", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		engine := NewDepositEngine(db, nil)
		engine.now = func() time.Time { return signup.Add(20 * time.Minute) }
		service := NewAccountService(engine)

		acct := testAccount(models.DepositScheduled, false, signup)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, full_name, email, grant_amount").
			WithArgs(1).
			WillReturnRows(accountRows(acct))
		mock.ExpectExec("UPDATE accounts").
			WillReturnError(assert.AnError)
		mock.ExpectRollback()

		// Fallback read of the committed row
		mock.ExpectQuery("SELECT id, full_name, email, dob, address, ssn_last4").
			WithArgs(1).
			WillReturnRows(profileRows(acct))

		w := httptest.NewRecorder()
		service.GetDashboard(w, dashboardRequest(1))

		assert.Equal(t, http.StatusOK, w.Code)

		var response DashboardResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, models.DepositScheduled, response.Account.DepositStatus)
		assert.True(t, response.Balances.Current.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown account", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		engine := NewDepositEngine(db, nil)
		service := NewAccountService(engine)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, full_name, email, grant_amount").
			WithArgs(99).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		w := httptest.NewRecorder()
		service.GetDashboard(w, dashboardRequest(99))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("missing identity", func(t *testing.T) {
		db, _, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		service := NewAccountService(NewDepositEngine(db, nil))

		w := httptest.NewRecorder()
		service.GetDashboard(w, httptest.NewRequest("GET", "/account/dashboard", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAccountService_GetProfile(t *testing.T) {
	signup := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewAccountService(NewDepositEngine(db, nil))

	acct := testAccount(models.DepositPending, true, signup)
	acct.DOB = "1985-04-12"
	acct.Address = "12 Main St"
	acct.SSNLast4 = "6789"

	mock.ExpectQuery("SELECT id, full_name, email, dob, address, ssn_last4").
		WithArgs(1).
		WillReturnRows(profileRows(acct))

	r := httptest.NewRequest("GET", "/account/profile", nil)
	r = r.WithContext(context.WithValue(r.Context(), "userID", 1))
	w := httptest.NewRecorder()

	service.GetProfile(w, r)

	assert.Equal(t, http.StatusOK, w.Code)

	var got models.Account
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "12 Main St", got.Address)
	assert.Equal(t, models.DepositPending, got.DepositStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func profileRows(acct *models.Account) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "full_name", "email", "dob", "address", "ssn_last4", "grant_amount",
		"account_last4", "application_number", "deposit_status", "pending_at",
		"available_at", "notified", "created_at", "updated_at",
	}).AddRow(
		acct.ID, acct.FullName, acct.Email, acct.DOB, acct.Address, acct.SSNLast4,
		acct.GrantAmount.StringFixed(2), acct.AccountLast4, acct.ApplicationNumber,
		string(acct.DepositStatus), acct.PendingAt, acct.AvailableAt, acct.Notified,
		acct.CreatedAt, acct.UpdatedAt,
	)
}
