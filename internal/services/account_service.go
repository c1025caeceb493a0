package services

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/ffgcu/backend/internal/models"
)

// AccountService serves the member dashboard and profile. Every dashboard
// read runs the deposit engine first, so the displayed status always reflects
// elapsed wall-clock time without any background job.
type AccountService struct {
	engine *DepositEngine
}

func NewAccountService(engine *DepositEngine) *AccountService {
	return &AccountService{engine: engine}
}

// DashboardResponse is the member dashboard payload
// @Description Dashboard response structure
type DashboardResponse struct {
	Account  *models.Account   `json:"account"`
	Balances BalanceProjection `json:"balances"`
}

// GetDashboard returns the member dashboard
// @Summary Get dashboard
// @Description Get the authenticated member's account, advanced deposit status and balances
// @Tags account
// @Produce json
// @Security BearerAuth
// @Success 200 {object} DashboardResponse "Dashboard data"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 404 {object} ErrorResponse "Account not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /account/dashboard [get]
func (s *AccountService) GetDashboard(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	acct, _, err := s.engine.Advance(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
			return
		}
		// A store failure during advance degrades to the last committed
		// state rather than blocking the page.
		log.Printf("[ACCOUNT] Deposit advance failed for account %d: %v", accountID, err)
		acct, err = s.engine.loadAccount(r.Context(), accountID)
		if err != nil {
			SendErrorResponse(w, "Failed to load account", http.StatusInternalServerError, nil)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(DashboardResponse{
		Account:  acct,
		Balances: ProjectBalances(acct.DepositStatus, acct.GrantAmount),
	})
}

// GetProfile returns the member profile
// @Summary Get profile
// @Description Get the authenticated member's profile details
// @Tags account
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Account "Profile data"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 404 {object} ErrorResponse "Account not found"
// @Router /account/profile [get]
func (s *AccountService) GetProfile(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	acct, err := s.engine.loadAccount(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[ACCOUNT] Profile load failed for account %d: %v", accountID, err)
		SendErrorResponse(w, "Failed to load account", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(acct)
}

func accountIDFromContext(r *http.Request) (int, bool) {
	v := r.Context().Value("userID")
	if v == nil {
		return 0, false
	}
	switch id := v.(type) {
	case int:
		return id, true
	case string:
		n, err := strconv.Atoi(id)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
