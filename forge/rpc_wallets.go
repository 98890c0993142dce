package forge

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *apiServer) handleWalletsList(w http.ResponseWriter, r *http.Request) {
	wallets, err := s.forge.GetWalletsSystem().ListWallets(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"wallets": wallets})
}

func (s *apiServer) handleWalletGet(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.forge.GetWalletsSystem().GetWallet(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "category"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

func (s *apiServer) handleWalletTransactions(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	transactions, err := s.forge.GetWalletsSystem().ListTransactions(r.Context(),
		chi.URLParam(r, "userId"), chi.URLParam(r, "category"), limit, offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": transactions, "limit": limit, "offset": offset})
}

func (s *apiServer) handleWalletSpend(w http.ResponseWriter, r *http.Request) {
	var request struct {
		UserId      string `json:"userId"`
		Category    string `json:"category"`
		Amount      int64  `json:"amount"`
		Description string `json:"description,omitempty"`
	}
	if err := decodeBody(r, &request); err != nil {
		s.writeError(w, err)
		return
	}
	txn, err := s.forge.GetWalletsSystem().Spend(r.Context(), request.UserId, request.Category, request.Amount, request.Description)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

func (s *apiServer) handleWalletAdjust(w http.ResponseWriter, r *http.Request) {
	var request struct {
		UserId      string `json:"userId"`
		Category    string `json:"category"`
		Amount      int64  `json:"amount"`
		Description string `json:"description,omitempty"`
	}
	if err := decodeBody(r, &request); err != nil {
		s.writeError(w, err)
		return
	}
	txn, err := s.forge.GetWalletsSystem().Adjust(r.Context(), request.UserId, request.Category, request.Amount, request.Description)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

func (s *apiServer) handleTransferCreate(w http.ResponseWriter, r *http.Request) {
	var request struct {
		FromUserId string `json:"fromUserId"`
		ToUserId   string `json:"toUserId"`
		Category   string `json:"category"`
		Amount     int64  `json:"amount"`
		// Deferred transfers stay Pending until executed explicitly.
		Deferred bool `json:"deferred,omitempty"`
	}
	if err := decodeBody(r, &request); err != nil {
		s.writeError(w, err)
		return
	}
	wallets := s.forge.GetWalletsSystem()
	var transfer *WalletTransfer
	var err error
	if request.Deferred {
		transfer, err = wallets.CreateTransfer(r.Context(), request.FromUserId, request.ToUserId, request.Category, request.Amount)
	} else {
		transfer, err = wallets.Transfer(r.Context(), request.FromUserId, request.ToUserId, request.Category, request.Amount)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Location", "/api/wallets/transfers/"+transfer.Id)
	writeJSON(w, http.StatusCreated, transfer)
}

func (s *apiServer) handleTransferGet(w http.ResponseWriter, r *http.Request) {
	transfer, err := s.forge.GetWalletsSystem().GetTransfer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transfer)
}

func (s *apiServer) handleTransferExecute(w http.ResponseWriter, r *http.Request) {
	transfer, err := s.forge.GetWalletsSystem().ExecuteTransfer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transfer)
}

func (s *apiServer) handleTransferCancel(w http.ResponseWriter, r *http.Request) {
	transfer, err := s.forge.GetWalletsSystem().CancelTransfer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transfer)
}
