package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	apperrors "github.com/position-scanner/internal/errors"
	"github.com/position-scanner/internal/models"
)

// defaultRangeDays is the snapshot window when no from/to is given.
const defaultRangeDays = 30

// parseAddress validates and extracts the {address} path variable.
func parseAddress(r *http.Request) (common.Address, error) {
	raw := mux.Vars(r)["address"]
	if !common.IsHexAddress(raw) {
		return common.Address{}, apperrors.NewInvalidParameterError("address", "must be a hex address")
	}
	return common.HexToAddress(raw), nil
}

// parseRange extracts the from/to unix-second query parameters, defaulting
// to the last 30 days.
func parseRange(r *http.Request) (int64, int64, error) {
	now := time.Now().Unix()
	from := now - defaultRangeDays*models.SecondsPerDay
	to := now

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, 0, apperrors.NewInvalidParameterError("from", "must be a unix timestamp")
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, 0, apperrors.NewInvalidParameterError("to", "must be a unix timestamp")
		}
		to = parsed
	}
	if from > to {
		return 0, 0, apperrors.NewInvalidParameterError("from", "must not be after 'to'")
	}

	return from, to, nil
}

func (s *Server) handleGetRegistry(w http.ResponseWriter, r *http.Request) {
	address, err := parseAddress(r)
	if err != nil {
		respondError(w, err)
		return
	}

	registry, err := s.registries.Get(r.Context(), address)
	if err != nil {
		respondError(w, err)
		return
	}
	if registry == nil {
		respondError(w, apperrors.NewNotFoundError("registry", address.Hex()))
		return
	}

	respondJSON(w, http.StatusOK, registry)
}

func (s *Server) handleGetRegistryDaily(w http.ResponseWriter, r *http.Request) {
	address, err := parseAddress(r)
	if err != nil {
		respondError(w, err)
		return
	}
	from, to, err := parseRange(r)
	if err != nil {
		respondError(w, err)
		return
	}

	rows, err := s.daily.ListRegistryDailyRange(r.Context(), address, from, to)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"registry": address.Hex(),
		"from":     from,
		"to":       to,
		"data":     rows,
	})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	address, err := parseAddress(r)
	if err != nil {
		respondError(w, err)
		return
	}

	account, err := s.accounts.Get(r.Context(), address)
	if err != nil {
		respondError(w, err)
		return
	}
	if account == nil {
		respondError(w, apperrors.NewNotFoundError("smart account", address.Hex()))
		return
	}

	respondJSON(w, http.StatusOK, account)
}

func (s *Server) handleGetAccountPositions(w http.ResponseWriter, r *http.Request) {
	address, err := parseAddress(r)
	if err != nil {
		respondError(w, err)
		return
	}

	account, err := s.accounts.Get(r.Context(), address)
	if err != nil {
		respondError(w, err)
		return
	}
	if account == nil {
		respondError(w, apperrors.NewNotFoundError("smart account", address.Hex()))
		return
	}

	positions, err := s.positions.ListByOwner(r.Context(), address)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"account":   address.Hex(),
		"positions": positions,
	})
}

func (s *Server) handleGetAccountDaily(w http.ResponseWriter, r *http.Request) {
	address, err := parseAddress(r)
	if err != nil {
		respondError(w, err)
		return
	}
	from, to, err := parseRange(r)
	if err != nil {
		respondError(w, err)
		return
	}

	rows, err := s.daily.ListSmartAccountDailyRange(r.Context(), address, from, to)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"account": address.Hex(),
		"from":    from,
		"to":      to,
		"data":    rows,
	})
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	address, err := parseAddress(r)
	if err != nil {
		respondError(w, err)
		return
	}

	position, err := s.positions.Get(r.Context(), address)
	if err != nil {
		respondError(w, err)
		return
	}
	if position == nil {
		respondError(w, apperrors.NewNotFoundError("position", address.Hex()))
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"position": position,
		"phase":    position.Phase(),
		"eligible": position.IsEligible(),
	})
}

func (s *Server) handleGetPositionDaily(w http.ResponseWriter, r *http.Request) {
	address, err := parseAddress(r)
	if err != nil {
		respondError(w, err)
		return
	}
	from, to, err := parseRange(r)
	if err != nil {
		respondError(w, err)
		return
	}

	rows, err := s.daily.ListPositionDailyRange(r.Context(), address, from, to)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"position": address.Hex(),
		"from":     from,
		"to":       to,
		"data":     rows,
	})
}
