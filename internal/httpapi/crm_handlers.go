package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"epicrm.org/internal/auth"
	"epicrm.org/internal/crm"
	"epicrm.org/internal/obs"
)

// respond finishes a service-backed request: errors go through the status
// mapping, successes count as granted decisions.
func respond(w http.ResponseWriter, r *http.Request, code int, v any, err error) {
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	obs.ObserveAuthzDecision("ok")
	if v == nil {
		w.WriteHeader(code)
		return
	}
	writeJSON(w, code, v)
}

// Users ----------------------------------------------------------------------

type createUserRequest struct {
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Department string `json:"department"`
}

type updateUserRequest struct {
	FullName   *string `json:"full_name"`
	Email      *string `json:"email"`
	Password   *string `json:"password"`
	Department *string `json:"department"`
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req createUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		dept, err := auth.ParseDepartment(req.Department)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.crm.CreateUser(r.Context(), bearerToken(r), crm.UserInput{
			FullName:   req.FullName,
			Email:      req.Email,
			Password:   req.Password,
			Department: dept,
		})
		if err == nil {
			w.Header().Set("Location", fmt.Sprintf("/v1/users/%d", user.ID))
		}
		respond(w, r, http.StatusCreated, user, err)
	case http.MethodGet:
		users, err := a.crm.ListUsers(r.Context(), bearerToken(r))
		respond(w, r, http.StatusOK, users, err)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if rest == "" || strings.Contains(rest, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id, err := parseID(rest)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		user, err := a.crm.GetUser(r.Context(), bearerToken(r), id)
		respond(w, r, http.StatusOK, user, err)
	case http.MethodPatch:
		var req updateUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		upd := crm.UserUpdate{
			FullName: req.FullName,
			Email:    req.Email,
			Password: req.Password,
		}
		if req.Department != nil {
			dept, err := auth.ParseDepartment(*req.Department)
			if err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			upd.Department = &dept
		}
		user, err := a.crm.UpdateUser(r.Context(), bearerToken(r), id, upd)
		respond(w, r, http.StatusOK, user, err)
	case http.MethodDelete:
		err := a.crm.DeleteUser(r.Context(), bearerToken(r), id)
		respond(w, r, http.StatusNoContent, nil, err)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

// Clients --------------------------------------------------------------------

type createClientRequest struct {
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Enterprise string `json:"enterprise"`
}

type updateClientRequest struct {
	FullName   *string `json:"full_name"`
	Email      *string `json:"email"`
	Phone      *string `json:"phone"`
	Enterprise *string `json:"enterprise"`
}

func (a *API) handleClients(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req createClientRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		client, err := a.crm.CreateClient(r.Context(), bearerToken(r), crm.ClientInput{
			FullName:   req.FullName,
			Email:      req.Email,
			Phone:      req.Phone,
			Enterprise: req.Enterprise,
		})
		if err == nil {
			w.Header().Set("Location", fmt.Sprintf("/v1/clients/%d", client.ID))
		}
		respond(w, r, http.StatusCreated, client, err)
	case http.MethodGet:
		clients, err := a.crm.ListClients(r.Context(), bearerToken(r))
		respond(w, r, http.StatusOK, clients, err)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleClientResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/clients/"), "/")
	if rest == "" || strings.Contains(rest, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id, err := parseID(rest)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		client, err := a.crm.GetClient(r.Context(), bearerToken(r), id)
		respond(w, r, http.StatusOK, client, err)
	case http.MethodPatch:
		var req updateClientRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		client, err := a.crm.UpdateClient(r.Context(), bearerToken(r), id, crm.ClientUpdate{
			FullName:   req.FullName,
			Email:      req.Email,
			Phone:      req.Phone,
			Enterprise: req.Enterprise,
		})
		respond(w, r, http.StatusOK, client, err)
	case http.MethodDelete:
		err := a.crm.DeleteClient(r.Context(), bearerToken(r), id)
		respond(w, r, http.StatusNoContent, nil, err)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

// Contracts ------------------------------------------------------------------

type createContractRequest struct {
	ClientID        int64   `json:"client_id"`
	Amount          float64 `json:"amount"`
	RemainingAmount float64 `json:"remaining_amount"`
	Signed          bool    `json:"signed"`
}

type updateContractRequest struct {
	Amount          *float64 `json:"amount"`
	RemainingAmount *float64 `json:"remaining_amount"`
	Signed          *bool    `json:"signed"`
}

func (a *API) handleContracts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req createContractRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		contract, err := a.crm.CreateContract(r.Context(), bearerToken(r), crm.ContractInput{
			ClientID:        req.ClientID,
			Amount:          req.Amount,
			RemainingAmount: req.RemainingAmount,
			Signed:          req.Signed,
		})
		if err == nil {
			w.Header().Set("Location", fmt.Sprintf("/v1/contracts/%d", contract.ID))
		}
		respond(w, r, http.StatusCreated, contract, err)
	case http.MethodGet:
		contracts, err := a.crm.ListContracts(r.Context(), bearerToken(r))
		respond(w, r, http.StatusOK, contracts, err)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleContractResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/contracts/"), "/")
	if rest == "" || strings.Contains(rest, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id, err := parseID(rest)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		contract, err := a.crm.GetContract(r.Context(), bearerToken(r), id)
		respond(w, r, http.StatusOK, contract, err)
	case http.MethodPatch:
		var req updateContractRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		contract, err := a.crm.UpdateContract(r.Context(), bearerToken(r), id, crm.ContractUpdate{
			Amount:          req.Amount,
			RemainingAmount: req.RemainingAmount,
			Signed:          req.Signed,
		})
		respond(w, r, http.StatusOK, contract, err)
	case http.MethodDelete:
		err := a.crm.DeleteContract(r.Context(), bearerToken(r), id)
		respond(w, r, http.StatusNoContent, nil, err)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

// Events ---------------------------------------------------------------------

type createEventRequest struct {
	Name       string    `json:"name"`
	ContractID int64     `json:"contract_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Location   string    `json:"location"`
	Attendees  int       `json:"attendees"`
	Notes      string    `json:"notes"`
}

type updateEventRequest struct {
	Name      *string    `json:"name"`
	Start     *time.Time `json:"start"`
	End       *time.Time `json:"end"`
	Location  *string    `json:"location"`
	Attendees *int       `json:"attendees"`
	Notes     *string    `json:"notes"`
}

type updateEventNotesRequest struct {
	Notes string `json:"notes"`
}

type assignEventRequest struct {
	SupportContactID int64 `json:"support_contact_id"`
}

func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req createEventRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		event, err := a.crm.CreateEvent(r.Context(), bearerToken(r), crm.EventInput{
			Name:       req.Name,
			ContractID: req.ContractID,
			Start:      req.Start,
			End:        req.End,
			Location:   req.Location,
			Attendees:  req.Attendees,
			Notes:      req.Notes,
		})
		if err == nil {
			w.Header().Set("Location", fmt.Sprintf("/v1/events/%d", event.ID))
		}
		respond(w, r, http.StatusCreated, event, err)
	case http.MethodGet:
		events, err := a.crm.ListEvents(r.Context(), bearerToken(r))
		respond(w, r, http.StatusOK, events, err)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleEventResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/events/"), "/")
	if rest == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(rest, "/")
	id, err := parseID(parts[0])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if len(parts) == 2 {
		switch parts[1] {
		case "assign":
			a.handleEventAssign(w, r, id)
		case "notes":
			a.handleEventNotes(w, r, id)
		default:
			writeError(w, r, http.StatusNotFound, "resource not found")
		}
		return
	}
	if len(parts) != 1 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		event, err := a.crm.GetEvent(r.Context(), bearerToken(r), id)
		respond(w, r, http.StatusOK, event, err)
	case http.MethodPatch:
		var req updateEventRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		event, err := a.crm.UpdateEvent(r.Context(), bearerToken(r), id, crm.EventUpdate{
			Name:      req.Name,
			Start:     req.Start,
			End:       req.End,
			Location:  req.Location,
			Attendees: req.Attendees,
			Notes:     req.Notes,
		})
		respond(w, r, http.StatusOK, event, err)
	case http.MethodDelete:
		err := a.crm.DeleteEvent(r.Context(), bearerToken(r), id)
		respond(w, r, http.StatusNoContent, nil, err)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleEventAssign(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req assignEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	event, err := a.crm.AssignEventSupport(r.Context(), bearerToken(r), id, req.SupportContactID)
	respond(w, r, http.StatusOK, event, err)
}

func (a *API) handleEventNotes(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	var req updateEventNotesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	event, err := a.crm.UpdateEventNotes(r.Context(), bearerToken(r), id, req.Notes)
	respond(w, r, http.StatusOK, event, err)
}
