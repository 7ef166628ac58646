package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"pastr/cmd/identity"
	"pastr/cmd/internal/mail"

	"github.com/go-playground/validator/v10"
)

// Accounts is the account lifecycle used by the handlers.
type Accounts interface {
	Register(ctx context.Context, in identity.RegisterInput) (identity.PrincipalID, error)
	Activate(ctx context.Context, id identity.PrincipalID) error
	Login(ctx context.Context, handle string, password []byte) (identity.LoginResult, error)
	PendingActivation(ctx context.Context, contact string) (identity.PrincipalID, error)
	Principal(ctx context.Context, id identity.PrincipalID) (identity.Principal, error)
}

// Notifier queues activation notices for delivery.
type Notifier interface {
	Enqueue(n mail.Notice) (string, error)
}

type discardNotifier struct{}

func (discardNotifier) Enqueue(mail.Notice) (string, error) { return "", nil }

// Handler wires HTTP account endpoints to the account lifecycle.
type Handler struct {
	log *slog.Logger
	cfg Config

	accounts Accounts
	notifier Notifier
	validate *validator.Validate
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithNotifier sets where activation notices are queued. Without one they are discarded.
func WithNotifier(n Notifier) HandlerOption {
	return func(h *Handler) {
		if h == nil || n == nil {
			return
		}
		h.notifier = n
	}
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, accounts Accounts, cfg Config, opts ...HandlerOption) (*Handler, error) {
	if accounts == nil {
		return nil, errors.New("api: nil accounts")
	}
	if log == nil {
		log = slog.Default()
	}

	h := &Handler{
		log:      log,
		cfg:      cfg.withDefaults(),
		accounts: accounts,
		notifier: discardNotifier{},
		validate: newValidator(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	h.cfg.BaseURL = strings.TrimRight(h.cfg.BaseURL, "/")
	return h, nil
}

// Register wires account routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /api/user/register", h.handleRegister)
	mux.HandleFunc("POST /api/user/login", h.handleLogin)
	mux.HandleFunc("POST /api/user/activation/resend", h.handleResend)
	mux.HandleFunc("GET /register/activate/{id}", h.handleActivate)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.cfg.Policy.Validate(req.Password); err != nil {
		writeError(w, http.StatusBadRequest, "weak_password", "password rejected",
			apiErrorMessage{Message: err.Error(), Code: codePasswordPolicy, Field: "password"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.OpTimeout)
	defer cancel()

	id, err := h.accounts.Register(ctx, identity.RegisterInput{
		Handle:   req.Username,
		Contact:  req.Mail,
		Password: []byte(req.Password),
	})
	if err != nil {
		if field, ok := identity.ConflictField(err); ok {
			msg := apiErrorMessage{Message: "user already exists", Code: codeUserExists, Field: conflictField(field)}
			writeError(w, http.StatusConflict, "user_exists", "user already exists", msg)
			return
		}
		h.writeAccountError(w, r, "register", err)
		return
	}

	h.notify(ctx, id, strings.TrimSpace(req.Username), strings.TrimSpace(req.Mail))

	writeJSON(w, http.StatusCreated, registerResponse{
		apiResponse: apiResponse{Success: true, Message: "user registration successful"},
		ID:          id,
	})
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	id, err := identity.ParsePrincipalID(r.PathValue("id"))
	if err != nil {
		h.redirectLogin(w, r, false)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.OpTimeout)
	defer cancel()

	err = h.accounts.Activate(ctx, id)
	switch {
	case err == nil:
		h.redirectLogin(w, r, true)
	case identity.IsNoSuchPendingActivation(err):
		h.redirectLogin(w, r, false)
	default:
		h.writeAccountError(w, r, "activate", err)
	}
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.OpTimeout)
	defer cancel()

	res, err := h.accounts.Login(ctx, req.Username, []byte(req.Password))
	if err != nil {
		h.writeAccountError(w, r, "login", err)
		return
	}
	if h.cfg.RequireActivation && !res.Activated {
		writeError(w, http.StatusForbidden, "not_activated", "account is not activated")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		apiResponse: apiResponse{Success: true, Message: "login successful"},
		ID:          res.PrincipalID,
		Activated:   res.Activated,
	})
}

// handleResend answers 202 whether or not a pending principal exists for the address.
func (h *Handler) handleResend(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.OpTimeout)
	defer cancel()

	id, err := h.accounts.PendingActivation(ctx, req.Mail)
	switch {
	case err == nil:
		handle := ""
		if p, err := h.accounts.Principal(ctx, id); err == nil {
			handle = p.Handle
		}
		h.notify(ctx, id, handle, strings.TrimSpace(req.Mail))
	case identity.IsNoSuchPendingActivation(err):
	default:
		h.writeAccountError(w, r, "resend", err)
		return
	}

	writeJSON(w, http.StatusAccepted, apiResponse{
		Success: true,
		Message: "if the address has a pending activation, a new link has been sent",
	})
}

// ---- helpers ----

// decode reads and validates a request body, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeRequest(w, r, h.cfg.MaxBodyBytes, dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request", fieldErrors(err)...)
		return false
	}
	return true
}

func (h *Handler) notify(ctx context.Context, id identity.PrincipalID, handle, contact string) {
	n := mail.Notice{
		PrincipalID: id.String(),
		Handle:      handle,
		Contact:     contact,
		Link:        mail.ActivationLink(h.cfg.BaseURL, id.String()),
	}
	jobID, err := h.notifier.Enqueue(n)
	if err != nil {
		// The principal exists; the link can be re-sent later.
		h.log.WarnContext(ctx, "account.activation.enqueue.fail", "principal_id", n.PrincipalID, "err", err)
		return
	}
	if jobID != "" {
		h.log.DebugContext(ctx, "account.activation.enqueued", "principal_id", n.PrincipalID, "job_id", jobID)
	}
}

func (h *Handler) redirectLogin(w http.ResponseWriter, r *http.Request, activated bool) {
	q := url.Values{}
	if activated {
		q.Set("activated", "true")
	} else {
		q.Set("activated", "false")
	}
	http.Redirect(w, r, h.cfg.BaseURL+"/login?"+q.Encode(), http.StatusPermanentRedirect)
}

// writeAccountError maps identity error kinds onto HTTP responses.
func (h *Handler) writeAccountError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch identity.Classify(err) {
	case identity.ErrInvalidInput:
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request")
	case identity.ErrInvalidCredentials:
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid username or password")
	case identity.ErrDuplicatePrincipal:
		writeError(w, http.StatusConflict, "user_exists", "user already exists")
	case identity.ErrNoSuchPendingActivation, identity.ErrNotFound:
		writeError(w, http.StatusNotFound, "not_found", "not found")
	case identity.ErrStoreUnavailable, identity.ErrCanceled:
		h.log.WarnContext(r.Context(), "api."+op+".unavailable", "err", err)
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
	default:
		h.log.ErrorContext(r.Context(), "api."+op+".fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "error while processing request")
	}
}

func conflictField(f string) string {
	switch f {
	case "handle":
		return "username"
	case "contact":
		return "mail"
	default:
		return f
	}
}
