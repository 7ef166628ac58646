package api

import (
	"net/url"

	"pastr/cmd/identity"
)

// formRequest is implemented by requests that also accept
// application/x-www-form-urlencoded bodies.
type formRequest interface {
	fromForm(v url.Values)
}

type registerRequest struct {
	Username string `json:"username" validate:"required,max=64,excludesall=/\\?#@"`
	Mail     string `json:"mail" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required"`
}

func (r *registerRequest) fromForm(v url.Values) {
	r.Username = v.Get("username")
	r.Mail = v.Get("mail")
	r.Password = v.Get("password")
}

type loginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required"`
}

func (r *loginRequest) fromForm(v url.Values) {
	r.Username = v.Get("username")
	r.Password = v.Get("password")
}

type resendRequest struct {
	Mail string `json:"mail" validate:"required,email,max=254"`
}

func (r *resendRequest) fromForm(v url.Values) {
	r.Mail = v.Get("mail")
}

// apiErrorMessage is one entry of apiResponse.Errors.
type apiErrorMessage struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	Field   string `json:"field,omitempty"`
}

// Stable numeric codes for apiErrorMessage.Code.
const (
	codeUserExists     = 1
	codeInvalidField   = 2
	codePasswordPolicy = 3
)

// apiResponse is the envelope of every JSON response.
type apiResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Code    string            `json:"code,omitempty"`
	Errors  []apiErrorMessage `json:"errors,omitempty"`
}

type registerResponse struct {
	apiResponse
	ID identity.PrincipalID `json:"id"`
}

type loginResponse struct {
	apiResponse
	ID        identity.PrincipalID `json:"id"`
	Activated bool                 `json:"activated"`
}
