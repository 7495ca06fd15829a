package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	Invalid        Kind = "invalid"
	NotFound       Kind = "not_found"
	Unauthorized   Kind = "unauthorized"
	Forbidden      Kind = "forbidden"
	Conflict       Kind = "conflict"
	SessionExpired Kind = "session_expired"
	InvalidSession Kind = "invalid_session"
	RateLimited    Kind = "rate_limited"
	Network        Kind = "network"
	Internal       Kind = "internal"
)

type AppError struct {
	Kind      Kind
	PublicMsg string            // safe to show in the UI
	Fields    map[string]string // per-field validation messages (optional)
	Status    int               // HTTP status when the error came from the backend
	Err       error             // underlying cause, for logs
}

func (e *AppError) Error() string {
	switch {
	case e.Err != nil && e.PublicMsg != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.PublicMsg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.PublicMsg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.PublicMsg)
	}
	return string(e.Kind)
}

func (e *AppError) Unwrap() error { return e.Err }

func InvalidErr(publicMsg string, fields map[string]string) *AppError {
	return &AppError{Kind: Invalid, PublicMsg: publicMsg, Fields: fields}
}

func SessionExpiredErr() *AppError {
	return &AppError{Kind: SessionExpired, PublicMsg: "Sessão expirada", Status: 401}
}

func InvalidSessionErr() *AppError {
	return &AppError{Kind: InvalidSession, PublicMsg: "Sessão inválida. Faça login novamente.", Status: 422}
}

func NetworkErr(err error) *AppError {
	return &AppError{Kind: Network, PublicMsg: "Falha de conexão com o servidor.", Err: err}
}

// Wrap keeps err as the cause of an internal error without a public message.
func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Kind: Internal, PublicMsg: defaultMessage, Err: err}
}

func As(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

func KindOf(err error) Kind {
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return ""
}

// IsSession reports whether err ended the current session.
func IsSession(err error) bool {
	k := KindOf(err)
	return k == SessionExpired || k == InvalidSession
}

const defaultMessage = "Erro inesperado."

func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	if ae, ok := As(err); ok && ae.PublicMsg != "" {
		return ae.PublicMsg
	}
	return err.Error()
}
