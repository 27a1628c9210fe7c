package app

import (
	"fmt"
	"net/http"
)

type DomainError struct {
	Status      int
	Code        string
	Message     string
	LongMessage string
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.LongMessage)
}

func domainError(status int, code, message, longMessage string) *DomainError {
	return &DomainError{
		Status:      status,
		Code:        code,
		Message:     message,
		LongMessage: longMessage,
	}
}

const (
	CodeInvalidID       = "INVALID_ID"
	CodeInvalidStatus   = "INVALID_STATUS"
	CodeInvalidPriority = "INVALID_PRIORITY"
	CodeInvalidBody     = "INVALID_BODY"
	CodeNotFound        = "NOT_FOUND"
	CodeBusy            = "BUSY"
	CodeServerError     = "SERVER_ERROR"
)

func errIDNotInteger() *DomainError {
	return domainError(http.StatusBadRequest, CodeInvalidID, "Invalid id provided.", "Id can only be integer.")
}

func errUnknownClient() *DomainError {
	return domainError(http.StatusBadRequest, CodeInvalidID, "Invalid id provided.", "Cannot find client with that id.")
}

func errInvalidPriority() *DomainError {
	return domainError(http.StatusBadRequest, CodeInvalidPriority, "Invalid priority provided.", "Priority can only be positive integer.")
}

func errInvalidStatus() *DomainError {
	return domainError(http.StatusBadRequest, CodeInvalidStatus, "Invalid status provided.",
		"Status can only be one of the following: [backlog | in-progress | complete].")
}

func errInvalidBody(longMessage string) *DomainError {
	return domainError(http.StatusBadRequest, CodeInvalidBody, "Invalid body provided.", longMessage)
}

func errNotFound() *DomainError {
	return domainError(http.StatusNotFound, CodeNotFound, "Not found.", "Cannot find client with that id.")
}

func errBusy() *DomainError {
	return domainError(http.StatusServiceUnavailable, CodeBusy, "Board is busy.", "Another reorder is in progress; retry shortly.")
}
