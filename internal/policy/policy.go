package policy

import (
	"github.com/pkg/errors"

	"github.com/dkotenko/blogger-back/internal/db"
)

// Action is the kind of operation a handler is about to perform.
type Action int

const (
	ActionList Action = iota
	ActionRetrieve
	ActionCreate
	ActionUpdate
	ActionDelete
)

var (
	// ErrUnauthenticated means no requester identity was presented.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden means the requester lacks the role for this action.
	ErrForbidden = errors.New("admin role required")
)

func (a Action) isRead() bool {
	return a == ActionList || a == ActionRetrieve
}

// AdminOrReadOnly allows reads to anyone and writes to admins only.
func AdminOrReadOnly(user *db.User, action Action) error {
	if action.isRead() {
		return nil
	}
	if user == nil {
		return ErrUnauthenticated
	}
	if !user.IsAdmin {
		return ErrForbidden
	}
	return nil
}

// AuthenticatedOrReadOnly allows reads to anyone and writes to any
// authenticated user. Used for article creation, where the server
// assigns the requester as author.
func AuthenticatedOrReadOnly(user *db.User, action Action) error {
	if action.isRead() {
		return nil
	}
	if user == nil {
		return ErrUnauthenticated
	}
	return nil
}
