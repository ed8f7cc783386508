package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dkotenko/blogger-back/internal/db"
)

func TestAdminOrReadOnly(t *testing.T) {
	admin := &db.User{IsAdmin: true}
	regular := &db.User{}

	reads := []Action{ActionList, ActionRetrieve}
	writes := []Action{ActionCreate, ActionUpdate, ActionDelete}

	for _, a := range reads {
		assert.Nil(t, AdminOrReadOnly(nil, a))
		assert.Nil(t, AdminOrReadOnly(regular, a))
		assert.Nil(t, AdminOrReadOnly(admin, a))
	}

	for _, a := range writes {
		assert.ErrorIs(t, AdminOrReadOnly(nil, a), ErrUnauthenticated)
		assert.ErrorIs(t, AdminOrReadOnly(regular, a), ErrForbidden)
		assert.Nil(t, AdminOrReadOnly(admin, a))
	}
}

func TestAuthenticatedOrReadOnly(t *testing.T) {
	regular := &db.User{}

	assert.Nil(t, AuthenticatedOrReadOnly(nil, ActionList))
	assert.Nil(t, AuthenticatedOrReadOnly(nil, ActionRetrieve))
	assert.ErrorIs(t, AuthenticatedOrReadOnly(nil, ActionCreate), ErrUnauthenticated)
	assert.Nil(t, AuthenticatedOrReadOnly(regular, ActionCreate))
	assert.Nil(t, AuthenticatedOrReadOnly(regular, ActionDelete))
}
