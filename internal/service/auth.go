package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"

	"github.com/atinyakov/practiceserver/internal/apierror"
	"github.com/atinyakov/practiceserver/internal/models"
)

const (
	// DefaultIdentity is the user field used as login name.
	DefaultIdentity = "email"
	// DefaultSecret is the development HMAC key the bundled users were hashed with.
	DefaultSecret = "This is not a production server"
)

// ProtectedStore is the storage used for users and sessions.
type ProtectedStore interface {
	Get(name, id string) (models.Record, error)
	List(name string) ([]models.Record, error)
	Add(name string, data models.Record) (models.Record, error)
	Set(name, id string, data models.Record) (models.Record, error)
	Delete(name, id string) (models.Record, error)
	Query(name string, predicate models.Record) ([]models.Record, error)
}

// Auth implements registration, login, logout and token authentication
// over the protected store.
type Auth struct {
	// store holds the users and sessions collections.
	store ProtectedStore
	// identity is the unique login field of a user.
	identity string
	// secret is the HMAC key for passwords and tokens.
	secret []byte
	// log records registrations and authentications.
	log *zap.Logger
}

// NewAuthService constructs an Auth service. Empty identity and secret fall
// back to DefaultIdentity and DefaultSecret.
func NewAuthService(store ProtectedStore, identity, secret string, log *zap.Logger) *Auth {
	if identity == "" {
		identity = DefaultIdentity
	}
	if secret == "" {
		secret = DefaultSecret
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Auth{store: store, identity: identity, secret: []byte(secret), log: log}
}

// Identity returns the login field name.
func (a *Auth) Identity() string { return a.identity }

// Hash returns the hex HMAC-SHA256 of s.
func (a *Auth) Hash(s string) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(s))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticate resolves an access token to its user.
func (a *Auth) Authenticate(ctx context.Context, token string) (models.Record, error) {
	sessions, err := a.store.Query(models.SessionsCollection, models.Record{models.FieldAccessToken: token})
	if err != nil || len(sessions) == 0 {
		return nil, apierror.Credential("Invalid access token")
	}
	userID, _ := sessions[0][models.FieldUserID].(string)
	user, err := a.store.Get(models.UsersCollection, userID)
	if err != nil {
		return nil, apierror.Credential("Invalid access token").Wrap(err)
	}
	a.log.Debug("authorized", zap.Any(a.identity, user[a.identity]))
	return user, nil
}

// Register stores a new user and opens a session for it.
func (a *Auth) Register(ctx context.Context, body any) (models.Record, error) {
	data, ok := models.AsRecord(body)
	if !ok {
		return nil, apierror.Request("Missing fields")
	}
	login, _ := data[a.identity].(string)
	password, _ := data[models.FieldPassword].(string)
	if login == "" || password == "" {
		return nil, apierror.Request("Missing fields")
	}

	existing, err := a.store.Query(models.UsersCollection, models.Record{a.identity: login})
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if len(existing) != 0 {
		return nil, apierror.Conflict(fmt.Sprintf("A user with the same %s already exists", a.identity))
	}

	user := data.Without(models.FieldPassword)
	user[models.FieldHashedPassword] = a.Hash(password)
	created, err := a.store.Add(models.UsersCollection, user)
	if err != nil {
		return nil, fmt.Errorf("add user: %w", err)
	}
	a.log.Info("user registered", zap.String("id", created.ID()))
	return a.openSession(created)
}

// Login checks credentials and opens a session.
func (a *Auth) Login(ctx context.Context, body any) (models.Record, error) {
	data, _ := models.AsRecord(body)
	login, _ := data[a.identity].(string)
	password, _ := data[models.FieldPassword].(string)

	matches, err := a.store.Query(models.UsersCollection, models.Record{a.identity: login})
	if err != nil || len(matches) != 1 {
		return nil, apierror.Credential("Login or password don't match")
	}
	stored, _ := matches[0][models.FieldHashedPassword].(string)
	if !hmac.Equal([]byte(a.Hash(password)), []byte(stored)) {
		return nil, apierror.Credential("Login or password don't match")
	}
	return a.openSession(matches[0])
}

// Logout closes the first session of user.
func (a *Auth) Logout(ctx context.Context, user models.Record) error {
	if user == nil {
		return apierror.Credential("User session does not exist")
	}
	sessions, err := a.store.Query(models.SessionsCollection, models.Record{models.FieldUserID: user.ID()})
	if err != nil {
		return fmt.Errorf("lookup session: %w", err)
	}
	if len(sessions) == 0 {
		return nil
	}
	if _, err := a.store.Delete(models.SessionsCollection, sessions[0].ID()); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Me returns the authenticated user without the password hash.
func (a *Auth) Me(ctx context.Context, user models.Record) (models.Record, error) {
	if user == nil {
		return nil, apierror.Authorization()
	}
	return user.Without(models.FieldHashedPassword), nil
}

func (a *Auth) openSession(user models.Record) (models.Record, error) {
	session, err := a.store.Add(models.SessionsCollection, models.Record{models.FieldUserID: user.ID()})
	if err != nil {
		return nil, fmt.Errorf("add session: %w", err)
	}
	token := a.Hash(session.ID())
	session[models.FieldAccessToken] = token
	if _, err := a.store.Set(models.SessionsCollection, session.ID(), session); err != nil {
		return nil, fmt.Errorf("store session token: %w", err)
	}

	result := user.Without(models.FieldHashedPassword)
	result[models.FieldAccessToken] = token
	return result, nil
}
