// Package session stores the local credentials the client reads
// synchronously: a bearer token and the signed-in user record. Presence of a
// non-expired token defines "logged in".
package session

import (
	"database/sql"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tasklink/internal/domain"
)

// Session is the stored credential pair.
type Session struct {
	Token     string
	Email     string
	Firstname string
	Lastname  string
}

// User returns the stored user record.
func (s Session) User() domain.User {
	return domain.User{Email: s.Email, Firstname: s.Firstname, Lastname: s.Lastname}
}

// LoggedIn reports whether the token is present and not expired.
func (s Session) LoggedIn(now time.Time) bool {
	return s.Token != "" && !tokenExpired(s.Token, now)
}

// tokenExpired inspects the token's exp claim without verifying the
// signature; the server is the authority, the client only decides whether to
// bother sending the token. A token without exp never expires locally; a
// token that does not parse counts as expired.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return true
	}
	if exp == nil {
		return false
	}
	return now.After(exp.Time)
}

// ErrNoSession is returned when no credentials are stored.
var ErrNoSession = errors.New("no stored session")

// Store persists a single session.
type Store interface {
	Get() (Session, error)
	Save(Session) error
	Clear() error
}

// DBStore keeps the session in the workspace SQLite database.
type DBStore struct {
	DB  *sql.DB
	Now func() time.Time
}

func (s *DBStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *DBStore) Get() (Session, error) {
	var sess Session
	row := s.DB.QueryRow(`SELECT token, email, firstname, lastname FROM session WHERE id=1`)
	err := row.Scan(&sess.Token, &sess.Email, &sess.Firstname, &sess.Lastname)
	if err == sql.ErrNoRows {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (s *DBStore) Save(sess Session) error {
	_, err := s.DB.Exec(`INSERT INTO session(id, token, email, firstname, lastname, saved_at)
VALUES (1,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET token=excluded.token, email=excluded.email,
firstname=excluded.firstname, lastname=excluded.lastname, saved_at=excluded.saved_at`,
		sess.Token, sess.Email, sess.Firstname, sess.Lastname, s.now().UTC().Format(time.RFC3339))
	return err
}

func (s *DBStore) Clear() error {
	_, err := s.DB.Exec(`DELETE FROM session WHERE id=1`)
	return err
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	sess   Session
	exists bool
}

func (m *MemStore) Get() (Session, error) {
	if !m.exists {
		return Session{}, ErrNoSession
	}
	return m.sess, nil
}

func (m *MemStore) Save(sess Session) error {
	m.sess = sess
	m.exists = true
	return nil
}

func (m *MemStore) Clear() error {
	m.sess = Session{}
	m.exists = false
	return nil
}

// Provider adapts a Store to the synchronous session view the invite flow
// consumes. The clock is injectable for tests.
type Provider struct {
	Store Store
	Now   func() time.Time
}

func (p Provider) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Current returns the stored user when a live session exists.
func (p Provider) Current() (domain.User, bool) {
	sess, err := p.Store.Get()
	if err != nil || !sess.LoggedIn(p.now()) {
		return domain.User{}, false
	}
	return sess.User(), true
}

// Clear drops the stored credentials.
func (p Provider) Clear() error {
	return p.Store.Clear()
}
