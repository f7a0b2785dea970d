package authorize

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nkeys"

	"github.com/wardenhq/warden/internal/command"
)

// The two authorization failure modes. A command that requires
// authorization fails with ErrNotRequested when the request carried no
// token at all, and with ErrFailed when a token was presented but
// rejected (bad signature, expired, or missing the required right).
var (
	ErrNotRequested = errors.New("authorize: no authorization presented")
	ErrFailed       = errors.New("authorize: authorization failed")
)

// session records a token the authorizer has accepted, so granted rights
// can be reported for the lifetime of the token.
type session struct {
	rights    []string
	expiresAt int64
}

// Authorizer checks command requests against the authority public key.
// It remembers accepted tokens until they expire.
type Authorizer struct {
	publicKey string
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]session
}

// NewAuthorizer creates an authorizer for the given authority public key.
// The key is validated up front so a malformed key is a startup failure,
// not a per-request one.
func NewAuthorizer(publicKey string, logger *slog.Logger) (*Authorizer, error) {
	if _, err := nkeys.FromPublicKey(publicKey); err != nil {
		return nil, fmt.Errorf("invalid authority public key: %w", err)
	}
	return &Authorizer{
		publicKey: publicKey,
		logger:    logger.With(slog.String("component", "authorize")),
		now:       time.Now,
		sessions:  make(map[string]session),
	}, nil
}

// Authorize decides whether req may run under binding. Commands that do
// not require authorization always pass. For the rest, the request must
// carry a token signed by the authority, unexpired, and granting the
// binding's right.
func (a *Authorizer) Authorize(req *command.Request, binding command.Binding) error {
	if !binding.RequiresAuth {
		return nil
	}

	if len(req.Authorization) == 0 {
		return fmt.Errorf("%w: command %s requires right %s", ErrNotRequested, req.Command, binding.Right)
	}

	now := a.now()
	claims, err := VerifyAt(a.publicKey, req.Authorization, now)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFailed, err)
	}

	if !claims.HasRight(binding.Right) {
		return fmt.Errorf("%w: token %s lacks right %s", ErrFailed, claims.ID, binding.Right)
	}

	a.remember(claims, now)
	a.logger.Debug("authorization granted",
		slog.String("token_id", claims.ID),
		slog.String("right", binding.Right))
	return nil
}

// remember records the token's grant set and drops expired sessions.
func (a *Authorizer) remember(claims *Claims, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for id, s := range a.sessions {
		if s.expiresAt <= now.Unix() {
			delete(a.sessions, id)
		}
	}

	rights := make([]string, len(claims.Rights))
	copy(rights, claims.Rights)
	a.sessions[claims.ID] = session{rights: rights, expiresAt: claims.ExpiresAt}
}

// GrantedRights reports the rights of a previously accepted, unexpired
// token.
func (a *Authorizer) GrantedRights(tokenID string) ([]string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.sessions[tokenID]
	if !ok || s.expiresAt <= a.now().Unix() {
		return nil, false
	}
	rights := make([]string, len(s.rights))
	copy(rights, s.rights)
	return rights, true
}

// TokenSource mints authorization tokens on demand for the controller
// side. A minted token is reused until it nears expiry.
type TokenSource struct {
	kp     nkeys.KeyPair
	rights []string
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	token   []byte
	expires time.Time
}

// renewAhead is how long before expiry a cached token is discarded.
const renewAhead = time.Minute

// NewTokenSource creates a source minting tokens with the given rights
// and lifetime from the authority keypair.
func NewTokenSource(kp nkeys.KeyPair, rights []string, ttl time.Duration) *TokenSource {
	return &TokenSource{kp: kp, rights: rights, ttl: ttl, now: time.Now}
}

// Token returns a valid token, minting a new one only when the cached
// token is absent or close to expiry.
func (s *TokenSource) Token() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != nil && s.now().Add(renewAhead).Before(s.expires) {
		return s.token, nil
	}

	token, err := Mint(s.kp, s.rights, s.ttl)
	if err != nil {
		return nil, err
	}
	s.token = token
	s.expires = s.now().Add(s.ttl)
	return token, nil
}
