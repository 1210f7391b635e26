package broker

import (
	"bufio"
	"crypto/subtle"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/watchtower-mqtt/vigil/packet"
)

// Authenticator checks CONNECT credentials against a static list of
// (username, password) pairs loaded once at startup, with a guest mode for
// CONNECT packets carrying neither. Modeled on the teacher's
// BasicAuthHook/AnonymousAuthHook split, collapsed into one type since the
// broker only ever needs one authentication policy at a time.
type Authenticator struct {
	mu             sync.RWMutex
	users          map[string]string
	allowAnonymous bool
}

// NewAuthenticator returns an Authenticator with no users loaded and
// anonymous access allowed; callers load users with LoadCredentialsFile.
func NewAuthenticator() *Authenticator {
	return &Authenticator{
		users:          make(map[string]string),
		allowAnonymous: true,
	}
}

// LoadCredentialsFile reads one "username password" pair per line from
// path; lines with the wrong number of fields are ignored.
func (a *Authenticator) LoadCredentialsFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCredentialsFile, err)
	}
	defer f.Close()

	users := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		users[fields[0]] = fields[1]
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCredentialsFile, err)
	}

	a.mu.Lock()
	a.users = users
	a.mu.Unlock()
	return nil
}

// Authenticate returns the CONNACK return code for connect: guest mode
// (ConnectAccepted) when both username and password are absent, otherwise
// a constant-time credential comparison. Any credential failure is
// reported as NotAuthorized, matching the reference's single AuthError
// path rather than MQTT's separate BadUsernameOrPassword code.
func (a *Authenticator) Authenticate(connect packet.Connect) packet.ConnectReturnCode {
	if !connect.HasUsername && !connect.HasPassword {
		a.mu.RLock()
		allow := a.allowAnonymous
		a.mu.RUnlock()
		if allow {
			return packet.ConnectAccepted
		}
		return packet.ConnectNotAuthorized
	}

	a.mu.RLock()
	expected, exists := a.users[connect.Username]
	a.mu.RUnlock()
	if !exists {
		return packet.ConnectNotAuthorized
	}
	if subtle.ConstantTimeCompare([]byte(expected), connect.Password) != 1 {
		return packet.ConnectNotAuthorized
	}
	return packet.ConnectAccepted
}

// SetAllowAnonymous toggles guest-mode access.
func (a *Authenticator) SetAllowAnonymous(allow bool) {
	a.mu.Lock()
	a.allowAnonymous = allow
	a.mu.Unlock()
}
