package password

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Hasher produces and checks encoded password hashes.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// Verifier dispatches on the stored hash format: argon2id PHC strings go to Argon2,
// bcrypt strings to Bcrypt. New hashes are always argon2id.
type Verifier struct {
	argon  *Argon2
	bcrypt *Bcrypt
	dummy  string

	bcryptDummyOnce sync.Once
	bcryptDummy     string

	// Per-family counts of verified hashes; VerifyDummy follows the larger one.
	argonSeen  atomic.Int64
	bcryptSeen atomic.Int64
}

// NewVerifier builds a Verifier and precomputes the dummy hash used by VerifyDummy.
func NewVerifier(cfg Config) (*Verifier, error) {
	a, err := NewArgon2(cfg)
	if err != nil {
		return nil, err
	}
	b, err := NewBcrypt(0)
	if err != nil {
		return nil, err
	}
	dummy, err := a.Hash(strings.Repeat("x", a.config.MinPasswordBytes))
	if err != nil {
		return nil, err
	}
	return &Verifier{argon: a, bcrypt: b, dummy: dummy}, nil
}

func (v *Verifier) Hash(password string) (string, error) {
	return v.argon.Hash(password)
}

func (v *Verifier) Verify(password, encodedHash string) (bool, error) {
	if isBcrypt(encodedHash) {
		v.bcryptSeen.Add(1)
		return v.bcrypt.Verify(password, encodedHash)
	}
	v.argonSeen.Add(1)
	return v.argon.Verify(password, encodedHash)
}

// VerifyDummy spends the work of one real verification and always returns false. Login
// calls it for unknown usernames so response time does not reveal whether the account
// exists. The dummy uses whichever hash family real verifications have hit most, so a
// store of imported bcrypt hashes gets a bcrypt-priced miss.
func (v *Verifier) VerifyDummy(password string) {
	if v.dummyFamily() == familyBcrypt {
		v.bcryptDummyOnce.Do(func() {
			v.bcryptDummy, _ = v.bcrypt.Hash(strings.Repeat("x", v.argon.config.MinPasswordBytes))
		})
		if v.bcryptDummy != "" {
			_, _ = v.bcrypt.Verify(password, v.bcryptDummy)
			return
		}
	}
	_, _ = v.argon.Verify(password, v.dummy)
}

type hashFamily int

const (
	familyArgon2 hashFamily = iota
	familyBcrypt
)

func (v *Verifier) dummyFamily() hashFamily {
	if v.bcryptSeen.Load() > v.argonSeen.Load() {
		return familyBcrypt
	}
	return familyArgon2
}

// NeedsUpgrade reports true for every bcrypt hash and for argon2id hashes with weaker
// parameters.
func (v *Verifier) NeedsUpgrade(encodedHash string) (bool, error) {
	if isBcrypt(encodedHash) {
		return true, nil
	}
	return v.argon.NeedsUpgrade(encodedHash)
}
