// Package password hashes and verifies user passwords.
//
// New hashes are argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verifier also accepts bcrypt hashes ($2a$, $2b$, $2y$) so imported credential stores
// keep working; NeedsUpgrade reports them so callers can re-hash on the next successful
// login. VerifyDummy burns the cost of one verification for unknown accounts.
//
// The package never stores or logs plaintext.
package password
