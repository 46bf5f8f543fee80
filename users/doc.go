// Package users provides an in-memory authcore.UserProvider and the demo account seed
// used by the example server and load tester.
package users
