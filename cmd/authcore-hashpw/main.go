// Command authcore-hashpw prints a password hash for the users: section of the server
// configuration. The password is read without echo when stdin is a terminal, otherwise
// from the first line of stdin.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/MrEthical07/authcore/password"
)

// readPassword and isTerminal are test seams for the x/term calls.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "authcore-hashpw:", err)
		os.Exit(1)
	}
}

func run(args []string, stdin *os.File, stdout, stderr io.Writer) error {
	defaults := password.DefaultConfig()

	fs := flag.NewFlagSet("authcore-hashpw", flag.ContinueOnError)
	fs.SetOutput(stderr)
	memory := fs.Uint("memory", uint(defaults.Memory), "argon2id memory in KiB")
	iterations := fs.Uint("time", uint(defaults.Time), "argon2id iterations")
	minBytes := fs.Int("min-bytes", 6, "minimum password length in bytes")
	bcryptCost := fs.Int("bcrypt", 0, "emit a bcrypt hash with this cost instead of argon2id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pw, err := readInput(stdin, stderr)
	if err != nil {
		return err
	}

	var h password.Hasher
	if *bcryptCost > 0 {
		if len(pw) < *minBytes {
			return fmt.Errorf("%w: must be at least %d bytes", password.ErrPasswordLength, *minBytes)
		}
		h, err = password.NewBcrypt(*bcryptCost)
	} else {
		cfg := defaults
		cfg.Memory = uint32(*memory)
		cfg.Time = uint32(*iterations)
		cfg.MinPasswordBytes = *minBytes
		h, err = password.NewArgon2(cfg)
	}
	if err != nil {
		return err
	}

	hash, err := h.Hash(pw)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, hash)
	return err
}

func readInput(stdin *os.File, prompt io.Writer) (string, error) {
	fd := int(stdin.Fd())
	if !isTerminal(fd) {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(prompt, "Password: ")
	first, err := readPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", err
	}
	fmt.Fprint(prompt, "Confirm: ")
	second, err := readPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", err
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}
