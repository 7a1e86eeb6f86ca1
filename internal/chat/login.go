package chat

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// MaxLoginAttempts bounds interactive prompting.
const MaxLoginAttempts = 3

var (
	// ErrMissingCredentials means the username or password was blank.
	ErrMissingCredentials = errors.New("please fill in all fields")
	// ErrTooManyAttempts ends interactive login.
	ErrTooManyAttempts = errors.New("too many failed attempts, please try again later")
)

// CheckCredentials accepts any non-empty pair. Nothing is verified against a
// store; the username only becomes the chat display name.
func CheckCredentials(username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", ErrMissingCredentials
	}
	return username, nil
}

// Prompt asks for credentials on out/in until a pair is accepted or the
// attempts run out.
func Prompt(in io.Reader, out io.Writer) (string, error) {
	reader := bufio.NewReader(in)
	for attempt := 0; attempt < MaxLoginAttempts; attempt++ {
		username, err := ask(reader, out, "Username: ")
		if err != nil {
			return "", err
		}
		password, err := ask(reader, out, "Password: ")
		if err != nil {
			return "", err
		}

		name, err := CheckCredentials(username, password)
		if err == nil {
			return name, nil
		}
		fmt.Fprintf(out, "Error: %v\n", err)
	}
	return "", ErrTooManyAttempts
}

func ask(r *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.ToLower(label), ": "), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
