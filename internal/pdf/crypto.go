package pdf

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrPasswordRequired is returned for encrypted files opened without a
// working password.
var ErrPasswordRequired = errors.New("PDF is password protected")

// PasswordCredentials contains the passwords for a PDF file.
type PasswordCredentials struct {
	UserPassword  string `json:"user_password,omitempty"`
	OwnerPassword string `json:"owner_password,omitempty"`
}

// Configuration returns a pdfcpu configuration carrying the passwords.
func (c *PasswordCredentials) Configuration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	if c != nil {
		conf.UserPW = c.UserPassword
		conf.OwnerPW = c.OwnerPassword
	}
	return conf
}

// IsEncrypted reports whether filename cannot be read without a password.
func IsEncrypted(filename string) (bool, error) {
	if _, err := api.PageCountFile(filename); err != nil {
		if IsPasswordError(err) {
			return true, nil
		}
		return false, fmt.Errorf("failed to check PDF encryption status: %w", err)
	}
	return false, nil
}

// Decrypt writes a decrypted copy of filename to a temporary file and
// returns its path. The caller removes the file.
func Decrypt(filename string, creds *PasswordCredentials) (string, error) {
	if creds == nil || (creds.UserPassword == "" && creds.OwnerPassword == "") {
		return "", ErrPasswordRequired
	}

	tmp, err := os.CreateTemp("", "decrypted-*.pdf")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	_ = tmp.Close()

	if err := api.DecryptFile(filename, tmp.Name(), creds.Configuration()); err != nil {
		_ = os.Remove(tmp.Name())
		if IsPasswordError(err) {
			return "", fmt.Errorf("%w: %v", ErrPasswordRequired, err)
		}
		return "", fmt.Errorf("failed to decrypt PDF: %w", err)
	}
	return tmp.Name(), nil
}

// IsPasswordError checks if an error is related to password/encryption issues.
func IsPasswordError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPasswordRequired) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	for _, keyword := range []string{"password", "encrypted", "decrypt", "authentication"} {
		if strings.Contains(errStr, keyword) {
			return true
		}
	}
	return false
}
