package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

var ErrNotFound = errors.New("credentials file not found")

// APIID accepts both a JSON number and a quoted number.
type APIID int

func (id *APIID) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(bytes.TrimSpace(data), `"`)
	if len(data) == 0 {
		*id = 0
		return nil
	}

	v, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("parse api_id: %w", err)
	}

	*id = APIID(v)
	return nil
}

type Credentials struct {
	APIID       APIID  `json:"api_id"`
	APIHash     string `json:"api_hash"`
	PhoneNumber string `json:"phone_number"`
}

func (c Credentials) Validate() error {
	var errs []error

	if c.APIID <= 0 {
		errs = append(errs, errors.New("api_id must be a positive integer"))
	}
	if strings.TrimSpace(c.APIHash) == "" {
		errs = append(errs, errors.New("api_hash is empty"))
	}
	if strings.TrimSpace(c.PhoneNumber) == "" {
		errs = append(errs, errors.New("phone_number is empty"))
	}

	return errors.Join(errs...)
}

type Prompter interface {
	Credentials(ctx context.Context) (Credentials, error)
}

func Load(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Credentials{}, ErrNotFound
		}
		return Credentials{}, fmt.Errorf("read credentials file: %w", err)
	}

	var c Credentials
	if err = json.Unmarshal(data, &c); err != nil {
		return Credentials{}, fmt.Errorf("decode credentials file: %w", err)
	}

	c.APIHash = strings.TrimSpace(c.APIHash)
	c.PhoneNumber = strings.TrimSpace(c.PhoneNumber)

	return c, nil
}

func Save(path string, c Credentials) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	if err = os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials file: %w", err)
	}

	return nil
}

// LoadOrPrompt asks for credentials only when the file is missing and saves the answers.
func LoadOrPrompt(ctx context.Context, path string, p Prompter) (Credentials, bool, error) {
	c, err := Load(path)
	if err == nil {
		if err = c.Validate(); err != nil {
			return Credentials{}, false, fmt.Errorf("validate credentials file: %w", err)
		}
		return c, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Credentials{}, false, err
	}

	c, err = p.Credentials(ctx)
	if err != nil {
		return Credentials{}, false, fmt.Errorf("prompt credentials: %w", err)
	}

	if err = c.Validate(); err != nil {
		return Credentials{}, false, fmt.Errorf("validate credentials: %w", err)
	}

	if err = Save(path, c); err != nil {
		return Credentials{}, false, err
	}

	return c, true, nil
}
