// Package credentials reads and writes the optional credentials file, so the
// account password does not have to live in the environment or on the command
// line.
//
// The file is an INI file with one section per profile:
//
//	[default]
//	email = me@example.com
//	password = secret
//
//	[holiday-home]
//	email = other@example.com
//	password = hunter2
package credentials

import (
	"errors"
	"fmt"
	"os"

	"github.com/ubuntu/decorate"
	"gopkg.in/ini.v1"
)

// DefaultProfile is the profile used when none is selected.
const DefaultProfile = "default"

// ErrNotFound is returned when the file or the requested profile is missing.
var ErrNotFound = errors.New("no stored credentials")

// Credentials is one account login.
type Credentials struct {
	Email    string
	Password string
}

// Load returns the credentials of the given profile from the file at path.
// An empty profile selects the default one.
func Load(path, profile string) (Credentials, error) {
	if profile == "" {
		profile = DefaultProfile
	}

	cfg, err := ini.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Credentials{}, ErrNotFound
		}
		return Credentials{}, fmt.Errorf("could not read credentials file: %v", err)
	}

	section, err := cfg.GetSection(profile)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: profile %q not found in %s", ErrNotFound, profile, path)
	}

	creds := Credentials{
		Email:    section.Key("email").String(),
		Password: section.Key("password").String(),
	}
	if creds.Email == "" {
		return Credentials{}, fmt.Errorf("profile %q in %s has no email", profile, path)
	}
	return creds, nil
}

// Save writes the credentials to the given profile, creating the file with
// owner-only permissions if needed. Other profiles are left untouched.
func Save(path, profile string, creds Credentials) (err error) {
	defer decorate.OnError(&err, "could not save credentials:")

	if profile == "" {
		profile = DefaultProfile
	}
	if creds.Email == "" {
		return errors.New("email must not be empty")
	}

	cfg, err := ini.LooseLoad(path)
	if err != nil {
		return err
	}

	section, err := cfg.NewSection(profile)
	if err != nil {
		return err
	}
	section.Key("email").SetValue(creds.Email)
	section.Key("password").SetValue(creds.Password)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := cfg.WriteTo(f); err != nil {
		return err
	}
	return f.Close()
}

// Profiles lists the profiles available in the file at path.
func Profiles(path string) ([]string, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not read credentials file: %v", err)
	}

	var profiles []string
	for _, section := range cfg.Sections() {
		if section.Name() == ini.DefaultSection {
			continue
		}
		profiles = append(profiles, section.Name())
	}
	return profiles, nil
}
