package uaserver

import (
	"os"

	"github.com/awcullen/opcua/server"
	"github.com/awcullen/opcua/ua"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
	yaml "gopkg.in/yaml.v2"
)

// User is a user name identity with a bcrypt password hash.
type User struct {
	Name         string `yaml:"name"`
	PasswordHash string `yaml:"password_hash"`
}

type userFile struct {
	Users []User `yaml:"users"`
}

// LoadUsers reads a yaml file of the form
//
//	users:
//	  - name: operator
//	    password_hash: $2a$08$...
func LoadUsers(path string) ([]User, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read users file")
	}
	var f userFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrap(err, "parse users file")
	}
	for _, u := range f.Users {
		if u.Name == "" || u.PasswordHash == "" {
			return nil, errors.Errorf("user entry %q is incomplete", u.Name)
		}
	}
	return f.Users, nil
}

// NewUser hashes password and returns the identity.
func NewUser(name, password string) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), 8)
	if err != nil {
		return User{}, errors.Wrap(err, "hash password")
	}
	return User{Name: name, PasswordHash: string(hash)}, nil
}

// authenticateUser returns ua.BadUserAccessDenied unless the identity matches one of users.
func authenticateUser(users []User) func(ua.UserNameIdentity, string, string) error {
	return func(identity ua.UserNameIdentity, applicationURI string, endpointURL string) error {
		for _, u := range users {
			if u.Name != identity.UserName {
				continue
			}
			if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(identity.Password)); err == nil {
				return nil
			}
		}
		return ua.BadUserAccessDenied
	}
}

// rolePermissions extends the sdk defaults so that anonymous and authenticated
// sessions may call the demo methods and receive their events.
func rolePermissions() []ua.RolePermissionType {
	perms := make([]ua.RolePermissionType, len(server.DefaultRolePermissions))
	copy(perms, server.DefaultRolePermissions)
	for i, rp := range perms {
		switch rp.RoleID {
		case ua.ObjectIDWellKnownRoleAnonymous, ua.ObjectIDWellKnownRoleAuthenticatedUser:
			perms[i].Permissions |= ua.PermissionTypeCall | ua.PermissionTypeReceiveEvents
		}
	}
	return perms
}
