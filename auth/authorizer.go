package auth

import "github.com/packserv/packserv"

// check scans a permission list in declaration order and reports
// whether any pattern matches the package and its ruleset admits the
// version. A matching pattern whose ruleset refuses does not end the
// scan.
func check(perms Permissions, id string, v packserv.Version) bool {
	for _, r := range perms {
		if r.Pattern.Match(id) && r.Ruleset.Evaluate(v) {
			return true
		}
	}
	return false
}

// Accessible reports whether the package version may be served to the
// given identity. Scopes are consulted in order: the global package
// rules, the user's own rules, then each of the user's groups. An
// empty user is anonymous and only sees the global rules.
func (cfg *Config) Accessible(id string, v packserv.Version, user string) bool {
	if check(cfg.Packages, id, v) {
		return true
	}
	if user == "" {
		return false
	}
	u, ok := cfg.Users[user]
	if !ok {
		return false
	}
	if check(u.Packages, id, v) {
		return true
	}
	for _, g := range u.Groups {
		if check(cfg.Groups[g], id, v) {
			return true
		}
	}
	return false
}

// Identify resolves HTTP Basic credentials to a username. The empty
// string means anonymous: no credentials, an unknown user or a
// failed verification.
func (cfg *Config) Identify(username, password string) string {
	u, ok := cfg.Users[username]
	if !ok {
		return ""
	}
	if !u.Passwd.Verify(password) {
		return ""
	}
	return username
}
