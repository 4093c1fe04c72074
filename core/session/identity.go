package session

// StaticIdentities is an IdentityProvider over a fixed set of accounts sharing one password.
// Emails match exactly as typed.
type StaticIdentities struct {
	password string
	accounts map[string]Session
}

var _ IdentityProvider = (*StaticIdentities)(nil) // interface compliance check

func NewStaticIdentities(pwd string, accounts ...Session) *StaticIdentities {
	ids := &StaticIdentities{password: pwd, accounts: make(map[string]Session, len(accounts))}
	for _, acc := range accounts {
		acc.Source = SourceDemo
		ids.accounts[acc.Email] = acc
	}
	return ids
}

func (ids *StaticIdentities) Lookup(email, pwd string) (Session, bool) {
	acc, ok := ids.accounts[email]
	if !ok || pwd != ids.password {
		return Session{}, false
	}
	return acc, true
}
