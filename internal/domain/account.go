package domain

// Account identifies one bank account owned by a member. Accounts are
// registered through connection setup and are read-only inside the sync
// pipeline.
type Account struct {
	ID            string // internal UUID
	MemberID      string
	AccountNumber string
	Organization  string // issuing bank code, e.g. "0004"
	CredentialID  string // reference to the stored connection credential
}
